// Package transport provides the HTTP round tripper used for storefront API calls.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// BROWSER TLS FINGERPRINT
// =============================================================================
//
// Storefront REST endpoints usually sit behind the same CDN as the shop pages.
// Go's TLS client hello stands out there and gets throttled, so API calls
// present a browser fingerprint via uTLS instead:
//
//   1. Dial with the configured uTLS ClientHelloID
//   2. Let ALPN negotiate (h2, http/1.1)
//   3. Frame with http2.Transport; hosts that refuse h2 are remembered and
//      served over HTTP/1.1 afterwards
//
// Plain http:// URLs (local shops, tests) skip TLS entirely.
// =============================================================================

// Fingerprint names the client hello presented to upstream servers.
type Fingerprint string

const (
	FingerprintChrome  Fingerprint = "chrome"
	FingerprintFirefox Fingerprint = "firefox"
	FingerprintSafari  Fingerprint = "safari"
	FingerprintGo      Fingerprint = "go" // standard library TLS
)

// helloID maps f to a uTLS client hello. Unknown names fall back to Chrome.
func (f Fingerprint) helloID() utls.ClientHelloID {
	switch Fingerprint(strings.ToLower(string(f))) {
	case FingerprintFirefox:
		return utls.HelloFirefox_Auto
	case FingerprintSafari:
		return utls.HelloSafari_Auto
	default:
		return utls.HelloChrome_Auto
	}
}

// Options configure New.
type Options struct {
	Timeout     time.Duration // dial and handshake timeout, default 30s
	Fingerprint Fingerprint   // default chrome
	UserAgent   string        // set on requests that carry none
}

// New returns a round tripper for storefront API calls.
func New(opts Options) http.RoundTripper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	if opts.Fingerprint == FingerprintGo {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSHandshakeTimeout = opts.Timeout
		rt = base
	} else {
		rt = newFingerprintTransport(opts.Timeout, opts.Fingerprint.helloID())
	}

	if opts.UserAgent == "" {
		return rt
	}
	return &userAgentTransport{next: rt, userAgent: opts.UserAgent}
}

// NewChromeTransport returns a round tripper presenting Chrome's fingerprint.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	return New(Options{Timeout: timeout, Fingerprint: FingerprintChrome})
}

type fingerprintTransport struct {
	h2 *http2.Transport
	h1 *http.Transport

	h1Only sync.Map // host -> struct{}; hosts that failed over HTTP/2
}

func newFingerprintTransport(timeout time.Duration, hello utls.ClientHelloID) *fingerprintTransport {
	dialer := &net.Dialer{Timeout: timeout}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialTLS(ctx, dialer, network, addr, hello)
	}

	return &fingerprintTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialContext:         dialer.DialContext,
			DialTLSContext:      dial,
			ForceAttemptHTTP2:   false,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	if _, ok := t.h1Only.Load(req.URL.Host); ok {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	// Request bodies may already be consumed by the failed attempt.
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}

	t.h1Only.Store(req.URL.Host, struct{}{})
	return t.h1.RoundTrip(req)
}

// dialTLS establishes a TLS connection with the given client hello.
func dialTLS(ctx context.Context, dialer *net.Dialer, network, addr string, hello utls.ClientHelloID) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, hello)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}
