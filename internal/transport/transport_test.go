package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	utls "github.com/refraction-networking/utls"
)

func TestFingerprintHelloID(t *testing.T) {
	tests := []struct {
		in   Fingerprint
		want utls.ClientHelloID
	}{
		{FingerprintChrome, utls.HelloChrome_Auto},
		{"", utls.HelloChrome_Auto},
		{"unknown", utls.HelloChrome_Auto},
		{FingerprintFirefox, utls.HelloFirefox_Auto},
		{"Safari", utls.HelloSafari_Auto},
	}
	for _, tt := range tests {
		if got := tt.in.helloID(); got != tt.want {
			t.Errorf("Fingerprint(%q).helloID() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPlainHTTPSkipsTLS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto+" "+r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(Options{Timeout: 5 * time.Second, UserAgent: "uptain-sync/test"})}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if got := string(body); got != "HTTP/1.1 uptain-sync/test" {
		t.Errorf("body = %q, want HTTP/1.1 with user agent", got)
	}
}

func TestUserAgentKeepsExplicitHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(Options{Fingerprint: FingerprintGo, UserAgent: "default"})}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.EqualFold(string(body), "explicit") {
		t.Errorf("User-Agent = %q, want explicit", body)
	}
}
