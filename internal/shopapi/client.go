// Package shopapi is a client for the storefront REST API. It fetches the
// data the snapshot builder cannot read from local state: the paginated order
// list (for revenue) and the wishlist.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"uptain-sync/internal/model"
	"uptain-sync/internal/transport"
)

// Storefront REST paths, relative to the shop URL.
const (
	ordersPath   = "/rest/io/customer/order/list"
	wishlistPath = "/rest/io/itemWishList"
)

// SessionCookie carries the customer session on storefront requests.
const SessionCookie = "plentyID"

// DefaultOrdersPerPage is the page size requested from the order list.
const DefaultOrdersPerPage = 50

// Config holds storefront client configuration.
type Config struct {
	ShopURL       string
	APIKey        string // optional, sent as a bearer token
	Timeout       time.Duration
	OrdersPerPage int
	HTTPClient    *http.Client // overrides the fingerprinting transport, e.g. in tests
}

// Client talks to one storefront. A Client without a session fetches as a guest;
// use ForSession to bind a customer session.
type Client struct {
	httpClient    *http.Client
	shopURL       string
	apiKey        string
	session       string
	ordersPerPage int
}

// New creates a storefront client.
func New(cfg Config) (*Client, error) {
	if cfg.ShopURL == "" {
		return nil, fmt.Errorf("shop URL is required")
	}
	u, err := url.Parse(cfg.ShopURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid shop URL %q", cfg.ShopURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perPage := cfg.OrdersPerPage
	if perPage <= 0 {
		perPage = DefaultOrdersPerPage
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: transport.New(transport.Options{
				Timeout:     timeout,
				Fingerprint: transport.FingerprintChrome,
			}),
		}
	}

	return &Client{
		httpClient:    httpClient,
		shopURL:       strings.TrimSuffix(cfg.ShopURL, "/"),
		apiKey:        cfg.APIKey,
		ordersPerPage: perPage,
	}, nil
}

// ForSession returns a copy of c that sends the given session token.
// The underlying HTTP client is shared.
func (c *Client) ForSession(token string) *Client {
	cp := *c
	cp.session = token
	return &cp
}

// FetchOrdersPage retrieves one page of the customer's order list. Pages start at 1.
func (c *Client) FetchOrdersPage(ctx context.Context, page int) (*model.OrdersPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("items", strconv.Itoa(c.ordersPerPage))

	var resp ordersResponse
	if err := c.get(ctx, ordersPath, q, "orders", &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// FetchWishlist retrieves the customer's wishlist.
func (c *Client) FetchWishlist(ctx context.Context) ([]model.WishlistItem, error) {
	var items []wishlistEntry
	if err := c.get(ctx, wishlistPath, nil, "wishlist", &items); err != nil {
		return nil, err
	}

	out := make([]model.WishlistItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel())
	}
	return out, nil
}

// get performs a GET and decodes the response. Storefront endpoints wrap
// payloads in {"data": ...}; bare payloads are accepted as well.
func (c *Client) get(ctx context.Context, path string, query url.Values, resource string, out any) error {
	endpoint := c.shopURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("storefront", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError("storefront", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, body, resource)
	}

	payload := unwrapData(body)
	if err := json.Unmarshal(payload, out); err != nil {
		return model.NewUpstreamError("storefront", fmt.Errorf("parsing %s response: %w", resource, err))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.session})
	}
}

// unwrapData returns the "data" member of an envelope, or body unchanged.
func unwrapData(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Data) == 0 {
		return trimmed
	}
	return envelope.Data
}

// parseErrorResponse converts a storefront error to APIError.
func parseErrorResponse(statusCode int, body []byte, resource string) error {
	var apiErr errorResponse
	json.Unmarshal(body, &apiErr) // Best effort parse

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError(resource)
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("storefront session rejected")
	case http.StatusBadRequest:
		msg := apiErr.message()
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError(resource, msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("storefront")
	default:
		return model.NewUpstreamError("storefront",
			fmt.Errorf("status %d: %s", statusCode, apiErr.message()))
	}
}
