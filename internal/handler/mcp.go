// MCP transport for the preview API using the official MCP Go SDK.
// Exposes snapshot building, consent resolution and attribute decoding as tools.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/model"
)

// === MCP Tool Input/Output Types ===

// BuildSnapshotInput is the input schema for build_snapshot.
// The storefront state is passed as a JSON document in the same shape
// POST /snapshot accepts under "state".
type BuildSnapshotInput struct {
	StateJSON string        `json:"state_json" jsonschema:"storefront state as a JSON object,required"`
	Consent   *ConsentInput `json:"consent,omitempty" jsonschema:"visitor consent; omitted means no recorded choice"`
	Session   string        `json:"session,omitempty" jsonschema:"storefront session token for revenue and wishlist fetches"`
}

// BuildSnapshotOutput is the result of build_snapshot.
type BuildSnapshotOutput struct {
	Configured   bool        `json:"configured"`
	Allowed      bool        `json:"allowed"`
	ConsentState string      `json:"consent_state"`
	Page         string      `json:"page,omitempty"`
	Attributes   []Attribute `json:"attributes"`
}

// DecodeAttributeInput is the input schema for decode_debug_attribute.
type DecodeAttributeInput struct {
	Value string `json:"value" jsonschema:"data attribute value in JSON or compact encoding,required"`
}

// NewMCPServer creates an MCP server with the preview tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "uptain-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Tracker snapshot preview. Build the data attributes the tracking script " +
				"would carry for a storefront state, resolve tracker consent, and decode attribute values.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_snapshot",
		Description: "Build the tracker snapshot for a storefront state and report whether consent allows the script.",
	}, h.mcpBuildSnapshot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_consent",
		Description: "Register the tracker cookie in its consent group, reconcile the persisted consent cookie and decide whether tracking is allowed.",
	}, h.mcpResolveConsent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decode_debug_attribute",
		Description: "Decode a wishlist, cart or product attribute value (JSON, HTML-escaped JSON or compact) into table rows.",
	}, h.mcpDecodeAttribute)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpBuildSnapshot(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input BuildSnapshotInput,
) (*mcp.CallToolResult, *BuildSnapshotOutput, error) {
	var st aggregate.State
	if err := json.Unmarshal([]byte(input.StateJSON), &st); err != nil {
		return nil, nil, fmt.Errorf("state_json: %v", err)
	}

	rt := h.runtime()
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "/mcp", nil)
	gate := h.gateFor(httpReq, rt.Policy, input.Consent)

	resp := h.buildSnapshot(ctx, rt, &PreviewRequest{State: st, Consent: input.Consent}, gate, input.Session)
	return nil, &BuildSnapshotOutput{
		Configured:   resp.Configured,
		Allowed:      resp.Allowed,
		ConsentState: resp.ConsentState,
		Page:         resp.Page,
		Attributes:   resp.Attributes,
	}, nil
}

func (h *Handler) mcpResolveConsent(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ResolveConsentRequest,
) (*mcp.CallToolResult, *ResolveConsentResponse, error) {
	resp, err := h.resolveConsent(h.runtime().Policy, &input)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, resp, nil
}

func (h *Handler) mcpDecodeAttribute(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DecodeAttributeInput,
) (*mcp.CallToolResult, *DecodeResponse, error) {
	resp, err := decodeAttribute(input.Value)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, resp, nil
}

// mcpError converts errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	apiErr := model.AsAPIError(err)
	if apiErr.Internal() {
		// Don't leak internal error details
		h.logger.Error("mcp internal error", "error", err.Error())
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
