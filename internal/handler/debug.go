package handler

import (
	"net/http"

	"uptain-sync/internal/model"
	"uptain-sync/internal/serialize"
)

// DecodeRequest is the body of POST /debug/decode.
type DecodeRequest struct {
	Value string `json:"value"`
}

// DecodeResponse holds the decoded attribute and its table rows.
type DecodeResponse struct {
	Decoded any              `json:"decoded"`
	Rows    []map[string]any `json:"rows"`
}

// handleDebugDecode decodes a rendered attribute value in either encoding.
// POST /debug/decode
func (h *Handler) handleDebugDecode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := decodeAttribute(req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func decodeAttribute(value string) (*DecodeResponse, error) {
	decoded, ok := serialize.DecodeLenient(value)
	if !ok {
		return nil, model.NewValidationError("value", "not a JSON or compact attribute value")
	}
	rows := serialize.ParseDebugRows(value)
	if rows == nil {
		rows = []map[string]any{}
	}
	return &DecodeResponse{Decoded: decoded, Rows: rows}, nil
}
