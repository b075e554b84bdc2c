package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mailspool/internal/submit"
)

type processorRunner interface {
	Process(ctx context.Context) error
}

// ToolsHandler carries the operator tools: sending a test mail and kicking
// off a processing pass by hand.
type ToolsHandler struct {
	BaseHandler
	gate      submitter
	processor processorRunner
}

func NewToolsHandler(logger *slog.Logger, gate submitter, processor processorRunner) *ToolsHandler {
	return &ToolsHandler{BaseHandler: BaseHandler{Logger: logger}, gate: gate, processor: processor}
}

type testMailPayload struct {
	To  StringList `json:"to"`
	Cc  string     `json:"cc"`
	Bcc string     `json:"bcc"`
}

// TestMail submits a canned mail through the regular gate, so it exercises
// the same threshold, header resolution and storage as real traffic.
func (h *ToolsHandler) TestMail(w http.ResponseWriter, r *http.Request) {
	var payload testMailPayload
	if err := h.readJSON(w, r, &payload); err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.To) == 0 {
		h.errorResponse(w, r, http.StatusBadRequest, "to is required")
		return
	}

	var headers []string
	if payload.Cc != "" {
		headers = append(headers, "Cc: "+payload.Cc)
	}
	if payload.Bcc != "" {
		headers = append(headers, "Bcc: "+payload.Bcc)
	}

	queued, err := h.gate.Submit(r.Context(), submit.Request{
		To:      payload.To,
		Subject: "Test mail",
		Message: fmt.Sprintf("This is a test mail to %d recipient(s).", len(payload.To)),
		Headers: headers,
	})
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"queued": queued}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ProcessQueue starts a pass right away. The admin middleware already
// authorized the caller, so this takes the internal path.
func (h *ToolsHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.processor.Process(r.Context()); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
