package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mailspool/internal/submit"
)

// StringList accepts either a JSON array of strings or a single string, the
// two shapes submissions historically used for recipients and headers.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one == "" {
		*l = nil
		return nil
	}
	*l = []string{one}
	return nil
}

type submitPayload struct {
	To          StringList `json:"to"`
	Subject     string     `json:"subject"`
	Message     string     `json:"message"`
	Headers     StringList `json:"headers"`
	Attachments []string   `json:"attachments"`
}

type submitter interface {
	Submit(ctx context.Context, req submit.Request) (bool, error)
}

// SubmitHandler accepts outgoing mail over the HTTP API and hands it to the
// submission gate.
type SubmitHandler struct {
	BaseHandler
	gate submitter
}

func NewSubmitHandler(logger *slog.Logger, gate submitter) *SubmitHandler {
	return &SubmitHandler{BaseHandler: BaseHandler{Logger: logger}, gate: gate}
}

func (h *SubmitHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := h.readJSON(w, r, &payload); err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.To) == 0 {
		h.errorResponse(w, r, http.StatusBadRequest, "to is required")
		return
	}

	queued, err := h.gate.Submit(r.Context(), submit.Request{
		To:          payload.To,
		Subject:     payload.Subject,
		Message:     payload.Message,
		Headers:     payload.Headers,
		Attachments: payload.Attachments,
	})
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	if err := h.writeJSON(w, status, envelope{"queued": queued}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
