package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mailspool/internal/model"
)

type settingsStore interface {
	LoadOptions(ctx context.Context) model.Options
	SaveOptions(ctx context.Context, opts model.Options) error
	LoadAdvanced(ctx context.Context) model.AdvancedOptions
	SaveAdvanced(ctx context.Context, opts model.AdvancedOptions) error
}

type reconfigurer interface {
	Reconfigure(opts model.Options)
}

type refresher interface {
	Refresh()
}

// SettingsHandler serves the two option groups. Secrets are masked on the
// way out; a blank secret on the way in keeps the stored one.
type SettingsHandler struct {
	BaseHandler
	settings  settingsStore
	transport reconfigurer
	scheduler refresher
}

func NewSettingsHandler(logger *slog.Logger, settings settingsStore, transport reconfigurer, scheduler refresher) *SettingsHandler {
	return &SettingsHandler{BaseHandler: BaseHandler{Logger: logger}, settings: settings, transport: transport, scheduler: scheduler}
}

// Get returns the SMTP options with the password masked.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	opts := h.settings.LoadOptions(r.Context())
	opts.AuthPassword = ""
	if err := h.writeJSON(w, http.StatusOK, opts, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update saves the SMTP options and applies them to the transport.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var opts model.Options
	if err := h.readJSON(w, r, &opts); err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if opts.AuthPassword == "" {
		opts.AuthPassword = h.settings.LoadOptions(r.Context()).AuthPassword
	}
	if err := h.settings.SaveOptions(r.Context(), opts); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.transport.Reconfigure(opts)
	w.WriteHeader(http.StatusOK)
}

// GetAdvanced returns the queue engine options with the process key masked.
func (h *SettingsHandler) GetAdvanced(w http.ResponseWriter, r *http.Request) {
	opts := h.settings.LoadAdvanced(r.Context())
	opts.ProcessKey = ""
	if err := h.writeJSON(w, http.StatusOK, opts, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// UpdateAdvanced saves the queue engine options and re-arms the scheduler
// so a changed interval takes effect immediately.
func (h *SettingsHandler) UpdateAdvanced(w http.ResponseWriter, r *http.Request) {
	var opts model.AdvancedOptions
	if err := h.readJSON(w, r, &opts); err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if opts.ProcessKey == "" {
		opts.ProcessKey = h.settings.LoadAdvanced(r.Context()).ProcessKey
	}
	if err := h.settings.SaveAdvanced(r.Context(), opts); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.scheduler.Refresh()
	w.WriteHeader(http.StatusOK)
}
