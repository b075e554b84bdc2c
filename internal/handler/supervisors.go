package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/mailspool/internal/model"
	"github.com/mailspool/internal/queue"
	"github.com/mailspool/internal/spool"
)

type retrier interface {
	Retry(id string) error
}

// SupervisorHandler exposes the operator views over the spool partitions:
// listing, deletion, retry, bulk actions, purges and the processing
// diagnostics.
type SupervisorHandler struct {
	BaseHandler
	spool     *spool.Spool
	processor retrier
	stats     *queue.Stats
	settings  advancedLoader
	siteURL   string
}

type advancedLoader interface {
	LoadAdvanced(ctx context.Context) model.AdvancedOptions
}

func NewSupervisorHandler(logger *slog.Logger, sp *spool.Spool, processor retrier, stats *queue.Stats, settings advancedLoader, siteURL string) *SupervisorHandler {
	return &SupervisorHandler{
		BaseHandler: BaseHandler{Logger: logger},
		spool:       sp,
		processor:   processor,
		stats:       stats,
		settings:    settings,
		siteURL:     siteURL,
	}
}

func (h *SupervisorHandler) partition(w http.ResponseWriter, r *http.Request) (model.Partition, bool) {
	p, ok := model.ParsePartition(chi.URLParam(r, "partition"))
	if !ok {
		h.errorResponse(w, r, http.StatusNotFound, "unknown partition")
	}
	return p, ok
}

// List returns every record in a partition, ignoring the queue limit.
func (h *SupervisorHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := h.partition(w, r)
	if !ok {
		return
	}
	items, err := h.spool.List(p, 0)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"items": items, "count": len(items)}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Delete removes one record with its attachments. Deleting an id that is
// already gone still answers 204.
func (h *SupervisorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.partition(w, r)
	if !ok {
		return
	}
	if err := h.spool.Delete(p, chi.URLParam(r, "id")); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retry moves one quarantined record back into the queue.
func (h *SupervisorHandler) Retry(w http.ResponseWriter, r *http.Request) {
	err := h.processor.Retry(chi.URLParam(r, "id"))
	if errors.Is(err, spool.ErrNotFound) {
		h.errorResponse(w, r, http.StatusNotFound, "no such record")
		return
	}
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkPayload struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
}

// Bulk applies retry or delete to a set of records in one partition. Retry
// is only meaningful for the invalid partition.
func (h *SupervisorHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	p, ok := h.partition(w, r)
	if !ok {
		return
	}
	var payload bulkPayload
	if err := h.readJSON(w, r, &payload); err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	done := 0
	switch payload.Action {
	case "delete":
		for _, id := range payload.IDs {
			if err := h.spool.Delete(p, id); err != nil {
				h.logError(r, err)
				continue
			}
			done++
		}
	case "retry":
		if p != model.PartitionInvalid {
			h.errorResponse(w, r, http.StatusBadRequest, "retry only applies to the invalid partition")
			return
		}
		for _, id := range payload.IDs {
			if err := h.processor.Retry(id); err != nil {
				h.logError(r, err)
				continue
			}
			done++
		}
	default:
		h.errorResponse(w, r, http.StatusBadRequest, "unknown action")
		return
	}

	if err := h.writeJSON(w, http.StatusOK, envelope{"done": done}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Purge deletes every record in the invalid or sent partition.
func (h *SupervisorHandler) Purge(w http.ResponseWriter, r *http.Request) {
	p, ok := h.partition(w, r)
	if !ok {
		return
	}
	if p == model.PartitionQueued {
		h.errorResponse(w, r, http.StatusBadRequest, "the queued partition cannot be purged")
		return
	}
	n, err := h.spool.Purge(p)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"purged": n}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Processing reports the trigger diagnostics: the authorized per-pass
// budget, the maximum delay observed over the last 24 hours, the last
// transport warning, the external cron link and spool disk usage.
func (h *SupervisorHandler) Processing(w http.ResponseWriter, r *http.Request) {
	opts := h.settings.LoadAdvanced(r.Context())

	usage, err := h.spool.DiskUsage()
	if err != nil {
		h.logError(r, err)
	}

	data := envelope{
		"timeoutSeconds":  int(queue.ProcessingTimeout(opts.CronInterval).Seconds()),
		"maxDelaySeconds": int(h.stats.MaxDelay().Seconds()),
		"notice":          h.stats.Notice(),
		"cronLink":        queue.CronLink(h.siteURL, opts.ProcessKey, time.Now()),
		"cronEnabled":     !opts.DontUseCron,
		"spoolUsage":      humanize.Bytes(uint64(usage)),
	}
	if err := h.writeJSON(w, http.StatusOK, data, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
