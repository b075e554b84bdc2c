package submit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mailspool/internal/mailer"
	"github.com/mailspool/internal/model"
	"github.com/mailspool/internal/spool"
)

// Request is one outgoing mail submission. Headers may be raw lines or a
// single newline-separated block already split by the caller.
type Request struct {
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	Message     string   `json:"message"`
	Headers     []string `json:"headers"`
	Attachments []string `json:"attachments"`
}

type advancedLoader interface {
	LoadAdvanced(ctx context.Context) model.AdvancedOptions
}

// Gate is the submission-time decision point: mails with enough recipients
// are spooled for asynchronous delivery, the rest pass straight through to
// the transport.
type Gate struct {
	settings  advancedLoader
	spool     *spool.Spool
	transport mailer.Transport
	resolver  *mailer.HeaderResolver
	logger    *slog.Logger
}

func NewGate(settings advancedLoader, sp *spool.Spool, transport mailer.Transport, resolver *mailer.HeaderResolver, logger *slog.Logger) *Gate {
	return &Gate{settings: settings, spool: sp, transport: transport, resolver: resolver, logger: logger}
}

// Submit routes one mail. It returns whether the mail was queued; a nil
// error means the mail was either durably stored or handed to the
// transport successfully.
//
// Header resolution happens here, exactly once. The persisted lines are
// final; processing passes send them as stored.
func (g *Gate) Submit(ctx context.Context, req Request) (bool, error) {
	opts := g.settings.LoadAdvanced(ctx)

	to := strings.Join(req.To, ",")
	env := &model.Envelope{
		To:          to,
		Subject:     req.Subject,
		Message:     req.Message,
		Headers:     g.resolver.Resolve(req.Headers),
		Attachments: req.Attachments,
		Time:        time.Now().Unix(),
	}

	if len(strings.Split(to, ",")) >= opts.MinRecipients {
		id, err := g.spool.Store(env)
		if err != nil {
			// The content is not queued; the caller must treat this as a
			// failed send.
			return false, err
		}
		g.logger.Info("submit: mail queued", "id", id, "to", to)
		return true, nil
	}

	if err := g.transport.Send(ctx, env); err != nil {
		return false, err
	}
	g.logger.Info("submit: mail sent directly", "to", to)
	return false, nil
}
