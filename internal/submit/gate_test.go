package submit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/mailspool/internal/mailer"
	"github.com/mailspool/internal/model"
	"github.com/mailspool/internal/spool"
)

type stubSettings struct {
	opts model.AdvancedOptions
}

func (s *stubSettings) LoadAdvanced(context.Context) model.AdvancedOptions { return s.opts }

type stubTransport struct {
	sent []*model.Envelope
	err  error
}

func (t *stubTransport) Send(_ context.Context, env *model.Envelope) error {
	t.sent = append(t.sent, env)
	return t.err
}

func newTestGate(t *testing.T, minRecipients int) (*Gate, *spool.Spool, *stubTransport) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sp, err := spool.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to open spool: %v", err)
	}
	opts := model.DefaultAdvancedOptions()
	opts.MinRecipients = minRecipients
	settings := &stubSettings{opts: opts}
	transport := &stubTransport{}
	resolver := &mailer.HeaderResolver{SiteURL: "https://example.com", FromName: "Mailspool"}
	return NewGate(settings, sp, transport, resolver, logger), sp, transport
}

func TestSubmit_AtThresholdQueuesWithoutSending(t *testing.T) {
	gate, sp, transport := newTestGate(t, 2)

	queued, err := gate.Submit(context.Background(), Request{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "s",
		Message: "m",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !queued {
		t.Fatal("expected the mail to be queued")
	}
	if len(transport.sent) != 0 {
		t.Error("a queued mail must not touch the transport")
	}

	items, err := sp.List(model.PartitionQueued, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queued record, got %d", len(items))
	}
	if items[0].Envelope.To != "a@example.com,b@example.com" {
		t.Errorf("unexpected recipient list: %q", items[0].Envelope.To)
	}
}

func TestSubmit_BelowThresholdSendsDirectly(t *testing.T) {
	gate, sp, transport := newTestGate(t, 2)

	queued, err := gate.Submit(context.Background(), Request{
		To:      []string{"only@example.com"},
		Subject: "s",
		Message: "m",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if queued {
		t.Fatal("expected a direct send, not a queue")
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 direct send, got %d", len(transport.sent))
	}
	if count, _ := sp.Count(model.PartitionQueued); count != 0 {
		t.Errorf("a direct send must leave the spool empty, got %d records", count)
	}
}

func TestSubmit_ThresholdOneQueuesEverything(t *testing.T) {
	gate, _, transport := newTestGate(t, 1)

	queued, err := gate.Submit(context.Background(), Request{To: []string{"only@example.com"}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !queued {
		t.Fatal("a threshold of one must queue single-recipient mail")
	}
	if len(transport.sent) != 0 {
		t.Error("a queued mail must not touch the transport")
	}
}

func TestSubmit_DirectSendErrorPropagates(t *testing.T) {
	gate, _, transport := newTestGate(t, 5)
	transport.err = errors.New("connection refused")

	queued, err := gate.Submit(context.Background(), Request{To: []string{"a@example.com"}})
	if err == nil {
		t.Fatal("expected the transport error to propagate")
	}
	if queued {
		t.Error("a failed direct send is not a queue")
	}
}

func TestSubmit_HeadersResolvedAtSubmission(t *testing.T) {
	gate, sp, _ := newTestGate(t, 1)

	if _, err := gate.Submit(context.Background(), Request{To: []string{"a@example.com"}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	items, err := sp.List(model.PartitionQueued, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 queued record, got %d (err %v)", len(items), err)
	}
	env := items[0].Envelope
	if len(env.Headers) < 2 {
		t.Fatalf("expected resolved From and Content-Type, got %v", env.Headers)
	}
	if env.Headers[0] != "From: Mailspool <mail@example.com>" {
		t.Errorf("unexpected resolved From: %q", env.Headers[0])
	}
	if env.Headers[1] != "Content-Type: text/plain; charset=UTF-8" {
		t.Errorf("unexpected resolved Content-Type: %q", env.Headers[1])
	}
}
