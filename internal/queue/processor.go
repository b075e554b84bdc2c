package queue

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/mailspool/internal/model"
	"github.com/mailspool/internal/spool"
)

// settingsSource supplies fresh settings at the start of every pass. Load
// failures have already been converted to defaults by the store.
type settingsSource interface {
	LoadOptions(ctx context.Context) model.Options
	LoadAdvanced(ctx context.Context) model.AdvancedOptions
}

// transport is the delivery capability plus the per-batch reconfiguration
// the processor applies before sending.
type transport interface {
	Send(ctx context.Context, env *model.Envelope) error
	Reconfigure(opts model.Options)
}

// Processor runs delivery passes over the queued partition and applies the
// state machine to each outcome.
type Processor struct {
	spool     *spool.Spool
	settings  settingsSource
	transport transport
	stats     *Stats
	logger    *slog.Logger

	// mu serializes passes. Overlapping triggers (a manual run racing the
	// scheduled one) otherwise double-attempt the same envelopes.
	mu sync.Mutex
}

func NewProcessor(sp *spool.Spool, settings settingsSource, t transport, stats *Stats, logger *slog.Logger) *Processor {
	return &Processor{spool: sp, settings: settings, transport: t, stats: stats, logger: logger}
}

// ProcessWithKey runs a pass for an externally triggered invocation. A
// missing or wrong key is a silent no-op so the endpoint gives an
// unauthenticated caller nothing to probe.
func (p *Processor) ProcessWithKey(ctx context.Context, key string) {
	opts := p.settings.LoadAdvanced(ctx)
	if opts.ProcessKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(opts.ProcessKey)) != 1 {
		p.logger.Debug("queue: unauthorized process trigger ignored")
		return
	}
	p.run(ctx, opts)
}

// Process runs a pass on behalf of the internal trigger.
func (p *Processor) Process(ctx context.Context) error {
	p.run(ctx, p.settings.LoadAdvanced(ctx))
	return nil
}

func (p *Processor) run(ctx context.Context, opts model.AdvancedOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	p.transport.Reconfigure(p.settings.LoadOptions(ctx))

	items, err := p.spool.List(model.PartitionQueued, opts.QueueLimit)
	if err != nil {
		p.logger.Error("queue: cannot enumerate queued mail", "err", err)
		return
	}

	sendTimeout := ProcessingTimeout(opts.CronInterval) / 2

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		p.attempt(ctx, item, opts, sendTimeout)
	}

	p.stats.RecordDelay(time.Since(start))
}

// attempt delivers one envelope and persists its transition. A failure here
// never touches the other envelopes in the pass.
func (p *Processor) attempt(ctx context.Context, item spool.Item, opts model.AdvancedOptions, sendTimeout time.Duration) {
	env := item.Envelope

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err := p.transport.Send(sendCtx, env)
	cancel()

	if err == nil {
		env.SentTime = time.Now().Unix()
		if uerr := p.spool.Update(model.PartitionQueued, item.ID, env); uerr != nil {
			p.logger.Error("queue: persist sent time", "id", item.ID, "err", uerr)
			return
		}
		if merr := p.spool.Move(model.PartitionQueued, model.PartitionSent, item.ID); merr != nil {
			p.logger.Error("queue: move to sent", "id", item.ID, "err", merr)
			return
		}
		p.logger.Info("queue: mail sent", "id", item.ID, "to", env.To)
		p.purgeSent(opts)
		return
	}

	p.stats.RecordNotice(err.Error())
	p.logger.Warn("queue: delivery failed", "id", item.ID, "to", env.To, "failures", env.Failures+1, "err", err)

	env.Failures++
	if uerr := p.spool.Update(model.PartitionQueued, item.ID, env); uerr != nil {
		p.logger.Error("queue: persist failure count", "id", item.ID, "err", uerr)
		return
	}
	if env.Failures > opts.MaxRetry {
		if merr := p.spool.Move(model.PartitionQueued, model.PartitionInvalid, item.ID); merr != nil {
			p.logger.Error("queue: move to invalid", "id", item.ID, "err", merr)
			return
		}
		p.logger.Warn("queue: retries exhausted, mail quarantined", "id", item.ID, "to", env.To, "failures", env.Failures)
	}
}

// purgeSent applies sent-partition retention. A size of zero removes every
// sent mail immediately, including the one the current pass just produced.
// That is deliberate: the default keeps no delivered content around.
func (p *Processor) purgeSent(opts model.AdvancedOptions) {
	if opts.SentStorageSize <= 0 {
		if _, err := p.spool.Purge(model.PartitionSent); err != nil {
			p.logger.Error("queue: purge sent", "err", err)
		}
		return
	}

	items, err := p.spool.List(model.PartitionSent, 0)
	if err != nil {
		p.logger.Error("queue: list sent", "err", err)
		return
	}
	// Oldest first; keep the most recent SentStorageSize records.
	for i := 0; i < len(items)-opts.SentStorageSize; i++ {
		if err := p.spool.Delete(model.PartitionSent, items[i].ID); err != nil {
			p.logger.Error("queue: prune sent", "id", items[i].ID, "err", err)
		}
	}
}

// Retry moves a quarantined envelope back into the queue with its failure
// counter reset.
func (p *Processor) Retry(id string) error {
	env, err := p.spool.Load(model.PartitionInvalid, id)
	if err != nil {
		return err
	}
	env.Failures = 0
	if err := p.spool.Update(model.PartitionInvalid, id, env); err != nil {
		return err
	}
	return p.spool.Move(model.PartitionInvalid, model.PartitionQueued, id)
}

// ProcessingTimeout is the per-pass budget: the trigger interval, capped at
// the scheduler's one-minute slot. Individual sends get half of it, so one
// stuck connection cannot starve the next trigger indefinitely.
func ProcessingTimeout(intervalSeconds int) time.Duration {
	if intervalSeconds <= 0 {
		intervalSeconds = 300
	}
	if intervalSeconds > 60 {
		intervalSeconds = 60
	}
	return time.Duration(intervalSeconds) * time.Second
}
