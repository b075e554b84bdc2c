package queue

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/idna"

	"github.com/mailspool/internal/model"
)

type advancedLoader interface {
	LoadAdvanced(ctx context.Context) model.AdvancedOptions
}

type runner interface {
	Process(ctx context.Context) error
}

// Scheduler drives the recurring processing trigger. The interval is
// re-read from the settings store before every wait, so a changed setting
// takes effect without restarting; Refresh re-arms immediately.
type Scheduler struct {
	settings advancedLoader
	runner   runner
	logger   *slog.Logger
	refresh  chan struct{}
}

func NewScheduler(settings advancedLoader, r runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		settings: settings,
		runner:   r,
		logger:   logger,
		refresh:  make(chan struct{}, 1),
	}
}

// Refresh makes the scheduler re-read its settings right away, e.g. after
// the advanced options were updated.
func (s *Scheduler) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, firing a processing pass every
// interval. With the cron disabled it idles, waking only to re-check the
// setting.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		opts := s.settings.LoadAdvanced(ctx)

		wait := time.Duration(opts.CronInterval) * time.Second
		if wait <= 0 {
			wait = time.Duration(model.DefaultAdvancedOptions().CronInterval) * time.Second
		}
		if opts.DontUseCron {
			// Operator drives processing through the HTTP link instead.
			wait = time.Minute
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.refresh:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if opts.DontUseCron {
			continue
		}
		if err := s.runner.Process(ctx); err != nil {
			s.logger.Error("queue: scheduled pass failed", "err", err)
		}
	}
}

// CronLink builds the externally callable processing URL for the operator:
// site URL + the process path, the shared key, and a time cache-buster. A
// non-ASCII host is converted to punycode so the link works from plain
// cron tooling.
func CronLink(siteURL, key string, now time.Time) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		u = &url.URL{Scheme: "http", Host: siteURL}
	}

	host := u.Hostname()
	if ascii, err := idna.ToASCII(host); err == nil && ascii != host {
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}

	u.Path = "/process"
	q := url.Values{}
	q.Set("key", key)
	q.Set("time", strconv.FormatInt(now.Unix(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
