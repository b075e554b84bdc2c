package queue

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mailspool/internal/model"
)

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) Process(context.Context) error {
	r.runs.Add(1)
	return nil
}

func TestScheduler_FiresOnInterval(t *testing.T) {
	settings := &stubSettings{advanced: model.AdvancedOptions{CronInterval: 1}}
	runner := &countingRunner{}
	s := NewScheduler(settings, runner, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := runner.runs.Load(); got < 1 || got > 3 {
		t.Errorf("expected roughly 2 passes over 2.5s at a 1s interval, got %d", got)
	}
}

func TestScheduler_DisabledCronNeverFires(t *testing.T) {
	settings := &stubSettings{advanced: model.AdvancedOptions{CronInterval: 1, DontUseCron: true}}
	runner := &countingRunner{}
	s := NewScheduler(settings, runner, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := runner.runs.Load(); got != 0 {
		t.Errorf("disabled cron must never run a pass, got %d", got)
	}
}

func TestScheduler_RefreshDoesNotBlock(t *testing.T) {
	s := NewScheduler(&stubSettings{}, &countingRunner{}, testLogger())
	// Nobody is listening; repeated calls must still return immediately.
	s.Refresh()
	s.Refresh()
	s.Refresh()
}

func TestCronLink_CarriesKeyAndCacheBuster(t *testing.T) {
	now := time.Unix(1756000000, 0)
	link := CronLink("https://example.com", "secret123", now)

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	if u.Path != "/process" {
		t.Errorf("expected path /process, got %s", u.Path)
	}
	if got := u.Query().Get("key"); got != "secret123" {
		t.Errorf("expected the process key in the query, got %q", got)
	}
	if got := u.Query().Get("time"); got != "1756000000" {
		t.Errorf("expected the unix time cache-buster, got %q", got)
	}
}

func TestCronLink_PunycodesUnicodeHost(t *testing.T) {
	link := CronLink("https://bücher.example:8443", "k", time.Unix(0, 0))
	if !strings.Contains(link, "xn--bcher-kva.example:8443") {
		t.Errorf("expected a punycoded host with the port kept, got %s", link)
	}
}

func TestCronLink_BareHostGetsScheme(t *testing.T) {
	link := CronLink("", "k", time.Unix(0, 0))
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	if u.Scheme != "http" || u.Path != "/process" {
		t.Errorf("expected an http /process link even without a site URL, got %s", link)
	}
}

func TestStats_DelayWindow(t *testing.T) {
	s := NewStats()
	if s.MaxDelay() != 0 {
		t.Error("expected zero max delay before any pass")
	}

	s.RecordDelay(2 * time.Second)
	s.RecordDelay(5 * time.Second)
	s.RecordDelay(1 * time.Second)
	if got := s.MaxDelay(); got != 5*time.Second {
		t.Errorf("expected the maximum to stick, got %v", got)
	}
}

func TestStats_Notice(t *testing.T) {
	s := NewStats()
	if s.Notice() != "" {
		t.Error("expected no notice initially")
	}
	s.RecordNotice("connection refused")
	if got := s.Notice(); got != "connection refused" {
		t.Errorf("expected the recorded notice, got %q", got)
	}
	s.RecordNotice("timeout")
	if got := s.Notice(); got != "timeout" {
		t.Errorf("expected the latest notice, got %q", got)
	}
}
