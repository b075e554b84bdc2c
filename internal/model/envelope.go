package model

import (
	"strings"
	"time"
)

// Partition identifies one of the spool's on-disk namespaces. An envelope
// lives in exactly one partition at any instant.
type Partition string

const (
	PartitionQueued  Partition = "queued"
	PartitionInvalid Partition = "invalid"
	PartitionSent    Partition = "sent"
)

// ParsePartition maps a URL/API name to a Partition.
func ParsePartition(s string) (Partition, bool) {
	switch Partition(s) {
	case PartitionQueued, PartitionInvalid, PartitionSent:
		return Partition(s), true
	}
	return "", false
}

// Envelope is one spooled mail item. The JSON keys are the record format
// carried over from earlier releases, so existing spools stay readable.
type Envelope struct {
	// To is the comma-joined recipient list.
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`

	// Headers are fully resolved raw header lines. From and Content-Type
	// are materialized at submission time; the processor sends them as
	// persisted and never re-resolves.
	Headers []string `json:"headers"`

	// Attachments are stable file paths inside the spool's attachment area.
	Attachments []string `json:"attachments"`

	// Time is the unix timestamp of when the envelope was stored.
	Time int64 `json:"time"`

	// Failures counts delivery attempts that did not succeed. It only
	// grows while the envelope is queued; an operator retry resets it.
	Failures int `json:"failures"`

	// SentTime is set once the envelope transitions to the sent partition.
	SentTime int64 `json:"sent_time,omitempty"`
}

// Recipients splits the comma-joined recipient list, trimming whitespace.
func (e *Envelope) Recipients() []string {
	parts := strings.Split(e.To, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CreatedAt returns the store time as a time.Time.
func (e *Envelope) CreatedAt() time.Time {
	return time.Unix(e.Time, 0)
}

// SentAt returns the sent time, zero if the envelope was never sent.
func (e *Envelope) SentAt() time.Time {
	if e.SentTime == 0 {
		return time.Time{}
	}
	return time.Unix(e.SentTime, 0)
}
