package model

// Options holds the SMTP connection settings. If Host is empty the
// transport falls back to handing mail to the local MTA on port 25.
type Options struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Encryption        string `json:"encryption"` // "", "ssl" or "tls" (STARTTLS)
	FromEmail         string `json:"fromEmail"`
	FromName          string `json:"fromName"`
	UseAuthentication bool   `json:"useAuthentication"`
	AuthUsername      string `json:"authUsername"`
	AuthPassword      string `json:"authPassword"`
}

// AdvancedOptions holds the queue engine settings. They are read fresh from
// the settings store on every processing pass.
type AdvancedOptions struct {
	// QueueLimit caps how many queued envelopes one pass may attempt.
	QueueLimit int `json:"queueLimit"`

	// MaxRetry is the failure count beyond which an envelope is moved to
	// the invalid partition.
	MaxRetry int `json:"maxRetry"`

	// MinRecipients is the submission gate threshold: mails with fewer
	// recipients bypass the queue and are sent immediately.
	MinRecipients int `json:"minRecipients"`

	// SentStorageSize is how many sent envelopes to retain. Zero means
	// every sent mail is purged right away, which is the default because
	// it keeps no mail content around longer than needed.
	SentStorageSize int `json:"sentStorageSize"`

	// CronInterval is the number of seconds between scheduled passes.
	CronInterval int `json:"cronInterval"`

	// DontUseCron disables the internal trigger; the operator is expected
	// to hit the HTTP processing link from an external cron instead.
	DontUseCron bool `json:"dontUseCron"`

	// ProcessKey authorizes external processing-pass invocations and the
	// admin API.
	ProcessKey string `json:"processKey"`
}

// DefaultAdvancedOptions mirrors the defaults applied on first activation.
// ProcessKey is left empty here; the settings store generates one.
func DefaultAdvancedOptions() AdvancedOptions {
	return AdvancedOptions{
		QueueLimit:      10,
		MaxRetry:        10,
		MinRecipients:   1,
		SentStorageSize: 0,
		CronInterval:    300,
	}
}
