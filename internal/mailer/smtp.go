package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mailspool/internal/model"
)

// DefaultTimeout bounds one SMTP conversation when the caller's context
// carries no tighter deadline.
const DefaultTimeout = 30 * time.Second

// Transport is the mail-sending capability the queue engine depends on.
type Transport interface {
	Send(ctx context.Context, env *model.Envelope) error
}

// SMTP delivers envelopes through a configured SMTP server. With no host
// configured it hands mail to the local MTA on port 25.
type SMTP struct {
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.RWMutex
	opts model.Options
}

// NewSMTP returns a transport. Call Reconfigure with current options before
// sending.
func NewSMTP(logger *slog.Logger) *SMTP {
	return &SMTP{logger: logger, timeout: DefaultTimeout}
}

// Reconfigure swaps in new connection options. The processor calls this
// with freshly loaded settings before each batch of sends.
func (t *SMTP) Reconfigure(opts model.Options) {
	t.mu.Lock()
	t.opts = opts
	t.mu.Unlock()
}

// Send delivers one envelope. The envelope's persisted headers are written
// as stored; only the mechanical To/Subject/Date lines and MIME structure
// are added here.
func (t *SMTP) Send(ctx context.Context, env *model.Envelope) error {
	t.mu.RLock()
	opts := t.opts
	t.mu.RUnlock()

	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		port = 25
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mailer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("mailer: set deadline: %w", err)
	}

	if opts.Encryption == "ssl" {
		conn = tls.Client(conn, &tls.Config{ServerName: host})
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("mailer: smtp.NewClient: %w", err)
	}
	defer client.Close()

	if err := client.Hello(localName()); err != nil {
		return fmt.Errorf("mailer: HELO rejected: %w", err)
	}

	if opts.Encryption == "tls" {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("mailer: STARTTLS: %w", err)
		}
	}

	if opts.UseAuthentication {
		auth := sasl.NewPlainClient("", opts.AuthUsername, opts.AuthPassword)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mailer: AUTH: %w", err)
		}
	}

	from := envelopeFrom(env, opts.FromEmail)
	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("mailer: MAIL FROM %s: %w", from, err)
	}
	for _, rcpt := range wireRecipients(env) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mailer: RCPT TO %s: %w", rcpt, err)
		}
	}

	msg, err := BuildMessage(env, time.Now())
	if err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mailer: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: close body: %w", err)
	}

	return client.Quit()
}

func localName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "localhost"
}
