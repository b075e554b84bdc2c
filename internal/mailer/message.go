package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mailspool/internal/model"
)

// BuildMessage assembles the wire format for an envelope: the persisted
// header lines byte-for-byte, the mechanical To/Subject/Date/MIME-Version
// additions, and the body. Attachments wrap the body in multipart/mixed
// with the persisted Content-Type carried into the first part. Bcc lines
// address recipients but never appear on the wire.
func BuildMessage(env *model.Envelope, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "To: %s\r\n", env.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", env.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	contentType := defaultContentType + "; charset=" + defaultCharset
	for _, line := range env.Headers {
		name, value, _ := strings.Cut(line, ":")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "bcc":
			continue
		case "content-type":
			contentType = strings.TrimSpace(value)
			continue
		case "to", "subject", "date", "mime-version":
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}

	if len(env.Attachments) == 0 {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", contentType)
		buf.WriteString(toCRLF(env.Message))
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", contentType)
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(toCRLF(env.Message))); err != nil {
		return nil, err
	}

	for _, path := range env.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("mailer: read attachment %s: %w", path, err)
		}
		name := filepath.Base(path)
		ct := mime.TypeByExtension(filepath.Ext(name))
		if ct == "" {
			ct = "application/octet-stream"
		}

		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", ct)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

		attPart, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		// 76-character lines per RFC 2045.
		for i := 0; i < len(encoded); i += 76 {
			end := i + 76
			if end > len(encoded) {
				end = len(encoded)
			}
			if _, err := attPart.Write([]byte(encoded[i:end] + "\r\n")); err != nil {
				return nil, err
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// envelopeFrom extracts the return-path address from the persisted From
// header. fallback is used when no From line parses.
func envelopeFrom(env *model.Envelope, fallback string) string {
	for _, line := range env.Headers {
		name, value, _ := strings.Cut(line, ":")
		if strings.EqualFold(strings.TrimSpace(name), "from") {
			if addr, err := mail.ParseAddress(strings.TrimSpace(value)); err == nil {
				return addr.Address
			}
		}
	}
	return fallback
}

// wireRecipients collects every delivery recipient: the To list plus any
// persisted Cc and Bcc headers.
func wireRecipients(env *model.Envelope) []string {
	rcpts := env.Recipients()
	for _, line := range env.Headers {
		name, value, _ := strings.Cut(line, ":")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cc", "bcc":
			if addrs, err := mail.ParseAddressList(strings.TrimSpace(value)); err == nil {
				for _, a := range addrs {
					rcpts = append(rcpts, a.Address)
				}
			}
		}
	}
	return rcpts
}

func toCRLF(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}
