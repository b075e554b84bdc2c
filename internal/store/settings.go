package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strconv"

	"github.com/mailspool/internal/crypto"
	dbpkg "github.com/mailspool/internal/db"
	"github.com/mailspool/internal/model"
)

const (
	optionsName  = "mailspool_options"
	advancedName = "mailspool_advanced"
	versionName  = "schema_version"
)

// schemaVersion is the current settings schema. Migration steps below bring
// older stored blobs forward, one version at a time.
const schemaVersion = 2

// SettingsStore persists the two option groups in the options table, both
// encrypted at rest because the SMTP group carries credentials and the
// advanced group carries the process key.
//
// Reads never fail the caller: an unreadable store yields defaults.
type SettingsStore struct {
	q       *dbpkg.Queries
	crypter *crypto.Crypter
	logger  *slog.Logger
}

func NewSettingsStore(pool *sql.DB, crypter *crypto.Crypter, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{q: dbpkg.New(pool), crypter: crypter, logger: logger}
}

// LoadOptions returns the SMTP connection settings. Seeds from env vars on
// first use.
func (s *SettingsStore) LoadOptions(ctx context.Context) model.Options {
	var opts model.Options
	err := s.load(ctx, optionsName, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		opts = optionsFromEnv()
		if saveErr := s.SaveOptions(ctx, opts); saveErr != nil {
			s.logger.Warn("settings: seeding options failed", "err", saveErr)
		}
		return opts
	}
	if err != nil {
		s.logger.Warn("settings: falling back to default options", "err", err)
		return optionsFromEnv()
	}
	return opts
}

// SaveOptions persists the SMTP connection settings.
func (s *SettingsStore) SaveOptions(ctx context.Context, opts model.Options) error {
	return s.save(ctx, optionsName, opts)
}

// LoadAdvanced returns the queue engine settings. On first use defaults are
// written with a freshly generated process key.
func (s *SettingsStore) LoadAdvanced(ctx context.Context) model.AdvancedOptions {
	var opts model.AdvancedOptions
	err := s.load(ctx, advancedName, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		opts = model.DefaultAdvancedOptions()
		opts.ProcessKey = generateKey(16)
		if saveErr := s.SaveAdvanced(ctx, opts); saveErr != nil {
			s.logger.Warn("settings: seeding advanced options failed", "err", saveErr)
		}
		return opts
	}
	if err != nil {
		// Defaults without a process key: the external trigger stays shut
		// rather than open.
		s.logger.Warn("settings: falling back to default advanced options", "err", err)
		return model.DefaultAdvancedOptions()
	}
	return opts
}

// SaveAdvanced persists the queue engine settings.
func (s *SettingsStore) SaveAdvanced(ctx context.Context, opts model.AdvancedOptions) error {
	return s.save(ctx, advancedName, opts)
}

func (s *SettingsStore) load(ctx context.Context, name string, dst any) error {
	data, err := s.q.GetOption(ctx, name)
	if err != nil {
		return err
	}
	plaintext, err := s.crypter.Decrypt(data)
	if err != nil {
		return fmt.Errorf("decrypt %s: %w", name, err)
	}
	return json.Unmarshal(plaintext, dst)
}

func (s *SettingsStore) save(ctx context.Context, name string, src any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	ciphertext, err := s.crypter.Encrypt(raw)
	if err != nil {
		return err
	}
	return s.q.UpsertOption(ctx, name, ciphertext)
}

// Migrate applies the ordered settings-schema steps above the stored
// version. New installations start at the current version directly.
func (s *SettingsStore) Migrate(ctx context.Context) error {
	current := 0
	if data, err := s.q.GetOption(ctx, versionName); err == nil {
		current, _ = strconv.Atoi(string(data))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	steps := []struct {
		version int
		apply   func(context.Context) error
	}{
		// v1: baseline — options table managed by SQL migrations.
		{1, func(context.Context) error { return nil }},
		// v2: earlier installations had no process key; generate one so
		// the external trigger keeps working after upgrade.
		{2, s.ensureProcessKey},
	}
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		if err := step.apply(ctx); err != nil {
			return fmt.Errorf("settings migration to v%d: %w", step.version, err)
		}
		if err := s.q.UpsertOption(ctx, versionName, []byte(strconv.Itoa(step.version))); err != nil {
			return err
		}
		s.logger.Info("settings: schema migrated", "version", step.version)
	}
	return nil
}

func (s *SettingsStore) ensureProcessKey(ctx context.Context) error {
	var opts model.AdvancedOptions
	err := s.load(ctx, advancedName, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.ProcessKey != "" {
		return nil
	}
	opts.ProcessKey = generateKey(16)
	return s.SaveAdvanced(ctx, opts)
}

func optionsFromEnv() model.Options {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	return model.Options{
		Host:              os.Getenv("SMTP_HOST"),
		Port:              port,
		Encryption:        os.Getenv("SMTP_ENCRYPTION"),
		FromEmail:         os.Getenv("SMTP_FROM_ADDRESS"),
		FromName:          os.Getenv("SMTP_FROM_NAME"),
		UseAuthentication: os.Getenv("SMTP_USER") != "",
		AuthUsername:      os.Getenv("SMTP_USER"),
		AuthPassword:      os.Getenv("SMTP_PASS"),
	}
}

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateKey produces a random alphanumeric shared secret.
func generateKey(length int) string {
	out := make([]byte, length)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = keyAlphabet[n.Int64()]
	}
	return string(out)
}
