package spool

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailspool/internal/model"
)

const recordSuffix = ".json"

// ErrNotFound is returned when a record id does not exist in the requested
// partition.
var ErrNotFound = errors.New("spool: record not found")

// Spool is the durable envelope store. Each envelope is one JSON file whose
// name is a sortable opaque id, so directory enumeration in name order is
// insertion order. Queued records live in the spool root, the other
// partitions in subdirectories.
type Spool struct {
	root   string
	logger *slog.Logger
}

// Item pairs a record id with its decoded envelope.
type Item struct {
	ID       string          `json:"id"`
	Envelope *model.Envelope `json:"envelope"`
}

// New opens (creating if needed) the spool rooted at dir. The root and its
// partitions are created with owner-only access.
func New(dir string, logger *slog.Logger) (*Spool, error) {
	s := &Spool{root: dir, logger: logger}
	for _, d := range []string{
		dir,
		filepath.Join(dir, string(model.PartitionInvalid)),
		filepath.Join(dir, string(model.PartitionSent)),
		filepath.Join(dir, attachmentsDir),
	} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, fmt.Errorf("spool: create %s: %w", d, err)
		}
	}
	return s, nil
}

// Root returns the spool root directory.
func (s *Spool) Root() string { return s.root }

func (s *Spool) dir(p model.Partition) string {
	if p == model.PartitionQueued {
		return s.root
	}
	return filepath.Join(s.root, string(p))
}

func (s *Spool) path(p model.Partition, id string) string {
	return filepath.Join(s.dir(p), id+recordSuffix)
}

// newID returns an id that sorts lexically by creation time. The uuid
// fragment keeps ids unique within one nanosecond.
func newID(now time.Time) string {
	return fmt.Sprintf("%016x.%s", now.UnixNano(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Store persists env as a new queued record and returns its id. Attachment
// sources are copied into the spool first; the stored locations replace the
// originals on the envelope. A failed write reports an error and queues
// nothing.
func (s *Spool) Store(env *model.Envelope) (string, error) {
	now := time.Now()
	if env.Time == 0 {
		env.Time = now.Unix()
	}
	env.Attachments = s.storeAttachments(env.Attachments)

	id := newID(now)
	if err := s.write(model.PartitionQueued, id, env); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Spool) write(p model.Partition, id string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("spool: encode %s: %w", id, err)
	}
	// Write-then-rename keeps half-written records out of partition scans.
	final := s.path(p, id)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("spool: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("spool: rename %s: %w", tmp, err)
	}
	return nil
}

// List enumerates a partition in insertion order. limit caps the result;
// zero or negative means unlimited (the administrative view-all case).
func (s *Spool) List(p model.Partition, limit int) ([]Item, error) {
	entries, err := os.ReadDir(s.dir(p))
	if err != nil {
		return nil, fmt.Errorf("spool: list %s: %w", p, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	items := make([]Item, 0, len(names))
	for _, name := range names {
		id := strings.TrimSuffix(name, recordSuffix)
		env, err := s.Load(p, id)
		if err != nil {
			// A record deleted between the scan and the read is not an
			// error for the enumeration.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			s.logger.Warn("spool: skipping unreadable record", "partition", p, "id", id, "err", err)
			continue
		}
		items = append(items, Item{ID: id, Envelope: env})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// Load reads one record.
func (s *Spool) Load(p model.Partition, id string) (*model.Envelope, error) {
	data, err := os.ReadFile(s.path(p, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("spool: read %s: %w", id, err)
	}
	env := &model.Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("spool: decode %s: %w", id, err)
	}
	return env, nil
}

// Update rewrites a record in place, e.g. to bump the failure counter or
// stamp the sent time.
func (s *Spool) Update(p model.Partition, id string, env *model.Envelope) error {
	return s.write(p, id, env)
}

// Move relocates a record between partitions, preserving id and content.
func (s *Spool) Move(from, to model.Partition, id string) error {
	if err := os.Rename(s.path(from, id), s.path(to, id)); err != nil {
		return fmt.Errorf("spool: move %s %s->%s: %w", id, from, to, err)
	}
	return nil
}

// Delete removes a record together with its attachments. Deleting an id
// that is already gone is a no-op.
func (s *Spool) Delete(p model.Partition, id string) error {
	env, err := s.Load(p, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(p, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("spool: delete %s: %w", id, err)
	}
	s.removeAttachments(env.Attachments)
	return nil
}

// Purge deletes every record in a partition and returns how many went away.
func (s *Spool) Purge(p model.Partition) (int, error) {
	items, err := s.List(p, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if err := s.Delete(p, it.ID); err != nil {
			s.logger.Warn("spool: purge delete failed", "partition", p, "id", it.ID, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

// Count returns the number of records in a partition.
func (s *Spool) Count(p model.Partition) (int, error) {
	items, err := s.List(p, 0)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// DiskUsage walks the spool and sums file sizes, for the diagnostics view.
func (s *Spool) DiskUsage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
