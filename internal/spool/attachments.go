package spool

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const attachmentsDir = "attachments"

// storeAttachments copies each source file into a fresh randomized
// subdirectory under the attachments area and returns the stable locations.
// A copy failure drops that one attachment and is logged; the submission
// itself is not aborted.
func (s *Spool) storeAttachments(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	stored := make([]string, 0, len(sources))
	for _, src := range sources {
		dir, err := s.randomDir()
		if err != nil {
			s.logger.Error("spool: attachment dir", "source", src, "err", err)
			continue
		}
		dst := uniquePath(dir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			s.logger.Error("spool: unable to copy attachment", "source", src, "dest", dst, "err", err)
			continue
		}
		stored = append(stored, dst)
	}
	return stored
}

// randomDir allocates a new empty directory under the attachments area,
// retrying until the name is unused.
func (s *Spool) randomDir() (string, error) {
	base := filepath.Join(s.root, attachmentsDir)
	for {
		dir := filepath.Join(base, uuid.NewString())
		if _, err := os.Stat(dir); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", err
		}
		return dir, nil
	}
}

// uniquePath returns dir/name, suffixing the stem until no such file exists.
func uniquePath(dir, name string) string {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	p := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return p
		}
		p = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// Owner-read-only once the copy is complete.
	return os.Chmod(dst, 0o400)
}

// removeAttachments deletes stored attachment files, pruning a parent
// directory that becomes empty. Files already gone are skipped silently.
func (s *Spool) removeAttachments(locations []string) {
	for _, loc := range locations {
		if err := os.Remove(loc); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("spool: remove attachment", "path", loc, "err", err)
			continue
		}
		dir := filepath.Dir(loc)
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
}
