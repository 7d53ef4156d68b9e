package persist

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ruvnet/tokenfield/internal/errors"
)

const (
	blobExt = ".chronicle"
	logExt  = ".log"
)

// FileStore persists snapshots as flat files: one blob per session plus an
// optional sidecar action log.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) blobPath(session string) string {
	return filepath.Join(s.dir, session+blobExt)
}

func (s *FileStore) logPath(session string) string {
	return filepath.Join(s.dir, session+logExt)
}

// SaveSnapshot writes the blob and, when present, the sidecar log.
func (s *FileStore) SaveSnapshot(ctx context.Context, session string, snap *Snapshot) error {
	if err := os.WriteFile(s.blobPath(session), snap.Blob, 0o644); err != nil {
		return err
	}
	if snap.Log != nil {
		return os.WriteFile(s.logPath(session), snap.Log, 0o644)
	}
	return nil
}

// LoadSnapshot reads the blob and sidecar log if present.
func (s *FileStore) LoadSnapshot(ctx context.Context, session string) (*Snapshot, error) {
	blob, err := os.ReadFile(s.blobPath(session))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CorruptDocument, "session %s not found", session)
		}
		return nil, err
	}
	snap := &Snapshot{Blob: blob}
	if log, err := os.ReadFile(s.logPath(session)); err == nil {
		snap.Log = log
	}
	return snap, nil
}

// ListSessions returns the stored session names.
func (s *FileStore) ListSessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), blobExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), blobExt))
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes the session's files.
func (s *FileStore) Delete(ctx context.Context, session string) error {
	if err := os.Remove(s.blobPath(session)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.logPath(session)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
