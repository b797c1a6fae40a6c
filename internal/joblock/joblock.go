// Package joblock keeps scheduled jobs from running in more than one process
// at a time.
package joblock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Lock hands out named slots backed by files in a shared directory. A slot
// stays taken for the hold-over period after it was acquired, which must be
// longer than the job it guards. Slots are never released early, so a
// process whose clock runs a little behind does not repeat a job another
// process already ran.
type Lock struct {
	dir      string
	holdOver time.Duration
	owner    string

	now func() time.Time
}

// New creates a lock using files in dir.
func New(dir string, holdOver time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	return &Lock{dir: dir, holdOver: holdOver, owner: uuid.NewString(), now: time.Now}, nil
}

func (l *Lock) path(name string) string {
	return filepath.Join(l.dir, name+".lock")
}

// TryAcquire takes the named slot. It returns false without error when
// another process holds it.
func (l *Lock) TryAcquire(name string) (bool, error) {
	path := l.path(name)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(l.owner)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return false, fmt.Errorf("writing lock %s: %w", name, errors.Join(werr, cerr))
			}
			// Touch with our clock so staleness is judged consistently.
			now := l.now()
			if err := os.Chtimes(path, now, now); err != nil {
				return false, fmt.Errorf("stamping lock %s: %w", name, err)
			}
			return true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, fmt.Errorf("creating lock %s: %w", name, err)
		}

		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("checking lock %s: %w", name, err)
		}
		if l.now().Sub(info.ModTime()) < l.holdOver {
			return false, nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("removing stale lock %s: %w", name, err)
		}
	}
	return false, nil
}

// Owner returns the token written into lock files taken by this process.
func (l *Lock) Owner() string {
	return l.owner
}

// Holder returns the owner token of the named slot, or "" if it is free.
func (l *Lock) Holder(name string) (string, error) {
	data, err := os.ReadFile(l.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading lock %s: %w", name, err)
	}
	return string(data), nil
}
