package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// errNoChange tells jsonDocument.Update that the callback decided not to
// mutate anything, so the file must not be rewritten.
var errNoChange = errors.New("no change")

const (
	lockRetryDelay = 25 * time.Millisecond
	lockTimeout    = 10 * time.Second
)

// jsonDocument is a whole-collection JSON file. Every access runs under an
// in-process mutex plus an flock on a sidecar file, so the server, the worker
// and the reprocess CLI never interleave a read-modify-write.
type jsonDocument[T any] struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func newJSONDocument[T any](path string) *jsonDocument[T] {
	return &jsonDocument[T]{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (d *jsonDocument[T]) acquire(ctx context.Context) (func(), error) {
	d.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := d.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		d.mu.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("lock %s: %w", d.path, err)
	}

	return func() {
		_ = d.lock.Unlock()
		d.mu.Unlock()
	}, nil
}

// read loads the document. A missing file is an empty document.
func (d *jsonDocument[T]) read() (T, error) {
	var doc T
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("read %s: %w", d.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", d.path, err)
	}
	return doc, nil
}

// write replaces the document atomically via a temp file and rename.
func (d *jsonDocument[T]) write(doc T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", d.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", d.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("replace %s: %w", d.path, err)
	}
	return nil
}

// Read returns a snapshot of the document.
func (d *jsonDocument[T]) Read(ctx context.Context) (T, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return d.read()
}

// Update runs fn against the current document and persists the result unless
// fn returns errNoChange. Any other error aborts without writing.
func (d *jsonDocument[T]) Update(ctx context.Context, fn func(doc *T) error) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	doc, err := d.read()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	return d.write(doc)
}
