// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
)

const maxBackupFileIndex = 1000

// ErrBackupExhausted is returned by openBackupFile when 1000 consecutive
// backup-N.zst names are already taken.
var ErrBackupExhausted = fmt.Errorf("backup directory exhausted %d candidate file names", maxBackupFileIndex)

// rotateSize is the size threshold that triggers a backup file switch.
const rotateSize = 5 * 1024 * 1024

// BackupStore is the durable, append-only spool used while the Connector
// cannot reach the gateway. Writes are append-only to a zstd stream over
// the current file; other files in the directory are eligible for upload
// once the current file rotates past them.
type BackupStore struct {
	dir string
	log *slog.Logger

	mu          sync.Mutex
	currentPath string
	file        *os.File
	fileLock    *flock.Flock
	encoder     *zstd.Encoder
	written     int64
}

// OpenBackupStore ensures dir exists and opens the first free
// backup-N.zst file as the current spool target.
func OpenBackupStore(dir string, log *slog.Logger) (*BackupStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	s := &BackupStore{dir: dir, log: log}
	if err := s.openNew(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BackupStore) openNew() error {
	for n := 0; n < maxBackupFileIndex; n++ {
		path := filepath.Join(s.dir, fmt.Sprintf("backup-%d.zst", n))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return fmt.Errorf("creating backup file %s: %w", path, err)
		}

		// Hold an exclusive advisory lock on the file for as long as it is
		// the current spool target, mirroring the original agent's
		// FILE_SHARE_NONE open mode: nothing else (in particular, the
		// upload sweep) may read it until it is closed or rotated away.
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil || !locked {
			f.Close()
			return fmt.Errorf("locking backup file %s: %w", path, err)
		}

		enc, err := zstd.NewWriter(f)
		if err != nil {
			fl.Unlock()
			f.Close()
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		s.currentPath = path
		s.file = f
		s.fileLock = fl
		s.encoder = enc
		s.written = 0
		return nil
	}
	return ErrBackupExhausted
}

// WriteRecord appends one pre-serialized record followed by a newline to
// the current backup file. A write failure panics — this is the agent's
// last line of defence against data loss and is deliberately fatal.
func (s *BackupStore) WriteRecord(record []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(record)
}

// WriteRaw appends an already-formatted batch payload (e.g. a drained
// BatchBuffer) followed by a newline in one call.
func (s *BackupStore) WriteRaw(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(payload)
}

func (s *BackupStore) writeLocked(payload []byte) {
	n, err := s.encoder.Write(payload)
	if err == nil {
		_, err = s.encoder.Write([]byte{'\n'})
		n++
	}
	if err != nil {
		panic(fmt.Sprintf("agent: backup write failed, cannot continue safely: %v", err))
	}
	s.written += int64(n)

	if s.written >= rotateSize {
		if rotErr := s.switchLocked(); rotErr != nil {
			panic(fmt.Sprintf("agent: backup rotation failed: %v", rotErr))
		}
	}
}

// Switch flushes and closes the current file, then opens a new one.
func (s *BackupStore) Switch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchLocked()
}

func (s *BackupStore) switchLocked() error {
	if err := s.encoder.Close(); err != nil {
		s.fileLock.Unlock()
		s.file.Close()
		return fmt.Errorf("closing zstd encoder: %w", err)
	}
	if err := s.fileLock.Unlock(); err != nil {
		s.file.Close()
		return fmt.Errorf("unlocking backup file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("closing backup file: %w", err)
	}
	return s.openNew()
}

// CurrentPath returns the path of the file currently being written.
func (s *BackupStore) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath
}

// Upload enumerates the backup directory and streams every *.zst file
// that is not the current one to POST /backup, deleting it on 204. Files
// it cannot open exclusively (already being uploaded, or mid-rotation)
// are skipped for this pass. Returns early if ctx is canceled.
func (s *BackupStore) Upload(ctx context.Context, httpClient *http.Client, url string, bytesPerSec int64) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing backup directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zst" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	current := s.CurrentPath()

	for _, name := range names {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(s.dir, name)
		if path == current {
			continue
		}

		if err := s.uploadOne(ctx, httpClient, url, path, bytesPerSec); err != nil {
			s.log.Warn("backup upload failed, will retry next sweep", "path", path, "error", err)
		}
	}
	return nil
}

func (s *BackupStore) uploadOne(ctx context.Context, httpClient *http.Client, url, path string, bytesPerSec int64) error {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s for upload: %w", path, err)
	}
	if !locked {
		return nil // the writer (or a concurrent sweep) holds it; skip this sweep
	}
	defer fl.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil // another task holds it; skip this sweep
		}
		return err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, NewThrottledReader(ctx, f, bytesPerSec))
	if err != nil {
		return err
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %s uploading %s", res.Status, path)
	}

	s.log.Info("backup file uploaded, removing", "path", path)
	return os.Remove(path)
}

// Close flushes and closes the current backup file.
func (s *BackupStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Close(); err != nil {
		s.fileLock.Unlock()
		s.file.Close()
		return err
	}
	if err := s.fileLock.Unlock(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
