package capture

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Config bounds the local spool.
type Config struct {
	// Dir is the spool directory. Finished payloads live directly in
	// it; externally dropped files arrive under Dir/incoming.
	Dir string `koanf:"dir"`

	// MaxBytes is the spool byte budget. Exceeding it fails the write
	// with ErrStorageExhausted.
	MaxBytes int64 `koanf:"max_bytes"`
}

// DefaultConfig returns the default spool bounds.
func DefaultConfig() Config {
	return Config{MaxBytes: 512 << 20}
}

// Spool is the durable local blob store behind capture records. Writes
// are atomic (temp file plus rename) and accounted against the byte
// budget.
type Spool struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
}

// NewSpool opens the spool directory, creating it and the incoming
// subdirectory as needed.
func NewSpool(cfg Config) (*Spool, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "incoming"), 0o700); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return &Spool{dir: cfg.Dir, maxBytes: cfg.MaxBytes}, nil
}

// IncomingDir is where external producers drop payload files for the
// watcher to pick up.
func (s *Spool) IncomingDir() string {
	return filepath.Join(s.dir, "incoming")
}

// Write stores payload under name and returns its path. Returns
// ErrStorageExhausted when the payload would push the spool past its
// budget.
func (s *Spool) Write(name string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used, err := s.usage()
	if err != nil {
		return "", err
	}
	if used+int64(len(payload)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes used of %d", ErrStorageExhausted, used, s.maxBytes)
	}

	dst := filepath.Join(s.dir, name)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return "", fmt.Errorf("write spool blob: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("commit spool blob: %w", err)
	}
	return dst, nil
}

// Read loads a spooled blob.
func (s *Spool) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spool blob: %w", err)
	}
	return data, nil
}

// Remove deletes a spooled blob. Missing files are not an error.
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spool blob: %w", err)
	}
	return nil
}

// Adopt moves an externally dropped file from the incoming directory
// into the spool proper, subject to the byte budget.
func (s *Spool) Adopt(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used, err := s.usage()
	if err != nil {
		return "", err
	}
	// The incoming file already counts toward usage; adoption only
	// moves it.
	if used > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes used of %d", ErrStorageExhausted, used, s.maxBytes)
	}

	dst := filepath.Join(s.dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("adopt incoming blob: %w", err)
	}
	return dst, nil
}

// usage sums spool bytes, incoming included. Caller holds s.mu.
func (s *Spool) usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure spool usage: %w", err)
	}
	return total, nil
}
