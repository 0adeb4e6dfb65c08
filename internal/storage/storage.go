// Package storage persists the named records a run produces. Every backend
// replaces a record in a single step, so readers see either the previous or
// the new version and never a partial write.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tidwall/pretty"

	"moverscan/config"
	"moverscan/logger"
)

// Record names shared by the pipeline stages.
const (
	KeyExchangeInfo = "exchange_info"
	KeyKlines       = "klines"
	KeyResults      = "results"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DecodeError reports a record that exists but cannot be decoded.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Backend stores opaque blobs by name. Put must replace atomically.
type Backend interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Store layers JSON records on top of a Backend.
type Store struct {
	backend Backend
	log     *logger.Log
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend, log: logger.GetLogger()}
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendFile, "":
		backend, err = NewFileBackend(cfg.File.Dir)
	case config.StorageBackendS3:
		backend, err = NewS3Backend(ctx, cfg.S3)
	case config.StorageBackendPostgres:
		backend, err = NewPostgresBackend(ctx, cfg.Postgres)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}

	logger.GetLogger().WithComponent("storage").WithFields(logger.Fields{"backend": cfg.Backend}).Info("storage ready")
	return NewStore(backend), nil
}

// Save writes v as indented JSON under key.
func (s *Store) Save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	data = pretty.Pretty(data)
	if err := s.backend.Put(ctx, key+".json", data); err != nil {
		return fmt.Errorf("save record %s: %w", key, err)
	}
	logger.LogDataFlowEntry(s.log.WithComponent("storage"), "pipeline", key, len(data), "json")
	return nil
}

// Load decodes the record stored under key into v. A missing record yields
// an error matching ErrNotFound and an undecodable one a *DecodeError.
func (s *Store) Load(ctx context.Context, key string, v interface{}) error {
	data, err := s.backend.Get(ctx, key+".json")
	if err != nil {
		return fmt.Errorf("load record %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Key: key, Err: err}
	}
	return nil
}

// Put stores an opaque blob, such as a parquet archive, under name.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := s.backend.Put(ctx, name, data); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.backend.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return data, nil
}

// Close releases backend resources such as database pools.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// cleanName rejects names that would escape the backend's namespace.
func cleanName(name string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(name, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || name == "" {
		return "", fmt.Errorf("invalid record name %q", name)
	}
	return cleaned, nil
}
