package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
)

var (
	ErrResultNotFound = errors.New("model result not found")
	ErrDisabled       = errors.New("storage is disabled")
)

// StoredResult is a serialized model result and its bookkeeping fields.
type StoredResult struct {
	ID         string
	ProjectID  string
	CreatedAt  time.Time
	MethodName string
	Status     string
	Version    string
	JSON       []byte
}

// Database defines the interface for persisting fitted model results.
type Database interface {
	// SaveModelResult stores res under projectID and returns its new ID.
	SaveModelResult(ctx context.Context, projectID string, res StoredResult) (string, error)
	GetModelResult(ctx context.Context, projectID, id string) (StoredResult, error)
	// ListModelResults returns the results of projectID, newest first.
	ListModelResults(ctx context.Context, projectID string) ([]StoredResult, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "none", "Storage provider to use (available: firestore, none)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "none":
			p.Database = disabled{}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

type disabled struct{}

func (disabled) SaveModelResult(context.Context, string, StoredResult) (string, error) {
	return "", ErrDisabled
}

func (disabled) GetModelResult(context.Context, string, string) (StoredResult, error) {
	return StoredResult{}, ErrDisabled
}

func (disabled) ListModelResults(context.Context, string) ([]StoredResult, error) {
	return nil, ErrDisabled
}

func (disabled) Close() error { return nil }
