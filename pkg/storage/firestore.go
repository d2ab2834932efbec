package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raterudder/eemeter/pkg/common"
	"github.com/raterudder/eemeter/pkg/log"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Results live at projects/<projectID>/model_results/<id>.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, option.WithUserAgent(common.UserAgent()))
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) results(projectID string) (*firestore.CollectionRef, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID cannot be empty")
	}
	return f.client.Collection("projects").Doc(projectID).Collection("model_results"), nil
}

// SaveModelResult writes res as a new document with a random ID. CreatedAt
// and Version are filled in when unset.
func (f *FirestoreProvider) SaveModelResult(ctx context.Context, projectID string, res StoredResult) (string, error) {
	coll, err := f.results(projectID)
	if err != nil {
		return "", err
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	if res.Version == "" {
		res.Version = common.Version()
	}
	id := uuid.NewString()
	_, err = coll.Doc(id).Create(ctx, map[string]interface{}{
		"json":       string(res.JSON),
		"createdAt":  res.CreatedAt.UTC(),
		"methodName": res.MethodName,
		"status":     res.Status,
		"version":    res.Version,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save model result: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "saved model result", slog.String("projectID", projectID), slog.String("id", id))
	return id, nil
}

// GetModelResult retrieves a single result.
func (f *FirestoreProvider) GetModelResult(ctx context.Context, projectID, id string) (StoredResult, error) {
	coll, err := f.results(projectID)
	if err != nil {
		return StoredResult{}, err
	}
	doc, err := coll.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return StoredResult{}, fmt.Errorf("%w: %s", ErrResultNotFound, id)
		}
		return StoredResult{}, fmt.Errorf("failed to get model result %s: %w", id, err)
	}
	return resultFromDoc(ctx, projectID, doc)
}

// ListModelResults retrieves every result of projectID, newest first.
func (f *FirestoreProvider) ListModelResults(ctx context.Context, projectID string) ([]StoredResult, error) {
	coll, err := f.results(projectID)
	if err != nil {
		return nil, err
	}
	iter := coll.OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []StoredResult
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating model results: %w", err)
		}
		res, err := resultFromDoc(ctx, projectID, doc)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func resultFromDoc(ctx context.Context, projectID string, doc *firestore.DocumentSnapshot) (StoredResult, error) {
	var raw struct {
		JSON       string    `firestore:"json"`
		CreatedAt  time.Time `firestore:"createdAt"`
		MethodName string    `firestore:"methodName"`
		Status     string    `firestore:"status"`
		Version    string    `firestore:"version"`
	}
	if err := doc.DataTo(&raw); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode model result", slog.String("id", doc.Ref.ID), slog.String("projectID", projectID), slog.Any("err", err))
		return StoredResult{}, fmt.Errorf("failed to decode model result (id=%s): %w", doc.Ref.ID, err)
	}
	if raw.JSON == "" {
		return StoredResult{}, fmt.Errorf("model result %s missing 'json' field", doc.Ref.ID)
	}
	return StoredResult{
		ID:         doc.Ref.ID,
		ProjectID:  projectID,
		CreatedAt:  raw.CreatedAt,
		MethodName: raw.MethodName,
		Status:     raw.Status,
		Version:    raw.Version,
		JSON:       []byte(raw.JSON),
	}, nil
}
