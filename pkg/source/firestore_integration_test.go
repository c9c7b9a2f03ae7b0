//go:build integration

package source_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-remoteconfig/pkg/source"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firestoreFlags struct {
	Enabled bool   `firestore:"enabled"`
	Region  string `firestore:"region"`
}

// Requires a running emulator, e.g.
// gcloud emulators firestore start --host-port=localhost:8085
func TestFirestoreSource_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	cfg := &source.FirestoreConfig{
		ProjectID:      "test-project",
		CollectionName: "config",
		DocumentID:     "flags",
		MaxAge:         time.Minute,
	}
	client, err := source.NewFirestoreClient(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	docData := firestoreFlags{Enabled: true, Region: "eu"}
	_, err = client.Collection(cfg.CollectionName).Doc(cfg.DocumentID).Set(ctx, docData)
	require.NoError(t, err)

	t.Run("Fetch Hit", func(t *testing.T) {
		src, err := source.NewFirestoreSource[firestoreFlags](cfg, client, zerolog.Nop())
		require.NoError(t, err)

		res, err := src.Fetch(ctx)

		require.NoError(t, err)
		assert.Equal(t, docData, res.Data)
	})

	t.Run("Fetch Miss", func(t *testing.T) {
		missing := *cfg
		missing.DocumentID = "non-existent-doc"
		src, err := source.NewFirestoreSource[firestoreFlags](&missing, client, zerolog.Nop())
		require.NoError(t, err)

		_, err = src.Fetch(ctx)

		assert.ErrorIs(t, err, source.ErrNotFound)
	})

	t.Run("Picks up document changes", func(t *testing.T) {
		src, err := source.NewFirestoreSource[firestoreFlags](cfg, client, zerolog.Nop())
		require.NoError(t, err)
		_, err = client.Collection(cfg.CollectionName).Doc(cfg.DocumentID).Set(ctx, map[string]interface{}{"region": "us"}, firestore.MergeAll)
		require.NoError(t, err)

		res, err := src.Fetch(ctx)

		require.NoError(t, err)
		assert.Equal(t, "us", res.Data.Region)
	})
}
