package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/repo/postgres"
)

// These tests need a live database; point TEST_DATABASE_URL at a scratch
// PostgreSQL instance to run them. Station IDs are randomized so repeated runs
// against the same database do not collide.
func openTestRepo(t *testing.T) *postgres.Repository {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	repo, err := postgres.Open(context.Background(), databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func stationRecord(id string, enabled bool, rank int, assetRefs ...string) trailguide.RevisionRecord {
	doc, _ := json.Marshal(map[string]any{
		"id": id, "title": "Station " + id, "section": "main", "category": "nature",
		"enabled": enabled, "rank": rank,
	})
	return trailguide.RevisionRecord{
		ID: id, Doc: doc, Enabled: &enabled, Rank: &rank, AssetRefs: assetRefs,
	}
}

func TestRevisionLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()
	id := uuid.NewString()

	for i := 1; i <= 3; i++ {
		row, err := stations.Set(ctx, stationRecord(id, true, i))
		require.NoError(t, err)
		assert.Equal(t, i, row.Revision.Number)
	}

	current, err := stations.GetOne(ctx, id, trailguide.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, current.Revision.Number)

	first, err := stations.GetOne(ctx, id, trailguide.GetOptions{Revision: 1})
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(first.Doc, &doc))
	assert.Equal(t, float64(1), doc["rank"])

	require.NoError(t, stations.Delete(ctx, id))
	_, err = stations.GetOne(ctx, id, trailguide.GetOptions{})
	assert.ErrorIs(t, err, trailguide.ErrNotFound)

	deleted, err := stations.GetOne(ctx, id, trailguide.GetOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, 4, deleted.Revision.Number)
}

func TestAssetUsage(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()

	assetID := uuid.NewString()
	active := uuid.NewString()
	inactive := uuid.NewString()

	_, err := stations.Set(ctx, stationRecord(active, true, 0, assetID))
	require.NoError(t, err)
	_, err = stations.Set(ctx, stationRecord(inactive, false, 1, assetID))
	require.NoError(t, err)

	usage, err := stations.AssetUsage(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, []string{active}, usage.Active)
	assert.Equal(t, []string{inactive}, usage.Inactive)
}

// Advisory locks must serialize concurrent writers on the same object so the
// revision sequence stays gapless.
func TestConcurrentWrites(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()
	id := uuid.NewString()

	const perWriter = 10

	var wg sync.WaitGroup
	errs := make(chan error, 2*perWriter)
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := stations.Set(ctx, stationRecord(id, true, i)); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent set failed: %v", err)
	}

	current, err := stations.GetOne(ctx, id, trailguide.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2*perWriter, current.Revision.Number)

	for i := 1; i <= 2*perWriter; i++ {
		_, err := stations.GetOne(ctx, id, trailguide.GetOptions{Revision: i})
		assert.NoError(t, err, fmt.Sprintf("revision %d must exist", i))
	}
}

func TestReleaseVersioning(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	releases := repo.Releases()

	first, err := releases.Create(ctx, &trailguide.Release{
		BundlePath:  uuid.NewString() + ".zip",
		SubmittedDT: "2026-08-30T12:00:00Z",
	})
	require.NoError(t, err)

	second, err := releases.Create(ctx, &trailguide.Release{
		BundlePath:  uuid.NewString() + ".zip",
		SubmittedDT: "2026-08-30T12:01:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)

	require.NoError(t, releases.Remove(ctx, first.Version))
	require.NoError(t, releases.Remove(ctx, second.Version))
}
