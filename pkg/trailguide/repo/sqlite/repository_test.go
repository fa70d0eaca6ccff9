package sqlite_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/repo/sqlite"
)

func openTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func stationRecord(id string, enabled bool, rank int, assetRefs ...string) trailguide.RevisionRecord {
	doc, _ := json.Marshal(map[string]any{
		"id": id, "title": "Station " + id, "section": "main", "category": "nature",
		"enabled": enabled, "rank": rank,
	})
	return trailguide.RevisionRecord{
		ID: id, Doc: doc, Enabled: boolPtr(enabled), Rank: intPtr(rank), AssetRefs: assetRefs,
	}
}

func TestRevisionSequence(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()

	t.Run("numbers are gapless from one", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			row, err := stations.Set(ctx, stationRecord("a", true, i))
			require.NoError(t, err)
			assert.Equal(t, i, row.Revision.Number)
		}

		current, err := stations.GetOne(ctx, "a", trailguide.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, current.Revision.Number)
	})

	t.Run("historical revisions stay readable", func(t *testing.T) {
		first, err := stations.GetOne(ctx, "a", trailguide.GetOptions{Revision: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, first.Revision.Number)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(first.Doc, &doc))
		assert.Equal(t, float64(1), doc["rank"])
	})

	t.Run("default messages", func(t *testing.T) {
		row, err := stations.Set(ctx, stationRecord("b", true, 0))
		require.NoError(t, err)
		assert.Equal(t, "created", row.Revision.Message)

		row, err = stations.Set(ctx, stationRecord("b", true, 1))
		require.NoError(t, err)
		assert.Equal(t, "updated", row.Revision.Message)
	})

	t.Run("explicit message wins", func(t *testing.T) {
		rec := stationRecord("c", true, 0)
		rec.Message = "initial import"
		row, err := stations.Set(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, "initial import", row.Revision.Message)
	})

	t.Run("missing object is not found", func(t *testing.T) {
		_, err := stations.GetOne(ctx, "nope", trailguide.GetOptions{})
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()

	_, err := stations.Set(ctx, stationRecord("gone", true, 0))
	require.NoError(t, err)
	require.NoError(t, stations.Delete(ctx, "gone"))

	t.Run("hidden from plain reads", func(t *testing.T) {
		_, err := stations.GetOne(ctx, "gone", trailguide.GetOptions{})
		assert.ErrorIs(t, err, trailguide.ErrNotFound)

		rows, err := stations.GetAll(ctx, trailguide.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("delete is a revision preserving content", func(t *testing.T) {
		row, err := stations.GetOne(ctx, "gone", trailguide.GetOptions{IncludeDeleted: true})
		require.NoError(t, err)
		assert.True(t, row.Deleted)
		assert.Equal(t, 2, row.Revision.Number)
		assert.Equal(t, "deleted", row.Revision.Message)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(row.Doc, &doc))
		assert.Equal(t, "Station gone", doc["title"])
	})

	t.Run("repeat delete is a no-op", func(t *testing.T) {
		require.NoError(t, stations.Delete(ctx, "gone"))

		row, err := stations.GetOne(ctx, "gone", trailguide.GetOptions{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, 2, row.Revision.Number)
	})

	t.Run("absent delete is a no-op", func(t *testing.T) {
		assert.NoError(t, stations.Delete(ctx, "never-existed"))
	})

	t.Run("write after delete continues the sequence", func(t *testing.T) {
		row, err := stations.Set(ctx, stationRecord("gone", true, 0))
		require.NoError(t, err)
		assert.Equal(t, 3, row.Revision.Number)
		assert.False(t, row.Deleted)
	})
}

func TestListAndSearch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()

	seed := []struct {
		id      string
		enabled bool
		rank    int
	}{
		{"waterfall", true, 2},
		{"lookout", true, 1},
		{"old-mill", false, 3},
	}
	for _, s := range seed {
		_, err := stations.Set(ctx, stationRecord(s.id, s.enabled, s.rank))
		require.NoError(t, err)
	}

	t.Run("default order is rank then id", func(t *testing.T) {
		rows, err := stations.GetAll(ctx, trailguide.ListOptions{})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "lookout", rows[0].ID)
		assert.Equal(t, "waterfall", rows[1].ID)
		assert.Equal(t, "old-mill", rows[2].ID)
	})

	t.Run("enabled only", func(t *testing.T) {
		rows, err := stations.GetAll(ctx, trailguide.ListOptions{EnabledOnly: true})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.NotEqual(t, "old-mill", row.ID)
		}
	})

	t.Run("search matches id substring case-insensitively", func(t *testing.T) {
		rows, err := stations.Search(ctx, "MILL", trailguide.ListOptions{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "old-mill", rows[0].ID)
	})

	t.Run("search matches searchable doc fields", func(t *testing.T) {
		rows, err := stations.Search(ctx, "station waterfall", trailguide.ListOptions{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "waterfall", rows[0].ID)
	})

	t.Run("like metacharacters are literal", func(t *testing.T) {
		rows, err := stations.Search(ctx, "%", trailguide.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestAssetUsageIndex(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()

	const (
		header  = "11111111-1111-4111-8111-111111111111"
		gallery = "22222222-2222-4222-8222-222222222222"
	)

	_, err := stations.Set(ctx, stationRecord("s1", true, 0, header, gallery))
	require.NoError(t, err)
	_, err = stations.Set(ctx, stationRecord("s2", false, 1, gallery))
	require.NoError(t, err)

	t.Run("split by enabled state", func(t *testing.T) {
		usage, err := stations.AssetUsage(ctx, gallery)
		require.NoError(t, err)
		assert.Equal(t, []string{"s1"}, usage.Active)
		assert.Equal(t, []string{"s2"}, usage.Inactive)
	})

	t.Run("only current revision counts", func(t *testing.T) {
		// New revision of s1 drops the gallery reference.
		_, err := stations.Set(ctx, stationRecord("s1", true, 0, header))
		require.NoError(t, err)

		usage, err := stations.AssetUsage(ctx, gallery)
		require.NoError(t, err)
		assert.Empty(t, usage.Active)
		assert.Equal(t, []string{"s2"}, usage.Inactive)
	})

	t.Run("disabling moves usage to inactive", func(t *testing.T) {
		_, err := stations.Set(ctx, stationRecord("s1", false, 0, header))
		require.NoError(t, err)

		usage, err := stations.AssetUsage(ctx, header)
		require.NoError(t, err)
		assert.Empty(t, usage.Active)
		assert.Equal(t, []string{"s1"}, usage.Inactive)
	})

	t.Run("deleted objects do not count", func(t *testing.T) {
		require.NoError(t, stations.Delete(ctx, "s2"))

		usage, err := stations.AssetUsage(ctx, gallery)
		require.NoError(t, err)
		assert.Empty(t, usage.Active)
		assert.Empty(t, usage.Inactive)
	})

	t.Run("unreferenced asset reports empty lists", func(t *testing.T) {
		usage, err := stations.AssetUsage(ctx, "33333333-3333-4333-8333-333333333333")
		require.NoError(t, err)
		assert.NotNil(t, usage.Active)
		assert.Empty(t, usage.Active)
	})

	t.Run("modals report no inactive list", func(t *testing.T) {
		modals := repo.Modals()
		doc, _ := json.Marshal(map[string]any{"id": "m1", "title": "Hi", "close_text": "OK"})
		_, err := modals.Set(ctx, trailguide.RevisionRecord{ID: "m1", Doc: doc, AssetRefs: []string{header}})
		require.NoError(t, err)

		usage, err := modals.AssetUsage(ctx, header)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, usage.Active)
		assert.Nil(t, usage.Inactive)
	})
}

func TestAssetStore(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	assets := repo.Assets()
	stations := repo.Stations()

	const (
		used   = "44444444-4444-4444-8444-444444444444"
		unused = "55555555-5555-4555-8555-555555555555"
	)

	for _, a := range []*trailguide.Asset{
		{ID: used, AssetType: trailguide.AssetTypeImage, FileName: "used.jpg", FileSize: 10, SHA1Checksum: "aa"},
		{ID: unused, AssetType: trailguide.AssetTypeAudio, FileName: "unused.mp3", FileSize: 20, SHA1Checksum: "bb"},
	} {
		_, err := assets.Set(ctx, a)
		require.NoError(t, err)
	}

	_, err := stations.Set(ctx, stationRecord("s-enabled", true, 0, used))
	require.NoError(t, err)
	_, err = stations.Set(ctx, stationRecord("s-disabled", false, 1, used, unused))
	require.NoError(t, err)

	t.Run("list derives usage counts", func(t *testing.T) {
		list, err := assets.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)

		byID := map[string]*trailguide.AssetWithUsage{}
		for _, a := range list {
			byID[a.ID] = a
		}
		assert.Equal(t, 2, byID[used].TimesUsedByAll)
		assert.Equal(t, 1, byID[used].TimesUsedByEnabled)
		assert.Equal(t, 1, byID[unused].TimesUsedByAll)
		assert.Equal(t, 0, byID[unused].TimesUsedByEnabled)
	})

	t.Run("list used only enabled", func(t *testing.T) {
		list, err := assets.ListUsed(ctx, true)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, used, list[0].ID)
	})

	t.Run("list used any", func(t *testing.T) {
		list, err := assets.ListUsed(ctx, false)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("find by checksum", func(t *testing.T) {
		a, err := assets.FindByChecksum(ctx, "bb")
		require.NoError(t, err)
		assert.Equal(t, unused, a.ID)

		_, err = assets.FindByChecksum(ctx, "cc")
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
	})

	t.Run("soft delete keeps row readable by id", func(t *testing.T) {
		require.NoError(t, assets.Delete(ctx, unused))

		list, err := assets.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		a, err := assets.Get(ctx, unused)
		require.NoError(t, err)
		assert.True(t, a.Deleted)

		_, err = assets.FindByChecksum(ctx, "bb")
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
	})

	t.Run("delete unknown asset", func(t *testing.T) {
		err := assets.Delete(ctx, "66666666-6666-4666-8666-666666666666")
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
	})
}

func TestReleaseStore(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	releases := repo.Releases()

	t.Run("versions are assigned monotonically", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			r, err := releases.Create(ctx, &trailguide.Release{
				ReleaseNotes: fmt.Sprintf("notes %d", i),
				BundlePath:   fmt.Sprintf("bundle-%d.zip", i),
				SubmittedDT:  "2026-08-30T12:00:00Z",
			})
			require.NoError(t, err)
			assert.Equal(t, i, r.Version)
			assert.Nil(t, r.PublishedDT)
		}
	})

	t.Run("latest", func(t *testing.T) {
		r, err := releases.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, r.Version)
	})

	t.Run("set bundle size", func(t *testing.T) {
		require.NoError(t, releases.SetBundleSize(ctx, 2, 12345))
		r, err := releases.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(12345), r.BundleSize)
	})

	t.Run("update notes and published", func(t *testing.T) {
		r, err := releases.Get(ctx, 1)
		require.NoError(t, err)
		published := "2026-08-30T13:00:00Z"
		r.ReleaseNotes = "amended"
		r.PublishedDT = &published

		updated, err := releases.Update(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, "amended", updated.ReleaseNotes)
		require.NotNil(t, updated.PublishedDT)
		assert.Equal(t, published, *updated.PublishedDT)
	})

	t.Run("removed versions are not reused", func(t *testing.T) {
		require.NoError(t, releases.Remove(ctx, 3))
		_, err := releases.Get(ctx, 3)
		assert.ErrorIs(t, err, trailguide.ErrNotFound)

		r, err := releases.Create(ctx, &trailguide.Release{
			BundlePath:  "bundle-4.zip",
			SubmittedDT: "2026-08-30T14:00:00Z",
		})
		require.NoError(t, err)
		assert.Equal(t, 4, r.Version)
	})
}

func TestMiscStores(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	t.Run("categories replace preserves order", func(t *testing.T) {
		cats := repo.Categories()
		require.NoError(t, cats.Replace(ctx, []string{"nature", "history", "culture"}))

		list, err := cats.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"nature", "history", "culture"}, list)

		require.NoError(t, cats.Replace(ctx, []string{"history"}))
		list, err = cats.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"history"}, list)
	})

	t.Run("settings merge keeps types and other keys", func(t *testing.T) {
		settings := repo.Settings()
		_, err := settings.Merge(ctx, trailguide.Settings{"welcome": "hello", "cache_ttl": float64(30)})
		require.NoError(t, err)

		merged, err := settings.Merge(ctx, trailguide.Settings{"dark_mode": true})
		require.NoError(t, err)
		assert.Equal(t, "hello", merged["welcome"])
		assert.Equal(t, float64(30), merged["cache_ttl"])
		assert.Equal(t, true, merged["dark_mode"])
	})

	t.Run("sections upsert", func(t *testing.T) {
		sections := repo.Sections()
		_, err := sections.Set(ctx, &trailguide.Section{ID: "north", Title: "North Loop", Rank: 1})
		require.NoError(t, err)
		_, err = sections.Set(ctx, &trailguide.Section{ID: "north", Title: "North Loop Trail", Rank: 0})
		require.NoError(t, err)

		sec, err := sections.Get(ctx, "north")
		require.NoError(t, err)
		assert.Equal(t, "North Loop Trail", sec.Title)
		assert.Equal(t, 0, sec.Rank)
	})

	t.Run("tokens", func(t *testing.T) {
		tokens := repo.Tokens()
		_, err := tokens.Set(ctx, &trailguide.OneTimeToken{
			Token: "tok-1", Scope: trailguide.ScopeReadContent, Expiry: "2026-08-30T12:01:00Z",
		})
		require.NoError(t, err)

		got, err := tokens.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, trailguide.ScopeReadContent, got.Scope)

		require.NoError(t, tokens.Delete(ctx, "tok-1"))
		_, err = tokens.Get(ctx, "tok-1")
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
	})
}

// Two writers hammering the same object must serialize: the revision history
// ends up gapless with every revision present exactly once.
func TestConcurrentWrites(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	stations := repo.Stations()

	const perWriter = 10

	var wg sync.WaitGroup
	errs := make(chan error, 2*perWriter)
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := stations.Set(ctx, stationRecord("contested", true, i)); err != nil {
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

	current, err := stations.GetOne(ctx, "contested", trailguide.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2*perWriter, current.Revision.Number)

	for i := 1; i <= 2*perWriter; i++ {
		_, err := stations.GetOne(ctx, "contested", trailguide.GetOptions{Revision: i})
		assert.NoError(t, err, "revision %d must exist", i)
	}
}
