package trailguide_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/repo/sqlite"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/storage/memory"
)

type testEnv struct {
	svc         *trailguide.Service
	store       trailguide.Store
	assetBlobs  *memory.Backend
	bundleBlobs *memory.Backend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	assetBlobs := memory.New()
	bundleBlobs := memory.New()
	return &testEnv{
		svc: trailguide.NewService(repo, assetBlobs, bundleBlobs, map[string]any{
			"BASE_URL": "http://localhost:8000",
		}),
		store:       repo,
		assetBlobs:  assetBlobs,
		bundleBlobs: bundleBlobs,
	}
}

func (e *testEnv) createAsset(t *testing.T, fileName, payload string) *trailguide.AssetWithUsage {
	t.Helper()
	a, err := e.svc.CreateAsset(context.Background(), trailguide.AssetUpload{
		FileName: fileName,
		Body:     strings.NewReader(payload),
	})
	require.NoError(t, err)
	return a
}

func testStation(id string, enabled bool, rank int) *trailguide.Station {
	east := int64(500000)
	north := int64(5000000)
	return &trailguide.Station{
		ID:       id,
		Title:    "Station " + id,
		Section:  "main",
		Category: "nature",
		CoordinatesUTM: trailguide.UTMCoordinates{
			Zone: "18N", East: &east, North: &north,
		},
		Enabled: enabled,
		Rank:    rank,
	}
}

func TestCreateAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("stores bytes and metadata", func(t *testing.T) {
		payload := "not really a jpeg"
		a := env.createAsset(t, "my photo.jpg", payload)

		assert.Equal(t, trailguide.AssetTypeImage, a.AssetType)
		assert.Regexp(t, regexp.MustCompile(`^\d+-my_photo\.jpg$`), a.FileName)
		assert.Equal(t, int64(len(payload)), a.FileSize)

		sum := sha1.Sum([]byte(payload))
		assert.Equal(t, hex.EncodeToString(sum[:]), a.SHA1Checksum)

		body, err := env.assetBlobs.Download(ctx, a.FileName)
		require.NoError(t, err)
		defer body.Close()
		stored, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(stored))
	})

	t.Run("type override for unknown extension", func(t *testing.T) {
		a, err := env.svc.CreateAsset(ctx, trailguide.AssetUpload{
			FileName:     "narration.raw",
			TypeOverride: trailguide.AssetTypeAudio,
			Body:         strings.NewReader("pcm"),
		})
		require.NoError(t, err)
		assert.Equal(t, trailguide.AssetTypeAudio, a.AssetType)
	})

	t.Run("unclassifiable upload is rejected", func(t *testing.T) {
		_, err := env.svc.CreateAsset(ctx, trailguide.AssetUpload{
			FileName: "mystery.xyz",
			Body:     strings.NewReader("?"),
		})
		assert.ErrorIs(t, err, trailguide.ErrUnknownAssetType)
	})
}

func TestReplaceAssetFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAsset(t, "map.png", "v1")
	oldName := a.FileName

	t.Run("same type replacement swaps the blob", func(t *testing.T) {
		updated, err := env.svc.ReplaceAssetFile(ctx, a.ID, trailguide.AssetUpload{
			FileName: "map-v2.png",
			Body:     strings.NewReader("v2 bytes"),
		})
		require.NoError(t, err)
		assert.Equal(t, a.ID, updated.ID)
		assert.NotEqual(t, oldName, updated.FileName)
		assert.Equal(t, int64(8), updated.FileSize)

		_, err = env.assetBlobs.Download(ctx, oldName)
		assert.ErrorIs(t, err, trailguide.ErrNotFound)

		body, err := env.assetBlobs.Download(ctx, updated.FileName)
		require.NoError(t, err)
		body.Close()
	})

	t.Run("type change is rejected", func(t *testing.T) {
		_, err := env.svc.ReplaceAssetFile(ctx, a.ID, trailguide.AssetUpload{
			FileName: "map.mp3",
			Body:     strings.NewReader("audio"),
		})
		var immutable *trailguide.ImmutableFieldError
		assert.ErrorAs(t, err, &immutable)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := env.svc.ReplaceAssetFile(ctx, "00000000-0000-4000-8000-000000000000", trailguide.AssetUpload{
			FileName: "x.png",
			Body:     strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
	})
}

func TestDeleteAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAsset(t, "gone.pdf", "pdf bytes")
	require.NoError(t, env.svc.DeleteAsset(ctx, a.ID))

	t.Run("blob is removed, metadata survives", func(t *testing.T) {
		_, err := env.assetBlobs.Download(ctx, a.FileName)
		assert.ErrorIs(t, err, trailguide.ErrNotFound)

		got, err := env.store.Assets().Get(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
	})

	t.Run("repeat delete is a no-op", func(t *testing.T) {
		assert.NoError(t, env.svc.DeleteAsset(ctx, a.ID))
	})
}

func TestOneTimeTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("mint and consume once", func(t *testing.T) {
		tok, err := env.svc.MintToken(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, tok.Token)

		require.NoError(t, env.svc.ConsumeToken(ctx, tok.Token, trailguide.ScopeReadContent))
		assert.ErrorIs(t,
			env.svc.ConsumeToken(ctx, tok.Token, trailguide.ScopeReadContent),
			trailguide.ErrNotFound)
	})

	t.Run("scope mismatch does not spend the token", func(t *testing.T) {
		tok, err := env.svc.MintToken(ctx)
		require.NoError(t, err)

		assert.ErrorIs(t,
			env.svc.ConsumeToken(ctx, tok.Token, trailguide.ScopeManageContent),
			trailguide.ErrNotFound)
		assert.NoError(t, env.svc.ConsumeToken(ctx, tok.Token, trailguide.ScopeReadContent))
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := env.store.Tokens().Set(ctx, &trailguide.OneTimeToken{
			Token:  "stale",
			Scope:  trailguide.ScopeReadContent,
			Expiry: trailguide.UTCTimestamp(time.Now().Add(-time.Minute)),
		})
		require.NoError(t, err)

		assert.ErrorIs(t,
			env.svc.ConsumeToken(ctx, "stale", trailguide.ScopeReadContent),
			trailguide.ErrNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		assert.ErrorIs(t,
			env.svc.ConsumeToken(ctx, "never-minted", trailguide.ScopeReadContent),
			trailguide.ErrNotFound)
	})
}

func TestSectionsWithStations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, sec := range []*trailguide.Section{
		{ID: "south", Title: "South Loop", Rank: 1},
		{ID: "north", Title: "North Loop", Rank: 0},
	} {
		_, err := env.store.Sections().Set(ctx, sec)
		require.NoError(t, err)
	}

	seed := []struct {
		id      string
		section string
		enabled bool
		rank    int
	}{
		{"n2", "north", true, 2},
		{"n1", "north", true, 1},
		{"n3", "north", false, 3},
	}
	for _, s := range seed {
		st := testStation(s.id, s.enabled, s.rank)
		st.Section = s.section
		_, err := env.svc.Stations.Set(ctx, st, "")
		require.NoError(t, err)
	}

	nested, err := env.svc.SectionsWithStations(ctx, true)
	require.NoError(t, err)
	require.Len(t, nested, 2)

	t.Run("sections follow section rank", func(t *testing.T) {
		assert.Equal(t, "north", nested[0].ID)
		assert.Equal(t, "south", nested[1].ID)
	})

	t.Run("stations nest in rank order, enabled only", func(t *testing.T) {
		require.Len(t, nested[0].Data, 2)
		assert.Equal(t, "n1", nested[0].Data[0].ID)
		assert.Equal(t, "n2", nested[0].Data[1].ID)
	})

	t.Run("empty section has empty, non-nil data", func(t *testing.T) {
		require.NotNil(t, nested[1].Data)
		assert.Empty(t, nested[1].Data)
	})
}

func TestSearchFanout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	st := testStation("falls", true, 0)
	st.Title = "Granite Falls"
	_, err := env.svc.Stations.Set(ctx, st, "")
	require.NoError(t, err)

	_, err = env.svc.Pages.Set(ctx, &trailguide.Page{
		ID: "about", Title: "About", Content: "All about Granite Falls park.",
	}, "")
	require.NoError(t, err)

	_, err = env.svc.Modals.Set(ctx, &trailguide.Modal{
		ID: "warning", Title: "Trail closure", Content: "Bridge out.", CloseText: "OK",
	}, "")
	require.NoError(t, err)

	results, err := env.svc.Search(ctx, "granite")
	require.NoError(t, err)
	assert.Len(t, results.Stations, 1)
	assert.Len(t, results.Pages, 1)
	assert.Empty(t, results.Modals)
}

func TestCreateRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Three assets: one directly referenced by an enabled station, one
	// embedded in an enabled page, one referenced only by a disabled station.
	header := env.createAsset(t, "header.jpg", "header bytes")
	embedded := env.createAsset(t, "narration.mp3", "audio bytes")
	orphaned := env.createAsset(t, "unused.png", "png bytes")

	require.NoError(t, env.store.Categories().Replace(ctx, []string{"nature", "history"}))
	_, err := env.store.Sections().Set(ctx, &trailguide.Section{ID: "main", Title: "Main Trail"})
	require.NoError(t, err)
	_, err = env.store.Settings().Merge(ctx, trailguide.Settings{"welcome": "hi"})
	require.NoError(t, err)
	_, err = env.store.Layers().Set(ctx, &trailguide.Layer{
		ID: "boundary", Name: "Park Boundary", GeoJSON: json.RawMessage(`{"type":"FeatureCollection","features":[]}`),
	})
	require.NoError(t, err)

	enabled := testStation("visible", true, 0)
	enabled.HeaderImage = &header.ID
	_, err = env.svc.Stations.Set(ctx, enabled, "")
	require.NoError(t, err)

	disabled := testStation("hidden", false, 1)
	disabled.HeaderImage = &orphaned.ID
	_, err = env.svc.Stations.Set(ctx, disabled, "")
	require.NoError(t, err)

	_, err = env.svc.Pages.Set(ctx, &trailguide.Page{
		ID: "audio-tour", Title: "Audio Tour", Enabled: true,
		Content: `<audio src="http://localhost:8000/api/v1/assets/` + embedded.ID + `/bytes"></audio>`,
	}, "")
	require.NoError(t, err)

	_, err = env.svc.Modals.Set(ctx, &trailguide.Modal{
		ID: "notice", Title: "Notice", Content: "Hours change in winter.", CloseText: "Got it",
	}, "")
	require.NoError(t, err)

	release, err := env.svc.CreateRelease(ctx, "first release")
	require.NoError(t, err)
	assert.Equal(t, 1, release.Version)
	assert.Greater(t, release.BundleSize, int64(0))
	assert.Nil(t, release.PublishedDT)

	body, err := env.svc.BundleReader(ctx, release)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, release.BundleSize, int64(len(data)))

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		entries[f.Name] = content
	}

	t.Run("documents and used assets only", func(t *testing.T) {
		for _, name := range []string{
			"categories.json", "config.json", "layers.json", "metadata.json",
			"modals.json", "pages.json", "settings.json", "stations.json",
			"assets/assets.js",
			"assets/image/" + header.FileName,
			"assets/audio/" + embedded.FileName,
		} {
			assert.Contains(t, entries, name)
		}
		assert.NotContains(t, entries, "assets/image/"+orphaned.FileName)
		assert.Len(t, entries, 11)
	})

	t.Run("asset payloads are intact", func(t *testing.T) {
		assert.Equal(t, "header bytes", string(entries["assets/image/"+header.FileName]))
	})

	t.Run("asset index is a js module", func(t *testing.T) {
		js := string(entries["assets/assets.js"])
		assert.True(t, strings.HasPrefix(js, "// Generated automatically by trail-guide-content-server\n"))
		assert.Contains(t, js, `"`+header.ID+`": require("./image/`+header.FileName+`")`)
		assert.Contains(t, js, `"`+embedded.ID+`": require("./audio/`+embedded.FileName+`")`)
		assert.NotContains(t, js, orphaned.ID)
	})

	t.Run("metadata strips internal timestamps", func(t *testing.T) {
		var meta map[string]map[string]any
		require.NoError(t, json.Unmarshal(entries["metadata.json"], &meta))
		rel := meta["release"]
		assert.Equal(t, float64(1), rel["version"])
		assert.Equal(t, "first release", rel["release_notes"])
		assert.NotContains(t, rel, "submitted_dt")
		assert.NotContains(t, rel, "published_dt")
	})

	t.Run("stations ship nested and enabled only", func(t *testing.T) {
		var sections []struct {
			ID   string `json:"id"`
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(entries["stations.json"], &sections))
		require.Len(t, sections, 1)
		require.Len(t, sections[0].Data, 1)
		assert.Equal(t, "visible", sections[0].Data[0].ID)
	})

	t.Run("modals ship as a map by id", func(t *testing.T) {
		var modals map[string]struct {
			Title string `json:"title"`
		}
		require.NoError(t, json.Unmarshal(entries["modals.json"], &modals))
		require.Contains(t, modals, "notice")
		assert.Equal(t, "Notice", modals["notice"].Title)
	})

	t.Run("config ships the public subset", func(t *testing.T) {
		var cfg map[string]any
		require.NoError(t, json.Unmarshal(entries["config.json"], &cfg))
		assert.Equal(t, "http://localhost:8000", cfg["BASE_URL"])
	})

	t.Run("versions keep incrementing", func(t *testing.T) {
		second, err := env.svc.CreateRelease(ctx, "second")
		require.NoError(t, err)
		assert.Equal(t, 2, second.Version)
		assert.NotEqual(t, release.BundlePath, second.BundlePath)
	})
}

// A failed bundle assembly must leave no trace: no release row, no blob.
func TestCreateReleaseRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAsset(t, "header.jpg", "header bytes")
	st := testStation("s", true, 0)
	st.HeaderImage = &a.ID
	_, err := env.svc.Stations.Set(ctx, st, "")
	require.NoError(t, err)

	// Sabotage assembly: the asset's bytes vanish from the blob store while
	// its metadata still marks it as used by enabled content.
	require.NoError(t, env.assetBlobs.Delete(ctx, a.FileName))

	_, err = env.svc.CreateRelease(ctx, "doomed")
	var bundleErr *trailguide.BundleError
	require.ErrorAs(t, err, &bundleErr)

	releases, err := env.store.Releases().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, releases)

	_, err = env.store.Releases().Latest(ctx)
	assert.ErrorIs(t, err, trailguide.ErrNotFound)

	// The failed attempt burned its version number; a retry succeeds with the
	// next one.
	require.NoError(t, env.assetBlobs.Upload(ctx, a.FileName, strings.NewReader("header bytes")))
	release, err := env.svc.CreateRelease(ctx, "recovered")
	require.NoError(t, err)
	assert.Equal(t, 2, release.Version)
}
