package trailguide

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Release bundle assembly.
//
// A release is created in three steps: a provisional release row reserves the
// version number and bundle path, the archive is assembled outside any
// database transaction into a temporary file, and the row's bundle size is
// recorded once the archive is published. A failure anywhere in assembly
// removes the provisional row again, so a failed release leaves neither a
// release row nor a file at the bundle path.

// MakeBundlePath generates a fresh bundle archive key.
func MakeBundlePath() string {
	return uuid.NewString() + ".zip"
}

// MakeAssetListJS renders the asset index shipped inside a bundle as a
// JavaScript module: asset IDs mapped to require() calls, grouped by type.
func MakeAssetListJS(assets []*AssetWithUsage, now time.Time) string {
	byType := make(map[AssetType][]*AssetWithUsage)
	for _, a := range assets {
		byType[a.AssetType] = append(byType[a.AssetType], a)
	}

	var b strings.Builder
	b.WriteString("// Generated automatically by trail-guide-content-server\n")
	fmt.Fprintf(&b, "// at %s\n", now.Format(time.RFC3339))
	b.WriteString("export default {\n")

	for _, at := range AssetTypes {
		group := byType[at]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		fmt.Fprintf(&b, "    %q: {\n", string(at))
		for _, a := range group {
			fmt.Fprintf(&b, "        %q: require(\"./%s/%s\"),\n", a.ID, at, a.FileName)
		}
		b.WriteString("    },\n")
	}

	b.WriteString("};\n")
	return b.String()
}

// CreateRelease runs the full release state machine and returns the committed
// release, including its final bundle size.
func (s *Service) CreateRelease(ctx context.Context, notes string) (*Release, error) {
	candidate := &Release{
		ReleaseNotes: notes,
		BundlePath:   MakeBundlePath(),
		SubmittedDT:  UTCTimestamp(time.Now()),
	}
	if violations := ValidateRelease(candidate); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	// The provisional row surfaces constraint errors before the expensive
	// assembly step and reserves the version number and bundle path.
	release, err := s.store.Releases().Create(ctx, candidate)
	if err != nil {
		return nil, err
	}

	size, err := s.assembleBundle(ctx, release)
	if err != nil {
		if rmErr := s.store.Releases().Remove(ctx, release.Version); rmErr != nil {
			slog.Error("could not roll back provisional release",
				"version", release.Version, "error", rmErr)
		}
		return nil, &BundleError{Op: "assembly", Err: err}
	}

	if err := s.store.Releases().SetBundleSize(ctx, release.Version, size); err != nil {
		return nil, err
	}
	release.BundleSize = size

	slog.Info("created release",
		"version", release.Version, "bundle_path", release.BundlePath, "bundle_size", size)
	return release, nil
}

// assembleBundle writes the archive to a temporary file and publishes it to
// the bundle blob store (whose upload is atomic), returning the byte size.
func (s *Service) assembleBundle(ctx context.Context, release *Release) (int64, error) {
	tmp, err := os.CreateTemp("", "tgcs-bundle-*.zip")
	if err != nil {
		return 0, fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := s.WriteBundle(ctx, release, tmp); err != nil {
		return 0, err
	}

	info, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat scratch file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind scratch file: %w", err)
	}

	if err := s.bundleBlobs.Upload(ctx, release.BundlePath, tmp); err != nil {
		return 0, fmt.Errorf("publish bundle: %w", err)
	}
	return info.Size(), nil
}

// WriteBundle writes a complete release archive for the current content state
// to w: the nine bundle documents plus the binary payload of every asset in
// use by enabled content.
func (s *Service) WriteBundle(ctx context.Context, release *Release, w io.Writer) error {
	assets, err := s.store.Assets().ListUsed(ctx, true)
	if err != nil {
		return err
	}

	categories, err := s.store.Categories().List(ctx)
	if err != nil {
		return err
	}
	layers, err := s.store.Layers().List(ctx)
	if err != nil {
		return err
	}
	modals, err := s.Modals.GetAll(ctx, ListOptions{})
	if err != nil {
		return err
	}
	pages, err := s.Pages.GetAll(ctx, ListOptions{EnabledOnly: true})
	if err != nil {
		return err
	}
	settings, err := s.store.Settings().Get(ctx)
	if err != nil {
		return err
	}
	stations, err := s.SectionsWithStations(ctx, true)
	if err != nil {
		return err
	}

	modalsByID := make(map[string]*Modal, len(modals))
	for _, m := range modals {
		modalsByID[m.ID] = m
	}

	zw := zip.NewWriter(w)

	documents := []struct {
		name  string
		value any
	}{
		{"categories.json", categories},
		{"config.json", s.PublicConfig()},
		{"layers.json", layers},
		{"metadata.json", map[string]any{"release": releaseMetadata(release)}},
		{"modals.json", modalsByID},
		{"pages.json", pages},
		{"settings.json", settings},
		{"stations.json", stations},
	}
	for _, doc := range documents {
		if err := writeBundleJSON(zw, doc.name, doc.value); err != nil {
			return err
		}
	}

	entry, err := zw.Create("assets/assets.js")
	if err != nil {
		return fmt.Errorf("write assets/assets.js: %w", err)
	}
	if _, err := io.WriteString(entry, MakeAssetListJS(assets, time.Now())); err != nil {
		return fmt.Errorf("write assets/assets.js: %w", err)
	}

	for _, a := range assets {
		if err := s.writeBundleAsset(ctx, zw, a); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func (s *Service) writeBundleAsset(ctx context.Context, zw *zip.Writer, a *AssetWithUsage) error {
	name := fmt.Sprintf("assets/%s/%s", a.AssetType, a.FileName)

	body, err := s.assetBlobs.Download(ctx, a.FileName)
	if err != nil {
		return fmt.Errorf("open asset %s (%s): %w", a.ID, a.FileName, err)
	}
	defer body.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := io.Copy(entry, body); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeBundleJSON(zw *zip.Writer, name string, value any) error {
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	enc := json.NewEncoder(entry)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// releaseMetadata is the release row as shipped in metadata.json: internal
// timestamp fields (*_dt) stripped.
func releaseMetadata(release *Release) map[string]any {
	doc, _ := json.Marshal(release)
	var m map[string]any
	_ = json.Unmarshal(doc, &m)

	for k := range m {
		if strings.HasSuffix(k, "_dt") {
			delete(m, k)
		}
	}
	return m
}

// BundleReader opens a committed release's archive for streaming.
func (s *Service) BundleReader(ctx context.Context, release *Release) (io.ReadCloser, error) {
	return s.bundleBlobs.Download(ctx, release.BundlePath)
}
