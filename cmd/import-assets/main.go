// import-assets bulk-registers a directory of media files as assets: each
// file is classified by extension, checksummed, de-duplicated against the
// registry, and uploaded to the configured blob backend.
package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/config"
)

func main() {
	var (
		typeOverride = flag.String("type", "",
			"asset type for files whose extension is not recognized (image, audio, video, video_text_track, pdf)")
		skipDuplicates = flag.Bool("skip-duplicates", true,
			"skip files whose SHA-1 checksum matches an already-registered asset")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <directory>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	dir := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("could not load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := cfg.BuildService(ctx)
	if err != nil {
		slog.Error("could not build service", "error", err)
		os.Exit(1)
	}
	defer svc.Store().Close()

	imported, skipped, failed := 0, 0, 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch importFile(ctx, svc, path, trailguide.AssetType(*typeOverride), *skipDuplicates) {
		case importOK:
			imported++
		case importSkipped:
			skipped++
		case importFailed:
			failed++
		}
		return nil
	})
	if err != nil {
		slog.Error("could not walk directory", "dir", dir, "error", err)
		os.Exit(1)
	}

	slog.Info("import finished", "imported", imported, "skipped", skipped, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

type importResult int

const (
	importOK importResult = iota
	importSkipped
	importFailed
)

func importFile(
	ctx context.Context, svc *trailguide.Service, path string,
	typeOverride trailguide.AssetType, skipDuplicates bool,
) importResult {
	if skipDuplicates {
		checksum, err := fileChecksum(path)
		if err != nil {
			slog.Error("could not checksum file", "path", path, "error", err)
			return importFailed
		}

		existing, err := svc.Store().Assets().FindByChecksum(ctx, checksum)
		if err == nil {
			slog.Info("skipping duplicate", "path", path, "asset", existing.ID)
			return importSkipped
		}
		if !errors.Is(err, trailguide.ErrNotFound) {
			slog.Error("could not check for duplicates", "path", path, "error", err)
			return importFailed
		}
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("could not open file", "path", path, "error", err)
		return importFailed
	}
	defer f.Close()

	a, err := svc.CreateAsset(ctx, trailguide.AssetUpload{
		FileName:     filepath.Base(path),
		TypeOverride: typeOverride,
		Body:         f,
	})
	if err != nil {
		slog.Error("could not import file", "path", path, "error", err)
		return importFailed
	}

	slog.Info("imported asset", "path", path, "asset", a.ID, "type", a.AssetType)
	return importOK
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha1.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
