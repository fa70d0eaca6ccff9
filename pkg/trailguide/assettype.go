package trailguide

import (
	"path/filepath"
	"strings"
)

var assetTypesByExt = map[string]AssetType{
	"jpg":  AssetTypeImage,
	"jpeg": AssetTypeImage,
	"png":  AssetTypeImage,
	"gif":  AssetTypeImage,
	"mp3":  AssetTypeAudio,
	"m4a":  AssetTypeAudio,
	"mp4":  AssetTypeVideo,
	"mov":  AssetTypeVideo,
	"vtt":  AssetTypeVideoTextTrack,
	"pdf":  AssetTypePDF,
}

// ValidAssetType reports whether t names a recognized asset category.
func ValidAssetType(t AssetType) bool {
	for _, at := range AssetTypes {
		if at == t {
			return true
		}
	}
	return false
}

// DetectAssetType maps a filename to its asset category based on the final
// extension (case-insensitive). For unrecognized extensions the override is
// used when it names a known category; otherwise ErrUnknownAssetType is
// returned. Pure function, no side effects.
func DetectAssetType(fileName string, override AssetType) (AssetType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))

	if at, ok := assetTypesByExt[ext]; ok {
		return at, nil
	}

	if override != "" && ValidAssetType(override) {
		return override, nil
	}

	return "", ErrUnknownAssetType
}

// AssetContentType returns the HTTP content type to serve an asset's bytes
// with. Unrecognized combinations fall back to application/octet-stream; the
// bytes handler adds an attachment disposition in that case.
func AssetContentType(a *Asset) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(a.FileName), "."))

	switch a.AssetType {
	case AssetTypeImage:
		switch ext {
		case "jpg", "jpeg":
			return "image/jpeg"
		case "png":
			return "image/png"
		case "gif":
			return "image/gif"
		}
	case AssetTypeAudio:
		switch ext {
		case "mp3":
			return "audio/mp3"
		case "m4a":
			return "audio/m4a"
		}
	case AssetTypeVideo:
		switch ext {
		case "mp4":
			return "video/mp4"
		case "mov":
			return "video/quicktime"
		}
	case AssetTypeVideoTextTrack:
		if ext == "vtt" {
			return "text/vtt"
		}
	case AssetTypePDF:
		if ext == "pdf" {
			return "application/pdf"
		}
	}

	return "application/octet-stream"
}
