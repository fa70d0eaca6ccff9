package trailguide_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

func TestDetectAssetType(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		override trailguide.AssetType
		want     trailguide.AssetType
		wantErr  bool
	}{
		{name: "jpg is image", fileName: "station.jpg", want: trailguide.AssetTypeImage},
		{name: "jpeg is image", fileName: "photo.JPEG", want: trailguide.AssetTypeImage},
		{name: "png is image", fileName: "map.png", want: trailguide.AssetTypeImage},
		{name: "gif is image", fileName: "anim.gif", want: trailguide.AssetTypeImage},
		{name: "mp3 is audio", fileName: "narration.mp3", want: trailguide.AssetTypeAudio},
		{name: "m4a is audio", fileName: "narration.m4a", want: trailguide.AssetTypeAudio},
		{name: "mp4 is video", fileName: "tour.mp4", want: trailguide.AssetTypeVideo},
		{name: "mov is video", fileName: "clip.mov", want: trailguide.AssetTypeVideo},
		{name: "vtt is video text track", fileName: "track.vtt", want: trailguide.AssetTypeVideoTextTrack},
		{name: "pdf is pdf", fileName: "brochure.pdf", want: trailguide.AssetTypePDF},
		{name: "final suffix wins", fileName: "archive.mp3.png", want: trailguide.AssetTypeImage},
		{name: "unknown ext with override", fileName: "notes.xyz", override: trailguide.AssetTypeAudio, want: trailguide.AssetTypeAudio},
		{name: "known ext ignores override", fileName: "station.jpg", override: trailguide.AssetTypeAudio, want: trailguide.AssetTypeImage},
		{name: "unknown ext without override", fileName: "notes.xyz", wantErr: true},
		{name: "unknown ext with bogus override", fileName: "notes.xyz", override: "document", wantErr: true},
		{name: "no extension", fileName: "README", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := trailguide.DetectAssetType(tt.fileName, tt.override)
			if tt.wantErr {
				assert.ErrorIs(t, err, trailguide.ErrUnknownAssetType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssetContentType(t *testing.T) {
	tests := []struct {
		fileName  string
		assetType trailguide.AssetType
		want      string
	}{
		{"a.jpg", trailguide.AssetTypeImage, "image/jpeg"},
		{"a.jpeg", trailguide.AssetTypeImage, "image/jpeg"},
		{"a.png", trailguide.AssetTypeImage, "image/png"},
		{"a.gif", trailguide.AssetTypeImage, "image/gif"},
		{"a.mp3", trailguide.AssetTypeAudio, "audio/mp3"},
		{"a.m4a", trailguide.AssetTypeAudio, "audio/m4a"},
		{"a.mp4", trailguide.AssetTypeVideo, "video/mp4"},
		{"a.mov", trailguide.AssetTypeVideo, "video/quicktime"},
		{"a.vtt", trailguide.AssetTypeVideoTextTrack, "text/vtt"},
		{"a.pdf", trailguide.AssetTypePDF, "application/pdf"},
		// Type/extension mismatch falls back to octet-stream.
		{"a.bin", trailguide.AssetTypeImage, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.fileName+"/"+string(tt.assetType), func(t *testing.T) {
			a := &trailguide.Asset{FileName: tt.fileName, AssetType: tt.assetType}
			assert.Equal(t, tt.want, trailguide.AssetContentType(a))
		})
	}
}
