package trailguide

import (
	"encoding/json"
	"time"
)

// AssetType is the domain type for asset categories.
type AssetType string

// Asset type constants (typed).
const (
	AssetTypeImage          AssetType = "image"
	AssetTypeAudio          AssetType = "audio"
	AssetTypeVideo          AssetType = "video"
	AssetTypeVideoTextTrack AssetType = "video_text_track"
	AssetTypePDF            AssetType = "pdf"
)

// AssetTypes lists every recognized asset category, in bundle rendering order.
var AssetTypes = []AssetType{
	AssetTypeAudio,
	AssetTypeImage,
	AssetTypePDF,
	AssetTypeVideo,
	AssetTypeVideoTextTrack,
}

// Revision describes one entry in an object's append-only revision history.
type Revision struct {
	Number    int    `json:"number"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// RevisionMeta carries the revision bookkeeping shared by all revisioned
// content objects. It is embedded in Station, Page, and Modal; the fields are
// populated from the store on read and ignored on write.
type RevisionMeta struct {
	Revision *Revision `json:"revision,omitempty"`
	Deleted  bool      `json:"deleted"`
}

// RevisionMetaRef returns a pointer to the embedded metadata so the generic
// collection can populate it after a read.
func (m *RevisionMeta) RevisionMetaRef() *RevisionMeta { return m }

// Object is implemented by every revisioned content type.
type Object interface {
	ObjectID() string
	RevisionMetaRef() *RevisionMeta
}

// UTMCoordinates holds a station's position. Exactly one of East/West and one
// of North/South is set; the external validation step guarantees this.
type UTMCoordinates struct {
	Zone  string `json:"zone"`
	East  *int64 `json:"east,omitempty"`
	West  *int64 `json:"west,omitempty"`
	North *int64 `json:"north,omitempty"`
	South *int64 `json:"south,omitempty"`
}

// Visibility is an optional date window outside which a station is hidden.
type Visibility struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

// Station is a physical stop on the trail.
//
// HeaderImage holds a bare asset ID (direct reference); Contents is a raw
// array of content blocks (html, gallery, quiz, ...) which is scanned for
// embedded asset references on write.
type Station struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	LongTitle      string          `json:"long_title"`
	Subtitle       string          `json:"subtitle"`
	CoordinatesUTM UTMCoordinates  `json:"coordinates_utm"`
	Visible        Visibility      `json:"visible"`
	Section        string          `json:"section"`
	Category       string          `json:"category"`
	HeaderImage    *string         `json:"header_image"`
	Contents       json.RawMessage `json:"contents"`
	Enabled        bool            `json:"enabled"`
	Rank           int             `json:"rank"`

	RevisionMeta
}

func (s *Station) ObjectID() string { return s.ID }

// Page is a standalone app page (about, contact, ...).
type Page struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Icon        string  `json:"icon"`
	LongTitle   string  `json:"long_title"`
	Subtitle    string  `json:"subtitle"`
	HeaderImage *string `json:"header_image"`
	Content     string  `json:"content"`
	Enabled     bool    `json:"enabled"`
	Rank        int     `json:"rank"`

	RevisionMeta
}

func (p *Page) ObjectID() string { return p.ID }

// Modal is a dismissable dialog referenced from station or page content.
// Modals have no enabled flag; all current modals ship in every bundle.
type Modal struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CloseText string `json:"close_text"`

	RevisionMeta
}

func (m *Modal) ObjectID() string { return m.ID }

// Section groups stations in the app's station list.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Rank  int    `json:"rank"`
}

// SectionWithStations is a section with its stations nested, ordered by
// station rank. Used by the sections listing and the release bundle.
type SectionWithStations struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Rank  int        `json:"rank"`
	Data  []*Station `json:"data"`
}

// Layer is a map overlay (GeoJSON geometry).
type Layer struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	GeoJSON json.RawMessage `json:"geojson"`
	Rank    int             `json:"rank"`
}

// Asset is the metadata row for a binary resource. The bytes themselves live
// in a BlobStore, keyed by FileName. Assets are not revisioned; deletion is a
// soft marker so usage history stays auditable.
type Asset struct {
	ID           string    `json:"id"`
	AssetType    AssetType `json:"asset_type"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	SHA1Checksum string    `json:"sha1_checksum"`
	Deleted      bool      `json:"deleted,omitempty"`
}

// AssetWithUsage is an asset plus usage counts derived from the current
// revisions of referencing objects. The counts are computed, never stored.
type AssetWithUsage struct {
	Asset
	TimesUsedByAll     int `json:"times_used_by_all"`
	TimesUsedByEnabled int `json:"times_used_by_enabled"`
}

// AssetUsage is the reverse lookup for one asset within one content type:
// IDs of referencing objects whose current revision is enabled (Active) or
// disabled (Inactive). Types without an enabled flag report only Active.
type AssetUsage struct {
	Active   []string `json:"active"`
	Inactive []string `json:"inactive,omitempty"`
}

// Release is one versioned content export. Version is assigned by the store
// on creation; Version, BundlePath, and SubmittedDT are immutable afterwards,
// and PublishedDT transitions exactly once from null to a timestamp.
type Release struct {
	Version      int     `json:"version"`
	ReleaseNotes string  `json:"release_notes"`
	BundlePath   string  `json:"bundle_path"`
	BundleSize   int64   `json:"bundle_size"`
	SubmittedDT  string  `json:"submitted_dt"`
	PublishedDT  *string `json:"published_dt"`
}

// Settings is the free-form key/value app configuration; PUT merges keys.
type Settings map[string]any

// FeedbackFrom identifies a feedback submitter.
type FeedbackFrom struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FeedbackItem is one visitor feedback submission.
type FeedbackItem struct {
	ID        string       `json:"id"`
	From      FeedbackFrom `json:"from"`
	Content   string       `json:"content"`
	Submitted string       `json:"submitted"`
}

// OneTimeToken grants a single scoped request (e.g. a bundle download link)
// and expires shortly after minting.
type OneTimeToken struct {
	Token  string `json:"token"`
	Scope  string `json:"scope"`
	Expiry string `json:"expiry"`
}

// SearchResults is the fan-out result of a content search.
type SearchResults struct {
	Stations []*Station `json:"stations"`
	Pages    []*Page    `json:"pages"`
	Modals   []*Modal   `json:"modals"`
}

// UTCTimestamp renders t the way every persisted timestamp in this system is
// stored: RFC 3339 UTC with second precision.
func UTCTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
