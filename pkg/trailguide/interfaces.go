package trailguide

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// GetOptions controls single-object reads.
type GetOptions struct {
	// IncludeDeleted returns soft-deleted objects instead of ErrNotFound.
	IncludeDeleted bool
	// Revision selects a specific historical revision; 0 means current.
	Revision int
}

// ListOptions controls multi-object reads.
type ListOptions struct {
	IncludeDeleted bool
	// EnabledOnly is honored only by collections whose objects carry an
	// enabled flag.
	EnabledOnly bool
}

// RevisionRecord is the write-side input for one new revision: the content
// document plus the column values and usage edges derived from it.
type RevisionRecord struct {
	ID      string
	Doc     json.RawMessage
	Enabled *bool
	Rank    *int
	Deleted bool
	// Message overrides the default revision message (created/updated/deleted)
	// when non-empty.
	Message string
	// AssetRefs is the full referenced-asset set for this revision; it
	// replaces the collection's usage edges for (ID, revision).
	AssetRefs []string
}

// RevisionRow is the read-side result: the content document plus the revision
// bookkeeping that lives in dedicated columns.
type RevisionRow struct {
	ID       string
	Doc      json.RawMessage
	Revision Revision
	Deleted  bool
}

// RevisionStore persists the append-only revision history of one content
// collection. Implementations must make Set atomic: revision-number
// computation, row insert, current-pointer update, and usage-edge replacement
// all commit or none do, and concurrent Sets for the same ID serialize so
// revision numbers for an ID form a gapless 1..N sequence.
type RevisionStore interface {
	// GetOne returns the current revision of id, or a specific historical
	// revision when opts.Revision is set. Soft-deleted objects yield
	// ErrNotFound unless opts.IncludeDeleted.
	GetOne(ctx context.Context, id string, opts GetOptions) (*RevisionRow, error)

	// GetAll returns the current revision of every matching object in the
	// collection's default order.
	GetAll(ctx context.Context, opts ListOptions) ([]*RevisionRow, error)

	// Search returns current revisions whose ID or searchable fields contain
	// the query as a case-insensitive substring.
	Search(ctx context.Context, query string, opts ListOptions) ([]*RevisionRow, error)

	// Set writes a new revision and returns it as GetOne would.
	Set(ctx context.Context, rec RevisionRecord) (*RevisionRow, error)

	// Delete writes a soft-delete revision preserving the last content.
	// No-op when the object is absent or already deleted.
	Delete(ctx context.Context, id string) error

	// AssetUsage reports which objects' current revisions reference assetID.
	AssetUsage(ctx context.Context, assetID string) (*AssetUsage, error)
}

// CollectionSpec configures a RevisionStore for one content type.
type CollectionSpec struct {
	// Kind is the singular name used in errors ("station").
	Kind string
	// Name is the collection/table name ("stations").
	Name string
	// HasEnabled marks collections whose documents carry an enabled flag.
	HasEnabled bool
	// Searchable lists top-level document fields searched in addition to id.
	Searchable []string
	// OrderBy is the document field for default ordering; empty orders by id.
	OrderBy string
}

// Collection specs for the three revisioned content types.
var (
	StationSpec = CollectionSpec{
		Kind:       "station",
		Name:       "stations",
		HasEnabled: true,
		Searchable: []string{"title", "long_title", "subtitle"},
		OrderBy:    "rank",
	}
	PageSpec = CollectionSpec{
		Kind:       "page",
		Name:       "pages",
		HasEnabled: true,
		Searchable: []string{"title", "long_title", "subtitle", "content"},
		OrderBy:    "rank",
	}
	ModalSpec = CollectionSpec{
		Kind:       "modal",
		Name:       "modals",
		HasEnabled: false,
		Searchable: []string{"title", "content"},
	}
)

// AssetStore is the registry for binary asset metadata. It never touches the
// bytes; those live in a BlobStore keyed by file name.
type AssetStore interface {
	// List returns all non-deleted assets with derived usage counts.
	List(ctx context.Context) ([]*AssetWithUsage, error)

	// ListUsed returns assets referenced by at least one non-deleted object's
	// current revision, optionally restricted to enabled objects. This is the
	// selection a release bundle ships.
	ListUsed(ctx context.Context, onlyEnabled bool) ([]*AssetWithUsage, error)

	// Get returns one asset (including soft-deleted rows) with usage counts.
	Get(ctx context.Context, id string) (*AssetWithUsage, error)

	// Set upserts asset metadata.
	Set(ctx context.Context, a *Asset) (*Asset, error)

	// Delete soft-deletes the metadata row. Callers remove the blob.
	Delete(ctx context.Context, id string) error

	// FindByChecksum returns the first non-deleted asset with the given SHA-1
	// checksum, or ErrNotFound. Used for import de-duplication.
	FindByChecksum(ctx context.Context, sha1 string) (*Asset, error)
}

// ReleaseStore persists release rows. Version assignment is the store's.
type ReleaseStore interface {
	List(ctx context.Context) ([]*Release, error)
	Get(ctx context.Context, version int) (*Release, error)
	Latest(ctx context.Context) (*Release, error)

	// Create inserts a provisional row, assigning the next version.
	Create(ctx context.Context, r *Release) (*Release, error)

	// Update rewrites the mutable fields (release notes, published timestamp).
	Update(ctx context.Context, r *Release) (*Release, error)

	// SetBundleSize records the final archive size after assembly.
	SetBundleSize(ctx context.Context, version int, size int64) error

	// Remove hard-deletes a release row; the compensating step when bundle
	// assembly fails after the provisional row was written.
	Remove(ctx context.Context, version int) error
}

// SectionStore persists station sections (simple in-place key/value rows).
type SectionStore interface {
	List(ctx context.Context) ([]*Section, error)
	Get(ctx context.Context, id string) (*Section, error)
	Set(ctx context.Context, s *Section) (*Section, error)
}

// CategoryStore persists the flat station category list.
type CategoryStore interface {
	List(ctx context.Context) ([]string, error)
	Replace(ctx context.Context, ids []string) error
}

// LayerStore persists map layers.
type LayerStore interface {
	List(ctx context.Context) ([]*Layer, error)
	Get(ctx context.Context, id string) (*Layer, error)
	Set(ctx context.Context, l *Layer) (*Layer, error)
	Delete(ctx context.Context, id string) error
}

// SettingsStore persists app settings.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
	// Merge upserts the given keys and returns the full resulting settings.
	Merge(ctx context.Context, s Settings) (Settings, error)
}

// FeedbackStore persists visitor feedback.
type FeedbackStore interface {
	List(ctx context.Context) ([]*FeedbackItem, error)
	Get(ctx context.Context, id string) (*FeedbackItem, error)
	Set(ctx context.Context, f *FeedbackItem) (*FeedbackItem, error)
}

// TokenStore persists one-time tokens.
type TokenStore interface {
	Get(ctx context.Context, token string) (*OneTimeToken, error)
	Set(ctx context.Context, t *OneTimeToken) (*OneTimeToken, error)
	Delete(ctx context.Context, token string) error
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	Stations() RevisionStore
	Pages() RevisionStore
	Modals() RevisionStore
	Assets() AssetStore
	Releases() ReleaseStore
	Sections() SectionStore
	Categories() CategoryStore
	Layers() LayerStore
	Settings() SettingsStore
	Feedback() FeedbackStore
	Tokens() TokenStore
	Close() error
}

// BlobMeta describes one stored blob.
type BlobMeta struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// BlobStore holds binary payloads (asset bytes, release bundles). Upload must
// be atomic with respect to readers: a key either resolves to the complete
// payload or does not resolve at all, never to a partial write.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Meta(ctx context.Context, key string) (*BlobMeta, error)
}
