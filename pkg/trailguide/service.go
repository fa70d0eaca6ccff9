package trailguide

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service ties the content collections, the misc entity stores, and the two
// blob backends (asset bytes, release bundles) together behind the operations
// the HTTP layer and CLIs call.
type Service struct {
	store       Store
	assetBlobs  BlobStore
	bundleBlobs BlobStore
	public      map[string]any

	Stations *Collection[*Station]
	Pages    *Collection[*Page]
	Modals   *Collection[*Modal]
}

// NewService builds a Service. publicConfig is the subset of server
// configuration shipped to clients (GET /config and the bundle's config.json).
func NewService(store Store, assetBlobs, bundleBlobs BlobStore, publicConfig map[string]any) *Service {
	return &Service{
		store:       store,
		assetBlobs:  assetBlobs,
		bundleBlobs: bundleBlobs,
		public:      publicConfig,

		Stations: NewStationCollection(store.Stations()),
		Pages:    NewPageCollection(store.Pages()),
		Modals:   NewModalCollection(store.Modals()),
	}
}

// Store exposes the underlying entity stores for the simple (non-revisioned)
// resources.
func (s *Service) Store() Store { return s.store }

// PublicConfig returns the client-visible configuration subset.
func (s *Service) PublicConfig() map[string]any {
	out := make(map[string]any, len(s.public))
	for k, v := range s.public {
		out[k] = v
	}
	return out
}

// SectionsWithStations returns every section, ordered by section rank, with
// its stations nested in station-rank order.
func (s *Service) SectionsWithStations(ctx context.Context, enabledOnly bool) ([]*SectionWithStations, error) {
	sections, err := s.store.Sections().List(ctx)
	if err != nil {
		return nil, err
	}

	stations, err := s.Stations.GetAll(ctx, ListOptions{EnabledOnly: enabledOnly})
	if err != nil {
		return nil, err
	}

	bySection := make(map[string][]*Station, len(sections))
	for _, st := range stations {
		bySection[st.Section] = append(bySection[st.Section], st)
	}

	nested := make([]*SectionWithStations, 0, len(sections))
	for _, sec := range sections {
		data := bySection[sec.ID]
		if data == nil {
			data = []*Station{}
		}
		nested = append(nested, &SectionWithStations{
			ID:    sec.ID,
			Title: sec.Title,
			Rank:  sec.Rank,
			Data:  data,
		})
	}
	return nested, nil
}

// AssetUsage aggregates the reverse usage lookup for one asset across the
// three revisioned content types, keyed by kind.
func (s *Service) AssetUsage(ctx context.Context, assetID string) (map[string]*AssetUsage, error) {
	stationUsage, err := s.Stations.AssetUsage(ctx, assetID)
	if err != nil {
		return nil, err
	}
	pageUsage, err := s.Pages.AssetUsage(ctx, assetID)
	if err != nil {
		return nil, err
	}
	modalUsage, err := s.Modals.AssetUsage(ctx, assetID)
	if err != nil {
		return nil, err
	}

	return map[string]*AssetUsage{
		"station": stationUsage,
		"page":    pageUsage,
		"modal":   modalUsage,
	}, nil
}

// Search fans a query out across stations, pages, and modals.
func (s *Service) Search(ctx context.Context, query string) (*SearchResults, error) {
	stations, err := s.Stations.Search(ctx, query, ListOptions{})
	if err != nil {
		return nil, err
	}
	pages, err := s.Pages.Search(ctx, query, ListOptions{})
	if err != nil {
		return nil, err
	}
	modals, err := s.Modals.Search(ctx, query, ListOptions{})
	if err != nil {
		return nil, err
	}

	return &SearchResults{Stations: stations, Pages: pages, Modals: modals}, nil
}

// AssetUpload is one incoming asset payload.
type AssetUpload struct {
	FileName string
	// TypeOverride resolves files whose extension the classifier does not
	// recognize.
	TypeOverride AssetType
	Body         io.Reader
}

// CreateAsset classifies, stores, and registers a new asset. The stored file
// name is prefixed with upload time in unix milliseconds so repeated uploads
// of the same file never collide.
func (s *Service) CreateAsset(ctx context.Context, up AssetUpload) (*AssetWithUsage, error) {
	assetType, err := DetectAssetType(up.FileName, up.TypeOverride)
	if err != nil {
		return nil, err
	}

	storedName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), SecureFilename(up.FileName))

	size, checksum, err := s.uploadAssetBytes(ctx, storedName, up.Body)
	if err != nil {
		return nil, err
	}

	a := &Asset{
		ID:           uuid.NewString(),
		AssetType:    assetType,
		FileName:     storedName,
		FileSize:     size,
		SHA1Checksum: checksum,
	}
	if violations := ValidateAsset(a); len(violations) > 0 {
		if delErr := s.assetBlobs.Delete(ctx, storedName); delErr != nil {
			slog.Error("could not remove rejected asset upload", "file_name", storedName, "error", delErr)
		}
		return nil, &ValidationError{Violations: violations}
	}

	if _, err := s.store.Assets().Set(ctx, a); err != nil {
		return nil, err
	}
	return s.store.Assets().Get(ctx, a.ID)
}

// ReplaceAssetFile swaps the binary payload of an existing asset. The asset's
// type is immutable (the old bytes may be embedded as markup in documents we
// cannot rewrite), so the replacement file must classify to the same type.
// The previous blob is removed once the new one is fully stored.
func (s *Service) ReplaceAssetFile(ctx context.Context, id string, up AssetUpload) (*AssetWithUsage, error) {
	existing, err := s.store.Assets().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Deleted {
		return nil, &NotFoundError{Kind: "asset", ID: id}
	}

	assetType, err := DetectAssetType(up.FileName, up.TypeOverride)
	if err != nil {
		return nil, err
	}
	if assetType != existing.AssetType {
		return nil, &ImmutableFieldError{Field: "asset_type"}
	}

	base := SecureFilename(up.FileName)
	ext := ""
	if i := strings.LastIndex(base, "."); i >= 0 {
		base, ext = base[:i], base[i:]
	}
	storedName := fmt.Sprintf("%s-%d%s", base, time.Now().UnixMilli(), ext)

	size, checksum, err := s.uploadAssetBytes(ctx, storedName, up.Body)
	if err != nil {
		return nil, err
	}

	oldName := existing.FileName

	updated := existing.Asset
	updated.FileName = storedName
	updated.FileSize = size
	updated.SHA1Checksum = checksum
	if _, err := s.store.Assets().Set(ctx, &updated); err != nil {
		return nil, err
	}

	if err := s.assetBlobs.Delete(ctx, oldName); err != nil {
		slog.Error("could not remove replaced asset file", "asset", id, "file_name", oldName, "error", err)
	}

	return s.store.Assets().Get(ctx, id)
}

func (s *Service) uploadAssetBytes(ctx context.Context, key string, body io.Reader) (int64, string, error) {
	hash := sha1.New()
	counter := &countingReader{r: io.TeeReader(body, hash)}

	if err := s.assetBlobs.Upload(ctx, key, counter); err != nil {
		return 0, "", fmt.Errorf("store asset bytes: %w", err)
	}
	return counter.n, hex.EncodeToString(hash.Sum(nil)), nil
}

// AssetBytes opens the binary payload of an asset.
func (s *Service) AssetBytes(ctx context.Context, a *Asset) (io.ReadCloser, error) {
	return s.assetBlobs.Download(ctx, a.FileName)
}

// DeleteAsset soft-deletes the metadata row and removes the stored bytes.
// The metadata row remains for auditability; only the payload is gone.
func (s *Service) DeleteAsset(ctx context.Context, id string) error {
	a, err := s.store.Assets().Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Deleted {
		return nil
	}

	if err := s.store.Assets().Delete(ctx, id); err != nil {
		return err
	}
	if err := s.assetBlobs.Delete(ctx, a.FileName); err != nil {
		slog.Error("could not remove deleted asset file", "asset", id, "file_name", a.FileName, "error", err)
	}
	return nil
}

// Token TTL for minted one-time tokens.
const tokenTTL = 60 * time.Second

// MintToken creates a short-lived, single-use read token (for bundle
// download links that cannot carry an Authorization header).
func (s *Service) MintToken(ctx context.Context) (*OneTimeToken, error) {
	t := &OneTimeToken{
		Token:  uuid.NewString(),
		Scope:  ScopeReadContent,
		Expiry: UTCTimestamp(time.Now().Add(tokenTTL)),
	}
	return s.store.Tokens().Set(ctx, t)
}

// ConsumeToken validates a one-time token for the required scope and spends
// it. Unknown, expired, or mis-scoped tokens all report ErrNotFound; expired
// tokens are cleaned up on the way.
func (s *Service) ConsumeToken(ctx context.Context, token, requiredScope string) error {
	t, err := s.store.Tokens().Get(ctx, token)
	if err != nil {
		return err
	}

	expiry, err := time.Parse(time.RFC3339, t.Expiry)
	if err != nil || time.Now().After(expiry) {
		if delErr := s.store.Tokens().Delete(ctx, token); delErr != nil {
			slog.Error("could not remove expired token", "error", delErr)
		}
		return ErrNotFound
	}
	if t.Scope != requiredScope {
		return ErrNotFound
	}

	return s.store.Tokens().Delete(ctx, token)
}
