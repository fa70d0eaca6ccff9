package trailguide

import (
	"context"
	"encoding/json"
	"fmt"
)

// CollectionConfig binds a CollectionSpec to the typed behavior the generic
// collection needs: constructing values, validating candidates, and deriving
// asset references and filter columns from an object.
type CollectionConfig[T Object] struct {
	Spec CollectionSpec

	New      func() T
	Validate func(T) []Violation

	// DirectRefs returns the values of fields holding bare asset IDs.
	DirectRefs func(T) []string
	// ScanValues returns the serialized rich-content values to scan for
	// embedded asset references.
	ScanValues func(T) []string

	// Enabled and Rank return the column values extracted from the object;
	// nil funcs mark collections without the corresponding field.
	Enabled func(T) *bool
	Rank    func(T) *int
}

// Collection is the typed facade over a RevisionStore for one content type.
// It owns document (de)serialization, validation, and asset-reference
// extraction; the store owns revision numbering and atomicity.
type Collection[T Object] struct {
	cfg   CollectionConfig[T]
	store RevisionStore
}

// NewCollection builds a typed collection over store.
func NewCollection[T Object](cfg CollectionConfig[T], store RevisionStore) *Collection[T] {
	return &Collection[T]{cfg: cfg, store: store}
}

// Spec returns the collection's configuration spec.
func (c *Collection[T]) Spec() CollectionSpec { return c.cfg.Spec }

// New returns a fresh zero-valued object of the collection's type.
func (c *Collection[T]) New() T { return c.cfg.New() }

func (c *Collection[T]) decode(row *RevisionRow) (T, error) {
	obj := c.cfg.New()
	if err := json.Unmarshal(row.Doc, obj); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s %s: %w", c.cfg.Spec.Kind, row.ID, err)
	}

	meta := obj.RevisionMetaRef()
	rev := row.Revision
	meta.Revision = &rev
	meta.Deleted = row.Deleted
	return obj, nil
}

func (c *Collection[T]) decodeAll(rows []*RevisionRow) ([]T, error) {
	objs := make([]T, 0, len(rows))
	for _, row := range rows {
		obj, err := c.decode(row)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// GetOne returns the current revision of id, or the revision requested in
// opts. Absent or (unless requested) soft-deleted objects yield a
// NotFoundError.
func (c *Collection[T]) GetOne(ctx context.Context, id string, opts GetOptions) (T, error) {
	row, err := c.store.GetOne(ctx, id, opts)
	if err != nil {
		var zero T
		if err == ErrNotFound {
			return zero, &NotFoundError{Kind: c.cfg.Spec.Kind, ID: id}
		}
		return zero, err
	}
	return c.decode(row)
}

// GetAll returns current revisions of all matching objects in default order.
func (c *Collection[T]) GetAll(ctx context.Context, opts ListOptions) ([]T, error) {
	rows, err := c.store.GetAll(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(rows)
}

// Search returns current revisions matching query as a case-insensitive
// substring of the ID or any searchable field.
func (c *Collection[T]) Search(ctx context.Context, query string, opts ListOptions) ([]T, error) {
	rows, err := c.store.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(rows)
}

// Set validates obj, derives its asset references, and writes it as a new
// revision of obj's ID, returning the object as freshly read back. An empty
// message selects the default ("created" for revision 1, "updated" after).
func (c *Collection[T]) Set(ctx context.Context, obj T, message string) (T, error) {
	var zero T

	if c.cfg.Validate != nil {
		if violations := c.cfg.Validate(obj); len(violations) > 0 {
			return zero, &ValidationError{Violations: violations}
		}
	}

	doc, err := c.encode(obj)
	if err != nil {
		return zero, err
	}

	rec := RevisionRecord{
		ID:        obj.ObjectID(),
		Doc:       doc,
		Message:   message,
		AssetRefs: c.assetRefs(obj),
	}
	if c.cfg.Enabled != nil {
		rec.Enabled = c.cfg.Enabled(obj)
	}
	if c.cfg.Rank != nil {
		rec.Rank = c.cfg.Rank(obj)
	}

	row, err := c.store.Set(ctx, rec)
	if err != nil {
		return zero, err
	}
	return c.decode(row)
}

// Delete writes a soft-delete revision for id, preserving the last content.
// No-op when the object is absent or already deleted.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, id)
}

// AssetUsage reports which of the collection's objects currently reference
// assetID, split active/inactive for collections with an enabled flag.
func (c *Collection[T]) AssetUsage(ctx context.Context, assetID string) (*AssetUsage, error) {
	return c.store.AssetUsage(ctx, assetID)
}

// encode serializes obj's content fields, excluding revision bookkeeping
// (that lives in store columns, not the document).
func (c *Collection[T]) encode(obj T) (json.RawMessage, error) {
	meta := obj.RevisionMetaRef()
	savedRev, savedDel := meta.Revision, meta.Deleted
	meta.Revision, meta.Deleted = nil, false
	defer func() {
		meta.Revision, meta.Deleted = savedRev, savedDel
	}()

	doc, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", c.cfg.Spec.Kind, obj.ObjectID(), err)
	}
	return doc, nil
}

func (c *Collection[T]) assetRefs(obj T) []string {
	var direct, scanned []string
	if c.cfg.DirectRefs != nil {
		direct = c.cfg.DirectRefs(obj)
	}
	if c.cfg.ScanValues != nil {
		scanned = c.cfg.ScanValues(obj)
	}
	return ExtractAssetRefs(direct, scanned)
}

// NewStationCollection builds the station collection over store.
func NewStationCollection(store RevisionStore) *Collection[*Station] {
	return NewCollection(CollectionConfig[*Station]{
		Spec:     StationSpec,
		New:      func() *Station { return &Station{} },
		Validate: ValidateStation,
		DirectRefs: func(s *Station) []string {
			if s.HeaderImage != nil {
				return []string{*s.HeaderImage}
			}
			return nil
		},
		ScanValues: func(s *Station) []string { return []string{string(s.Contents)} },
		Enabled:    func(s *Station) *bool { e := s.Enabled; return &e },
		Rank:       func(s *Station) *int { r := s.Rank; return &r },
	}, store)
}

// NewPageCollection builds the page collection over store.
func NewPageCollection(store RevisionStore) *Collection[*Page] {
	return NewCollection(CollectionConfig[*Page]{
		Spec:     PageSpec,
		New:      func() *Page { return &Page{} },
		Validate: ValidatePage,
		DirectRefs: func(p *Page) []string {
			if p.HeaderImage != nil {
				return []string{*p.HeaderImage}
			}
			return nil
		},
		ScanValues: func(p *Page) []string { return []string{p.Content} },
		Enabled:    func(p *Page) *bool { e := p.Enabled; return &e },
		Rank:       func(p *Page) *int { r := p.Rank; return &r },
	}, store)
}

// NewModalCollection builds the modal collection over store.
func NewModalCollection(store RevisionStore) *Collection[*Modal] {
	return NewCollection(CollectionConfig[*Modal]{
		Spec:       ModalSpec,
		New:        func() *Modal { return &Modal{} },
		Validate:   ValidateModal,
		ScanValues: func(m *Modal) []string { return []string{m.Content} },
	}, store)
}
