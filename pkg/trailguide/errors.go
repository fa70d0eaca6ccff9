package trailguide

import (
	"errors"
	"fmt"
	"strings"
)

// Error sentinels. Handlers map these onto HTTP statuses; store and service
// code wraps them with context via %w or the typed errors below.
var (
	// ErrNotFound indicates an object, asset, or release is absent or
	// soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrUnknownAssetType indicates an asset's category could not be derived
	// from its file extension and no usable override was supplied.
	ErrUnknownAssetType = errors.New("no asset_type provided, and could not figure it out automatically")

	// ErrValidationFailed indicates a candidate object was rejected by its
	// validator.
	ErrValidationFailed = errors.New("object validation failed")

	// ErrImmutableField indicates an attempt to alter a field that is fixed
	// after creation (object ID, release bundle path, ...).
	ErrImmutableField = errors.New("immutable field")
)

// NotFoundError is ErrNotFound with the object kind and ID attached, so
// handlers can render the message the mobile admin client expects.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %s with ID %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Violation is a single structured validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationError carries the full violation list for a rejected object.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("object validation failed: %s", strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// ImmutableFieldError is ErrImmutableField with the offending field named.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("cannot alter %s", e.Field)
}

func (e *ImmutableFieldError) Unwrap() error { return ErrImmutableField }

// BundleError represents a failure while assembling or publishing a release
// bundle. It always triggers a full rollback of the release being created.
type BundleError struct {
	Op  string
	Err error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle assembly failed during %s: %v", e.Op, e.Err)
}

func (e *BundleError) Unwrap() error { return e.Err }

// StoreError represents a persistence failure in one of the stores.
type StoreError struct {
	Collection string
	Op         string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed for %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
