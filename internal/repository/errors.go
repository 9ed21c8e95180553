package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var ErrNoSpatialSupport = errors.New("storage backend has no spatial extension")

type SpatialErrorKind int

const (
	SpatialOther SpatialErrorKind = iota
	SpatialExtensionMissing
	SpatialFunctionBroken
	SpatialPermissionDenied
)

func (k SpatialErrorKind) String() string {
	switch k {
	case SpatialExtensionMissing:
		return "extension_missing"
	case SpatialFunctionBroken:
		return "function_broken"
	case SpatialPermissionDenied:
		return "permission_denied"
	default:
		return "other"
	}
}

// SpatialError is returned by storage adapters for any failure on the spatial
// path. Kind is derived from the driver's error code, not its message.
type SpatialError struct {
	Kind SpatialErrorKind
	Op   string
	Err  error
}

func (e *SpatialError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *SpatialError) Unwrap() error {
	return e.Err
}

// KindOf extracts the spatial kind from err, or SpatialOther.
func KindOf(err error) SpatialErrorKind {
	var se *SpatialError
	if errors.As(err, &se) {
		return se.Kind
	}
	return SpatialOther
}

// Postgres SQLSTATE codes that mean the spatial functions are not usable.
const (
	codeUndefinedFunction     = "42883" // function/operator does not exist
	codeUndefinedObject       = "42704" // type does not exist
	codeUndefinedFile         = "58P01" // extension library missing on disk
	codeInsufficientPrivilege = "42501"
)

func classifyPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := SpatialOther
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUndefinedFunction, codeUndefinedObject, codeUndefinedFile:
			kind = SpatialFunctionBroken
		case codeInsufficientPrivilege:
			kind = SpatialPermissionDenied
		}
	}
	return &SpatialError{Kind: kind, Op: op, Err: err}
}
