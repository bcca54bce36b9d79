package protocol

import (
	"errors"

	"hudbridge.ai/internal/drawable"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Drawable registry and codec.
	ErrUnknownTag   = "E_UNKNOWN_TAG"
	ErrUnknownKind  = "E_UNKNOWN_KIND"
	ErrUnknownField = "E_UNKNOWN_FIELD"
	ErrTypeMismatch = "E_TYPE_MISMATCH"
	ErrArity        = "E_ARITY"

	// Op layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNotFound     = "E_NOT_FOUND"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrUnknownTag:      {},
	ErrUnknownKind:     {},
	ErrUnknownField:    {},
	ErrTypeMismatch:    {},
	ErrArity:           {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrNoPermission:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps a drawable error onto its wire code. Unrecognised errors are internal.
func CodeFor(err error) string {
	var (
		ut *drawable.UnknownTagError
		uk *drawable.UnknownKindError
		uf *drawable.UnknownFieldError
		tm *drawable.TypeMismatchError
		am *drawable.ArityMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ut):
		return ErrUnknownTag
	case errors.As(err, &uk):
		return ErrUnknownKind
	case errors.As(err, &uf):
		return ErrUnknownField
	case errors.As(err, &tm):
		return ErrTypeMismatch
	case errors.As(err, &am):
		return ErrArity
	}
	return ErrInternal
}
