package protocol

import (
	"errors"
	"fmt"
	"testing"

	"hudbridge.ai/internal/drawable"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrUnknownTag,
		ErrUnknownKind,
		ErrUnknownField,
		ErrTypeMismatch,
		ErrArity,
		ErrBadRequest,
		ErrNotFound,
		ErrNoPermission,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&drawable.UnknownTagError{Tag: 9}, ErrUnknownTag},
		{fmt.Errorf("decode: %w", &drawable.UnknownKindError{}), ErrUnknownKind},
		{&drawable.UnknownFieldError{Field: "r"}, ErrUnknownField},
		{&drawable.TypeMismatchError{Field: "x"}, ErrTypeMismatch},
		{&drawable.ArityMismatchError{}, ErrArity},
		{errors.New("boom"), ErrInternal},
	}
	for _, c := range cases {
		if got := CodeFor(c.err); got != c.want {
			t.Fatalf("CodeFor(%v): got %q want %q", c.err, got, c.want)
		}
		if !IsKnownCode(CodeFor(c.err)) {
			t.Fatalf("CodeFor(%v) produced unknown code", c.err)
		}
	}
}
