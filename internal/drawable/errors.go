package drawable

import (
	"errors"
	"fmt"
)

// ErrSealed is returned by Register once the registry has been sealed.
var ErrSealed = errors.New("drawable: registry sealed")

type DuplicateTagError struct {
	Tag      Tag
	Kind     Kind
	Existing Kind
}

func (e *DuplicateTagError) Error() string {
	return fmt.Sprintf("drawable: tag %d for %s already bound to %s", e.Tag, e.Kind, e.Existing)
}

type DuplicateKindError struct {
	Kind     Kind
	Tag      Tag
	Existing Tag
}

func (e *DuplicateKindError) Error() string {
	return fmt.Sprintf("drawable: kind %s (tag %d) already registered with tag %d", e.Kind, e.Tag, e.Existing)
}

type UnknownTagError struct {
	Tag Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("drawable: unknown tag %d", e.Tag)
}

type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("drawable: unknown kind %s", e.Kind)
}

type UnknownFieldError struct {
	Kind  Kind
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("drawable: %s has no field %q", e.Kind, e.Field)
}

type TypeMismatchError struct {
	Kind  Kind
	Field string
	Want  FieldType
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("drawable: %s.%s wants %s, got %s", e.Kind, e.Field, e.Want, e.Got)
}

type ArityMismatchError struct {
	Tag  Tag
	Kind Kind
	Want int
	Got  int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("drawable: tag %d (%s) wants %d values, got %d", e.Tag, e.Kind, e.Want, e.Got)
}
