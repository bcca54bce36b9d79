package drawable

import (
	"fmt"
	"strings"
)

// Kind is one member of the closed set of drawable primitives.
type Kind uint8

const (
	KindBox Kind = iota + 1
	KindGradient
	KindText
	KindLiquid
	KindItem
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindBox, KindGradient, KindText, KindLiquid, KindItem}

func (k Kind) String() string {
	switch k {
	case KindBox:
		return "BOX"
	case KindGradient:
		return "GRADIENT"
	case KindText:
		return "TEXT"
	case KindLiquid:
		return "LIQUID"
	case KindItem:
		return "ITEM"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind accepts the names produced by Kind.String, case-insensitively.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Tag identifies a kind on the wire and in stored state. Tags never change meaning.
type Tag int

// DefaultTags is the historical tag table.
func DefaultTags() map[Kind]Tag {
	return map[Kind]Tag{
		KindGradient: 0,
		KindBox:      1,
		KindText:     2,
		KindLiquid:   3,
		KindItem:     4,
	}
}
