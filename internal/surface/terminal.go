package surface

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hudbridge.ai/internal/drawable"
)

const (
	GlobalMarker  = "GLOBAL"
	PrivateMarker = "PRIVATE"
)

// guidSpace keeps generated ids within eight base-36 digits.
const guidSpace = 2821109907456 // 36^8

// GenerateGUID returns a random terminal id.
func GenerateGUID() uint64 {
	u := uuid.New()
	return binary.BigEndian.Uint64(u[:8]) % guidSpace
}

// FormatTerminalID renders id in upper-case base 36.
func FormatTerminalID(id uint64) string {
	return strings.ToUpper(strconv.FormatUint(id, 36))
}

// ParseTerminalID accepts base-36 ids in either case.
func ParseTerminalID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty terminal id")
	}
	id, err := strconv.ParseUint(strings.ToLower(s), 36, 64)
	if err != nil {
		return 0, fmt.Errorf("terminal id %q: %w", s, err)
	}
	return id, nil
}

// DefaultMaxSurfaces bounds the private surfaces of a terminal.
const DefaultMaxSurfaces = 1024

var ErrTooManySurfaces = errors.New("surface: private surface limit reached")

// Terminal is one bridge: a global surface every bound player sees, plus a
// private surface per player created on first use.
type Terminal struct {
	guid       uint64
	codec      *drawable.Codec
	global     *Surface
	private    map[string]*Surface
	maxPrivate int
}

func NewTerminal(guid uint64, codec *drawable.Codec) *Terminal {
	return &Terminal{
		guid:       guid,
		codec:      codec,
		global:     New(GlobalMarker, codec),
		private:    make(map[string]*Surface),
		maxPrivate: DefaultMaxSurfaces,
	}
}

// SetMaxSurfaces changes the private surface limit. Existing surfaces are kept
// even when there are more than n; only creation is refused.
func (t *Terminal) SetMaxSurfaces(n int) {
	if n > 0 {
		t.maxPrivate = n
	}
}

func (t *Terminal) GUID() uint64           { return t.guid }
func (t *Terminal) ID() string             { return FormatTerminalID(t.guid) }
func (t *Terminal) Codec() *drawable.Codec { return t.codec }
func (t *Terminal) Global() *Surface       { return t.global }

// ValidSurfaceName reports whether name can address a surface.
func ValidSurfaceName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != PrivateMarker && len(name) <= 64
}

// Surface returns the global surface for "" or GLOBAL and the player's private
// surface otherwise, creating it if needed.
func (t *Terminal) Surface(name string) (*Surface, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == GlobalMarker {
		return t.global, nil
	}
	if !ValidSurfaceName(name) {
		return nil, fmt.Errorf("invalid surface name %q", name)
	}
	s, ok := t.private[name]
	if !ok {
		if len(t.private) >= t.maxPrivate {
			return nil, fmt.Errorf("%w (%d)", ErrTooManySurfaces, t.maxPrivate)
		}
		s = New(name, t.codec)
		t.private[name] = s
	}
	return s, nil
}

// Lookup returns an existing surface without creating one.
func (t *Terminal) Lookup(name string) (*Surface, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == GlobalMarker {
		return t.global, true
	}
	s, ok := t.private[name]
	return s, ok
}

// Surfaces returns the global surface first, then private ones by name.
func (t *Terminal) Surfaces() []*Surface {
	names := make([]string, 0, len(t.private))
	for n := range t.private {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Surface, 0, len(names)+1)
	out = append(out, t.global)
	for _, n := range names {
		out = append(out, t.private[n])
	}
	return out
}
