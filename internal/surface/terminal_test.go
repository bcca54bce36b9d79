package surface

import (
	"errors"
	"testing"
)

func TestTerminalID_FormatParse(t *testing.T) {
	cases := []struct {
		id   uint64
		want string
	}{
		{0, "0"},
		{35, "Z"},
		{36, "10"},
		{guidSpace - 1, "ZZZZZZZZ"},
	}
	for _, c := range cases {
		if got := FormatTerminalID(c.id); got != c.want {
			t.Fatalf("FormatTerminalID(%d): got %q want %q", c.id, got, c.want)
		}
		back, err := ParseTerminalID(c.want)
		if err != nil || back != c.id {
			t.Fatalf("ParseTerminalID(%q) = %d, %v", c.want, back, err)
		}
	}
	if id, err := ParseTerminalID("zz"); err != nil || id != 36*36-1 {
		t.Fatalf("lower-case parse: %d, %v", id, err)
	}
	if _, err := ParseTerminalID("not-base36"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseTerminalID(" "); err == nil {
		t.Fatalf("expected empty id error")
	}
}

func TestGenerateGUID_Range(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 64; i++ {
		g := GenerateGUID()
		if g >= guidSpace {
			t.Fatalf("guid out of range: %d", g)
		}
		if len(FormatTerminalID(g)) > 8 {
			t.Fatalf("guid too long: %s", FormatTerminalID(g))
		}
		seen[g] = true
	}
	if len(seen) < 60 {
		t.Fatalf("guids not random enough: %d distinct of 64", len(seen))
	}
}

func TestTerminal_Surfaces(t *testing.T) {
	term := NewTerminal(1234, testCodec(t))
	g, err := term.Surface("")
	if err != nil || g != term.Global() {
		t.Fatalf("empty name should address global surface")
	}
	if g2, _ := term.Surface(GlobalMarker); g2 != g {
		t.Fatalf("GLOBAL should address global surface")
	}
	if _, ok := term.Lookup("steve"); ok {
		t.Fatalf("private surface exists before use")
	}
	p, err := term.Surface("steve")
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if p2, _ := term.Surface("steve"); p2 != p {
		t.Fatalf("private surface recreated")
	}
	_, _ = term.Surface("alex")
	all := term.Surfaces()
	if len(all) != 3 || all[0] != g || all[1].Name() != "alex" || all[2].Name() != "steve" {
		t.Fatalf("surfaces order: %d", len(all))
	}
	if _, err := term.Surface(PrivateMarker); err == nil {
		t.Fatalf("PRIVATE marker must not name a surface")
	}
	if term.ID() != FormatTerminalID(1234) {
		t.Fatalf("terminal id: %s", term.ID())
	}
}

func TestTerminal_SurfaceLimit(t *testing.T) {
	term := NewTerminal(1, testCodec(t))
	term.SetMaxSurfaces(2)
	for _, name := range []string{"a", "b"} {
		if _, err := term.Surface(name); err != nil {
			t.Fatalf("Surface(%s): %v", name, err)
		}
	}
	if _, err := term.Surface("c"); !errors.Is(err, ErrTooManySurfaces) {
		t.Fatalf("third private surface: %v", err)
	}
	if _, ok := term.Lookup("c"); ok {
		t.Fatalf("refused surface was created")
	}
	if _, err := term.Surface("a"); err != nil {
		t.Fatalf("existing surface refused: %v", err)
	}
	if g, err := term.Surface(GlobalMarker); err != nil || g != term.Global() {
		t.Fatalf("global refused: %v", err)
	}
}
