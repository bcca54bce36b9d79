// Package render paints drawables onto a terminal grid.
//
// Drawable coordinates are HUD pixels. A view matrix maps them to cells, so a
// box 60 pixels wide covers 10 cells at the default 6x12 cell size.
package render

import (
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl32"

	"hudbridge.ai/internal/drawable"
)

// snap absorbs float32 error at cell edges.
const snap = 1e-4

// glyphWidth is the advance of one text glyph in HUD pixels.
const glyphWidth = 6

const (
	liquidRune = '≈'
	fillRune   = ' '
)

// Canvas is the part of tcell.Screen the renderer needs.
type Canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (int, int)
}

type Options struct {
	CellWidth  int
	CellHeight int
	Background int32
	Fluids     map[string]int32
	Items      map[int32]string
}

type Renderer struct {
	opts Options
	view mgl32.Mat4
}

func New(opts Options) *Renderer {
	if opts.CellWidth <= 0 {
		opts.CellWidth = 6
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = 12
	}
	return &Renderer{
		opts: opts,
		view: mgl32.Scale3D(1/float32(opts.CellWidth), 1/float32(opts.CellHeight), 1),
	}
}

// Draw paints ds in the given order; later drawables cover earlier ones.
func (r *Renderer) Draw(c Canvas, ds []*drawable.Drawable) {
	for _, d := range ds {
		r.DrawOne(c, d)
	}
}

// DrawOne dispatches on the drawable's kind.
func (r *Renderer) DrawOne(c Canvas, d *drawable.Drawable) {
	m := r.view.Mul4(mgl32.Translate3D(float32(d.X()), float32(d.Y()), float32(d.Z())))
	switch d.Kind() {
	case drawable.KindBox:
		r.drawBox(c, m, d)
	case drawable.KindGradient:
		r.drawGradient(c, m, d)
	case drawable.KindText:
		r.drawText(c, m, d)
	case drawable.KindLiquid:
		r.drawLiquid(c, m, d)
	case drawable.KindItem:
		r.drawItem(c, m, d)
	}
}

// cellRect maps the local rectangle (0,0)-(w,h) to a half-open cell range.
func cellRect(m mgl32.Mat4, w, h float32) (x0, y0, x1, y1 int) {
	a := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	b := m.Mul4x1(mgl32.Vec4{w, h, 0, 1})
	ax, bx := order(a.X(), b.X())
	ay, by := order(a.Y(), b.Y())
	return int(math.Floor(float64(ax) + snap)), int(math.Floor(float64(ay) + snap)),
		int(math.Ceil(float64(bx) - snap)), int(math.Ceil(float64(by) - snap))
}

func cellAt(m mgl32.Mat4, x, y float32) (int, int) {
	p := m.Mul4x1(mgl32.Vec4{x, y, 0, 1})
	return int(math.Floor(float64(p.X()) + snap)), int(math.Floor(float64(p.Y()) + snap))
}

func order(a, b float32) (float32, float32) {
	if a > b {
		return b, a
	}
	return a, b
}

func (r *Renderer) fill(c Canvas, x0, y0, x1, y1 int, paint func(x, y int)) {
	cw, ch := c.Size()
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, cw), min(y1, ch)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			paint(x, y)
		}
	}
}

func put(c Canvas, x, y int, ch rune, st tcell.Style) {
	w, h := c.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	c.SetContent(x, y, ch, nil, st)
}

func (r *Renderer) drawBox(c Canvas, m mgl32.Mat4, d *drawable.Drawable) {
	col := r.blend(d.GetInt32("color"), float64(d.GetFloat32("opacity")))
	st := tcell.StyleDefault.Background(col)
	x0, y0, x1, y1 := cellRect(m, float32(d.GetInt16("width")), float32(d.GetInt16("height")))
	r.fill(c, x0, y0, x1, y1, func(x, y int) { c.SetContent(x, y, fillRune, nil, st) })
}

// drawGradient runs colour2 to colour1: top to bottom when vertical, left to
// right otherwise.
func (r *Renderer) drawGradient(c Canvas, m mgl32.Mat4, d *drawable.Drawable) {
	c1, o1 := d.GetInt32("color1"), float64(d.GetFloat32("opacity1"))
	c2, o2 := d.GetInt32("color2"), float64(d.GetFloat32("opacity2"))
	vertical := d.GetInt32("gradient") == drawable.GradientVertical
	x0, y0, x1, y1 := cellRect(m, float32(d.GetInt16("width")), float32(d.GetInt16("height")))
	r.fill(c, x0, y0, x1, y1, func(x, y int) {
		t := ramp(x, x0, x1)
		if vertical {
			t = ramp(y, y0, y1)
		}
		col := r.blend(lerpRGB(c2, c1, t), o2+(o1-o2)*t)
		c.SetContent(x, y, fillRune, nil, tcell.StyleDefault.Background(col))
	})
}

// ramp is the position of cell i in [lo, hi) as 0..1, sampled at cell centres
// and pinned to the ends.
func ramp(i, lo, hi int) float64 {
	n := hi - lo
	if n <= 1 {
		return 0
	}
	return float64(i-lo) / float64(n-1)
}

func (r *Renderer) drawText(c Canvas, m mgl32.Mat4, d *drawable.Drawable) {
	s := d.GetFloat32("scale")
	m = m.Mul4(mgl32.Scale3D(s, s, 1))
	st := tcell.StyleDefault.
		Foreground(r.blend(d.GetInt32("color"), d.GetFloat64("alpha"))).
		Background(rgb(r.opts.Background))
	i := 0
	for _, ch := range d.GetString("text") {
		x, y := cellAt(m, float32(i*glyphWidth), 0)
		put(c, x, y, ch, st)
		i++
	}
}

func (r *Renderer) drawLiquid(c Canvas, m mgl32.Mat4, d *drawable.Drawable) {
	color, ok := r.opts.Fluids[d.GetString("fluid")]
	if !ok {
		return
	}
	st := tcell.StyleDefault.
		Foreground(r.blend(color, float64(d.GetFloat32("alpha")))).
		Background(rgb(r.opts.Background))
	x0, y0, x1, y1 := cellRect(m, float32(d.GetInt16("width")), float32(d.GetInt16("height")))
	r.fill(c, x0, y0, x1, y1, func(x, y int) { c.SetContent(x, y, liquidRune, nil, st) })
}

// drawItem places the item's glyph. Cells cannot show rotation, so angle only
// matters to graphical renderers.
func (r *Renderer) drawItem(c Canvas, m mgl32.Mat4, d *drawable.Drawable) {
	glyph, ok := r.opts.Items[d.GetInt32("id")]
	if !ok || glyph == "" {
		return
	}
	s := d.GetFloat32("scale")
	m = m.Mul4(mgl32.Scale3D(s, s, 1))
	x, y := cellAt(m, 0, 0)
	st := tcell.StyleDefault.Background(rgb(r.opts.Background))
	for _, ch := range glyph {
		put(c, x, y, ch, st)
		x++
	}
}

func (r *Renderer) blend(color int32, alpha float64) tcell.Color {
	return rgb(lerpRGB(r.opts.Background, color, clamp01(alpha)))
}

func rgb(c int32) tcell.Color {
	return tcell.NewRGBColor((c>>16)&0xFF, (c>>8)&0xFF, c&0xFF)
}

func lerpRGB(a, b int32, t float64) int32 {
	ch := func(shift uint) int32 {
		x := float64((a >> shift) & 0xFF)
		y := float64((b >> shift) & 0xFF)
		return int32(math.Round(x+(y-x)*t)) << shift
	}
	return ch(16) | ch(8) | ch(0)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
