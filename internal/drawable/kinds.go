package drawable

// Built-in schemas. Field order after the positional prefix is frozen.
var (
	BoxSchema = mustSchema(KindBox,
		Field{Name: "width", Type: Int16},
		Field{Name: "height", Type: Int16},
		Field{Name: "color", Type: Int32},
		Field{Name: "opacity", Type: Float32},
	)

	// The gradient discriminator is overloaded: 0 means single colour (older
	// producers only sent color1/opacity1), 1 vertical, anything else horizontal.
	GradientSchema = mustSchema(KindGradient,
		Field{Name: "width", Type: Int16},
		Field{Name: "height", Type: Int16},
		Field{Name: "color1", Type: Int32},
		Field{Name: "opacity1", Type: Float32},
		Field{Name: "color2", Type: Int32},
		Field{Name: "opacity2", Type: Float32},
		Field{Name: "gradient", Type: Int32},
	).WithNormalizer(normalizeGradient)

	TextSchema = mustSchema(KindText,
		Field{Name: "text", Type: String},
		Field{Name: "color", Type: Int32},
		Field{Name: "alpha", Type: Float64, Default: float64(1)},
		Field{Name: "scale", Type: Float32, Default: float32(1)},
	)

	LiquidSchema = mustSchema(KindLiquid,
		Field{Name: "width", Type: Int16},
		Field{Name: "height", Type: Int16},
		Field{Name: "fluid", Type: String},
		Field{Name: "alpha", Type: Float32, Default: float32(1)},
	)

	ItemSchema = mustSchema(KindItem,
		Field{Name: "scale", Type: Float32, Default: float32(1)},
		Field{Name: "angle", Type: Float32, Default: float32(30)},
		Field{Name: "id", Type: Int32},
		Field{Name: "meta", Type: Int32},
	)
)

// BuiltinSchemas maps every kind to its schema.
func BuiltinSchemas() map[Kind]*Schema {
	return map[Kind]*Schema{
		KindBox:      BoxSchema,
		KindGradient: GradientSchema,
		KindText:     TextSchema,
		KindLiquid:   LiquidSchema,
		KindItem:     ItemSchema,
	}
}

// Gradient direction values.
const (
	GradientSingle     int32 = 0
	GradientVertical   int32 = 1
	GradientHorizontal int32 = 2
)

func normalizeGradient(s *Schema, v []any) {
	if g, _ := v[s.mustIndex("gradient")].(int32); g != GradientSingle {
		return
	}
	v[s.mustIndex("color2")] = v[s.mustIndex("color1")]
	v[s.mustIndex("opacity2")] = v[s.mustIndex("opacity1")]
}

// build sets the named values on a blank instance of s and clears the dirty set.
// Values are given as name, value pairs.
func build(s *Schema, x, y int16, kv ...any) *Drawable {
	d := Blank(s)
	d.values[0] = x
	d.values[1] = y
	for i := 0; i+1 < len(kv); i += 2 {
		name := kv[i].(string)
		v, ok := coerce(s.fields[s.mustIndex(name)].Type, kv[i+1])
		if !ok {
			panic("drawable: bad constructor value for " + s.kind.String() + "." + name)
		}
		d.values[s.mustIndex(name)] = v
	}
	if s.normalize != nil {
		s.normalize(s, d.values)
	}
	return d
}

func NewBox(x, y, width, height int16, color int32, opacity float32) *Drawable {
	return build(BoxSchema, x, y,
		"width", width, "height", height, "color", color, "opacity", opacity)
}

// NewGradient builds a gradient box. With gradient == GradientSingle the second
// colour pair is ignored and copied from the first.
func NewGradient(x, y, width, height int16, color1 int32, opacity1 float32, color2 int32, opacity2 float32, gradient int32) *Drawable {
	return build(GradientSchema, x, y,
		"width", width, "height", height,
		"color1", color1, "opacity1", opacity1,
		"color2", color2, "opacity2", opacity2,
		"gradient", gradient)
}

func NewText(x, y int16, text string, color int32) *Drawable {
	return build(TextSchema, x, y, "text", text, "color", color)
}

func NewItem(x, y int16, id, meta int32) *Drawable {
	return build(ItemSchema, x, y, "id", id, "meta", meta)
}

func NewLiquid(x, y, width, height int16, fluid string) *Drawable {
	return build(LiquidSchema, x, y, "width", width, "height", height, "fluid", fluid)
}
