package bridge

import (
	"encoding/json"
	"sort"
	"strings"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/io/synccodec"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

// handleAct applies every op of one ACT in order and answers with a single
// ACT_RESULT. It returns the number of ops applied.
func (r *Runtime) handleAct(tick uint64, env ActEnvelope) int {
	c := r.clients[env.SessionID]
	if c == nil {
		return 0
	}
	results := make([]protocol.OpResult, 0, len(env.Act.Ops))
	applied := 0
	for _, op := range env.Act.Ops {
		var res protocol.OpResult
		if c.role != protocol.RoleProducer {
			res = failed(op.ID, opErrorf(protocol.ErrNoPermission, "%s sessions cannot act", c.role))
		} else {
			res = r.applyOp(op)
		}
		if res.OK {
			applied++
		}
		results = append(results, res)
		if r.actLogger != nil {
			_ = r.actLogger.WriteAct(ActLogEntry{Tick: tick, SessionID: c.id, Op: op, Result: res})
		}
	}
	b, err := json.Marshal(protocol.ActResultMsg{
		Type:            protocol.TypeActResult,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Results:         results,
	})
	if err == nil {
		r.send(c, b)
	}
	return applied
}

func failed(id string, err error) protocol.OpResult {
	return protocol.OpResult{ID: id, OK: false, Code: CodeFor(err), Message: err.Error()}
}

func (r *Runtime) applyOp(op protocol.OpReq) protocol.OpResult {
	var (
		target surface.ID
		err    error
	)
	switch strings.ToUpper(op.Op) {
	case protocol.OpAdd:
		target, err = r.opAdd(op)
	case protocol.OpSet:
		target, err = r.opSet(op)
	case protocol.OpRemove:
		target, err = r.opRemove(op)
	case protocol.OpClear:
		err = r.opClear(op)
	default:
		err = opErrorf(protocol.ErrBadRequest, "unknown op %q", op.Op)
	}
	if err != nil {
		return failed(op.ID, err)
	}
	return protocol.OpResult{ID: op.ID, OK: true, Target: uint32(target)}
}

func (r *Runtime) opAdd(op protocol.OpReq) (surface.ID, error) {
	kind, ok := drawable.ParseKind(op.Kind)
	if !ok {
		return 0, opErrorf(protocol.ErrUnknownKind, "unknown kind %q", op.Kind)
	}
	reg := r.codec.Registry()
	tag, err := reg.TagOf(kind)
	if err != nil {
		return 0, err
	}
	d, err := reg.InstantiateBlank(tag)
	if err != nil {
		return 0, err
	}
	if err := setFields(d, op.Fields); err != nil {
		return 0, err
	}
	d.Normalize()
	s, err := r.term.Surface(op.Surface)
	if err != nil {
		return 0, opErrorf(protocol.ErrBadRequest, "%v", err)
	}
	return s.Add(d)
}

// opSet is all-or-nothing: fields are tried on a copy before touching the
// live drawable. Every field the copy ends up changing, including ones the
// kind's rules rewrote, is set on the live drawable so it reaches viewers.
func (r *Runtime) opSet(op protocol.OpReq) (surface.ID, error) {
	s, d, err := r.lookup(op)
	if err != nil {
		return 0, err
	}
	if len(op.Fields) == 0 {
		return 0, opErrorf(protocol.ErrBadRequest, "SET without fields")
	}
	trial := d.Clone()
	if err := setFields(trial, op.Fields); err != nil {
		return 0, err
	}
	trial.Normalize()
	id := surface.ID(op.Target)
	for _, f := range d.Schema().Fields() {
		v, _ := trial.Get(f.Name)
		if _, named := op.Fields[f.Name]; !named {
			if cur, _ := d.Get(f.Name); cur == v {
				continue
			}
		}
		if err := s.SetField(id, f.Name, v); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *Runtime) opRemove(op protocol.OpReq) (surface.ID, error) {
	s, _, err := r.lookup(op)
	if err != nil {
		return 0, err
	}
	s.Remove(surface.ID(op.Target))
	return surface.ID(op.Target), nil
}

func (r *Runtime) opClear(op protocol.OpReq) error {
	s, ok := r.term.Lookup(op.Surface)
	if !ok {
		return opErrorf(protocol.ErrNotFound, "no surface %q", op.Surface)
	}
	s.Clear()
	return nil
}

func (r *Runtime) lookup(op protocol.OpReq) (*surface.Surface, *drawable.Drawable, error) {
	s, ok := r.term.Lookup(op.Surface)
	if !ok {
		return nil, nil, opErrorf(protocol.ErrNotFound, "no surface %q", op.Surface)
	}
	d, ok := s.Get(surface.ID(op.Target))
	if !ok {
		return nil, nil, opErrorf(protocol.ErrNotFound, "no drawable %d on %s", op.Target, s.Name())
	}
	return s, d, nil
}

// setFields decodes raw values against d's schema and applies them in name
// order. It stops at the first failure, leaving d partly updated.
func setFields(d *drawable.Drawable, fields map[string]json.RawMessage) error {
	sch := d.Schema()
	for _, name := range sortedNames(fields) {
		i := sch.Index(name)
		if i < 0 {
			return &drawable.UnknownFieldError{Kind: sch.Kind(), Field: name}
		}
		v, err := synccodec.DecodeValue(sch.Kind(), sch.Field(i), fields[name])
		if err != nil {
			return err
		}
		if err := d.SetField(name, v); err != nil {
			return err
		}
	}
	return nil
}

func sortedNames(fields map[string]json.RawMessage) []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
