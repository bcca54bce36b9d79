// Package bridge runs the authoritative terminal: it owns every surface,
// applies producer ops and pushes sync batches to viewers once per tick.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/io/synccodec"
	"hudbridge.ai/internal/persistence/snapshot"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

type client struct {
	id      string
	name    string
	role    string
	surface string
	out     chan []byte
}

// Runtime is single-threaded: all terminal state is touched only from the Run
// goroutine.
type Runtime struct {
	cfg     Config
	codec   *drawable.Codec
	term    *surface.Terminal
	catalog []protocol.KindCatalog
	log     *log.Logger

	tick    atomic.Uint64
	metrics atomic.Value
	dropped atomic.Uint64

	clients map[string]*client

	join  chan JoinRequest
	leave chan string
	inbox chan ActEnvelope
	admin chan adminSnapshotReq
	stop  chan struct{}

	syncLogger   SyncLogger
	actLogger    ActLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg Config, term *surface.Terminal, logger *log.Logger) (*Runtime, error) {
	if term == nil {
		return nil, errors.New("bridge: nil terminal")
	}
	if cfg.SyncRateHz <= 0 {
		return nil, errors.New("bridge: sync rate must be > 0")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	term.SetMaxSurfaces(cfg.MaxSurfaces)
	r := &Runtime{
		cfg:     cfg,
		codec:   term.Codec(),
		term:    term,
		catalog: synccodec.BuildCatalog(term.Codec().Registry()),
		log:     logger,
		clients: make(map[string]*client),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan string, 64),
		inbox:   make(chan ActEnvelope, 1024),
		admin:   make(chan adminSnapshotReq, 8),
		stop:    make(chan struct{}),
	}
	r.metrics.Store(Metrics{})
	return r, nil
}

func (r *Runtime) SetSyncLogger(l SyncLogger)                     { r.syncLogger = l }
func (r *Runtime) SetActLogger(l ActLogger)                       { r.actLogger = l }
func (r *Runtime) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { r.snapshotSink = ch }

func (r *Runtime) Join() chan<- JoinRequest    { return r.join }
func (r *Runtime) Leave() chan<- string        { return r.leave }
func (r *Runtime) Inbox() chan<- ActEnvelope   { return r.inbox }
func (r *Runtime) CurrentTick() uint64         { return r.tick.Load() }
func (r *Runtime) TerminalID() string          { return r.term.ID() }
func (r *Runtime) Codec() *drawable.Codec      { return r.codec }
func (r *Runtime) Terminal() *surface.Terminal { return r.term }

// SetTick sets the next tick to run. Call it only before Run, as when resuming
// from a snapshot.
func (r *Runtime) SetTick(t uint64) { r.tick.Store(t) }

func (r *Runtime) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.cfg.SyncRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingActs []ActEnvelope
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return ctx.Err()
		case <-r.stop:
			r.closeAll()
			return nil
		case req := <-r.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-r.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-r.inbox:
			pendingActs = append(pendingActs, env)
		case req := <-r.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			r.step(pendingJoins, pendingLeaves, pendingActs)
			r.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActs = pendingActs[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (r *Runtime) Stop() { close(r.stop) }

// StepOnce runs a single tick with the same ordering as Run.
func (r *Runtime) StepOnce(joins []JoinRequest, leaves []string, acts []ActEnvelope) uint64 {
	tick := r.tick.Load()
	r.step(joins, leaves, acts)
	return tick
}

// step runs one tick: leaves, ops, sync, then joins. Joining viewers get a
// snapshot taken after this tick's sync, so they start in step with everyone
// else.
func (r *Runtime) step(joins []JoinRequest, leaves []string, acts []ActEnvelope) {
	tick := r.tick.Load()
	m := Metrics{Tick: tick}

	for _, id := range leaves {
		r.drop(id)
	}
	for _, env := range acts {
		m.Ops += r.handleAct(tick, env)
	}
	for _, s := range r.term.Surfaces() {
		n, bytes := r.syncSurface(tick, s)
		m.SyncBatches += n
		m.SyncBytes += bytes
	}
	for _, req := range joins {
		r.handleJoin(tick, req)
	}

	if every := uint64(r.cfg.SnapshotEveryTicks); every > 0 && tick > 0 && tick%every == 0 {
		if err := r.exportSnapshot(tick); err != nil {
			r.log.Printf("periodic snapshot: %v", err)
		}
	}

	for _, c := range r.clients {
		if c.role == protocol.RoleViewer {
			m.Viewers++
		} else {
			m.Producers++
		}
	}
	for _, s := range r.term.Surfaces() {
		m.Surfaces++
		m.Drawables += s.Len()
		m.PerSurface = append(m.PerSurface, SurfaceStat{Name: s.Name(), Drawables: s.Len(), NextID: uint32(s.NextID())})
	}
	r.metrics.Store(m)
	r.tick.Add(1)
}

func (r *Runtime) handleJoin(tick uint64, req JoinRequest) {
	respond := func(resp JoinResponse) {
		if req.Resp == nil {
			return
		}
		select {
		case req.Resp <- resp:
		default:
		}
	}
	if req.Out == nil {
		respond(JoinResponse{Err: errors.New("join without output channel")})
		return
	}
	c := &client{id: uuid.NewString(), name: req.ClientName, role: req.Role, out: req.Out}

	switch req.Role {
	case protocol.RoleViewer:
		s, err := r.term.Surface(req.Surface)
		if err != nil {
			respond(JoinResponse{Err: opErrorf(protocol.ErrProtoBadRequest, "%v", err)})
			return
		}
		c.surface = s.Name()
	case protocol.RoleProducer:
	default:
		respond(JoinResponse{Err: opErrorf(protocol.ErrProtoBadRequest, "unknown role %q", req.Role)})
		return
	}

	r.clients[c.id] = c
	respond(JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.id,
		TerminalID:      r.term.ID(),
		Surface:         c.surface,
		SyncRateHz:      r.cfg.SyncRateHz,
		Kinds:           r.catalog,
	}})

	if c.role != protocol.RoleViewer {
		return
	}
	s, _ := r.term.Lookup(c.surface)
	batch, err := s.Snapshot()
	if err != nil {
		r.log.Printf("snapshot %s for %s: %v", s.Name(), c.id, err)
	}
	b, err := r.encodeSync(tick, batch)
	if err != nil {
		r.log.Printf("encode snapshot %s: %v", s.Name(), err)
	}
	if b != nil {
		r.send(c, b)
	}
}

func (r *Runtime) syncSurface(tick uint64, s *surface.Surface) (batches, bytes int) {
	batch, err := s.Sync()
	if err != nil {
		r.log.Printf("sync %s: %v", s.Name(), err)
	}
	if batch.Empty() {
		return 0, 0
	}
	b, err := r.encodeSync(tick, batch)
	if err != nil {
		r.log.Printf("encode sync %s: %v", s.Name(), err)
	}
	if b == nil {
		return 0, 0
	}
	viewers := 0
	for _, c := range r.clients {
		if c.role != protocol.RoleViewer || c.surface != s.Name() {
			continue
		}
		if r.send(c, b) {
			viewers++
		}
	}
	if r.syncLogger != nil {
		_ = r.syncLogger.WriteSync(SyncLogEntry{
			Tick:    tick,
			Surface: s.Name(),
			Clear:   batch.Clear,
			Full:    len(batch.Full),
			Partial: len(batch.Partial),
			Removed: len(batch.Removed),
			Viewers: viewers,
			Bytes:   len(b),
		})
	}
	return 1, len(b)
}

// encodeSync returns the encoded message even when some entries were left out.
func (r *Runtime) encodeSync(tick uint64, batch surface.Batch) ([]byte, error) {
	msg, buildErr := synccodec.BuildSync(tick, batch)
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return b, buildErr
}

// send queues b for c. A client whose queue is full has missed a diff and can
// no longer follow the surface, so it is dropped.
func (r *Runtime) send(c *client, b []byte) bool {
	select {
	case c.out <- b:
		return true
	default:
	}
	r.log.Printf("dropping slow session %s (%s)", c.id, c.name)
	r.drop(c.id)
	r.dropped.Add(1)
	return false
}

func (r *Runtime) drop(id string) {
	c, ok := r.clients[id]
	if !ok {
		return
	}
	delete(r.clients, id)
	close(c.out)
}

func (r *Runtime) closeAll() {
	for id := range r.clients {
		r.drop(id)
	}
}
