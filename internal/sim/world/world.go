package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/world/feature/transit/eligibility"
	"mobtransit.ai/internal/sim/world/feature/transit/markers"
	"mobtransit.ai/internal/sim/world/feature/transit/pairing"
	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type (
	Vec3i   = modelpkg.Vec3i
	NodeRef = modelpkg.NodeRef
	Actor   = modelpkg.Actor
)

var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrNodeOccupied     = errors.New("position already holds a node")
	ErrNotInput         = errors.New("node is not an input")
	ErrNotOutput        = errors.New("node is not an output")
	ErrNoSession        = errors.New("no link in progress")
	ErrAlreadyPaired    = errors.New("input already paired")
	ErrNotPaired        = errors.New("node is not paired")
	ErrNoSpace          = errors.New("no free position around output")
	ErrOutputFull       = pairing.ErrOutputFull
	ErrUnknownActorType = errors.New("unknown actor type")
	ErrWrongWorld       = errors.New("node belongs to another world")
)

// CaptureListener is told about every successful capture. Its error is logged
// and never undoes the capture.
type CaptureListener func(worldID string, pos Vec3i) error

// World is a single-threaded authoritative simulation of the transit pipeline.
// All state must be accessed only from the world loop goroutine, except where
// a method says otherwise.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	logger   *log.Logger

	tick atomic.Uint64
	rng  *rand.Rand

	actors  map[string]*Actor
	markers *markers.Table

	inputs  map[NodeRef]*runtime.InputNode
	outputs map[NodeRef]*runtime.OutputNode

	registry *pairing.Registry
	sessions *pairing.SessionStore
	filter   eligibility.Filter
	env      runtime.Env

	captureListeners []CaptureListener

	eventMu        sync.Mutex
	eventListeners map[int]func(runtime.Event)
	nextListener   int

	control   chan controlReq
	nodesReq  chan nodesReq
	adminSnap chan adminSnapshotReq
	stop      chan struct{}
	stopOnce  sync.Once

	nextActorNum atomic.Uint64

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	transitLogger TransitLogger
	snapshotSink  chan<- snapshot.SnapshotV1

	counters transitCounters
	metrics  atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world %s: nil catalogs", cfg.ID)
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:            cfg,
		catalogs:       cats,
		logger:         logger,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
		actors:         map[string]*Actor{},
		markers:        markers.NewTable(),
		inputs:         map[NodeRef]*runtime.InputNode{},
		outputs:        map[NodeRef]*runtime.OutputNode{},
		sessions:       pairing.NewSessionStore(),
		eventListeners: map[int]func(runtime.Event){},
		control:        make(chan controlReq, 256),
		nodesReq:       make(chan nodesReq, 16),
		adminSnap:      make(chan adminSnapshotReq, 8),
		stop:           make(chan struct{}),
	}
	w.registry = pairing.NewRegistry(nodeResolver{w: w}, logger)
	w.filter = eligibility.New(cfg.ExcludedActorTypes, cfg.AllowUnbondedCapture, w.markers.ImmuneUntil)
	w.env = w.transitEnv()
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetTransitLogger(l TransitLogger)              { w.transitLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// OnCapture registers a capture listener. Call before Run.
func (w *World) OnCapture(fn CaptureListener) {
	if fn != nil {
		w.captureListeners = append(w.captureListeners, fn)
	}
}

// SubscribeEvents registers fn for every transit event. fn runs on the world
// loop goroutine and must not block. It is safe to call from any goroutine.
func (w *World) SubscribeEvents(fn func(runtime.Event)) (unsubscribe func()) {
	w.eventMu.Lock()
	id := w.nextListener
	w.nextListener++
	w.eventListeners[id] = fn
	w.eventMu.Unlock()
	return func() {
		w.eventMu.Lock()
		delete(w.eventListeners, id)
		w.eventMu.Unlock()
	}
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Sessions exposes the linking session store; it is safe for concurrent use.
func (w *World) Sessions() *pairing.SessionStore { return w.sessions }

func (w *World) ref(pos Vec3i) NodeRef { return NodeRef{WorldID: w.cfg.ID, Pos: pos} }

type nodeResolver struct{ w *World }

func (r nodeResolver) Input(ref NodeRef) (pairing.Input, bool) {
	n := r.w.inputs[ref]
	if n == nil || n.Removed() {
		return nil, false
	}
	return n, true
}

func (r nodeResolver) Output(ref NodeRef) (pairing.Output, bool) {
	n := r.w.outputs[ref]
	if n == nil || n.Removed() {
		return nil, false
	}
	return n, true
}
