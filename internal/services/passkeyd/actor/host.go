// Package actor runs single-writer, durable, per-identity units of state.
//
// A Host owns every instance of one actor kind. Work addressed to an id is
// queued on that id's cell and executed one unit at a time in arrival order.
// The first unit of a cell activates it: persisted fields and any pending
// alarm are loaded before the unit body runs. Writes issued during a unit are
// settled before the next unit starts. Alarms fire as ordinary units on the
// same queue.
package actor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/passkeyd/internal/platform/timeouts"
)

const shardCount = 16

const defaultIdleTTL = 5 * time.Minute

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("actor host is closed")

// Behavior supplies the kind-specific lifecycle hooks.
type Behavior interface {
	// Activate loads the instance's fields. It runs once per activation
	// before any other unit of work.
	Activate(ctx context.Context, inst *Instance) error
	// Alarm handles a due alarm. The alarm is already cleared.
	Alarm(ctx context.Context, inst *Instance) error
}

// Config configures a Host.
type Config struct {
	Kind     string
	Behavior Behavior
	Storage  Storage
	Clock    Clock
	Logger   *zap.Logger
	// IdleTTL is how long a cell without queued work or alarm stays in memory.
	IdleTTL time.Duration
}

// Host is the registry of one actor kind.
type Host struct {
	kind     string
	behavior Behavior
	storage  Storage
	clock    Clock
	logger   *zap.Logger
	idleTTL  time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc

	shards   [shardCount]shard
	inflight sync.WaitGroup
	closed   atomic.Bool
}

type shard struct {
	mu    sync.Mutex
	cells map[string]*cell
}

// generation is shared by every host in the process so a stale timer can
// never match a newer alarm.
var generation atomic.Uint64

// NewHost validates cfg and builds a Host.
func NewHost(cfg Config) (*Host, error) {
	kind := strings.TrimSpace(cfg.Kind)
	if kind == "" {
		return nil, errors.New("actor kind is required")
	}
	if cfg.Behavior == nil {
		return nil, errors.New("actor behavior is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("actor storage is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	h := &Host{
		kind:       kind,
		behavior:   cfg.Behavior,
		storage:    cfg.Storage,
		clock:      clock,
		logger:     logger.With(zap.String("actor_kind", kind)),
		idleTTL:    idleTTL,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	for i := range h.shards {
		h.shards[i].cells = make(map[string]*cell)
	}
	return h, nil
}

// Kind returns the actor kind served by h.
func (h *Host) Kind() string {
	return h.kind
}

// Now returns the host clock's current time.
func (h *Host) Now() time.Time {
	return h.clock.Now()
}

// Do runs fn as one unit of work on the instance id and waits for it.
// A unit whose ctx is done before it starts is skipped.
func (h *Host) Do(ctx context.Context, id string, fn func(ctx context.Context, inst *Instance) error) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("actor id is required")
	}
	if fn == nil {
		return errors.New("actor unit is required")
	}
	result := make(chan error, 1)
	err := h.enqueue(id, func(c *cell) {
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- c.run(ctx, fn)
	})
	if err != nil {
		return err
	}
	return <-result
}

// Call runs fn on the instance id and returns its value.
func Call[T any](ctx context.Context, h *Host, id string, fn func(ctx context.Context, inst *Instance) (T, error)) (T, error) {
	var out T
	err := h.Do(ctx, id, func(ctx context.Context, inst *Instance) error {
		value, err := fn(ctx, inst)
		if err != nil {
			return err
		}
		out = value
		return nil
	})
	return out, err
}

// Recover activates every instance with a persisted alarm so its timer is
// armed again.
func (h *Host) Recover(ctx context.Context) (int, error) {
	alarms, err := h.storage.ListAlarms(ctx, h.kind)
	if err != nil {
		return 0, fmt.Errorf("list %s alarms: %w", h.kind, err)
	}
	recovered := 0
	for _, alarm := range alarms {
		bumpGeneration(alarm.Generation)
		err := h.Do(ctx, alarm.ID, func(context.Context, *Instance) error { return nil })
		if err != nil {
			h.logger.Warn("recover alarm", zap.String("actor_id", alarm.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Run evicts idle cells until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				h.logger.Debug("evicted idle actors", zap.Int("count", n))
			}
		}
	}
}

// Sweep evicts cells idle for at least the idle TTL and returns how many
// were removed. Cells with queued work or an armed alarm are kept.
func (h *Host) Sweep() int {
	cutoff := h.clock.Now().Add(-h.idleTTL)
	evicted := 0
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		for id, c := range s.cells {
			if c.evictable(cutoff) {
				delete(s.cells, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Len returns the number of resident cells.
func (h *Host) Len() int {
	n := 0
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		n += len(s.cells)
		s.mu.Unlock()
	}
	return n
}

// Close rejects new work, waits for queued units, and stops every timer.
func (h *Host) Close(ctx context.Context) error {
	h.closed.Store(true)
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	defer h.cancelBase()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("close %s host: %w", h.kind, ctx.Err())
	}
	// Every drain has returned, so resident instances are quiescent.
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		for _, c := range s.cells {
			c.stopTimer()
		}
		s.mu.Unlock()
	}
	return nil
}

func (h *Host) enqueue(id string, unit func(*cell)) error {
	if h.closed.Load() {
		return ErrClosed
	}
	s := &h.shards[shardIndex(id)]
	s.mu.Lock()
	c, ok := s.cells[id]
	if !ok {
		c = &cell{host: h, id: id}
		s.cells[id] = c
	}
	c.mu.Lock()
	c.queued++
	s.mu.Unlock()

	h.inflight.Add(1)
	c.queue = append(c.queue, unit)
	start := !c.running
	c.running = true
	c.mu.Unlock()

	if start {
		go c.drain()
	}
	return nil
}

// fire is the timer callback for alarm generation gen on id.
func (h *Host) fire(id string, gen uint64) {
	err := h.enqueue(id, func(c *cell) {
		ctx, cancel := context.WithTimeout(h.baseCtx, timeouts.ActorCall)
		defer cancel()
		if err := c.alarm(ctx, gen); err != nil {
			h.logger.Error("actor alarm", zap.String("actor_id", id), zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		h.logger.Error("enqueue alarm", zap.String("actor_id", id), zap.Error(err))
	}
}

func shardIndex(id string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	return int(hasher.Sum32() % shardCount)
}

func nextGeneration() uint64 {
	return generation.Add(1)
}

func bumpGeneration(seen uint64) {
	for {
		current := generation.Load()
		if current >= seen || generation.CompareAndSwap(current, seen) {
			return
		}
	}
}

// cell is the mailbox and resident instance for one id.
type cell struct {
	host *Host
	id   string

	mu       sync.Mutex
	queue    []func(*cell)
	queued   int
	running  bool
	lastUsed time.Time
	armed    bool

	// inst is only touched by the draining goroutine.
	inst *Instance
}

func (c *cell) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		unit := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		unit(c)

		c.mu.Lock()
		c.queued--
		c.lastUsed = c.host.clock.Now()
		c.armed = c.inst != nil && c.inst.alarm != nil
		c.mu.Unlock()
		c.host.inflight.Done()
	}
}

func (c *cell) evictable(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued == 0 && !c.running && !c.armed && !c.lastUsed.After(cutoff)
}

// run activates the cell if needed, runs fn, and settles its writes.
func (c *cell) run(ctx context.Context, fn func(ctx context.Context, inst *Instance) error) error {
	if err := c.activate(ctx); err != nil {
		return err
	}
	fnErr := fn(ctx, c.inst)
	if err := c.settle(ctx); err != nil {
		return err
	}
	return fnErr
}

func (c *cell) alarm(ctx context.Context, gen uint64) error {
	if err := c.activate(ctx); err != nil {
		return err
	}
	inst := c.inst
	if inst.alarm == nil || inst.alarm.generation != gen {
		return nil
	}
	inst.DeleteAlarm()
	alarmErr := c.host.behavior.Alarm(ctx, inst)
	if err := c.settle(ctx); err != nil {
		return err
	}
	return alarmErr
}

// settle waits for the unit's writes. A failed write drops the resident
// instance so the next unit reloads from storage.
func (c *cell) settle(ctx context.Context) error {
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.StorageFlush)
	defer cancel()
	if err := c.inst.state.Settle(settleCtx); err != nil {
		c.inst.stopTimer()
		c.inst = nil
		return err
	}
	return nil
}

func (c *cell) activate(ctx context.Context) error {
	if c.inst != nil {
		return nil
	}
	h := c.host
	inst := &Instance{
		host:  h,
		id:    c.id,
		state: newState(h.baseCtx, h.storage, h.kind, c.id),
	}
	alarm, ok, err := h.storage.LoadAlarm(ctx, h.kind, c.id)
	if err != nil {
		return fmt.Errorf("load %s/%s alarm: %w", h.kind, c.id, err)
	}
	if err := h.behavior.Activate(ctx, inst); err != nil {
		return err
	}
	if ok {
		bumpGeneration(alarm.Generation)
		inst.arm(alarm.At, alarm.Generation)
	}
	c.inst = inst
	return nil
}

func (c *cell) stopTimer() {
	if c.inst != nil {
		c.inst.stopTimer()
	}
}
