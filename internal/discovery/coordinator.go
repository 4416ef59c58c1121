package discovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
)

// recordTimeout bounds each recorder call.
const recordTimeout = 5 * time.Second

// Fetcher retrieves a device record from the hub. *hub.Client satisfies it.
type Fetcher interface {
	GetDevice(ctx context.Context, id string) (*device.Record, error)
}

// AddEntitiesFunc registers a batch of entities with a platform.
type AddEntitiesFunc func(ctx context.Context, entities []entity.Entity) error

// Recorder stores finished attempts. Errors are logged and otherwise ignored.
type Recorder interface {
	RecordAttempt(ctx context.Context, a *Attempt) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, a *Attempt) error

// RecordAttempt implements Recorder.
func (f RecorderFunc) RecordAttempt(ctx context.Context, a *Attempt) error { return f(ctx, a) }

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Coordinator.
type Options struct {
	// Fetcher loads device records. Required.
	Fetcher Fetcher

	// Controller is handed to entities so they can write to the hub.
	Controller entity.Controller

	// Recorders receive every finished attempt.
	Recorders []Recorder

	Logger Logger
}

// Stats is a snapshot of coordinator state.
type Stats struct {
	Known      int                `json:"known"`
	Pending    int                `json:"pending"`
	Categories []string           `json:"categories"`
	Outcomes   map[Outcome]uint64 `json:"outcomes"`
}

// Coordinator runs discovery attempts for unknown device ids.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Coordinator struct {
	fetcher    Fetcher
	controller entity.Controller
	recorders  []Recorder
	logger     Logger

	mu        sync.Mutex
	known     map[string]struct{}
	pending   map[string]struct{}
	callbacks map[entity.Category]AddEntitiesFunc
	outcomes  map[Outcome]uint64
}

// NewCoordinator creates a coordinator with empty known and pending sets.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		fetcher:    opts.Fetcher,
		controller: opts.Controller,
		recorders:  opts.Recorders,
		logger:     logger,
		known:      make(map[string]struct{}),
		pending:    make(map[string]struct{}),
		callbacks:  make(map[entity.Category]AddEntitiesFunc),
		outcomes:   make(map[Outcome]uint64),
	}, nil
}

// RegisterPlatformCallback sets the callback for a category, replacing any
// earlier one.
func (c *Coordinator) RegisterPlatformCallback(category entity.Category, fn AddEntitiesFunc) {
	c.mu.Lock()
	c.callbacks[category] = fn
	c.mu.Unlock()
	c.logger.Debug("platform callback registered", "category", category)
}

// RegisterKnownDevice marks id as already represented, so discovery skips it.
func (c *Coordinator) RegisterKnownDevice(id string) {
	c.mu.Lock()
	c.known[id] = struct{}{}
	c.mu.Unlock()
}

// IsKnownDevice reports whether id is represented by an entity.
func (c *Coordinator) IsKnownDevice(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.known[id]
	return ok
}

// IsPending reports whether a discovery attempt for id is in flight.
func (c *Coordinator) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// KnownDevices returns the known ids in sorted order.
func (c *Coordinator) KnownDevices() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.known))
	for id := range c.known {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Stats returns a snapshot of the coordinator's counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Known:      len(c.known),
		Pending:    len(c.pending),
		Categories: make([]string, 0, len(c.callbacks)),
		Outcomes:   make(map[Outcome]uint64, len(c.outcomes)),
	}
	for cat := range c.callbacks {
		s.Categories = append(s.Categories, string(cat))
	}
	slices.Sort(s.Categories)
	for o, n := range c.outcomes {
		s.Outcomes[o] = n
	}
	return s
}

// DiscoverDevice tries to turn deviceID into a registered entity.
//
// It returns true only when an entity was built and accepted by the
// platform for vendorType's category. It returns false, without
// side effects, when the id is already known or another attempt for it is
// in flight. Every other failure is logged and reported as false; the id
// is left unknown so a later event can retry.
func (c *Coordinator) DiscoverDevice(ctx context.Context, deviceID, vendorType string) bool {
	if !c.begin(deviceID) {
		c.logger.Debug("discovery already in progress or device known", "device_id", deviceID)
		c.count(OutcomeSkipped)
		return false
	}
	defer c.finish(deviceID)

	start := time.Now()
	attempt := &Attempt{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		VendorType: vendorType,
		CreatedAt:  start.UTC(),
	}
	c.logger.Info("discovering new device", "device_id", deviceID, "device_type", vendorType, "attempt_id", attempt.ID)

	c.run(ctx, attempt)

	attempt.DurationMS = time.Since(start).Milliseconds()
	c.count(attempt.Outcome)
	c.record(ctx, attempt)

	return attempt.Outcome == OutcomeRegistered
}

// begin atomically checks that id is neither pending nor known and marks
// it pending.
func (c *Coordinator) begin(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; ok {
		return false
	}
	if _, ok := c.known[id]; ok {
		return false
	}
	c.pending[id] = struct{}{}
	return true
}

// promote moves id from pending to known in one step.
func (c *Coordinator) promote(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.known[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Coordinator) finish(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Coordinator) callback(cat entity.Category) AddEntitiesFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks[cat]
}

func (c *Coordinator) count(o Outcome) {
	c.mu.Lock()
	c.outcomes[o]++
	c.mu.Unlock()
}

// run performs steps from category lookup to promotion, filling in a.
func (c *Coordinator) run(ctx context.Context, a *Attempt) {
	defer func() {
		if r := recover(); r != nil {
			a.fail(OutcomePanic, fmt.Errorf("%w: %v", ErrPanic, r))
			c.logger.Error("discovery attempt panicked",
				"device_id", a.DeviceID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	kind, ok := kinds[device.Type(a.VendorType)]
	if !ok {
		c.logger.Warn("unknown device type, cannot discover", "device_id", a.DeviceID, "device_type", a.VendorType)
		a.fail(OutcomeUnmappedType, fmt.Errorf("%w: %q", ErrUnmappedType, a.VendorType))
		return
	}
	cat := kind.category()
	a.Category = string(cat)

	addEntities := c.callback(cat)
	if addEntities == nil {
		c.logger.Warn("no platform registered for category", "device_id", a.DeviceID, "category", cat)
		a.fail(OutcomeNoCallback, fmt.Errorf("%w: %s", ErrNoCallback, cat))
		return
	}

	rec, err := c.fetcher.GetDevice(ctx, a.DeviceID)
	if err == nil && rec == nil {
		err = ErrEmptyRecord
	}
	if err != nil {
		c.logger.Error("failed to fetch device", "device_id", a.DeviceID, "error", err)
		a.fail(OutcomeFetchFailed, err)
		return
	}

	ent, err := kind.construct(c.controller, rec)
	switch {
	case errors.Is(err, ErrUnsupportedDevice):
		c.logger.Warn("device type not supported, entity not created", "device_id", a.DeviceID, "device_type", a.VendorType)
		a.fail(OutcomeUnsupported, err)
		return
	case err != nil:
		c.logger.Error("failed to create entity",
			"device_id", a.DeviceID,
			"device_type", a.VendorType,
			"error", err,
			"error_chain", errorChain(err),
			"stack", string(debug.Stack()),
		)
		a.fail(OutcomeConstructFailed, err)
		return
	}

	if err := addEntities(ctx, []entity.Entity{ent}); err != nil {
		c.logger.Error("platform rejected entity", "device_id", a.DeviceID, "category", cat, "error", err)
		a.fail(OutcomeRegisterFailed, err)
		return
	}

	c.promote(a.DeviceID)
	a.Outcome = OutcomeRegistered
	c.logger.Info("discovered and added device", "device_id", a.DeviceID, "name", ent.Name(), "category", cat)
}

// record hands a to every recorder. Recording outlives ctx cancellation so
// attempts made during shutdown are still stored.
func (c *Coordinator) record(ctx context.Context, a *Attempt) {
	if len(c.recorders) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	for _, r := range c.recorders {
		if err := r.RecordAttempt(rctx, a); err != nil {
			c.logger.Warn("failed to record discovery attempt", "attempt_id", a.ID, "error", err)
		}
	}
}

// errorChain lists the messages of err and every error it wraps,
// outermost first.
func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return chain
			}
			err = errs[len(errs)-1]
		default:
			err = errors.Unwrap(err)
		}
	}
	return chain
}
