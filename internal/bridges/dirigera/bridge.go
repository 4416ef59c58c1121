package dirigera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/hub"
	"github.com/nerrad567/gray-logic-dirigera/internal/platform"
)

// BridgeID names this bridge in health messages and MQTT topics.
const BridgeID = "dirigera"

const defaultSyncConcurrency = 4

// sceneCleanupTimeout bounds placeholder scene removal during Stop.
const sceneCleanupTimeout = 10 * time.Second

// emptySceneClicks are the click patterns a placeholder scene is created for.
var emptySceneClicks = []string{hub.ClickSingle, hub.ClickDouble, hub.ClickLong}

// DeviceLister lists the hub's devices. *hub.Client satisfies it.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]*device.Record, error)
}

// EventSource delivers hub events. *hub.EventListener satisfies it.
type EventSource interface {
	Run(ctx context.Context, handler hub.EventHandler) error
	Connected() bool
	Received() uint64
}

// SceneManager maintains the placeholder scenes that make controller
// clicks visible on the event stream. *hub.Client satisfies it.
type SceneManager interface {
	ListControllers(ctx context.Context) ([]*device.Record, error)
	CreateEmptyScenes(ctx context.Context, controllerID string, clicks []string) error
	DeleteEmptyScenes(ctx context.Context) (int, error)
}

// Logger is the logging interface used by the bridge.
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

// Options holds the collaborators of a Bridge.
type Options struct {
	// Hub lists devices for the initial sync. Required.
	Hub DeviceLister

	// Coordinator runs discovery for devices first seen in events. Required.
	Coordinator *discovery.Coordinator

	// Platforms owns the registered entities. Required.
	Platforms *platform.Set

	// Controller is handed to entities built during the initial sync.
	Controller entity.Controller

	// Events is the hub event stream. Nil disables event handling.
	Events EventSource

	// Publisher receives health messages. Nil disables health reporting.
	Publisher HealthPublisher

	// Scenes creates placeholder scenes for every controller during Start
	// and removes them on Stop. Nil disables placeholder scenes.
	Scenes SceneManager

	// InitialSync registers every device the hub reports during Start.
	InitialSync bool

	// SyncConcurrency bounds how many platforms register batches at once.
	SyncConcurrency int

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// HubAddress is reported in health messages.
	HubAddress string

	Version string
	Logger  Logger
}

// Metrics is a snapshot of bridge counters.
type Metrics struct {
	EventStreamConnected bool   `json:"event_stream_connected"`
	EventsReceived       uint64 `json:"events_received"`
	StateUpdates         uint64 `json:"state_updates"`
	DiscoveriesStarted   uint64 `json:"discoveries_started"`
	Entities             int    `json:"entities"`
}

// Bridge connects the hub to the platforms and the discovery coordinator.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	hub         DeviceLister
	coord       *discovery.Coordinator
	platforms   *platform.Set
	controller  entity.Controller
	events      EventSource
	scenes      SceneManager
	health      *HealthReporter
	initialSync bool
	concurrency int
	logger      Logger

	stateUpdates  atomic.Uint64
	discoveries   atomic.Uint64
	scenesCreated atomic.Bool

	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // cancelled on Stop
	ctxCancel context.CancelFunc // cancels ctx
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	switch {
	case opts.Hub == nil:
		return nil, fmt.Errorf("%w: hub", ErrMissingDependency)
	case opts.Coordinator == nil:
		return nil, fmt.Errorf("%w: coordinator", ErrMissingDependency)
	case opts.Platforms == nil:
		return nil, fmt.Errorf("%w: platforms", ErrMissingDependency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	concurrency := opts.SyncConcurrency
	if concurrency < 1 {
		concurrency = defaultSyncConcurrency
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	b := &Bridge{
		hub:         opts.Hub,
		coord:       opts.Coordinator,
		platforms:   opts.Platforms,
		controller:  opts.Controller,
		events:      opts.Events,
		scenes:      opts.Scenes,
		initialSync: opts.InitialSync,
		concurrency: concurrency,
		logger:      logger,
		ctx:         ctx,
		ctxCancel:   ctxCancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:   BridgeID,
		Version:    opts.Version,
		Interval:   opts.HealthInterval,
		Publisher:  opts.Publisher,
		Hub:        opts.Events,
		HubAddress: opts.HubAddress,
		Stats:      opts.Coordinator.Stats,
		Logger:     logger,
	})
	return b, nil
}

// Start runs the initial sync, then starts event handling and health
// reporting.
//
// Returns:
//   - error: wraps ErrSyncFailed if the hub cannot be listed or a
//     platform rejects its batch
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	if b.initialSync {
		if err := b.syncDevices(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrSyncFailed, err)
		}
	}
	b.health.SetDeviceCount(b.platforms.Len())

	if b.scenes != nil {
		b.createEmptyScenes(ctx)
	}

	if b.events != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			//nolint:errcheck // Run only returns the context error on shutdown
			b.events.Run(b.ctx, hub.EventHandlerFunc(b.HandleEvent))
		}()
	}

	b.health.Start(b.ctx)
	b.logger.Info("bridge started", "entities", b.platforms.Len(), "events", b.events != nil)
	return nil
}

// Stop cancels event handling and in-flight discoveries and waits for
// them to finish. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		if b.scenesCreated.Load() {
			b.deleteEmptyScenes()
		}
		b.logger.Info("bridge stopped")
	})
}

// syncDevices registers every supported device the hub reports that is not yet
// known. Entities are grouped by category and each platform receives one
// batch; batches for different platforms run concurrently.
func (b *Bridge) syncDevices(ctx context.Context) error {
	records, err := b.hub.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	batches := make(map[entity.Category][]entity.Entity)
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
		if b.coord.IsKnownDevice(rec.ID) {
			continue
		}
		cat, ok := discovery.CategoryFor(string(rec.DeviceType))
		if !ok {
			b.logger.Debug("skipping unmapped device type", "device_id", rec.ID, "device_type", rec.DeviceType)
			continue
		}
		if b.platforms.Platform(cat) == nil {
			continue
		}

		ent, err := discovery.BuildEntity(b.controller, rec)
		switch {
		case errors.Is(err, discovery.ErrUnsupportedDevice):
			b.logger.Debug("device type not supported, entity not created", "device_id", rec.ID, "device_type", rec.DeviceType)
			continue
		case err != nil:
			b.logger.Warn("failed to create entity", "device_id", rec.ID, "device_type", rec.DeviceType, "error", err)
			continue
		}
		batches[cat] = append(batches[cat], ent)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for cat, ents := range batches {
		cat, ents := cat, ents
		p := b.platforms.Platform(cat)
		g.Go(func() error {
			if err := p.AddEntities(gctx, ents); err != nil {
				return fmt.Errorf("adding %s entities: %w", cat, err)
			}
			for _, ent := range ents {
				b.coord.RegisterKnownDevice(ent.UniqueID())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := b.platforms.PruneStale(ctx, ids); err != nil {
		b.logger.Warn("failed to prune stale entities", "error", err)
	}
	b.logger.Info("initial sync complete", "devices", len(records), "entities", b.platforms.Len())
	return nil
}

// createEmptyScenes gives every controller one placeholder scene per
// click pattern. Leftovers from an unclean shutdown are removed first.
// Failures are logged; the bridge runs without click events for that
// controller.
func (b *Bridge) createEmptyScenes(ctx context.Context) {
	if n, err := b.scenes.DeleteEmptyScenes(ctx); err != nil {
		b.logger.Warn("failed to remove leftover empty scenes", "error", err)
	} else if n > 0 {
		b.logger.Debug("removed leftover empty scenes", "count", n)
	}

	controllers, err := b.scenes.ListControllers(ctx)
	if err != nil {
		b.logger.Warn("failed to list controllers for empty scenes", "error", err)
		return
	}
	b.scenesCreated.Store(true)

	created := 0
	for _, rec := range controllers {
		if err := b.scenes.CreateEmptyScenes(ctx, rec.ID, emptySceneClicks); err != nil {
			b.logger.Warn("failed to create empty scenes", "device_id", rec.ID, "error", err)
			continue
		}
		created++
	}
	b.logger.Info("empty scenes created", "controllers", created)
}

func (b *Bridge) deleteEmptyScenes() {
	ctx, cancel := context.WithTimeout(context.Background(), sceneCleanupTimeout)
	defer cancel()
	n, err := b.scenes.DeleteEmptyScenes(ctx)
	if err != nil {
		b.logger.Warn("failed to delete empty scenes", "deleted", n, "error", err)
		return
	}
	b.logger.Info("empty scenes deleted", "count", n)
}

// HandleEvent routes one hub event. It is called from the event stream's
// read loop; discoveries run on their own goroutines.
func (b *Bridge) HandleEvent(ctx context.Context, ev hub.Event) {
	if !ev.IsDeviceEvent() {
		b.logger.Debug("ignoring hub event", "type", ev.Type)
		return
	}
	id := ev.Data.ID

	if ev.Type == hub.EventDeviceRemoved {
		if err := b.platforms.MarkUnavailable(ctx, id); err != nil && !errors.Is(err, platform.ErrEntityNotFound) {
			b.logger.Warn("failed to mark entity unavailable", "device_id", id, "error", err)
		}
		return
	}

	if b.coord.IsKnownDevice(id) {
		err := b.platforms.ApplyEvent(ctx, id, ev.Data.Attributes, ev.Data.IsReachable)
		switch {
		case err == nil:
			b.stateUpdates.Add(1)
		case errors.Is(err, platform.ErrEntityNotFound):
			b.logger.Debug("no entity for known device", "device_id", id)
		default:
			b.logger.Warn("failed to apply device event", "device_id", id, "type", ev.Type, "error", err)
		}
		return
	}

	if ev.Data.DeviceType == "" {
		b.logger.Debug("event for unknown device has no device type", "device_id", id)
		return
	}
	b.discoveries.Add(1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if b.coord.DiscoverDevice(b.ctx, id, ev.Data.DeviceType) {
			b.health.SetDeviceCount(b.platforms.Len())
		}
	}()
}

// Metrics returns current bridge counters.
func (b *Bridge) Metrics() Metrics {
	m := Metrics{
		StateUpdates:       b.stateUpdates.Load(),
		DiscoveriesStarted: b.discoveries.Load(),
		Entities:           b.platforms.Len(),
	}
	if b.events != nil {
		m.EventStreamConnected = b.events.Connected()
		m.EventsReceived = b.events.Received()
	}
	return m
}

// Health returns the current health status and reason.
func (b *Bridge) Health() (HealthStatus, string) {
	return b.health.determineStatus()
}
