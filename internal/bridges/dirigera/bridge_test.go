package dirigera

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/hub"
	"github.com/nerrad567/gray-logic-dirigera/internal/platform"
)

// ============================================================================
// Test doubles
// ============================================================================

// fakeHub lists the devices in listed and serves GetDevice from all.
type fakeHub struct {
	mu      sync.Mutex
	listed  []*device.Record
	all     map[string]*device.Record
	listErr error
}

func (f *fakeHub) ListDevices(context.Context) ([]*device.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed, f.listErr
}

func (f *fakeHub) GetDevice(_ context.Context, id string) (*device.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.all[id]
	if !ok {
		return nil, hub.ErrNotFound
	}
	return rec, nil
}

// fakeScenes records placeholder scene calls.
type fakeScenes struct {
	mu          sync.Mutex
	controllers []*device.Record
	listErr     error
	createErr   map[string]error
	created     map[string][]string
	deleteCalls int
}

func (f *fakeScenes) ListControllers(context.Context) ([]*device.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controllers, f.listErr
}

func (f *fakeScenes) CreateEmptyScenes(_ context.Context, controllerID string, clicks []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[controllerID]; err != nil {
		return err
	}
	if f.created == nil {
		f.created = make(map[string][]string)
	}
	f.created[controllerID] = clicks
	return nil
}

func (f *fakeScenes) DeleteEmptyScenes(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	n := 0
	for _, clicks := range f.created {
		n += len(clicks)
	}
	f.created = nil
	return n, nil
}

// fakeEvents delivers queued events once Run starts, then waits for ctx.
type fakeEvents struct {
	queue     []hub.Event
	connected bool
}

func (f *fakeEvents) Run(ctx context.Context, handler hub.EventHandler) error {
	for _, ev := range f.queue {
		handler.HandleEvent(ctx, ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeEvents) Connected() bool  { return f.connected }
func (f *fakeEvents) Received() uint64 { return uint64(len(f.queue)) }

type mockPublisher struct {
	mu        sync.Mutex
	messages  map[string][][]byte
	connected bool
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messages == nil {
		m.messages = make(map[string][][]byte)
	}
	m.messages[topic] = append(m.messages[topic], payload)
	return nil
}

func (m *mockPublisher) IsConnected() bool { return m.connected }

func (m *mockPublisher) healthMessages(t *testing.T) []HealthMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HealthMessage
	for _, p := range m.messages["graylogic/health/dirigera"] {
		var msg HealthMessage
		if err := json.Unmarshal(p, &msg); err != nil {
			t.Fatalf("decoding health message: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// failingRepo rejects every batch.
type failingRepo struct {
	platform.Repository
}

func (failingRepo) SaveAll(context.Context, []platform.Row) error {
	return errors.New("disk full")
}

func rec(t *testing.T, doc string) *device.Record {
	t.Helper()
	r, err := device.ParseRecord([]byte(doc))
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	return r
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	listed := []*device.Record{
		rec(t, `{"id":"l1","deviceType":"light","isReachable":true,"attributes":{"customName":"Desk","isOn":false}}`),
		rec(t, `{"id":"l2","deviceType":"light","isReachable":true,"attributes":{"isOn":true}}`),
		rec(t, `{"id":"p1","deviceType":"outlet","isReachable":true,"attributes":{"isOn":false}}`),
		rec(t, `{"id":"c1","deviceType":"openCloseSensor","isReachable":true,"attributes":{"isOpen":false}}`),
		rec(t, `{"id":"r1","deviceType":"controller","attributes":{}}`),
		rec(t, `{"id":"e1","deviceType":"environmentSensor","attributes":{}}`),
		rec(t, `{"id":"s1","deviceType":"speaker","attributes":{}}`),
	}
	all := make(map[string]*device.Record)
	for _, r := range listed {
		all[r.ID] = r
	}
	all["l9"] = rec(t, `{"id":"l9","deviceType":"light","isReachable":true,"attributes":{"customName":"New","isOn":true}}`)
	return &fakeHub{listed: listed, all: all}
}

type fixture struct {
	bridge    *Bridge
	hub       *fakeHub
	coord     *discovery.Coordinator
	platforms *platform.Set
	pub       *mockPublisher
}

func newFixture(t *testing.T, events EventSource, setOpts platform.Options) *fixture {
	t.Helper()
	f := &fixture{hub: newFakeHub(t), pub: &mockPublisher{connected: true}}

	coord, err := discovery.NewCoordinator(discovery.Options{Fetcher: f.hub})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	f.coord = coord
	f.platforms = platform.NewSet(setOpts)
	f.platforms.Register(coord)

	f.bridge, err = NewBridge(Options{
		Hub:             f.hub,
		Coordinator:     coord,
		Platforms:       f.platforms,
		Events:          events,
		Publisher:       f.pub,
		InitialSync:     true,
		SyncConcurrency: 2,
		HealthInterval:  time.Hour,
		Version:         "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(f.bridge.Stop)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ============================================================================
// Construction and startup
// ============================================================================

func TestNewBridge_RequiresDependencies(t *testing.T) {
	coord, _ := discovery.NewCoordinator(discovery.Options{Fetcher: &fakeHub{}})
	tests := []struct {
		name string
		opts Options
	}{
		{"no hub", Options{Coordinator: coord, Platforms: platform.NewSet(platform.Options{})}},
		{"no coordinator", Options{Hub: &fakeHub{}, Platforms: platform.NewSet(platform.Options{})}},
		{"no platforms", Options{Hub: &fakeHub{}, Coordinator: coord}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("NewBridge() error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

func TestStart_InitialSync(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, id := range []string{"l1", "l2", "p1", "c1"} {
		if !f.coord.IsKnownDevice(id) {
			t.Errorf("%s should be known after sync", id)
		}
		if _, ok := f.platforms.Entity(id); !ok {
			t.Errorf("%s has no entity", id)
		}
	}
	for _, id := range []string{"r1", "e1", "s1"} {
		if f.coord.IsKnownDevice(id) {
			t.Errorf("%s should not be known", id)
		}
	}
	if got := f.platforms.Platform(entity.CategoryLight).Len(); got != 2 {
		t.Errorf("light entities = %d, want 2", got)
	}
	if m := f.bridge.Metrics(); m.Entities != 4 {
		t.Errorf("Metrics().Entities = %d, want 4", m.Entities)
	}

	msgs := f.pub.healthMessages(t)
	if len(msgs) == 0 || msgs[0].Status != HealthStarting {
		t.Fatalf("first health message = %+v, want starting", msgs)
	}
}

func TestStart_SkipsKnownDevices(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	f.coord.RegisterKnownDevice("l1")

	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, ok := f.platforms.Entity("l1"); ok {
		t.Error("known device was registered again")
	}
}

func TestStart_DisabledCategory(t *testing.T) {
	f := newFixture(t, nil, platform.Options{Categories: []entity.Category{entity.CategoryLight}})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.coord.IsKnownDevice("p1") {
		t.Error("device of disabled category became known")
	}
	if f.platforms.Len() != 2 {
		t.Errorf("entities = %d, want 2", f.platforms.Len())
	}
}

func TestStart_SyncFailures(t *testing.T) {
	t.Run("list error", func(t *testing.T) {
		f := newFixture(t, nil, platform.Options{})
		f.hub.listErr = hub.ErrUnauthorized
		err := f.bridge.Start(context.Background())
		if !errors.Is(err, ErrSyncFailed) || !errors.Is(err, hub.ErrUnauthorized) {
			t.Errorf("Start() error = %v", err)
		}
	})

	t.Run("platform rejects batch", func(t *testing.T) {
		f := newFixture(t, nil, platform.Options{Repository: failingRepo{}})
		if err := f.bridge.Start(context.Background()); !errors.Is(err, ErrSyncFailed) {
			t.Errorf("Start() error = %v, want ErrSyncFailed", err)
		}
	})
}

func TestStart_WithoutInitialSync(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	f.bridge.initialSync = false
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.platforms.Len() != 0 {
		t.Errorf("entities = %d, want 0", f.platforms.Len())
	}
}

func TestStart_EmptyScenes(t *testing.T) {
	tests := []struct {
		name        string
		scenes      *fakeScenes
		wantCreated []string
		wantDeletes int // after Stop
	}{
		{
			name: "one set per controller",
			scenes: &fakeScenes{controllers: []*device.Record{
				rec(t, `{"id":"r1","deviceType":"controller","attributes":{}}`),
				rec(t, `{"id":"r2","deviceType":"controller","attributes":{"batteryPercentage":80}}`),
			}},
			wantCreated: []string{"r1", "r2"},
			wantDeletes: 2,
		},
		{
			name: "create failure skips that controller",
			scenes: &fakeScenes{
				controllers: []*device.Record{
					rec(t, `{"id":"r1","deviceType":"controller","attributes":{}}`),
					rec(t, `{"id":"r2","deviceType":"controller","attributes":{}}`),
				},
				createErr: map[string]error{"r1": hub.ErrRequestFailed},
			},
			wantCreated: []string{"r2"},
			wantDeletes: 2,
		},
		{
			name:        "list failure creates nothing",
			scenes:      &fakeScenes{listErr: hub.ErrRequestFailed},
			wantCreated: nil,
			wantDeletes: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, platform.Options{})
			f.bridge.scenes = tt.scenes
			if err := f.bridge.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			tt.scenes.mu.Lock()
			if len(tt.scenes.created) != len(tt.wantCreated) {
				t.Errorf("created for %v, want %v", tt.scenes.created, tt.wantCreated)
			}
			for _, id := range tt.wantCreated {
				clicks := tt.scenes.created[id]
				if len(clicks) != 3 || clicks[0] != hub.ClickSingle || clicks[2] != hub.ClickLong {
					t.Errorf("clicks for %s = %v", id, clicks)
				}
			}
			if tt.scenes.deleteCalls != 1 {
				t.Errorf("leftover cleanup calls = %d, want 1", tt.scenes.deleteCalls)
			}
			tt.scenes.mu.Unlock()

			f.bridge.Stop()
			f.bridge.Stop()

			tt.scenes.mu.Lock()
			defer tt.scenes.mu.Unlock()
			if tt.scenes.deleteCalls != tt.wantDeletes {
				t.Errorf("delete calls after Stop = %d, want %d", tt.scenes.deleteCalls, tt.wantDeletes)
			}
			if len(tt.scenes.created) != 0 {
				t.Errorf("scenes left after Stop: %v", tt.scenes.created)
			}
		})
	}
}

func TestStop_WithoutScenes(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.bridge.Stop()
	if f.bridge.scenesCreated.Load() {
		t.Error("scenes marked created without a scene manager")
	}
}

// ============================================================================
// Event routing
// ============================================================================

func TestHandleEvent_KnownDeviceUpdatesState(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	reachable := false
	f.bridge.HandleEvent(context.Background(), hub.Event{
		Type: hub.EventDeviceStateChanged,
		Data: hub.EventData{ID: "l1", DeviceType: "light", IsReachable: &reachable, Attributes: map[string]any{"isOn": true}},
	})

	ent, _ := f.platforms.Entity("l1")
	if ent.State()["on"] != true || ent.Available() {
		t.Errorf("state = %v, available = %v", ent.State(), ent.Available())
	}
	if m := f.bridge.Metrics(); m.StateUpdates != 1 || m.DiscoveriesStarted != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestHandleEvent_UnknownDeviceIsDiscovered(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.bridge.HandleEvent(context.Background(), hub.Event{
		Type: hub.EventDeviceAdded,
		Data: hub.EventData{ID: "l9", DeviceType: "light"},
	})
	waitFor(t, "l9 to become known", func() bool { return f.coord.IsKnownDevice("l9") })

	ent, ok := f.platforms.Entity("l9")
	if !ok || ent.Name() != "New" {
		t.Fatalf("entity for l9 = %v, %v", ent, ok)
	}
	if m := f.bridge.Metrics(); m.DiscoveriesStarted != 1 {
		t.Errorf("DiscoveriesStarted = %d, want 1", m.DiscoveriesStarted)
	}
}

func TestHandleEvent_UnsupportedDeviceStaysUnknown(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.bridge.HandleEvent(context.Background(), hub.Event{
		Type: hub.EventDeviceStateChanged,
		Data: hub.EventData{ID: "r1", DeviceType: "controller"},
	})
	f.bridge.Stop()

	if f.coord.IsKnownDevice("r1") {
		t.Error("controller became known")
	}
	if s := f.coord.Stats(); s.Outcomes[discovery.OutcomeUnsupported] != 1 || s.Pending != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestHandleEvent_Ignored(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.bridge.HandleEvent(context.Background(), hub.Event{Type: "sceneUpdated", Data: hub.EventData{ID: "scene-1"}})
	f.bridge.HandleEvent(context.Background(), hub.Event{Type: hub.EventDeviceAdded, Data: hub.EventData{ID: "x1"}})

	if m := f.bridge.Metrics(); m.StateUpdates != 0 || m.DiscoveriesStarted != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestHandleEvent_DeviceRemoved(t *testing.T) {
	f := newFixture(t, nil, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.bridge.HandleEvent(context.Background(), hub.Event{
		Type: hub.EventDeviceRemoved,
		Data: hub.EventData{ID: "c1", DeviceType: "openCloseSensor"},
	})
	ent, _ := f.platforms.Entity("c1")
	if ent.Available() {
		t.Error("removed device still available")
	}

	// Removal of an unknown device never starts a discovery.
	f.bridge.HandleEvent(context.Background(), hub.Event{
		Type: hub.EventDeviceRemoved,
		Data: hub.EventData{ID: "l9", DeviceType: "light"},
	})
	if m := f.bridge.Metrics(); m.DiscoveriesStarted != 0 {
		t.Errorf("DiscoveriesStarted = %d, want 0", m.DiscoveriesStarted)
	}
}

func TestStart_ConsumesEventStream(t *testing.T) {
	events := &fakeEvents{
		connected: true,
		queue: []hub.Event{
			{Type: hub.EventDeviceStateChanged, Data: hub.EventData{ID: "p1", DeviceType: "outlet", Attributes: map[string]any{"isOn": true}}},
			{Type: hub.EventDeviceAdded, Data: hub.EventData{ID: "l9", DeviceType: "light"}},
		},
	}
	f := newFixture(t, events, platform.Options{})
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "l9 to become known", func() bool { return f.coord.IsKnownDevice("l9") })
	waitFor(t, "p1 to turn on", func() bool {
		ent, _ := f.platforms.Entity("p1")
		return ent.State()["on"] == true
	})

	m := f.bridge.Metrics()
	if !m.EventStreamConnected || m.EventsReceived != 2 {
		t.Errorf("metrics = %+v", m)
	}

	f.bridge.Stop()
	msgs := f.pub.healthMessages(t)
	last := msgs[len(msgs)-1]
	if last.Status != HealthStopping || last.Hub == nil || !last.Hub.Connected {
		t.Errorf("last health message = %+v", last)
	}
	if last.Discovery == nil || last.Discovery.Known != 5 {
		t.Errorf("discovery stats = %+v", last.Discovery)
	}
}
