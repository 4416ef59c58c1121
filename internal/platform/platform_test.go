package platform

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dirigera/migrations"
)

// ============================================================================
// Test doubles
// ============================================================================

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, retained: retained})
	return m.err
}

func (m *mockPublisher) last(topic string) (published, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].topic == topic {
			return m.messages[i], true
		}
	}
	return published{}, false
}

type mockTelemetry struct {
	mu     sync.Mutex
	writes map[string]int
}

func (m *mockTelemetry) WriteEntityState(entityID, _ string, _ map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = make(map[string]int)
	}
	m.writes[entityID]++
}

type mockController struct {
	mu    sync.Mutex
	calls []map[string]any
	err   error
}

func (m *mockController) SetAttributes(_ context.Context, _ string, attrs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, attrs)
	return m.err
}

type mockSubscriber struct {
	topic    string
	handler  mqtt.MessageHandler
	unsubErr error
	unsubbed []string
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.topic = topic
	m.handler = handler
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	if m.unsubErr != nil {
		return m.unsubErr
	}
	m.unsubbed = append(m.unsubbed, topic)
	if m.topic == topic {
		m.topic = ""
	}
	return nil
}

func (m *mockSubscriber) HasSubscription(topic string) bool {
	return topic != "" && m.topic == topic
}

type mockRegistrar struct {
	callbacks map[entity.Category]bool
}

func (m *mockRegistrar) RegisterPlatformCallback(cat entity.Category, fn discovery.AddEntitiesFunc) {
	m.callbacks[cat] = fn != nil
}

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func record(t *testing.T, doc string) *device.Record {
	t.Helper()
	rec, err := device.ParseRecord([]byte(doc))
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	return rec
}

func newLight(t *testing.T, ctl entity.Controller, id string) *entity.Light {
	t.Helper()
	l, err := entity.NewLight(ctl, record(t, `{"id":"`+id+`","deviceType":"light","isReachable":true,
		"attributes":{"customName":"Lamp `+id+`","model":"TRADFRI bulb","isOn":false,"lightLevel":50}}`))
	if err != nil {
		t.Fatalf("NewLight() error = %v", err)
	}
	return l
}

func newContact(t *testing.T, id string) entity.Entity {
	t.Helper()
	rec := record(t, `{"id":"`+id+`","deviceType":"openCloseSensor","isReachable":true,"attributes":{"isOpen":false}}`)
	s, err := entity.NewOpenCloseSensor(entity.NewDevice(nil, rec), rec)
	if err != nil {
		t.Fatalf("NewOpenCloseSensor() error = %v", err)
	}
	return s
}

type testSet struct {
	set       *Set
	repo      *SQLiteRepository
	pub       *mockPublisher
	telemetry *mockTelemetry
	ctl       *mockController
}

func newTestSet(t *testing.T) *testSet {
	t.Helper()
	ts := &testSet{
		repo:      openTestRepo(t),
		pub:       &mockPublisher{},
		telemetry: &mockTelemetry{},
		ctl:       &mockController{},
	}
	ts.set = NewSet(Options{Repository: ts.repo, Publisher: ts.pub, Telemetry: ts.telemetry})
	return ts
}

// ============================================================================
// Platform
// ============================================================================

func TestAddEntities(t *testing.T) {
	ts := newTestSet(t)
	ctx := context.Background()
	lights := ts.set.Platform(entity.CategoryLight)

	if err := lights.AddEntities(ctx, []entity.Entity{newLight(t, ts.ctl, "l2"), newLight(t, ts.ctl, "l1")}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}

	if lights.Len() != 2 || ts.set.Len() != 2 {
		t.Errorf("Len() = %d/%d, want 2", lights.Len(), ts.set.Len())
	}
	if got := lights.Entities(); got[0].UniqueID() != "l1" || got[1].UniqueID() != "l2" {
		t.Errorf("Entities() not ordered by id")
	}

	row, err := ts.repo.Get(ctx, "l1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.Name != "Lamp l1" || row.Category != "light" || row.Model != "TRADFRI bulb" {
		t.Errorf("row = %+v", row)
	}

	msg, ok := ts.pub.last("graylogic/discovery/dirigera/l1")
	if !ok || !msg.retained {
		t.Fatal("no retained announcement for l1")
	}
	var ann Announcement
	if err := json.Unmarshal(msg.payload, &ann); err != nil {
		t.Fatalf("decoding announcement: %v", err)
	}
	if !ann.Commandable || ann.CommandTopic != "graylogic/command/dirigera/l1" || ann.Device.ViaDevice != "dirigera" {
		t.Errorf("announcement = %+v", ann)
	}

	msg, ok = ts.pub.last("graylogic/state/dirigera/l1")
	if !ok {
		t.Fatal("no state message for l1")
	}
	var st StateMessage
	if err := json.Unmarshal(msg.payload, &st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if !st.Available || st.State["on"] != false || st.State["level"] != float64(50) {
		t.Errorf("state = %+v", st)
	}
	if ts.telemetry.writes["l1"] != 1 {
		t.Errorf("telemetry writes = %d, want 1", ts.telemetry.writes["l1"])
	}
}

func TestAddEntities_ReadOnlyAnnouncement(t *testing.T) {
	ts := newTestSet(t)
	if err := ts.set.Platform(entity.CategoryBinarySensor).AddEntities(context.Background(), []entity.Entity{newContact(t, "c1")}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}
	msg, _ := ts.pub.last("graylogic/discovery/dirigera/c1")
	var ann Announcement
	if err := json.Unmarshal(msg.payload, &ann); err != nil {
		t.Fatalf("decoding announcement: %v", err)
	}
	if ann.Commandable || ann.CommandTopic != "" {
		t.Errorf("sensor announced as commandable: %+v", ann)
	}
}

func TestAddEntities_WrongCategoryRejectsBatch(t *testing.T) {
	ts := newTestSet(t)
	lights := ts.set.Platform(entity.CategoryLight)

	err := lights.AddEntities(context.Background(), []entity.Entity{newLight(t, nil, "l1"), newContact(t, "c1")})
	if !errors.Is(err, ErrWrongCategory) {
		t.Fatalf("AddEntities() error = %v, want ErrWrongCategory", err)
	}
	if lights.Len() != 0 {
		t.Error("partial batch stored")
	}
	rows, _ := ts.repo.List(context.Background(), "")
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}

func TestAddEntities_PublishFailureTolerated(t *testing.T) {
	ts := newTestSet(t)
	ts.pub.err = mqtt.ErrNotConnected
	if err := ts.set.Platform(entity.CategoryLight).AddEntities(context.Background(), []entity.Entity{newLight(t, nil, "l1")}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}
	if _, ok := ts.set.Entity("l1"); !ok {
		t.Error("entity not stored")
	}
}

func TestAddEntities_WithoutOutputs(t *testing.T) {
	set := NewSet(Options{})
	if err := set.Platform(entity.CategoryLight).AddEntities(context.Background(), []entity.Entity{newLight(t, nil, "l1")}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}
	if n, err := set.PruneStale(context.Background(), nil); n != 0 || err != nil {
		t.Errorf("PruneStale() = %d, %v", n, err)
	}
}

// ============================================================================
// Set
// ============================================================================

func TestSet_Register(t *testing.T) {
	set := NewSet(Options{})
	reg := &mockRegistrar{callbacks: make(map[entity.Category]bool)}
	set.Register(reg)

	for _, cat := range entity.Categories() {
		if !reg.callbacks[cat] {
			t.Errorf("no callback for %s", cat)
		}
		if set.Platform(cat) == nil {
			t.Errorf("no platform for %s", cat)
		}
	}
	if set.Platform("climate") != nil {
		t.Error("unexpected platform for unknown category")
	}
}

func TestSet_CategoryFilter(t *testing.T) {
	set := NewSet(Options{Categories: []entity.Category{entity.CategoryLight}})
	reg := &mockRegistrar{callbacks: make(map[entity.Category]bool)}
	set.Register(reg)

	if len(reg.callbacks) != 1 || !reg.callbacks[entity.CategoryLight] {
		t.Errorf("callbacks = %v, want light only", reg.callbacks)
	}
	if set.Platform(entity.CategorySwitch) != nil {
		t.Error("disabled category has a platform")
	}
	if got := set.Entities(""); len(got) != 0 {
		t.Errorf("Entities() = %v", got)
	}
}

func TestSet_Entities(t *testing.T) {
	ts := newTestSet(t)
	ctx := context.Background()
	_ = ts.set.Platform(entity.CategoryLight).AddEntities(ctx, []entity.Entity{newLight(t, nil, "l1")})
	_ = ts.set.Platform(entity.CategoryBinarySensor).AddEntities(ctx, []entity.Entity{newContact(t, "c1")})

	if got := ts.set.Entities(""); len(got) != 2 || got[0].UniqueID() != "l1" {
		t.Errorf("Entities(all) = %d entities", len(got))
	}
	if got := ts.set.Entities(entity.CategoryBinarySensor); len(got) != 1 || got[0].UniqueID() != "c1" {
		t.Errorf("Entities(binary_sensor) = %v", got)
	}
	if got := ts.set.Entities("climate"); got == nil || len(got) != 0 {
		t.Errorf("Entities(climate) = %v", got)
	}
}

func TestSet_ApplyEvent(t *testing.T) {
	ts := newTestSet(t)
	ctx := context.Background()
	_ = ts.set.Platform(entity.CategoryLight).AddEntities(ctx, []entity.Entity{newLight(t, nil, "l1")})

	unreachable := false
	if err := ts.set.ApplyEvent(ctx, "l1", map[string]any{"isOn": true, "lightLevel": 80.0}, &unreachable); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}

	ent, _ := ts.set.Entity("l1")
	if ent.Available() || ent.State()["on"] != true || ent.State()["level"] != 80 {
		t.Errorf("entity state = %v available = %v", ent.State(), ent.Available())
	}
	row, err := ts.repo.Get(ctx, "l1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.State["on"] != true {
		t.Errorf("stored state = %v", row.State)
	}
	msg, _ := ts.pub.last("graylogic/state/dirigera/l1")
	var st StateMessage
	_ = json.Unmarshal(msg.payload, &st)
	if st.Available || st.State["level"] != float64(80) {
		t.Errorf("published state = %+v", st)
	}

	if err := ts.set.ApplyEvent(ctx, "missing", nil, nil); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("ApplyEvent(missing) error = %v", err)
	}
	if err := ts.set.ApplyEvent(ctx, "l1", map[string]any{"isOn": "maybe"}, nil); err == nil {
		t.Error("ApplyEvent() accepted malformed attributes")
	}
}

func TestSet_MarkUnavailable(t *testing.T) {
	ts := newTestSet(t)
	ctx := context.Background()
	_ = ts.set.Platform(entity.CategoryBinarySensor).AddEntities(ctx, []entity.Entity{newContact(t, "c1")})

	if err := ts.set.MarkUnavailable(ctx, "c1"); err != nil {
		t.Fatalf("MarkUnavailable() error = %v", err)
	}
	ent, _ := ts.set.Entity("c1")
	if ent.Available() {
		t.Error("entity still available")
	}
	if err := ts.set.MarkUnavailable(ctx, "missing"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("MarkUnavailable(missing) error = %v", err)
	}
}

func TestSet_HandleCommand(t *testing.T) {
	ts := newTestSet(t)
	ctx := context.Background()
	_ = ts.set.Platform(entity.CategoryLight).AddEntities(ctx, []entity.Entity{newLight(t, ts.ctl, "l1")})
	_ = ts.set.Platform(entity.CategoryBinarySensor).AddEntities(ctx, []entity.Entity{newContact(t, "c1")})

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"turn on", "graylogic/command/dirigera/l1", `{"on":true}`, nil},
		{"unknown entity", "graylogic/command/dirigera/nope", `{"on":true}`, ErrEntityNotFound},
		{"read-only entity", "graylogic/command/dirigera/c1", `{"on":true}`, ErrNotCommandable},
		{"not json", "graylogic/command/dirigera/l1", `on`, ErrInvalidPayload},
		{"json null", "graylogic/command/dirigera/l1", `null`, ErrInvalidPayload},
		{"bad value", "graylogic/command/dirigera/l1", `{"level":500}`, entity.ErrInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ts.set.HandleCommand(ctx, tt.topic, []byte(tt.payload))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("HandleCommand() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleCommand() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(ts.ctl.calls) != 1 || ts.ctl.calls[0]["isOn"] != true {
		t.Errorf("hub writes = %v, want one isOn write", ts.ctl.calls)
	}
	ent, _ := ts.set.Entity("l1")
	if ent.State()["on"] != true {
		t.Error("command not reflected in state")
	}
}

func TestSet_Start(t *testing.T) {
	ts := newTestSet(t)
	ctx := context.Background()
	_ = ts.set.Platform(entity.CategoryLight).AddEntities(ctx, []entity.Entity{newLight(t, ts.ctl, "l1")})

	sub := &mockSubscriber{}
	if err := ts.set.Start(ctx, sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sub.topic != "graylogic/command/dirigera/+" {
		t.Errorf("subscribed to %q", sub.topic)
	}
	if err := sub.handler("graylogic/command/dirigera/l1", []byte(`{"on":true}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(ts.ctl.calls) != 1 {
		t.Errorf("hub writes = %d, want 1", len(ts.ctl.calls))
	}
}

func TestSet_StopAndHealthCheck(t *testing.T) {
	ctx := context.Background()
	ts := newTestSet(t)
	sub := &mockSubscriber{}

	if err := ts.set.HealthCheck(ctx); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("HealthCheck() before Start = %v, want ErrNotSubscribed", err)
	}
	if err := ts.set.Stop(); err != nil {
		t.Errorf("Stop() before Start = %v", err)
	}

	if err := ts.set.Start(ctx, sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := ts.set.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}

	// Broker dropped the subscription.
	lost := sub.topic
	sub.topic = ""
	if err := ts.set.HealthCheck(ctx); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("HealthCheck() with lost subscription = %v, want ErrNotSubscribed", err)
	}
	sub.topic = lost

	if err := ts.set.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(sub.unsubbed) != 1 || sub.unsubbed[0] != "graylogic/command/dirigera/+" {
		t.Errorf("unsubscribed from %v", sub.unsubbed)
	}
	if err := ts.set.HealthCheck(ctx); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("HealthCheck() after Stop = %v, want ErrNotSubscribed", err)
	}
	if err := ts.set.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestSet_StopUnsubscribeError(t *testing.T) {
	ts := newTestSet(t)
	sub := &mockSubscriber{unsubErr: mqtt.ErrNotConnected}
	if err := ts.set.Start(context.Background(), sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := ts.set.Stop(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Stop() error = %v, want ErrNotConnected", err)
	}
}

type mockNamer struct {
	mu    sync.Mutex
	names map[string]string
	err   error
}

func (m *mockNamer) SetName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.names == nil {
		m.names = make(map[string]string)
	}
	m.names[id] = name
	return nil
}

func TestSet_RenameCommand(t *testing.T) {
	errHub := errors.New("hub: device does not support renaming")

	tests := []struct {
		name     string
		namer    *mockNamer
		id       string
		cmd      entity.Command
		wantErr  error
		wantName string
	}{
		{"rename light", &mockNamer{}, "l1", entity.Command{"name": "Desk lamp"}, nil, "Desk lamp"},
		{"rename read-only sensor", &mockNamer{}, "c1", entity.Command{"name": "Back door"}, nil, "Back door"},
		{"trims whitespace", &mockNamer{}, "l1", entity.Command{"name": "  Hall  "}, nil, "Hall"},
		{"empty name", &mockNamer{}, "l1", entity.Command{"name": " "}, entity.ErrInvalidCommand, ""},
		{"not a string", &mockNamer{}, "l1", entity.Command{"name": 5.0}, entity.ErrInvalidCommand, ""},
		{"combined with state", &mockNamer{}, "l1", entity.Command{"name": "X", "on": true}, entity.ErrInvalidCommand, ""},
		{"renaming disabled", nil, "l1", entity.Command{"name": "X"}, ErrNotCommandable, ""},
		{"hub rejects", &mockNamer{err: errHub}, "l1", entity.Command{"name": "X"}, errHub, ""},
		{"unknown entity", &mockNamer{}, "nope", entity.Command{"name": "X"}, ErrEntityNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := openTestRepo(t)
			pub := &mockPublisher{}
			opts := Options{Repository: repo, Publisher: pub}
			if tt.namer != nil {
				opts.Namer = tt.namer
			}
			set := NewSet(opts)
			ctl := &mockController{}
			_ = set.Platform(entity.CategoryLight).AddEntities(ctx, []entity.Entity{newLight(t, ctl, "l1")})
			_ = set.Platform(entity.CategoryBinarySensor).AddEntities(ctx, []entity.Entity{newContact(t, "c1")})

			err := set.ExecuteCommand(ctx, tt.id, tt.cmd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExecuteCommand() error = %v, want %v", err, tt.wantErr)
				}
				if len(ctl.calls) != 0 {
					t.Errorf("state writes = %v, want none", ctl.calls)
				}
				if ent, ok := set.Entity("l1"); ok && ent.Name() != "Lamp l1" {
					t.Errorf("name changed to %q after a rejected rename", ent.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("ExecuteCommand() error = %v", err)
			}

			if got := tt.namer.names[tt.id]; got != tt.wantName {
				t.Errorf("hub name = %q, want %q", got, tt.wantName)
			}
			ent, _ := set.Entity(tt.id)
			if ent.Name() != tt.wantName {
				t.Errorf("entity name = %q, want %q", ent.Name(), tt.wantName)
			}
			row, err := repo.Get(ctx, tt.id)
			if err != nil {
				t.Fatalf("repo.Get() error = %v", err)
			}
			if row.Name != tt.wantName {
				t.Errorf("stored name = %q, want %q", row.Name, tt.wantName)
			}
			msg, ok := pub.last("graylogic/discovery/dirigera/" + tt.id)
			if !ok {
				t.Fatal("no announcement published")
			}
			var ann Announcement
			if err := json.Unmarshal(msg.payload, &ann); err != nil {
				t.Fatalf("decoding announcement: %v", err)
			}
			if ann.Name != tt.wantName {
				t.Errorf("announced name = %q, want %q", ann.Name, tt.wantName)
			}
			if len(ctl.calls) != 0 {
				t.Errorf("rename should not write device state, got %v", ctl.calls)
			}
		})
	}
}
