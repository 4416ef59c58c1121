package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/mqtt"
)

// Protocol is the protocol segment of every entity topic.
const Protocol = "dirigera"

// Publisher publishes MQTT messages. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateWriter records entity state telemetry. *influxdb.Client satisfies it.
type StateWriter interface {
	WriteEntityState(entityID, category string, state map[string]any)
}

// Logger is the logging interface used by platforms.
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

// Announcement is the retained discovery message for an entity.
type Announcement struct {
	EntityID     string            `json:"entity_id"`
	Name         string            `json:"name"`
	Category     entity.Category   `json:"category"`
	VendorType   string            `json:"vendor_type"`
	Device       entity.DeviceInfo `json:"device"`
	Commandable  bool              `json:"commandable"`
	StateTopic   string            `json:"state_topic"`
	CommandTopic string            `json:"command_topic,omitempty"`
}

// StateMessage is the retained state message for an entity.
type StateMessage struct {
	EntityID  string       `json:"entity_id"`
	Available bool         `json:"available"`
	State     entity.State `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
}

// outputs bundles the sinks a platform writes to. Any of them may be nil.
type outputs struct {
	repo      Repository
	publisher Publisher
	telemetry StateWriter
	logger    Logger
	topics    mqtt.Topics
}

// Platform owns the entities of one category.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Platform struct {
	category entity.Category
	out      *outputs

	mu       sync.RWMutex
	entities map[string]entity.Entity
}

func newPlatform(category entity.Category, out *outputs) *Platform {
	return &Platform{
		category: category,
		out:      out,
		entities: make(map[string]entity.Entity),
	}
}

// Category returns the category this platform accepts.
func (p *Platform) Category() entity.Category { return p.category }

// AddEntities registers a batch of entities.
//
// The batch is rejected as a whole if any entity belongs to another
// category or cannot be persisted. Once stored, each entity is announced
// and its state published; MQTT failures are logged and do not fail the
// batch, since the announcements are retained and re-sent on the next
// state change.
//
// Parameters:
//   - ctx: Bounds the database transaction
//   - entities: Entities of this platform's category
//
// Returns:
//   - error: ErrWrongCategory or a persistence error; nil on success
func (p *Platform) AddEntities(ctx context.Context, entities []entity.Entity) error {
	rows := make([]Row, 0, len(entities))
	for _, ent := range entities {
		if ent == nil {
			return fmt.Errorf("%w: nil entity", ErrWrongCategory)
		}
		if ent.Category() != p.category {
			return fmt.Errorf("%w: %s is %s, platform is %s",
				ErrWrongCategory, ent.UniqueID(), ent.Category(), p.category)
		}
		rows = append(rows, rowFor(ent))
	}

	if p.out.repo != nil {
		if err := p.out.repo.SaveAll(ctx, rows); err != nil {
			return fmt.Errorf("persisting %s entities: %w", p.category, err)
		}
	}

	p.mu.Lock()
	for _, ent := range entities {
		p.entities[ent.UniqueID()] = ent
	}
	p.mu.Unlock()

	for _, ent := range entities {
		p.announce(ent)
		p.publishState(ent)
	}
	p.out.logger.Info("entities added", "category", p.category, "count", len(entities))
	return nil
}

// Entity returns the entity with the given id.
func (p *Platform) Entity(id string) (entity.Entity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ent, ok := p.entities[id]
	return ent, ok
}

// Entities returns the platform's entities ordered by id.
func (p *Platform) Entities() []entity.Entity {
	p.mu.RLock()
	out := make([]entity.Entity, 0, len(p.entities))
	for _, ent := range p.entities {
		out = append(out, ent)
	}
	p.mu.RUnlock()

	slices.SortFunc(out, func(a, b entity.Entity) int {
		switch {
		case a.UniqueID() < b.UniqueID():
			return -1
		case a.UniqueID() > b.UniqueID():
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of entities held.
func (p *Platform) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entities)
}

func (p *Platform) announce(ent entity.Entity) {
	if p.out.publisher == nil {
		return
	}
	id := ent.UniqueID()
	msg := Announcement{
		EntityID:   id,
		Name:       ent.Name(),
		Category:   ent.Category(),
		VendorType: string(ent.VendorType()),
		Device:     ent.DeviceInfo(),
		StateTopic: p.out.topics.EntityState(Protocol, id),
	}
	if _, ok := ent.(entity.Commandable); ok {
		msg.Commandable = true
		msg.CommandTopic = p.out.topics.EntityCommand(Protocol, id)
	}
	p.publish(p.out.topics.EntityDiscovery(Protocol, id), msg)
}

// publishState publishes the entity's current state and records it as
// telemetry.
func (p *Platform) publishState(ent entity.Entity) {
	state := ent.State()
	if p.out.telemetry != nil {
		p.out.telemetry.WriteEntityState(ent.UniqueID(), string(ent.Category()), state)
	}
	if p.out.publisher == nil {
		return
	}
	p.publish(p.out.topics.EntityState(Protocol, ent.UniqueID()), StateMessage{
		EntityID:  ent.UniqueID(),
		Available: ent.Available(),
		State:     state,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Platform) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.out.logger.Error("encoding mqtt payload", "topic", topic, "error", err)
		return
	}
	if err := p.out.publisher.Publish(topic, payload, 1, true); err != nil {
		p.out.logger.Warn("publishing entity message", "topic", topic, "error", err)
	}
}
