package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/mqtt"
)

// commandTimeout bounds one command's round trip to the hub.
const commandTimeout = 10 * time.Second

// Subscriber manages MQTT subscriptions. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	HasSubscription(topic string) bool
}

// Namer renames devices on the hub. *hub.Client satisfies it.
type Namer interface {
	SetName(ctx context.Context, id, name string) error
}

// nameKey is the command key that renames a device.
const nameKey = "name"

// Registrar accepts platform callbacks. *discovery.Coordinator satisfies it.
type Registrar interface {
	RegisterPlatformCallback(category entity.Category, fn discovery.AddEntitiesFunc)
}

// Options configures a Set. Every field is optional.
type Options struct {
	// Categories limits which platforms are created. Empty means all.
	Categories []entity.Category

	Repository Repository
	Publisher  Publisher
	Telemetry  StateWriter
	Logger     Logger

	// Namer enables the name command. Nil rejects renames.
	Namer Namer
}

// Set is the group of platforms for one bridge, one per category.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Set struct {
	out       *outputs
	namer     Namer
	platforms map[entity.Category]*Platform

	subMu sync.Mutex
	sub   Subscriber // set by Start, cleared by Stop
}

// NewSet creates an empty platform for every enabled category.
func NewSet(opts Options) *Set {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	out := &outputs{
		repo:      opts.Repository,
		publisher: opts.Publisher,
		telemetry: opts.Telemetry,
		logger:    logger,
	}
	s := &Set{out: out, namer: opts.Namer, platforms: make(map[entity.Category]*Platform)}
	cats := opts.Categories
	if len(cats) == 0 {
		cats = entity.Categories()
	}
	for _, cat := range cats {
		s.platforms[cat] = newPlatform(cat, out)
	}
	return s
}

// Register hands every platform's AddEntities to r.
func (s *Set) Register(r Registrar) {
	for _, p := range s.platforms {
		r.RegisterPlatformCallback(p.category, p.AddEntities)
	}
}

// Platform returns the platform for category, or nil when the category
// is unknown or disabled.
func (s *Set) Platform(category entity.Category) *Platform {
	return s.platforms[category]
}

// Entity finds an entity in any platform.
func (s *Set) Entity(id string) (entity.Entity, bool) {
	ent, _, err := s.lookup(id)
	return ent, err == nil
}

// Entities returns the entities of one category, or of every category
// when category is empty. Results are grouped by category, then ordered
// by id.
func (s *Set) Entities(category entity.Category) []entity.Entity {
	if category != "" {
		p, ok := s.platforms[category]
		if !ok {
			return []entity.Entity{}
		}
		return p.Entities()
	}
	out := []entity.Entity{}
	for _, cat := range entity.Categories() {
		if p, ok := s.platforms[cat]; ok {
			out = append(out, p.Entities()...)
		}
	}
	return out
}

// Len returns the number of entities across all platforms.
func (s *Set) Len() int {
	n := 0
	for _, p := range s.platforms {
		n += p.Len()
	}
	return n
}

// ApplyEvent merges a hub state change into the entity and re-publishes
// its state. reachable is nil when the event does not carry it.
//
// Returns:
//   - error: ErrEntityNotFound if no platform holds id, or an attribute
//     decoding error
func (s *Set) ApplyEvent(ctx context.Context, id string, attrs map[string]any, reachable *bool) error {
	ent, p, err := s.lookup(id)
	if err != nil {
		return err
	}
	if len(attrs) > 0 {
		if err := ent.ApplyAttributes(attrs); err != nil {
			return fmt.Errorf("applying attributes to %s: %w", id, err)
		}
	}
	if reachable != nil {
		ent.SetAvailable(*reachable)
	}
	s.stateChanged(ctx, p, ent)
	return nil
}

// MarkUnavailable flags the entity as unreachable, e.g. after the device
// was removed from the hub.
func (s *Set) MarkUnavailable(ctx context.Context, id string) error {
	ent, p, err := s.lookup(id)
	if err != nil {
		return err
	}
	ent.SetAvailable(false)
	s.stateChanged(ctx, p, ent)
	return nil
}

// HandleCommand decodes an MQTT command message and runs it on the
// addressed entity.
//
// Parameters:
//   - ctx: Bounds the hub write
//   - topic: graylogic/command/dirigera/{id}
//   - payload: JSON object such as {"on": true, "level": 40}
//
// Returns:
//   - error: ErrInvalidPayload or any error from ExecuteCommand
func (s *Set) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	id := s.out.topics.EntityIDFromTopic(topic)

	var cmd entity.Command
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd == nil {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, id)
	}
	return s.ExecuteCommand(ctx, id, cmd)
}

// ExecuteCommand runs cmd on entity id and publishes the resulting state.
// A command of the form {"name": "..."} renames the device instead and
// is accepted by read-only entities too.
//
// Returns:
//   - error: ErrEntityNotFound, ErrNotCommandable or the entity's
//     command error
func (s *Set) ExecuteCommand(ctx context.Context, id string, cmd entity.Command) error {
	ent, p, err := s.lookup(id)
	if err != nil {
		return err
	}
	if _, ok := cmd[nameKey]; ok {
		return s.rename(ctx, p, ent, cmd)
	}
	target, ok := ent.(entity.Commandable)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCommandable, id)
	}
	if err := target.HandleCommand(ctx, cmd); err != nil {
		return fmt.Errorf("command for %s: %w", id, err)
	}
	s.out.logger.Debug("command applied", "entity_id", id, "command", cmd)
	s.stateChanged(ctx, p, ent)
	return nil
}

// rename writes a new name to the hub, then updates the stored row and
// re-announces the entity.
func (s *Set) rename(ctx context.Context, p *Platform, ent entity.Entity, cmd entity.Command) error {
	id := ent.UniqueID()
	if len(cmd) != 1 {
		return fmt.Errorf("command for %s: %w: name cannot be combined with other keys", id, entity.ErrInvalidCommand)
	}
	name, ok := cmd[nameKey].(string)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("command for %s: %w: name must be a non-empty string", id, entity.ErrInvalidCommand)
	}
	if s.namer == nil {
		return fmt.Errorf("%w: renaming is disabled for %s", ErrNotCommandable, id)
	}

	if err := s.namer.SetName(ctx, id, name); err != nil {
		return fmt.Errorf("renaming %s: %w", id, err)
	}
	if err := ent.ApplyAttributes(map[string]any{"customName": name}); err != nil {
		return fmt.Errorf("renaming %s: %w", id, err)
	}
	if s.out.repo != nil {
		if err := s.out.repo.SaveAll(ctx, []Row{rowFor(ent)}); err != nil && !errors.Is(err, context.Canceled) {
			s.out.logger.Warn("storing renamed entity", "entity_id", id, "error", err)
		}
	}
	s.out.logger.Info("entity renamed", "entity_id", id, "name", name)
	p.announce(ent)
	s.stateChanged(ctx, p, ent)
	return nil
}

// Start subscribes to the command topics of every entity. Commands run
// with a timeout derived from ctx.
func (s *Set) Start(ctx context.Context, sub Subscriber) error {
	topic := s.out.topics.AllEntityCommands(Protocol)
	err := sub.Subscribe(topic, 1, func(topic string, payload []byte) error {
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		err := s.HandleCommand(cctx, topic, payload)
		if err != nil {
			s.out.logger.Warn("command rejected", "topic", topic, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	s.subMu.Lock()
	s.sub = sub
	s.subMu.Unlock()
	return nil
}

// Stop unsubscribes from the command topics. It is a no-op before Start.
func (s *Set) Stop() error {
	s.subMu.Lock()
	sub := s.sub
	s.sub = nil
	s.subMu.Unlock()
	if sub == nil {
		return nil
	}
	topic := s.out.topics.AllEntityCommands(Protocol)
	if err := sub.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

// HealthCheck reports whether commands are being received.
//
// Returns:
//   - error: ErrNotSubscribed before Start, after Stop, or when the
//     command subscription has been lost
func (s *Set) HealthCheck(_ context.Context) error {
	s.subMu.Lock()
	sub := s.sub
	s.subMu.Unlock()
	topic := s.out.topics.AllEntityCommands(Protocol)
	if sub == nil || !sub.HasSubscription(topic) {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, topic)
	}
	return nil
}

// PruneStale removes stored entity rows whose ids are not in keep.
func (s *Set) PruneStale(ctx context.Context, keep []string) (int, error) {
	if s.out.repo == nil {
		return 0, nil
	}
	n, err := s.out.repo.PruneExcept(ctx, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.out.logger.Info("pruned stale entities", "count", n)
	}
	return n, nil
}

func (s *Set) lookup(id string) (entity.Entity, *Platform, error) {
	for _, p := range s.platforms {
		if ent, ok := p.Entity(id); ok {
			return ent, p, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrEntityNotFound, id)
}

// stateChanged persists and publishes ent's state. Storage failures are
// logged; the in-memory entity stays authoritative.
func (s *Set) stateChanged(ctx context.Context, p *Platform, ent entity.Entity) {
	if s.out.repo != nil {
		err := s.out.repo.UpdateState(ctx, ent.UniqueID(), ent.State())
		if err != nil && !errors.Is(err, context.Canceled) {
			s.out.logger.Warn("storing entity state", "entity_id", ent.UniqueID(), "error", err)
		}
	}
	p.publishState(ent)
}
