package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
	"github.com/nerrad567/gray-logic-dirigera/internal/hub"
	"github.com/nerrad567/gray-logic-dirigera/internal/platform"
)

// EntityView is the API representation of an entity.
type EntityView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    entity.Category   `json:"category"`
	VendorType  string            `json:"vendor_type"`
	Available   bool              `json:"available"`
	Commandable bool              `json:"commandable"`
	Device      entity.DeviceInfo `json:"device"`
	State       entity.State      `json:"state"`
}

func viewOf(ent entity.Entity) EntityView {
	_, commandable := ent.(entity.Commandable)
	return EntityView{
		ID:          ent.UniqueID(),
		Name:        ent.Name(),
		Category:    ent.Category(),
		VendorType:  string(ent.VendorType()),
		Available:   ent.Available(),
		Commandable: commandable,
		Device:      ent.DeviceInfo(),
		State:       ent.State(),
	}
}

// handleListEntities lists entities, optionally filtered by ?category=.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	var category entity.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		parsed, err := entity.ParseCategory(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		category = parsed
	}

	ents := s.platforms.Entities(category)
	views := make([]EntityView, 0, len(ents))
	for _, ent := range ents {
		views = append(views, viewOf(ent))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": views,
		"count":    len(views),
	})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	ent, ok := s.platforms.Entity(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(ent))
}

// handleEntityCommand runs a command such as {"on": true, "level": 40},
// or renames the device with {"name": "Desk lamp"}.
func (s *Server) handleEntityCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd entity.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd == nil {
		writeBadRequest(w, "body must be a JSON object")
		return
	}

	err := s.platforms.ExecuteCommand(r.Context(), id, cmd)
	switch {
	case err == nil:
	case errors.Is(err, platform.ErrEntityNotFound):
		writeNotFound(w, "entity not found")
		return
	case errors.Is(err, platform.ErrNotCommandable),
		errors.Is(err, entity.ErrInvalidCommand),
		errors.Is(err, entity.ErrUnsupportedCommand),
		errors.Is(err, hub.ErrNameNotSupported):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	default:
		s.logger.Error("entity command failed", "entity_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "hub rejected command")
		return
	}

	ent, _ := s.platforms.Entity(id)
	writeJSON(w, http.StatusOK, viewOf(ent))
}
