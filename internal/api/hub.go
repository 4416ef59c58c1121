package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
	"github.com/nerrad567/gray-logic-dirigera/internal/hub"
)

// HubBrowser reads scenes and typed device lists straight from the hub.
// *hub.Client satisfies it.
type HubBrowser interface {
	ListScenes(ctx context.Context) ([]hub.Scene, error)
	GetScene(ctx context.Context, id string) (*hub.Scene, error)
	TriggerScene(ctx context.Context, id string) error
	UndoScene(ctx context.Context, id string) error
	ListControllers(ctx context.Context) ([]*device.Record, error)
	ListMotionSensors(ctx context.Context) ([]*device.Record, error)
	GetMotionSensor(ctx context.Context, id string) (*device.Record, error)
}

// ControllerView is the API representation of a remote or shortcut button.
type ControllerView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Model             string `json:"model,omitempty"`
	Room              string `json:"room,omitempty"`
	Reachable         bool   `json:"reachable"`
	BatteryPercentage *int   `json:"battery_percentage,omitempty"`
	SwitchLabel       string `json:"switch_label,omitempty"`
}

// MotionSensorView is the API representation of a motion or occupancy sensor.
type MotionSensorView struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	DeviceType        string   `json:"device_type"`
	Room              string   `json:"room,omitempty"`
	Reachable         bool     `json:"reachable"`
	Detected          bool     `json:"detected"`
	BatteryPercentage *int     `json:"battery_percentage,omitempty"`
	LightLevel        *float64 `json:"light_level,omitempty"`
}

func controllerView(rec *device.Record) (ControllerView, error) {
	attrs, err := rec.Controller()
	if err != nil {
		return ControllerView{}, err
	}
	return ControllerView{
		ID:                rec.ID,
		Name:              rec.DisplayName(),
		Model:             rec.Attributes.Model,
		Room:              rec.RoomName(),
		Reachable:         rec.IsReachable,
		BatteryPercentage: attrs.BatteryPercentage,
		SwitchLabel:       attrs.SwitchLabel,
	}, nil
}

func motionSensorView(rec *device.Record) (MotionSensorView, error) {
	attrs, err := rec.MotionSensor()
	if err != nil {
		return MotionSensorView{}, err
	}
	return MotionSensorView{
		ID:                rec.ID,
		Name:              rec.DisplayName(),
		DeviceType:        string(rec.DeviceType),
		Room:              rec.RoomName(),
		Reachable:         rec.IsReachable,
		Detected:          attrs.IsDetected,
		BatteryPercentage: attrs.BatteryPercentage,
		LightLevel:        attrs.LightLevel,
	}, nil
}

// requireHub writes 503 and returns false when no hub browser is wired.
func (s *Server) requireHub(w http.ResponseWriter) bool {
	if s.hub == nil {
		writeServiceUnavailable(w, "hub access is disabled")
		return false
	}
	return true
}

// writeHubError maps a hub failure onto a response.
func (s *Server) writeHubError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, hub.ErrNotFound):
		writeNotFound(w, "not found on hub")
	case errors.Is(err, hub.ErrWrongDeviceType):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("hub request failed", "op", op, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "hub request failed")
	}
}

// handleListScenes lists hub scenes. Placeholder scenes created for
// controllers are hidden unless ?include_empty=true.
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	scenes, err := s.hub.ListScenes(r.Context())
	if err != nil {
		s.writeHubError(w, err, "list_scenes")
		return
	}

	includeEmpty := r.URL.Query().Get("include_empty") == "true"
	out := make([]hub.Scene, 0, len(scenes))
	for _, sc := range scenes {
		if !includeEmpty && strings.HasPrefix(sc.Info.Name, hub.EmptyScenePrefix) {
			continue
		}
		out = append(out, sc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": out, "count": len(out)})
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	scene, err := s.hub.GetScene(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeHubError(w, err, "get_scene")
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (s *Server) handleTriggerScene(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.hub.TriggerScene(r.Context(), id); err != nil {
		s.writeHubError(w, err, "trigger_scene")
		return
	}
	s.logger.Info("scene triggered", "scene_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"scene_id": id, "status": "triggered"})
}

func (s *Server) handleUndoScene(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.hub.UndoScene(r.Context(), id); err != nil {
		s.writeHubError(w, err, "undo_scene")
		return
	}
	s.logger.Info("scene undone", "scene_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"scene_id": id, "status": "undone"})
}

// handleListControllers lists remotes with their battery level. Records
// whose attributes cannot be decoded are skipped.
func (s *Server) handleListControllers(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	recs, err := s.hub.ListControllers(r.Context())
	if err != nil {
		s.writeHubError(w, err, "list_controllers")
		return
	}
	views := make([]ControllerView, 0, len(recs))
	for _, rec := range recs {
		v, err := controllerView(rec)
		if err != nil {
			s.logger.Warn("skipping controller", "device_id", rec.ID, "error", err)
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"controllers": views, "count": len(views)})
}

func (s *Server) handleListMotionSensors(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	recs, err := s.hub.ListMotionSensors(r.Context())
	if err != nil {
		s.writeHubError(w, err, "list_motion_sensors")
		return
	}
	views := make([]MotionSensorView, 0, len(recs))
	for _, rec := range recs {
		v, err := motionSensorView(rec)
		if err != nil {
			s.logger.Warn("skipping motion sensor", "device_id", rec.ID, "error", err)
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"motion_sensors": views, "count": len(views)})
}

func (s *Server) handleGetMotionSensor(w http.ResponseWriter, r *http.Request) {
	if !s.requireHub(w) {
		return
	}
	rec, err := s.hub.GetMotionSensor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeHubError(w, err, "get_motion_sensor")
		return
	}
	v, err := motionSensorView(rec)
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "hub returned malformed sensor attributes")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
