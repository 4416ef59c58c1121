package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// EmptyScenePrefix names the placeholder scenes created so controller
// clicks show up as hub events.
const EmptyScenePrefix = "dirigera_integration_empty_scene_"

// Click patterns a shortcut controller can emit.
const (
	ClickSingle = "singlePress"
	ClickDouble = "doublePress"
	ClickLong   = "longPress"
)

// Scene is a hub scene.
type Scene struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Info     SceneInfo      `json:"info"`
	Triggers []SceneTrigger `json:"triggers,omitempty"`
}

// SceneInfo is the display part of a scene.
type SceneInfo struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// SceneTrigger starts a scene.
type SceneTrigger struct {
	Type     string         `json:"type"`
	Disabled bool           `json:"disabled"`
	Trigger  TriggerDetails `json:"trigger"`
}

// TriggerDetails describes a controller trigger.
type TriggerDetails struct {
	ControllerType string `json:"controllerType,omitempty"`
	ClickPattern   string `json:"clickPattern,omitempty"`
	ButtonIndex    int    `json:"buttonIndex"`
	DeviceID       string `json:"deviceId,omitempty"`
}

// newScene is the POST /scenes/ body.
type newScene struct {
	Info     SceneInfo      `json:"info"`
	Type     string         `json:"type"`
	Triggers []SceneTrigger `json:"triggers"`
	Actions  []any          `json:"actions"`
}

func scenePath(id string) string {
	return "/scenes/" + url.PathEscape(id)
}

// ListScenes fetches every scene.
func (c *Client) ListScenes(ctx context.Context) ([]Scene, error) {
	var scenes []Scene
	if err := c.get(ctx, "/scenes", &scenes); err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	return scenes, nil
}

// GetScene fetches one scene.
func (c *Client) GetScene(ctx context.Context, id string) (*Scene, error) {
	var scene Scene
	if err := c.get(ctx, scenePath(id), &scene); err != nil {
		return nil, fmt.Errorf("fetching scene %s: %w", id, err)
	}
	return &scene, nil
}

// TriggerScene runs a scene.
func (c *Client) TriggerScene(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, scenePath(id)+"/trigger", nil, nil); err != nil {
		return fmt.Errorf("triggering scene %s: %w", id, err)
	}
	return nil
}

// UndoScene reverts the last run of a scene.
func (c *Client) UndoScene(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, scenePath(id)+"/undo", nil, nil); err != nil {
		return fmt.Errorf("undoing scene %s: %w", id, err)
	}
	return nil
}

// DeleteScene removes a scene.
func (c *Client) DeleteScene(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, scenePath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting scene %s: %w", id, err)
	}
	return nil
}

// EmptySceneName returns the placeholder scene name for a controller click.
func EmptySceneName(controllerID, click string) string {
	return EmptyScenePrefix + controllerID + "_" + click
}

// CreateEmptyScenes creates one action-less scene per click pattern, each
// triggered by the controller's first button. The hub only reports clicks
// that some scene listens for.
func (c *Client) CreateEmptyScenes(ctx context.Context, controllerID string, clicks []string) error {
	for _, click := range clicks {
		name := EmptySceneName(controllerID, click)
		body := newScene{
			Info: SceneInfo{Name: name, Icon: "scenes_cake"},
			Type: "customScene",
			Triggers: []SceneTrigger{{
				Type: "controller",
				Trigger: TriggerDetails{
					ControllerType: "shortcutController",
					ClickPattern:   click,
					ButtonIndex:    0,
					DeviceID:       controllerID,
				},
			}},
			Actions: []any{},
		}
		c.logger.Debug("creating empty scene", "name", name)
		if err := c.do(ctx, http.MethodPost, "/scenes/", body, nil); err != nil {
			return fmt.Errorf("creating scene %s: %w", name, err)
		}
	}
	return nil
}

// DeleteEmptyScenes removes every placeholder scene and returns how many
// were deleted.
func (c *Client) DeleteEmptyScenes(ctx context.Context) (int, error) {
	scenes, err := c.ListScenes(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, s := range scenes {
		if !strings.HasPrefix(s.Info.Name, EmptyScenePrefix) {
			continue
		}
		c.logger.Debug("deleting empty scene", "id", s.ID, "name", s.Info.Name)
		if err := c.DeleteScene(ctx, s.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
