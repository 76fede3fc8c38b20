// handlers_meta.go - Per-map metadata, profile and background handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/storage"
)

// MapMetaHandlerImpl implements the MapMetaHandler interface
type MapMetaHandlerImpl struct {
	pins  PinService
	maps  MapCatalog
	files storage.FileStore
}

// NewMapMetaHandler creates a new map metadata handler
func NewMapMetaHandler(pinSvc PinService, maps MapCatalog, files storage.FileStore) *MapMetaHandlerImpl {
	return &MapMetaHandlerImpl{pins: pinSvc, maps: maps, files: files}
}

// HandleGetMeta returns a map's title, note, profiles and backgrounds
func (h *MapMetaHandlerImpl) HandleGetMeta(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	meta, err := h.pins.Meta(c.Request().Context(), scope, c.Param("map"))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

// HandleUpdateMeta sets a map's title and note
func (h *MapMetaHandlerImpl) HandleUpdateMeta(c echo.Context) error {
	var req pins.MetaUpdate
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Title == nil && req.Note == nil {
		return NewBadRequestError("nothing to update", nil)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	meta, err := h.pins.UpdateMeta(c.Request().Context(), scope, c.Param("map"), req)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

// HandleAddProfile creates a profile on a map
func (h *MapMetaHandlerImpl) HandleAddProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	meta, err := h.pins.AddProfile(c.Request().Context(), scope, c.Param("map"), req.Name)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusCreated, meta)
}

// HandleRemoveProfile deletes a profile name. Its pins are kept.
func (h *MapMetaHandlerImpl) HandleRemoveProfile(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	meta, err := h.pins.RemoveProfile(c.Request().Context(), scope, c.Param("map"), c.Param("profile"))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

// HandleSetBackground points a map layer at an uploaded background image.
// An empty fileId restores the default image.
func (h *MapMetaHandlerImpl) HandleSetBackground(c echo.Context) error {
	var req backgroundRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID != "" {
		info, err := h.files.Get(req.FileID)
		if err != nil {
			return NewNotFoundError("file", req.FileID)
		}
		if info.Kind != models.FileKindBackground {
			return NewValidationError("fileId")
		}
	}

	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	meta, err := h.pins.SetBackground(c.Request().Context(), scope, c.Param("map"), req.LayerID, req.FileID)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

// HandleGetBackground returns the image URL to draw for a map layer: the
// custom background of the scope when one is set, else the catalog default.
func (h *MapMetaHandlerImpl) HandleGetBackground(c echo.Context) error {
	mapID := c.Param("map")
	if _, ok := h.maps.Get(mapID); !ok {
		return NewNotFoundError("map", mapID)
	}
	layer := c.QueryParam("layer")
	if layer == "" {
		layer = h.maps.DefaultLayer(mapID)
	}
	if !h.maps.ValidLayer(mapID, layer) {
		return NewValidationError("layer")
	}

	resp := map[string]interface{}{
		"mapId":   mapID,
		"layerId": layer,
		"url":     h.maps.BackgroundURL(mapID, layer),
		"custom":  false,
	}

	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	// Unapproved visitors fall back to the default image.
	if meta, err := h.pins.Meta(c.Request().Context(), scope, mapID); err == nil {
		if id, ok := meta.Backgrounds[models.BackgroundKey(mapID, layer)]; ok {
			if _, err := h.files.Get(id); err == nil {
				resp["url"] = "/api/files/" + id + "/download"
				resp["custom"] = true
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type profileRequest struct {
	Name string `json:"name"`
}

type backgroundRequest struct {
	LayerID string `json:"layerId"`
	FileID  string `json:"fileId"`
}
