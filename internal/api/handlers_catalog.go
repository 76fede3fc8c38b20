// handlers_catalog.go - Marker and map catalog handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/catalog"
)

// CatalogHandlerImpl implements the CatalogHandler interface
type CatalogHandlerImpl struct {
	markers MarkerRegistry
	maps    MapCatalog
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(markers MarkerRegistry, maps MapCatalog) *CatalogHandlerImpl {
	return &CatalogHandlerImpl{markers: markers, maps: maps}
}

// HandleGetMarkers returns the categories, the merged marker list and the
// fallback marker used for unknown pin types.
func (h *CatalogHandlerImpl) HandleGetMarkers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories": catalog.Categories(),
		"markers":    h.markers.All(),
		"custom":     h.markers.Custom(),
		"fallback":   catalog.FallbackMarker(),
	})
}

// HandleResolveMarker returns the marker and category used to draw a pin of
// the given type. Unknown types resolve to the fallback marker.
func (h *CatalogHandlerImpl) HandleResolveMarker(c echo.Context) error {
	m := h.markers.Resolve(c.Param("id"))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"marker":   m,
		"category": catalog.CategoryOrFallback(m.Category),
	})
}

// HandleAddMarker defines a custom marker owned by the caller
func (h *CatalogHandlerImpl) HandleAddMarker(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	var req addMarkerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	m, err := h.markers.AddCustom(req.Label, req.Category, req.Icon, id.UID)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

// HandleRemoveMarker deletes a custom marker created by the caller. Pins of
// that type fall back to the generic marker.
func (h *CatalogHandlerImpl) HandleRemoveMarker(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	if err := h.markers.RemoveCustom(c.Param("id"), id.UID); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetMaps returns the map catalog
func (h *CatalogHandlerImpl) HandleGetMaps(c echo.Context) error {
	return c.JSON(http.StatusOK, h.maps.List())
}

type addMarkerRequest struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Icon     string `json:"icon"`
}

func (r *addMarkerRequest) validate() error {
	if r.Label == "" {
		return NewValidationError("label")
	}
	if r.Category == "" {
		return NewValidationError("category")
	}
	return nil
}
