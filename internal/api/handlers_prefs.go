// handlers_prefs.go - Per-user marker icon handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// PrefsHandlerImpl implements the PrefsHandler interface
type PrefsHandlerImpl struct {
	prefs PrefsService
}

// NewPrefsHandler creates a new preferences handler
func NewPrefsHandler(prefs PrefsService) *PrefsHandlerImpl {
	return &PrefsHandlerImpl{prefs: prefs}
}

type iconRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

func (r *iconRequest) validate() error {
	if r.Icon == "" {
		return NewValidationError("icon")
	}
	return nil
}

// HandleGetPrefs returns the caller's icon overrides and icon library
func (h *PrefsHandlerImpl) HandleGetPrefs(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	p, err := h.prefs.Get(c.Request().Context(), id.UID)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// HandleSetIcon overrides the icon of one marker type for the caller
func (h *PrefsHandlerImpl) HandleSetIcon(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	var req iconRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	p, err := h.prefs.SetIcon(c.Request().Context(), id.UID, c.Param("type"), req.Icon)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// HandleClearIcon restores the catalog icon of one marker type
func (h *PrefsHandlerImpl) HandleClearIcon(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	p, err := h.prefs.ClearIcon(c.Request().Context(), id.UID, c.Param("type"))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// HandleAddLibraryIcon saves an icon to the caller's library
func (h *PrefsHandlerImpl) HandleAddLibraryIcon(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	var req iconRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	entry, err := h.prefs.AddIcon(c.Request().Context(), id.UID, req.Name, req.Icon)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// HandleRemoveLibraryIcon deletes an icon from the caller's library
func (h *PrefsHandlerImpl) HandleRemoveLibraryIcon(c echo.Context) error {
	id, err := requireIdentity(c)
	if err != nil {
		return err
	}
	p, err := h.prefs.RemoveIcon(c.Request().Context(), id.UID, c.Param("id"))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, p)
}
