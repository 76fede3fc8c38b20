// handlers_session.go - Session resolution and room protocol handlers
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/catalog"
	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/viewport"
)

const (
	defaultViewWidth  = 1280
	defaultViewHeight = 720
	recentRoomsLimit  = 10
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	rooms RoomController
	pins  PinService
	maps  MapCatalog
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(rooms RoomController, pinSvc PinService, maps MapCatalog) *SessionHandlerImpl {
	return &SessionHandlerImpl{rooms: rooms, pins: pinSvc, maps: maps}
}

// sessionResponse echoes the resolved URL state so the client can write it
// back to its address bar.
type sessionResponse struct {
	Scope        models.Scope      `json:"scope"`
	Key          string            `json:"key"`
	Access       *session.Access   `json:"access"`
	MapID        string            `json:"mapId"`
	LayerID      string            `json:"layerId,omitempty"`
	ProfileID    string            `json:"profileId"`
	Viewport     viewport.State    `json:"viewport"`
	ConfirmToken string            `json:"confirmToken,omitempty"`
	Query        map[string]string `json:"query"`
	Limits       limitsView        `json:"limits"`
}

// limitsView exposes the validation thresholds to the client in milliseconds
// and bytes.
type limitsView struct {
	PinIntervalMs   int64 `json:"pinIntervalMs"`
	MaxPinsPerRoom  int   `json:"maxPinsPerRoom"`
	NoteMaxLength   int   `json:"noteMaxLength"`
	NoteIntervalMs  int64 `json:"noteIntervalMs"`
	ImageMaxBytes   int   `json:"imageMaxBytes"`
	ImageIntervalMs int64 `json:"imageIntervalMs"`
}

func newLimitsView(l pins.Limits) limitsView {
	return limitsView{
		PinIntervalMs:   l.CreateInterval.Milliseconds(),
		MaxPinsPerRoom:  l.MaxPinsPerRoom,
		NoteMaxLength:   l.MaxNoteLength,
		NoteIntervalMs:  l.NoteInterval.Milliseconds(),
		ImageMaxBytes:   l.MaxImageBytes,
		ImageIntervalMs: l.ImageInterval.Milliseconds(),
	}
}

// HandleGetSession resolves mode, identity, map, layer, profile and the
// initial viewport from the URL parameters. An optional zoom keeps the view
// centre fixed.
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	access, err := h.rooms.Access(ctx, scope)
	if err != nil {
		return FromError(err)
	}

	view := viewport.Point{
		X: queryFloat(c, "w", defaultViewWidth),
		Y: queryFloat(c, "h", defaultViewHeight),
	}
	ctrl := viewport.NewController(h.maps, view)
	if !ctrl.SwitchMap(c.QueryParam("map")) {
		ctrl.SwitchMap(catalog.DefaultMapID)
	}
	if layer := c.QueryParam("layer"); layer != "" {
		ctrl.SetLayer(layer)
	}
	if zoom := queryFloat(c, "zoom", 0); zoom > 0 {
		ctrl.ZoomCenter(zoom)
	}

	profile := models.DefaultProfile
	if access.Approved {
		profile, err = h.pins.ResolveProfile(ctx, scope, ctrl.MapID(), c.QueryParam("profile"))
		if err != nil {
			return FromError(err)
		}
	}

	resp := sessionResponse{
		Scope:     scope,
		Key:       scope.Key(),
		Access:    access,
		MapID:     ctrl.MapID(),
		LayerID:   ctrl.Layer(),
		ProfileID: profile,
		Viewport:  ctrl.State(),
		Query:     map[string]string{"map": ctrl.MapID()},
		Limits:    newLimitsView(h.pins.Limits()),
	}
	if scope.Shared() {
		resp.Query["room"] = scope.RoomID
	}
	if profile != models.DefaultProfile {
		resp.Query["profile"] = profile
	}
	if access.Role == models.RoleOwner {
		resp.ConfirmToken = pins.ConfirmToken(scope)
	}
	return c.JSON(http.StatusOK, resp)
}

func queryFloat(c echo.Context, name string, def float64) float64 {
	v, err := strconv.ParseFloat(c.QueryParam(name), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// HandleCreateRoom creates a room owned by the caller. Without a room id a
// random code is generated; an existing id is joined instead.
func (h *SessionHandlerImpl) HandleCreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	room := strings.TrimSpace(req.RoomID)
	if room == "" {
		room = session.GenerateRoomID()
	}

	scope, err := scopeFor(c, room)
	if err != nil {
		return err
	}
	res, err := h.rooms.Enter(c.Request().Context(), scope, true)
	if err != nil {
		return FromError(err)
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// HandleJoinRoom enters an existing room, requesting access when needed
func (h *SessionHandlerImpl) HandleJoinRoom(c echo.Context) error {
	scope, err := scopeFor(c, c.Param("room"))
	if err != nil {
		return err
	}
	res, err := h.rooms.Enter(c.Request().Context(), scope, false)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleRoomAccess returns the caller's role in a room
func (h *SessionHandlerImpl) HandleRoomAccess(c echo.Context) error {
	scope, err := scopeFor(c, c.Param("room"))
	if err != nil {
		return err
	}
	access, err := h.rooms.Access(c.Request().Context(), scope)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, access)
}

// HandleApprove admits a pending user. Owner only.
func (h *SessionHandlerImpl) HandleApprove(c echo.Context) error {
	return h.decide(c, h.rooms.Approve)
}

// HandleReject drops a pending request. Owner only.
func (h *SessionHandlerImpl) HandleReject(c echo.Context) error {
	return h.decide(c, h.rooms.Reject)
}

func (h *SessionHandlerImpl) decide(c echo.Context, fn func(ctx context.Context, scope models.Scope, uid string) error) error {
	var req pendingDecisionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	scope, err := scopeFor(c, c.Param("room"))
	if err != nil {
		return err
	}
	if err := fn(c.Request().Context(), scope, req.UID); err != nil {
		return FromError(err)
	}
	access, err := h.rooms.Access(c.Request().Context(), scope)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, access)
}

// HandleRecentRooms lists rooms the caller belongs to
func (h *SessionHandlerImpl) HandleRecentRooms(c echo.Context) error {
	id := identityOf(c)
	rooms, err := h.rooms.RecentRooms(c.Request().Context(), id.UID, recentRoomsLimit)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// HandleOnline lists the users connected to a room. Approved users only.
func (h *SessionHandlerImpl) HandleOnline(c echo.Context) error {
	scope, err := scopeFor(c, c.Param("room"))
	if err != nil {
		return err
	}
	if err := h.rooms.CanView(c.Request().Context(), scope); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"roomId": scope.RoomID,
		"users":  h.rooms.Online(scope.RoomID),
	})
}

type createRoomRequest struct {
	RoomID string `json:"roomId"`
}

type pendingDecisionRequest struct {
	UID string `json:"uid"`
}

func (r *pendingDecisionRequest) validate() error {
	if strings.TrimSpace(r.UID) == "" {
		return NewValidationError("uid")
	}
	return nil
}
