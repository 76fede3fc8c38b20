// handlers_pins.go - Pin CRUD, marked set and bulk delete handlers
package api

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/snapshot"
)

// PinHandlerImpl implements the PinHandler interface
type PinHandlerImpl struct {
	pins           PinService
	compressPhotos bool
}

// NewPinHandler creates a new pin handler. With compressPhotos set, image
// attachments are downscaled and re-encoded as JPEG before they are stored.
func NewPinHandler(pinSvc PinService, compressPhotos bool) *PinHandlerImpl {
	return &PinHandlerImpl{pins: pinSvc, compressPhotos: compressPhotos}
}

// filterFromQuery reads map, layer, profile and hidden (comma separated
// marker types) from the query string.
func filterFromQuery(c echo.Context) pins.Filter {
	f := pins.Filter{
		MapID:     c.QueryParam("map"),
		LayerID:   c.QueryParam("layer"),
		ProfileID: c.QueryParam("profile"),
	}
	if hidden := c.QueryParam("hidden"); hidden != "" {
		for _, t := range strings.Split(hidden, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Hidden = append(f.Hidden, t)
			}
		}
	}
	return f
}

// HandleListPins returns the visible pins of the scope
func (h *PinHandlerImpl) HandleListPins(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	list, err := h.pins.List(c.Request().Context(), scope, filterFromQuery(c))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pins":  list,
		"total": len(list),
	})
}

// HandleListPinsMsgpack returns the same list as HandleListPins encoded with
// MessagePack, for rooms with many pins.
func (h *PinHandlerImpl) HandleListPinsMsgpack(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	list, err := h.pins.List(c.Request().Context(), scope, filterFromQuery(c))
	if err != nil {
		return FromError(err)
	}

	data, err := msgpack.Marshal(map[string]interface{}{
		"pins":  list,
		"total": len(list),
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetPin returns a single pin
func (h *PinHandlerImpl) HandleGetPin(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	pin, err := h.pins.Get(c.Request().Context(), scope, c.Param("id"))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, pin)
}

// HandleAddPin places a pin
func (h *PinHandlerImpl) HandleAddPin(c echo.Context) error {
	var req pins.AddInput
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.MapID == "" {
		return NewValidationError("mapId")
	}
	if req.Type == "" {
		return NewValidationError("type")
	}

	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	pin, err := h.pins.Add(c.Request().Context(), scope, req)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusCreated, pin)
}

// HandleUpdateNote replaces a pin's note
func (h *PinHandlerImpl) HandleUpdateNote(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	if err := h.pins.UpdateNote(c.Request().Context(), scope, c.Param("id"), req.Note); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUpdateImage attaches a photo to a pin. An empty image removes it.
func (h *PinHandlerImpl) HandleUpdateImage(c echo.Context) error {
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	image := req.Image
	if h.compressPhotos && image != "" {
		compressed, err := compressDataURL(image)
		if err != nil {
			return imageError("invalid image", err)
		}
		image = compressed
	}

	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	if err := h.pins.UpdateImage(c.Request().Context(), scope, c.Param("id"), image); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"bytes": len(image)})
}

// HandleUpdateIcon overrides a pin's icon. An empty icon restores the marker's.
func (h *PinHandlerImpl) HandleUpdateIcon(c echo.Context) error {
	var req iconRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	if err := h.pins.UpdateIcon(c.Request().Context(), scope, c.Param("id"), req.Icon); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDeletePin removes a pin
func (h *PinHandlerImpl) HandleDeletePin(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	if err := h.pins.Delete(c.Request().Context(), scope, c.Param("id")); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleMarkPin adds a pin to the caller's marked set
func (h *PinHandlerImpl) HandleMarkPin(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	if err := h.pins.Mark(c.Request().Context(), scope, c.Param("id")); err != nil {
		return FromError(err)
	}
	return h.respondMarked(c)
}

// HandleUnmarkPin removes a pin from the caller's marked set
func (h *PinHandlerImpl) HandleUnmarkPin(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	if err := h.pins.Unmark(c.Request().Context(), scope, c.Param("id")); err != nil {
		return FromError(err)
	}
	return h.respondMarked(c)
}

// HandleMarkedPins lists the caller's marked pin ids
func (h *PinHandlerImpl) HandleMarkedPins(c echo.Context) error {
	return h.respondMarked(c)
}

func (h *PinHandlerImpl) respondMarked(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	ids, err := h.pins.Marked(c.Request().Context(), scope)
	if err != nil {
		return FromError(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"marked": ids})
}

// HandleBulkDelete deletes every pin, or every pin of one type. Owner only.
func (h *PinHandlerImpl) HandleBulkDelete(c echo.Context) error {
	var req bulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}

	var res *pins.BulkResult
	if req.Type == "" {
		res, err = h.pins.DeleteAll(c.Request().Context(), scope, req.Confirm)
	} else {
		res, err = h.pins.DeleteByType(c.Request().Context(), scope, req.Type, req.Confirm)
	}
	if err != nil {
		return bulkError(c, res, err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandlePurge deletes the pins, map metadata and room document. Owner only.
func (h *PinHandlerImpl) HandlePurge(c echo.Context) error {
	var req bulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	res, err := h.pins.PurgeRoom(c.Request().Context(), scope, req.Confirm)
	if err != nil {
		return bulkError(c, res, err)
	}
	return c.JSON(http.StatusOK, res)
}

// bulkError reports a partial bulk delete with what was already removed.
func bulkError(c echo.Context, res *pins.BulkResult, err error) error {
	apiErr := FromError(err)
	if res == nil || res.Deleted == 0 {
		return apiErr
	}
	return c.JSON(apiErr.Status, map[string]interface{}{
		"code":    apiErr.Code,
		"message": apiErr.Message,
		"partial": res,
	})
}

// compressDataURL re-encodes an image data URL as a downscaled JPEG.
// Values that are not data URLs are returned unchanged.
func compressDataURL(dataURL string) (string, error) {
	if !strings.HasPrefix(dataURL, "data:image/") {
		return dataURL, nil
	}
	_, payload, ok := strings.Cut(dataURL, ";base64,")
	if !ok {
		return "", NewValidationError("image")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := snapshot.CompressPhoto(&buf, bytes.NewReader(raw)); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type noteRequest struct {
	Note string `json:"note"`
}

type imageRequest struct {
	Image string `json:"image"`
}

func (r *imageRequest) validate() error {
	if r.Image != "" && !strings.HasPrefix(r.Image, "data:image/") && !strings.HasPrefix(r.Image, "http") {
		return NewValidationError("image")
	}
	return nil
}

type bulkDeleteRequest struct {
	Type    string `json:"type"`
	Confirm string `json:"confirm"`
}
