// handlers_gamedata.go - Game-data card handlers
package api

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/gamedata"
)

// GameDataHandlerImpl implements the GameDataHandler interface
type GameDataHandlerImpl struct {
	store  GameDataStore
	admins map[string]bool
}

// NewGameDataHandler creates a new game-data handler. Only the listed admin
// uids may reload the dataset.
func NewGameDataHandler(store GameDataStore, admins ...string) *GameDataHandlerImpl {
	h := &GameDataHandlerImpl{store: store, admins: make(map[string]bool, len(admins))}
	for _, uid := range admins {
		if uid = strings.TrimSpace(uid); uid != "" {
			h.admins[uid] = true
		}
	}
	return h
}

// HandleGetCards returns the cards matching q (name) and cat (category)
func (h *GameDataHandlerImpl) HandleGetCards(c echo.Context) error {
	q := gamedata.Query{
		Text:     strings.TrimSpace(c.QueryParam("q")),
		Category: c.QueryParam("cat"),
	}
	if !gamedata.ValidCategory(q.Category) {
		return NewValidationError("cat")
	}

	cards := h.store.Cards(q)
	if cards == nil {
		cards = []gamedata.Card{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cards": cards,
		"total": len(cards),
	})
}

// HandleGetDataset returns the raw dataset
func (h *GameDataHandlerImpl) HandleGetDataset(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Dataset())
}

// HandleReload re-reads the dataset file from disk
func (h *GameDataHandlerImpl) HandleReload(c echo.Context) error {
	caller, err := requireIdentity(c)
	if err != nil {
		return err
	}
	if !h.admins[caller.UID] {
		return NewForbiddenError("only administrators may reload game data")
	}
	if err := h.store.Reload(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewNotFoundError("dataset", "data.json")
		}
		return NewInternalError("failed to reload game data", err)
	}
	ds := h.store.Dataset()
	return c.JSON(http.StatusOK, map[string]int{
		"weapons": len(ds.Weapons),
		"arcs":    len(ds.Arcs),
		"items":   len(ds.Items),
	})
}
