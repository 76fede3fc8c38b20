// Package catalog holds the static marker and map registries and the
// user-defined marker overlay.
package catalog

import "github.com/tactical-map/backend/internal/models"

// FallbackMarkerID is rendered for pins whose type is no longer known.
const FallbackMarkerID = "unknown"

const fallbackCategory = "others"

var baseCategories = []models.Category{
	{ID: "containers", Label: "Containers", Color: "#f59e0b"},
	{ID: "arc", Label: "ARC", Color: "#ef4444"},
	{ID: "nature", Label: "Nature", Color: "#10b981"},
	{ID: "events", Label: "Events", Color: "#a855f7"},
	{ID: "others", Label: "Others", Color: "#3b82f6"},
}

var baseMarkers = []models.Marker{
	{ID: "weapon_case", Category: "containers", Label: "Weapon Case", Icon: "briefcase"},
	{ID: "ammo", Category: "containers", Label: "Ammo Box", Icon: "package"},
	{ID: "med", Category: "containers", Label: "Med Bag", Icon: "plus-square"},
	{ID: "grenade", Category: "containers", Label: "Grenade Tube", Icon: "circle-dot"},
	{ID: "backpack", Category: "containers", Label: "Backpack", Icon: "briefcase"},
	{ID: "wasp", Category: "containers", Label: "Wasp Husk", Icon: "circle-dot"},
	{ID: "probe", Category: "containers", Label: "Crashed Probe", Icon: "radio"},
	{ID: "lockbox", Category: "containers", Label: "Security Lockbox", Icon: "key"},
	{ID: "tick", Category: "arc", Label: "Small ARC (Tick/Pop)", Icon: "bug"},
	{ID: "drone", Category: "arc", Label: "Drone / Fireball", Icon: "eye"},
	{ID: "turret", Category: "arc", Label: "Turret", Icon: "zap"},
	{ID: "rocket", Category: "arc", Label: "Rocketeer", Icon: "bot"},
	{ID: "heavy", Category: "arc", Label: "Heavy ARC (Sentinel etc.)", Icon: "shield-alert"},
	{ID: "mushroom", Category: "nature", Label: "Mushroom", Icon: "sprout"},
	{ID: "plant", Category: "nature", Label: "Plant / Fruit", Icon: "flower"},
	{ID: "harvester", Category: "events", Label: "Harvester", Icon: "zap"},
	{ID: "cache", Category: "events", Label: "Raider Cache", Icon: "package"},
	{ID: "elevator", Category: "others", Label: "Elevator", Icon: "anchor"},
	{ID: "hatch", Category: "others", Label: "Hatch", Icon: "door-open"},
	{ID: "supply", Category: "others", Label: "Supply Station", Icon: "radio"},
	{ID: "camp", Category: "others", Label: "Raider Camp", Icon: "tent"},
	{ID: "spawn", Category: "others", Label: "Player Spawn", Icon: "user"},
	{ID: "quest", Category: "others", Label: "Quest", Icon: "map-pin"},
	{ID: "locked_room", Category: "others", Label: "Locked Room", Icon: "key"},
	{ID: "extract", Category: "others", Label: "Extraction Point", Icon: "flag"},
}

var fallbackMarker = models.Marker{ID: FallbackMarkerID, Category: fallbackCategory, Label: "Other", Icon: "circle-dot"}

// Categories returns the fixed category table in display order.
func Categories() []models.Category {
	out := make([]models.Category, len(baseCategories))
	copy(out, baseCategories)
	return out
}

// Category looks up a category by id.
func Category(id string) (models.Category, bool) {
	for _, c := range baseCategories {
		if c.ID == id {
			return c, true
		}
	}
	return models.Category{}, false
}

// CategoryOrFallback returns the category for id, or the "others" category.
func CategoryOrFallback(id string) models.Category {
	if c, ok := Category(id); ok {
		return c
	}
	c, _ := Category(fallbackCategory)
	return c
}

// FallbackMarker returns the marker shown for unknown pin types.
func FallbackMarker() models.Marker {
	return fallbackMarker
}

// BaseMarkers returns a copy of the built-in marker table.
func BaseMarkers() []models.Marker {
	out := make([]models.Marker, len(baseMarkers))
	copy(out, baseMarkers)
	return out
}

func baseMarker(id string) (models.Marker, bool) {
	for _, m := range baseMarkers {
		if m.ID == id {
			return m, true
		}
	}
	return models.Marker{}, false
}
