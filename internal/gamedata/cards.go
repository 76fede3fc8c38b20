package gamedata

import (
	"sort"
	"strconv"
	"strings"
)

// Card kinds, also accepted as query categories in their plural form.
const (
	KindWeapon = "weapon"
	KindArc    = "arc"
	KindItem   = "item"
)

// Query categories.
const (
	CategoryWeapons = "weapons"
	CategoryArcs    = "arcs"
	CategoryItems   = "items"
)

// Query filters cards. Empty fields match everything.
type Query struct {
	Text     string
	Category string
}

// ValidCategory reports whether c is empty or a known category.
func ValidCategory(c string) bool {
	switch c {
	case "", CategoryWeapons, CategoryArcs, CategoryItems:
		return true
	}
	return false
}

// Level is one row of a weapon's stat progression.
type Level struct {
	Level      int    `json:"level"`
	Damage     string `json:"damage,omitempty"`
	FireRate   string `json:"fire_rate,omitempty"`
	Spread     string `json:"spread,omitempty"`
	ReloadTime string `json:"reload_time,omitempty"`
	MagSize    string `json:"mag_size,omitempty"`
}

// Drop is an item an enemy can drop.
type Drop struct {
	ItemID  string `json:"item_id"`
	Name    string `json:"name"`
	RatePct string `json:"rate_pct,omitempty"`
}

// Card is one displayable entry.
type Card struct {
	Kind   string  `json:"kind"`
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Image  string  `json:"image,omitempty"`
	Price  string  `json:"price,omitempty"`
	Rarity string  `json:"rarity,omitempty"`
	Class  string  `json:"class,omitempty"`
	Type   string  `json:"type,omitempty"`
	Levels []Level `json:"levels,omitempty"`
	Drops  []Drop  `json:"drops,omitempty"`
}

// StatsAt returns the stats for level, or the lowest level when there is no
// exact match. ok is false for cards without levels.
func (c Card) StatsAt(level int) (Level, bool) {
	if len(c.Levels) == 0 {
		return Level{}, false
	}
	for _, l := range c.Levels {
		if l.Level == level {
			return l, true
		}
	}
	return c.Levels[0], true
}

// Cards builds the weapon, enemy and item cards matching q, in that order.
func Cards(ds *Dataset, q Query) []Card {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	cards := []Card{}

	if q.Category == "" || q.Category == CategoryWeapons {
		for _, w := range ds.Weapons {
			if matches(w, text) {
				cards = append(cards, WeaponCard(w, ds.WeaponLevels))
			}
		}
	}
	if q.Category == "" || q.Category == CategoryArcs {
		for _, a := range ds.Arcs {
			if matches(a, text) {
				cards = append(cards, ArcCard(a, ds.ArcDrops, ds.Items))
			}
		}
	}
	if q.Category == "" || q.Category == CategoryItems {
		for _, it := range ds.Items {
			if matches(it, text) {
				cards = append(cards, ItemCard(it))
			}
		}
	}
	return cards
}

func matches(r Row, text string) bool {
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r["name_ja"]), text) ||
		strings.Contains(strings.ToLower(r["name_en"]), text)
}

// WeaponCard builds a weapon card with its levels sorted ascending.
func WeaponCard(w Row, levels []Row) Card {
	c := Card{
		Kind:   KindWeapon,
		ID:     w["id"],
		Name:   w.Name(),
		Image:  w["image_rel"],
		Price:  w["price"],
		Rarity: w["rarity"],
	}
	for _, l := range levels {
		if l["weapon_id"] != w["id"] {
			continue
		}
		n, _ := strconv.Atoi(strings.TrimSpace(l["level"]))
		c.Levels = append(c.Levels, Level{
			Level:      n,
			Damage:     l["damage"],
			FireRate:   l["fire_rate"],
			Spread:     l["spread"],
			ReloadTime: l["reload_time"],
			MagSize:    l["mag_size"],
		})
	}
	sort.SliceStable(c.Levels, func(i, j int) bool { return c.Levels[i].Level < c.Levels[j].Level })
	return c
}

// ArcCard builds an enemy card with its drops resolved to item names. Drops
// naming an unknown item keep the raw item id.
func ArcCard(a Row, drops, items []Row) Card {
	c := Card{
		Kind:  KindArc,
		ID:    a["id"],
		Name:  a.Name(),
		Image: a["image_rel"],
		Class: a["class"],
	}
	byID := make(map[string]Row, len(items))
	for _, it := range items {
		if _, dup := byID[it["id"]]; !dup {
			byID[it["id"]] = it
		}
	}
	for _, d := range drops {
		if d["arc_id"] != a["id"] {
			continue
		}
		name := d["item_id"]
		if it, ok := byID[d["item_id"]]; ok {
			name = it.Name()
		}
		c.Drops = append(c.Drops, Drop{ItemID: d["item_id"], Name: name, RatePct: d["rate_pct"]})
	}
	return c
}

// ItemCard builds an item card.
func ItemCard(it Row) Card {
	return Card{
		Kind:  KindItem,
		ID:    it["id"],
		Name:  it.Name(),
		Image: it["image_rel"],
		Price: it["price"],
		Type:  it["type"],
	}
}
