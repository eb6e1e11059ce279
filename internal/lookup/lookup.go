// Package lookup derives reverse indices from a game data mapping: object id to
// the semantic category the interpreter needs.
package lookup

import (
	"context"
	"sort"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
)

const TagGameData = "gamedata"

var (
	barrackTiers = []domain.EventType{domain.EventUpBarrack2, domain.EventUpBarrack3, domain.EventUpBarrack4}
	fortTiers    = []domain.EventType{domain.EventUpFort2, domain.EventUpFort3}
)

type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

type Indices struct {
	Heroes        Set
	Bonuses       Set
	Auras         Set
	BaseUpgrades  Set
	TowerUpgrades Set
	Races         Set

	// building tier id -> UP_BARRACK2..4 / UP_FORT2..3
	Tiers map[string]domain.EventType
	// canonical ultimate key and every member -> canonical key
	Ultimates    map[string]string
	RaceByPicker map[string]string
	RaceByUnit   map[string]string
	BonusByItem  map[string]string
}

// raceOrder walks races in the declared order, then any remaining race data sorted by id.
func raceOrder(m *domain.GameDataMapping) []domain.RaceMapping {
	seen := make(map[string]bool, len(m.RaceData))
	out := make([]domain.RaceMapping, 0, len(m.RaceData))

	for _, id := range m.Races {
		if r, ok := m.RaceData[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, r)
		}
	}

	rest := make([]string, 0)
	for id := range m.RaceData {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, m.RaceData[id])
	}
	return out
}

func tail(ids []string, n int) []string {
	if len(ids) > n {
		return ids[len(ids)-n:]
	}
	return ids
}

// Build derives the indices of one mapping. It does not modify m.
func Build(m *domain.GameDataMapping) *Indices {
	idx := &Indices{
		Heroes:        Set{},
		Bonuses:       Set{},
		Auras:         Set{},
		BaseUpgrades:  Set{},
		TowerUpgrades: Set{},
		Races:         Set{},
		Tiers:         map[string]domain.EventType{},
		Ultimates:     map[string]string{},
		RaceByPicker:  map[string]string{},
		RaceByUnit:    map[string]string{},
		BonusByItem:   map[string]string{},
	}

	idx.Races.add(m.Races...)

	for _, r := range raceOrder(m) {
		idx.Heroes.add(r.Heroes...)
		idx.Bonuses.add(r.Bonuses...)
		idx.Auras.add(r.Auras...)
		idx.BaseUpgrades.add(r.BaseUpgrades.IDs()...)
		idx.BaseUpgrades.add(r.Magic...)
		idx.TowerUpgrades.add(r.TowerUpgrades...)

		for i, id := range tail(r.Buildings.Barrack, len(barrackTiers)) {
			if id != "" {
				idx.Tiers[id] = barrackTiers[i]
			}
		}
		for i, id := range tail(r.Buildings.Fort, len(fortTiers)) {
			if id != "" {
				idx.Tiers[id] = fortTiers[i]
			}
		}

		if r.BonusPicker != "" {
			idx.RaceByPicker[r.BonusPicker] = r.ID
		}

		owned := make([]string, 0, len(r.Heroes)+8+len(r.Buildings.Fort)+len(r.Buildings.Barrack))
		owned = append(owned, r.Heroes...)
		owned = append(owned, r.Units.IDs()...)
		owned = append(owned, r.Buildings.Tower)
		owned = append(owned, r.Buildings.Fort...)
		owned = append(owned, r.Buildings.Barrack...)
		for _, id := range owned {
			if id != "" {
				idx.RaceByUnit[id] = r.ID
			}
		}

		items := make([]string, 0, len(r.BonusByItemID))
		for item := range r.BonusByItemID {
			items = append(items, item)
		}
		sort.Strings(items)
		for _, item := range items {
			idx.BonusByItem[item] = r.BonusByItemID[item]
		}
	}

	keys := make([]string, 0, len(m.Ultimates))
	for key := range m.Ultimates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		idx.Ultimates[key] = key
		for _, member := range m.Ultimates[key] {
			if member != "" {
				idx.Ultimates[member] = key
			}
		}
	}

	return idx
}

// Cached returns the indices of dataKey from c, building them from m on a miss.
// Entries are dropped when the game data or that data key is invalidated.
func Cached(ctx context.Context, c *cache.Cache, dataKey string, m *domain.GameDataMapping) (*Indices, error) {
	return cache.Wrap(ctx, c, "lookup:"+dataKey, []string{TagGameData, dataKey}, func(context.Context) (*Indices, error) {
		return Build(m), nil
	})
}
