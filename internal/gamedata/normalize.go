package gamedata

import (
	"fmt"
	"sort"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"

	"github.com/goccy/go-json"
)

const (
	keyRaces     = "races"
	keyUltimates = "ultimates"
	// fort tier lists keep the last three buildings
	fortTiers = 3
)

type document struct {
	Data json.RawMessage `json:"data"`
}

type idRef struct {
	ID string `json:"id"`
}

func ids(refs []idRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID)
	}
	return out
}

type rawBonus struct {
	ID       string  `json:"id"`
	Units    []idRef `json:"units"`
	Heroes   []idRef `json:"heroes"`
	Upgrades []idRef `json:"upgrades"`
	Spells   []idRef `json:"spells"`
}

type rawRace struct {
	ID           string  `json:"id"`
	Key          string  `json:"key"`
	Auras        []idRef `json:"auras"`
	Magic        []idRef `json:"magic"`
	T1Spell      idRef   `json:"t1spell"`
	T2Spell      idRef   `json:"t2spell"`
	BaseUpgrades struct {
		Melee idRef `json:"melee"`
		Armor idRef `json:"armor"`
		Range idRef `json:"range"`
		Wall  idRef `json:"wall"`
	} `json:"baseUpgrades"`
	Bonuses       []rawBonus `json:"bonuses"`
	TowerUpgrades []idRef    `json:"towerUpgrades"`
	Units         struct {
		Melee    idRef `json:"melee"`
		Range    idRef `json:"range"`
		Mage     idRef `json:"mage"`
		Siege    idRef `json:"siege"`
		Air      idRef `json:"air"`
		Catapult idRef `json:"catapult"`
	} `json:"units"`
	Heroes        []idRef `json:"heroes"`
	BonusPickerID string  `json:"bonusPickerId"`
	Buildings     struct {
		Tower   idRef   `json:"tower"`
		Fort    []idRef `json:"fort"`
		Barrack []idRef `json:"barrack"`
	} `json:"buildings"`
}

// normalize converts one repository document into the stored form of key.
func normalize(key string, raw []byte) ([]byte, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("document %s has no data", key)
	}

	var (
		out any
		err error
	)
	switch key {
	case keyRaces:
		out, err = normalizeRaces(doc.Data)
	case keyUltimates:
		out, err = normalizeUltimates(doc.Data)
	default:
		out, err = normalizeRace(doc.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", key, err)
	}

	return json.Marshal(out)
}

// normalizeRaces flattens the grouped race list into race ids.
func normalizeRaces(data json.RawMessage) ([]string, error) {
	var grouped map[string][]idRef
	if err := json.Unmarshal(data, &grouped); err != nil {
		var flat []idRef
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, err
		}
		return ids(flat), nil
	}

	groups := make([]string, 0, len(grouped))
	for g := range grouped {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	races := make([]string, 0)
	for _, g := range groups {
		races = append(races, ids(grouped[g])...)
	}
	return races, nil
}

func normalizeUltimates(data json.RawMessage) (map[string][]string, error) {
	var raw struct {
		Spells map[string][]idRef `json:"spells"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(raw.Spells))
	for key, members := range raw.Spells {
		out[key] = ids(members)
	}
	return out, nil
}

func normalizeRace(data json.RawMessage) (*domain.RaceMapping, error) {
	var r rawRace
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, fmt.Errorf("race has no id")
	}

	fort := ids(r.Buildings.Fort)
	if len(fort) > fortTiers {
		fort = fort[len(fort)-fortTiers:]
	}

	bonusByItem := make(map[string]string)
	for _, b := range r.Bonuses {
		for _, group := range [][]idRef{b.Units, b.Heroes, b.Upgrades, b.Spells} {
			for _, item := range group {
				bonusByItem[item.ID] = b.ID
			}
		}
	}

	bonuses := make([]string, 0, len(r.Bonuses))
	for _, b := range r.Bonuses {
		bonuses = append(bonuses, b.ID)
	}

	return &domain.RaceMapping{
		ID:      r.ID,
		Key:     r.Key,
		Auras:   ids(r.Auras),
		Magic:   ids(r.Magic),
		T1Spell: r.T1Spell.ID,
		T2Spell: r.T2Spell.ID,
		BaseUpgrades: domain.BaseUpgrades{
			Melee: r.BaseUpgrades.Melee.ID,
			Armor: r.BaseUpgrades.Armor.ID,
			Range: r.BaseUpgrades.Range.ID,
			Wall:  r.BaseUpgrades.Wall.ID,
		},
		TowerUpgrades: ids(r.TowerUpgrades),
		Heroes:        ids(r.Heroes),
		Bonuses:       bonuses,
		Buildings: domain.Buildings{
			Tower:   r.Buildings.Tower.ID,
			Fort:    fort,
			Barrack: ids(r.Buildings.Barrack),
		},
		Units: domain.Units{
			Melee:    r.Units.Melee.ID,
			Range:    r.Units.Range.ID,
			Mage:     r.Units.Mage.ID,
			Siege:    r.Units.Siege.ID,
			Air:      r.Units.Air.ID,
			Catapult: r.Units.Catapult.ID,
		},
		BonusPicker:   r.BonusPickerID,
		BonusByItemID: bonusByItem,
	}, nil
}

// assemble builds a mapping from the stored documents of one data key.
func assemble(rows map[string][]byte) (*domain.GameDataMapping, error) {
	m := &domain.GameDataMapping{
		RaceData:  make(map[string]domain.RaceMapping),
		Races:     []string{},
		Ultimates: make(map[string][]string),
	}

	for key, data := range rows {
		switch key {
		case keyRaces:
			if err := json.Unmarshal(data, &m.Races); err != nil {
				return nil, fmt.Errorf("failed to decode races: %w", err)
			}
		case keyUltimates:
			if err := json.Unmarshal(data, &m.Ultimates); err != nil {
				return nil, fmt.Errorf("failed to decode ultimates: %w", err)
			}
		default:
			var race domain.RaceMapping
			if err := json.Unmarshal(data, &race); err != nil {
				return nil, fmt.Errorf("failed to decode race %s: %w", key, err)
			}
			m.RaceData[race.ID] = race
		}
	}

	return m, nil
}
