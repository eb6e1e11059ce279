package domain

// GameDataMapping is the normalized game data of one data key (map type + version).
type GameDataMapping struct {
	RaceData  map[string]RaceMapping `json:"raceData"`
	Races     []string               `json:"races"`
	Ultimates map[string][]string    `json:"ultimates"`
}

type RaceMapping struct {
	ID            string            `json:"id"`
	Key           string            `json:"key"`
	Auras         []string          `json:"auras"`
	Magic         []string          `json:"magic"`
	BaseUpgrades  BaseUpgrades      `json:"baseUpgrades"`
	TowerUpgrades []string          `json:"towerUpgrades"`
	Heroes        []string          `json:"heroes"`
	Bonuses       []string          `json:"bonuses"`
	Buildings     Buildings         `json:"buildings"`
	Units         Units             `json:"units"`
	T1Spell       string            `json:"t1spell"`
	T2Spell       string            `json:"t2spell"`
	BonusPicker   string            `json:"bonusPicker"`
	BonusByItemID map[string]string `json:"bonusByItemId"` // item id -> bonus id
}

type BaseUpgrades struct {
	Melee string `json:"melee"`
	Armor string `json:"armor"`
	Range string `json:"range"`
	Wall  string `json:"wall"`
}

func (b BaseUpgrades) IDs() []string {
	return []string{b.Melee, b.Armor, b.Range, b.Wall}
}

type Buildings struct {
	Tower   string   `json:"tower"`
	Fort    []string `json:"fort"`
	Barrack []string `json:"barrack"`
}

type Units struct {
	Melee    string `json:"melee"`
	Range    string `json:"range"`
	Mage     string `json:"mage"`
	Siege    string `json:"siege"`
	Air      string `json:"air"`
	Catapult string `json:"catapult"`
}

func (u Units) IDs() []string {
	return []string{u.Melee, u.Range, u.Mage, u.Siege, u.Air, u.Catapult}
}

// GrantsBonus reports whether the race can legally pick bonusID.
func (r RaceMapping) GrantsBonus(bonusID string) bool {
	for _, b := range r.Bonuses {
		if b == bonusID {
			return true
		}
	}
	return false
}

func (r RaceMapping) GrantsAura(auraID string) bool {
	for _, a := range r.Auras {
		if a == auraID {
			return true
		}
	}
	return false
}
