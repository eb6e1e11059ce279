// Package interpreter turns a decoded replay block stream into per-player
// semantic events using the lookup indices of the replay's map version.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/lookup"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/replay"

	"github.com/rs/zerolog"
)

// ErrParsing marks replays that decode fine but do not describe a usable match.
var ErrParsing = errors.New("replay parsing error")

type Family int

const (
	FamilyGeneric Family = iota
	// FamilyOG maps expose race ids as bans.
	FamilyOG
	// FamilyOZ maps expose race ids as picks and report ultimate, aura and
	// bonus through synced cache keys.
	FamilyOZ
)

func ParseFamily(mapType string) Family {
	switch strings.ToLower(strings.TrimSpace(mapType)) {
	case "og":
		return FamilyOG
	case "oz":
		return FamilyOZ
	default:
		return FamilyGeneric
	}
}

func (f Family) String() string {
	switch f {
	case FamilyOG:
		return "og"
	case FamilyOZ:
		return "oz"
	default:
		return "generic"
	}
}

type event struct {
	domain.PlayerEvent
	cancelled bool
}

type playerState struct {
	id            int
	name          string
	race          string
	raceFinalized bool
	bonus         string
	aura          string
	ultimate      string
	events        []event
	time          int64
	left          bool

	// event id -> time of the last accepted occurrence
	lastEventTime map[string]int64
}

type PlayerResult struct {
	ID            int
	Name          string
	Race          string
	RaceFinalized bool
	Bonus         string
	Aura          string
	Ultimate      string
	Place         int
	Time          int64 // ms alive
	Left          bool
	Events        []domain.PlayerEvent
}

func (p PlayerResult) HasEvent(t domain.EventType) bool {
	for _, e := range p.Events {
		if e.EventType == t {
			return true
		}
	}
	return false
}

type Result struct {
	Players  []PlayerResult // ordered by place
	Duration int64          // ms
}

// Interpreter holds the state of one replay. It is not safe for concurrent use
// and must not be reused across replays.
type Interpreter struct {
	family Family
	data   *domain.GameDataMapping
	idx    *lookup.Indices
	logger zerolog.Logger

	duration int64
	roster   []int
	players  map[int]*playerState
}

func New(family Family, data *domain.GameDataMapping, idx *lookup.Indices, logger zerolog.Logger) *Interpreter {
	return &Interpreter{
		family:  family,
		data:    data,
		idx:     idx,
		logger:  logger,
		players: make(map[int]*playerState),
	}
}

// Run consumes the whole block stream of r and closes it.
func (in *Interpreter) Run(ctx context.Context, r *replay.Replay) (*Result, error) {
	defer r.Blocks.Close()

	for _, pr := range r.Metadata.Players {
		if _, ok := in.players[pr.ID]; ok {
			continue
		}
		in.roster = append(in.roster, pr.ID)
		in.players[pr.ID] = &playerState{
			id:            pr.ID,
			name:          pr.Name,
			lastEventTime: make(map[string]int64),
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, err := r.Blocks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read replay blocks: %w", err)
		}

		in.processBlock(block)
	}

	return in.result()
}

func (in *Interpreter) processBlock(b replay.Block) {
	switch {
	case b.IsTimeslot():
		in.duration += b.TimeIncrement
		for _, cmd := range b.Commands {
			for _, a := range cmd.Actions {
				in.processAction(a, cmd.PlayerID)
			}
		}

	case b.IsLeave():
		p, ok := in.players[b.PlayerID]
		if !ok || p.left {
			return
		}
		if p.race == "" {
			delete(in.players, b.PlayerID)
			return
		}
		p.left = true
		p.time = in.duration
	}
}

func (in *Interpreter) processAction(a replay.Action, playerID int) {
	p, ok := in.players[playerID]
	if !ok || p.left {
		return
	}
	p.time = in.duration

	var items []string
	switch a.ID {
	case replay.ActionUnitOrder, replay.ActionUnitOrderPoint:
		items = replay.IDs(a.OrderID)
	case replay.ActionUnitOrderTarget, replay.ActionUnitOrderTwoItems:
		items = replay.IDs(a.OrderID, a.Object)
	case replay.ActionSelectSubgroup:
		in.processSelection(p, a.ItemID)
	case replay.ActionSyncStoreInteger:
		if in.family == FamilyOZ {
			in.processSyncedKey(p, a.CacheKey)
		}
	case replay.ActionCancelQueue, replay.ActionCancelBuild:
		in.processCancel(p, a.ItemID)
	}

	for _, id := range items {
		in.processItem(p, id)
	}
}

func (in *Interpreter) processSelection(p *playerState, ref []int64) {
	id, ok := replay.GameID(ref)
	if !ok {
		return
	}

	if !p.raceFinalized {
		if raceID, ok := in.idx.RaceByPicker[id]; ok {
			in.pickRace(p, raceID)
		}
	}
	// selecting the bonus building is the only bonus signal on some maps
	if in.idx.Bonuses.Has(id) && in.raceGrantsBonus(p, id) {
		p.bonus = id
	}
}

func (in *Interpreter) processSyncedKey(p *playerState, key string) {
	key = strings.TrimSpace(key)
	if len(key) < 4 {
		return
	}
	key = key[len(key)-4:]

	race, ok := in.data.RaceData[p.race]
	if !ok {
		return
	}

	if canonical, ok := in.idx.Ultimates[key]; ok {
		in.useUltimate(p, key, canonical)
	}
	if in.idx.Auras.Has(key) && race.GrantsAura(key) {
		p.aura = key
	}
	if in.idx.Bonuses.Has(key) && race.GrantsBonus(key) {
		p.bonus = key
	}
}

func (in *Interpreter) processCancel(p *playerState, ref []int64) {
	id, ok := replay.GameID(ref)
	if !ok {
		return
	}

	target := -1
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].EventID == id && !p.events[i].cancelled {
			target = i
			break
		}
	}
	if target < 0 {
		return
	}
	p.events[target].cancelled = true

	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].EventID == id && !p.events[i].cancelled {
			p.lastEventTime[id] = p.events[i].Time
			return
		}
	}
	delete(p.lastEventTime, id)
}

func (in *Interpreter) processItem(p *playerState, id string) {
	switch in.family {
	case FamilyOG:
		if !p.raceFinalized && in.idx.Races.Has(id) {
			in.insertEvent(p, domain.EventBanRace, id, in.duration)
		}
	case FamilyOZ:
		if !p.raceFinalized && in.idx.Races.Has(id) {
			in.insertEvent(p, domain.EventInitialRace, id, 0)
			p.race = id
			p.raceFinalized = true
		}
	case FamilyGeneric:
	}

	if !p.raceFinalized {
		if raceID, ok := in.idx.RaceByUnit[id]; ok {
			in.raceByUnit(p, raceID)
		}
	}

	if p.bonus == "" {
		if bonus, ok := in.idx.BonusByItem[id]; ok && in.raceGrantsBonus(p, bonus) {
			p.bonus = bonus
		}
	}

	if in.idx.Heroes.Has(id) {
		in.insertEvent(p, domain.EventHeroBuy, id, in.duration)
	}
	if tier, ok := in.idx.Tiers[id]; ok && isBarrackTier(tier) {
		in.insertEvent(p, tier, id, in.duration)
	}
	if in.idx.BaseUpgrades.Has(id) {
		in.insertEvent(p, domain.EventBaseUpgrade, id, in.duration)
	}
	if in.idx.TowerUpgrades.Has(id) {
		in.insertEvent(p, domain.EventTowerUpgrade, id, in.duration)
	}
	if tier, ok := in.idx.Tiers[id]; ok && !isBarrackTier(tier) {
		in.insertEvent(p, tier, id, in.duration)
	}
	if in.idx.Auras.Has(id) {
		p.aura = id
	}
	if canonical, ok := in.idx.Ultimates[id]; ok {
		in.useUltimate(p, id, canonical)
	}
}

func isBarrackTier(t domain.EventType) bool {
	switch t {
	case domain.EventUpBarrack2, domain.EventUpBarrack3, domain.EventUpBarrack4:
		return true
	}
	return false
}

// pickRace handles an explicit race choice through a bonus picker building.
func (in *Interpreter) pickRace(p *playerState, raceID string) {
	prev := p.race
	p.race = raceID

	switch {
	case prev == "":
		in.insertEvent(p, domain.EventInitialRace, raceID, 0)
	case prev != raceID:
		p.raceFinalized = true
		in.insertEvent(p, domain.EventRepickRace, prev, in.duration)
	}
}

// raceByUnit infers the race from a race-owned unit, hero or building. Buying
// into another race is a repick; staying with one race long enough commits it.
func (in *Interpreter) raceByUnit(p *playerState, raceID string) {
	switch {
	case p.race == "":
		p.race = raceID
		in.insertEvent(p, domain.EventInitialRace, raceID, 0)
	case p.race == raceID:
		if in.duration > constants.RaceFinalizeAfter {
			p.raceFinalized = true
		}
	default:
		in.insertEvent(p, domain.EventRepickRace, p.race, in.duration)
		p.race = raceID
		p.raceFinalized = true
	}
}

func (in *Interpreter) useUltimate(p *playerState, id, canonical string) {
	p.ultimate = canonical
	if id != canonical {
		in.insertEvent(p, domain.EventUseUltimate, canonical, in.duration)
	}
}

func (in *Interpreter) raceGrantsBonus(p *playerState, bonus string) bool {
	if p.race == "" {
		return false
	}
	race, ok := in.data.RaceData[p.race]
	return ok && race.GrantsBonus(bonus)
}

func eventLag(t domain.EventType) int64 {
	switch t {
	case domain.EventBaseUpgrade:
		return constants.BaseUpgradeEventLag
	case domain.EventTowerUpgrade:
		return constants.TowerUpgradeEventLag
	case domain.EventUpFort2, domain.EventUpFort3:
		return constants.InfiniteEventLag
	default:
		return constants.DefaultEventLag
	}
}

// insertEvent records the event unless the same id was accepted within its lag window.
// Only earlier occurrences suppress: an event backdated before the last accepted one
// (INITIAL_RACE at 0 after a ban) always goes through and leaves the clock alone.
func (in *Interpreter) insertEvent(p *playerState, t domain.EventType, id string, at int64) {
	prev, ok := p.lastEventTime[id]
	if ok && prev <= at && at-eventLag(t) < prev {
		return
	}

	if !ok || at > prev {
		p.lastEventTime[id] = at
	}
	p.events = append(p.events, event{
		PlayerEvent: domain.PlayerEvent{EventType: t, EventID: id, Time: at},
	})
}

func (in *Interpreter) result() (*Result, error) {
	players := make([]PlayerResult, 0, len(in.players))
	var duration int64

	for _, id := range in.roster {
		p, ok := in.players[id]
		if !ok {
			continue
		}
		if p.time > duration {
			duration = p.time
		}
		if p.race == "" {
			continue
		}

		events := make([]domain.PlayerEvent, 0, len(p.events))
		for _, e := range p.events {
			if !e.cancelled {
				events = append(events, e.PlayerEvent)
			}
		}
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Time < events[j].Time
		})

		players = append(players, PlayerResult{
			ID:            p.id,
			Name:          p.name,
			Race:          p.race,
			RaceFinalized: p.raceFinalized,
			Bonus:         p.bonus,
			Aura:          p.aura,
			Ultimate:      p.ultimate,
			Time:          p.time,
			Left:          p.left,
			Events:        events,
		})
	}

	if len(players) < 2 {
		return nil, fmt.Errorf("%w: not enough players: %d", ErrParsing, len(players))
	}

	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Time > players[j].Time
	})
	for i := range players {
		players[i].Place = i + 1
	}

	in.logger.Debug().
		Str("family", in.family.String()).
		Int("players", len(players)).
		Int64("duration_ms", duration).
		Msg("replay interpreted")

	return &Result{Players: players, Duration: duration}, nil
}
