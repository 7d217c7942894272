package engine

import (
	"maps"
	"slices"
)

// Item is one entry from the catalog, carried into the draft universe.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Year int    `json:"year,omitempty"`
}

type Player struct {
	Username       string   `json:"username"`
	Ready          bool     `json:"ready"`
	Picks          []string `json:"picks,omitempty"`
	PicksSubmitted bool     `json:"picks_submitted"`
	Vote           string   `json:"vote,omitempty"`
	VoteSubmitted  bool     `json:"vote_submitted"`
}

type Config struct {
	Capacity        int  `json:"capacity"`
	DraftPicks      int  `json:"draft_picks"`
	AllowForceStart bool `json:"allow_force_start"`
}

// State is the full view of one room. Players stay in join order; the first
// entry is the oldest member and becomes host when the host leaves. Pool is
// the current ballot universe: the drafted union on round 1, the tie set on
// every round after that.
type State struct {
	Host     string         `json:"host"`
	Config   Config         `json:"config"`
	Players  []Player       `json:"players"`
	Phase    Phase          `json:"phase"`
	Universe []Item         `json:"universe,omitempty"`
	Pool     []string       `json:"pool,omitempty"`
	Round    int            `json:"round,omitempty"`
	Tally    map[string]int `json:"tally,omitempty"`
	Winner   string         `json:"winner,omitempty"`
	Flavor   string         `json:"flavor,omitempty"`
}

// NewState builds a lobby with the host as its only player.
func NewState(host string, cfg Config) State {
	return State{
		Host:    host,
		Config:  cfg,
		Players: []Player{{Username: host}},
		Phase:   PhaseLobby,
	}
}

// Clone deep-copies everything a command might touch, so broadcast snapshots
// of an older version never alias the live state.
func (s State) Clone() State {
	ns := s
	ns.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.Picks = slices.Clone(p.Picks)
		ns.Players[i] = p
	}
	ns.Universe = slices.Clone(s.Universe)
	ns.Pool = slices.Clone(s.Pool)
	ns.Tally = maps.Clone(s.Tally)
	return ns
}

// HasPlayer reports whether a username is currently in the roster.
func (s State) HasPlayer(username string) bool {
	return s.playerIndex(username) >= 0
}

func (s State) playerIndex(username string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool {
		return p.Username == username
	})
}

func (s State) hasItem(id string) bool {
	return slices.ContainsFunc(s.Universe, func(it Item) bool {
		return it.ID == id
	})
}

// ItemName resolves an item ID against the draft universe, falling back to
// the ID itself for items the universe no longer carries.
func (s State) ItemName(id string) string {
	for _, it := range s.Universe {
		if it.ID == id {
			return it.Name
		}
	}
	return id
}

func allReady(players []Player) bool {
	for _, p := range players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func allPicksSubmitted(players []Player) bool {
	for _, p := range players {
		if !p.PicksSubmitted {
			return false
		}
	}
	return true
}

func allVotesSubmitted(players []Player) bool {
	for _, p := range players {
		if !p.VoteSubmitted {
			return false
		}
	}
	return true
}

func resetDraft(players []Player) {
	for i := range players {
		players[i].Picks = nil
		players[i].PicksSubmitted = false
		players[i].Vote = ""
		players[i].VoteSubmitted = false
	}
}

func resetVotes(players []Player) {
	for i := range players {
		players[i].Vote = ""
		players[i].VoteSubmitted = false
	}
}

// buildPool returns the union of all submitted picks, ordered by the draft
// universe so the result is deterministic regardless of submission order.
func buildPool(s State) []string {
	picked := make(map[string]bool)
	for _, p := range s.Players {
		for _, id := range p.Picks {
			picked[id] = true
		}
	}
	pool := make([]string, 0, len(picked))
	for _, it := range s.Universe {
		if picked[it.ID] {
			pool = append(pool, it.ID)
		}
	}
	return pool
}
