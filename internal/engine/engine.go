package engine

import (
	"errors"
	"slices"
)

var ErrRoomFull = errors.New("room is full")
var ErrUsernameTaken = errors.New("username already taken in this room")
var ErrUnknownPlayer = errors.New("player is not in this room")
var ErrNotHost = errors.New("only the host may do that")
var ErrPlayersNotReady = errors.New("not all players are ready")
var ErrInvalidPhaseAction = errors.New("action is not valid in the current phase")
var ErrPhaseClosed = errors.New("submissions for this round are closed")
var ErrUnknownItem = errors.New("item is not available in this round")
var ErrPickLimit = errors.New("draft pick limit reached")
var ErrNoSelection = errors.New("nothing selected")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvariant = errors.New("room invariant violated")

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseDraft    Phase = "draft"
	PhaseVoting   Phase = "voting"
	PhaseAnnounce Phase = "announce"
	PhaseResults  Phase = "results"
)

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdLeave          CommandType = "Leave"
	CmdSetReady       CommandType = "SetReady"
	CmdStartGame      CommandType = "StartGame"
	CmdDraftSelect    CommandType = "DraftSelect"
	CmdDraftSubmit    CommandType = "DraftSubmit"
	CmdVote           CommandType = "Vote"
	CmdVoteSubmit     CommandType = "VoteSubmit"
	CmdRematch        CommandType = "Rematch"
	CmdSetFlavor      CommandType = "SetFlavor"
	CmdFinishAnnounce CommandType = "FinishAnnounce"
)

type Command struct {
	Type     CommandType
	Username string
	Ready    bool
	ItemID   string
	Selected bool
	Items    []Item // StartGame only: the draftable universe
	Flavor   string // SetFlavor only
}

type EventType string

const (
	EvtPlayerJoined    EventType = "playerJoined"
	EvtPlayerLeft      EventType = "playerLeft"
	EvtHostChanged     EventType = "hostChanged"
	EvtReadyChanged    EventType = "readyChanged"
	EvtPhaseChanged    EventType = "phaseChanged"
	EvtTieBreak        EventType = "tieBreak"
	EvtWinnerAnnounced EventType = "winnerAnnounced"
	EvtRoomClosed      EventType = "roomClosed"
)

type Event struct {
	Type     EventType `json:"type"`
	Username string    `json:"username,omitempty"`
	Ready    bool      `json:"ready,omitempty"`
	Phase    Phase     `json:"phase,omitempty"`
	Pool     []string  `json:"pool,omitempty"`
	Round    int       `json:"round,omitempty"`
	Winner   string    `json:"winner,omitempty"`
}

// Apply runs one command against a room's state. It never mutates s; on
// success it returns the events to fan out and the replacement state. Errors
// leave the state untouched. ErrInvariant means the room itself is broken and
// must be torn down; every other error is a plain rejection of the command.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {

	case CmdJoin:
		if s.Phase != PhaseLobby {
			return nil, s, ErrInvalidPhaseAction
		}
		if s.playerIndex(cmd.Username) >= 0 {
			return nil, s, ErrUsernameTaken
		}
		if len(s.Players) >= s.Config.Capacity {
			return nil, s, ErrRoomFull
		}
		ns := s.Clone()
		ns.Players = append(ns.Players, Player{Username: cmd.Username})
		return []Event{{Type: EvtPlayerJoined, Username: cmd.Username}}, ns, nil

	case CmdLeave:
		i := s.playerIndex(cmd.Username)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		ns := s.Clone()
		ns.Players = slices.Delete(ns.Players, i, i+1)
		events := []Event{{Type: EvtPlayerLeft, Username: cmd.Username}}
		if ns.Host == cmd.Username && len(ns.Players) > 0 {
			// oldest remaining player inherits the room
			ns.Host = ns.Players[0].Username
			events = append(events, Event{Type: EvtHostChanged, Username: ns.Host})
		}
		// The departed player's outstanding submissions are withdrawn, which
		// may itself complete the current barrier.
		if len(ns.Players) > 0 {
			switch {
			case ns.Phase == PhaseDraft && allPicksSubmitted(ns.Players):
				more, ns2, err := closeDraft(ns)
				if err != nil {
					return nil, s, err
				}
				return append(events, more...), ns2, nil
			case ns.Phase == PhaseVoting && allVotesSubmitted(ns.Players):
				more, ns2, err := closeVoting(ns)
				if err != nil {
					return nil, s, err
				}
				return append(events, more...), ns2, nil
			}
		}
		return events, ns, nil

	case CmdSetReady:
		if s.Phase != PhaseLobby {
			return nil, s, ErrInvalidPhaseAction
		}
		i := s.playerIndex(cmd.Username)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		ns := s.Clone()
		ns.Players[i].Ready = cmd.Ready
		return []Event{{Type: EvtReadyChanged, Username: cmd.Username, Ready: cmd.Ready}}, ns, nil

	case CmdStartGame:
		if s.Phase != PhaseLobby {
			return nil, s, ErrInvalidPhaseAction
		}
		if cmd.Username != s.Host {
			return nil, s, ErrNotHost
		}
		if !s.Config.AllowForceStart && !allReady(s.Players) {
			return nil, s, ErrPlayersNotReady
		}
		ns := s.Clone()
		ns.Phase = PhaseDraft
		ns.Universe = slices.Clone(cmd.Items)
		ns.Pool = nil
		ns.Round = 0
		ns.Tally = nil
		ns.Winner = ""
		ns.Flavor = ""
		resetDraft(ns.Players)
		return []Event{{Type: EvtPhaseChanged, Phase: PhaseDraft}}, ns, nil

	case CmdDraftSelect:
		if s.Phase != PhaseDraft {
			return nil, s, ErrInvalidPhaseAction
		}
		i := s.playerIndex(cmd.Username)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if s.Players[i].PicksSubmitted {
			return nil, s, ErrPhaseClosed
		}
		ns := s.Clone()
		p := &ns.Players[i]
		if cmd.Selected {
			if !ns.hasItem(cmd.ItemID) {
				return nil, s, ErrUnknownItem
			}
			if slices.Contains(p.Picks, cmd.ItemID) {
				return nil, ns, nil
			}
			if len(p.Picks) >= ns.Config.DraftPicks {
				return nil, s, ErrPickLimit
			}
			p.Picks = append(p.Picks, cmd.ItemID)
		} else {
			if j := slices.Index(p.Picks, cmd.ItemID); j >= 0 {
				p.Picks = slices.Delete(p.Picks, j, j+1)
			}
		}
		return nil, ns, nil

	case CmdDraftSubmit:
		switch s.Phase {
		case PhaseDraft:
		case PhaseVoting, PhaseAnnounce, PhaseResults:
			return nil, s, ErrPhaseClosed
		default:
			return nil, s, ErrInvalidPhaseAction
		}
		i := s.playerIndex(cmd.Username)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if s.Players[i].PicksSubmitted {
			return nil, s, ErrPhaseClosed
		}
		if len(s.Players[i].Picks) == 0 {
			return nil, s, ErrNoSelection
		}
		ns := s.Clone()
		ns.Players[i].PicksSubmitted = true
		if allPicksSubmitted(ns.Players) {
			return closeDraft(ns)
		}
		return nil, ns, nil

	case CmdVote:
		switch s.Phase {
		case PhaseVoting:
		case PhaseAnnounce, PhaseResults:
			return nil, s, ErrPhaseClosed
		default:
			return nil, s, ErrInvalidPhaseAction
		}
		i := s.playerIndex(cmd.Username)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if s.Players[i].VoteSubmitted {
			return nil, s, ErrPhaseClosed
		}
		if cmd.ItemID != "" && !slices.Contains(s.Pool, cmd.ItemID) {
			return nil, s, ErrUnknownItem
		}
		ns := s.Clone()
		ns.Players[i].Vote = cmd.ItemID
		return nil, ns, nil

	case CmdVoteSubmit:
		switch s.Phase {
		case PhaseVoting:
		case PhaseAnnounce, PhaseResults:
			return nil, s, ErrPhaseClosed
		default:
			return nil, s, ErrInvalidPhaseAction
		}
		i := s.playerIndex(cmd.Username)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if s.Players[i].VoteSubmitted {
			return nil, s, ErrPhaseClosed
		}
		// An empty vote is an abstention; submitting it still counts toward
		// the barrier.
		ns := s.Clone()
		ns.Players[i].VoteSubmitted = true
		if allVotesSubmitted(ns.Players) {
			return closeVoting(ns)
		}
		return nil, ns, nil

	case CmdSetFlavor:
		if s.Phase != PhaseAnnounce {
			return nil, s, ErrInvalidPhaseAction
		}
		ns := s.Clone()
		ns.Flavor = cmd.Flavor
		return nil, ns, nil

	case CmdFinishAnnounce:
		if s.Phase != PhaseAnnounce {
			return nil, s, ErrInvalidPhaseAction
		}
		ns := s.Clone()
		ns.Phase = PhaseResults
		return []Event{{Type: EvtPhaseChanged, Phase: PhaseResults}}, ns, nil

	case CmdRematch:
		if s.Phase != PhaseResults {
			return nil, s, ErrInvalidPhaseAction
		}
		if cmd.Username != s.Host {
			return nil, s, ErrNotHost
		}
		ns := s.Clone()
		ns.Phase = PhaseLobby
		ns.Universe = nil
		ns.Pool = nil
		ns.Round = 0
		ns.Tally = nil
		ns.Winner = ""
		ns.Flavor = ""
		for i := range ns.Players {
			ns.Players[i].Ready = false
		}
		resetDraft(ns.Players)
		return []Event{{Type: EvtPhaseChanged, Phase: PhaseLobby}}, ns, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// closeDraft fires the draft barrier: the union of everyone's picks becomes
// the ballot universe. A pool of one skips voting entirely. ns must already
// be a private copy.
func closeDraft(ns State) ([]Event, State, error) {
	pool := buildPool(ns)
	if len(pool) == 0 {
		return nil, ns, ErrInvariant
	}
	ns.Round = 1
	ns.Tally = nil
	resetVotes(ns.Players)
	if len(pool) == 1 {
		return announceWinner(ns, pool[0], map[string]int{pool[0]: 0})
	}
	ns.Pool = pool
	ns.Phase = PhaseVoting
	return []Event{{Type: EvtPhaseChanged, Phase: PhaseVoting, Pool: pool, Round: ns.Round}}, ns, nil
}

// closeVoting fires the vote barrier: either a strict winner emerges, or the
// tied leaders become the pool for a fresh voting round.
func closeVoting(ns State) ([]Event, State, error) {
	votes := make(map[string]string, len(ns.Players))
	for _, p := range ns.Players {
		if p.Vote != "" {
			votes[p.Username] = p.Vote
		}
	}
	winner, tie, err := TallyVotes(votes, ns.Pool)
	if err != nil {
		return nil, ns, err
	}
	if winner != "" {
		return announceWinner(ns, winner, CountVotes(votes, ns.Pool))
	}
	ns.Pool = tie
	ns.Round++
	resetVotes(ns.Players)
	return []Event{
		{Type: EvtTieBreak, Pool: tie, Round: ns.Round},
		{Type: EvtPhaseChanged, Phase: PhaseVoting, Pool: tie, Round: ns.Round},
	}, ns, nil
}

func announceWinner(ns State, winner string, tally map[string]int) ([]Event, State, error) {
	ns.Winner = winner
	ns.Tally = tally
	ns.Pool = nil
	ns.Phase = PhaseAnnounce
	return []Event{
		{Type: EvtWinnerAnnounced, Winner: winner},
		{Type: EvtPhaseChanged, Phase: PhaseAnnounce},
	}, ns, nil
}
