package room

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/filmdraft/filmdraft-backend/internal/engine"
)

type Msg interface{ isRoomMsg() }

// Attach registers a connection's outbox. The current snapshot is delivered
// immediately, which doubles as the resync path for consumers that were
// dropped for falling behind. Username, when set, marks this connection as
// carrying that player.
type Attach struct {
	ClientID string
	Username string
	Outbox   chan Snapshot
}

func (Attach) isRoomMsg() {}

// Detach removes a connection. If Username is set and no other live
// connection carries it, the player leaves the game as well; their
// outstanding submissions are withdrawn. A reconnect therefore survives the
// stale connection's teardown.
type Detach struct {
	ClientID string
	Username string
}

func (Detach) isRoomMsg() {}

// FromClient carries a player command. The result of applying it is sent on
// Reply, which must be buffered; rejections go only to the acting client
// while everyone else just sees the next snapshot.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// internal timer/fetch completions, guarded by gen so a stale announce round
// can never advance a newer one
type announceElapsed struct{ gen int }

func (announceElapsed) isRoomMsg() {}

type flavorFetched struct {
	gen  int
	text string
}

func (flavorFetched) isRoomMsg() {}

type Snapshot struct {
	Version int
	Events  []engine.Event
	State   engine.State
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

// Info is the join-browser row, readable without going through the inbox.
type Info struct {
	Name     string       `json:"name"`
	Players  int          `json:"players"`
	Capacity int          `json:"capacity"`
	Phase    engine.Phase `json:"phase"`
}

// FlavorProvider decorates the winner announcement. Implementations are
// slow and best-effort; the room never waits on one past the announce dwell.
type FlavorProvider interface {
	Flavor(ctx context.Context, winner string) (string, error)
}

// Persister is the minimal durable-store surface the room needs. All calls
// happen on the room's own goroutine, so writes for one room are naturally
// serialized.
type Persister interface {
	SaveRoom(ctx context.Context, name string, s engine.State) error
	SaveResult(ctx context.Context, name string, s engine.State) error
	DeleteRoom(ctx context.Context, name string) error
}

type Deps struct {
	Logger          *zap.Logger
	Announcer       FlavorProvider // nil: fallback text only
	Store           Persister      // nil: in-memory only
	AnnounceDwell   time.Duration
	AnnounceTimeout time.Duration
	OnClose         func(name string) // room removed itself (empty or faulted)
	OnUpdate        func()            // membership/phase changed, refresh browser feed
}

type Room struct {
	Name string

	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot
	owners  map[string]string // clientID -> username
	ctx     context.Context
	cancel  context.CancelFunc
	deps    Deps

	announceGen int
	capacity    int

	// readable without messaging, for the join browser
	playerCount atomic.Int64
	phase       atomic.Value // engine.Phase
}

func New(parent context.Context, name string, initial engine.State, deps Deps) *Room {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AnnounceDwell <= 0 {
		deps.AnnounceDwell = 12 * time.Second
	}
	if deps.AnnounceTimeout <= 0 {
		deps.AnnounceTimeout = 8 * time.Second
	}

	r := &Room{
		Name:     name,
		inbox:    make(chan Msg, 64),
		state:    initial,
		clients:  make(map[string]chan Snapshot),
		owners:   make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
		deps:     deps,
		capacity: initial.Config.Capacity,
	}
	r.playerCount.Store(int64(len(initial.Players)))
	r.phase.Store(initial.Phase)

	go r.loop()

	// A restored room can come back mid-announce; rearm the dwell so it
	// still reaches results.
	if initial.Phase == engine.PhaseAnnounce {
		r.scheduleAnnounce()
	}
	return r
}

// Post delivers a message unless the room has shut down.
func (r *Room) Post(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) Info() Info {
	phase, _ := r.phase.Load().(engine.Phase)
	return Info{
		Name:     r.Name,
		Players:  int(r.playerCount.Load()),
		Capacity: r.capacity,
		Phase:    phase,
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Attach:
				r.clients[msg.ClientID] = msg.Outbox
				if msg.Username != "" {
					r.owners[msg.ClientID] = msg.Username
				}
				msg.Outbox <- Snapshot{Version: r.version, State: r.state}

			case Detach:
				if out, ok := r.clients[msg.ClientID]; ok {
					close(out)
					delete(r.clients, msg.ClientID)
				}
				delete(r.owners, msg.ClientID)
				if msg.Username != "" && !r.usernameAttached(msg.Username) && r.state.HasPlayer(msg.Username) {
					r.apply(engine.Command{Type: engine.CmdLeave, Username: msg.Username}, nil)
				}
				if len(r.state.Players) == 0 {
					r.deps.Logger.Info("room empty, closing", zap.String("room", r.Name))
					r.retire()
					return
				}

			case FromClient:
				r.apply(msg.Cmd, msg.Reply)
				if len(r.state.Players) == 0 {
					r.deps.Logger.Info("room empty, closing", zap.String("room", r.Name))
					r.retire()
					return
				}
				if r.faulted() {
					return
				}

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state,
				}

			case announceElapsed:
				if msg.gen == r.announceGen && r.state.Phase == engine.PhaseAnnounce {
					r.apply(engine.Command{Type: engine.CmdFinishAnnounce}, nil)
				}

			case flavorFetched:
				if msg.gen == r.announceGen && r.state.Phase == engine.PhaseAnnounce {
					r.apply(engine.Command{Type: engine.CmdSetFlavor, Flavor: msg.text}, nil)
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// apply runs one command under the room's serialization boundary, then
// broadcasts and reacts to whatever it produced.
func (r *Room) apply(cmd engine.Command, reply chan error) {
	events, ns, err := engine.Apply(r.state, cmd)
	if reply != nil {
		select {
		case reply <- err:
		default:
		}
	}
	if err != nil {
		if errors.Is(err, engine.ErrInvariant) {
			r.fail(cmd, err)
		}
		return
	}

	r.state = ns
	r.version++
	r.playerCount.Store(int64(len(ns.Players)))
	r.phase.Store(ns.Phase)
	// every accepted mutation is persisted, not just the event-producing
	// ones: a restart must bring back mid-round selections and votes too
	r.persistState()
	r.broadcast(Snapshot{Version: r.version, Events: events, State: r.state})
	r.react(events)
}

// react handles the side effects that hang off engine events: the announce
// dwell and flavor fetch, result persistence, and the join-browser feed.
func (r *Room) react(events []engine.Event) {
	for _, ev := range events {
		if ev.Type != engine.EvtPhaseChanged {
			continue
		}
		switch ev.Phase {
		case engine.PhaseAnnounce:
			r.scheduleAnnounce()
		case engine.PhaseResults:
			r.persistResult()
		}
	}
	if len(events) > 0 && r.deps.OnUpdate != nil {
		r.deps.OnUpdate()
	}
}

func (r *Room) scheduleAnnounce() {
	r.announceGen++
	gen := r.announceGen
	winner := r.state.ItemName(r.state.Winner)

	time.AfterFunc(r.deps.AnnounceDwell, func() {
		r.Post(announceElapsed{gen: gen})
	})

	go func() {
		r.Post(flavorFetched{gen: gen, text: r.fetchFlavor(winner)})
	}()
}

// fetchFlavor asks the AI provider for announcement text, bounded by its own
// timeout. Any failure degrades to the canned line; the dwell timer is what
// moves the room forward either way.
func (r *Room) fetchFlavor(winner string) string {
	fallback := "And the winner is... " + winner + "!"
	if r.deps.Announcer == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.deps.AnnounceTimeout)
	defer cancel()

	text, err := r.deps.Announcer.Flavor(ctx, winner)
	if err != nil {
		r.deps.Logger.Warn("flavor text fetch failed, using fallback",
			zap.String("room", r.Name), zap.Error(err))
		return fallback
	}
	return text
}

func (r *Room) persistState() {
	if r.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.deps.Store.SaveRoom(ctx, r.Name, r.state); err != nil {
		r.deps.Logger.Error("failed to persist room state",
			zap.String("room", r.Name), zap.Error(err))
	}
}

func (r *Room) persistResult() {
	if r.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.deps.Store.SaveResult(ctx, r.Name, r.state); err != nil {
		r.deps.Logger.Error("failed to persist game result",
			zap.String("room", r.Name), zap.Error(err))
	}
}

func (r *Room) broadcast(snap Snapshot) {
	for id, out := range r.clients {
		select {
		case out <- snap:
		default:
			// Slow consumer: drop it. The gateway re-attaches with a fresh
			// outbox and gets a full snapshot instead of a replay.
			close(out)
			delete(r.clients, id)
		}
	}
}

// fail tears the room down after an invariant violation. Participants get a
// final roomClosed event so they know to resync or rejoin; other rooms are
// unaffected.
func (r *Room) fail(cmd engine.Command, err error) {
	r.deps.Logger.Error("room invariant violated, terminating room",
		zap.String("room", r.Name),
		zap.String("command", string(cmd.Type)),
		zap.Error(err))
	r.version++
	r.broadcast(Snapshot{
		Version: r.version,
		Events:  []engine.Event{{Type: engine.EvtRoomClosed}},
		State:   r.state,
	})
	r.retire()
}

// usernameAttached reports whether any live connection still carries the
// username, so a stale disconnect cannot withdraw a reconnected player.
func (r *Room) usernameAttached(username string) bool {
	for _, u := range r.owners {
		if u == username {
			return true
		}
	}
	return false
}

func (r *Room) faulted() bool {
	select {
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// retire removes the room from the registry and the durable store, then
// shuts down.
func (r *Room) retire() {
	if r.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := r.deps.Store.DeleteRoom(ctx, r.Name); err != nil {
			r.deps.Logger.Error("failed to delete persisted room",
				zap.String("room", r.Name), zap.Error(err))
		}
		cancel()
	}
	if r.deps.OnClose != nil {
		r.deps.OnClose(r.Name)
	}
	if r.deps.OnUpdate != nil {
		r.deps.OnUpdate()
	}
	r.shutdown()
}

func (r *Room) shutdown() {
	for id, out := range r.clients {
		close(out)
		delete(r.clients, id)
	}
	r.cancel()
}
