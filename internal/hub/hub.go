package hub

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/filmdraft/filmdraft-backend/internal/engine"
	"github.com/filmdraft/filmdraft-backend/internal/room"
)

// ErrNameTaken is returned when a room with the requested name already
// exists. Exactly one of two concurrent creates for the same name wins,
// because a single goroutine owns the directory.
var ErrNameTaken = errors.New("room name already taken")

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Name  string
	Host  string
	Cfg   engine.Config
	Reply chan CreateReply
}

type CreateReply struct {
	Room *room.Room
	Err  error
}

// RestoreRoom rebuilds a room from persisted state at startup. An existing
// room with the same name wins.
type RestoreRoom struct {
	Name  string
	State engine.State
	Reply chan *room.Room
}

type GetRoom struct {
	Name  string
	Reply chan *room.Room
}

type ListRooms struct {
	Reply chan []room.Info
}

type RemoveRoom struct {
	Name string
	// Room, when set, guards against deleting a newer room that reused the
	// name after this one closed.
	Room *room.Room
}

// Subscribe attaches a join-browser feed consumer. Each room-list change is
// pushed as a full list; slow consumers are dropped, same policy as room
// broadcasts.
type Subscribe struct {
	ID     string
	Outbox chan []room.Info
}

type Unsubscribe struct {
	ID string
}

type roomsChanged struct{}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()   {}
func (RestoreRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()      {}
func (ListRooms) isHubMsg()    {}
func (RemoveRoom) isHubMsg()   {}
func (Subscribe) isHubMsg()    {}
func (Unsubscribe) isHubMsg()  {}
func (roomsChanged) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

// Deps is the template for every room the hub creates.
type Deps struct {
	Logger          *zap.Logger
	Announcer       room.FlavorProvider
	Store           room.Persister
	AnnounceDwell   time.Duration
	AnnounceTimeout time.Duration
}

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	watchers map[string]chan []room.Info
	deps     Deps
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, deps Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		watchers: make(map[string]chan []room.Info),
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

// Post delivers a message unless the hub has shut down.
func (h *Hub) Post(m HubMsg) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if _, taken := h.rooms[msg.Name]; taken {
					msg.Reply <- CreateReply{Err: ErrNameTaken}
					break
				}
				rm := h.spawn(msg.Name, engine.NewState(msg.Host, msg.Cfg))
				h.deps.Logger.Info("room created",
					zap.String("room", msg.Name), zap.String("host", msg.Host))
				msg.Reply <- CreateReply{Room: rm}
				h.notifyWatchers()

			case RestoreRoom:
				if rm := h.rooms[msg.Name]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := h.spawn(msg.Name, msg.State)
				h.deps.Logger.Info("room restored", zap.String("room", msg.Name))
				msg.Reply <- rm
				h.notifyWatchers()

			case GetRoom:
				msg.Reply <- h.rooms[msg.Name] // may be nil

			case ListRooms:
				msg.Reply <- h.list()

			case RemoveRoom:
				if cur, ok := h.rooms[msg.Name]; ok && (msg.Room == nil || cur == msg.Room) {
					delete(h.rooms, msg.Name)
					h.notifyWatchers()
				}

			case Subscribe:
				h.watchers[msg.ID] = msg.Outbox
				msg.Outbox <- h.list()

			case Unsubscribe:
				if out, ok := h.watchers[msg.ID]; ok {
					close(out)
					delete(h.watchers, msg.ID)
				}

			case roomsChanged:
				h.notifyWatchers()

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Post(room.Shutdown{})
				}
				clear(h.rooms)
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) spawn(name string, initial engine.State) *room.Room {
	var rm *room.Room
	deps := room.Deps{
		Logger:          h.deps.Logger,
		Announcer:       h.deps.Announcer,
		Store:           h.deps.Store,
		AnnounceDwell:   h.deps.AnnounceDwell,
		AnnounceTimeout: h.deps.AnnounceTimeout,
		// Rooms call these from their own goroutines; go through the inbox
		// asynchronously so a busy hub can never deadlock a closing room.
		OnClose: func(n string) {
			go h.Post(RemoveRoom{Name: n, Room: rm})
		},
		OnUpdate: func() {
			go h.Post(roomsChanged{})
		},
	}
	rm = room.New(h.ctx, name, initial, deps)
	h.rooms[name] = rm
	return rm
}

// list reads each room's atomically-maintained info, so it never blocks on a
// room's inbox.
func (h *Hub) list() []room.Info {
	infos := make([]room.Info, 0, len(h.rooms))
	for _, rm := range h.rooms {
		infos = append(infos, rm.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (h *Hub) notifyWatchers() {
	infos := h.list()
	for id, out := range h.watchers {
		select {
		case out <- infos:
		default:
			close(out)
			delete(h.watchers, id)
		}
	}
}

func (h *Hub) shutdown() {
	for id, out := range h.watchers {
		close(out)
		delete(h.watchers, id)
	}
	h.cancel()
}
