package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/filmdraft/filmdraft-backend/internal/engine"
	"github.com/filmdraft/filmdraft-backend/internal/room"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(context.Background(), Deps{})
	t.Cleanup(func() { h.Post(ShutdownHub{}) })
	return h
}

func createRoom(t *testing.T, h *Hub, name, host string) *room.Room {
	t.Helper()
	reply := make(chan CreateReply, 1)
	if !h.Post(CreateRoom{Name: name, Host: host, Cfg: engine.Config{Capacity: 4, DraftPicks: 3}, Reply: reply}) {
		t.Fatal("hub rejected create")
	}
	res := recvCreate(t, reply)
	if res.Err != nil {
		t.Fatalf("create %s: %v", name, res.Err)
	}
	return res.Room
}

func recvCreate(t *testing.T, reply chan CreateReply) CreateReply {
	t.Helper()
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for create reply")
		return CreateReply{}
	}
}

func getRoom(t *testing.T, h *Hub, name string) *room.Room {
	t.Helper()
	reply := make(chan *room.Room, 1)
	if !h.Post(GetRoom{Name: name, Reply: reply}) {
		t.Fatal("hub rejected get")
	}
	select {
	case rm := <-reply:
		return rm
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for get reply")
		return nil
	}
}

func listRooms(t *testing.T, h *Hub) []room.Info {
	t.Helper()
	reply := make(chan []room.Info, 1)
	if !h.Post(ListRooms{Reply: reply}) {
		t.Fatal("hub rejected list")
	}
	select {
	case infos := <-reply:
		return infos
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for list reply")
		return nil
	}
}

func TestCreateThenGetReturnsSameRoom(t *testing.T) {
	h := newTestHub(t)

	created := createRoom(t, h, "movie-night", "host")
	got := getRoom(t, h, "movie-night")
	if created != got {
		t.Fatalf("get returned a different room: %p vs %p", created, got)
	}

	if rm := getRoom(t, h, "no-such-room"); rm != nil {
		t.Fatalf("want nil for unknown room, got %p", rm)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	h := newTestHub(t)
	createRoom(t, h, "movie-night", "host")

	reply := make(chan CreateReply, 1)
	h.Post(CreateRoom{Name: "movie-night", Host: "other", Cfg: engine.Config{Capacity: 4, DraftPicks: 3}, Reply: reply})
	res := recvCreate(t, reply)
	if !errors.Is(res.Err, ErrNameTaken) {
		t.Fatalf("want ErrNameTaken, got %v", res.Err)
	}
}

func TestConcurrentCreatesOneWinner(t *testing.T) {
	h := newTestHub(t)

	const attempts = 16
	var wg sync.WaitGroup
	var won, lost atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := make(chan CreateReply, 1)
			if !h.Post(CreateRoom{Name: "contested", Host: "host", Cfg: engine.Config{Capacity: 4, DraftPicks: 3}, Reply: reply}) {
				return
			}
			switch res := <-reply; {
			case res.Err == nil:
				won.Add(1)
			case errors.Is(res.Err, ErrNameTaken):
				lost.Add(1)
			}
		}()
	}
	wg.Wait()

	if won.Load() != 1 || lost.Load() != attempts-1 {
		t.Fatalf("want exactly one winner, got won=%d lost=%d", won.Load(), lost.Load())
	}
}

func TestRemoveRoomGuardsAgainstNameReuse(t *testing.T) {
	h := newTestHub(t)
	first := createRoom(t, h, "movie-night", "host")

	// the first room's deferred removal must not delete a successor that
	// reused the name
	h.Post(RemoveRoom{Name: "movie-night", Room: first})
	if rm := getRoom(t, h, "movie-night"); rm != nil {
		t.Fatal("room not removed")
	}

	second := createRoom(t, h, "movie-night", "host2")
	h.Post(RemoveRoom{Name: "movie-night", Room: first})
	if rm := getRoom(t, h, "movie-night"); rm != second {
		t.Fatalf("stale removal deleted the new room: got %p", rm)
	}
}

func TestListRoomsSortedWithLiveCounts(t *testing.T) {
	h := newTestHub(t)
	createRoom(t, h, "zebra", "zoe")
	createRoom(t, h, "alpha", "al")

	infos := listRooms(t, h)
	if len(infos) != 2 || infos[0].Name != "alpha" || infos[1].Name != "zebra" {
		t.Fatalf("want sorted [alpha zebra], got %+v", infos)
	}
	for _, info := range infos {
		if info.Players != 1 || info.Capacity != 4 || info.Phase != engine.PhaseLobby {
			t.Fatalf("unexpected room info: %+v", info)
		}
	}
}

func TestWatcherFeedPushesRoomListChanges(t *testing.T) {
	h := newTestHub(t)

	out := make(chan []room.Info, 8)
	h.Post(Subscribe{ID: "w1", Outbox: out})

	select {
	case infos := <-out:
		if len(infos) != 0 {
			t.Fatalf("want empty initial list, got %+v", infos)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial list")
	}

	createRoom(t, h, "movie-night", "host")

	select {
	case infos := <-out:
		if len(infos) != 1 || infos[0].Name != "movie-night" {
			t.Fatalf("want [movie-night], got %+v", infos)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for list update")
	}

	h.Post(Unsubscribe{ID: "w1"})
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("outbox not closed after unsubscribe")
		}
	}
}

func TestEmptyRoomRemovesItselfFromHub(t *testing.T) {
	h := newTestHub(t)
	rm := createRoom(t, h, "movie-night", "host")

	// the host leaving empties the room, which retires and tells the hub
	rm.Post(room.Detach{ClientID: "c1", Username: "host"})

	deadline := time.Now().Add(2 * time.Second)
	for getRoom(t, h, "movie-night") != nil {
		if time.Now().After(deadline) {
			t.Fatal("hub never removed the empty room")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRestoreRoomKeepsExisting(t *testing.T) {
	h := newTestHub(t)
	existing := createRoom(t, h, "movie-night", "host")

	reply := make(chan *room.Room, 1)
	h.Post(RestoreRoom{Name: "movie-night", State: engine.NewState("ghost", engine.Config{Capacity: 2, DraftPicks: 1}), Reply: reply})
	if rm := <-reply; rm != existing {
		t.Fatalf("restore replaced a live room: %p vs %p", rm, existing)
	}

	st := engine.NewState("restored-host", engine.Config{Capacity: 6, DraftPicks: 2})
	reply = make(chan *room.Room, 1)
	h.Post(RestoreRoom{Name: "second-night", State: st, Reply: reply})
	rm := <-reply
	if rm == nil {
		t.Fatal("restore returned nil")
	}
	if info := rm.Info(); info.Capacity != 6 || info.Players != 1 {
		t.Fatalf("restored room info wrong: %+v", info)
	}
}
