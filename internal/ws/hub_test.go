package ws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu   sync.Mutex
	got  []PayloadEvent
	fail bool
}

func (r *recorder) WriteJSON(v any) error {
	if r.fail {
		return errors.New("closed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v.(PayloadEvent))
	return nil
}

func TestNotifyUserReachesOnlyThatRoom(t *testing.T) {
	h := NewHub(nil)
	a, b := &recorder{}, &recorder{}
	h.join(&client{conn: a}, UserRoom(1))
	h.join(&client{conn: b}, UserRoom(2))

	h.NotifyUser(1, EventCardSetLiked, map[string]any{"cardSetId": 7})

	assert.Len(t, a.got, 1)
	assert.Equal(t, EventCardSetLiked, a.got[0].Event)
	assert.Empty(t, b.got)
}

func TestBroadcastSkipsBrokenConnections(t *testing.T) {
	h := NewHub(nil)
	ok, broken := &recorder{}, &recorder{fail: true}
	h.join(&client{conn: ok}, CardSetRoom("abc"))
	h.join(&client{conn: broken}, CardSetRoom("abc"))

	assert.Equal(t, 1, h.Broadcast(CardSetRoom("abc"), EventCardSetStudied, nil))
}

func TestDropRemovesEmptyRooms(t *testing.T) {
	h := NewHub(nil)
	c := &client{conn: &recorder{}}
	h.join(c, UserRoom(1))
	h.join(c, CardSetRoom("abc"))
	assert.Equal(t, 1, members(h, UserRoom(1)))

	h.leave(c, CardSetRoom("abc"))
	assert.Zero(t, members(h, CardSetRoom("abc")))

	h.drop(c)
	assert.Zero(t, members(h, UserRoom(1)))
	assert.Empty(t, h.rooms)
}

func members(h *Hub, room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// visibleTo grants each user the listed card sets.
type visibleTo map[int64][]string

func (v visibleTo) CanViewCardSet(_ context.Context, userID int64, publicID string) bool {
	for _, id := range v[userID] {
		if id == publicID {
			return true
		}
	}
	return false
}

func TestJoinRequiresCardSetAccess(t *testing.T) {
	h := NewHub(visibleTo{1: {"open"}})
	ctx := context.Background()
	c := &client{conn: &recorder{}}

	cases := []struct {
		user int64
		msg  string
		room string
		want int
	}{
		{1, `{"action":"join","room":"cardset.open"}`, CardSetRoom("open"), 1},
		{2, `{"action":"join","room":"cardset.open"}`, CardSetRoom("open"), 1},
		{1, `{"action":"join","room":"cardset.hidden"}`, CardSetRoom("hidden"), 0},
		{1, `{"action":"join","room":"user.2"}`, UserRoom(2), 0},
		{1, `{"action":"join","room":"cardset."}`, CardSetRoom(""), 0},
		{1, `not json`, CardSetRoom("open"), 1},
		{1, `{"action":"leave","room":"cardset.open"}`, CardSetRoom("open"), 0},
	}
	for _, tc := range cases {
		h.handleMessage(ctx, c, tc.user, []byte(tc.msg))
		assert.Equal(t, tc.want, members(h, tc.room), tc.msg)
	}
}

func TestJoinWithoutAccessCheckerIsRefused(t *testing.T) {
	h := NewHub(nil)
	c := &client{conn: &recorder{}}
	h.handleMessage(context.Background(), c, 1, []byte(`{"action":"join","room":"cardset.open"}`))
	assert.Empty(t, h.rooms)
}

func TestCardSetRoomBroadcastReachesJoinedViewers(t *testing.T) {
	h := NewHub(visibleTo{1: {"s1"}, 2: {"s1"}})
	a, b, other := &recorder{}, &recorder{}, &recorder{}
	for uid, r := range map[int64]*recorder{1: a, 2: b, 3: other} {
		h.handleMessage(context.Background(), &client{conn: r}, uid, []byte(`{"action":"join","room":"cardset.s1"}`))
	}

	assert.Equal(t, 2, h.Broadcast(CardSetRoom("s1"), EventCardSetLiked, map[string]any{"likes": 3}))
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Empty(t, other.got)
}
