package server

import (
	"log/slog"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/abennett/rolltree/pkg/messages"
	"github.com/abennett/rolltree/pkg/rolltree"
)

func testSession(name string) userSession {
	return userSession{
		logger:     slog.Default(),
		name:       name,
		writeCh:    make(chan []byte, 4),
		selections: make(chan messages.Selection, 1),
	}
}

func TestNewRoom(t *testing.T) {
	srv := NewServer(RoomConfig{})
	room, err := srv.NewRoom("room")
	must.NoError(t, err)
	must.EqOp(t, "1d20", room.cfg.Formula)

	_, err = srv.NewRoom("room")
	must.ErrorIs(t, err, ErrRoomExists)

	_, err = srv.GetRoom("missing")
	must.ErrorIs(t, err, ErrRoomNotExists)
}

func TestUpdateBroadcasts(t *testing.T) {
	srv := NewServer(RoomConfig{Formula: "1d20 + @str"})
	room, err := srv.NewRoom("room")
	must.NoError(t, err)

	a, b := testSession("alice"), testSession("bob")
	room.userSessions[a.name] = a
	room.userSessions[b.name] = b

	must.NoError(t, room.Update(messages.RollResult{User: "alice", Result: 8}))
	must.NoError(t, room.Update(messages.RollResult{User: "bob", Result: 15}))
	must.Error(t, room.Update("nope"))

	must.EqOp(t, 2, len(a.writeCh))
	must.EqOp(t, 2, len(b.writeCh))

	state := srv.GetRooms()["room"]
	must.EqOp(t, 2, state.Version)
	must.EqOp(t, "1d20 + @str", state.Formula)
	must.EqOp(t, "bob", state.Rolls[0].User)
	must.EqOp(t, "alice", state.Rolls[1].User)
}

func TestHandleBinaryMessage(t *testing.T) {
	room, err := NewServer(RoomConfig{}).NewRoom("room")
	must.NoError(t, err)
	session := testSession("alice")

	b, err := messages.Encode(messages.SelectionMsgType, messages.Selection{Button: rolltree.ButtonRoll})
	must.NoError(t, err)
	must.NoError(t, room.HandleBinaryMessage(session, b))
	sel := <-session.selections
	must.EqOp(t, rolltree.ButtonRoll, sel.Button)

	b, err = messages.Encode(messages.RollRequestType, messages.RollRequest{User: "alice"})
	must.NoError(t, err)
	must.ErrorIs(t, room.HandleBinaryMessage(session, b), messages.ErrUnknownMessageType)

	must.ErrorIs(t, room.HandleBinaryMessage(session, []byte{0xc1}), messages.ErrMessageInvalid)
}
