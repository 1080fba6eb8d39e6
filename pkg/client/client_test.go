package client

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/shoenig/test/must"
	"github.com/shoenig/test/wait"

	"github.com/abennett/rolltree/pkg/messages"
	"github.com/abennett/rolltree/pkg/rolltree"
	"github.com/abennett/rolltree/pkg/server"
)

type maxRand struct{}

func (maxRand) IntN(n int) int {
	return n - 1
}

func newTestServer(t *testing.T, parts ...rolltree.Part) (*server.Server, *httptest.Server) {
	t.Helper()
	srv := server.NewServer(server.RoomConfig{
		Formula: "1d20 + @bless",
		MainDie: "1d20",
		Parts:   parts,
		Sheet: rolltree.NewContext(map[string]any{
			"bless": rolltree.Modifier{Name: "Bless", Formula: "1d4"},
		}),
		Rand: maxRand{},
	})
	testSrv := httptest.NewServer(server.NewMux(srv))
	t.Cleanup(testSrv.Close)
	return srv, testSrv
}

func waitOffer(t *testing.T, c *Client) messages.Offer {
	t.Helper()
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		_, ok := c.Offer()
		return ok
	})))
	offer, _ := c.Offer()
	return offer
}

func TestSingleClient(t *testing.T) {
	t.Parallel()
	srv, testSrv := newTestServer(t)

	client, err := New(testSrv.URL, "test1", "tester", io.Discard)
	must.NoError(t, err)

	err = client.Init()
	must.NoError(t, err)

	offer := waitOffer(t, client)
	must.EqOp(t, "1d20 + @bless", offer.Formula)
	must.EqOp(t, "1d20", offer.MainDie)
	must.Len(t, 1, offer.Modifiers)
	must.False(t, offer.Modifiers[0].Enabled)
	must.MapContainsKey(t, srv.GetRooms(), "test1")

	err = client.SubmitSelection(messages.Selection{
		Button:  rolltree.ButtonRoll,
		Bonus:   "2",
		Enabled: map[string]bool{"Bless": true},
	})
	must.NoError(t, err)

	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return len(client.Room().Rolls) > 0
	})))
	outcome, ok := client.Outcome()
	must.True(t, ok)
	must.False(t, outcome.Cancelled)
	must.Len(t, 1, outcome.Rolls)
	must.EqOp(t, "1d20 + 1d4 +2", outcome.Rolls[0].FinalRoll)
	must.EqOp(t, 26.0, outcome.Rolls[0].Total)

	roomState := srv.GetRooms()["test1"]
	must.Eq(t, roomState, client.Room())
	must.EqOp(t, 26.0, roomState.Rolls[0].Result)

	must.NoError(t, client.Close())
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return len(srv.GetRooms()) == 0
	})))
}

func TestCancelledSelection(t *testing.T) {
	t.Parallel()
	srv, testSrv := newTestServer(t)

	client, err := New(testSrv.URL, "cancel", "tester", io.Discard)
	must.NoError(t, err)
	must.NoError(t, client.Init())
	waitOffer(t, client)

	err = client.SubmitSelection(messages.Selection{Button: rolltree.ButtonCancel})
	must.NoError(t, err)
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		_, ok := client.Outcome()
		return ok
	})))
	outcome, _ := client.Outcome()
	must.True(t, outcome.Cancelled)
	must.SliceEmpty(t, outcome.Rolls)

	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return client.Room().Version == 1
	})))
	must.True(t, srv.GetRooms()["cancel"].Rolls[0].Cancelled)
}

func TestMultipleClients(t *testing.T) {
	t.Parallel()
	srv, testSrv := newTestServer(t)

	client1, err := New(testSrv.URL, "test1", "tester1", io.Discard)
	must.NoError(t, err)

	client2, err := New(testSrv.URL, "test1", "tester2", io.Discard)
	must.NoError(t, err)

	must.NoError(t, client1.Init())
	must.NoError(t, client2.Init())

	for _, c := range []*Client{client1, client2} {
		waitOffer(t, c)
		must.NoError(t, c.SubmitSelection(messages.Selection{Button: rolltree.ButtonRoll}))
	}

	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return client1.Room().Version == 2
	})))
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		return client2.Room().Version == 2
	})))

	roomState := srv.GetRooms()["test1"]
	must.Eq(t, roomState, client1.Room())
	must.Eq(t, roomState, client2.Room())
	must.Len(t, 2, roomState.Rolls)
	// Bless stays off, so both roll a natural 20.
	must.EqOp(t, 20.0, roomState.Rolls[0].Result)
}

func waitOutcome(t *testing.T, c *Client) messages.Outcome {
	t.Helper()
	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		_, ok := c.Outcome()
		return ok
	})))
	outcome, _ := c.Outcome()
	return outcome
}

func TestOversizedBonusRejected(t *testing.T) {
	t.Parallel()
	srv, testSrv := newTestServer(t)

	client, err := New(testSrv.URL, "huge", "tester", io.Discard)
	must.NoError(t, err)
	must.NoError(t, client.Init())
	waitOffer(t, client)

	err = client.SubmitSelection(messages.Selection{
		Button: rolltree.ButtonRoll,
		Bonus:  "10000000000000d6",
	})
	must.NoError(t, err)
	outcome := waitOutcome(t, client)
	must.True(t, outcome.Cancelled)
	must.StrContains(t, outcome.Error, "invalid roll expression")
	must.MapContainsKey(t, srv.GetRooms(), "huge")
}

func TestSelectionKeepsRoomParts(t *testing.T) {
	t.Parallel()
	_, testSrv := newTestServer(t, rolltree.Part{Formula: "1d6", Enabled: true})

	client, err := New(testSrv.URL, "parts", "tester", io.Discard)
	must.NoError(t, err)
	must.NoError(t, client.Init())
	offer := waitOffer(t, client)
	must.Len(t, 1, offer.Parts)

	err = client.SubmitSelection(messages.Selection{
		Button:   rolltree.ButtonRoll,
		RollMode: "loudroll",
		Parts:    []messages.PartState{{Formula: "100", IsPrimary: true, Enabled: true}},
	})
	must.NoError(t, err)
	outcome := waitOutcome(t, client)
	must.EqOp(t, string(rolltree.RollModePublic), outcome.RollMode)
	must.Len(t, 1, outcome.Rolls)
	must.EqOp(t, "1d6", outcome.Rolls[0].FinalRoll)
	must.EqOp(t, 6.0, outcome.Rolls[0].Total)
}

func TestHostUrl(t *testing.T) {
	u, err := hostUrl("https://example.com:8080", "room")
	must.NoError(t, err)
	must.EqOp(t, "wss://example.com:8080/room", u)

	_, err = hostUrl("ftp://example.com", "room")
	must.Error(t, err)
}
