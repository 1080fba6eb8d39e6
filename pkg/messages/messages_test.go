package messages

import (
	"testing"

	"github.com/shoenig/test/must"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rolltree/pkg/rolltree"
)

func TestCustomUnmarshal_Selection(t *testing.T) {
	b, err := Encode(SelectionMsgType, Selection{
		Button:  rolltree.ButtonRoll,
		Bonus:   "+2",
		Enabled: map[string]bool{"Bless": true},
		Parts:   []PartState{{Formula: "1d6", Enabled: true}},
	})
	must.NoError(t, err)
	var un Message
	err = msgpack.Unmarshal(b, &un)
	must.NoError(t, err)
	must.EqOp(t, Version, un.Version)
	sel, ok := un.Payload.(Selection)
	must.True(t, ok)
	must.EqOp(t, "+2", sel.Bonus)
	must.MapContainsKey(t, sel.Enabled, "Bless")

	rs := sel.RollSelection([]rolltree.Part{{Formula: "1d6"}})
	must.EqOp(t, rolltree.ButtonRoll, rs.Button)
	must.Eq(t, []rolltree.Part{{Formula: "1d6", Enabled: true}}, rs.Parts)
}

func TestRollSelectionKeepsOfferedParts(t *testing.T) {
	offered := []rolltree.Part{
		{Formula: "1d8", IsPrimary: true, Enabled: true},
		{Formula: "2d6", Enabled: true},
	}
	sel := Selection{
		Button:   rolltree.ButtonRoll,
		RollMode: "loudroll",
		Parts: []PartState{
			{Formula: "100", IsPrimary: false, Enabled: true},
			{Formula: "100", IsPrimary: true, Enabled: false},
			{Formula: "100", Enabled: true},
		},
	}
	rs := sel.RollSelection(offered)
	must.Eq(t, []rolltree.Part{
		{Formula: "1d8", IsPrimary: true, Enabled: true},
		{Formula: "2d6", Enabled: false},
	}, rs.Parts)
	must.EqOp(t, rolltree.RollMode(""), rs.RollMode)
	must.True(t, offered[1].Enabled)

	sel = Selection{RollMode: string(rolltree.RollModeBlind)}
	rs = sel.RollSelection(offered)
	must.EqOp(t, rolltree.RollModeBlind, rs.RollMode)
	must.True(t, rs.Parts == nil)
}

func TestCustomUnmarshal_RoomState(t *testing.T) {
	base := Message{
		Type:    StateMsgType,
		Version: Version,
		Payload: RoomState{
			Version: 1,
			Name:    "test",
			Formula: "1d20",
			Rolls:   []RollResult{},
		},
	}
	b, err := msgpack.Marshal(base)
	must.NoError(t, err)
	var un Message
	err = msgpack.Unmarshal(b, &un)
	must.NoError(t, err)
	room, ok := un.Payload.(RoomState)
	must.True(t, ok)
	must.EqOp(t, room.Version, 1)
}

func TestCustomUnmarshal_Unknown(t *testing.T) {
	b, err := Encode(Type(42), RollRequest{User: "x"})
	must.NoError(t, err)
	var un Message
	err = msgpack.Unmarshal(b, &un)
	must.ErrorIs(t, err, ErrUnknownMessageType)

	b, err = msgpack.Marshal([]int{1, 2})
	must.NoError(t, err)
	err = msgpack.Unmarshal(b, &un)
	must.ErrorIs(t, err, ErrMessageInvalid)
}

func TestNewOffer(t *testing.T) {
	req := rolltree.DialogRequest{
		Title:         "Attack",
		Formula:       "1d20 + @bless",
		MainDie:       "1d20",
		DefaultButton: rolltree.ButtonRoll,
		Buttons:       []rolltree.Button{{ID: rolltree.ButtonRoll, Label: "Roll"}},
		Modifiers: []*rolltree.Modifier{
			{Name: "Bless", Formula: "1d4", Enabled: true, Source: rolltree.SourceReference},
		},
		Parts: []rolltree.Part{{Formula: "1d6", IsPrimary: true, Enabled: true}},
	}
	offer := NewOffer(req, rolltree.RollModeGM)
	must.EqOp(t, "gmroll", offer.RollMode)
	must.Len(t, 1, offer.Buttons)
	must.Eq(t, ModifierState{Name: "Bless", Formula: "1d4", Source: "reference", Enabled: true}, offer.Modifiers[0])
	must.Eq(t, []PartState{{Formula: "1d6", IsPrimary: true, Enabled: true}}, offer.Parts)
}
