package messages

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rolltree/pkg/rolltree"
)

const Version = "1"

var (
	ErrMessageInvalid     = errors.New("message was invalid")
	ErrUnknownMessageType = errors.New("unknown message type")
)

type Type int

const (
	StateMsgType Type = iota
	RollRequestType
	OfferMsgType
	SelectionMsgType
	OutcomeMsgType
)

type Message struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused
	Type     Type     `msgpack:"type"`
	Version  string   `msgpack:"version"`
	Payload  any
}

func Encode(t Type, payload any) ([]byte, error) {
	return msgpack.Marshal(Message{
		Type:    t,
		Version: Version,
		Payload: payload,
	})
}

func (m *Message) UnmarshalMsgpack(b []byte) error {
	decoder := msgpack.NewDecoder(bytes.NewReader(b))
	l, err := decoder.DecodeArrayLen()
	if err != nil {
		return err
	}
	if l != 3 {
		return fmt.Errorf("%w: envelope has %d fields", ErrMessageInvalid, l)
	}
	t, err := decoder.DecodeInt()
	if err != nil {
		return err
	}
	m.Type = Type(t)

	if m.Version, err = decoder.DecodeString(); err != nil {
		return err
	}

	switch m.Type {
	case StateMsgType:
		var room RoomState
		if err = decoder.Decode(&room); err != nil {
			return err
		}
		m.Payload = room
	case RollRequestType:
		var roll RollRequest
		if err = decoder.Decode(&roll); err != nil {
			return err
		}
		m.Payload = roll
	case OfferMsgType:
		var offer Offer
		if err = decoder.Decode(&offer); err != nil {
			return err
		}
		m.Payload = offer
	case SelectionMsgType:
		var sel Selection
		if err = decoder.Decode(&sel); err != nil {
			return err
		}
		m.Payload = sel
	case OutcomeMsgType:
		var outcome Outcome
		if err = decoder.Decode(&outcome); err != nil {
			return err
		}
		m.Payload = outcome
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, m.Type)
	}
	return nil
}

type RoomState struct {
	Version int          `msgpack:"version"`
	Name    string       `msgpack:"name"`
	Formula string       `msgpack:"formula"`
	Rolls   []RollResult `msgpack:"rolls"`
}

type RollRequest struct {
	User string `msgpack:"user"`
}

type RollResult struct {
	User      string  `msgpack:"user"`
	Result    float64 `msgpack:"result"`
	FinalRoll string  `msgpack:"final_roll"`
	Cancelled bool    `msgpack:"cancelled"`
}

type ModifierState struct {
	Name    string `msgpack:"name"`
	Formula string `msgpack:"formula"`
	Source  string `msgpack:"source"`
	Enabled bool   `msgpack:"enabled"`
}

type PartState struct {
	Formula   string `msgpack:"formula"`
	IsPrimary bool   `msgpack:"is_primary"`
	Enabled   bool   `msgpack:"enabled"`
	Label     string `msgpack:"label"`
}

type ButtonState struct {
	ID    string `msgpack:"id"`
	Label string `msgpack:"label"`
}

// Offer is the selection dialog a server asks a client to show.
type Offer struct {
	Title         string          `msgpack:"title"`
	Formula       string          `msgpack:"formula"`
	MainDie       string          `msgpack:"main_die"`
	RollMode      string          `msgpack:"roll_mode"`
	DefaultButton string          `msgpack:"default_button"`
	Buttons       []ButtonState   `msgpack:"buttons"`
	Modifiers     []ModifierState `msgpack:"modifiers"`
	Parts         []PartState     `msgpack:"parts"`
}

type Selection struct {
	Button   string          `msgpack:"button"`
	RollMode string          `msgpack:"roll_mode"`
	Bonus    string          `msgpack:"bonus"`
	Enabled  map[string]bool `msgpack:"enabled"`
	Parts    []PartState     `msgpack:"parts"`
}

type RolledPart struct {
	FinalRoll string  `msgpack:"final_roll"`
	Formula   string  `msgpack:"formula"`
	Label     string  `msgpack:"label"`
	Total     float64 `msgpack:"total"`
	Dice      string  `msgpack:"dice"`
}

// Outcome is the result of a session's roll. Error is set when the roll
// could not be evaluated.
type Outcome struct {
	User      string       `msgpack:"user"`
	Cancelled bool         `msgpack:"cancelled"`
	Button    string       `msgpack:"button"`
	RollMode  string       `msgpack:"roll_mode"`
	Bonus     string       `msgpack:"bonus"`
	Rolls     []RolledPart `msgpack:"rolls"`
	Error     string       `msgpack:"error"`
}

func NewOffer(req rolltree.DialogRequest, mode rolltree.RollMode) Offer {
	offer := Offer{
		Title:         req.Title,
		Formula:       req.Formula,
		MainDie:       req.MainDie,
		RollMode:      string(mode),
		DefaultButton: req.DefaultButton,
		Modifiers:     make([]ModifierState, len(req.Modifiers)),
		Parts:         PartStates(req.Parts),
	}
	for _, b := range req.Buttons {
		offer.Buttons = append(offer.Buttons, ButtonState{ID: b.ID, Label: b.Label})
	}
	for i, m := range req.Modifiers {
		offer.Modifiers[i] = ModifierState{
			Name:    m.Name,
			Formula: m.Formula,
			Source:  m.Source.String(),
			Enabled: m.Enabled,
		}
	}
	return offer
}

func PartStates(parts []rolltree.Part) []PartState {
	states := make([]PartState, len(parts))
	for i, p := range parts {
		states[i] = PartState{
			Formula:   p.Formula,
			IsPrimary: p.IsPrimary,
			Enabled:   p.Enabled,
			Label:     p.Label,
		}
	}
	return states
}

// RollSelection converts the selection for the tree that offered parts.
// Only the enabled flags of the parts are taken, by position, so a client
// cannot change what a part rolls. An unknown roll mode is dropped, and
// the tree falls back to its default.
func (s Selection) RollSelection(offered []rolltree.Part) rolltree.Selection {
	sel := rolltree.Selection{
		Button:  s.Button,
		Bonus:   s.Bonus,
		Enabled: s.Enabled,
	}
	if mode := rolltree.RollMode(s.RollMode); mode.Valid() {
		sel.RollMode = mode
	}
	if s.Parts == nil {
		return sel
	}
	sel.Parts = slices.Clone(offered)
	for i := range sel.Parts {
		if i < len(s.Parts) {
			sel.Parts[i].Enabled = s.Parts[i].Enabled
		}
	}
	return sel
}
