package server

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rolltree/pkg"
	"github.com/abennett/rolltree/pkg/messages"
	"github.com/abennett/rolltree/pkg/rolltree"
)

const (
	PingInterval = 5 * time.Second
)

var defaultButtons = []rolltree.Button{
	{ID: rolltree.ButtonRoll, Label: "Roll"},
	{ID: rolltree.ButtonCancel, Label: "Cancel"},
}

type userSession struct {
	wg         *sync.WaitGroup
	logger     *slog.Logger
	name       string
	writeCh    chan []byte
	selections chan messages.Selection
}

func (s userSession) send(ctx context.Context, b []byte) bool {
	select {
	case s.writeCh <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

type Room struct {
	mu           *sync.Mutex
	logger       *slog.Logger
	userSessions map[string]userSession
	cfg          RoomConfig

	Version int
	Name    string
	Rolls   map[string]messages.RollResult
}

func (r *Room) RunSession(ctx context.Context, conn *websocket.Conn) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		r.logger.Error("failed to read initial message", "error", err)
		return
	}

	var msg messages.Message
	if err = msgpack.Unmarshal(b, &msg); err != nil {
		r.logger.Error("failed to parse initial message", "error", err, "payload", string(b))
		return
	}

	req, ok := msg.Payload.(messages.RollRequest)
	if !ok {
		r.logger.Error("initial message was incorrect", "type", msg.Type, "payload", string(b))
		return
	}

	name := req.User
	r.logger.Debug("starting a session", "user", name)
	session := userSession{
		wg:         new(sync.WaitGroup),
		logger:     r.logger.With("user", req.User),
		name:       req.User,
		writeCh:    make(chan []byte, 4),
		selections: make(chan messages.Selection, 1),
	}

	ctx = r.startUserSession(ctx, session, conn)

	outcome, err := r.roll(ctx, session)
	if err != nil {
		session.logger.Error("roll failed", "error", err)
		outcome = messages.Outcome{User: name, Cancelled: true, Error: err.Error()}
	}
	if err = r.finish(ctx, session, outcome); err != nil {
		session.logger.Error(err.Error())
	}

	session.wg.Wait()
	r.stopUserSession(session)
	r.logger.Info("closing session", "active_sessions", len(r.userSessions), "user", name)
}

func (r *Room) startUserSession(ctx context.Context, session userSession, conn *websocket.Conn) context.Context {
	r.mu.Lock()
	r.userSessions[session.name] = session
	r.mu.Unlock()

	// Add to the waitGroup outside of goroutines here to avoid race condition on Add
	ctx, cancel := context.WithCancel(ctx)
	session.wg.Add(2)
	go r.userReadLoop(cancel, session, conn)
	go r.userWriteLoop(ctx, session, conn)
	return ctx
}

func (r *Room) stopUserSession(session userSession) {
	r.mu.Lock()
	delete(r.userSessions, session.name)
	r.mu.Unlock()
}

// roll runs the room formula for the session, asking the client to make
// the modifier selection, and rolls the resulting expressions.
func (r *Room) roll(ctx context.Context, session userSession) (messages.Outcome, error) {
	cfg := r.cfg
	sheet := rolltree.NewContext(cfg.Sheet.Values, cfg.Sheet.Selectors...)
	dialog := remoteDialog{session: session, mode: rolltree.RollModePublic}
	if cfg.Settings != nil {
		dialog.mode = cfg.Settings.DefaultRollMode()
	}
	tree := rolltree.New(cfg.Formula, sheet, rolltree.Config{
		Dialog:         dialog,
		Settings:       cfg.Settings,
		Localizer:      cfg.Localizer,
		Logger:         session.logger,
		Debug:          cfg.Debug,
		BonusEveryPart: cfg.BonusEveryPart,
	})
	res, err := tree.Roll(ctx, rolltree.RollOptions{
		Title:         cfg.Title,
		MainDie:       cfg.MainDie,
		Buttons:       defaultButtons,
		DefaultButton: rolltree.ButtonRoll,
		Parts:         cfg.Parts,
	})
	if err != nil {
		return messages.Outcome{}, err
	}

	outcome := messages.Outcome{
		User:      session.name,
		Cancelled: res.Cancelled,
		Button:    res.Button,
		RollMode:  string(res.RollMode),
		Bonus:     res.Bonus,
	}
	for _, roll := range res.Rolls {
		evaluated, err := pkg.Evaluate(roll.FinalRoll, cfg.Rand)
		if err != nil {
			return outcome, fmt.Errorf("evaluating %q: %w", roll.FinalRoll, err)
		}
		part := messages.RolledPart{
			FinalRoll: roll.FinalRoll,
			Formula:   roll.Formula,
			Total:     evaluated.Total,
			Dice:      evaluated.String(),
		}
		if roll.Part != nil {
			part.Label = roll.Part.Label
		}
		outcome.Rolls = append(outcome.Rolls, part)
	}
	return outcome, nil
}

// finish sends the outcome to the roller and records it in the room.
func (r *Room) finish(ctx context.Context, session userSession, outcome messages.Outcome) error {
	b, err := messages.Encode(messages.OutcomeMsgType, outcome)
	if err != nil {
		return fmt.Errorf("failed marshalling outcome: %w", err)
	}
	if !session.send(ctx, b) {
		return nil
	}

	result := messages.RollResult{
		User:      session.name,
		Cancelled: outcome.Cancelled,
	}
	finals := make([]string, 0, len(outcome.Rolls))
	for _, part := range outcome.Rolls {
		result.Result += part.Total
		finals = append(finals, part.FinalRoll)
	}
	result.FinalRoll = strings.Join(finals, " | ")
	return r.Update(result)
}

type remoteDialog struct {
	session userSession
	mode    rolltree.RollMode
}

// Select sends the offer to the client and waits for its selection. A
// client that goes away cancels the roll.
func (d remoteDialog) Select(ctx context.Context, req rolltree.DialogRequest) (rolltree.Selection, error) {
	b, err := messages.Encode(messages.OfferMsgType, messages.NewOffer(req, d.mode))
	if err != nil {
		return rolltree.Selection{}, err
	}
	cancelled := rolltree.Selection{Button: rolltree.ButtonCancel}
	if !d.session.send(ctx, b) {
		return cancelled, nil
	}
	d.session.logger.Debug("waiting for selection")
	select {
	case sel := <-d.session.selections:
		return sel.RollSelection(req.Parts), nil
	case <-ctx.Done():
		d.session.logger.Info("session closed during selection")
		return cancelled, nil
	}
}

func (r *Room) userReadLoop(cancel func(), session userSession, conn *websocket.Conn) {
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing read loop")

	for {
		t, b, err := conn.ReadMessage()
		if closeErr, ok := err.(*websocket.CloseError); ok {
			if closeErr.Code == websocket.CloseNormalClosure {
				session.logger.Info("close message received")
				return
			}
		}
		if err != nil {
			r.logger.Error("failure in user read loop", "error", err)
			return
		}

		switch t {
		case websocket.CloseMessage:
			session.logger.Info("close message received")
			return
		case websocket.BinaryMessage:
			session.logger.Debug("binary message received")
			if err := r.HandleBinaryMessage(session, b); err != nil {
				session.logger.Error("unable to handle message", "error", err)
			}
		}
	}
}

func (r *Room) HandleBinaryMessage(session userSession, b []byte) error {
	var msg messages.Message
	err := msgpack.Unmarshal(b, &msg)
	if err != nil {
		return fmt.Errorf("%w: %w", messages.ErrMessageInvalid, err)
	}

	switch payload := msg.Payload.(type) {
	case messages.Selection:
		select {
		case session.selections <- payload:
		default:
			session.logger.Warn("dropping selection, none pending")
		}
	default:
		return fmt.Errorf("%w: %T", messages.ErrUnknownMessageType, payload)
	}
	return nil
}

func (r *Room) userWriteLoop(ctx context.Context, session userSession, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing write loop")
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			session.logger.Debug("write loop is done")
			return
		case b := <-session.writeCh:
			session.logger.Debug("writing message")
			err := conn.WriteMessage(websocket.BinaryMessage, b)
			if err != nil {
				r.logger.Error(err.Error())
				return
			}
		case <-ticker.C:
			session.logger.Debug("writing ping message")
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			if err == websocket.ErrCloseSent {
				session.logger.Debug("error close was sent")
				return
			}
			if err != nil {
				session.logger.Error("ping failed", "error", err)
				return
			}
		}
	}
}

func (r *Room) Update(update any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch u := update.(type) {
	case messages.RollResult:
		r.Rolls[u.User] = u
		r.logger.Debug("added roll", "active_sessions", len(r.userSessions), "user", u.User)
	default:
		err := fmt.Errorf("unknown update type: %T", update)
		r.logger.Error(err.Error())
		return err
	}

	r.Version++

	b, err := messages.Encode(messages.StateMsgType, r.ToState())
	if err != nil {
		r.logger.Error("failed marshalling room", "error", err)
		return err
	}

	for _, us := range r.userSessions {
		r.logger.Debug("pushing update", "user", us.name, "version", r.Version)
		select {
		case us.writeCh <- b:
		default:
			r.logger.Warn("session is not keeping up, dropping update", "user", us.name)
		}
	}
	return nil
}

// ToState snapshots the room. The caller holds the room lock.
func (r *Room) ToState() messages.RoomState {
	rolls := make([]messages.RollResult, 0, len(r.Rolls))
	for _, roll := range r.Rolls {
		rolls = append(rolls, roll)
	}
	slices.SortFunc(rolls, func(a, b messages.RollResult) int {
		return cmp.Or(cmp.Compare(b.Result, a.Result), cmp.Compare(a.User, b.User))
	})
	return messages.RoomState{
		Version: r.Version,
		Name:    r.Name,
		Formula: r.cfg.Formula,
		Rolls:   rolls,
	}
}
