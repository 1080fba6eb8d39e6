package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rolltree/pkg/messages"
)

var ErrTooManyRedirects = errors.New("too many redirects")

type Client struct {
	mu   *sync.Mutex
	user string

	conn     *websocket.Conn
	logger   *slog.Logger
	messages chan messages.Message

	offer   *messages.Offer
	outcome *messages.Outcome
	room    messages.RoomState
}

func connectLoop(wsUrl string) (*websocket.Conn, error) {
	for range 3 {
		slog.Debug("attempting connection", "url", wsUrl)
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl, nil)
		slog.Debug("connection attempted",
			"resp", resp,
			"error", err)
		if err != nil {
			if resp != nil {
				_, _ = io.Copy(os.Stderr, resp.Body)
			}
			return nil, err
		}
		if resp != nil && resp.StatusCode >= 300 && resp.StatusCode < 400 {
			wsUrl = resp.Header.Get("Location")
			slog.Debug("redirecting", "location", wsUrl)
			continue
		}
		return conn, nil
	}

	return nil, ErrTooManyRedirects
}

func hostUrl(endpoint, room string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	var scheme string
	switch parsed.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%s is not a valid protocol", parsed.Scheme)
	}
	parsed.Scheme = scheme
	parsed.Path = room
	return parsed.String(), nil
}

func setupLogger(user string, logWriter io.Writer) *slog.Logger {
	if logWriter == nil {
		logWriter = io.Discard
	}
	h := slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("user", user)
}

func New(host, room, user string, logWriter io.Writer) (*Client, error) {
	logger := setupLogger(user, logWriter)

	endpoint, err := hostUrl(host, room)
	if err != nil {
		return nil, err
	}
	logger.Debug("using endpoint", "endpoint", endpoint)

	conn, err := connectLoop(endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		mu:       new(sync.Mutex),
		user:     user,
		logger:   logger,
		conn:     conn,
		messages: make(chan messages.Message, 8),
		room: messages.RoomState{
			Rolls: []messages.RollResult{},
		},
	}, nil
}

// Init joins the room. The server answers with an offer.
func (c *Client) Init() error {
	c.logger.Debug("running Init")
	b, err := messages.Encode(messages.RollRequestType, messages.RollRequest{User: c.user})
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	c.logger.Debug("writing initial message")
	err = c.conn.WriteMessage(websocket.BinaryMessage, b)
	if err != nil {
		return fmt.Errorf("unable to write server: %w", err)
	}

	go c.updateLoop(c.messages)
	return nil
}

func (c *Client) SubmitSelection(sel messages.Selection) error {
	b, err := messages.Encode(messages.SelectionMsgType, sel)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// ReadUpdate blocks for the next message and returns its payload: an
// Offer, an Outcome or the room's rolls. It returns nil once the
// connection is gone.
func (c *Client) ReadUpdate() any {
	c.logger.Debug("reading update")
	msg, ok := <-c.messages
	if !ok {
		return nil
	}
	c.logger.Debug("read from channel", "type", msg.Type)
	switch payload := msg.Payload.(type) {
	case messages.RoomState:
		return payload.Rolls
	default:
		return payload
	}
}

func (c *Client) Offer() (messages.Offer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offer == nil {
		return messages.Offer{}, false
	}
	return *c.offer, true
}

func (c *Client) Outcome() (messages.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return messages.Outcome{}, false
	}
	return *c.outcome, true
}

func (c *Client) Room() messages.RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) Close() error {
	c.logger.Debug("closing connection")
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		c.logger.Error("close control message failed", "error", err)
		return fmt.Errorf("close control message failed: %w", err)
	}
	return nil
}

func (c *Client) updateLoop(updates chan<- messages.Message) {
	defer close(updates)
	c.logger.Debug("running update loop")
	for {
		t, b, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("update loop stopped", "error", err)
			return
		}
		if t != websocket.BinaryMessage {
			continue
		}
		var msg messages.Message
		err = msgpack.Unmarshal(b, &msg)
		if err != nil {
			c.logger.Error("failed parsing message", "error", err, "payload", b)
			return
		}
		c.logger.Debug("message received", "type", msg.Type)
		c.mu.Lock()
		switch payload := msg.Payload.(type) {
		case messages.RoomState:
			if payload.Version > c.room.Version {
				c.room = payload
			}
		case messages.Offer:
			c.offer = &payload
		case messages.Outcome:
			c.outcome = &payload
		default:
			c.logger.Warn("unexpected message", "type", msg.Type)
		}
		c.mu.Unlock()

		select {
		case updates <- msg:
		default:
			c.logger.Debug("update channel full, dropping message", "type", msg.Type)
		}
	}
}
