package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abennett/rolltree/pkg"
	"github.com/abennett/rolltree/pkg/messages"
	"github.com/abennett/rolltree/pkg/rolltree"
)

// MaxMessageSize bounds what a client may send in one message.
const MaxMessageSize = 64 << 10

var (
	ErrRoomExists    = errors.New("room exists")
	ErrRoomNotExists = errors.New("room does not exist")
)

// RoomConfig is what every room of a server rolls.
type RoomConfig struct {
	Formula string
	Title   string
	MainDie string
	Parts   []rolltree.Part
	Sheet   *rolltree.Context

	Localizer      rolltree.Localizer
	Settings       rolltree.Settings
	Debug          bool
	BonusEveryPart bool
	// Rand rolls the dice of finished rolls. Nil uses math/rand/v2.
	Rand pkg.Rand
}

type Server struct {
	rw       *sync.RWMutex
	upgrader websocket.Upgrader
	cfg      RoomConfig

	Rooms map[string]*Room
}

func NewServer(cfg RoomConfig) *Server {
	if cfg.Formula == "" {
		cfg.Formula = "1d20"
	}
	if cfg.Sheet == nil {
		cfg.Sheet = rolltree.NewContext(nil)
	}
	return &Server{
		rw:    &sync.RWMutex{},
		cfg:   cfg,
		Rooms: map[string]*Room{},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")
	if roomName == "" {
		http.Error(w, "room name is required", http.StatusBadRequest)
		return
	}
	slog.Info("serving request", "roomName", roomName)
	room, err := s.GetRoom(roomName)
	if errors.Is(err, ErrRoomNotExists) {
		room, err = s.NewRoom(roomName)
	}
	if err != nil {
		slog.Error("unable to create new room", "room_name", roomName, "error", err)
		http.Error(w, "unable to create new room", http.StatusInternalServerError)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error(err.Error())
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxMessageSize)

	// Keep connection alive
	room.RunSession(r.Context(), conn)

	room.mu.Lock()
	if len(room.userSessions) == 0 {
		s.rw.Lock()
		delete(s.Rooms, roomName)
		s.rw.Unlock()
		slog.Info("closed room", "room", roomName)
	}
	room.mu.Unlock()
}

func (s *Server) NewRoom(name string) (*Room, error) {
	s.rw.Lock()
	defer s.rw.Unlock()
	_, ok := s.Rooms[name]
	if ok {
		return nil, ErrRoomExists
	}
	s.Rooms[name] = &Room{
		mu:           new(sync.Mutex),
		logger:       slog.With("room", name),
		userSessions: make(map[string]userSession),
		cfg:          s.cfg,
		Version:      0,
		Name:         name,
		Rolls:        map[string]messages.RollResult{},
	}
	return s.Rooms[name], nil
}

func (s *Server) GetRoom(roomName string) (*Room, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	room, ok := s.Rooms[roomName]
	if !ok {
		return room, ErrRoomNotExists
	}
	return room, nil
}

// GetRooms returns the state of every open room.
func (s *Server) GetRooms() map[string]messages.RoomState {
	s.rw.RLock()
	rooms := make(map[string]*Room, len(s.Rooms))
	for name, room := range s.Rooms {
		rooms[name] = room
	}
	s.rw.RUnlock()

	states := make(map[string]messages.RoomState, len(rooms))
	for name, room := range rooms {
		room.mu.Lock()
		states[name] = room.ToState()
		room.mu.Unlock()
	}
	return states
}
