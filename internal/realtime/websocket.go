package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/identity"
	"github.com/ashureev/hudong/internal/session"
	"github.com/ashureev/hudong/internal/store"
	"github.com/coder/websocket"
)

const (
	writeTimeout = 5 * time.Second
	outboxSize   = 32
)

// Config wires a Handler.
type Config struct {
	Slot          store.Slot
	Key           string
	Bus           session.Broadcaster
	Default       domain.SessionState
	Provider      control.SlideProvider
	Ignored       *atomic.Int64
	Connections   *Connections

	// Registry, when set, takes the answers of identified devices so every
	// connection and the REST surface tally through one store.
	Registry *control.Registry

	AllowedOrigin string
	IsDev         bool
	Logger        *slog.Logger
}

// Handler upgrades requests to WebSocket session views.
type Handler struct {
	cfg Config
}

// NewHandler creates a new WebSocket handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Connections == nil {
		cfg.Connections = NewConnections()
	}
	if cfg.Ignored == nil {
		cfg.Ignored = new(atomic.Int64)
	}
	return &Handler{cfg: cfg}
}

// Connections exposes the live connection counter.
func (h *Handler) Connections() *Connections { return h.cfg.Connections }

// inbound is a client command.
type inbound struct {
	Type      string          `json:"type"`
	Session   json.RawMessage `json:"session,omitempty"`
	Direction string          `json:"direction,omitempty"`
	Index     *int            `json:"index,omitempty"`
	SlideID   string          `json:"slideId,omitempty"`
	Value     string          `json:"value,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	SlideType string          `json:"slideType,omitempty"`
}

// outbound is a server message.
type outbound struct {
	Type    string               `json:"type"`
	Session *domain.SessionState `json:"session,omitempty"`
	Error   string               `json:"error,omitempty"`
}

var errForbidden = errors.New("command not allowed for participants")

// conn is one live view.
type conn struct {
	ws          *websocket.Conn
	role        Role
	store       *session.Store
	presenter   *control.Presenter
	participant *control.Participant
	respond     func(ctx context.Context, slideID, value string) error
	view        func() domain.SessionState
	out         chan outbound
	logger      *slog.Logger
}

// send queues msg without blocking. A slow client loses updates, not the
// connection; the next state message carries the whole document anyway.
func (c *conn) send(msg outbound) {
	select {
	case c.out <- msg:
	default:
		c.logger.Warn("WebSocket outbox full, dropping message", "type", msg.Type)
	}
}

func (c *conn) sendState(kind string, s domain.SessionState) {
	c.send(outbound{Type: kind, Session: &s})
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := ParseRole(r.URL.Query().Get("role"))
	deviceID := identity.DeviceIDFromContext(r.Context())
	h.cfg.Logger.Info("WebSocket connection request", "role", string(role), "device_id", deviceID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.cfg.Logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.cfg.Logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	st := session.New(h.cfg.Slot, h.cfg.Key, h.cfg.Bus, h.cfg.Default, h.cfg.Logger)
	defer st.Close()

	logger := h.cfg.Logger.With("context_id", st.ID(), "role", string(role))
	c := &conn{
		ws:     ws,
		role:   role,
		store:  st,
		out:    make(chan outbound, outboxSize),
		logger: logger,
	}
	c.participant = control.NewParticipant(st, h.cfg.Ignored, logger)
	c.respond = c.participant.Submit
	c.view = st.Current
	if reg := h.cfg.Registry; reg != nil && deviceID != "" {
		c.respond = func(ctx context.Context, slideID, value string) error {
			return reg.Get(deviceID).Submit(ctx, slideID, value)
		}
		c.view = reg.Current
	}
	if role == RolePresenter {
		c.presenter = control.NewPresenter(st, h.cfg.Provider, logger)
	}

	h.cfg.Connections.Register(role, st.ID())
	defer h.cfg.Connections.Unregister(role, st.ID())

	initial, err := st.Initialize(ctx)
	if err != nil {
		logger.Warn("Session initialize degraded", "error", err)
	}
	c.participant.Observe(initial)

	unsubscribe := st.OnExternalUpdate(func(s domain.SessionState) {
		c.participant.Observe(s)
		c.sendState("update", s)
	})
	defer unsubscribe()

	c.sendState("state", initial)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	wg.Wait()
	logger.Info("WebSocket session ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	h.cfg.Logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("Failed to encode message", "type", msg.Type, "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("WebSocket write error", "error", err)
				}
				return
			}
		}
	}
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(outbound{Type: "error", Error: "malformed message"})
			continue
		}

		if msg.Type == "ping" {
			c.send(outbound{Type: "pong"})
			continue
		}
		if err := c.dispatch(ctx, msg); err != nil {
			c.send(outbound{Type: "error", Error: err.Error()})
		}
		// An answer may have landed in the registry's store before this
		// connection's store hears about it.
		if msg.Type == "respond" {
			c.sendState("state", c.view())
		} else {
			c.sendState("state", c.store.Current())
		}
	}
}

func (c *conn) dispatch(ctx context.Context, msg inbound) error {
	if msg.Type == "respond" {
		return c.respond(ctx, msg.SlideID, msg.Value)
	}
	if c.presenter == nil {
		return errForbidden
	}

	switch msg.Type {
	case "commit":
		s, err := domain.Decode(msg.Session)
		if err != nil {
			return err
		}
		return c.presenter.Replace(ctx, s)
	case "advance":
		dir, err := control.ParseDirection(msg.Direction)
		if err != nil {
			return err
		}
		_, err = c.presenter.Advance(ctx, dir)
		return err
	case "jump":
		if msg.Index == nil {
			return errors.New("index is required")
		}
		_, err := c.presenter.JumpTo(ctx, *msg.Index)
		return err
	case "generate":
		t, err := domain.ParseSlideType(msg.SlideType)
		if err != nil {
			return err
		}
		_, err = c.presenter.GenerateSlide(ctx, msg.Topic, t)
		return err
	}
	return errors.New("unknown message type " + msg.Type)
}
