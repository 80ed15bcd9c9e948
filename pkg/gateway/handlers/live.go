package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/core/engine"
	"github.com/verdictech/gavel/pkg/gateway/config"
	"github.com/verdictech/gavel/pkg/gateway/lifecycle"
	"github.com/verdictech/gavel/pkg/gateway/live/conns"
	"github.com/verdictech/gavel/pkg/gateway/live/hub"
	"github.com/verdictech/gavel/pkg/gateway/live/protocol"
	"github.com/verdictech/gavel/pkg/gateway/mw"
)

// LiveHandler serves the /v1/live websocket channel. A connection binds
// to exactly one session via a join frame (a later join rebinds it),
// then submits audio turns and may end the session. Turn events go back
// to the submitting connection only; session_ended fans out to every
// connection bound to the session.
type LiveHandler struct {
	Config    config.Config
	Engine    *engine.Engine
	Hub       *hub.Hub
	Conns     *conns.Tracker
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		methodNotAllowed(w, reqID, "GET")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:      core.ErrAPI,
			Message:   "gateway is draining",
			Code:      "draining",
			RequestID: reqID,
		}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:      core.ErrAuthentication,
			Message:   "origin is not allowed",
			Param:     "Origin",
			RequestID: reqID,
		}, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	if h.Config.LiveMaxFrameBytes > 0 {
		ws.SetReadLimit(h.Config.LiveMaxFrameBytes)
	}

	conn := newLiveConn(ws, h.Config)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- conn.writeLoop(ctx)
	}()

	connID := "c_" + randHex(8)
	unregister := h.Conns.Register(connID, conns.Handle{
		Cancel: cancel,
		Warn: func(code, message string) error {
			if !conn.sendPriority(protocol.NewServerError(code, message, false)) {
				return errors.New("outbound queue full")
			}
			return nil
		},
	})
	defer unregister()

	h.readLoop(ctx, conn, reqID)

	if conn.sessionID != "" {
		h.Hub.Leave(conn.sessionID, conn)
	}
	cancel()
	if err := <-writerDone; err != nil {
		h.Logger.Debug("live writer stopped", "conn_id", connID, "error", err)
	}
}

// readLoop dispatches inbound frames until the connection drops. The
// handshake deadline holds until the first successful join; after that
// the idle deadline is refreshed per frame and per pong. Turns are
// processed inline; the per-session exclusive section in the engine
// keeps concurrent connections on the same session from interleaving.
func (h LiveHandler) readLoop(ctx context.Context, conn *liveConn, reqID string) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.Config.LiveHandshakeTimeout))
	conn.ws.SetPongHandler(func(string) error {
		if conn.sessionID != "" {
			conn.refreshReadDeadline()
		}
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if conn.sessionID != "" {
			conn.refreshReadDeadline()
		}
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			unbound := conn.sessionID == ""
			conn.sendPriority(serverErrorFrom(err, unbound))
			if unbound {
				return
			}
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientJoin:
			if !h.handleJoin(ctx, conn, msg, reqID) {
				return
			}
		case protocol.ClientAudioFrame:
			if conn.sessionID == "" {
				conn.sendPriority(protocol.NewServerError(core.CodeNotBound,
					"connection is not bound to a session", true))
				return
			}
			h.handleAudio(ctx, conn, msg)
		case protocol.ClientEndSession:
			if conn.sessionID == "" {
				conn.sendPriority(protocol.NewServerError(core.CodeNotBound,
					"connection is not bound to a session", true))
				return
			}
			h.handleEnd(ctx, conn)
		}
	}
}

// handleJoin binds the connection to the session holding the code. On
// an already-bound connection the new binding overwrites the old one:
// the connection leaves the previous session's broadcast group and
// joins the new session's. A failed join on an unbound connection
// closes the channel; a failed rebind keeps the current binding. The
// return value reports whether the read loop should continue.
func (h LiveHandler) handleJoin(ctx context.Context, conn *liveConn, join protocol.ClientJoin, reqID string) bool {
	result, err := h.Engine.JoinByCode(ctx, join.Code)
	if err != nil {
		unbound := conn.sessionID == ""
		conn.sendPriority(serverErrorFrom(err, unbound))
		return !unbound
	}

	if conn.sessionID != "" && conn.sessionID != result.SessionID {
		h.Hub.Leave(conn.sessionID, conn)
	}
	conn.sessionID = result.SessionID
	h.Hub.Join(result.SessionID, conn)

	conn.sendPriority(protocol.ServerJoined{
		Type:        "joined",
		SessionID:   result.SessionID,
		CaseID:      result.CaseID,
		CaseTitle:   result.CaseTitle,
		CaseSummary: result.CaseSummary,
	})

	h.Logger.Info("live connection joined",
		"session_id", result.SessionID, "request_id", reqID)
	return true
}

func (h LiveHandler) handleAudio(ctx context.Context, conn *liveConn, msg protocol.ClientAudioFrame) {
	audio, err := msg.Audio()
	if err != nil {
		conn.sendPriority(serverErrorFrom(err, false))
		return
	}

	result, err := h.Engine.SubmitTurn(ctx, conn.sessionID, audio, msg.Format)
	if err != nil {
		conn.sendPriority(serverErrorFrom(err, false))
		return
	}
	if result == nil {
		// Silent turn: nothing transcribed, nothing appended.
		return
	}

	frame := protocol.ServerTurn{
		Type:    "turn",
		Text:    result.Text,
		Persona: string(result.Persona),
		Emotion: result.Emotion,
	}
	if len(result.Audio) > 0 {
		frame.AudioB64 = base64.StdEncoding.EncodeToString(result.Audio)
	}
	if !conn.Send(frame) {
		h.Logger.Warn("turn frame dropped, outbound queue full",
			"session_id", conn.sessionID)
	}
}

func (h LiveHandler) handleEnd(ctx context.Context, conn *liveConn) {
	result, err := h.Engine.EndByID(ctx, conn.sessionID)
	if err != nil {
		conn.sendPriority(serverErrorFrom(err, false))
		return
	}

	frame := protocol.ServerSessionEnded{
		Type:        "session_ended",
		Summary:     result.Summary,
		Feedback:    result.Feedback,
		Score:       result.Score,
		ClosingText: result.ClosingText,
	}
	if len(result.ClosingAudio) > 0 {
		frame.ClosingAudioB64 = base64.StdEncoding.EncodeToString(result.ClosingAudio)
	}
	h.Hub.Broadcast(conn.sessionID, frame)
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// serverErrorFrom maps pipeline and decode errors onto the channel's
// explicit error frame.
func serverErrorFrom(err error, closeConn bool) protocol.ServerError {
	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
		return protocol.NewServerError(decodeErr.Code, decodeErr.Message, closeConn)
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		code := coreErr.Code
		if code == "" {
			code = string(coreErr.Type)
		}
		return protocol.NewServerError(code, coreErr.Message, closeConn)
	}

	return protocol.NewServerError("internal", "internal error", closeConn)
}

// liveConn owns one websocket. All writes flow through the writer
// goroutine; Send and sendPriority only enqueue.
type liveConn struct {
	ws  *websocket.Conn
	cfg config.Config

	priority chan any
	normal   chan any

	sessionID string

	closeOnce sync.Once
	closed    chan struct{}
}

func newLiveConn(ws *websocket.Conn, cfg config.Config) *liveConn {
	return &liveConn{
		ws:       ws,
		cfg:      cfg,
		priority: make(chan any, 16),
		normal:   make(chan any, 64),
		closed:   make(chan struct{}),
	}
}

// Send enqueues a normal frame. It never blocks; false means the queue
// was full or the connection is closing.
func (c *liveConn) Send(v any) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.normal <- v:
		return true
	default:
		return false
	}
}

// sendPriority enqueues a frame ahead of any queued normal frames.
func (c *liveConn) sendPriority(v any) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.priority <- v:
		return true
	default:
		return false
	}
}

func (c *liveConn) refreshReadDeadline() {
	if c.cfg.LiveWSReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.LiveWSReadTimeout))
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}
}

// writeLoop is the single writer for the websocket. Priority frames
// preempt normal ones; pings keep the connection alive between turns.
func (c *liveConn) writeLoop(ctx context.Context) error {
	defer c.closeOnce.Do(func() { close(c.closed) })

	pingTicker := time.NewTicker(c.cfg.LiveWSPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flushPriority()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.LiveWSWriteTimeout))
			return nil
		case v := <-c.priority:
			if err := c.writeJSON(v); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			continue
		case v := <-c.priority:
			if err := c.writeJSON(v); err != nil {
				return err
			}
		case v := <-c.normal:
			// A priority frame queued while we waited still goes first.
			select {
			case p := <-c.priority:
				if err := c.writeJSON(p); err != nil {
					return err
				}
			default:
			}
			if err := c.writeJSON(v); err != nil {
				return err
			}
		case <-pingTicker.C:
			deadline := time.Now().Add(c.cfg.LiveWSWriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		}
	}
}

// flushPriority drains a handful of queued priority frames on shutdown
// so a final error or session_ended still reaches the client.
func (c *liveConn) flushPriority() {
	for i := 0; i < 8; i++ {
		select {
		case v := <-c.priority:
			_ = c.writeJSON(v)
		default:
			return
		}
	}
}

func (c *liveConn) writeJSON(v any) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.LiveWSWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
