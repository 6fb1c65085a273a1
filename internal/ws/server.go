package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be < pongWait
	maxMessageSize = 4096
)

// timeFormat renders e.g. "03:04 PM"; every broadcast carries a timestamp
// in this shape, in the server's configured fixed timezone.
const timeFormat = "03:04 PM"

var errMissingRoom = errors.New("missing_room")

// Options carries the externally supplied knobs the WS layer needs.
type Options struct {
	AllowedOrigins []string
	TimeLocation   string
	AiTimeout      time.Duration
}

type WsServer struct {
	hub      *Hub
	router   *Router
	bridge   *aiBridge
	upgrader websocket.Upgrader
	loc      *time.Location
}

func NewWsServer(h *Hub, gen replyGenerator, opts Options) *WsServer {
	loc, err := time.LoadLocation(opts.TimeLocation)
	if err != nil {
		zap.L().Warn("ws.unknown_time_location", zap.String("location", opts.TimeLocation), zap.Error(err))
		loc = time.UTC
	}

	oc := newOriginChecker(opts.AllowedOrigins)
	srv := &WsServer{
		hub:    h,
		router: NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     oc.check,
		},
		loc: loc,
	}
	srv.bridge = newAIBridge(gen, h, opts.AiTimeout, srv.timestamp)
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}

	// ─────────────────── Client connected ─────────────────────
	id := uuid.NewString()
	wsConn := &clientConn{rawConn: rawConn}
	s.hub.Register(id, wsConn)

	go s.reader(id, wsConn)
	go s.pinger(wsConn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 join_room ------------------------------------------------------------
	Register(
		s.router,
		"join_room",
		func(_ context.Context, cc *ConnContext, req JoinRoomRequest) error {
			if req.Room == "" {
				return errMissingRoom
			}
			s.hub.SetDisplayName(cc.ConnID, req.DisplayName)
			s.hub.Join(req.Room, cc.ConnID)
			zap.L().Info("ws.join_room", zap.String("conn_id", cc.ConnID), zap.String("room", req.Room))
			return nil
		},
	)

	// 🔹 leave_room -----------------------------------------------------------
	Register(
		s.router,
		"leave_room",
		func(_ context.Context, cc *ConnContext, req LeaveRoomRequest) error {
			if req.Room == "" {
				return errMissingRoom
			}
			s.hub.Leave(req.Room, cc.ConnID)
			zap.L().Info("ws.leave_room", zap.String("conn_id", cc.ConnID), zap.String("room", req.Room))
			return nil
		},
	)

	// 🔹 get_members ----------------------------------------------------------
	Register(
		s.router,
		"get_members",
		func(_ context.Context, cc *ConnContext, req GetMembersRequest) error {
			if req.Room == "" {
				return errMissingRoom
			}
			s.hub.SendTo(cc.ConnID, outEnvelope{
				Event: "members_list",
				Body:  s.hub.Members(req.Room),
			})
			return nil
		},
	)

	// 🔹 send_message ---------------------------------------------------------
	// The room name is taken at face value: a sender that never joined the
	// room still reaches its members, matching the behaviour existing
	// clients were built against.
	Register(
		s.router,
		"send_message",
		func(_ context.Context, cc *ConnContext, req SendMessageRequest) error {
			if req.Room == "" {
				return errMissingRoom
			}
			s.hub.Broadcast(req.Room, "", outEnvelope{
				Event: "receive_message",
				Body: ChatMessage{
					Author:  req.Author,
					Message: req.Message,
					Time:    s.timestamp(),
				},
			})
			return nil
		},
	)

	// 🔹 typing / stop_typing -------------------------------------------------
	Register(
		s.router,
		"typing",
		func(_ context.Context, cc *ConnContext, req TypingRequest) error {
			if req.Room == "" {
				return errMissingRoom
			}
			s.hub.Broadcast(req.Room, cc.ConnID, outEnvelope{Event: "typing", Body: req.Author})
			return nil
		},
	)
	Register(
		s.router,
		"stop_typing",
		func(_ context.Context, cc *ConnContext, req TypingRequest) error {
			if req.Room == "" {
				return errMissingRoom
			}
			s.hub.Broadcast(req.Room, cc.ConnID, outEnvelope{Event: "stop_typing"})
			return nil
		},
	)

	// 🔹 send_ai_message ------------------------------------------------------
	Register(
		s.router,
		"send_ai_message",
		func(ctx context.Context, cc *ConnContext, req AiMessageRequest) error {
			s.bridge.handle(ctx, cc.ConnID, req.Message)
			return nil
		},
	)
}

// timestamp stamps broadcasts with the current wall-clock time in the
// configured fixed timezone.
func (s *WsServer) timestamp() string {
	return time.Now().In(s.loc).Format(timeFormat)
}

func (s *WsServer) reader(id string, conn *clientConn) {
	defer s.hub.Unregister(id)

	conn.rawConn.SetReadLimit(maxMessageSize)
	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{ConnID: id}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Warn("ws.read", zap.String("conn_id", id), zap.Error(err))
			}
			return // client closed or errored
		}

		// A bad event never tears the connection down; it is logged and the
		// next frame is read.
		if err := s.router.dispatch(context.Background(), cc, env); err != nil {
			zap.L().Warn("ws.event_dropped",
				zap.String("conn_id", id),
				zap.String("event", env.Event),
				zap.Error(err),
			)
		}
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			_ = conn.close()
			return
		}
	}
}
