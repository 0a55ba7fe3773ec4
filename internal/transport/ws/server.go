package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cyberfarm.ai/internal/persistence/userstore"
	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/session"
)

// Server upgrades /ws/run connections and gives each one its own session.
type Server struct {
	cfg       session.Config
	users     userstore.Store
	validator *protocol.Validator
	log       *log.Logger

	// ReadTimeout bounds how long a client may stay silent.
	ReadTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(cfg session.Config, users userstore.Store, logger *log.Logger) (*Server, error) {
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = userstore.Stub{}
	}
	cfg.Logger = logger
	s := &Server{
		cfg:         cfg,
		users:       users,
		validator:   v,
		log:         logger,
		ReadTimeout: 10 * time.Minute,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := s.cfg
		if userID := strings.TrimSpace(r.URL.Query().Get("user_id")); userID != "" {
			snap, ok, err := s.users.Load(ctx, userID)
			if err != nil {
				s.log.Printf("ws: load user %s: %v", userID, err)
			} else if ok {
				cfg.Initial = snap
			}
		}

		id := uuid.Must(uuid.NewV7()).String()
		out := make(chan []byte, 64)
		inbox := make(chan []byte, 16)
		sess := session.New(id, cfg, out)
		s.log.Printf("ws: session %s connected from %s", id, r.RemoteAddr)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = sess.Run(ctx, inbox)
		}()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if _, err := s.validator.Inbound(msg); err != nil {
				s.reject(ctx, out, err)
				continue
			}
			select {
			case inbox <- msg:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		<-done
		s.log.Printf("ws: session %s closed", id)
	}
}

func (s *Server) reject(ctx context.Context, out chan<- []byte, cause error) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:     protocol.TypeError,
		Message:  "bad request: " + cause.Error(),
		Code:     protocol.ErrProtoBadRequest,
		Category: "protocol",
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	case <-ctx.Done():
	}
}
