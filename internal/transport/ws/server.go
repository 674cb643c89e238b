package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mobtransit.ai/internal/protocol"
	"mobtransit.ai/internal/sim/world"
	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
)

// World is the part of the simulation the control channel drives.
type World interface {
	ID() string
	Control(ctx context.Context, req protocol.ControlRequest) (protocol.ControlResponse, error)
	SubscribeEvents(fn func(runtime.Event)) (unsubscribe func())
}

type Server struct {
	world World
	log   *log.Logger

	upgrader      websocket.Upgrader
	controlWait   time.Duration
	droppedEvents atomic.Uint64
}

func NewServer(w World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		controlWait: 5 * time.Second,
	}
	return s
}

// DroppedEvents counts transit events not delivered to slow clients.
func (s *Server) DroppedEvents() uint64 { return s.droppedEvents.Load() }

// Handler serves /v1/control. The optional "player" query parameter names the
// initiator for requests that omit one; "events=0" turns off the event feed.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		player := strings.TrimSpace(r.URL.Query().Get("player"))
		wantEvents := r.URL.Query().Get("events") != "0"

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 64)

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

		if wantEvents {
			unsubscribe := s.world.SubscribeEvents(func(ev runtime.Event) {
				b, err := json.Marshal(transitEventMsg(ev))
				if err != nil {
					return
				}
				select {
				case out <- b:
				default:
					s.droppedEvents.Add(1)
				}
			})
			defer unsubscribe()
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			resp := s.handleMessage(ctx, msg, player)
			b, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}

		// Linking sessions belong to the connection.
		if player != "" {
			cctx, ccancel := context.WithTimeout(context.Background(), s.controlWait)
			_, _ = s.world.Control(cctx, protocol.ControlRequest{Type: protocol.TypeCancelLink, Initiator: player})
			ccancel()
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, msg []byte, player string) protocol.ControlResponse {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ControlResponse{Type: protocol.TypeResult, Code: protocol.ErrProtoBadRequest, Message: "malformed json"}
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		return protocol.ControlResponse{Type: protocol.TypeResult, Code: protocol.ErrProtoBadRequest, Message: "bad protocol_version"}
	}
	if !protocol.IsControlType(base.Type) {
		return protocol.ControlResponse{Type: protocol.TypeResult, Code: protocol.ErrProtoBadRequest, Message: "unknown type " + base.Type}
	}
	var req protocol.ControlRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return protocol.ControlResponse{Type: protocol.TypeResult, Code: protocol.ErrProtoBadRequest, Message: err.Error()}
	}
	if req.Initiator == "" {
		req.Initiator = player
	}
	if req.WorldID == "" {
		req.WorldID = s.world.ID()
	}

	cctx, cancel := context.WithTimeout(ctx, s.controlWait)
	defer cancel()
	resp, err := s.world.Control(cctx, req)
	switch {
	case err == nil, errors.Is(err, world.ErrWorldBusy):
		return resp
	default:
		s.log.Printf("control %s from %s: %v", req.Type, req.Initiator, err)
		return protocol.ErrorResponse(req, protocol.ErrWorldBusy, err.Error())
	}
}

func transitEventMsg(ev runtime.Event) protocol.TransitEventMsg {
	return protocol.TransitEventMsg{
		Type:      protocol.TypeTransitEvent,
		Tick:      ev.Tick,
		Kind:      string(ev.Kind),
		Node:      protocol.NodeRef{WorldID: ev.Node.WorldID, Pos: ev.Node.Pos.ToArray()},
		Pos:       ev.Pos.ToArray(),
		ActorType: ev.ActorType,
		ActorID:   ev.ActorID,
		Backoff:   ev.Backoff,
		Reason:    ev.Reason,
	}
}
