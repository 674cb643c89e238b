package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"mobtransit.ai/internal/persistence/indexdb"
	"mobtransit.ai/internal/protocol"
	"mobtransit.ai/internal/sim/world"
	"mobtransit.ai/internal/transport/ws"
)

func registerHandlers(mux *http.ServeMux, w *world.World, idx runtimeIndex, wsSrv *ws.Server, logger *log.Logger) {
	worldID := w.ID()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, worldID, w.CurrentTick(), w.Metrics(), wsSrv, idx)
	})

	if envBool("MT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			writeJSON(rw, http.StatusOK, resp)
		}))
		mux.HandleFunc("/admin/v1/nodes", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			nodes, err := w.NodeStatuses(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			if nodes == nil {
				nodes = []protocol.NodeStatus{}
			}
			writeJSON(rw, http.StatusOK, map[string]any{"world_id": worldID, "tick": w.CurrentTick(), "nodes": nodes})
		}))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.RequestSnapshot(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
		}))
		mux.HandleFunc("/admin/v1/events", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if idx == nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "index disabled"})
				return
			}
			q := r.URL.Query()
			f := indexdb.EventFilter{Kind: strings.ToUpper(q.Get("kind")), ActorID: q.Get("actor")}
			if v, err := strconv.Atoi(q.Get("limit")); err == nil {
				f.Limit = v
			}
			if v, err := strconv.ParseUint(q.Get("from_tick"), 10, 64); err == nil {
				f.FromTick = v
			}
			evs, err := idx.RecentEvents(r.Context(), f)
			if err != nil {
				logger.Printf("admin events: %v", err)
				writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			if evs == nil {
				evs = []world.TransitLogEntry{}
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "events": evs})
		}))
	} else {
		logger.Printf("admin endpoints disabled (MT_ENABLE_ADMIN_HTTP=false)")
	}

	mux.HandleFunc("/v1/control", wsSrv.Handler())
}

func writeMetrics(rw http.ResponseWriter, worldID string, tick uint64, m world.WorldMetrics, wsSrv *ws.Server, idx runtimeIndex) {
	if m.Tick != 0 {
		tick = m.Tick
	}

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP mobtransit_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_world_tick gauge\n")
	fmt.Fprintf(rw, "mobtransit_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(rw, "# HELP mobtransit_world_actors Live actors in the world.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_world_actors gauge\n")
	fmt.Fprintf(rw, "mobtransit_world_actors{world=%q} %d\n", worldID, m.Actors)

	fmt.Fprintf(rw, "# HELP mobtransit_nodes Placed transit nodes by kind.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_nodes gauge\n")
	fmt.Fprintf(rw, "mobtransit_nodes{world=%q,kind=%q} %d\n", worldID, "input", m.Inputs)
	fmt.Fprintf(rw, "mobtransit_nodes{world=%q,kind=%q} %d\n", worldID, "output", m.Outputs)

	fmt.Fprintf(rw, "# HELP mobtransit_tickets Tickets held by stage.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_tickets gauge\n")
	fmt.Fprintf(rw, "mobtransit_tickets{world=%q,stage=%q} %d\n", worldID, "buffered", m.Buffered)
	fmt.Fprintf(rw, "mobtransit_tickets{world=%q,stage=%q} %d\n", worldID, "pending", m.Pending)

	fmt.Fprintf(rw, "# HELP mobtransit_inputs_backed_off Inputs currently paused by backoff.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_inputs_backed_off gauge\n")
	fmt.Fprintf(rw, "mobtransit_inputs_backed_off{world=%q} %d\n", worldID, m.BackedOff)

	fmt.Fprintf(rw, "# HELP mobtransit_linking_sessions Open linking sessions.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_linking_sessions gauge\n")
	fmt.Fprintf(rw, "mobtransit_linking_sessions{world=%q} %d\n", worldID, m.Sessions)

	fmt.Fprintf(rw, "# HELP mobtransit_events_total Transit events by kind.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_events_total counter\n")
	fmt.Fprintf(rw, "mobtransit_events_total{world=%q,kind=%q} %d\n", worldID, "CAPTURE", m.Captures)
	fmt.Fprintf(rw, "mobtransit_events_total{world=%q,kind=%q} %d\n", worldID, "TRANSFER", m.Transfers)
	fmt.Fprintf(rw, "mobtransit_events_total{world=%q,kind=%q} %d\n", worldID, "TRANSFER_FAIL", m.TransferFails)
	fmt.Fprintf(rw, "mobtransit_events_total{world=%q,kind=%q} %d\n", worldID, "RELEASE", m.Releases)
	fmt.Fprintf(rw, "mobtransit_events_total{world=%q,kind=%q} %d\n", worldID, "DROP", m.Drops)

	fmt.Fprintf(rw, "# HELP mobtransit_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE mobtransit_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "mobtransit_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "control", m.QueueDepths.Control)
	fmt.Fprintf(rw, "mobtransit_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "nodes", m.QueueDepths.Nodes)

	if wsSrv != nil {
		fmt.Fprintf(rw, "# HELP mobtransit_ws_dropped_events_total Transit events not delivered to slow control clients.\n")
		fmt.Fprintf(rw, "# TYPE mobtransit_ws_dropped_events_total counter\n")
		fmt.Fprintf(rw, "mobtransit_ws_dropped_events_total %d\n", wsSrv.DroppedEvents())
	}
	if idx != nil {
		s := idx.Stats()
		fmt.Fprintf(rw, "# HELP mobtransit_index_queue_depth Current index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE mobtransit_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "mobtransit_index_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP mobtransit_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE mobtransit_index_dropped_total counter\n")
		fmt.Fprintf(rw, "mobtransit_index_dropped_total{kind=%q} %d\n", "transit", s.DropTransitTotal)
		fmt.Fprintf(rw, "mobtransit_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
	}
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
