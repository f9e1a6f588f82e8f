// Package rsthttp exposes supervisors over HTTP: their status, a websocket
// stream of their events, and the Prometheus metrics endpoint
package rsthttp

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/capatazlib/go-rst/rst"
	"github.com/capatazlib/go-rst/rst/rsthttp/api"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Server serves the state and events of a set of supervisors
type Server struct {
	ll       logrus.FieldLogger
	gatherer prometheus.Gatherer
	sources  map[string]Source
	mounts   []mount
	upgrader websocket.Upgrader
}

type mount struct {
	prefix  string
	handler http.Handler
}

// NewServer creates a Server for the given sources; each source is exposed
// under the name of its supervisor. When gatherer is nil, the /metrics
// endpoint is not registered.
func NewServer(ll logrus.FieldLogger, gatherer prometheus.Gatherer, sources ...Source) *Server {
	server := &Server{
		ll:       ll,
		gatherer: gatherer,
		sources:  make(map[string]Source, len(sources)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, src := range sources {
		server.sources[src.Status().Name] = src
	}
	return server
}

// Mount serves the given handler under a path prefix, next to the supervisor
// endpoints; the prefix is stripped from the request path.
func (s *Server) Mount(prefix string, h http.Handler) {
	s.mounts = append(s.mounts, mount{prefix: prefix, handler: h})
}

// NewHTTPHandler creates a `http.Handler` with endpoints that access the
// supervisors.
func (s *Server) NewHTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/supervisors", s.listSupervisors).Methods("GET")
	r.HandleFunc("/supervisors/{name}", s.getSupervisor).Methods("GET")
	r.HandleFunc("/supervisors/{name}/wake", s.wakeSupervisor).Methods("POST")
	r.HandleFunc("/supervisors/{name}/events", s.streamEvents).Methods("GET")
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	for _, m := range s.mounts {
		r.PathPrefix(m.prefix).Handler(http.StripPrefix(m.prefix, m.handler))
	}
	return r
}

// Run serves the HTTP handler on the given server until the context is done
func (s *Server) Run(ctx context.Context, server *http.Server) error {
	if server.Addr == "" {
		return errors.New("invalid input: server's Address is empty")
	}
	if server.Handler != nil {
		return errors.New("invalid input: server's http.Handler is already initialized")
	}
	server.Handler = s.NewHTTPHandler()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func handleError(resp http.ResponseWriter, err error, code int) {
	data, _ := json.Marshal(api.Error{Error: err.Error()})
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(code)
	_, _ = resp.Write(data)
}

func (s *Server) writeJSON(resp http.ResponseWriter, op string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		handleError(resp, err, http.StatusInternalServerError)
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	_, err = resp.Write(data)
	if err != nil {
		s.ll.WithError(err).Warnf("%s: failed to write response to client", op)
	}
}

var errUnknownSupervisor = errors.New("unknown supervisor")

func (s *Server) lookup(resp http.ResponseWriter, req *http.Request) (Source, bool) {
	name := mux.Vars(req)["name"]
	src, ok := s.sources[name]
	if !ok {
		handleError(resp, errUnknownSupervisor, http.StatusNotFound)
	}
	return src, ok
}

func (s *Server) listSupervisors(resp http.ResponseWriter, _ *http.Request) {
	out := api.Statuses{Supervisors: make([]api.Status, 0, len(s.sources))}
	for _, src := range s.sources {
		out.Supervisors = append(out.Supervisors, toAPIStatus(src.Status()))
	}
	sort.Slice(out.Supervisors, func(i, j int) bool {
		return out.Supervisors[i].Name < out.Supervisors[j].Name
	})
	s.writeJSON(resp, "ListSupervisors", out)
}

func (s *Server) getSupervisor(resp http.ResponseWriter, req *http.Request) {
	src, ok := s.lookup(resp, req)
	if !ok {
		return
	}
	s.writeJSON(resp, "GetSupervisor", toAPIStatus(src.Status()))
}

func (s *Server) wakeSupervisor(resp http.ResponseWriter, req *http.Request) {
	src, ok := s.lookup(resp, req)
	if !ok {
		return
	}
	err := src.Wake()
	if errors.Is(err, rst.ErrNoWaker) {
		handleError(resp, err, http.StatusConflict)
		return
	}
	if err != nil {
		handleError(resp, err, http.StatusInternalServerError)
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

// streamEvents subscribes to the supervisor for as long as the websocket
// connection is open; the subscription is released on disconnect.
func (s *Server) streamEvents(resp http.ResponseWriter, req *http.Request) {
	src, ok := s.lookup(resp, req)
	if !ok {
		return
	}

	sub, err := src.Subscribe()
	if err != nil {
		handleError(resp, err, http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(resp, req, nil)
	if err != nil {
		// the upgrader already replied to the client
		s.ll.WithError(err).Warn("StreamEvents: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	go s.readPump(conn, cancel)
	go s.pingPump(ctx, conn)

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			// context cancelled or subscription closed
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.ll.WithError(err).Error("StreamEvents: failed to encode event")
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump discards client messages; its only purpose is to detect when the
// client goes away
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.ll.WithError(err).Debug("StreamEvents: unexpected websocket close")
			}
			return
		}
	}
}

func (s *Server) pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
