package sabotage

import (
	"errors"
	"net/http"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-rst/sabotage/api"
)

// Server is a HTTP server that allows us to interact with a sabotage DB
type Server struct {
	ll logrus.FieldLogger
	db *DB
}

// NewServer create a new sabotage HTTP management server
func NewServer(ll logrus.FieldLogger, db *DB) *Server {
	return &Server{ll: ll, db: db}
}

// NewHTTPHandler creates a `http.Handler` with endpoints that access the
// sabotage management system.
func (s *Server) NewHTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/targets", s.listTargets).Methods("GET")
	r.HandleFunc("/plans", s.listPlans).Methods("GET")
	r.HandleFunc("/plans", s.insertPlan).Methods("POST")
	r.HandleFunc("/plans/{name}", s.removePlan).Methods("DELETE")
	r.HandleFunc("/plans/{name}/start", s.startPlan).Methods("POST")
	r.HandleFunc("/plans/{name}/stop", s.stopPlan).Methods("POST")
	return r
}

func handleError(resp http.ResponseWriter, err error, code int) {
	data, _ := json.Marshal(api.Error{Error: err.Error()})
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(code)
	_, _ = resp.Write(data)
}

func errorCode(err error) int {
	if errors.Is(err, ErrPlanNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
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

func (s *Server) listTargets(resp http.ResponseWriter, _ *http.Request) {
	targets := s.db.ListTargets()
	out := api.Targets{Targets: make([]api.Target, 0, len(targets))}
	for name, workers := range targets {
		out.Targets = append(out.Targets, api.Target{Name: name, Workers: workers})
	}
	sort.Slice(out.Targets, func(i, j int) bool { return out.Targets[i].Name < out.Targets[j].Name })
	s.writeJSON(resp, "ListTargets", out)
}

func (s *Server) listPlans(resp http.ResponseWriter, _ *http.Request) {
	plans := s.db.ListPlans()
	out := api.Plans{Plans: make([]api.Plan, 0, len(plans))}
	for _, p := range plans {
		out.Plans = append(out.Plans, api.Plan{
			Name:     p.Name,
			Target:   p.Target,
			Fault:    p.Fault.String(),
			Period:   p.Period,
			Attempts: p.Attempts,
			Injected: p.Injected,
			Running:  p.Running,
		})
	}
	s.writeJSON(resp, "ListPlans", out)
}

func (s *Server) insertPlan(resp http.ResponseWriter, req *http.Request) {
	p := api.Plan{}
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		handleError(resp, err, http.StatusBadRequest)
		return
	}
	fault, err := ParseFault(p.Fault)
	if err != nil {
		handleError(resp, err, http.StatusBadRequest)
		return
	}
	err = s.db.InsertPlan(Plan{
		Name:     p.Name,
		Target:   p.Target,
		Fault:    fault,
		Period:   p.Period,
		Attempts: p.Attempts,
	})
	if err != nil {
		handleError(resp, err, http.StatusBadRequest)
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

func (s *Server) removePlan(resp http.ResponseWriter, req *http.Request) {
	if err := s.db.RemovePlan(mux.Vars(req)["name"]); err != nil {
		handleError(resp, err, errorCode(err))
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

func (s *Server) startPlan(resp http.ResponseWriter, req *http.Request) {
	if err := s.db.StartPlan(mux.Vars(req)["name"]); err != nil {
		handleError(resp, err, errorCode(err))
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

func (s *Server) stopPlan(resp http.ResponseWriter, req *http.Request) {
	if err := s.db.StopPlan(mux.Vars(req)["name"]); err != nil {
		handleError(resp, err, errorCode(err))
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}
