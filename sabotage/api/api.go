package api

import "time"

// Error represents an API error
type Error struct {
	Error string `json:"error"`
}

// Target represents a supervisor that can be sabotaged
type Target struct {
	Name    string `json:"name"`
	Workers uint32 `json:"workers"`
}

// Targets represents a list of sabotage targets
type Targets struct {
	Targets []Target `json:"targets"`
}

// Plan represents a sabotage plan
type Plan struct {
	Name     string        `json:"name"`
	Target   string        `json:"target"`
	Fault    string        `json:"fault"`
	Period   time.Duration `json:"period"`
	Attempts uint32        `json:"attempts"`
	Injected uint32        `json:"injected"`
	Running  bool          `json:"running"`
}

// Plans represents a list of sabotage plans
type Plans struct {
	Plans []Plan `json:"plans"`
}
