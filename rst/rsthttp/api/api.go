package api

import "time"

// Error represents an API error
type Error struct {
	Error string `json:"error"`
}

// Status represents the state of a supervisor
type Status struct {
	Name       string `json:"name"`
	Generation uint64 `json:"generation"`
	State      string `json:"state"`
	Receivers  int    `json:"receivers"`
}

// Statuses represents a list of supervisor states
type Statuses struct {
	Supervisors []Status `json:"supervisors"`
}

// Event represents an event streamed to a websocket subscriber. Worker events
// carry a payload; shutdown events carry a reason and an error.
type Event struct {
	Tag        string      `json:"tag"`
	Generation uint64      `json:"generation"`
	Created    time.Time   `json:"created"`
	Payload    interface{} `json:"payload,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Error      string      `json:"error,omitempty"`
	Lagged     uint64      `json:"lagged,omitempty"`
}
