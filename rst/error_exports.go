package rst

import "github.com/capatazlib/go-rst/internal/r"

// ErrKVs is an utility interface used to get key-values out of rst errors
//
// Since: 0.1.0
type ErrKVs interface {
	KVs() map[string]interface{}
}

// ErrNoWaker is returned when a wake is requested and there is no worker
// thread running
//
// Since: 0.1.0
var ErrNoWaker = r.ErrNoWaker

// ErrSubscriberClosed is returned when receiving from a closed guard
//
// Since: 0.1.0
var ErrSubscriberClosed = r.ErrSubscriberClosed

// CreateError wraps an error returned by a Factory while spawning a thread
//
// Since: 0.1.0
type CreateError = r.CreateError

// PanicError is the cause of a Fault shutdown
//
// Since: 0.1.0
type PanicError = r.PanicError

// RestartPolicyExhaustedError is the cause of a RestartPolicyExhausted
// shutdown
//
// Since: 0.1.0
type RestartPolicyExhaustedError = r.RestartPolicyExhaustedError
