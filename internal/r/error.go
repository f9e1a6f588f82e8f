package r

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoWaker is returned when a wake is requested and there is no worker
// thread running
var ErrNoWaker = errors.New("no worker thread is running")

// ErrSubscriberClosed is returned when receiving from a SubscriberGuard that
// was closed already
var ErrSubscriberClosed = errors.New("subscriber guard is closed")

var errNilCapability = errors.New("factory returned a nil worker or waker")

// CreateError wraps an error returned by Factory.Create when a subscription
// attempted to spawn a new worker thread.
type CreateError struct {
	supName    string
	generation uint64
	err        error
}

// Unwrap returns the error returned by Factory.Create
func (ce *CreateError) Unwrap() error {
	return ce.err
}

// GetSupervisorName returns the name of the supervisor that failed to spawn
func (ce *CreateError) GetSupervisorName() string {
	return ce.supName
}

// KVs returns a data bag map that may be used in structured logging
func (ce *CreateError) KVs() map[string]interface{} {
	kvs := make(map[string]interface{})
	kvs["supervisor.name"] = ce.supName
	kvs["supervisor.generation"] = ce.generation
	if ce.err != nil {
		kvs["supervisor.create.error"] = ce.err.Error()
	}
	return kvs
}

// Error returns an error message
func (ce *CreateError) Error() string {
	return fmt.Sprintf("supervisor %s could not create worker: %v", ce.supName, ce.err)
}

// PanicError is reported when a Worker panics inside PollOnce (or when a
// Factory panics while restarting). It is the cause of a Fault shutdown.
type PanicError struct {
	value interface{}
	stack []byte
}

func newPanicError(value interface{}, stack []byte) *PanicError {
	return &PanicError{value: value, stack: stack}
}

// Value returns the value given to panic
func (pe *PanicError) Value() interface{} {
	return pe.value
}

// Stack returns the stack trace captured when the panic was recovered
func (pe *PanicError) Stack() string {
	return string(pe.stack)
}

// Unwrap returns the panic value when it is an error
func (pe *PanicError) Unwrap() error {
	if err, ok := pe.value.(error); ok {
		return err
	}
	return nil
}

// KVs returns a data bag map that may be used in structured logging
func (pe *PanicError) KVs() map[string]interface{} {
	kvs := make(map[string]interface{})
	kvs["worker.panic.value"] = fmt.Sprintf("%v", pe.value)
	kvs["worker.panic.stack"] = string(pe.stack)
	return kvs
}

// Error returns an error message
func (pe *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", pe.value)
}

// RestartPolicyExhaustedError is reported when a worker requested more
// restarts than its RestartPolicy allows. It is the cause of a
// RestartPolicyExhausted shutdown.
type RestartPolicyExhaustedError struct {
	supName    string
	generation uint64
	attempts   uint32
	window     time.Duration
	lastErr    error
}

// Attempts returns the number of restart attempts performed by the thread
func (ee *RestartPolicyExhaustedError) Attempts() uint32 {
	return ee.attempts
}

// Unwrap returns the last Factory.Create error, if the last restart attempt
// failed
func (ee *RestartPolicyExhaustedError) Unwrap() error {
	return ee.lastErr
}

// KVs returns a data bag map that may be used in structured logging
func (ee *RestartPolicyExhaustedError) KVs() map[string]interface{} {
	kvs := make(map[string]interface{})
	kvs["supervisor.name"] = ee.supName
	kvs["supervisor.generation"] = ee.generation
	kvs["supervisor.restart.attempts"] = ee.attempts
	kvs["supervisor.restart.window"] = ee.window.String()
	if ee.lastErr != nil {
		kvs["supervisor.restart.last_error"] = ee.lastErr.Error()
	}
	return kvs
}

// Error returns an error message
func (ee *RestartPolicyExhaustedError) Error() string {
	return fmt.Sprintf("restart policy exhausted after %d attempts", ee.attempts)
}

// Is allows errors.Is to match any RestartPolicyExhaustedError
func (ee *RestartPolicyExhaustedError) Is(target error) bool {
	_, ok := target.(*RestartPolicyExhaustedError)
	return ok
}
