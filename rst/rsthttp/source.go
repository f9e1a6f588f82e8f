package rsthttp

import (
	"context"

	"github.com/capatazlib/go-rst/rst"
	"github.com/capatazlib/go-rst/rst/rsthttp/api"
)

// Source is the view of a Supervisor the HTTP server works with, regardless
// of the type of its events
type Source interface {
	Status() rst.Status
	Wake() error
	Subscribe() (Subscription, error)
}

// Subscription is a live subscriber of a Source
type Subscription interface {
	Recv(ctx context.Context) (api.Event, error)
	Close() error
}

// Publish adapts a Supervisor into a Source; worker payloads are encoded as
// they are
func Publish[E any](sup *rst.Supervisor[E]) Source {
	return supervisorSource[E]{sup: sup}
}

type supervisorSource[E any] struct {
	sup *rst.Supervisor[E]
}

func (s supervisorSource[E]) Status() rst.Status {
	return s.sup.Status()
}

func (s supervisorSource[E]) Wake() error {
	return s.sup.Wake()
}

func (s supervisorSource[E]) Subscribe() (Subscription, error) {
	guard, err := s.sup.Subscribe()
	if err != nil {
		return nil, err
	}
	return guardSubscription[E]{guard: guard}, nil
}

type guardSubscription[E any] struct {
	guard *rst.SubscriberGuard[E]
}

func (s guardSubscription[E]) Recv(ctx context.Context) (api.Event, error) {
	ev, err := s.guard.Recv(ctx)
	if err != nil {
		return api.Event{}, err
	}
	return toAPIEvent(ev, s.guard.Lagged()), nil
}

func (s guardSubscription[E]) Close() error {
	return s.guard.Close()
}

func toAPIEvent[E any](ev rst.Event[E], lagged uint64) api.Event {
	out := api.Event{
		Tag:        ev.GetTag().String(),
		Generation: ev.GetGeneration(),
		Created:    ev.GetCreated(),
		Lagged:     lagged,
	}
	if payload, ok := ev.Worker(); ok {
		out.Payload = payload
		return out
	}
	if reason, ok := ev.Shutdown(); ok {
		out.Reason = reason.String()
	}
	if err := ev.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}

func toAPIStatus(st rst.Status) api.Status {
	return api.Status{
		Name:       st.Name,
		Generation: st.Generation,
		State:      st.State.String(),
		Receivers:  st.Receivers,
	}
}
