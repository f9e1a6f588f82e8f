package r

import (
	"github.com/capatazlib/go-rst/internal/b"
)

// settings contains the configuration of a Supervisor
type settings struct {
	notifiers       Notifiers
	channelCapacity int
	policy          *RestartPolicy
}

func defaultSettings() settings {
	return settings{
		channelCapacity: b.DefaultCapacity,
	}
}

// Opt is used to configure a Supervisor
type Opt func(*settings)

// WithNotifier registers a Notifier that receives the lifecycle notifications
// of the Supervisor. It may be given multiple times.
func WithNotifier(notifier Notifier) Opt {
	return func(s *settings) {
		if notifier != nil {
			s.notifiers = append(s.notifiers, notifier)
		}
	}
}

// WithChannelCapacity sets how many events each subscriber buffers before it
// starts losing the oldest ones.
func WithChannelCapacity(capacity int) Opt {
	return func(s *settings) {
		s.channelCapacity = capacity
	}
}

// WithRestartPolicy overrides the RestartPolicy reported by the Factory
func WithRestartPolicy(policy RestartPolicy) Opt {
	return func(s *settings) {
		p := policy
		s.policy = &p
	}
}
