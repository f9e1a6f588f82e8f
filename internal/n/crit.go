package n

import (
	"errors"

	"github.com/capatazlib/go-rst/internal/r"
)

// NotificationCriteria is an utility that allows us to specify a matching
// criteria to a specific supervisor notification
type NotificationCriteria func(r.Notification) bool

// NAnd joins a slice of NotificationCriteria with an and statement
func NAnd(crits ...NotificationCriteria) NotificationCriteria {
	return func(n r.Notification) bool {
		result := true
		for _, crit := range crits {
			result = result && crit(n)
			if !result {
				return result
			}
		}
		return result
	}
}

// NOr joins a slice of NotificationCriteria with an or statement
func NOr(crits ...NotificationCriteria) NotificationCriteria {
	return func(n r.Notification) bool {
		result := false
		for _, crit := range crits {
			result = result || crit(n)
			if result {
				return result
			}
		}
		return result
	}
}

// NNot negates the result from a given NotificationCriteria
func NNot(crit NotificationCriteria) NotificationCriteria {
	return func(n r.Notification) bool {
		return !crit(n)
	}
}

// NHasTag returns true if the notification has any of the given tags
func NHasTag(tags ...r.NotificationTag) NotificationCriteria {
	return func(n r.Notification) bool {
		for _, tag := range tags {
			if n.GetTag() == tag {
				return true
			}
		}
		return false
	}
}

// NHasSupervisorName returns true if the notification was emitted by the
// supervisor with the given name
func NHasSupervisorName(name string) NotificationCriteria {
	return func(n r.Notification) bool {
		return n.GetSupervisorName() == name
	}
}

// NHasGeneration returns true if the notification was emitted by the given
// thread generation
func NHasGeneration(generation uint64) NotificationCriteria {
	return func(n r.Notification) bool {
		return n.GetGeneration() == generation
	}
}

// NIsFailure returns true if the notification reports an error of any kind
var NIsFailure NotificationCriteria = NHasTag(
	r.SpawnFailed,
	r.WakeFailed,
	r.RestartFailed,
	r.RestartExhausted,
	r.WorkerFaulted,
)

// NIsFault returns true if the notification represents a worker panic
var NIsFault NotificationCriteria = NHasTag(r.WorkerFaulted)

// NIsRestartExhausted returns true if the notification represents a restart
// policy that was surpassed
var NIsRestartExhausted NotificationCriteria = func(n r.Notification) bool {
	if n.GetTag() == r.RestartExhausted {
		return errors.Is(n.Err(), &r.RestartPolicyExhaustedError{})
	}
	return false
}

// SelectNotificationByCriteria forwards Notification records that match
// positively the given criteria to the given Notifier
func SelectNotificationByCriteria(crit NotificationCriteria, notifier r.Notifier) r.Notifier {
	return func(n r.Notification) {
		if crit(n) {
			notifier(n)
		}
	}
}
