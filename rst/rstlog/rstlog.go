// Package rstlog reports Supervisor notifications through logrus
package rstlog

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-rst/rst"
)

// NewLogger builds a logrus Logger that writes to the given output with the
// given level and format ("json" or "text")
func NewLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.Out = out
	log.Level = lvl

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}

func levelFor(tag rst.NotificationTag) logrus.Level {
	switch tag {
	case rst.WorkerFaulted, rst.RestartExhausted, rst.SpawnFailed:
		return logrus.ErrorLevel
	case rst.RestartFailed, rst.WakeFailed:
		return logrus.WarnLevel
	case rst.ThreadSpawned, rst.ThreadStopped, rst.WorkerRestarted:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// NewNotifier returns a Notifier that logs every notification on the given
// logger. Errors that carry key-values (see rst.ErrKVs) get them merged into
// the log fields.
func NewNotifier(log logrus.FieldLogger) rst.Notifier {
	return func(n rst.Notification) {
		ll := log.WithFields(logrus.Fields{
			"supervisor": n.GetSupervisorName(),
			"generation": n.GetGeneration(),
			"receivers":  n.GetReceivers(),
			"created_at": n.GetCreated(),
		})
		if id := n.GetSubscriberID(); id != "" {
			ll = ll.WithField("subscriber", id)
		}
		if attempt := n.GetAttempt(); attempt > 0 {
			ll = ll.WithField("attempt", attempt)
		}
		if err := n.Err(); err != nil {
			ll = ll.WithError(err)
			if kvErr, ok := err.(rst.ErrKVs); ok {
				ll = ll.WithFields(logrus.Fields(kvErr.KVs()))
			}
		}
		ll.Log(levelFor(n.GetTag()), n.GetTag().String())
	}
}
