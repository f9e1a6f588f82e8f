package rtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/capatazlib/go-rst/internal/r"
)

func renderNotifications(ns []r.Notification) string {
	var builder strings.Builder
	for i, n := range ns {
		builder.WriteString(fmt.Sprintf("  %3d: %s\n", i, n.String()))
	}
	return builder.String()
}

// verifyExactMatch is an utility function that checks the input slice of
// NotificationP predicate match 1 to 1 with a given list of notifications.
func verifyExactMatch(preds []NotificationP, given []r.Notification) error {
	if len(preds) != len(given) {
		return fmt.Errorf(
			"Expecting exact match, but length is not the same:\nwant: %d\ngiven: %d\nnotifications:\n%s",
			len(preds),
			len(given),
			renderNotifications(given),
		)
	}
	for i, pred := range preds {
		if !pred.Call(given[i]) {
			return fmt.Errorf(
				"Expecting exact match, but entry %d did not match:\ncriteria: %s\nnotification: %s\nnotifications:\n%s",
				i,
				pred.String(),
				given[i].String(),
				renderNotifications(given),
			)
		}
	}
	return nil
}

// AssertExactMatch is an assertion that checks the input slice of
// NotificationP predicate match 1 to 1 with a given list of notifications.
func AssertExactMatch(t *testing.T, ns []r.Notification, preds []NotificationP) {
	t.Helper()
	err := verifyExactMatch(preds, ns)
	if err != nil {
		t.Error(err)
	}
}

// verifyPartialMatch matches (in order) a list of NotificationP predicates to
// a list of notifications; it is ok to skip notifications in between matches.
// It returns all predicates that didn't match.
func verifyPartialMatch(preds []NotificationP, given []r.Notification) []NotificationP {
	for len(preds) > 0 {
		if len(given) == 0 {
			return preds
		}
		if preds[0].Call(given[0]) {
			preds = preds[1:]
		}
		given = given[1:]
	}
	return preds
}

// AssertPartialMatch is an assertion that matches in order a list of
// NotificationP predicates to a list of notifications. The notifications do
// not need to be a one to one match.
func AssertPartialMatch(t *testing.T, ns []r.Notification, preds []NotificationP) {
	t.Helper()
	pendingPreds := verifyPartialMatch(preds, ns)

	if len(pendingPreds) > 0 {
		pendingPredStrs := make([]string, 0, len(pendingPreds))
		for _, pred := range pendingPreds {
			pendingPredStrs = append(pendingPredStrs, pred.String())
		}
		t.Errorf(
			"Last match(es) didn't work - pending count: %d:\n%s\nInput notifications:\n%s",
			len(pendingPreds),
			strings.Join(pendingPredStrs, "\n"),
			renderNotifications(ns),
		)
	}
}

// RecvWithin receives the next event from the given guard, failing the test
// when nothing arrives before the timeout
func RecvWithin[E any](t *testing.T, guard *r.SubscriberGuard[E], timeout time.Duration) r.Event[E] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ev, err := guard.Recv(ctx)
	if err != nil {
		t.Fatalf("expected an event within %v: %v", timeout, err)
	}
	return ev
}

// AssertNoEvent checks the given guard does not receive anything during the
// given duration
func AssertNoEvent[E any](t *testing.T, guard *r.SubscriberGuard[E], wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-guard.Events():
		if ok {
			t.Errorf("expected no event, got tag %s (generation %d)", ev.GetTag(), ev.GetGeneration())
		}
	case <-time.After(wait):
	}
}
