package sabotage_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/capatazlib/go-rst/internal/rtest"
	"github.com/capatazlib/go-rst/rst"
	"github.com/capatazlib/go-rst/sabotage"
	"github.com/capatazlib/go-rst/sabotage/api"
)

func newDB() *sabotage.DB {
	ll, _ := test.NewNullLogger()
	return sabotage.NewDB(ll)
}

func TestInsertPlanValidation(t *testing.T) {
	db := newDB()

	assert.Error(t, db.InsertPlan(sabotage.Plan{Target: "t", Fault: sabotage.RestartFault}))
	assert.Error(t, db.InsertPlan(sabotage.Plan{Name: "p", Fault: sabotage.RestartFault}))
	assert.Error(t, db.InsertPlan(sabotage.Plan{Name: "p", Target: "t"}))

	require.NoError(t, db.InsertPlan(sabotage.Plan{Name: "p", Target: "t", Fault: sabotage.PanicFault}))
	assert.Error(t, db.InsertPlan(sabotage.Plan{Name: "p", Target: "t", Fault: sabotage.PanicFault}))

	plans := db.ListPlans()
	require.Len(t, plans, 1)
	assert.Equal(t, time.Second, plans[0].Period)
	assert.False(t, plans[0].Running)

	assert.ErrorIs(t, db.StartPlan("missing"), sabotage.ErrPlanNotFound)
	assert.ErrorIs(t, db.StopPlan("missing"), sabotage.ErrPlanNotFound)
	require.NoError(t, db.RemovePlan("p"))
	assert.Empty(t, db.ListPlans())
}

func TestParseFault(t *testing.T) {
	for _, f := range []sabotage.Fault{sabotage.RestartFault, sabotage.PanicFault} {
		parsed, err := sabotage.ParseFault(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}
	_, err := sabotage.ParseFault("explode")
	assert.Error(t, err)
}

func TestRestartPlan(t *testing.T) {
	db := newDB()
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := rst.New[int](
		"victim",
		sabotage.Wrap(db, "victim", src.Factory(rst.WithBackoff(0, 0))),
		rst.WithNotifier(rec.Notifier()),
	)

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, db.InsertPlan(sabotage.Plan{
		Name:     "restart-once",
		Target:   "victim",
		Fault:    sabotage.RestartFault,
		Period:   5 * time.Millisecond,
		Attempts: 1,
	}))
	require.NoError(t, db.StartPlan("restart-once"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, db.Wait(ctx, "restart-once"))

	require.True(t, rec.WaitTill(WorkerRestarted(1), time.Second))
	assert.Equal(t, 2, src.CreateCount())
	assert.Equal(t, uint32(2), db.ListTargets()["victim"])

	plans := db.ListPlans()
	require.Len(t, plans, 1)
	assert.Equal(t, uint32(1), plans[0].Injected)
	assert.False(t, plans[0].Running)

	// the restarted worker keeps serving the subscriber
	src.Push(Emit(3))
	ev := RecvWithin(t, g, time.Second)
	v, ok := ev.Worker()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestPanicPlan(t *testing.T) {
	db := newDB()
	src := NewScriptSource[int](0)
	sup := rst.New[int]("victim", sabotage.Wrap(db, "victim", src.Factory()))

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, db.InsertPlan(sabotage.Plan{
		Name:     "panic",
		Target:   "victim",
		Fault:    sabotage.PanicFault,
		Period:   5 * time.Millisecond,
		Attempts: 1,
	}))
	require.NoError(t, db.StartPlan("panic"))

	ev := RecvWithin(t, g, time.Second)
	reason, ok := ev.Shutdown()
	require.True(t, ok)
	assert.Equal(t, rst.Fault, reason)
	assert.ErrorContains(t, ev.Err(), "sabotage: injected panic on victim")
	require.NoError(t, WaitDone(sup.Done(), time.Second))
}

func TestStopRunningPlan(t *testing.T) {
	db := newDB()
	require.NoError(t, db.InsertPlan(sabotage.Plan{
		Name:   "forever",
		Target: "nobody",
		Fault:  sabotage.RestartFault,
		Period: time.Millisecond,
	}))
	require.NoError(t, db.StartPlan("forever"))
	assert.Error(t, db.StartPlan("forever"))
	assert.True(t, db.ListPlans()[0].Running)

	require.NoError(t, db.StopPlan("forever"))
	assert.False(t, db.ListPlans()[0].Running)
	// stopping twice is fine
	require.NoError(t, db.StopPlan("forever"))
}

func TestServer(t *testing.T) {
	ll, _ := test.NewNullLogger()
	db := sabotage.NewDB(ll)
	src := NewScriptSource[int](0)
	_ = sabotage.Wrap(db, "victim", src.Factory())

	server := httptest.NewServer(sabotage.NewServer(ll, db).NewHTTPHandler())
	defer server.Close()

	body, err := json.Marshal(api.Plan{
		Name:     "p1",
		Target:   "victim",
		Fault:    "restart",
		Period:   time.Millisecond,
		Attempts: 1,
	})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/plans", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(server.URL+"/plans", "application/json", bytes.NewReader([]byte(`{"name":"p2","target":"victim","fault":"nope"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/plans")
	require.NoError(t, err)
	var plans api.Plans
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plans))
	resp.Body.Close()
	require.Len(t, plans.Plans, 1)
	assert.Equal(t, "p1", plans.Plans[0].Name)
	assert.Equal(t, "restart", plans.Plans[0].Fault)

	resp, err = http.Get(server.URL + "/targets")
	require.NoError(t, err)
	var targets api.Targets
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&targets))
	resp.Body.Close()
	assert.Equal(t, []api.Target{{Name: "victim", Workers: 0}}, targets.Targets)

	resp, err = http.Post(server.URL+"/plans/missing/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/plans/p1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, db.ListPlans())
}
