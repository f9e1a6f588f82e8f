package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/capatazlib/go-rst/internal/config"
	"github.com/capatazlib/go-rst/rst"
	"github.com/capatazlib/go-rst/rst/rsthttp"
	"github.com/capatazlib/go-rst/rst/rstlog"
	"github.com/capatazlib/go-rst/rst/rstprom"
	"github.com/capatazlib/go-rst/sabotage"
)

// demo holds the ambient pieces shared by every supervisor of a command:
// logger, metrics, notifiers, the sabotage DB and the published sources.
type demo struct {
	cfg          *config.Config
	ll           *logrus.Logger
	reg          *prometheus.Registry
	notifier     rst.Notifier
	stopNotifier context.CancelFunc
	sabotage     *sabotage.DB
	sources      []rsthttp.Source
	statusFns    []rstprom.StatusFn
}

func newDemo(cfg *config.Config, logOut io.Writer, extra map[string]rst.Notifier) (*demo, error) {
	ll, err := rstlog.NewLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, errorf("%s", err)
	}

	reg := prometheus.NewRegistry()
	metrics := rstprom.NewMetrics(reg)

	notifiers := map[string]rst.Notifier{
		"log":     rstlog.NewNotifier(ll),
		"metrics": metrics.Notifier(),
	}
	for name, fn := range extra {
		notifiers[name] = fn
	}

	d := &demo{cfg: cfg, ll: ll, reg: reg}

	if cfg.Supervisor.ReliableNotifier {
		d.notifier, d.stopNotifier, err = rst.NewReliableNotifier(
			notifiers,
			rst.WithOnReliableNotifierFailure(func(err error) {
				ll.WithError(err).Error("notifier failed")
			}),
			rst.WithOnNotifierTimeout(func(name string) {
				ll.WithField("notifier", name).Warn("notifier skipped a notification")
			}),
		)
		if err != nil {
			return nil, errorf("%s", err)
		}
	} else {
		d.notifier = func(n rst.Notification) {
			for _, fn := range notifiers {
				fn(n)
			}
		}
		d.stopNotifier = func() {}
	}

	if cfg.Sabotage.Enabled {
		d.sabotage = sabotage.NewDB(ll.WithField("component", "sabotage"))
	}
	return d, nil
}

// supervise builds a supervisor configured from the demo settings and
// publishes it on the status server
func supervise[E any](d *demo, name string, factory rst.Factory[E]) *rst.Supervisor[E] {
	if d.sabotage != nil {
		factory = sabotage.Wrap(d.sabotage, name, factory)
	}
	opts := append(d.cfg.SupervisorOpts(), rst.WithNotifier(d.notifier))
	sup := rst.New[E](name, factory, opts...)
	d.sources = append(d.sources, rsthttp.Publish(sup))
	d.statusFns = append(d.statusFns, sup.Status)
	return sup
}

// run serves the status API (if enabled) while the given consumers run; it
// returns when every consumer finished or any of them failed.
func (d *demo) run(ctx context.Context, consumers ...func(context.Context) error) error {
	defer d.stopNotifier()

	d.reg.MustRegister(rstprom.NewStatusCollector(d.statusFns...))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if d.cfg.HTTP.Addr != "" {
		server := rsthttp.NewServer(d.ll.WithField("component", "http"), d.reg, d.sources...)
		if d.sabotage != nil {
			server.Mount("/sabotage", sabotage.NewServer(d.ll, d.sabotage).NewHTTPHandler())
		}
		d.ll.WithField("addr", d.cfg.HTTP.Addr).Info("serving supervisor status")
		g.Go(func() error {
			return server.Run(ctx, &http.Server{Addr: d.cfg.HTTP.Addr})
		})
	}

	var consumerGroup errgroup.Group
	for _, consumer := range consumers {
		consumerGroup.Go(func() error {
			return consumer(ctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return consumerGroup.Wait()
	})

	return g.Wait()
}

// consume subscribes to the supervisor and hands every worker event to
// onEvent until it returns false, the context is done or the thread shuts
// down abnormally.
func consume[E any](ctx context.Context, sup *rst.Supervisor[E], onEvent func(E) bool) error {
	guard, err := sup.Subscribe()
	if err != nil {
		return err
	}
	defer guard.Close()

	for {
		ev, err := guard.Recv(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if v, ok := ev.Worker(); ok {
			if !onEvent(v) {
				return nil
			}
			continue
		}
		reason, _ := ev.Shutdown()
		return errorf("%s shut down (%s): %s", sup.GetName(), reason, ev.Err())
	}
}
