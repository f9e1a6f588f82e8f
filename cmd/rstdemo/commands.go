package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-rst/source/netaccept"
	"github.com/capatazlib/go-rst/source/sigwatch"
)

var watchedSignals = []os.Signal{syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2}

func interruptContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func listenCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := newDemo(cfg, os.Stderr, nil)
	if err != nil {
		return err
	}

	greeting := c.String("greeting")
	sup := supervise(d, "listen", netaccept.NewFactory(
		cfg.Listen.Addr,
		netaccept.WithHandler(func(conn net.Conn) {
			defer conn.Close()
			_, _ = io.WriteString(conn, greeting)
		}),
		netaccept.WithOnListen(func(addr net.Addr) {
			d.ll.WithField("addr", addr.String()).Info("accepting connections")
		}),
	))

	ctx, cancel := interruptContext(c)
	defer cancel()

	return d.run(ctx, func(ctx context.Context) error {
		return consume(ctx, sup, func(conn netaccept.Conn) bool {
			fmt.Printf("%s accepted %s\n", conn.Accepted.Format("15:04:05.000"), conn.RemoteAddr)
			return true
		})
	})
}

func signalsCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := newDemo(cfg, os.Stderr, nil)
	if err != nil {
		return err
	}

	sup := supervise(d, "signals", sigwatch.NewFactory(watchedSignals))

	ctx, cancel := interruptContext(c)
	defer cancel()

	fmt.Printf("send SIGHUP, SIGUSR1 or SIGUSR2 to pid %d\n", os.Getpid())
	return d.run(ctx, func(ctx context.Context) error {
		return consume(ctx, sup, func(sig sigwatch.Signal) bool {
			fmt.Printf("%s received %s\n", sig.Received.Format("15:04:05.000"), sig.Name)
			return true
		})
	})
}
