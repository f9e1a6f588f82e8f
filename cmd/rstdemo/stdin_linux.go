//go:build linux

package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-rst/source/fdpoll"
)

func stdinCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := newDemo(cfg, os.Stderr, nil)
	if err != nil {
		return err
	}

	sup := supervise(d, "stdin", fdpoll.NewFactory(int(os.Stdin.Fd())))

	ctx, cancel := interruptContext(c)
	defer cancel()

	return d.run(ctx, func(ctx context.Context) error {
		return consume(ctx, sup, func(chunk fdpoll.Chunk) bool {
			if chunk.EOF {
				return false
			}
			_, _ = os.Stdout.Write(chunk.Data)
			return true
		})
	})
}
