//go:build !linux

package main

import (
	"github.com/urfave/cli/v2"
)

func stdinCmd(c *cli.Context) error {
	return errorf("the stdin command is only available on linux")
}
