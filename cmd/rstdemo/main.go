package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-rst/internal/config"
)

func main() {
	app := cli.NewApp()
	app.Name = "rstdemo"
	app.Usage = "consume blocking event sources through resilient supervised threads"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file",
			EnvVars: []string{config.PathEnvVar},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "logrus level (overrides log.level)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "text or json (overrides log.format)",
		},
		&cli.StringFlag{
			Name:  "http-addr",
			Usage: "status server address, empty disables it (overrides http.addr)",
		},
		&cli.BoolFlag{
			Name:  "sabotage",
			Usage: "expose the fault injection API under /sabotage",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "stdin",
			Usage:  "print the chunks read from standard input",
			Action: stdinCmd,
		},
		{
			Name:   "listen",
			Usage:  "report every TCP connection accepted on listen.addr",
			Action: listenCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "addr",
					Usage: "overrides listen.addr",
				},
				&cli.StringFlag{
					Name:  "greeting",
					Value: "hello from rstdemo\n",
					Usage: "message written to accepted connections",
				},
			},
		},
		{
			Name:   "signals",
			Usage:  "report SIGHUP, SIGUSR1 and SIGUSR2 deliveries",
			Action: signalsCmd,
		},
		{
			Name:   "tui",
			Usage:  "interactive view of the listen and signals supervisors",
			Action: tuiCmd,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "refresh",
					Value: time.Second,
					Usage: "status refresh interval",
				},
				&cli.StringFlag{
					Name:  "addr",
					Usage: "overrides listen.addr",
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func errorf(m string, args ...interface{}) error {
	return cli.Exit(fmt.Sprintf(m, args...), 1)
}

// loadConfig reads the configuration and applies the global flags on top
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, errorf("%s", err)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("http-addr") {
		cfg.HTTP.Addr = c.String("http-addr")
	}
	if c.IsSet("sabotage") {
		cfg.Sabotage.Enabled = c.Bool("sabotage")
	}
	if c.IsSet("addr") {
		cfg.Listen.Addr = c.String("addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errorf("invalid flags: %s", err)
	}
	return cfg, nil
}
