package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"github.com/webitel/ca-rsrvd/internal/config"
)

const (
	ServiceName      = "ca-rsrvd"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Channel Access server endpoint",
		Commands: []*cli.Command{
			serverCmd(),
			casrCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the CA server core",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			fs := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
			cfg, err := config.Load(fs)
			if err != nil {
				return err
			}
			if cf := c.String("config_file"); cf != "" {
				cfg.ConfigFile = cf
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func casrCmd() *cli.Command {
	return &cli.Command{
		Name:  "casr",
		Usage: "Dump a running server's circuit/channel/pool report",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Admin HTTP address of the running server",
				Value: "127.0.0.1:5066",
			},
			&cli.IntFlag{
				Name:  "level",
				Usage: "Report detail level (0-4)",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Live terminal dashboard instead of a one-shot dump",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("watch") {
				return watchDashboard(c.String("addr"))
			}
			return printCasr(c.String("addr"), c.Int("level"))
		},
	}
}
