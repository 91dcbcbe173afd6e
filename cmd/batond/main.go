// Package main is batond, a small daemon that takes part in baton elections.
//
// Each batond process claims the configured keys, holds a baton for --hold
// once elected, releases it and claims again after --cooldown. Running a few
// processes against the same NATS server or Redis instance shows the baton
// passing between them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	configPath    string
	transport     string
	natsURL       string
	embeddedNATS  bool
	redisAddr     string
	participants  int
	participantID string
	keys          []string
	hold          time.Duration
	cooldown      time.Duration
	metricsAddr   string
	logLevel      string
	logEncoding   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "batond",
		Short: "Take part in virtual baton elections",
		Long: `batond joins the baton elections of the given keys over NATS or Redis.

Once elected it holds the baton for --hold, releases it so a waiting
participant is handed the baton, and claims again after --cooldown.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.transport, "transport", "nats", "message bus: nats or redis")
	flags.StringVar(&opts.natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	flags.BoolVar(&opts.embeddedNATS, "embedded-nats", false, "start an in-process NATS server with JetStream")
	flags.StringVar(&opts.redisAddr, "redis-addr", "127.0.0.1:6379", "Redis address")
	flags.IntVar(&opts.participants, "participants", 3, "participant count used for quorum sizing with redis")
	flags.StringVar(&opts.participantID, "id", "", "participant ID (default: stable or random ID)")
	flags.StringSliceVarP(&opts.keys, "key", "k", []string{"default"}, "baton keys to claim")
	flags.DurationVar(&opts.hold, "hold", 5*time.Second, "how long to hold the baton once elected (0 holds until exit)")
	flags.DurationVar(&opts.cooldown, "cooldown", time.Second, "pause between a release and the next claim")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "Prometheus listen address (empty disables)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logEncoding, "log-encoding", "console", "log encoding: console or json")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
