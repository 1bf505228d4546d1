// Command replay runs a transcript script through the listening controller on
// a simulated clock and prints every event it emits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/observability"
	"github.com/lexiqai/voice-command-gateway/internal/replay"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	permission := cli.StringP("permission", "p", "granted", "Permission the recognizer reports (granted, denied, restricted, undetermined)")
	quiet := cli.BoolP("quiet", "q", false, "Print only commands and queries")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: replay [flags] <script | ->\n\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() != 1 {
		cli.Usage()
		os.Exit(2)
	}

	// timings come from the same variables as the server
	_ = godotenv.Load(*envFile)
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(*logLevel, true)
	logger := observability.WithCorrelationID("")

	perm, err := voice.ParsePermission(*permission)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid permission")
	}

	var steps []replay.Step
	if path := cli.Arg(0); path == "-" {
		steps, err = replay.Parse(os.Stdin)
	} else {
		steps, err = replay.ParseFile(path)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse script")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := replay.NewRunner(cfg.ControllerOptions(&logger, nil), logger)
	runner.SetPermission(perm)

	res, err := runner.Run(ctx, steps, func(rec replay.Record) {
		switch rec.Event.Kind {
		case voice.EventCommand, voice.EventQuery:
		default:
			if *quiet {
				return
			}
		}
		fmt.Printf("%8s  %3d  %s\n", rec.Offset, rec.Step.Line, replay.Describe(rec.Event))
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Replay failed")
	}

	fmt.Println(strings.Repeat("-", 48))
	fmt.Printf("final state  %s\n", res.Final.State)
	fmt.Printf("sessions     %d started, %d stopped\n", res.Starts, res.Stops)
	fmt.Printf("commands     %s\n", strings.Join(res.Commands(), ", "))
	fmt.Printf("queries      %d\n", len(res.Queries()))
	if res.Dropped > 0 {
		fmt.Printf("dropped      %d transcript lines with no active session\n", res.Dropped)
	}
	if res.Final.ErrorMessage != "" {
		fmt.Printf("error        %s\n", res.Final.ErrorMessage)
	}
}
