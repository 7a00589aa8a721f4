// Command mock-interview runs voice mock interviews against an ElevenLabs
// Conversational AI agent, either from the terminal or behind a gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/agent/elevenlabs"
	"github.com/vango-go/mock-interview/pkg/gateway/config"
	gatewayserver "github.com/vango-go/mock-interview/pkg/gateway/server"
	"github.com/vango-go/mock-interview/pkg/interview/persona"
)

var version = "dev" // set via ldflags at build time

type cliDeps struct {
	loadConfig   func() (config.Config, error)
	newTransport func(config.Config, *slog.Logger) agent.Transport
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		loadConfig:   config.LoadFromEnv,
		newTransport: newElevenLabsTransport,
		newGateway:   gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

func newElevenLabsTransport(cfg config.Config, logger *slog.Logger) agent.Transport {
	return elevenlabs.New(elevenlabs.Config{
		APIKey:         cfg.ElevenLabsAPIKey,
		BaseURL:        cfg.ElevenLabsWSBaseURL,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})
}

func newRootCmd(deps cliDeps) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "mock-interview",
		Short: "Practice interviews with a scored voice agent",
		Long: `mock-interview connects a candidate to an ElevenLabs Conversational AI
agent configured as an interviewer persona. The agent rates every answer
through the rateAnswer client tool and the running score is shown live.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	root.SetIn(deps.stdin)
	root.SetOut(deps.stdout)
	root.SetErr(deps.stderr)
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file when it exists")

	root.AddCommand(newPersonasCmd(deps))
	root.AddCommand(newRunCmd(deps))
	root.AddCommand(newServeCmd(deps))
	return root
}

// setup loads configuration, the logger and the persona catalog shared by
// every subcommand.
func setup(deps cliDeps) (config.Config, *slog.Logger, *persona.Catalog, error) {
	if deps.loadConfig == nil {
		return config.Config{}, nil, nil, fmt.Errorf("missing loadConfig dependency")
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg, deps.stderr)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	catalog := persona.Builtin()
	if cfg.PersonasFile != "" {
		catalog, err = persona.LoadFile(cfg.PersonasFile)
		if err != nil {
			return config.Config{}, nil, nil, fmt.Errorf("load personas: %w", err)
		}
	}
	return cfg, logger, catalog, nil
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func runMain(ctx context.Context, args []string, deps cliDeps) int {
	if deps.stderr == nil {
		deps.stderr = os.Stderr
	}
	root := newRootCmd(deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(deps.stderr, "mock-interview: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], defaultCLIDeps()))
}
