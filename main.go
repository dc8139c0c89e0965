package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alex/castmasta/internal/adapters/airplaymdns"
	"github.com/alex/castmasta/internal/adapters/gocast"
	"github.com/alex/castmasta/internal/agent"
	"github.com/alex/castmasta/internal/buildinfo"
	"github.com/alex/castmasta/internal/diagnostics"
	"github.com/alex/castmasta/internal/lifecycle"
	"github.com/alex/castmasta/internal/mcpserver"
)

type selfTestOutput struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
	Adapters struct {
		AirPlayScanWired bool `json:"airplay_scan_wired"`
		CastScanWired    bool `json:"cast_scan_wired"`
		CastWired        bool `json:"cast_wired"`
		AirPlayWired     bool `json:"airplay_wired"`
		AirPlayPairWired bool `json:"airplay_pair_wired"`
	} `json:"adapters"`
	Dependencies diagnostics.DependencyReport `json:"dependencies"`
}

func main() {
	selfTest := flag.Bool("self-test", false, "run dependency and wiring diagnostics then exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Version)
		return
	}

	cfg := agent.ConfigFromEnv()
	deps := agent.Deps{
		AirPlayScanner: airplaymdns.Scanner{},
		CastScanner:    gocast.Scanner{},
		CastFactory:    gocast.Factory{},
	}
	diag := diagnostics.DetectDependencies(cfg.PiperBin, cfg.FFmpegBin)

	if *selfTest {
		out := selfTestOutput{
			Dependencies: diag,
		}
		out.Server.Name = "castmasta"
		out.Server.Version = buildinfo.Version
		out.Adapters.AirPlayScanWired = deps.AirPlayScanner != nil
		out.Adapters.CastScanWired = deps.CastScanner != nil
		out.Adapters.CastWired = deps.CastFactory != nil
		out.Adapters.AirPlayWired = deps.AirPlayFactory != nil
		out.Adapters.AirPlayPairWired = deps.AirPlayPairer != nil

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	runCtx, stopSignals := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	defer stopSignals()

	logLevel := parseLogLevel(os.Getenv("CASTMASTA_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Info(
		"mcp_server_start",
		slog.String("server", "castmasta"),
		slog.String("version", buildinfo.Version),
		slog.String("log_level", logLevel.String()),
	)

	deps.Logf = func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}
	controller, err := agent.New(cfg, deps)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv := mcpserver.New(os.Stdin, os.Stdout, mcpserver.Config{
		ServerName:    "castmasta",
		ServerVersion: buildinfo.Version,
		Logger:        logger,
		Controller:    controller,
	})

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- srv.Run(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-runErrCh:
	case <-runCtx.Done():
		runErr = runCtx.Err()
	}
	if runErr != nil {
		logger.Warn("mcp_server_stopping", slog.String("reason", runErr.Error()))
	} else {
		logger.Info("mcp_server_stopping", slog.String("reason", "clean_eof"))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := controller.DisconnectAll(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid CASTMASTA_LOG_LEVEL=%q; defaulting to info\n", raw)
		return slog.LevelInfo
	}
}
