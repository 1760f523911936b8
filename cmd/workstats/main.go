package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/workstats/pkg/common/log"
	"github.com/KevoDB/workstats/pkg/config"
	"github.com/KevoDB/workstats/pkg/recorder"
	"github.com/KevoDB/workstats/pkg/telemetry"
)

// Options holds the command line configuration
type Options struct {
	ConfigFile string
	LogLevel   string
	Telemetry  bool
}

func main() {
	opts, cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}
	logger := log.NewStandardLogger(log.WithLevel(level))
	log.SetDefaultLogger(logger)

	telCfg := telemetry.DefaultConfig()
	telCfg.LoadFromEnv()
	if opts.Telemetry {
		telCfg.Enabled = true
	}
	tel, err := telemetry.New(telCfg)
	if err != nil {
		logger.Warn("Telemetry disabled: %v", err)
		tel = telemetry.NewNoop()
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), telCfg.ExportTimeout)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Telemetry shutdown: %v", err)
		}
	}()

	rec := recorder.New(cfg,
		recorder.WithLogger(logger),
		recorder.WithTelemetry(tel),
	)
	defer rec.Close()

	runInteractive(rec)
}

// parseFlags builds the recorder configuration from, in increasing order of
// precedence, defaults or a JSON config file, the environment and flags.
func parseFlags(args []string) (Options, *config.Config, error) {
	fs := flag.NewFlagSet("workstats", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "workstats - cumulative work counters for a compute client\n\n")
		fmt.Fprintf(fs.Output(), "Usage: workstats [options]\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nFor interactive commands, start workstats and type .help\n")
	}

	var opts Options
	fs.StringVar(&opts.ConfigFile, "config", "", "JSON configuration file")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error or off")
	fs.BoolVar(&opts.Telemetry, "telemetry", false, "Enable OpenTelemetry export")
	noStatsFile := fs.Bool("no-stats-file", false, "Do not read or write any stats")
	statsFile := fs.String("stats-file", "", "Stats file path (default ~/"+config.DefaultStatsFileName+")")
	eventLog := fs.String("event-log", config.DefaultEventLogPath, "SQLite event log path")
	cores := fs.Int("cores", 1, "Number of cores used for computation")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if fs.NArg() > 0 {
		return opts, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := config.NewDefaultConfig()
	if opts.ConfigFile != "" {
		loaded, err := config.LoadConfigFile(opts.ConfigFile)
		if err != nil {
			return opts, nil, err
		}
		cfg = loaded
	}
	cfg.LoadFromEnv()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "no-stats-file":
			cfg.SuppressPersistence = *noStatsFile
		case "stats-file":
			cfg.StatsFile = *statsFile
		case "event-log":
			cfg.EventLogPath = *eventLog
		case "cores":
			cfg.Cores = *cores
		}
	})

	if err := cfg.Validate(); err != nil {
		return opts, nil, err
	}
	return opts, cfg, nil
}

func runInteractive(rec *recorder.Recorder) {
	fmt.Println("workstats")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".workstats_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "workstats> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		return
	}
	defer rl.Close()

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		start := time.Now()
		err := execute(rec, line, rl.Stdout())
		if errors.Is(err, errExit) {
			fmt.Println("Goodbye!")
			break
		}
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "Error: %s\n", err)
			continue
		}
		log.Debug("Command %q took %s", line, time.Since(start))
	}
}
