package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zhaobenny/datatop/cli/internal/config"
	"github.com/zhaobenny/datatop/cli/internal/history"
	"github.com/zhaobenny/datatop/cli/internal/output"
	"github.com/zhaobenny/datatop/internal/model"
)

const version = "0.3.0"

func main() {
	// Detect subcommand first
	command := "report"
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "report", "config", "history":
			command = args[0]
			args = args[1:]
		}
	}

	if err := config.LoadDotEnv(); err != nil {
		fatal(fmt.Errorf("loading .env: %w", err))
	}

	// Handle special commands
	switch command {
	case "config":
		runConfig(args)
		return
	case "history":
		runHistory(args)
		return
	}

	// Create a new FlagSet for clean parsing
	fs := flag.NewFlagSet("datatop", flag.ExitOnError)

	var (
		opts     reportOptions
		showHelp bool
		showVer  bool
	)

	fs.StringVar(&opts.target, "target", "", "Spread the remaining data until this date (YYYY-MM-DD or \"YYYY-MM-DD HH:MM\")")
	fs.StringVar(&opts.passwordFile, "password-file", "", "Read the password from this file")
	fs.StringVar(&opts.caBundle, "ca-bundle", "", "PEM file with the CAs trusted for the provider")
	fs.StringVar(&opts.tlsProbe, "tls-probe", "", "Check that a host with a bad certificate is rejected, then exit")
	fs.BoolVar(&opts.skew, "skew", false, "Show the server/local clock difference")
	fs.BoolVar(&opts.stdin, "stdin", false, "Read a usage response from stdin instead of logging in")
	fs.BoolVar(&opts.json, "json", false, "Output as JSON")
	fs.BoolVar(&opts.noHistory, "no-history", false, "Do not record this report")
	fs.BoolVar(&opts.debug, "debug", false, "Log protocol steps to stderr")
	fs.BoolVar(&showHelp, "help", false, "Show help")
	fs.BoolVar(&showHelp, "h", false, "Show help")
	fs.BoolVar(&showVer, "version", false, "Show version")
	fs.BoolVar(&showVer, "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `datatop - prepaid mobile data usage report

Usage: datatop [command] [options]

Commands:
  report    Log in and report plan usage (default)
  config    Configure the provider and local settings
  history   Show recorded reports

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  datatop
  datatop --target 2017-01-07
  datatop --json --password-file ~/.datatop-password
  datatop --stdin < usage.json
  datatop config --base-url https://provider.example/api
  datatop history --limit 5
`)
	}

	fs.Parse(args)

	if showVer {
		fmt.Printf("datatop version %s\n", version)
		return
	}

	if showHelp {
		fs.Usage()
		return
	}

	setupLogging(opts.debug)

	cfg, err := config.Load()
	if err != nil {
		fatal(fmt.Errorf("loading config: %w", err))
	}
	cfg.ApplyEnv()

	if err := executeReport(context.Background(), cfg, opts, os.Stdin, os.Stdout); err != nil {
		fatal(err)
	}
}

// setupLogging sends human readable logs to stderr, tagged with a run ID
func setupLogging(debug bool) {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}

// fatal prints err as a single line and exits
func fatal(err error) {
	if errors.Is(err, model.ErrBadCredentials) {
		fmt.Fprintln(os.Stderr, "Error: bad credentials")
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var (
		baseURL         string
		caBundle        string
		passwordFile    string
		historyDB       string
		requestInterval time.Duration
		timeout         time.Duration
		show            bool
	)
	fs.StringVar(&baseURL, "base-url", "", "Provider API base URL")
	fs.StringVar(&caBundle, "ca-bundle", "", "PEM file with the CAs trusted for the provider")
	fs.StringVar(&passwordFile, "password-file", "", "File holding the account password")
	fs.StringVar(&historyDB, "history-db", "", "SQLite file reports are recorded in")
	fs.DurationVar(&requestInterval, "request-interval", 0, "Minimum time between provider requests (e.g., 500ms)")
	fs.DurationVar(&timeout, "timeout", 0, "Per request timeout (e.g., 30s)")
	fs.BoolVar(&show, "show", false, "Show current configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: datatop config [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  datatop config --base-url https://provider.example/api
  datatop config --history-db ~/.local/share/datatop/history.db
  datatop config --show
`)
	}

	fs.Parse(args)

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if show {
		cfg, err := config.Load()
		if err != nil {
			fatal(fmt.Errorf("loading config: %w", err))
		}
		if cfg.BaseURL == "" {
			fmt.Println("No configuration found. Run 'datatop config --base-url <url>' to configure.")
			return
		}
		fmt.Printf("Base URL: %s\n", cfg.BaseURL)
		if cfg.CABundle != "" {
			fmt.Printf("CA bundle: %s\n", cfg.CABundle)
		}
		if cfg.PasswordFile != "" {
			fmt.Printf("Password file: %s\n", cfg.PasswordFile)
		}
		if cfg.HistoryDB != "" {
			fmt.Printf("History DB: %s\n", cfg.HistoryDB)
		}
		if cfg.RequestInterval != 0 {
			fmt.Printf("Request interval: %s\n", cfg.RequestInterval)
		}
		if cfg.Timeout != 0 {
			fmt.Printf("Timeout: %s\n", cfg.Timeout)
		}
		return
	}

	if len(set) == 0 {
		fs.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	if set["base-url"] {
		cfg.BaseURL = baseURL
	}
	if set["ca-bundle"] {
		cfg.CABundle = caBundle
	}
	if set["password-file"] {
		cfg.PasswordFile = passwordFile
	}
	if set["history-db"] {
		cfg.HistoryDB = historyDB
	}
	if set["request-interval"] {
		cfg.RequestInterval = requestInterval
	}
	if set["timeout"] {
		cfg.Timeout = timeout
	}

	if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrNoBaseURL) {
		fatal(err)
	}

	if err := config.Save(cfg); err != nil {
		fatal(fmt.Errorf("saving config: %w", err))
	}

	fmt.Println("Configuration saved.")
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var (
		limit   int
		jsonOut bool
		compact bool
	)
	fs.IntVar(&limit, "limit", history.DefaultLimit, "Number of reports to show")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	fs.BoolVar(&compact, "compact", false, "Force compact table output")
	fs.BoolVar(&compact, "c", false, "Force compact table output")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fatal(fmt.Errorf("loading config: %w", err))
	}
	if cfg.HistoryDB == "" {
		fatal(errors.New("no history database configured, run 'datatop config --history-db <path>'"))
	}

	db, err := history.Open(cfg.HistoryDB)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		fatal(err)
	}

	entries, err := db.List(limit)
	if err != nil {
		fatal(fmt.Errorf("reading history: %w", err))
	}

	if jsonOut {
		if err := output.PrintHistoryJSON(os.Stdout, entries); err != nil {
			fatal(err)
		}
		return
	}
	output.PrintHistory(os.Stdout, entries, output.TableOptions{ForceCompact: compact})
}
