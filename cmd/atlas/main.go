package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/config"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/logging"
	"github.com/hpungsan/atlas/internal/mcp"
	"github.com/hpungsan/atlas/internal/ops"
	"github.com/hpungsan/atlas/internal/paywall"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"scan": true, "upload": true, "shell": true,
	"balance": true, "offer": true, "subscribe": true,
	"history": true, "show": true, "retry": true, "delete": true,
	"export": true, "pdf": true, "purge": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
     _  _____ _      _    ____
    / \|_   _| |    / \  / ___|
   / _ \ | | | |   / _ \ \___ \
  / ___ \| | | |__/ ___ \ ___) |
 /_/   \_\_| |____/_/   \_\____/

  Scan questions, upload PDFs, get answers.

  Usage: atlas <command> [options]
         atlas shell
         atlas --help

  MCP server mode requires piped input.`)
}

// newEnv wires the process-wide collaborators. The analyzer is the built-in
// mock; its results are persisted as they resolve.
func newEnv(database *sql.DB, cfg *config.Config, baseDir string, logger zerolog.Logger) *ops.Env {
	presenter := analysis.NewPresenter(
		analysis.MockAnalyzer{Delay: cfg.AnalysisDelay()},
		analysis.WithTimeout(cfg.AnalysisTimeout()),
		analysis.WithLogger(logger.With().Str("subsystem", "analysis").Logger()),
		analysis.OnResolve(ops.PersistResults(database, logger)),
	)

	return &ops.Env{
		DB:        database,
		Config:    cfg,
		BaseDir:   baseDir,
		Presenter: presenter,
		Paywall:   paywall.New(paywall.DefaultOffer(), nil, logger.With().Str("subsystem", "paywall").Logger()),
		Logger:    logger,
	}
}

// newGate creates a full-budget gate for one session.
func newGate(cfg *config.Config, logger zerolog.Logger) (*entitlement.Gate, error) {
	return entitlement.New(cfg.DailyCredits, cfg.CreditWindow(),
		entitlement.WithStrictInvariants(cfg.StrictInvariants),
		entitlement.WithLogger(logger.With().Str("subsystem", "gate").Logger()),
	)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run())
}

func run() int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		return 1
	}

	baseDir := filepath.Join(homeDir, ".atlas")

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "atlas",
	})

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		return 1
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	env := newEnv(database, cfg, baseDir, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.Presenter.Shutdown(ctx)
	}()

	if _, err := ops.Recover(context.Background(), env); err != nil {
		logger.Warn().Err(err).Msg("failed to recover analyses from a previous run")
	}

	// The CLI process and the MCP client are one session each.
	gate, err := newGate(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(env, gate)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'atlas --help' for usage.\n")
		return 1
	}

	// MCP server mode (default)
	if err := mcp.Run(env, gate, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
