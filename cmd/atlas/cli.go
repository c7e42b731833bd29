package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/logging"
	"github.com/hpungsan/atlas/internal/ops"
	"github.com/hpungsan/atlas/internal/paywall"
	"github.com/hpungsan/atlas/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// The CLI process is a single session: every command shares gate.
func newCLIApp(env *ops.Env, gate *entitlement.Gate) *cli.App {
	app := &cli.App{
		Name:    "atlas",
		Usage:   "Scan questions and upload PDFs for AI answers",
		Version: Version,
		Commands: []*cli.Command{
			captureCmd("scan", "Scan an image of a question", capture.KindImage, env, gate),
			captureCmd("upload", "Upload a PDF document", capture.KindDocument, env, gate),
			shellCmd(env, gate),
			balanceCmd(gate),
			offerCmd(env, gate),
			subscribeCmd(env, gate),
			historyCmd(env),
			showCmd(env),
			retryCmd(env),
			deleteCmd(env),
			exportCmd(env),
			pdfCmd(env),
			purgeCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureResult is a capture outcome plus the analysis it started.
type captureResult struct {
	*ops.CaptureOutput
	Analysis *ops.FetchOutput `json:"analysis,omitempty"`
}

// captureCmd creates the scan and upload commands. Without a path the
// picker is dismissed and nothing is charged.
func captureCmd(name, usage string, kind capture.Kind, env *ops.Env, gate *entitlement.Gate) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[path]",
		Action: func(c *cli.Context) error {
			provider := capture.NewFileProvider(env.CacheDir(), env.Config.MaxUploadBytes, capture.PathPicker(c.Args().First()), env.Logger)
			out, err := ops.Capture(c.Context, env, gate, provider, ops.CaptureInput{Kind: kind, SessionID: "cli"})
			if err != nil {
				return outputError(err)
			}
			if out.Decision == entitlement.DecisionCaptureFailed && out.Err != nil {
				return outputError(out.Err)
			}

			result := captureResult{CaptureOutput: out}
			if out.Decision == entitlement.DecisionProceed {
				// The analysis runs in this process; wait for it before exiting.
				fetched, err := ops.Fetch(c.Context, env, ops.FetchInput{
					ID:   out.AnalysisID,
					Wait: env.Config.AnalysisTimeout(),
				})
				if err != nil {
					return outputError(err)
				}
				result.Analysis = fetched
			}

			return outputJSON(c.App.Writer, result)
		},
	}
}

// balanceCmd creates the balance command.
func balanceCmd(gate *entitlement.Gate) *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show the remaining daily credits",
		Action: func(c *cli.Context) error {
			return outputJSON(c.App.Writer, gate.Balance())
		},
	}
}

// offerOutput is the subscription screen.
type offerOutput struct {
	Offer     paywall.Offer       `json:"offer"`
	PriceText string              `json:"price_text"`
	Balance   entitlement.Balance `json:"balance"`
}

// offerCmd creates the offer command.
func offerCmd(env *ops.Env, gate *entitlement.Gate) *cli.Command {
	return &cli.Command{
		Name:  "offer",
		Usage: "Show the subscription offer",
		Action: func(c *cli.Context) error {
			offer := env.Paywall.Offer()
			return outputJSON(c.App.Writer, offerOutput{
				Offer:     offer,
				PriceText: offer.PriceText(),
				Balance:   gate.Balance(),
			})
		},
	}
}

// subscribeCmd creates the subscribe command.
func subscribeCmd(env *ops.Env, gate *entitlement.Gate) *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Purchase the subscription (demo billing)",
		Action: func(c *cli.Context) error {
			output, err := ops.ResolvePaywall(c.Context, env, gate, ops.ResolveInput{Choice: string(paywall.ChoiceSubscribe)})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List past analyses, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: image|document"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: pending|succeeded|failed|abandoned"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Skip first N results"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include deleted analyses"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, env, ops.ListInput{
				Kind:           c.String("kind"),
				Status:         c.String("status"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show an analysis and its report",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "section", Usage: "Only this report section (e.g. \"Final Answer\")"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include deleted analyses"},
			&cli.BoolFlag{Name: "no-text", Usage: "Exclude report_text from output"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}

			input := ops.FetchInput{
				ID:             c.Args().First(),
				Section:        c.String("section"),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.Bool("no-text") {
				includeText := false
				input.IncludeText = &includeText
			}

			output, err := ops.Fetch(c.Context, env, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// retryCmd creates the retry command.
func retryCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Re-run a failed or abandoned analysis (no credit charged)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}

			retried, err := ops.Retry(c.Context, env, ops.RetryInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Fetch(c.Context, env, ops.FetchInput{
				ID:   retried.ID,
				Wait: env.Config.AnalysisTimeout(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an analysis from history (the credit is not refunded)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}

			output, err := ops.Delete(c.Context, env, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export history to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path (default: ~/.atlas/exports/history-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include deleted analyses"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, env, ops.ExportInput{
				Path:           c.String("path"),
				Kind:           c.String("kind"),
				Status:         c.String("status"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// pdfCmd creates the pdf command.
func pdfCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "pdf",
		Usage:     "Export a finished analysis as a PDF",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path (default: ~/.atlas/exports/<name>-<id>.pdf)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}

			output, err := ops.ExportPDF(c.Context, env, ops.ExportPDFInput{
				ID:   c.Args().First(),
				Path: c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete analyses removed from history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}

			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, env, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command. Each browser session gets its own gate.
func serveCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			sessions := web.NewSessions(func() (*entitlement.Gate, error) {
				return newGate(env.Config, env.Logger)
			}, env.Config.SessionIdle(), logging.For("sessions"))

			srv, err := web.NewServer(env, sessions, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(err)
			}
			if err := web.Run(c.Context, srv, sessions, env.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	aErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
