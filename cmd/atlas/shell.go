package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/ops"
	"github.com/hpungsan/atlas/internal/paywall"
)

const shellHelp = `Commands:
  scan <path>     scan an image of a question
  upload <path>   upload a PDF document
  balance         show daily credits
  offer           show the subscription offer
  subscribe       subscribe (demo billing)
  close           close the subscription screen
  history         list recent analyses
  show <id>       show an analysis
  retry <id>      retry a failed analysis for free
  quit            leave the shell`

// shellCmd creates the shell command.
func shellCmd(env *ops.Env, gate *entitlement.Gate) *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive session: scan and upload against one credit budget",
		Action: func(c *cli.Context) error {
			sh := &shell{env: env, gate: gate, out: c.App.Writer}
			return sh.run(c.Context, c.App.Reader)
		},
	}
}

// shell is a line-oriented session over one gate.
type shell struct {
	env  *ops.Env
	gate *entitlement.Gate
	out  io.Writer
}

func (s *shell) run(ctx context.Context, r io.Reader) error {
	fmt.Fprintln(s.out, "Welcome back, ATLAS AI. Type help for commands.")
	s.printBalance()

	sc := bufio.NewScanner(r)
	for {
		fmt.Fprint(s.out, "atlas> ")
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(cmd) {
		case "":
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(s.out, shellHelp)
		case "balance":
			s.printBalance()
		case "scan":
			s.capture(ctx, capture.KindImage, arg)
		case "upload":
			s.capture(ctx, capture.KindDocument, arg)
		case "offer":
			s.printOffer(s.env.Paywall.Offer())
		case "subscribe":
			s.resolve(ctx, paywall.ChoiceSubscribe)
		case "close":
			s.resolve(ctx, paywall.ChoiceClose)
		case "history":
			s.history(ctx)
		case "show":
			s.show(ctx, arg)
		case "retry":
			s.retry(ctx, arg)
		default:
			fmt.Fprintf(s.out, "Unknown command %q. Type help for commands.\n", cmd)
		}
	}
}

func (s *shell) capture(ctx context.Context, kind capture.Kind, path string) {
	provider := capture.NewFileProvider(s.env.CacheDir(), s.env.Config.MaxUploadBytes, capture.PathPicker(path), s.env.Logger)
	out, err := ops.Capture(ctx, s.env, s.gate, provider, ops.CaptureInput{Kind: kind, SessionID: "shell"})
	if err != nil {
		s.printError(err)
		return
	}

	switch out.Decision {
	case entitlement.DecisionNoOp:
		fmt.Fprintln(s.out, "Nothing was selected.")
	case entitlement.DecisionRedirect:
		fmt.Fprintln(s.out, "You are out of credits.")
		s.printOffer(*out.Offer)
	case entitlement.DecisionCaptureFailed:
		fmt.Fprintf(s.out, "%s. No credit was used.\n", out.Reason)
	case entitlement.DecisionProceed:
		fmt.Fprintln(s.out, out.LoadingText)
		s.await(ctx, out.AnalysisID)
		s.printBalance()
	}
}

// await blocks until the analysis resolves and prints it.
func (s *shell) await(ctx context.Context, id string) {
	fetched, err := ops.Fetch(ctx, s.env, ops.FetchInput{ID: id, Wait: s.env.Config.AnalysisTimeout()})
	if err != nil {
		s.printError(err)
		return
	}
	s.printAnalysis(fetched)
}

func (s *shell) show(ctx context.Context, id string) {
	fetched, err := ops.Fetch(ctx, s.env, ops.FetchInput{ID: id})
	if err != nil {
		s.printError(err)
		return
	}
	s.printAnalysis(fetched)
}

func (s *shell) retry(ctx context.Context, id string) {
	retried, err := ops.Retry(ctx, s.env, ops.RetryInput{ID: id})
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, retried.LoadingText)
	s.await(ctx, retried.ID)
}

func (s *shell) resolve(ctx context.Context, choice paywall.Choice) {
	res, err := ops.ResolvePaywall(ctx, s.env, s.gate, ops.ResolveInput{Choice: string(choice)})
	if err != nil {
		s.printError(err)
		return
	}
	if res.Message != "" {
		fmt.Fprintln(s.out, res.Message)
	}
	s.printBalance()
}

func (s *shell) history(ctx context.Context) {
	list, err := ops.List(ctx, s.env, ops.ListInput{})
	if err != nil {
		s.printError(err)
		return
	}
	if len(list.Items) == 0 {
		fmt.Fprintln(s.out, "No analyses yet.")
		return
	}
	for _, item := range list.Items {
		fmt.Fprintf(s.out, "%s  %-12s  %-9s  %s  (%s)\n",
			item.ID,
			capture.Kind(item.Kind).Label(),
			item.Status,
			item.DisplayName,
			humanize.Time(time.Unix(item.CreatedAt, 0)),
		)
	}
}

func (s *shell) printBalance() {
	b := s.gate.Balance()
	if b.Unlimited {
		fmt.Fprintln(s.out, "Daily Credits: Unlimited")
		return
	}
	fmt.Fprintf(s.out, "Daily Credits: %s (%s)\n", b.Display(), b.ResetText)
}

func (s *shell) printOffer(o paywall.Offer) {
	fmt.Fprintf(s.out, "%s\n%s\n\n%s  %s\n%s\n", o.Title, o.Subtitle, o.Tier, o.PriceText(), o.CancelNote)
	for _, f := range o.Features {
		fmt.Fprintf(s.out, "  - %s\n", f)
	}
	fmt.Fprintln(s.out, "Type subscribe to upgrade or close to go back.")
}

func (s *shell) printAnalysis(a *ops.FetchOutput) {
	switch analysis.Status(a.Status) {
	case analysis.StatusPending:
		fmt.Fprintf(s.out, "Still analyzing. Check again with: show %s\n", a.ID)
	case analysis.StatusSucceeded:
		fmt.Fprintf(s.out, "%s\n\n%s\n\n[%s]\n", a.Title, a.ReportText, a.ID)
	default:
		msg := a.Status
		if a.ErrorMessage != nil {
			msg = *a.ErrorMessage
		}
		fmt.Fprintf(s.out, "Analysis %s: %s\n", a.Status, msg)
		if a.RetryFree {
			fmt.Fprintf(s.out, "Retry for free with: retry %s\n", a.ID)
		}
	}
}

func (s *shell) printError(err error) {
	aErr := errors.As(err)
	fmt.Fprintf(s.out, "[%s] %s\n", aErr.Code, aErr.Message)
}
