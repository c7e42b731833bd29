package entitlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/errors"
)

// Decision is the result of one RequestCapture call.
type Decision string

const (
	DecisionProceed       Decision = "proceed"             // content acquired, credit charged
	DecisionNoOp          Decision = "noop"                // user cancelled, nothing changed
	DecisionRedirect      Decision = "redirect_to_paywall" // exhausted, provider not invoked
	DecisionCaptureFailed Decision = "capture_failed"      // provider failed, nothing charged
)

// Outcome describes what the gate decided and the balance afterwards.
type Outcome struct {
	Decision Decision           `json:"decision"`
	Handle   *capture.Handle    `json:"handle,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Err      *errors.AtlasError `json:"-"`
	Balance  Balance            `json:"balance"`
}

// Balance is a read-only view of the budget for display.
type Balance struct {
	Remaining int           `json:"remaining"`
	Capacity  int           `json:"capacity"`
	Fraction  float64       `json:"fraction"`
	Unlimited bool          `json:"unlimited"`
	ResetsAt  time.Time     `json:"resets_at"`
	ResetsIn  time.Duration `json:"-"`
	ResetText string        `json:"reset_text"`
}

func newBalance(s State, now time.Time) Balance {
	b := Balance{
		Remaining: s.Remaining,
		Capacity:  s.Capacity,
		Unlimited: s.Unlimited,
		ResetsAt:  s.WindowResetAt,
		ResetsIn:  s.WindowResetAt.Sub(now),
	}
	if s.Capacity > 0 {
		b.Fraction = float64(s.Remaining) / float64(s.Capacity)
	}
	if b.Fraction < 0 {
		b.Fraction = 0
	}
	if b.Fraction > 1 {
		b.Fraction = 1
	}
	if b.ResetsIn < 0 {
		b.ResetsIn = 0
	}
	b.ResetText = resetText(s.WindowResetAt, now)
	return b
}

// Exhausted reports whether the next capture would be redirected.
func (b Balance) Exhausted() bool {
	return !b.Unlimited && b.Remaining == 0
}

// Display renders the credit counter, e.g. "2/3".
func (b Balance) Display() string {
	if b.Unlimited {
		return "Unlimited"
	}
	return fmt.Sprintf("%d/%d", b.Remaining, b.Capacity)
}

// Percent is the progress bar width in whole percent.
func (b Balance) Percent() int {
	if b.Unlimited {
		return 100
	}
	return int(b.Fraction*100 + 0.5)
}

// resetText renders e.g. "Resets in 14 hours".
func resetText(at, now time.Time) string {
	if !at.After(now) {
		return "Resets now"
	}
	return "Resets in " + strings.TrimSpace(humanize.RelTime(now, at, "", ""))
}
