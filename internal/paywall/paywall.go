// Package paywall presents the upgrade offer and resolves the user's choice.
package paywall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/ids"
	"github.com/hpungsan/atlas/internal/metrics"
)

// Offer is the content of the subscription screen.
type Offer struct {
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Tier        string   `json:"tier"`
	Currency    string   `json:"currency"`
	Price       string   `json:"price"`
	Period      string   `json:"period"`
	CancelNote  string   `json:"cancel_note"`
	Features    []string `json:"features"`
	ActionLabel string   `json:"action_label"`
	LegalText   string   `json:"legal_text"`
}

// PriceText renders e.g. "JOD 1.00/month".
func (o Offer) PriceText() string {
	return fmt.Sprintf("%s %s%s", o.Currency, o.Price, o.Period)
}

// DefaultOffer returns the premium offer.
func DefaultOffer() Offer {
	return Offer{
		Title:      "Unlock ATLAS AI",
		Subtitle:   "Supercharge your studies with unlimited power.",
		Tier:       "PREMIUM",
		Currency:   "JOD",
		Price:      "1.00",
		Period:     "/month",
		CancelNote: "Cancel anytime",
		Features: []string{
			"Unlimited Question Scans",
			"Unlimited PDF Uploads",
			"Detailed Explanations",
			"Priority AI Engine (Faster)",
			"No Ads",
		},
		ActionLabel: "Subscribe for 1 JOD",
		LegalText: "Payment will be charged to your Google Play account. " +
			"Subscription automatically renews unless auto-renew is turned off " +
			"at least 24-hours before the end of the current period.",
	}
}

// Choice is what the user did on the subscription screen.
type Choice string

const (
	ChoiceSubscribe Choice = "subscribe"
	ChoiceClose     Choice = "close"
)

// ParseChoice validates a choice string.
func ParseChoice(s string) (Choice, error) {
	switch Choice(strings.ToLower(strings.TrimSpace(s))) {
	case ChoiceSubscribe:
		return ChoiceSubscribe, nil
	case ChoiceClose:
		return ChoiceClose, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("choice must be one of: subscribe, close (got %q)", s))
}

// Outcome is the discriminated result of presenting the offer.
type Outcome string

const (
	OutcomePurchased Outcome = "purchased"
	OutcomeDismissed Outcome = "dismissed"
)

// Receipt identifies a completed purchase.
type Receipt struct {
	ID          string    `json:"id"`
	Tier        string    `json:"tier"`
	Amount      string    `json:"amount"`
	PurchasedAt time.Time `json:"purchased_at"`
	Demo        bool      `json:"demo"`
}

// Biller charges for an offer.
type Biller interface {
	Purchase(ctx context.Context, offer Offer) (Receipt, error)
}

// DemoMessage is shown after a demo purchase.
const DemoMessage = "This is a demo. In the real app, this opens Google Play Billing."

// DemoBiller completes every purchase without charging.
type DemoBiller struct {
	Now func() time.Time
}

// Purchase implements Biller.
func (b DemoBiller) Purchase(ctx context.Context, offer Offer) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	at := now()
	id, err := ids.NewAt(at)
	if err != nil {
		return Receipt{}, errors.NewInternal(err)
	}
	return Receipt{
		ID:          id,
		Tier:        offer.Tier,
		Amount:      offer.PriceText(),
		PurchasedAt: at,
		Demo:        true,
	}, nil
}

// Upgrader is switched to unlimited mode after a purchase.
// entitlement.Gate implements it.
type Upgrader interface {
	Upgrade()
}

// Resolution is the result of Resolve.
type Resolution struct {
	Outcome Outcome  `json:"outcome"`
	Receipt *Receipt `json:"receipt,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Paywall resolves upgrade offers against a biller.
type Paywall struct {
	offer  Offer
	biller Biller
	logger zerolog.Logger
}

// New creates a paywall for offer. A nil biller uses DemoBiller.
func New(offer Offer, biller Biller, logger zerolog.Logger) *Paywall {
	if biller == nil {
		biller = DemoBiller{}
	}
	return &Paywall{offer: offer, biller: biller, logger: logger}
}

// Offer returns the offer to present.
func (p *Paywall) Offer() Offer {
	return p.offer
}

// Resolve applies the user's choice. Subscribe purchases the offer and
// upgrades u; close leaves u untouched. A failed purchase is an error and
// does not upgrade.
func (p *Paywall) Resolve(ctx context.Context, choice Choice, u Upgrader) (Resolution, error) {
	switch choice {
	case ChoiceClose:
		metrics.RecordPaywallOutcome(string(OutcomeDismissed))
		p.logger.Info().Msg("paywall dismissed")
		return Resolution{Outcome: OutcomeDismissed}, nil

	case ChoiceSubscribe:
		receipt, err := p.biller.Purchase(ctx, p.offer)
		if err != nil {
			p.logger.Warn().Err(err).Msg("purchase failed")
			return Resolution{}, errors.As(err)
		}
		if u != nil {
			u.Upgrade()
		}
		metrics.RecordPaywallOutcome(string(OutcomePurchased))
		p.logger.Info().
			Str("receipt", receipt.ID).
			Str("tier", receipt.Tier).
			Bool("demo", receipt.Demo).
			Msg("subscription purchased")

		res := Resolution{Outcome: OutcomePurchased, Receipt: &receipt}
		if receipt.Demo {
			res.Message = DemoMessage
		}
		return res, nil
	}
	return Resolution{}, errors.NewInvalidRequest(fmt.Sprintf("unknown choice %q", choice))
}
