package ops

import (
	"context"

	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/record"
)

// recentLimit is how many analyses the home screen lists.
const recentLimit = 3

// QuickAction is a capture entry point on the home screen.
type QuickAction struct {
	Kind     capture.Kind `json:"kind"`
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle"`
}

// QuickActions are the two capture actions.
var QuickActions = []QuickAction{
	{Kind: capture.KindImage, Title: "Scan Question", Subtitle: "Get instant solutions"},
	{Kind: capture.KindDocument, Title: "Upload PDF", Subtitle: "Summarize & Solve"},
}

// Promo is the upgrade teaser shown on the home screen.
type Promo struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// HomeOutput is the home screen: credits, actions and recent history.
type HomeOutput struct {
	Greeting string              `json:"greeting"`
	AppName  string              `json:"app_name"`
	Credits  entitlement.Balance `json:"credits"`
	Actions  []QuickAction       `json:"actions"`
	Promo    *Promo              `json:"promo,omitempty"`
	Recent   []record.Summary    `json:"recent"`
}

// Home assembles the home screen for a session.
func Home(ctx context.Context, env *Env, gate *entitlement.Gate) (*HomeOutput, error) {
	bal := gate.Balance()

	recent, err := List(ctx, env, ListInput{Limit: recentLimit})
	if err != nil {
		return nil, err
	}

	out := &HomeOutput{
		Greeting: "Welcome back,",
		AppName:  "ATLAS AI",
		Credits:  bal,
		Actions:  QuickActions,
		Recent:   recent.Items,
	}
	if !bal.Unlimited {
		offer := env.Paywall.Offer()
		out.Promo = &Promo{
			Title: "Unlock Limitless Learning",
			Text:  "Get unlimited scans and detailed explanations for just 1 " + offer.Currency + "/month.",
		}
	}
	return out, nil
}
