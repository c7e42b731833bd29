package ops

import (
	"context"

	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/paywall"
)

// ResolveInput contains parameters for the ResolvePaywall operation.
type ResolveInput struct {
	Choice string // required: subscribe or close
}

// ResolveOutput contains the result of the ResolvePaywall operation.
type ResolveOutput struct {
	paywall.Resolution
	Balance entitlement.Balance `json:"balance"`
}

// ResolvePaywall applies the user's paywall choice to the session's gate.
func ResolvePaywall(ctx context.Context, env *Env, gate *entitlement.Gate, input ResolveInput) (*ResolveOutput, error) {
	choice, err := paywall.ParseChoice(input.Choice)
	if err != nil {
		return nil, err
	}

	res, err := env.Paywall.Resolve(ctx, choice, gate)
	if err != nil {
		return nil, err
	}

	return &ResolveOutput{
		Resolution: res,
		Balance:    gate.Balance(),
	}, nil
}
