package providers

import (
	"context"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/square"
	"github.com/angelmondragon/packfinderz-settlement/pkg/stripe"
)

// NewRegistryFromConfig builds either the live adapters or, when enabled, the simulated set.
// Config validation keeps simulated mode away from production credentials.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Registry, error) {
	if cfg.Providers.Simulated {
		if logg != nil {
			logg.Warn(ctx, "payment providers running in simulated mode")
		}
		adapters := []Adapter{
			NewSimulatedAdapter(enums.PaymentMethodCard, cfg.BankTransfer),
			NewSimulatedAdapter(enums.PaymentMethodInstantTransfer, cfg.BankTransfer),
		}
		if cfg.FeatureFlags.AllowBankTransfer {
			adapters = append(adapters, NewSimulatedAdapter(enums.PaymentMethodBankTransfer, cfg.BankTransfer))
		}
		return NewRegistry(true, adapters...)
	}

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, err
	}
	card, err := NewCardAdapter(squareClient)
	if err != nil {
		return nil, err
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	instant, err := NewInstantAdapter(stripeClient)
	if err != nil {
		return nil, err
	}

	adapters := []Adapter{card, instant}
	if cfg.FeatureFlags.AllowBankTransfer {
		adapters = append(adapters, NewBankAdapter(cfg.BankTransfer))
	}
	return NewRegistry(false, adapters...)
}
