// Package stripe issues instant-transfer PaymentIntents and refunds and verifies Stripe webhooks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

const defaultInstantMethodType = "promptpay"

// keyPrefixes lists the secret and restricted key prefixes each environment accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test", "rk_test"},
	"live": {"sk_live", "rk_live"},
}

type Client struct {
	api           *stripe.Client
	environment   string
	webhookSecret string
	methodType    string
	logg          *logger.Logger
}

// NewClient checks the key matches the environment so a live key never runs against
// test config and the reverse.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	}
	if err := checkKey(env, apiKey); err != nil {
		return nil, err
	}

	methodType := strings.TrimSpace(cfg.InstantMethodType)
	if methodType == "" {
		methodType = defaultInstantMethodType
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client ready")
	}
	return &Client{
		api:           stripe.NewClient(apiKey),
		environment:   env,
		webhookSecret: secret,
		methodType:    methodType,
		logg:          logg,
	}, nil
}

// Environment is test or live.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func checkKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return fmt.Errorf("stripe environment must be test or live, got %q", env)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s environment requires a %s key", env, strings.Join(prefixes, "/"))
}

func (c *Client) logCall(ctx context.Context, op string, fields map[string]any, err error) {
	if c == nil || c.logg == nil {
		return
	}
	fields["operation"] = op
	ctx = c.logg.WithFields(ctx, fields)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "stripe call failed")
		return
	}
	c.logg.Info(ctx, "stripe call completed")
}

// toDomainError maps a Stripe API error onto the service's error codes. Card-level
// failures (400/402) are the caller's problem, everything else a dependency failure.
func toDomainError(err error, op string) error {
	code := pkgerrors.CodeDependency
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusPaymentRequired:
			code = pkgerrors.CodeValidation
		case http.StatusConflict:
			if apiErr.Type == stripe.ErrorTypeIdempotency {
				code = pkgerrors.CodeIdempotency
			}
		case http.StatusTooManyRequests:
			code = pkgerrors.CodeRateLimit
		}
	}
	return pkgerrors.Wrap(code, err, "stripe "+op)
}
