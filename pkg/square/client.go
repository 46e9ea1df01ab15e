// Package square wraps the Square SDK for card settlement: charging a card nonce,
// refunding the resulting payment and authenticating Square's webhook deliveries.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// Client is safe for concurrent use.
type Client struct {
	sdk           *sqclient.Client
	environment   string
	locationID    string
	webhookSecret []byte
	webhookURL    string
	logg          *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square: logger required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = "sandbox"
	}
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "square: environment must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	secret := strings.TrimSpace(cfg.WebhookSecret)
	switch {
	case token == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square: access token required")
	case secret == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square: webhook signature key required")
	case strings.TrimSpace(cfg.WebhookURL) == "":
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square: webhook notification url required")
	}

	c := &Client{
		sdk:           sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		environment:   env,
		locationID:    strings.TrimSpace(cfg.LocationID),
		webhookSecret: []byte(secret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		logg:          logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return c, nil
}

func (c *Client) Environment() string { return c.environment }

// logCall emits one line per SDK round trip. Card nonces never reach the log.
func (c *Client) logCall(ctx context.Context, op string, fields map[string]any, err error) {
	fields["operation"] = op
	ctx = c.logg.WithFields(ctx, fields)
	if err != nil {
		c.logg.Error(ctx, "square call failed", err)
		return
	}
	c.logg.Info(ctx, "square call finished")
}

// toDomainError maps a Square failure onto the settlement error codes. Credential
// problems are ours, not the caller's, so they surface as dependency failures.
func toDomainError(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, e := range apiErrors(apiErr) {
		switch {
		case e.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case e.Category == sq.ErrorCategoryPaymentMethodError:
			code = pkgerrors.CodeValidation
		case e.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeDependency
		case e.Category == sq.ErrorCategoryRateLimitError:
			code = pkgerrors.CodeRateLimit
		default:
			continue
		}
		break
	}
	return pkgerrors.Wrap(code, err, "square "+op)
}

// apiErrors decodes the {"errors":[...]} body Square attaches to non-2xx responses.
func apiErrors(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return pkgerrors.CodeDependency
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
