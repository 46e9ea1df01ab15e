package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/internal/providers"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/metrics"
)

// Webhook results recorded on the payment_webhooks_total metric.
const (
	ResultSettled   = "settled"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultUntrusted = "untrusted"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

// At most one webhook_rejected audit row is written per method in each window. The
// route is unauthenticated, so every rejection is still logged and counted.
const rejectAuditWindow = time.Minute

type settler interface {
	Settle(ctx context.Context, externalRef string, outcome enums.SettlementOutcome) error
}

type adapterResolver interface {
	Resolve(method enums.PaymentMethod) (providers.Adapter, error)
}

type dedupeGuard interface {
	Claim(ctx context.Context, scope, eventID string) (bool, error)
	Release(ctx context.Context, scope, eventID string) error
}

type auditAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type ServiceParams struct {
	Settlement settler
	Providers  adapterResolver
	Guard      dedupeGuard
	Audit      auditAppender
	Metrics    *metrics.SettlementMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

// Service turns raw provider notifications into settle calls. It never returns an error:
// providers retry anything but a 2xx, so every failure is logged and reported through the
// acknowledged flag instead.
type Service struct {
	settlement settler
	providers  adapterResolver
	guard      dedupeGuard
	audit      auditAppender
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Settlement == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	case params.Providers == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider registry required")
	case params.Audit == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit service required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		settlement: params.Settlement,
		providers:  params.Providers,
		guard:      params.Guard,
		audit:      params.Audit,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// SignatureHeader names the header carrying the signature for method, or "" when the
// method has no adapter.
func (s *Service) SignatureHeader(method enums.PaymentMethod) string {
	adapter, err := s.providers.Resolve(method)
	if err != nil {
		return ""
	}
	return adapter.SignatureHeader()
}

// Handle processes one delivery. It reports true when the event was trusted and either
// applied, recognised as a duplicate, or deliberately ignored.
func (s *Service) Handle(ctx context.Context, method enums.PaymentMethod, rawBody []byte, signature string) bool {
	ctx = s.logg.WithFields(ctx, map[string]any{"method": string(method), "event": "webhook"})

	adapter, err := s.providers.Resolve(method)
	if err != nil {
		s.logg.Warn(ctx, "webhook for unsupported payment method")
		s.metrics.IncWebhook(string(method), ResultMalformed)
		return false
	}

	if !adapter.VerifySignature(rawBody, signature) {
		s.reject(ctx, method, rawBody)
		return false
	}

	event, err := adapter.ParseEvent(rawBody)
	if err != nil {
		s.logg.Error(ctx, "webhook payload could not be parsed", err)
		s.metrics.IncWebhook(string(method), ResultMalformed)
		return false
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		eventID = bodyDigest(rawBody)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"provider_event_id": eventID, "provider_event_type": event.Type})

	if event.Ignored {
		s.logg.Debug(ctx, "webhook event type ignored")
		s.metrics.IncWebhook(string(method), ResultIgnored)
		return true
	}

	scope := string(method)
	if s.guard != nil {
		first, err := s.guard.Claim(ctx, scope, eventID)
		switch {
		case err != nil:
			// The conditional update in settle stays authoritative; continue without the fast path.
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook dedupe unavailable")
		case !first:
			s.logg.Info(ctx, "duplicate webhook delivery skipped")
			s.metrics.IncWebhook(string(method), ResultDuplicate)
			return true
		}
	}

	if err := s.settlement.Settle(ctx, event.ExternalRef, event.Outcome); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "external_ref", event.ExternalRef), "webhook settlement failed", err)
		s.metrics.IncWebhook(string(method), ResultFailed)
		if s.guard != nil {
			if relErr := s.guard.Release(ctx, scope, eventID); relErr != nil {
				s.logg.Error(ctx, "failed to release webhook dedupe key", relErr)
			}
		}
		return false
	}
	s.metrics.IncWebhook(string(method), ResultSettled)
	return true
}

func (s *Service) reject(ctx context.Context, method enums.PaymentMethod, rawBody []byte) {
	err := pkgerrors.New(pkgerrors.CodeUntrustedWebhook, "webhook signature verification failed")
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "untrusted webhook discarded")
	s.metrics.IncWebhook(string(method), ResultUntrusted)

	if !s.sampleRejection(ctx, method) {
		return
	}
	auditErr := s.audit.Append(ctx, nil, audit.Entry{
		Actor:      "provider:" + string(method),
		Action:     audit.ActionWebhookRejected,
		EntityType: audit.EntityWebhook,
		EntityID:   bodyDigest(rawBody),
		Payload: map[string]any{
			"method":     method,
			"reason":     "invalid_signature",
			"body_bytes": len(rawBody),
		},
	})
	if auditErr != nil {
		s.logg.Error(ctx, "failed to audit rejected webhook", auditErr)
	}
}

// sampleRejection claims the audit slot for method in the current window. Without a
// working guard nothing is audited.
func (s *Service) sampleRejection(ctx context.Context, method enums.PaymentMethod) bool {
	if s.guard == nil {
		return false
	}
	window := s.now().UTC().Truncate(rejectAuditWindow).Format(time.RFC3339)
	first, err := s.guard.Claim(ctx, "rejected:"+string(method), window)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "rejected webhook audit sampling unavailable")
		return false
	}
	return first
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
