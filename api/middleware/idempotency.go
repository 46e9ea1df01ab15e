package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-settlement/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-settlement/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	maxIdempotencyKeyLen   = 255
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// Upper bound on a single money-moving request; the provider timeout is well below it.
	inflightTTL = 2 * time.Minute
)

// Routes that accept Idempotency-Key, keyed by method and chi pattern. Money-moving
// routes keep their replay record for a week.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/v1/payments":                                criticalIdempotencyTTL,
	"POST /api/v1/payments/{transactionId}/refund":         criticalIdempotencyTTL,
	"POST /api/v1/subscriptions":                           criticalIdempotencyTTL,
	"POST /api/v1/subscriptions/{subscriptionId}/cancel":   defaultIdempotencyTTL,
	"POST /api/admin/v1/payments/{transactionId}/complete": defaultIdempotencyTTL,
}

type replayRecord struct {
	Status      int             `json:"status"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	RawBody     []byte          `json:"raw_body,omitempty"`
	RequestHash string          `json:"request_hash"`
}

// Idempotency replays the first non-5xx response for a (user, route, key) triple. A key
// is claimed before the handler runs so a concurrent duplicate gets 409 instead of a
// second settlement attempt.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestDigest(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			if record, found, err := loadReplay(ctx, store, key); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			} else if found {
				if record.RequestHash != hash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				record.write(w)
				return
			}

			lockKey := key + ":inflight"
			claimed, err := store.SetNX(ctx, lockKey, hash, inflightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
				return
			}
			// The claim is dropped with a fresh context so a cancelled request cannot strand it.
			defer func() {
				if err := store.Del(context.WithoutCancel(ctx), lockKey); err != nil {
					logWarn(ctx, logg, "idempotency.release_failed", err)
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			record := newReplayRecord(status, capture.Header().Get("Content-Type"), capture.body.Bytes(), hash)
			payload, err := json.Marshal(record)
			if err != nil {
				logWarn(ctx, logg, "idempotency.encode_failed", err)
				return
			}
			if _, err := store.SetNX(context.WithoutCancel(ctx), key, string(payload), ttl); err != nil {
				logWarn(ctx, logg, "idempotency.persist_failed", err)
			}
		})
	}
}

func loadReplay(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*replayRecord, bool, error) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && stored == "") {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &record, true, nil
}

// JSON bodies are stored inline so the records stay readable in redis-cli.
func newReplayRecord(status int, contentType string, body []byte, hash string) replayRecord {
	record := replayRecord{Status: status, ContentType: contentType, RequestHash: hash}
	if json.Valid(body) {
		record.Body = json.RawMessage(bytes.TrimSpace(body))
	} else if len(body) > 0 {
		record.RawBody = body
	}
	return record
}

func (rr *replayRecord) write(w http.ResponseWriter) {
	if rr.ContentType != "" {
		w.Header().Set("Content-Type", rr.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rr.Status)
	switch {
	case len(rr.Body) > 0:
		_, _ = w.Write(rr.Body)
	case len(rr.RawBody) > 0:
		_, _ = w.Write(rr.RawBody)
	}
}

func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func requestDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+pattern]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logWarn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithField(ctx, "error", err.Error()), msg)
}
