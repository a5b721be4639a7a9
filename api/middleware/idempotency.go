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

	"github.com/angelmondragon/scentmarket-backend/api/responses"
	"github.com/angelmondragon/scentmarket-backend/api/validators"
	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/scentmarket-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute
)

// ResponseStore persists replayable responses keyed by Idempotency-Key.
type ResponseStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotencyRule struct {
	method  string
	pattern string
	ttl     time.Duration
}

func idempotencyRules(cfg config.IdempotencyConfig) []idempotencyRule {
	return []idempotencyRule{
		{method: http.MethodPost, pattern: "/api/v1/checkout", ttl: cfg.CheckoutTTL},
		{method: http.MethodPost, pattern: "/api/v1/cart/items", ttl: cfg.CartTTL},
		{method: http.MethodPut, pattern: "/api/admin/v1/orders/{orderId}/status", ttl: cfg.AdminStatusTTL},
	}
}

type recordState string

const (
	statePending  recordState = "pending"
	stateComplete recordState = "complete"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency makes the configured write routes safe to retry. The first
// request with a key claims it, later requests with the same key and body get
// the stored response, and a different body under the same key is rejected.
// Responses with a 5xx or 429 status release the key so the client may retry.
func Idempotency(store ResponseStore, cfg config.IdempotencyConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	rules := idempotencyRules(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(rules, r.Method, routePattern(r))
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
			case len(clientKey) > maxIdempotencyKey:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			if int64(len(body)) > validators.MaxBodyBytes {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashRequest(body)
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			claimed, err := claim(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !claimed {
				replay(ctx, store, key, hash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if retryable(capture.statusCode()) {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
					logError(ctx, logg, "release idempotency key", err)
				}
				return
			}
			record := idempotencyRecord{
				State:       stateComplete,
				RequestHash: hash,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := saveRecord(context.WithoutCancel(ctx), store, key, record, ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

// retryable reports whether a response must not be replayed for its key.
func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func claim(ctx context.Context, store ResponseStore, key, hash string) (bool, error) {
	payload, err := json.Marshal(idempotencyRecord{State: statePending, RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := store.SetNX(ctx, key, string(payload), pendingTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func replay(ctx context.Context, store ResponseStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// claim expired between SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != stateComplete:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

func saveRecord(ctx context.Context, store ResponseStore, key string, record idempotencyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

func hashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the matched chi pattern. Mid-routing the pattern still
// ends in a wildcard, so the raw path is used instead.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(rules []idempotencyRule, method, route string) (time.Duration, bool) {
	if route == "" {
		return 0, false
	}
	for _, rule := range rules {
		if rule.method == method && matchRoute(rule.pattern, route) {
			return rule.ttl, true
		}
	}
	return 0, false
}

// matchRoute compares path segments; a {param} segment in pattern matches
// any single non-empty segment of route.
func matchRoute(pattern, route string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(route, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
