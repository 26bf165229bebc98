package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/trackvault-backend/api/responses"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/trackvault-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255

	optionalKeyTTL = 24 * time.Hour
	paymentKeyTTL  = 7 * 24 * time.Hour
	// pendingLease bounds how long a crashed request blocks its key.
	pendingLease = 2 * time.Minute
)

const (
	statePending   = "pending"
	stateCompleted = "completed"
)

// keyPolicy binds an Idempotency-Key policy to a route. pattern uses
// path.Match syntax so "*" stands for one path segment.
type keyPolicy struct {
	method   string
	pattern  string
	ttl      time.Duration
	required bool
}

var keyPolicies = []keyPolicy{
	{http.MethodPost, "/api/v1/orders", paymentKeyTTL, true},
	{http.MethodPost, "/api/v1/payments", paymentKeyTTL, true},
	{http.MethodPost, "/api/v1/payments/*/retry", paymentKeyTTL, true},
	{http.MethodPost, "/api/v1/admin/payments/*/refund", paymentKeyTTL, true},

	{http.MethodPatch, "/api/v1/admin/orders/*/status", optionalKeyTTL, false},
	{http.MethodPost, "/api/v1/cart/items", optionalKeyTTL, false},
	{http.MethodPost, "/api/v1/ratings", optionalKeyTTL, false},
	{http.MethodPost, "/api/v1/notifications/*/read", optionalKeyTTL, false},
	{http.MethodPost, "/api/v1/notifications/read-all", optionalKeyTTL, false},
}

func policyFor(method, urlPath string) (keyPolicy, bool) {
	urlPath = strings.TrimSuffix(urlPath, "/")
	if urlPath == "" {
		return keyPolicy{}, false
	}
	for _, p := range keyPolicies {
		if p.method != method {
			continue
		}
		if ok, _ := path.Match(p.pattern, urlPath); ok {
			return p, true
		}
	}
	return keyPolicy{}, false
}

// storedResponse is the JSON value kept under the idempotency key. A pending
// entry reserves the key while the first request is still running.
type storedResponse struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes writes on the routes in keyPolicies safe to retry. The
// first request with a key reserves it, runs, and stores its response; a
// repeat with the same body gets that response back, a repeat with a
// different body or one that arrives while the first is running gets 409.
// 5xx responses release the key so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			switch {
			case clientKey == "" && !policy.required:
				next.ServeHTTP(w, r)
				return
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key must be at most %d characters", maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(keyScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, store, logg, w, key, fingerprint)
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}

			done := storedResponse{
				State:       stateCompleted,
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			}
			if err := save(ctx, store, key, done, policy.ttl); err != nil && logg != nil {
				logg.Error(ctx, "store idempotent response", err)
			}
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	raw, err := json.Marshal(storedResponse{State: statePending, Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(raw), pendingLease)
}

func save(ctx context.Context, store pkgredis.IdempotencyStore, key string, resp storedResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(raw), ttl)
}

func replayOrReject(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, fingerprint string) {
	raw, err := store.Get(ctx, key)
	if pkgredis.IsMiss(err) {
		// The pending lease lapsed between SETNX and GET.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency key"))
		return
	}

	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotent response"))
		return
	}
	switch {
	case prior.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request body"))
	case prior.State != stateCompleted:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		if prior.ContentType != "" {
			w.Header().Set("Content-Type", prior.ContentType)
		}
		w.Header().Set(IdempotentReplayHeader, "true")
		w.WriteHeader(prior.Status)
		_, _ = w.Write(prior.Body)
	}
}

// keyScope keeps keys from different callers and routes apart.
func keyScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, strings.TrimSuffix(r.URL.Path, "/")}, "|")
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
