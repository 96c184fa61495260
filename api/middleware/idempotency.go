package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const (
	idempotencyHeader   = "Idempotency-Key"
	idempotencyReplayed = "Idempotent-Replayed"
	pendingMarkerPrefix = "pending:"
	maxIdempotentBody   = 1 << 20

	msgIdempotencyInFlight = "Requisição em andamento, aguarde."
	msgIdempotencyReused   = "Esta chave de idempotência já foi usada com outros dados."
)

// IdempotencyStore is the Redis surface the middleware needs.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

type IdempotencyPolicy struct {
	TTL        time.Duration
	PendingTTL time.Duration
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response for a repeated Idempotency-Key. The
// header is optional. A key is claimed before the handler runs, so a
// concurrent duplicate gets 409 instead of running twice; a 5xx releases the
// claim so the client can retry. Reusing a key with a different body is a 409.
func Idempotency(store IdempotencyStore, policy IdempotencyPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || policy.TTL <= 0 {
			return next
		}
		pendingTTL := policy.PendingTTL
		if pendingTTL <= 0 {
			pendingTTL = time.Minute
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !validRequestID(id) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid Idempotency-Key header").
					WithDetails(map[string]any{"header": idempotencyHeader, "max_length": maxRequestIDLen}))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(idempotencyScope(r), id)
			marker := pendingMarkerPrefix + hash

			claimed, err := store.SetNX(ctx, key, marker, pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(ctx, store, key, hash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusOrOK()
			if status >= http.StatusInternalServerError {
				if _, err := store.DeleteIfEquals(ctx, key, marker); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			record, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				err = store.Set(ctx, key, string(record), policy.TTL)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func replayOrReject(ctx context.Context, store IdempotencyStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	// an expired claim reads as missing; treat it like one still running
	if !ok || strings.HasPrefix(raw, pendingMarkerPrefix) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, msgIdempotencyInFlight))
		return
	}

	var record storedResponse
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, msgIdempotencyReused))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(idempotencyReplayed, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

// idempotencyScope keys records by caller and route so two callers never
// share a key space. Public routes fall back to the client IP.
func idempotencyScope(r *http.Request) string {
	caller := clientIP(r)
	if id := UserIDFromContext(r.Context()); id != uuid.Nil {
		caller = id.String()
	}
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	return strings.Join([]string{r.Method, route, caller}, "|")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
