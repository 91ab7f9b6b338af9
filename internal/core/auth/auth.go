// Package auth provides HMAC-based API key authentication for the HTTP API.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// projectIDKey is the context key for storing the authenticated project ID.
const projectIDKey = contextKey("project_id")

// apiKeyHeader carries the client's API key.
const apiKeyHeader = "X-Api-Key"

// Queries interface defines database operations needed for authentication.
// Implemented by *db.Queries to allow query loading via LoadQueries().
type Queries interface {
	Get(name string, dest interface{}, args ...interface{}) error
	Exec(name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
	}
}

// Authenticate validates an API key and returns the owning project ID.
// Returns a specific error for each failure mode (5-tier taxonomy).
func (a *Authenticator) Authenticate(_ context.Context, apiKey string) (types.ProjectID, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	// O(1) lookup of HMAC secret using secret_id from key format
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	// Query database by key_hash using named query (unique constraint ensures single result)
	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		ProjectID  string       `db:"project_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.Get("get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Update last_used_at if >1 minute since last update
	// 1-minute throttle reduces write amplification for busy clients
	if shouldUpdateLastUsed(result.LastUsedAt) {
		_, _ = a.queries.Exec("update-last-used", time.Now().UTC(), result.APIKeyID)
	}

	return types.ProjectID(result.ProjectID), nil
}

// shouldUpdateLastUsed implements the 1-minute last_used_at throttle.
func shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return time.Since(lastUsed.Time) > time.Minute
}

// Middleware authenticates every request and injects the project ID into
// the request context. Unauthenticated requests never reach the handler.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get(apiKeyHeader)
		if apiKey == "" {
			writeAuthError(w, http.StatusUnauthorized, ErrMissingKey)
			return
		}

		projectID, err := a.Authenticate(r.Context(), apiKey)
		if err != nil {
			switch {
			case errors.Is(err, ErrKeyRevoked):
				writeAuthError(w, http.StatusForbidden, err)
			case strings.Contains(err.Error(), "database error"):
				writeAuthError(w, http.StatusServiceUnavailable, errors.New("authentication unavailable"))
			default:
				writeAuthError(w, http.StatusUnauthorized, err)
			}
			return
		}

		ctx := context.WithValue(r.Context(), projectIDKey, projectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProjectIDFromContext extracts the authenticated project ID from context.
// Returns empty string if the request was not authenticated.
func ProjectIDFromContext(ctx context.Context) types.ProjectID {
	if projectID, ok := ctx.Value(projectIDKey).(types.ProjectID); ok {
		return projectID
	}
	return ""
}

// WithProjectID returns a context carrying an authenticated project ID.
// Used by tests and internal callers that bypass the HTTP middleware.
func WithProjectID(ctx context.Context, projectID types.ProjectID) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
