package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cinderhouse/watchkeeper/internal/core/db"
	"github.com/cinderhouse/watchkeeper/internal/types"
)

func TestParseAPIKey(t *testing.T) {
	validSecretID := strings.Repeat("0", 32)
	validRandom := strings.Repeat("a", 64)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", FormatAPIKey(validSecretID, validRandom), false},
		{"wrong prefix", "tk-v1-" + validSecretID + "-" + validRandom, true},
		{"wrong version", "wk-v2-" + validSecretID + "-" + validRandom, true},
		{"missing parts", "wk-v1-" + validSecretID, true},
		{"short secret_id", "wk-v1-0123-" + validRandom, true},
		{"short random", "wk-v1-" + validSecretID + "-abcdef", true},
		{"uppercase hex rejected", "wk-v1-" + strings.Repeat("A", 32) + "-" + validRandom, true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, randomData, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKeyFormat) {
					t.Errorf("ParseAPIKey() error = %v, want ErrInvalidKeyFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey() error = %v, want nil", err)
			}
			if secretID != validSecretID || randomData != validRandom {
				t.Errorf("ParseAPIKey() = (%s, %s), want (%s, %s)", secretID, randomData, validSecretID, validRandom)
			}
		})
	}
}

func TestComputeHMAC_Deterministic(t *testing.T) {
	secret := []byte(strings.Repeat("s", 32))
	key := FormatAPIKey(strings.Repeat("0", 32), strings.Repeat("a", 64))

	first := ComputeHMAC(secret, key)
	second := ComputeHMAC(secret, key)
	if !VerifyHMAC(first, second) {
		t.Error("same secret and key produced different HMACs")
	}

	other := ComputeHMAC([]byte(strings.Repeat("x", 32)), key)
	if VerifyHMAC(first, other) {
		t.Error("different secrets produced matching HMACs")
	}
}

// provisionKey inserts an API key row and returns the full key string.
func provisionKey(t *testing.T, q *db.Queries, secretID string, secret []byte, projectID types.ProjectID) (apiKey, apiKeyID string) {
	t.Helper()

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		t.Fatal(err)
	}
	apiKey = FormatAPIKey(secretID, hex.EncodeToString(random))
	apiKeyID = uuid.Must(uuid.NewV7()).String()

	_, err := q.Exec("insert-api-key",
		apiKeyID, projectID, secretID, ComputeHMAC(secret, apiKey), time.Now().UTC())
	if err != nil {
		t.Fatalf("insert-api-key failed: %v", err)
	}
	return apiKey, apiKeyID
}

func openQueries(t *testing.T) *db.Queries {
	t.Helper()

	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "auth_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.MigrateUp(conn); err != nil {
		t.Fatal(err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestAuthenticate(t *testing.T) {
	q := openQueries(t)

	secretID := strings.Repeat("0", 31) + "1"
	secret := []byte(strings.Repeat("s", 32))
	projectID := types.NewProjectID()
	a := NewAuthenticator(map[string][]byte{secretID: secret}, q)

	apiKey, apiKeyID := provisionKey(t, q, secretID, secret, projectID)

	t.Run("valid key", func(t *testing.T) {
		got, err := a.Authenticate(context.Background(), apiKey)
		if err != nil {
			t.Fatalf("Authenticate() error = %v, want nil", err)
		}
		if got != projectID {
			t.Errorf("Authenticate() = %s, want %s", got, projectID)
		}
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := a.Authenticate(context.Background(), "not-a-key")
		if !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("Authenticate() error = %v, want ErrInvalidKeyFormat", err)
		}
	})

	t.Run("unknown secret_id", func(t *testing.T) {
		unknown := FormatAPIKey(strings.Repeat("f", 32), strings.Repeat("a", 64))
		_, err := a.Authenticate(context.Background(), unknown)
		if !errors.Is(err, ErrUnknownKey) {
			t.Errorf("Authenticate() error = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("key not in database", func(t *testing.T) {
		// Well-formed under a known secret, but never provisioned.
		forged := FormatAPIKey(secretID, strings.Repeat("b", 64))
		_, err := a.Authenticate(context.Background(), forged)
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Authenticate() error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("revoked key", func(t *testing.T) {
		if _, err := q.Exec("revoke-api-key", time.Now().UTC(), apiKeyID); err != nil {
			t.Fatal(err)
		}
		_, err := a.Authenticate(context.Background(), apiKey)
		if !errors.Is(err, ErrKeyRevoked) {
			t.Errorf("Authenticate() error = %v, want ErrKeyRevoked", err)
		}
	})
}

func TestMiddleware(t *testing.T) {
	q := openQueries(t)

	secretID := strings.Repeat("0", 31) + "2"
	secret := []byte(strings.Repeat("s", 32))
	projectID := types.NewProjectID()
	a := NewAuthenticator(map[string][]byte{secretID: secret}, q)
	apiKey, _ := provisionKey(t, q, secretID, secret, projectID)

	var seenProject types.ProjectID
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenProject = ProjectIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Api-Key", FormatAPIKey(secretID, strings.Repeat("c", 64)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid key injects project", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Api-Key", apiKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
		if seenProject != projectID {
			t.Errorf("project in context = %s, want %s", seenProject, projectID)
		}
	})
}
