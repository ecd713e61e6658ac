package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeKeyResolver struct {
	mu       sync.Mutex
	accounts map[string]string
	touched  []string
}

func (f *fakeKeyResolver) Resolve(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.accounts[key]; ok {
		return acc, nil
	}
	return "", ErrInvalidCredential
}

func (f *fakeKeyResolver) TouchLastUsed(ctx context.Context, key string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, key)
	return nil
}

func credentialRouter(t *testing.T, keys KeyResolver) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := testManager(t)
	r := gin.New()
	r.POST("/send", RequireCredential(m, keys), func(c *gin.Context) {
		acc, err := AccountID(c.Request.Context())
		if err != nil {
			c.JSON(500, gin.H{"error": true})
			return
		}
		method, _ := ResolvedBy(c.Request.Context())
		c.JSON(200, gin.H{"account_id": acc, "method": string(method)})
	})
	return r, m
}

func TestRequireCredential_APIKey(t *testing.T) {
	keys := &fakeKeyResolver{accounts: map[string]string{"key-1": "acc-1"}}
	r, _ := credentialRouter(t, keys)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.Header.Set("X-Api-Key", "key-1")

	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRequireCredential_InvalidAPIKey(t *testing.T) {
	keys := &fakeKeyResolver{accounts: map[string]string{}}
	r, _ := credentialRouter(t, keys)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.Header.Set("X-Api-Key", "revoked")

	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireCredential_APIKeyPrecedence(t *testing.T) {
	// A valid bearer token must not rescue a bad API key.
	keys := &fakeKeyResolver{accounts: map[string]string{}}
	r, m := credentialRouter(t, keys)

	tok, err := m.Issue(time.Now(), "acc-2", "reseller")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.Header.Set("X-Api-Key", "revoked")
	req.Header.Set("Authorization", "Bearer "+tok)

	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireCredential_Bearer(t *testing.T) {
	keys := &fakeKeyResolver{accounts: map[string]string{}}
	r, m := credentialRouter(t, keys)

	tok, err := m.Issue(time.Now(), "acc-2", "reseller")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRequireCredential_NoCredential(t *testing.T) {
	keys := &fakeKeyResolver{accounts: map[string]string{}}
	r, _ := credentialRouter(t, keys)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)

	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
