package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/identity"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *identity.CallerTokenIssuer {
	t.Helper()
	ti, err := identity.NewCallerTokenIssuer("test-secret", "custodyd-test", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return ti
}

func TestNewCallerTokenIssuer_emptySecret(t *testing.T) {
	if _, err := identity.NewCallerTokenIssuer("", "x", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestCallerTokenIssuer_roundTrip(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	token, err := ti.Issue("0xpolice")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Identity() != "0xpolice" {
		t.Errorf("Identity: got %q, want 0xpolice", claims.Identity())
	}
	if claims.ID == "" {
		t.Error("expected a jti")
	}
}

func TestCallerTokenIssuer_rejectsEmptyIdentity(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	if _, err := ti.Issue(""); err == nil {
		t.Error("expected error issuing a token for the empty identity")
	}
}

func TestCallerTokenIssuer_expired(t *testing.T) {
	ti := newTestIssuer(t, time.Nanosecond)
	token, err := ti.Issue("0xpolice")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestCallerTokenIssuer_wrongSecretOrIssuer(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	token, _ := ti.Issue("0xpolice")

	other, _ := identity.NewCallerTokenIssuer("other-secret", "custodyd-test", time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Error("token signed with another secret should not verify")
	}
	otherIss, _ := identity.NewCallerTokenIssuer("test-secret", "someone-else", time.Hour)
	if _, err := otherIss.Verify(token); err == nil {
		t.Error("token from another issuer should not verify")
	}
}

func newRouter(tokens *identity.CallerTokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/act", identity.RequireCaller(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, string(identity.CallerFromCtx(c)))
	})
	return r
}

func TestRequireCaller_token(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	r := newRouter(ti)
	token, _ := ti.Issue("0xanalyst")

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, "0xanalyst"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/act", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantBody != "" && w.Body.String() != tc.wantBody {
				t.Errorf("body: got %q, want %q", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRequireCaller_tokenModeIgnoresHeader(t *testing.T) {
	r := newRouter(newTestIssuer(t, time.Hour))
	req := httptest.NewRequest(http.MethodPost, "/act", nil)
	req.Header.Set(identity.CallerHeader, "0xadmin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("header identity must not be trusted when tokens are configured, got %d", w.Code)
	}
}

func TestRequireCaller_headerMode(t *testing.T) {
	r := newRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/act", nil)
	req.Header.Set(identity.CallerHeader, " 0xlawyer ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "0xlawyer" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/act", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestCallerFromCtx_absent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := identity.CallerFromCtx(c); got != model.Identity("") {
		t.Errorf("got %q, want empty", got)
	}
}
