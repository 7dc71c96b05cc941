package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestIssueToken_RoundTrip(t *testing.T) {
	tokenStr, err := IssueToken(TokenRequest{
		Subject:  "staff-1",
		Role:     RoleStaff,
		TenantID: "clinic_south",
		Issuer:   "medisched",
		Audience: "medisched-api",
		TTL:      time.Hour,
	}, testSigningKey, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "medisched", Audience: "medisched-api"}
	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if UserIDFromContext(ctx) != "staff-1" {
			t.Errorf("unexpected subject %q", UserIDFromContext(ctx))
		}
		if EffectiveRole(RolesFromContext(ctx)) != RoleStaff {
			t.Errorf("unexpected roles %v", RolesFromContext(ctx))
		}
		if tid, _ := c.Get("jwt_tenant_id").(string); tid != "clinic_south" {
			t.Errorf("unexpected tenant %q", tid)
		}
		return nil
	}
	if err := JWTMiddleware(cfg)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIssueToken_Validation(t *testing.T) {
	now := time.Now()
	if _, err := IssueToken(TokenRequest{Subject: "a", Role: RoleAdmin}, nil, now); err == nil {
		t.Error("expected error without signing key")
	}
	if _, err := IssueToken(TokenRequest{Role: RoleAdmin}, testSigningKey, now); err == nil {
		t.Error("expected error without subject")
	}
	if _, err := IssueToken(TokenRequest{Subject: "a", Role: "nurse"}, testSigningKey, now); err == nil {
		t.Error("expected error for unknown role")
	}
}
