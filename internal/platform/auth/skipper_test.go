package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/api/v1/appointments", false},
		{"/api/v1/doctors/:id/available-slots", false},
	}

	e := echo.New()
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath(tt.path)
		if got := AuthSkipper(c); got != tt.want {
			t.Errorf("AuthSkipper(%q) = %v, want %v", tt.path, got, tt.want)
		}
		if got := IsPublicPath(tt.path); got != tt.want {
			t.Errorf("IsPublicPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
