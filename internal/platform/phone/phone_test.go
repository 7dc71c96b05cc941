package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw, region, want string
	}{
		{"", "", ""},
		{"   ", "US", ""},
		{"(650) 253-0000", "", "+16502530000"},
		{"+1 650 253 0000", "US", "+16502530000"},
		{"+44 20 7031 3000", "US", "+442070313000"},
		{"020 7031 3000", "GB", "+442070313000"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.raw, tt.region)
		if err != nil {
			t.Errorf("Normalize(%q, %q) error: %v", tt.raw, tt.region, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tt.raw, tt.region, got, tt.want)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, raw := range []string{"not a number", "123", "+1 000 000 0000"} {
		if _, err := Normalize(raw, "US"); !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q) = %v, want ErrInvalid", raw, err)
		}
	}
}
