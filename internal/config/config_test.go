package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{" 1d ", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"12h", 12 * time.Hour, false},
		{"", 0, true},
		{"0d", 0, true},
		{"xd", 0, true},
		{"-1h", 0, true},
		{"forever", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseExpiry(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseExpiry(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseExpiry(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("JWT_EXPIRES_IN", "2d")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("DATABASE_MAX_CONNS", "9")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsDevelopment() || c.JWT.Secret != "s" || c.Database.MaxConns != 9 {
		t.Fatalf("config = %+v", c)
	}
	if c.TokenTTL() != 48*time.Hour {
		t.Fatalf("ttl = %v", c.TokenTTL())
	}
	if got := c.AllowedOrigins(); !reflect.DeepEqual(got, []string{"http://a.test", "http://b.test"}) {
		t.Fatalf("origins = %v", got)
	}
}

func TestLoadRejectsBadExpiry(t *testing.T) {
	t.Setenv("JWT_EXPIRES_IN", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}
