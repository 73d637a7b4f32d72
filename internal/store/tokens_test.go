package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/db"
)

func TestRevokeToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	issued := time.Now()

	check := func(jti string, want bool) {
		t.Helper()
		got, err := IsTokenRevoked(ctx, database, jti, "u1", issued)
		if err != nil {
			t.Fatalf("IsTokenRevoked(%s): %v", jti, err)
		}
		if got != want {
			t.Errorf("IsTokenRevoked(%s) = %v, want %v", jti, got, want)
		}
	}

	check("jti-1", false)

	for range 2 {
		if err := RevokeToken(ctx, database, "jti-1", issued.Add(time.Hour)); err != nil {
			t.Fatalf("RevokeToken: %v", err)
		}
	}

	check("jti-1", true)
	check("jti-2", false)
}

func TestRevokeSessions(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := RevokeSessions(ctx, database, "u1", cutoff); err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}
	// An earlier cutoff never reopens older sessions.
	if err := RevokeSessions(ctx, database, "u1", cutoff.Add(-time.Hour)); err != nil {
		t.Fatalf("RevokeSessions: %v", err)
	}

	tests := []struct {
		name   string
		user   string
		issued time.Time
		want   bool
	}{
		{"issued before cutoff", "u1", cutoff.Add(-time.Minute), true},
		{"issued at cutoff", "u1", cutoff, false},
		{"issued after cutoff", "u1", cutoff.Add(time.Minute), false},
		{"other user", "u2", cutoff.Add(-time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsTokenRevoked(ctx, database, "jti", tt.user, tt.issued)
			if err != nil {
				t.Fatalf("IsTokenRevoked: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsTokenRevoked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if err := RevokeToken(ctx, database, "expired", now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := RevokeToken(ctx, database, "live", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	n, err := PurgeRevokedTokens(ctx, database, now)
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d tokens, want 1", n)
	}

	revoked, err := IsTokenRevoked(ctx, database, "live", "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if !revoked {
		t.Error("live revocation was purged")
	}
}
