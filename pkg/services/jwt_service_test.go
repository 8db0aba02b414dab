package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour)
	id := uuid.New()

	token, err := s.GenerateToken(id, "mum@example.com", "Mum")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.ParentID != id || claims.Email != "mum@example.com" || claims.Subject != id.String() {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	s := NewTokenService("test-secret", time.Hour)
	token, _ := s.GenerateToken(uuid.New(), "a@example.com", "A")

	if _, err := NewTokenService("other-secret", time.Hour).ValidateToken(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}

	expired := NewTokenService("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := expired.ValidateToken(token); err == nil {
		t.Error("expired token must be rejected")
	}

	if _, err := s.ValidateToken("not-a-jwt"); err == nil {
		t.Error("garbage must be rejected")
	}
}
