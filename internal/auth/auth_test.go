package auth

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
)

func TestJWT_RoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateJWT("secret", id, models.RoleSeller, time.Hour)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if claims.AccountID != id {
		t.Errorf("expected account %s, got %s", id, claims.AccountID)
	}
	if a := claims.Actor(); a.Role != models.RoleSeller {
		t.Errorf("expected role seller, got %s", a.Role)
	}
}

func TestJWT_WrongSecret(t *testing.T) {
	token, err := GenerateJWT("secret", uuid.New(), models.RoleBuyer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWT("other", token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWT_DefaultExpiration(t *testing.T) {
	token, err := GenerateJWT("secret", uuid.New(), models.RoleBuyer, -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWT("secret", token); err != nil {
		t.Fatalf("expected default expiration, got: %v", err)
	}
}

func TestJWT_UnknownRole(t *testing.T) {
	if _, err := GenerateJWT("secret", uuid.New(), "root", time.Hour); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestVerifyWebhook_Valid(t *testing.T) {
	body := []byte(`{"type":"order_paid"}`)
	now := time.Now()
	sig := SignWebhook("hook-secret", now, body)

	if err := VerifyWebhook("hook-secret", strconv.FormatInt(now.Unix(), 10), sig, body, 0); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestVerifyWebhook_TamperedBody(t *testing.T) {
	now := time.Now()
	sig := SignWebhook("hook-secret", now, []byte(`{"amount":"10.00"}`))

	err := VerifyWebhook("hook-secret", strconv.FormatInt(now.Unix(), 10), sig, []byte(`{"amount":"99.00"}`), 0)
	if err == nil {
		t.Fatal("expected error for tampered body")
	}
}

func TestVerifyWebhook_Expired(t *testing.T) {
	body := []byte(`{}`)
	old := time.Now().Add(-10 * time.Minute)
	sig := SignWebhook("hook-secret", old, body)

	if err := VerifyWebhook("hook-secret", strconv.FormatInt(old.Unix(), 10), sig, body, 5*time.Minute); err == nil {
		t.Fatal("expected error for expired signature")
	}
}

func TestVerifyWebhook_FutureTimestamp(t *testing.T) {
	body := []byte(`{}`)
	future := time.Now().Add(5 * time.Minute)
	sig := SignWebhook("hook-secret", future, body)

	if err := VerifyWebhook("hook-secret", strconv.FormatInt(future.Unix(), 10), sig, body, 0); err == nil {
		t.Fatal("expected error for future timestamp")
	}
}

func TestVerifyWebhook_Missing(t *testing.T) {
	if err := VerifyWebhook("hook-secret", "123", "", nil, 0); err == nil {
		t.Fatal("expected error for missing signature")
	}
	if err := VerifyWebhook("hook-secret", "abc", "00", nil, 0); err == nil {
		t.Fatal("expected error for bad timestamp")
	}
}
