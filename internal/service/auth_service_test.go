package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/prepstack/prepstack-backend/internal/config"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	return NewAuthService(cfg, rdb)
}

func TestAuthService_PasswordRoundTrip(t *testing.T) {
	s := newTestAuthService(t)

	hash, err := s.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := s.CheckPassword(hash, "hunter22"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := s.CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()

	token, err := s.GenerateToken(ctx, 42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}

	if err := s.ValidateLoginSession(ctx, 42, claims.ID); err != nil {
		t.Errorf("fresh login session rejected: %v", err)
	}
}

func TestAuthService_ValidateToken_Garbage(t *testing.T) {
	s := newTestAuthService(t)

	if _, err := s.ValidateToken("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_ValidateToken_Expired(t *testing.T) {
	s := newTestAuthService(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "stale-jti",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: 42,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.ValidateToken(signed); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired (distinct from ErrInvalidToken)", err)
	}
}

func TestAuthService_SecondLoginInvalidatesFirst(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()

	first, err := s.GenerateToken(ctx, 7)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	firstClaims, err := s.ValidateToken(first)
	if err != nil {
		t.Fatalf("validate first: %v", err)
	}

	if _, err := s.GenerateToken(ctx, 7); err != nil {
		t.Fatalf("second login: %v", err)
	}

	// The first token still parses but its session is gone.
	if _, err := s.ValidateToken(first); err != nil {
		t.Fatalf("first token stopped parsing: %v", err)
	}
	if err := s.ValidateLoginSession(ctx, 7, firstClaims.ID); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("got %v, want ErrSessionInvalid", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	s := newTestAuthService(t)
	ctx := context.Background()

	token, err := s.GenerateToken(ctx, 9)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, _ := s.ValidateToken(token)

	if err := s.Logout(ctx, 9); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := s.ValidateLoginSession(ctx, 9, claims.ID); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("got %v, want ErrSessionInvalid after logout", err)
	}
}
