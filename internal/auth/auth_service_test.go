package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func newTestService(t *testing.T, accessTTL time.Duration) *AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	svc, err := NewAuthService(privatePEM, publicPEM, accessTTL, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newTestService(t, time.Minute)

	pair, err := svc.GenerateTokenPair(42, true)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	access, err := svc.ValidateTokenOfType(pair.AccessToken, TokenTypeAccess)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.UserID != 42 || !access.MustChangePassword {
		t.Fatalf("access claims = %+v", access)
	}

	refresh, err := svc.ValidateTokenOfType(pair.RefreshToken, TokenTypeRefresh)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.ID == "" {
		t.Fatalf("refresh token needs a jti")
	}
	if _, err := svc.ValidateTokenOfType(pair.RefreshToken, TokenTypeAccess); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newTestService(t, -time.Minute)

	pair, err := svc.GenerateTokenPair(1, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(pair.AccessToken); err == nil {
		t.Fatalf("expired token accepted")
	}
	if _, err := svc.ValidateToken(""); err == nil {
		t.Fatalf("empty token accepted")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Fatalf("password should match")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatalf("wrong password matched")
	}
}
