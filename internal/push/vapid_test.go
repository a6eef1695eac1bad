package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateKeys(t *testing.T) {
	pub, priv, err := GenerateKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestSignStructure(t *testing.T) {
	pub, priv, _ := GenerateKeys()
	signer, err := NewSigner(pub, priv, "mailto:suporte@painelzap.app")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	before := time.Now()
	token, err := signer.Sign("https://fcm.googleapis.com")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("segments = %d, want 3", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload segment: %v", err)
	}
	var claims struct {
		Aud string `json:"aud"`
		Exp int64  `json:"exp"`
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("parse claims: %v", err)
	}
	if claims.Aud != "https://fcm.googleapis.com" {
		t.Errorf("aud = %q", claims.Aud)
	}
	if claims.Sub != "mailto:suporte@painelzap.app" {
		t.Errorf("sub = %q", claims.Sub)
	}

	wantExp := before.Add(24 * time.Hour).Unix()
	if claims.Exp < wantExp-5 || claims.Exp > wantExp+5 {
		t.Errorf("exp = %d, want ~%d", claims.Exp, wantExp)
	}
}

func TestSignVerifiesAgainstPublicKey(t *testing.T) {
	pub, priv, _ := GenerateKeys()
	signer, _ := NewSigner(pub, priv, "mailto:suporte@painelzap.app")

	token, err := signer.Sign("https://updates.push.services.mozilla.com")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	pubBytes, _ := base64.RawURLEncoding.DecodeString(pub)
	x, y := elliptic.Unmarshal(elliptic.P256(), pubBytes)
	if x == nil {
		t.Fatal("unmarshal public key point")
	}
	key := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !parsed.Valid {
		t.Error("expected valid token")
	}
}

func TestNewSignerRejectsBadKeys(t *testing.T) {
	pub, priv, _ := GenerateKeys()

	if _, err := NewSigner("tooshort", priv, "mailto:x@y.z"); !errors.Is(err, ErrBadVAPIDKey) {
		t.Errorf("short public key: err = %v, want ErrBadVAPIDKey", err)
	}

	if _, err := NewSigner(pub, "!!!not-base64!!!", "mailto:x@y.z"); !errors.Is(err, ErrBadVAPIDKey) {
		t.Errorf("bad private key: err = %v, want ErrBadVAPIDKey", err)
	}

	// Mismatched pair: valid keys from two different generations.
	otherPub, _, _ := GenerateKeys()
	if _, err := NewSigner(otherPub, priv, "mailto:x@y.z"); !errors.Is(err, ErrBadVAPIDKey) {
		t.Errorf("mismatched pair: err = %v, want ErrBadVAPIDKey", err)
	}
}
