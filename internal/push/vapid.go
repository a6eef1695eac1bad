package push

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtLifetime is how long a VAPID assertion stays valid. Push services
// reject anything over 24 hours.
const jwtLifetime = 24 * time.Hour

// Public key length bounds for a base64url-encoded uncompressed P-256 point.
// Anything outside this range is a configuration error, not a key to try.
const (
	minPublicKeyLen = 80
	maxPublicKeyLen = 100
)

var ErrBadVAPIDKey = errors.New("malformed VAPID key")

// Signer produces the short-lived ES256 JWT assertions that authenticate the
// dispatcher to a push service. Keys are imported once at construction; an
// import failure is a configuration error and disables push entirely.
type Signer struct {
	priv      *ecdsa.PrivateKey
	publicKey string
	subject   string
}

// NewSigner imports a base64url raw P-256 key pair. subject is the contact
// URI placed in the sub claim (mailto: or https:).
func NewSigner(publicKey, privateKey, subject string) (*Signer, error) {
	if len(publicKey) < minPublicKeyLen || len(publicKey) > maxPublicKeyLen {
		return nil, fmt.Errorf("%w: public key length %d outside [%d, %d]", ErrBadVAPIDKey, len(publicKey), minPublicKeyLen, maxPublicKeyLen)
	}

	pubBytes, err := base64.RawURLEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode public key: %v", ErrBadVAPIDKey, err)
	}
	privBytes, err := base64.RawURLEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode private key: %v", ErrBadVAPIDKey, err)
	}
	if len(privBytes) != 32 {
		return nil, fmt.Errorf("%w: private key is %d bytes, want 32", ErrBadVAPIDKey, len(privBytes))
	}

	curve := elliptic.P256()
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         new(big.Int).SetBytes(privBytes),
	}
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(privBytes)

	// The configured public key must be the one this private key derives.
	derived := elliptic.Marshal(curve, priv.PublicKey.X, priv.PublicKey.Y)
	if !bytes.Equal(derived, pubBytes) {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrBadVAPIDKey)
	}

	return &Signer{priv: priv, publicKey: publicKey, subject: subject}, nil
}

// PublicKey returns the base64url public key clients subscribe with.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Sign returns a compact JWT scoped to the push-service origin given as
// audience. Pure: no I/O, no state.
func (s *Signer) Sign(audience string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": audience,
		"exp": now.Add(jwtLifetime).Unix(),
		"sub": s.subject,
	})
	signed, err := token.SignedString(s.priv)
	if err != nil {
		return "", fmt.Errorf("sign vapid jwt: %w", err)
	}
	return signed, nil
}

// GenerateKeys generates a new ECDSA P-256 key pair for VAPID, base64url
// encoded: uncompressed 65-byte point and raw 32-byte scalar.
func GenerateKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)

	scalar := make([]byte, 32)
	key.D.FillBytes(scalar)
	privateKey = base64.RawURLEncoding.EncodeToString(scalar)

	return publicKey, privateKey, nil
}
