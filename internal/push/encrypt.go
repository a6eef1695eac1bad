package push

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// RFC 8188/8291 single-record aes128gcm coding. One record per message.
const (
	recordSize = 4096
	// record = plaintext + delimiter byte + 16-byte GCM tag
	maxPlaintext = recordSize - 17
)

// encryptPayload encrypts a notification body for one subscription using the
// aes128gcm content encoding (RFC 8291). p256dh is the subscriber's
// base64url uncompressed P-256 public key, auth its 16-byte auth secret.
func encryptPayload(plaintext []byte, p256dh, auth string) ([]byte, error) {
	if len(plaintext) > maxPlaintext {
		return nil, fmt.Errorf("payload is %d bytes, max %d", len(plaintext), maxPlaintext)
	}

	uaPublicBytes, err := base64.RawURLEncoding.DecodeString(p256dh)
	if err != nil {
		return nil, fmt.Errorf("decode p256dh: %w", err)
	}
	authSecret, err := base64.RawURLEncoding.DecodeString(auth)
	if err != nil {
		return nil, fmt.Errorf("decode auth secret: %w", err)
	}

	curve := ecdh.P256()
	uaPublic, err := curve.NewPublicKey(uaPublicBytes)
	if err != nil {
		return nil, fmt.Errorf("subscriber public key: %w", err)
	}
	asKey, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate sender key: %w", err)
	}
	asPublicBytes := asKey.PublicKey().Bytes()

	sharedSecret, err := asKey.ECDH(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	// IKM = HKDF(auth_secret, shared_secret, "WebPush: info" || 0x00 || ua_public || as_public)
	keyInfo := make([]byte, 0, 14+len(uaPublicBytes)+len(asPublicBytes))
	keyInfo = append(keyInfo, []byte("WebPush: info\x00")...)
	keyInfo = append(keyInfo, uaPublicBytes...)
	keyInfo = append(keyInfo, asPublicBytes...)
	ikm, err := hkdfRead(sharedSecret, authSecret, keyInfo, 32)
	if err != nil {
		return nil, err
	}

	cek, err := hkdfRead(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := hkdfRead(ikm, salt, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	// Last (only) record: delimiter 0x02.
	record := make([]byte, 0, len(plaintext)+1)
	record = append(record, plaintext...)
	record = append(record, 0x02)
	sealed := gcm.Seal(nil, nonce, record, nil)

	// Coding header: salt(16) || rs(4) || idlen(1) || keyid(as_public).
	out := make([]byte, 0, 16+4+1+len(asPublicBytes)+len(sealed))
	out = append(out, salt...)
	out = binary.BigEndian.AppendUint32(out, recordSize)
	out = append(out, byte(len(asPublicBytes)))
	out = append(out, asPublicBytes...)
	out = append(out, sealed...)
	return out, nil
}

func hkdfRead(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}
