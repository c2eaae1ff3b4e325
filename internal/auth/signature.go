package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrInvalidPublicKey = errors.New("Invalid public key")
	ErrInvalidSignature = errors.New("Invalid signature")
)

const payloadVersion = "v1"

type DeviceAuthParams struct {
	DeviceID   string
	ClientID   string
	ClientMode string
	Role       string
	Scopes     []string
	SignedAtMs int64
	Token      string
}

// BuildDeviceAuthPayload returns the canonical string the gateway expects to
// be signed during the connect handshake.
func BuildDeviceAuthPayload(p DeviceAuthParams) string {
	return strings.Join([]string{
		payloadVersion,
		p.DeviceID,
		p.ClientID,
		p.ClientMode,
		p.Role,
		strings.Join(p.Scopes, ","),
		strconv.FormatInt(p.SignedAtMs, 10),
		p.Token,
	}, "|")
}

func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// SignPayload signs payload with the device key and returns the signature as
// unpadded base64url.
func SignPayload(key ed25519.PrivateKey, payload string) string {
	return EncodeBase64URL(ed25519.Sign(key, []byte(payload)))
}

func VerifySignature(publicKeyB64, payload, signatureB64 string) bool {
	return VerifySignatureDetailed(publicKeyB64, payload, signatureB64) == nil
}

func VerifySignatureDetailed(publicKeyB64, payload, signatureB64 string) error {
	publicKey, err := decodeBase64URL(publicKeyB64)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if payload == "" {
		return ErrInvalidSignature
	}

	signature, err := decodeBase64URL(signatureB64)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKey), []byte(payload), signature) {
		return ErrInvalidSignature
	}
	return nil
}
