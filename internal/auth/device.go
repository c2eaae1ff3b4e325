package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"exec-guard/internal/model"
)

var ErrInvalidIdentity = errors.New("invalid device identity")

// Device is a parsed device identity ready for signing.
type Device struct {
	ID         string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// PublicKeyRaw returns the 32-byte public key as unpadded base64url.
func (d *Device) PublicKeyRaw() string {
	return EncodeBase64URL(d.PublicKey)
}

func (d *Device) Sign(payload string) string {
	return SignPayload(d.PrivateKey, payload)
}

// DeriveDeviceID is the hex SHA-256 of the raw public key.
func DeriveDeviceID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

func GenerateIdentity() (model.DeviceIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return model.DeviceIdentity{}, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return model.DeviceIdentity{}, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return model.DeviceIdentity{}, err
	}
	return model.DeviceIdentity{
		DeviceID:      DeriveDeviceID(pub),
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// ParseIdentity decodes the PEM keys and checks that they form a pair.
func ParseIdentity(id model.DeviceIdentity) (*Device, error) {
	if id.DeviceID == "" {
		return nil, fmt.Errorf("%w: missing device id", ErrInvalidIdentity)
	}

	pubBlock, _ := pem.Decode([]byte(id.PublicKeyPEM))
	if pubBlock == nil {
		return nil, fmt.Errorf("%w: bad public key pem", ErrInvalidIdentity)
	}
	pubAny, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	pub, ok := pubAny.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not ed25519", ErrInvalidIdentity)
	}

	privBlock, _ := pem.Decode([]byte(id.PrivateKeyPEM))
	if privBlock == nil {
		return nil, fmt.Errorf("%w: bad private key pem", ErrInvalidIdentity)
	}
	privAny, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	priv, ok := privAny.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not ed25519", ErrInvalidIdentity)
	}
	if !pub.Equal(priv.Public()) {
		return nil, fmt.Errorf("%w: key mismatch", ErrInvalidIdentity)
	}

	return &Device{ID: id.DeviceID, PublicKey: pub, PrivateKey: priv}, nil
}

// IdentityFile reads and writes a device identity as JSON on disk.
type IdentityFile struct {
	Path string
}

// Load returns nil, nil when no identity has been written yet.
func (f IdentityFile) Load() (*model.DeviceIdentity, error) {
	if f.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var id model.DeviceIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if id.DeviceID == "" || id.PublicKeyPEM == "" || id.PrivateKeyPEM == "" {
		return nil, nil
	}
	return &id, nil
}

func (f IdentityFile) Save(id model.DeviceIdentity) error {
	if f.Path == "" {
		return errors.New("missing identity path")
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(f.Path, data, 0o600)
}

// LoadOrCreate returns the stored identity, generating and saving one first
// if the file does not exist.
func (f IdentityFile) LoadOrCreate() (model.DeviceIdentity, bool, error) {
	existing, err := f.Load()
	if err != nil {
		return model.DeviceIdentity{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}
	id, err := GenerateIdentity()
	if err != nil {
		return model.DeviceIdentity{}, false, err
	}
	if err := f.Save(id); err != nil {
		return model.DeviceIdentity{}, false, err
	}
	return id, true, nil
}
