// Package pgptest makes throwaway OpenPGP signing keys for tests.
package pgptest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

type Signer struct {
	entity *openpgp.Entity
}

func NewSigner(t testing.TB, name string) *Signer {
	t.Helper()

	entity, err := openpgp.NewEntity(name, "", name+"@example.com", &packet.Config{
		Algorithm: packet.PubKeyAlgoEdDSA,
	})
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	return &Signer{entity: entity}
}

func (s *Signer) Entity() *openpgp.Entity {
	return s.entity
}

// PublicKey returns the signer's public key in binary form, like a gpgv keyring file.
func (s *Signer) PublicKey(t testing.TB) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	if err := s.entity.Serialize(buf); err != nil {
		t.Fatalf("serialize public key: %v", err)
	}
	return buf.Bytes()
}

// ArmoredPublicKey returns the signer's public key in ASCII-armored form.
func (s *Signer) ArmoredPublicKey(t testing.TB) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	w, err := armor.Encode(buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("armor public key: %v", err)
	}
	if _, err = w.Write(s.PublicKey(t)); err != nil {
		t.Fatalf("armor public key: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("armor public key: %v", err)
	}
	return buf.Bytes()
}

// WriteKeyring writes the public keys of the signers to a binary keyring file in dir.
func WriteKeyring(t testing.TB, dir string, signers ...*Signer) string {
	t.Helper()

	buf := &bytes.Buffer{}
	for _, s := range signers {
		buf.Write(s.PublicKey(t))
	}
	keyringPath := filepath.Join(dir, "trusted.gpg")
	if err := os.WriteFile(keyringPath, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write keyring: %v", err)
	}
	return keyringPath
}

// Sign returns an ASCII-armored detached signature over data, like a release's .asc file.
func (s *Signer) Sign(t testing.TB, data []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	if err := openpgp.ArmoredDetachSign(buf, s.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("sign data: %v", err)
	}
	return buf.Bytes()
}

// SignBinary returns a binary detached signature over data.
func (s *Signer) SignBinary(t testing.TB, data []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	if err := openpgp.DetachSign(buf, s.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("sign data: %v", err)
	}
	return buf.Bytes()
}
