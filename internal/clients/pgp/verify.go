// Package pgp verifies detached OpenPGP signatures against a trusted keyring
package pgp

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/pkg/errors"
)

// ErrNoPublicKey is reported when a signature was made by a key which isn't in the keyring.
var ErrNoPublicKey = errors.New("can't check signature: no public key")

// Keyring is a fixed collection of trusted public keys.
type Keyring struct {
	path     string
	entities openpgp.EntityList
}

// LoadKeyring loads a binary or ASCII-armored keyring from the file at keyringPath.
func LoadKeyring(keyringPath string) (*Keyring, error) {
	data, err := os.ReadFile(filepath.Clean(keyringPath))
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read keyring %s", keyringPath)
	}
	entities, err := ParseKeyring(data)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't parse keyring %s", keyringPath)
	}
	return &Keyring{
		path:     keyringPath,
		entities: entities,
	}, nil
}

// ParseKeyring parses a binary or ASCII-armored keyring.
func ParseKeyring(data []byte) (openpgp.EntityList, error) {
	var entities openpgp.EntityList
	var err error
	if isArmored(data) {
		entities, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	} else {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, errors.New("keyring has no keys")
	}
	return entities, nil
}

func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN "))
}

// NewKeyring makes a Keyring from already-parsed keys.
func NewKeyring(entities openpgp.EntityList) *Keyring {
	return &Keyring{entities: entities}
}

// Path returns the path of the file the keyring was loaded from, if any.
func (k *Keyring) Path() string {
	return k.path
}

// Len returns the number of keys in the keyring.
func (k *Keyring) Len() int {
	return len(k.entities)
}

// Verification describes a good signature.
type Verification struct {
	KeyID   uint64
	Signer  string
	Created time.Time
}

func (v Verification) String() string {
	return fmt.Sprintf(
		"Good signature from %s (key %016X), made %s",
		v.Signer, v.KeyID, v.Created.UTC().Format(time.RFC1123),
	)
}

// VerifyDetached checks that signature (binary or ASCII-armored) is a good signature over signed
// made by a key in the keyring. A signature from an unknown key is rejected with
// [ErrNoPublicKey], even if it is otherwise valid.
func (k *Keyring) VerifyDetached(signed, signature io.Reader) (Verification, error) {
	sigData, err := io.ReadAll(signature)
	if err != nil {
		return Verification{}, errors.Wrap(err, "couldn't read signature")
	}
	sigReader := io.Reader(bytes.NewReader(sigData))
	if isArmored(sigData) {
		block, err := armor.Decode(bytes.NewReader(sigData))
		if err != nil {
			return Verification{}, errors.Wrap(err, "couldn't decode armored signature")
		}
		if block.Type != openpgp.SignatureType {
			return Verification{}, errors.Errorf("armored block is a %s, not a signature", block.Type)
		}
		sigReader = block.Body
	}

	sig, signer, err := openpgp.VerifyDetachedSignature(k.entities, signed, sigReader, nil)
	if err != nil {
		if errors.Is(err, pgperrors.ErrUnknownIssuer) {
			return Verification{}, ErrNoPublicKey
		}
		return Verification{}, errors.Wrap(err, "bad signature")
	}
	if sig == nil || signer == nil {
		return Verification{}, errors.New("signature verification didn't identify a signer")
	}
	if sig.CreationTime.IsZero() {
		return Verification{}, errors.New("signature has no creation time")
	}

	v := Verification{
		Created: sig.CreationTime,
	}
	if sig.IssuerKeyId != nil {
		v.KeyID = *sig.IssuerKeyId
	} else if signer.PrimaryKey != nil {
		v.KeyID = signer.PrimaryKey.KeyId
	}
	if identity := signer.PrimaryIdentity(); identity != nil {
		v.Signer = identity.Name
	}
	return v, nil
}
