package mirror

import (
	"os"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cockroachdb/errors"
)

const signatureExt = ".asc"

// Signer produces detached armored OpenPGP signatures.
type Signer struct {
	pgp       *crypto.PGPHandle
	key       *crypto.Key
	publicKey string
}

// NewSigner returns a Signer for an unlocked private key.
func NewSigner(key *crypto.Key) (*Signer, error) {
	if !key.IsPrivate() {
		return nil, errors.New("signing key is not a private key")
	}
	locked, err := key.IsLocked()
	if err != nil {
		return nil, errors.Wrap(err, "signing key")
	}
	if locked {
		return nil, errors.New("signing key is locked")
	}

	pub, err := key.GetArmoredPublicKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to armor public key")
	}
	return &Signer{
		pgp:       crypto.PGP(),
		key:       key,
		publicKey: pub,
	}, nil
}

// NewSignerFromFile reads an armored private key.
func NewSignerFromFile(p string) (*Signer, error) {
	data, err := os.ReadFile(p) // #nosec G304 - operator configured key path
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read signing key: %s", p)
	}
	key, err := crypto.NewKeyFromArmored(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse signing key: %s", p)
	}
	return NewSigner(key)
}

// KeyID returns the hex key ID.
func (s *Signer) KeyID() string {
	return s.key.GetHexKeyID()
}

// PublicKey returns the armored public key.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Sign returns an armored detached signature of data.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	signer, err := s.pgp.Sign().SigningKey(s.key).Detached().New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}
	defer signer.ClearPrivateParams()

	sig, err := signer.Sign(data, crypto.Armor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign")
	}
	return sig, nil
}
