package edgex

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// KeySigner signs request digests with the account's private key.
// Message is hashed with Keccak-256 before signing; the output is the
// r||s portion of the signature in lowercase hex.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

// NewKeySigner parses a hex private key (with or without 0x prefix).
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("edgex: empty private key")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "edgex: parsing private key")
	}
	return &KeySigner{key: key}, nil
}

func (s *KeySigner) Sign(message string) (string, error) {
	digest := crypto.Keccak256([]byte(message))
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", errors.Wrap(err, "edgex: signing request")
	}
	// drop the recovery byte, the API wants r||s only
	return hex.EncodeToString(sig[:64]), nil
}
