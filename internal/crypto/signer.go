package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// Signer signs transaction sign documents with a secp256k1 key. The account
// address is configured separately; the signer only holds key material.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	pubKey     []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		pubKey:     ethcrypto.CompressPubkey(&pk.PublicKey),
	}, nil
}

// PubKey returns the 33-byte compressed public key.
func (s *Signer) PubKey() []byte {
	out := make([]byte, len(s.pubKey))
	copy(out, s.pubKey)
	return out
}

// Sign hashes signBytes with SHA-256 and returns the 64-byte R||S signature
// the chain expects, along with the compressed public key.
func (s *Signer) Sign(signBytes []byte) (domain.Signature, error) {
	digest := sha256.Sum256(signBytes)
	sig, err := ethcrypto.Sign(digest[:], s.privateKey)
	if err != nil {
		return domain.Signature{}, fmt.Errorf("crypto/signer: %w: %v", domain.ErrSigningFailed, err)
	}
	// Drop the recovery id.
	return domain.Signature{PubKey: s.PubKey(), Signature: sig[:64]}, nil
}

// Verify reports whether sig is a valid signature of signBytes by pubKey.
func Verify(pubKey, signBytes, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	digest := sha256.Sum256(signBytes)
	return ethcrypto.VerifySignature(pubKey, digest[:], sig)
}
