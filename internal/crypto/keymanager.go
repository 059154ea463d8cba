// Package crypto provides key management and secp256k1 transaction signing
// for the pegbot wallet.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 2
	// kdfIterations is the OWASP minimum for PBKDF2-HMAC-SHA256.
	kdfIterations = 480_000
	saltLen       = 16
)

// ErrWalletMismatch means a key file was sealed for another wallet or chain.
var ErrWalletMismatch = errors.New("crypto: key file belongs to another wallet")

// Wallet names the account a key file signs for. It is stored in clear in
// the file header and authenticated with the key.
type Wallet struct {
	Address string `json:"address"`
	ChainID string `json:"chain_id"`
}

// keyFile is the on-disk wallet key. Byte fields are base64 in JSON.
type keyFile struct {
	Version    int    `json:"version"`
	Wallet     Wallet `json:"wallet"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// additionalData binds the header to the ciphertext, so editing the address
// or chain id in the file breaks decryption.
func (f keyFile) additionalData() []byte {
	return []byte(fmt.Sprintf("pegbot-key/v%d/%s/%s", f.Version, f.Wallet.ChainID, f.Wallet.Address))
}

// KeyConfig says where LoadKey finds the signing key and which wallet it
// must belong to.
type KeyConfig struct {
	// RawPrivateKey is a hex key, with or without 0x. It wins over the file.
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string

	// Address and ChainID, when set, must match the key file header.
	Address string
	ChainID string
}

func newAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: key file cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func parseKeyHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

// SealKey encrypts a hex private key for w with PBKDF2-HMAC-SHA256 and
// AES-256-GCM and returns the file contents.
func SealKey(privateKeyHex, password string, w Wallet) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if w.Address == "" || w.ChainID == "" {
		return nil, errors.New("crypto: key file needs a wallet address and chain id")
	}
	key, err := parseKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	f := keyFile{Version: keyFileVersion, Wallet: w, Iterations: kdfIterations, Salt: make([]byte, saltLen)}
	if _, err := rand.Read(f.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := newAEAD(password, f.Salt, f.Iterations)
	if err != nil {
		return nil, err
	}
	f.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(f.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	f.Ciphertext = aead.Seal(nil, f.Nonce, key, f.additionalData())
	return json.MarshalIndent(f, "", "  ")
}

// OpenKey decrypts a key file and returns the hex key and the wallet it was
// sealed for.
func OpenKey(data []byte, password string) (string, Wallet, error) {
	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", Wallet{}, fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if f.Version != keyFileVersion {
		return "", Wallet{}, fmt.Errorf("crypto: unsupported key file version %d", f.Version)
	}
	if f.Iterations < 1 {
		return "", Wallet{}, fmt.Errorf("crypto: key file has no kdf iterations")
	}
	aead, err := newAEAD(password, f.Salt, f.Iterations)
	if err != nil {
		return "", Wallet{}, err
	}
	if len(f.Nonce) != aead.NonceSize() {
		return "", Wallet{}, fmt.Errorf("crypto: key file nonce has %d bytes", len(f.Nonce))
	}
	key, err := aead.Open(nil, f.Nonce, f.Ciphertext, f.additionalData())
	if err != nil {
		return "", Wallet{}, errors.New("crypto: cannot open key file (wrong password or edited header)")
	}
	return hex.EncodeToString(key), f.Wallet, nil
}

// LoadKey resolves the signing key: the raw key if set, else the key file,
// which must have been sealed for cfg.Address on cfg.ChainID.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		raw, err := parseKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}
	if cfg.EncryptedKeyPath == "" {
		return "", errors.New("crypto: no private key source configured")
	}

	data, err := os.ReadFile(cfg.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("crypto: reading key file: %w", err)
	}
	key, w, err := OpenKey(data, cfg.KeyPassword)
	if err != nil {
		return "", err
	}
	if cfg.Address != "" && w.Address != cfg.Address {
		return "", fmt.Errorf("%w: file is for %s, wallet is %s", ErrWalletMismatch, w.Address, cfg.Address)
	}
	if cfg.ChainID != "" && w.ChainID != cfg.ChainID {
		return "", fmt.Errorf("%w: file is for chain %s, configured chain is %s", ErrWalletMismatch, w.ChainID, cfg.ChainID)
	}
	return key, nil
}

// WriteKeyFile seals the key for w and writes it to path, owner-only. An
// existing file is never overwritten.
func WriteKeyFile(path, privateKeyHex, password string, w Wallet) error {
	blob, err := SealKey(privateKeyHex, password, w)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("crypto: creating key file: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		return fmt.Errorf("crypto: writing key file: %w", err)
	}
	return f.Close()
}
