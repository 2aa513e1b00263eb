package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// CryptoService implements the ballot encryption protocol. The scheme is an
// intentionally simple placeholder: AES-256-GCM keyed by the Keccak-256
// digest of the election public key. It keeps ballots opaque to every
// component except the tally path, which holds the paired private key.
type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateKeyPair generates a new ECDSA key pair
func (cs *CryptoService) GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// LoadOrCreateKey reloads the election private key from path, generating
// and persisting a fresh one on first run.
func (cs *CryptoService) LoadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		key, err := crypto.LoadECDSA(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load election key: %w", err)
		}
		return key, nil
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate election key: %w", err)
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("failed to save election key: %w", err)
	}
	return key, nil
}

// PublicKeyHex serializes a public key to the opaque hex form stored on the
// Election aggregate.
func (cs *CryptoService) PublicKeyHex(priv *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.FromECDSAPub(&priv.PublicKey))
}

func (cs *CryptoService) ParsePublicKey(pubHex string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("malformed public key: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed public key: %w", err)
	}
	return pub, nil
}

// EncryptVote seals candidateID under the election public key and returns
// the hex payload plus the integrity hash over (candidateID, castAt). The
// payload is reversible only through DecryptVote with the paired private
// key; no other component can inspect the candidate choice.
func (cs *CryptoService) EncryptVote(candidateID, publicKeyHex string, castAt int64) (string, string, error) {
	pub, err := cs.ParsePublicKey(publicKeyHex)
	if err != nil {
		return "", "", err
	}

	gcm, err := cs.ballotCipher(crypto.FromECDSAPub(pub))
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(candidateID), nil)
	return hex.EncodeToString(sealed), cs.VoteIntegrityHash(candidateID, castAt), nil
}

// DecryptVote is the inverse of EncryptVote. It returns the empty string on
// malformed or unopenable input, signaling a corrupted record to be
// excluded from the tally rather than crashing it.
func (cs *CryptoService) DecryptVote(encryptedData string, privateKey *ecdsa.PrivateKey) string {
	candidateID, err := cs.openBallot(encryptedData, privateKey)
	if err != nil {
		return ""
	}
	return candidateID
}

func (cs *CryptoService) openBallot(encryptedData string, privateKey *ecdsa.PrivateKey) (string, error) {
	sealed, err := hex.DecodeString(encryptedData)
	if err != nil {
		return "", err
	}

	gcm, err := cs.ballotCipher(crypto.FromECDSAPub(&privateKey.PublicKey))
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("encrypted vote too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// ballotCipher derives the AES-GCM cipher from the serialized public key.
// Both directions derive from the same key material so the round trip holds.
func (cs *CryptoService) ballotCipher(pubBytes []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(cs.Keccak256(pubBytes))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// VoteIntegrityHash binds a ballot to its cast time for audit display. It
// is informational: the tally never verifies it before counting.
func (cs *CryptoService) VoteIntegrityHash(candidateID string, castAt int64) string {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(castAt))
	return hex.EncodeToString(cs.Keccak256([]byte(candidateID), ts))
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}
