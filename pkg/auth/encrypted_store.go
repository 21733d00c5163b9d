package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// EnvPassphrase overrides the generated passphrase file
	EnvPassphrase = "TUMBLR_BACKUP_PASSPHRASE"
)

// EncryptedFileStore keeps the token pair AES-GCM encrypted with a key
// derived from a passphrase via PBKDF2
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

type encryptedFile struct {
	Version   int    `json:"version"`
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
}

// NewEncryptedFileStore uses $TUMBLR_BACKUP_PASSPHRASE, or a random
// passphrase kept in <path>.key which is created on first use
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	passphrase, err := loadPassphrase(path + ".key")
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return NewEncryptedFileStoreWithPassphrase(path, passphrase), nil
}

func NewEncryptedFileStoreWithPassphrase(path, passphrase string) *EncryptedFileStore {
	return &EncryptedFileStore{path: path, passphrase: passphrase}
}

func (e *EncryptedFileStore) Name() string { return "encrypted" }

func (e *EncryptedFileStore) Load() (*TokenPair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	content, err := os.ReadFile(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTokensNotFound
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var file encryptedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}

	var tokens TokenPair
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse tokens: %w", err)
	}
	return &tokens, nil
}

func (e *EncryptedFileStore) Save(tokens *TokenPair) error {
	if !tokens.Valid() {
		return ErrInvalidTokens
	}

	plain, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	content, err := json.MarshalIndent(encryptedFile{
		Version:   1,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return writeFileAtomic(e.path, content)
}

func (e *EncryptedFileStore) Delete() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(e.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrTokensNotFound
		}
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func loadPassphrase(keyFile string) (string, error) {
	if pass := os.Getenv(EnvPassphrase); pass != "" {
		return pass, nil
	}
	if content, err := os.ReadFile(keyFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := base64.URLEncoding.EncodeToString(b)
	if err := writeFileAtomic(keyFile, []byte(pass)); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
