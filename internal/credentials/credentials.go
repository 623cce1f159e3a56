package credentials

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	EncryptedFile = "cb_credentials.enc"
	SaltFile      = "cb_credentials.salt"
	KeyFile       = "cb_key.txt"
	SecretFile    = "cb_secret.txt"

	PassphraseEnv = "POWERTRADER_PASSPHRASE"

	kdfIterations = 480_000
	saltLen       = 16
	fernetKeyLen  = 32
)

var (
	ErrNotFound      = errors.New("учётные данные API не найдены")
	ErrNoPassphrase  = errors.New("не задана парольная фраза " + PassphraseEnv)
	ErrBadPassphrase = errors.New("неверная парольная фраза или повреждённый файл")
)

// Credentials is a CDP API key: KeyName goes into the JWT, Secret is the PEM private key.
type Credentials struct {
	KeyName string `json:"key"`
	Secret  string `json:"secret"`
}

func (c Credentials) empty() bool {
	return strings.TrimSpace(c.KeyName) == "" || strings.TrimSpace(c.Secret) == ""
}

// Load reads credentials from dir. The encrypted pair wins over the plaintext files.
func Load(dir string) (Credentials, error) {
	encPath := filepath.Join(dir, EncryptedFile)
	saltPath := filepath.Join(dir, SaltFile)

	if exists(encPath) && exists(saltPath) {
		passphrase := os.Getenv(PassphraseEnv)
		if passphrase == "" {
			return Credentials{}, ErrNoPassphrase
		}
		return loadEncrypted(encPath, saltPath, passphrase)
	}

	key, errKey := os.ReadFile(filepath.Join(dir, KeyFile))
	secret, errSecret := os.ReadFile(filepath.Join(dir, SecretFile))
	if errKey != nil || errSecret != nil {
		return Credentials{}, ErrNotFound
	}
	creds := Credentials{KeyName: strings.TrimSpace(string(key)), Secret: strings.TrimSpace(string(secret))}
	if creds.empty() {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}

func loadEncrypted(encPath, saltPath, passphrase string) (Credentials, error) {
	saltHex, err := os.ReadFile(saltPath)
	if err != nil {
		return Credentials{}, err
	}
	salt, err := hex.DecodeString(strings.TrimSpace(string(saltHex)))
	if err != nil {
		return Credentials{}, fmt.Errorf("Некорректная соль в %s: %w", saltPath, err)
	}
	token, err := os.ReadFile(encPath)
	if err != nil {
		return Credentials{}, err
	}

	plain := openToken(deriveKey(passphrase, salt), token)
	if plain == nil {
		return Credentials{}, ErrBadPassphrase
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, fmt.Errorf("Не удалось разобрать учётные данные: %w", err)
	}
	if creds.empty() {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}

// Save encrypts creds with a fresh salt and writes the pair into dir.
func Save(dir, passphrase string, creds Credentials) error {
	if passphrase == "" {
		return ErrNoPassphrase
	}
	if creds.empty() {
		return ErrNotFound
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	token, err := sealToken(deriveKey(passphrase, salt), plain)
	if err != nil {
		return fmt.Errorf("Не удалось зашифровать учётные данные: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, SaltFile), []byte(hex.EncodeToString(salt)), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, EncryptedFile), token, 0o600)
}

func deriveKey(passphrase string, salt []byte) *fernet.Key {
	var k fernet.Key
	copy(k[:], pbkdf2.Key([]byte(passphrase), salt, kdfIterations, fernetKeyLen, sha256.New))
	return &k
}

func sealToken(k *fernet.Key, plain []byte) ([]byte, error) {
	return fernet.EncryptAndSign(plain, k)
}

// openToken returns nil when the token is malformed or signed with another key.
// Tokens never expire, so the TTL check is off.
func openToken(k *fernet.Key, token []byte) []byte {
	return fernet.VerifyAndDecrypt(bytes.TrimSpace(token), -1, []*fernet.Key{k})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
