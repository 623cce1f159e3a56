package coinbase

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrBadKey = errors.New("некорректный приватный ключ API")

// parsePrivateKey accepts SEC1 ("EC PRIVATE KEY") and PKCS#8 PEM blocks.
// Escaped "\n" sequences are unfolded since keys are often stored on one line.
func parsePrivateKey(secretPEM string) (*ecdsa.PrivateKey, error) {
	secretPEM = strings.ReplaceAll(strings.TrimSpace(secretPEM), `\n`, "\n")

	block, _ := pem.Decode([]byte(secretPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: PEM блок не найден", ErrBadKey)
	}

	if block.Type == "EC PRIVATE KEY" {
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
		}
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: ожидается ECDSA ключ", ErrBadKey)
	}
	return key, nil
}

func (c *Client) buildJWT(method, path string) (string, error) {
	now := c.now().UTC()
	claims := jwt.MapClaims{
		"sub": c.keyName,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
		"uri": method + " " + c.host + path,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.keyName
	token.Header["nonce"] = nonce()

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("Не удалось подписать JWT: %w", err)
	}
	return signed, nil
}

func nonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
