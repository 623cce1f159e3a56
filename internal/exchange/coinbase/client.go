package coinbase

import (
	"dcatrader/internal/logger"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// New builds a Coinbase Advanced Trade client. secretPEM is the CDP API private key.
func New(baseURL, keyName, secretPEM string, timeout time.Duration, maxTries uint, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("Некорректный base_url %q", baseURL)
	}

	key, err := parsePrivateKey(secretPEM)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxTries == 0 {
		maxTries = 1
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		host:     u.Host,
		keyName:  keyName,
		key:      key,
		maxTries: maxTries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
		now: time.Now,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}, nil
}

func productID(symbol string) string {
	return strings.ToUpper(symbol) + "-" + quoteCurrency
}

func baseOf(productID string) string {
	return strings.TrimSuffix(strings.ToUpper(productID), "-"+quoteCurrency)
}
