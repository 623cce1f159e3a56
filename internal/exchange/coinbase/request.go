package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const defaultRetryAfter = 4

// doRequest performs one signed call. Errors that are not worth repeating are
// wrapped with backoff.Permanent so callers retrying through get stop early.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("Не удалось подготовить тело запроса: %w", err))
		}
		bodyReader = bytes.NewReader(payload)
	}

	urlStr := c.baseURL + path
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("Не удалось создать запрос: %w", err))
	}

	token, err := c.buildJWT(method, path)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ошибка запроса: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("Не удалось прочитать ответ: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return backoff.RetryAfter(retryAfterSeconds(resp.Header.Get("Retry-After")))
		case resp.StatusCode >= 500:
			return fmt.Errorf("Ошибка coinbase: %w (status=%d)", apiErr, resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("Ошибка coinbase: %w (status=%d)", apiErr, resp.StatusCode))
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("Не удалось разобрать ответ: %w", err))
	}
	return nil
}

// get retries read-only calls with exponential backoff.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.doRequest(ctx, http.MethodGet, path, params, nil, out)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logEntry().WithError(err).WithFields(logrus.Fields{
				"path": path,
				"wait": next.String(),
			}).Warn("Повтор запроса к coinbase.")
		}),
	)
	return err
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func retryAfterSeconds(header string) int {
	if n, err := strconv.Atoi(header); err == nil && n > 0 {
		return n
	}
	return defaultRetryAfter
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("coinbase")
}
