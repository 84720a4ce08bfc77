package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client выполняет переводы через внешний токен-сервис.
type Client struct {
	baseURL        string
	authorityToken string
	httpClient     *http.Client
}

// NewClient создаёт клиента токен-сервиса.
func NewClient(baseURL, authorityToken string) *Client {
	return &Client{
		baseURL:        baseURL,
		authorityToken: authorityToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Transfer отправляет amount базовых единиц на внешний счёт recipient.
func (c *Client) Transfer(ctx context.Context, recipient string, amount int64, memo string) error {
	if c.baseURL == "" {
		return fmt.Errorf("token: baseURL не задан")
	}
	if amount <= 0 {
		return fmt.Errorf("token: сумма перевода должна быть положительной")
	}

	payload := map[string]any{
		"to":     recipient,
		"amount": amount,
		"memo":   memo,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(c.baseURL, "/") + "/v1/transfers"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authorityToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authorityToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return fmt.Errorf("token: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	return nil
}
