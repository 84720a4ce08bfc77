package ballot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Treasury описывает казну голосующего токена на стороне сервиса голосований.
type Treasury struct {
	Symbol string `json:"symbol"`
	Supply int64  `json:"supply"`
}

// CreateBallotInput содержит параметры нового голосования.
type CreateBallotInput struct {
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EndTime     time.Time `json:"end_time"`
}

// Client выполняет запросы к внешнему сервису голосований.
type Client struct {
	baseURL        string
	authorityToken string
	treasurySymbol string
	httpClient     *http.Client
}

// NewClient создаёт клиента сервиса голосований.
func NewClient(baseURL, authorityToken, treasurySymbol string) *Client {
	return &Client{
		baseURL:        baseURL,
		authorityToken: authorityToken,
		treasurySymbol: treasurySymbol,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// TreasurySymbol возвращает символ голосующего токена.
func (c *Client) TreasurySymbol() string {
	return c.treasurySymbol
}

// CreateBallot регистрирует голосование с вариантами "yes"/"no".
func (c *Client) CreateBallot(ctx context.Context, in CreateBallotInput) error {
	payload := map[string]any{
		"handle":          in.Handle,
		"title":           in.Title,
		"description":     in.Description,
		"end_time":        in.EndTime.UTC().Format(time.RFC3339),
		"options":         []string{"yes", "no"},
		"voting_method":   "one-token-one-vote",
		"treasury_symbol": c.treasurySymbol,
	}
	return c.post(ctx, "/v1/ballots", payload)
}

// UpdateDetails обновляет заголовок и описание голосования.
func (c *Client) UpdateDetails(ctx context.Context, handle, title, description string) error {
	payload := map[string]any{
		"title":       title,
		"description": description,
	}
	return c.post(ctx, "/v1/ballots/"+handle+"/details", payload)
}

// OpenVoting открывает приём голосов до указанного времени.
func (c *Client) OpenVoting(ctx context.Context, handle string, endTime time.Time) error {
	payload := map[string]any{
		"end_time": endTime.UTC().Format(time.RFC3339),
	}
	return c.post(ctx, "/v1/ballots/"+handle+"/open", payload)
}

// CloseVoting закрывает голосование. При broadcast сервис отправит
// итоги обратным вызовом на наш webhook.
func (c *Client) CloseVoting(ctx context.Context, handle string, broadcast bool) error {
	payload := map[string]any{
		"broadcast": broadcast,
	}
	return c.post(ctx, "/v1/ballots/"+handle+"/close", payload)
}

// CancelBallot отменяет голосование.
func (c *Client) CancelBallot(ctx context.Context, handle, memo string) error {
	payload := map[string]any{
		"memo": memo,
	}
	return c.post(ctx, "/v1/ballots/"+handle+"/cancel", payload)
}

// GetTreasury возвращает состояние казны голосующего токена.
func (c *Client) GetTreasury(ctx context.Context) (*Treasury, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("ballot: baseURL не задан")
	}

	url := strings.TrimSuffix(c.baseURL, "/") + "/v1/treasuries/" + c.treasurySymbol

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.authorityToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authorityToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ballot: код ответа %d", resp.StatusCode)
	}

	var treasury Treasury
	if err := json.NewDecoder(resp.Body).Decode(&treasury); err != nil {
		return nil, err
	}

	return &treasury, nil
}

// post выполняет POST запрос к сервису голосований.
func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c.baseURL == "" {
		return fmt.Errorf("ballot: baseURL не задан")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(c.baseURL, "/") + path

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
		return fmt.Errorf("ballot: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	return nil
}
