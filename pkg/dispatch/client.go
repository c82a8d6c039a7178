package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client sends a rendered payload through the messaging provider and returns
// the provider message id (wamid).
type Client interface {
	Send(ctx context.Context, phoneNumberID, accessToken string, payload *Payload) (string, error)
}

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// GraphClient talks to the WhatsApp Cloud API.
type GraphClient struct {
	baseURL string
	client  *http.Client
}

// NewGraphClient creates a provider client. An empty baseURL selects the
// production Graph API endpoint.
func NewGraphClient(baseURL string) *GraphClient {
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}

	return &GraphClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts the payload to the phone number's messages endpoint. On success
// it returns the wamid assigned by the provider.
func (c *GraphClient) Send(ctx context.Context, phoneNumberID, accessToken string, payload *Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create send request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderSend, err)
	}
	defer resp.Body.Close()

	var decoded sendResponse

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ErrProviderSend, err)
	}

	if decoded.Error != nil {
		return "", &ProviderError{
			StatusCode: resp.StatusCode,
			Code:       decoded.Error.Code,
			Message:    decoded.Error.Message,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || len(decoded.Messages) == 0 {
		return "", &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    "no message id in response",
		}
	}

	return decoded.Messages[0].ID, nil
}
