package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPPushTransport posts push messages to an HTTP push gateway as JSON. The
// gateway answers 2xx with {"message_id": "..."}.
type HTTPPushTransport struct {
	client    *http.Client
	url       string
	authToken string
	logger    *zap.Logger
}

// NewHTTPPushTransport creates a gateway transport. authToken is sent as a
// bearer token when set.
func NewHTTPPushTransport(url, authToken string, timeout time.Duration, logger *zap.Logger) *HTTPPushTransport {
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPPushTransport{
		client:    &http.Client{Timeout: timeout},
		url:       url,
		authToken: authToken,
		logger:    logger,
	}
}

func (t *HTTPPushTransport) Name() string { return "http-push" }

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

// Push posts msg to the gateway.
func (t *HTTPPushTransport) Push(ctx context.Context, msg PushMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create push request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Courier/1.0")
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("push gateway returned non-2xx status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out gatewayResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			t.logger.Warn("push gateway returned unparseable body",
				zap.Int("status_code", resp.StatusCode),
				zap.Error(err),
			)
		}
	}
	if out.MessageID == "" {
		out.MessageID = resp.Header.Get("X-Message-Id")
	}

	return out.MessageID, nil
}
