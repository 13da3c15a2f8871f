package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"krisa-backup/internal/logging"
)

// telegramAPIBase is the production Bot API endpoint
const telegramAPIBase = "https://api.telegram.org"

// deliveryTimeout bounds a single artifact upload. Archives are small
// enough that two minutes covers a slow uplink with margin.
const deliveryTimeout = 2 * time.Minute

// NotificationSink delivers a finished artifact to an operator-facing
// channel
type NotificationSink interface {
	// Send uploads the file with an accompanying caption
	Send(ctx context.Context, filePath, caption string) error
	// GetType returns the sink kind for logs
	GetType() string
	// IsEnabled reports whether the sink is configured to deliver
	IsEnabled() bool
}

// TelegramSink uploads artifacts as documents through the Telegram Bot API
type TelegramSink struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewTelegramSink creates a sink delivering to one chat. An empty token or
// chat ID yields a disabled sink that refuses to send.
func NewTelegramSink(token, chatID string, logger *logging.Logger) *TelegramSink {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &TelegramSink{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPIBase,
		client:  &http.Client{Timeout: deliveryTimeout},
		logger:  logger,
	}
}

// GetType returns the sink kind
func (ts *TelegramSink) GetType() string {
	return "telegram"
}

// IsEnabled reports whether both credentials are present
func (ts *TelegramSink) IsEnabled() bool {
	return ts.token != "" && ts.chatID != ""
}

// Send uploads filePath as a document with the given caption
func (ts *TelegramSink) Send(ctx context.Context, filePath, caption string) error {
	if !ts.IsEnabled() {
		return NewConfigurationError("telegram sink is not configured", nil)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return NewNotFoundError("artifact file not found", err).WithContext("path", filePath)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", ts.chatID); err != nil {
		return NewDeliveryError("failed to build upload request", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return NewDeliveryError("failed to build upload request", err)
		}
	}
	part, err := writer.CreateFormFile("document", filepath.Base(filePath))
	if err != nil {
		return NewDeliveryError("failed to build upload request", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return NewDeliveryError("failed to read artifact for upload", err)
	}
	if err := writer.Close(); err != nil {
		return NewDeliveryError("failed to build upload request", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", ts.baseURL, ts.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return NewDeliveryError("failed to build upload request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := ts.client.Do(req)
	if err != nil {
		return NewDeliveryError("failed to reach telegram", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewDeliveryError(
			fmt.Sprintf("telegram rejected upload with status %d", resp.StatusCode), nil).
			WithContext("response", truncateBody(respBody))
	}

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return NewDeliveryError("telegram returned an unreadable response", err).
			WithContext("response", truncateBody(respBody))
	}
	if !apiResp.OK {
		return NewDeliveryError("telegram reported upload failure", nil).
			WithContext("description", apiResp.Description)
	}

	return nil
}

func truncateBody(body []byte) string {
	const limit = 300
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
