package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Telegram sends messages through the Bot API. Sends are fire-and-forget:
// errors are logged and dropped.
type Telegram struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewTelegram(botToken, chatID string, logger *zap.SugaredLogger) *Telegram {
	return &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (t *Telegram) Notify(message string) {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	})
	if err != nil {
		t.logger.Warnf("Failed to encode telegram message: %v", err)
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.logger.Warnf("Failed to send telegram message: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.logger.Warnf("Telegram API returned status %d", resp.StatusCode)
	}
}

// Ping verifies the bot token against the getMe endpoint.
func (t *Telegram) Ping() error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/getMe", t.botToken)
	resp, err := t.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram getMe returned status %d", resp.StatusCode)
	}
	return nil
}
