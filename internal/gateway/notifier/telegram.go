package notifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// 中文说明：
// Telegram 通知器：买入/卖出/熔断等事件推送到指定群/频道。事件都是
// 事后通知，丢一条不影响交易，所以只对网络错误和 429/5xx 做短暂重试，
// 其它 4xx（token 或 chat_id 配错）直接失败，重试也不会好。

const telegramAPI = "https://api.telegram.org/bot%s/sendMessage"

const (
	telegramAttempts     = 3
	telegramInitialDelay = 500 * time.Millisecond
)

type Telegram struct {
	botToken string
	chatID   string
	endpoint string
	client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		endpoint: telegramAPI,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram bot_token/chat_id 未配置")
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf(t.endpoint, t.botToken)
	delay := telegramInitialDelay
	var lastErr error
	for attempt := 0; attempt < telegramAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		lastErr = t.post(url, body)
		if lastErr == nil {
			return nil
		}
		var perm *permanentSendError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return lastErr
}

func (t *Telegram) post(url string, body []byte) error {
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apiErr struct {
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	desc := strings.TrimSpace(apiErr.Description)
	if desc == "" {
		desc = resp.Status
	}
	sendErr := fmt.Errorf("telegram status=%d: %s", resp.StatusCode, desc)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
		return sendErr
	}
	return &permanentSendError{err: sendErr}
}

// permanentSendError 标记不值得重试的失败。
type permanentSendError struct{ err error }

func (e *permanentSendError) Error() string { return e.err.Error() }
