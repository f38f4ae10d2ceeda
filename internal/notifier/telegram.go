package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"shadowtrader/internal/utils"
)

type TelegramNotifier struct {
	Token   string
	ChatID  string
	Retries int
	Delay   time.Duration
}

func NewTelegramNotifier(token, chatID string, retries int, delay time.Duration) *TelegramNotifier {
	if retries < 1 {
		retries = 1
	}
	return &TelegramNotifier{Token: token, ChatID: chatID, Retries: retries, Delay: delay}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.Token)
	resp, err := http.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

func (t *TelegramNotifier) SendWithRetry(message string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = t.Send(message); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | Telegram send attempt %d/%d failed: %v", attempt, t.Retries, err)
		if attempt < t.Retries {
			time.Sleep(t.Delay)
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.Retries, err)
}

// RetryWithNotification retries an action and reports persistent failure
// over Telegram.
func (t *TelegramNotifier) RetryWithNotification(action func() error, description string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = action(); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | %s attempt %d/%d failed: %v", description, attempt, t.Retries, err)
		if attempt < t.Retries {
			time.Sleep(t.Delay)
		}
	}
	t.SendWithRetry(fmt.Sprintf("%s failed after %d attempts: %v", description, t.Retries, err))
	return err
}

// NopNotifier discards notifications. Used in replay mode and tests.
type NopNotifier struct{}

func (NopNotifier) Send(string) error          { return nil }
func (NopNotifier) SendWithRetry(string) error { return nil }
func (NopNotifier) RetryWithNotification(action func() error, description string) error {
	return action()
}
