package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"dvfmarket/server/internal/models"
)

// Service broadcasts import terminal states to an operator chat. Optional:
// without a token and chat id every call is a no-op.
type Service struct {
	logger   *logrus.Logger
	client   *http.Client
	botToken string
	chatID   string
}

func NewService(botToken, chatID string, logger *logrus.Logger) *Service {
	return &Service{
		logger:   logger,
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *Service) Enabled() bool {
	return s.botToken != "" && s.chatID != ""
}

// Notify implements the notification sink. The actor id is ignored: the
// operator chat sees every terminal state. Failures are logged, never
// propagated.
func (s *Service) Notify(actorID string, payload models.ImportNotification) {
	if !s.Enabled() {
		return
	}

	var text string
	switch payload.Status {
	case models.ImportCompleted:
		count := 0
		if payload.TransactionCount != nil {
			count = *payload.TransactionCount
		}
		text = fmt.Sprintf("✅ DVF import completed\n\nYear: %s\nDepartment: %s\nTransactions: %d",
			payload.Year, payload.Department, count)
	case models.ImportFailed:
		text = fmt.Sprintf("❌ DVF import failed\n\nYear: %s\nDepartment: %s\nError: %s",
			payload.Year, payload.Department, payload.Error)
	default:
		return
	}

	if err := s.SendMessage(text); err != nil {
		s.logger.WithError(err).Error("Failed to send Telegram notification")
	}
}

// SendMessage posts a message to the configured chat.
func (s *Service) SendMessage(text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	body, err := json.Marshal(map[string]string{
		"chat_id": s.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
