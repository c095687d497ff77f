package services

import (
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient представляет клиент для работы с Telegram Bot API
type TelegramClient struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramClient создает новый экземпляр Telegram клиента
func NewTelegramClient(botToken string) (*TelegramClient, error) {
	if botToken == "" {
		return nil, fmt.Errorf("Telegram не настроен: пустой токен бота")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}

	// В продакшене отключаем debug
	bot.Debug = false

	log.Printf("✅ Telegram бот авторизован: %s", bot.Self.UserName)

	return &TelegramClient{bot: bot}, nil
}

// SendMessage отправляет сообщение в указанный чат
func (tc *TelegramClient) SendMessage(chatID string, message string) (*tgbotapi.Message, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("неверный chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(chatIDInt, message)
	msg.ParseMode = tgbotapi.ModeHTML

	sentMsg, err := tc.bot.Send(msg)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки сообщения: %w", err)
	}

	return &sentMsg, nil
}

// GetBotInfo возвращает информацию о боте
func (tc *TelegramClient) GetBotInfo() (*tgbotapi.User, error) {
	return &tc.bot.Self, nil
}

// IsHealthy проверяет, работает ли бот
func (tc *TelegramClient) IsHealthy() bool {
	_, err := tc.bot.GetMe()
	return err == nil
}
