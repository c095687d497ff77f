package services

import (
	"fmt"
	"log"
	"net/smtp"
	"time"

	"gorm.io/gorm"

	"backend_sensor/config"
	"backend_sensor/models"
)

// NotificationService представляет сервис для отправки уведомлений
// о событиях устройств и развертываний ответственным пользователям
type NotificationService struct {
	DB       *gorm.DB
	Telegram *TelegramClient
	SMTP     *config.SMTPConfig
}

// NewNotificationService создает новый экземпляр NotificationService.
// Telegram клиент опционален: при nil канал Telegram пропускается.
func NewNotificationService(db *gorm.DB, telegram *TelegramClient, smtpCfg *config.SMTPConfig) *NotificationService {
	return &NotificationService{DB: db, Telegram: telegram, SMTP: smtpCfg}
}

// NotifyLowBattery уведомляет владельца и менеджеров устройства о низком
// заряде батареи
func (s *NotificationService) NotifyLowBattery(device *models.Device) {
	message := fmt.Sprintf("🔋 <b>Низкий заряд батареи</b>\n\nУстройство: %s\nЗаряд: %d%%\nСтатус: %s",
		device.DeviceID, device.BatteryLevel, device.DeviceStatus)
	subject := fmt.Sprintf("Низкий заряд батареи: %s", device.DeviceID)

	s.notifyUsers(s.deviceRecipients(device), "low_battery", subject, message, device.ID, "device")
}

// NotifyDeploymentClosed уведомляет ответственных о закрытии развертывания
func (s *NotificationService) NotifyDeploymentClosed(deployment *models.Deployment) {
	end := ""
	if deployment.DeploymentEnd != nil {
		end = deployment.DeploymentEnd.Format("02.01.2006 15:04")
	}
	message := fmt.Sprintf("📦 <b>Развертывание завершено</b>\n\nРазвертывание: %s\nДата завершения: %s",
		deployment.DeploymentDeviceID, end)
	subject := fmt.Sprintf("Развертывание завершено: %s", deployment.DeploymentDeviceID)

	s.notifyUsers(s.deploymentRecipients(deployment), "deployment_closed", subject, message, deployment.ID, "deployment")
}

// deviceRecipients возвращает владельца и менеджеров устройства
func (s *NotificationService) deviceRecipients(device *models.Device) []models.User {
	var users []models.User
	s.DB.Raw(`SELECT DISTINCT u.* FROM users u
		WHERE u.id IN (SELECT user_id FROM device_managers WHERE device_id = ?)
		   OR u.id = (SELECT owner_id FROM devices WHERE id = ?)`,
		device.ID, device.ID).Scan(&users)
	return users
}

// deploymentRecipients возвращает владельца и менеджеров развертывания
func (s *NotificationService) deploymentRecipients(deployment *models.Deployment) []models.User {
	var users []models.User
	s.DB.Raw(`SELECT DISTINCT u.* FROM users u
		WHERE u.id IN (SELECT user_id FROM deployment_managers WHERE deployment_id = ?)
		   OR u.id = (SELECT owner_id FROM deployments WHERE id = ?)`,
		deployment.ID, deployment.ID).Scan(&users)
	return users
}

// notifyUsers рассылает уведомление всем получателям по доступным каналам
func (s *NotificationService) notifyUsers(users []models.User, notificationType, subject, message string, relatedID uint, relatedType string) {
	for i := range users {
		user := users[i]
		if user.TelegramID != "" {
			s.send(notificationType, "telegram", user.TelegramID, subject, message, relatedID, relatedType, user.ID)
		}
		if user.Email != "" {
			s.send(notificationType, "email", user.Email, subject, message, relatedID, relatedType, user.ID)
		}
	}
}

// send отправляет одно уведомление и фиксирует исход в логе
func (s *NotificationService) send(notificationType, channel, recipient, subject, message string, relatedID uint, relatedType string, userID uint) {
	entry := models.NotificationLog{
		Type:        notificationType,
		Channel:     channel,
		Recipient:   recipient,
		Subject:     subject,
		Message:     message,
		Status:      models.NotificationStatusPending,
		RelatedID:   &relatedID,
		RelatedType: relatedType,
		UserID:      &userID,
	}

	var err error
	switch channel {
	case "telegram":
		err = s.sendTelegram(recipient, message)
	case "email":
		err = s.sendEmail(recipient, subject, message)
	default:
		err = fmt.Errorf("неподдерживаемый канал уведомлений: %s", channel)
	}

	if err != nil {
		entry.Status = models.NotificationStatusFailed
		entry.ErrorMessage = err.Error()
		log.Printf("Ошибка отправки уведомления %s через %s: %v", notificationType, channel, err)
	} else {
		entry.Status = models.NotificationStatusSent
		now := time.Now()
		entry.SentAt = &now
	}

	s.DB.Create(&entry)
}

// sendTelegram отправляет уведомление через Telegram
func (s *NotificationService) sendTelegram(recipient, message string) error {
	if s.Telegram == nil {
		return fmt.Errorf("Telegram клиент не настроен")
	}
	_, err := s.Telegram.SendMessage(recipient, message)
	return err
}

// sendEmail отправляет email уведомление
func (s *NotificationService) sendEmail(recipient, subject, message string) error {
	if s.SMTP == nil || s.SMTP.Host == "" {
		return fmt.Errorf("SMTP не настроен")
	}

	auth := smtp.PlainAuth("", s.SMTP.User, s.SMTP.Password, s.SMTP.Host)

	msg := fmt.Sprintf("From: %s\r\n", s.SMTP.From)
	msg += fmt.Sprintf("To: %s\r\n", recipient)
	msg += fmt.Sprintf("Subject: %s\r\n", subject)
	msg += "Content-Type: text/html; charset=UTF-8\r\n"
	msg += "\r\n"
	msg += message

	addr := fmt.Sprintf("%s:%d", s.SMTP.Host, s.SMTP.Port)
	if err := smtp.SendMail(addr, auth, s.SMTP.From, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}
	return nil
}

// GetNotificationLogs возвращает логи уведомлений с пагинацией
func (s *NotificationService) GetNotificationLogs(limit, offset int, filters map[string]interface{}) ([]models.NotificationLog, int64, error) {
	query := s.DB.Model(&models.NotificationLog{})

	if notificationType, ok := filters["type"].(string); ok && notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}
	if channel, ok := filters["channel"].(string); ok && channel != "" {
		query = query.Where("channel = ?", channel)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var logs []models.NotificationLog
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, total, err
}
