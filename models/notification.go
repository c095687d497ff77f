package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы отправки уведомления
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// NotificationLog представляет запись об отправленном уведомлении
type NotificationLog struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Тип события: low_battery, deployment_closed и т.д.
	Type    string `json:"type" gorm:"type:varchar(50);index"`
	Channel string `json:"channel" gorm:"type:varchar(20)"` // telegram, email

	Recipient string `json:"recipient" gorm:"type:varchar(255)"`
	Subject   string `json:"subject" gorm:"type:varchar(255)"`
	Message   string `json:"message" gorm:"type:text"`

	Status       string     `json:"status" gorm:"default:'pending';type:varchar(20)"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	SentAt       *time.Time `json:"sent_at"`

	// Связанная сущность
	RelatedID   *uint  `json:"related_id"`
	RelatedType string `json:"related_type" gorm:"type:varchar(50)"` // device, deployment

	UserID *uint `json:"user_id"`
	User   *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TableName задает имя таблицы для модели NotificationLog
func (NotificationLog) TableName() string {
	return "notification_logs"
}
