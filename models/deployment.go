package models

import (
	"time"

	"gorm.io/gorm"
)

// Deployment представляет развертывание устройства на месте установки
// на ограниченный период времени
type Deployment struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Сгенерированный составной идентификатор: {device_ID}_{тип}_{N}
	DeploymentDeviceID string `json:"deployment_device_ID" gorm:"uniqueIndex;type:varchar(150)"`

	// Устройство. Может отсутствовать — развертывание без назначенного устройства.
	DeviceID *uint   `json:"device_id" gorm:"index"`
	Device   *Device `json:"device,omitempty" gorm:"foreignKey:DeviceID"`

	// Место установки
	SiteID uint  `json:"site_id" gorm:"not null"`
	Site   *Site `json:"site,omitempty" gorm:"foreignKey:SiteID"`

	// Проекты. Глобальный проект присутствует всегда.
	Projects []Project `json:"projects,omitempty" gorm:"many2many:deployment_projects;"`

	// Временное окно. Отсутствие конца означает открытое развертывание.
	DeploymentStart time.Time  `json:"deployment_start" gorm:"not null;index"`
	DeploymentEnd   *time.Time `json:"deployment_end" gorm:"index"`

	// Геопозиция
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	// Действующий тип данных (наследуется от устройства, если не задан явно)
	DataTypeID *uint     `json:"data_type_id"`
	DataType   *DataType `json:"data_type,omitempty" gorm:"foreignKey:DataTypeID"`

	// Владелец и роли
	OwnerID    *uint  `json:"owner_id"`
	Owner      *User  `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Managers   []User `json:"managers,omitempty" gorm:"many2many:deployment_managers;"`
	Annotators []User `json:"annotators,omitempty" gorm:"many2many:deployment_annotators;"`
	Viewers    []User `json:"viewers,omitempty" gorm:"many2many:deployment_viewers;"`

	// Файлы, записанные в рамках развертывания
	Files []DataFile `json:"files,omitempty" gorm:"foreignKey:DeploymentID"`
}

// TableName задает имя таблицы для модели Deployment
func (Deployment) TableName() string {
	return "deployments"
}

// IsActiveAt проверяет, активно ли развертывание в указанный момент:
// начало уже наступило, а конец либо не задан, либо еще не прошел.
func (d *Deployment) IsActiveAt(now time.Time) bool {
	now = now.UTC()
	if d.DeploymentStart.UTC().After(now) {
		return false
	}
	if d.DeploymentEnd == nil {
		return true
	}
	return !d.DeploymentEnd.UTC().Before(now)
}

// ContainsDate проверяет, попадает ли момент времени в окно развертывания.
// Границы окна включительные.
func (d *Deployment) ContainsDate(dt time.Time) bool {
	dt = dt.UTC()
	if dt.Before(d.DeploymentStart.UTC()) {
		return false
	}
	if d.DeploymentEnd != nil && dt.After(d.DeploymentEnd.UTC()) {
		return false
	}
	return true
}
