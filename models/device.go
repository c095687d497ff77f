package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы устройства
const (
	DeviceStatusActive      = "active"
	DeviceStatusMaintenance = "maintenance"
	DeviceStatusLowBattery  = "low_battery"
	DeviceStatusRetired     = "retired"
)

// Device представляет полевое устройство (аудиорекордер, фотоловушка и т.д.)
type Device struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные характеристики устройства
	DeviceID string `json:"device_ID" gorm:"uniqueIndex;not null;type:varchar(100)"` // Уникальный идентификатор устройства
	Name     string `json:"name" gorm:"type:varchar(100)"`

	// Модель устройства
	ModelID uint         `json:"model_id" gorm:"not null"`
	Model   *DeviceModel `json:"model,omitempty" gorm:"foreignKey:ModelID"`

	// Явный тип данных. Если не задан, наследуется от модели устройства.
	DataTypeID *uint     `json:"data_type_id"`
	DataType   *DataType `json:"data_type,omitempty" gorm:"foreignKey:DataTypeID"`

	// Эксплуатационное состояние
	DeviceStatus string `json:"device_status" gorm:"default:'active';type:varchar(20)"` // active, maintenance, low_battery, retired
	BatteryLevel int    `json:"battery_level" gorm:"default:100"`                       // 0-100

	// Окно эксплуатации устройства
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	// Счетчик развертываний. Монотонно растет, номера не переиспользуются
	// даже после удаления развертывания.
	DeploymentCounter uint `json:"deployment_counter" gorm:"default:0"`

	// Владелец и роли
	OwnerID    *uint  `json:"owner_id"`
	Owner      *User  `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Managers   []User `json:"managers,omitempty" gorm:"many2many:device_managers;"`
	Annotators []User `json:"annotators,omitempty" gorm:"many2many:device_annotators;"`
	Viewers    []User `json:"viewers,omitempty" gorm:"many2many:device_viewers;"`

	// Связи
	Deployments []Deployment `json:"deployments,omitempty" gorm:"foreignKey:DeviceID"`
}

// TableName задает имя таблицы для модели Device
func (Device) TableName() string {
	return "devices"
}

// EffectiveDataTypeID возвращает действующий тип данных устройства:
// явный тип, если он задан, иначе тип модели устройства.
func (d *Device) EffectiveDataTypeID() *uint {
	if d.DataTypeID != nil {
		return d.DataTypeID
	}
	if d.Model != nil {
		id := d.Model.DataTypeID
		return &id
	}
	return nil
}
