package models

import (
	"time"

	"gorm.io/gorm"
)

// DataType представляет тип данных, записываемых устройством (audio, image и т.д.)
type DataType struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	Name string `json:"name" gorm:"uniqueIndex;not null;type:varchar(50)"`
}

// TableName задает имя таблицы для модели DataType
func (DataType) TableName() string {
	return "data_types"
}

// DeviceModel представляет модель (марку) устройства
type DeviceModel struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	Name         string `json:"name" gorm:"not null;type:varchar(100)"`
	Manufacturer string `json:"manufacturer" gorm:"type:varchar(100)"`

	// Тип данных, которые записывают устройства этой модели
	DataTypeID uint      `json:"data_type_id" gorm:"not null"`
	DataType   *DataType `json:"data_type,omitempty" gorm:"foreignKey:DataTypeID"`
}

// TableName задает имя таблицы для модели DeviceModel
func (DeviceModel) TableName() string {
	return "device_models"
}
