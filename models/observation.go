package models

import (
	"time"

	"gorm.io/gorm"
)

// Observation представляет таксономическое наблюдение, привязанное
// пользователем к одному или нескольким файлам данных
type Observation struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Таксон
	Label      string   `json:"label" gorm:"not null;type:varchar(200)"` // Название вида или таксона
	TaxonCode  string   `json:"taxon_code" gorm:"type:varchar(50)"`
	Confidence *float64 `json:"confidence"` // Уверенность аннотатора, 0-1

	// Комментарий аннотатора
	Comment string `json:"comment" gorm:"type:text"`

	// Владелец наблюдения
	OwnerID uint  `json:"owner_id" gorm:"not null;index"`
	Owner   *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`

	// Файлы, к которым привязано наблюдение
	DataFiles []DataFile `json:"data_files,omitempty" gorm:"many2many:observation_data_files;"`
}

// TableName задает имя таблицы для модели Observation
func (Observation) TableName() string {
	return "observations"
}
