package models

import (
	"time"

	"gorm.io/gorm"
)

// Site представляет место установки устройств
type Site struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	Name string `json:"name" gorm:"not null;type:varchar(100)"`

	// Короткое имя — первые 10 символов названия, используется как тег
	ShortName string `json:"short_name" gorm:"type:varchar(10)"`
}

// TableName задает имя таблицы для модели Site
func (Site) TableName() string {
	return "sites"
}

// BeforeSave генерирует короткое имя из названия
func (s *Site) BeforeSave(tx *gorm.DB) error {
	s.ShortName = ShortLabel(s.Name)
	return nil
}

// ShortLabel обрезает строку до 10 символов
func ShortLabel(name string) string {
	runes := []rune(name)
	if len(runes) > 10 {
		return string(runes[:10])
	}
	return name
}
