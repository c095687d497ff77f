package models

import (
	"time"

	"gorm.io/gorm"
)

// Project представляет проект — общую классификацию развертываний.
// Проект не владеет развертываниями, связь многие-ко-многим.
type Project struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// ProjectID — короткий идентификатор (первые 10 символов названия)
	ProjectID    string `json:"project_ID" gorm:"uniqueIndex;type:varchar(10)"`
	Name         string `json:"name" gorm:"uniqueIndex;not null;type:varchar(100)"`
	Organization string `json:"organization" gorm:"type:varchar(100)"`

	// Владелец и роли
	OwnerID    *uint  `json:"owner_id"`
	Owner      *User  `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Managers   []User `json:"managers,omitempty" gorm:"many2many:project_managers;"`
	Annotators []User `json:"annotators,omitempty" gorm:"many2many:project_annotators;"`
	Viewers    []User `json:"viewers,omitempty" gorm:"many2many:project_viewers;"`
}

// TableName задает имя таблицы для модели Project
func (Project) TableName() string {
	return "projects"
}

// BeforeCreate генерирует короткий идентификатор проекта
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ProjectID == "" {
		p.ProjectID = ShortLabel(p.Name)
	}
	return nil
}
