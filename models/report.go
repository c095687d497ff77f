package models

import (
	"time"

	"gorm.io/gorm"
)

// ReportType тип отчета
type ReportType string

const (
	ReportTypeDevices      ReportType = "devices"
	ReportTypeDeployments  ReportType = "deployments"
	ReportTypeDataFiles    ReportType = "data_files"
	ReportTypeObservations ReportType = "observations"
)

// ReportFormat формат файла отчета
type ReportFormat string

const (
	ReportFormatCSV   ReportFormat = "csv"
	ReportFormatExcel ReportFormat = "excel"
	ReportFormatPDF   ReportFormat = "pdf"
	ReportFormatJSON  ReportFormat = "json"
)

// Статусы генерации отчета
const (
	ReportStatusPending    = "pending"
	ReportStatusProcessing = "processing"
	ReportStatusCompleted  = "completed"
	ReportStatusFailed     = "failed"
)

// Report представляет задание на генерацию отчета
type Report struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	Name   string       `json:"name" gorm:"type:varchar(255)"`
	Type   ReportType   `json:"type" gorm:"type:varchar(50);not null"`
	Format ReportFormat `json:"format" gorm:"type:varchar(20);not null"`

	Status      string     `json:"status" gorm:"default:'pending';type:varchar(20)"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Duration    int        `json:"duration"` // Секунды

	FilePath    string `json:"file_path" gorm:"type:varchar(500)"`
	FileSize    int64  `json:"file_size"`
	RecordCount int    `json:"record_count"`
	ErrorMsg    string `json:"error_msg" gorm:"type:text"`

	// Кто запросил отчет
	UserID *uint `json:"user_id"`
	User   *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TableName задает имя таблицы для модели Report
func (Report) TableName() string {
	return "reports"
}
