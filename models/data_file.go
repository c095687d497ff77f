package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Статусы проверки качества файла
const (
	QualityStatusUnchecked  = "unchecked"
	QualityStatusInProgress = "in_progress"
	QualityStatusCompleted  = "completed"
	QualityStatusFailed     = "failed"
)

// DataFile представляет записанный устройством файл данных
type DataFile struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Имя и формат. Пара имя+формат уникальна в пределах развертывания.
	FileName   string `json:"file_name" gorm:"not null;index;type:varchar(200)"`
	FileFormat string `json:"file_format" gorm:"not null;type:varchar(10)"` // .wav, .mp3, .jpg и т.д.
	FileSize   int64  `json:"file_size"`                                    // Размер в байтах

	// Временные метки записи и загрузки
	RecordingDT time.Time `json:"recording_dt" gorm:"not null;index"`
	UploadDT    time.Time `json:"upload_dt"`

	// Развертывание, в рамках которого записан файл
	DeploymentID uint        `json:"deployment_id" gorm:"not null;index"`
	Deployment   *Deployment `json:"deployment,omitempty" gorm:"foreignKey:DeploymentID"`

	// Действующий тип данных (наследуется от развертывания, если не задан явно)
	DataTypeID *uint     `json:"data_type_id"`
	DataType   *DataType `json:"data_type,omitempty" gorm:"foreignKey:DataTypeID"`

	// Дескриптор хранилища
	Path      string `json:"path" gorm:"type:varchar(300)"`       // Корень хранилища
	LocalPath string `json:"local_path" gorm:"type:varchar(300)"` // Относительный путь внутри корня

	// Проверка качества записи
	QualityCheckStatus string         `json:"quality_check_status" gorm:"default:'unchecked';type:varchar(20)"` // unchecked, in_progress, completed, failed
	QualityScore       *float64       `json:"quality_score"`
	QualityIssues      pq.StringArray `json:"quality_issues" gorm:"type:text[]"`
	QualityCheckDT     *time.Time     `json:"quality_check_dt"`
	QualityCheckError  string         `json:"quality_check_error" gorm:"type:text"`

	// Дополнительные аудио-атрибуты, извлекаемые из метаданных
	SampleRate *int     `json:"sample_rate"`
	FileLength *float64 `json:"file_length"` // Длительность записи в секундах

	// Избранное
	FavouriteOf []User `json:"favourite_of,omitempty" gorm:"many2many:data_file_favourites;"`

	// Наблюдения, привязанные к файлу
	Observations []Observation `json:"observations,omitempty" gorm:"many2many:observation_data_files;"`
}

// TableName задает имя таблицы для модели DataFile
func (DataFile) TableName() string {
	return "data_files"
}

// FullName возвращает имя файла вместе с форматом
func (f *DataFile) FullName() string {
	return f.FileName + f.FileFormat
}
