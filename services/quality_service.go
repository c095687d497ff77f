package services

import (
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"backend_sensor/models"
)

// QualityAnalyzer описывает внешний анализатор качества записи
type QualityAnalyzer interface {
	// Analyze возвращает оценку качества (0-1) и список обнаруженных проблем
	Analyze(dataFile *models.DataFile, fullPath string) (float64, []string, error)
}

// BasicAnalyzer — простая эвристическая реализация анализатора:
// оценивает файл по размеру и длительности записи
type BasicAnalyzer struct{}

// Analyze выполняет эвристическую оценку качества файла
func (a *BasicAnalyzer) Analyze(dataFile *models.DataFile, fullPath string) (float64, []string, error) {
	score := 1.0
	var issues []string

	if dataFile.FileSize == 0 {
		return 0, []string{"empty_file"}, nil
	}
	if dataFile.FileSize < 1024 {
		score -= 0.5
		issues = append(issues, "file_too_small")
	}
	if dataFile.FileLength != nil && *dataFile.FileLength < 1.0 {
		score -= 0.3
		issues = append(issues, "recording_too_short")
	}
	if dataFile.SampleRate != nil && *dataFile.SampleRate < 16000 {
		score -= 0.2
		issues = append(issues, "low_sample_rate")
	}
	if score < 0 {
		score = 0
	}
	return score, issues, nil
}

// QualityService управляет машиной состояний проверки качества файлов:
// unchecked -> in_progress -> completed | failed
type QualityService struct {
	DB       *gorm.DB
	Analyzer QualityAnalyzer
	Storage  FileStorage
}

// NewQualityService создает новый экземпляр QualityService
func NewQualityService(db *gorm.DB, analyzer QualityAnalyzer, storage FileStorage) *QualityService {
	return &QualityService{DB: db, Analyzer: analyzer, Storage: storage}
}

// StartCheck переводит файл в in_progress и запускает анализ в фоне.
// Вызывающая сторона не ждет завершения анализа: запись in_progress
// фиксируется до начала (потенциально долгой) оценки.
func (s *QualityService) StartCheck(fileID uint) error {
	if err := s.markInProgress(fileID); err != nil {
		return err
	}
	go s.RunCheck(fileID)
	return nil
}

// markInProgress фиксирует начало проверки. Повторная проверка из
// completed или failed допустима и заново входит в in_progress.
func (s *QualityService) markInProgress(fileID uint) error {
	var dataFile models.DataFile
	if err := s.DB.First(&dataFile, fileID).Error; err != nil {
		return fmt.Errorf("файл не найден: %w", err)
	}
	if dataFile.QualityCheckStatus == models.QualityStatusInProgress {
		return models.FieldErrors{"quality_check_status": "проверка качества уже выполняется"}
	}

	return s.DB.Model(&dataFile).Updates(map[string]interface{}{
		"quality_check_status": models.QualityStatusInProgress,
		"quality_check_error":  "",
	}).Error
}

// RunCheck выполняет анализ и фиксирует конечное состояние. Ошибка
// анализатора всегда переводит запись в failed, а не оставляет ее
// застрявшей в in_progress. Прежняя успешная оценка при неудачной
// повторной проверке сохраняется до следующего успеха.
func (s *QualityService) RunCheck(fileID uint) {
	var dataFile models.DataFile
	if err := s.DB.First(&dataFile, fileID).Error; err != nil {
		log.Printf("Проверка качества: файл %d не найден: %v", fileID, err)
		return
	}

	fullPath := ""
	if s.Storage != nil && dataFile.LocalPath != "" {
		fullPath = s.Storage.FullPath(dataFile.LocalPath)
	}

	score, issues, err := s.Analyzer.Analyze(&dataFile, fullPath)
	now := time.Now().UTC()

	if err != nil {
		// Оценка и список проблем прошлого успешного прогона не затираются
		updateErr := s.DB.Model(&dataFile).Updates(map[string]interface{}{
			"quality_check_status": models.QualityStatusFailed,
			"quality_check_error":  err.Error(),
			"quality_check_dt":     now,
		}).Error
		if updateErr != nil {
			log.Printf("Проверка качества: не удалось зафиксировать ошибку для файла %d: %v", fileID, updateErr)
		}
		return
	}

	updateErr := s.DB.Model(&dataFile).Updates(map[string]interface{}{
		"quality_check_status": models.QualityStatusCompleted,
		"quality_score":        score,
		"quality_issues":       pq.StringArray(issues),
		"quality_check_dt":     now,
		"quality_check_error":  "",
	}).Error
	if updateErr != nil {
		log.Printf("Проверка качества: не удалось сохранить результат для файла %d: %v", fileID, updateErr)
	}
}

// Status возвращает текущее состояние проверки качества файла
func (s *QualityService) Status(fileID uint) (*models.DataFile, error) {
	var dataFile models.DataFile
	if err := s.DB.First(&dataFile, fileID).Error; err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}
	return &dataFile, nil
}

// FailStuckChecks переводит в failed проверки, застрявшие в in_progress
// дольше указанного таймаута
func (s *QualityService) FailStuckChecks(timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	result := s.DB.Model(&models.DataFile{}).
		Where("quality_check_status = ? AND updated_at < ?", models.QualityStatusInProgress, cutoff).
		Updates(map[string]interface{}{
			"quality_check_status": models.QualityStatusFailed,
			"quality_check_error":  "проверка качества прервана по таймауту",
		})
	return result.RowsAffected, result.Error
}

// QueueUnchecked запускает проверку для непроверенных файлов (не более limit за раз)
func (s *QualityService) QueueUnchecked(limit int) (int, error) {
	var files []models.DataFile
	err := s.DB.Where("quality_check_status = ?", models.QualityStatusUnchecked).
		Order("id ASC").Limit(limit).Find(&files).Error
	if err != nil {
		return 0, err
	}

	started := 0
	for i := range files {
		if err := s.StartCheck(files[i].ID); err == nil {
			started++
		}
	}
	return started, nil
}
