package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_sensor/models"
)

// scriptedAnalyzer возвращает заранее заданный результат или ошибку
type scriptedAnalyzer struct {
	score  float64
	issues []string
	err    error
}

func (a *scriptedAnalyzer) Analyze(dataFile *models.DataFile, fullPath string) (float64, []string, error) {
	if a.err != nil {
		return 0, nil, a.err
	}
	return a.score, a.issues, nil
}

func seedDataFile(t *testing.T, db *gorm.DB, deviceID string) *models.DataFile {
	deployment := seedDeployment(t, db, deviceID)
	file := models.DataFile{
		FileName:     "rec",
		FileFormat:   ".wav",
		FileSize:     2048,
		RecordingDT:  dt("2024-01-15T00:00:00Z"),
		UploadDT:     dt("2024-01-16T00:00:00Z"),
		DeploymentID: deployment.ID,
	}
	require.NoError(t, db.Create(&file).Error)
	return &file
}

func fileStatus(t *testing.T, db *gorm.DB, id uint) *models.DataFile {
	var file models.DataFile
	require.NoError(t, db.First(&file, id).Error)
	return &file
}

func TestQualityCheckLifecycle(t *testing.T) {
	db := newTestDB(t)
	analyzer := &scriptedAnalyzer{score: 0.8, issues: []string{"file_too_small"}}
	service := NewQualityService(db, analyzer, nil)
	file := seedDataFile(t, db, "AM-201")

	// Новый файл не проверен
	assert.Equal(t, models.QualityStatusUnchecked, file.QualityCheckStatus)

	// Начало проверки фиксируется до анализа
	require.NoError(t, service.markInProgress(file.ID))
	assert.Equal(t, models.QualityStatusInProgress, fileStatus(t, db, file.ID).QualityCheckStatus)

	// Повторный запуск во время выполнения запрещен
	err := service.markInProgress(file.ID)
	require.Error(t, err)
	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok)
	assert.Contains(t, ferr, "quality_check_status")

	// Успешное завершение
	service.RunCheck(file.ID)
	checked := fileStatus(t, db, file.ID)
	assert.Equal(t, models.QualityStatusCompleted, checked.QualityCheckStatus)
	require.NotNil(t, checked.QualityScore)
	assert.InDelta(t, 0.8, *checked.QualityScore, 0.0001)
	assert.NotNil(t, checked.QualityCheckDT)
	assert.Empty(t, checked.QualityCheckError)
}

func TestQualityCheckFailedPreservesPreviousScore(t *testing.T) {
	db := newTestDB(t)
	analyzer := &scriptedAnalyzer{score: 0.9}
	service := NewQualityService(db, analyzer, nil)
	file := seedDataFile(t, db, "AM-202")

	// Первый прогон успешен
	require.NoError(t, service.markInProgress(file.ID))
	service.RunCheck(file.ID)
	require.Equal(t, models.QualityStatusCompleted, fileStatus(t, db, file.ID).QualityCheckStatus)

	// Повторная проверка из completed допустима; анализатор падает
	analyzer.err = errors.New("анализатор недоступен")
	require.NoError(t, service.markInProgress(file.ID))
	service.RunCheck(file.ID)

	failed := fileStatus(t, db, file.ID)
	assert.Equal(t, models.QualityStatusFailed, failed.QualityCheckStatus)
	assert.Contains(t, failed.QualityCheckError, "анализатор недоступен")

	// Оценка прошлого успешного прогона не затерта
	require.NotNil(t, failed.QualityScore)
	assert.InDelta(t, 0.9, *failed.QualityScore, 0.0001)

	// Следующий успешный прогон обновляет оценку и сбрасывает ошибку
	analyzer.err = nil
	analyzer.score = 0.4
	require.NoError(t, service.markInProgress(file.ID))
	service.RunCheck(file.ID)

	recovered := fileStatus(t, db, file.ID)
	assert.Equal(t, models.QualityStatusCompleted, recovered.QualityCheckStatus)
	assert.InDelta(t, 0.4, *recovered.QualityScore, 0.0001)
	assert.Empty(t, recovered.QualityCheckError)
}

func TestFailStuckChecks(t *testing.T) {
	db := newTestDB(t)
	service := NewQualityService(db, &scriptedAnalyzer{}, nil)
	file := seedDataFile(t, db, "AM-203")

	require.NoError(t, service.markInProgress(file.ID))

	// Проверка моложе таймаута не трогается
	count, err := service.FailStuckChecks(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Состариваем запись и проверяем перевод в failed
	stale := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.DataFile{}).Where("id = ?", file.ID).
		UpdateColumn("updated_at", stale).Error)

	count, err = service.FailStuckChecks(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stuck := fileStatus(t, db, file.ID)
	assert.Equal(t, models.QualityStatusFailed, stuck.QualityCheckStatus)
	assert.Contains(t, stuck.QualityCheckError, "таймауту")
}

func TestBasicAnalyzer(t *testing.T) {
	analyzer := &BasicAnalyzer{}

	// Пустой файл — нулевая оценка
	score, issues, err := analyzer.Analyze(&models.DataFile{FileSize: 0}, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, []string{"empty_file"}, issues)

	// Нормальный файл без замечаний
	score, issues, err = analyzer.Analyze(&models.DataFile{FileSize: 1024 * 1024}, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
	assert.Empty(t, issues)

	// Маленький файл с короткой записью накапливает замечания
	length := 0.5
	score, issues, err = analyzer.Analyze(&models.DataFile{FileSize: 100, FileLength: &length}, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, score, 0.0001)
	assert.ElementsMatch(t, []string{"file_too_small", "recording_too_short"}, issues)
}
