package services

import (
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"backend_sensor/models"
)

// FileService представляет конвейер приема файлов данных: валидация пакета
// входящих файлов против окна и типа развертывания с разбиением результата
// на принятые, отклоненные и уже существующие
type FileService struct {
	DB          *gorm.DB
	Storage     FileStorage
	Extractor   MetadataExtractor
	Deployments *DeploymentService
}

// NewFileService создает новый экземпляр FileService
func NewFileService(db *gorm.DB, storage FileStorage, extractor MetadataExtractor, deployments *DeploymentService) *FileService {
	return &FileService{DB: db, Storage: storage, Extractor: extractor, Deployments: deployments}
}

// IncomingFile представляет один входящий файл пакета
type IncomingFile struct {
	Name        string     // Имя файла вместе с расширением
	Data        []byte     // Содержимое
	RecordingDT *time.Time // Время записи; если nil, извлекается из метаданных
	DataTypeID  *uint      // Явный тип данных; должен совпадать с типом развертывания
	SampleRate  *int
	FileLength  *float64
}

// AdmissionResult представляет результат приема пакета файлов
type AdmissionResult struct {
	Uploaded []models.DataFile `json:"uploaded_files"`            // Принятые файлы
	Invalid  map[string]string `json:"invalid_files"`             // Имя файла -> причина отклонения
	Existing map[string]uint   `json:"existing_files"`            // Имя файла -> ID уже существующей записи
}

// Success возвращает true, если пакет не был отклонен целиком.
// Частичный успех (хотя бы один принятый или уже существующий файл) —
// это успех: остальные файлы фиксируются, отклоненные возвращаются списком.
func (r *AdmissionResult) Success() bool {
	return len(r.Uploaded) > 0 || len(r.Existing) > 0
}

// ResolveTarget находит целевое развертывание: напрямую по идентификатору
// развертывания либо по идентификатору устройства (берется активное
// развертывание). Отсутствие активного развертывания — ошибка всего пакета.
func (s *FileService) ResolveTarget(deploymentDeviceID, deviceID string, now time.Time) (*models.Deployment, error) {
	if deploymentDeviceID != "" {
		var deployment models.Deployment
		err := s.DB.Preload("DataType").Where("deployment_device_id = ?", deploymentDeviceID).First(&deployment).Error
		if err != nil {
			return nil, models.FieldErrors{"deployment": fmt.Sprintf("развертывание %s не найдено", deploymentDeviceID)}
		}
		return &deployment, nil
	}

	if deviceID != "" {
		var device models.Device
		if err := s.DB.Where("device_id = ?", deviceID).First(&device).Error; err != nil {
			return nil, models.FieldErrors{"device": fmt.Sprintf("устройство %s не найдено", deviceID)}
		}
		deployment, err := s.Deployments.ActiveDeployment(device.ID, now)
		if err != nil {
			return nil, err
		}
		if deployment == nil {
			return nil, models.FieldErrors{"device": fmt.Sprintf("у устройства %s нет активного развертывания", deviceID)}
		}
		return deployment, nil
	}

	return nil, models.FieldErrors{"deployment": "необходимо указать развертывание или устройство"}
}

// RegisterFiles принимает пакет файлов для развертывания. Файлы
// обрабатываются в порядке подачи; проверка и сохранение каждого файла
// атомарны по отдельности, пакет в целом — нет: отклонение одного файла
// не мешает фиксации остальных.
func (s *FileService) RegisterFiles(deployment *models.Deployment, files []IncomingFile) (*AdmissionResult, error) {
	result := &AdmissionResult{
		Invalid:  make(map[string]string),
		Existing: make(map[string]uint),
	}

	for _, incoming := range files {
		s.admitFile(deployment, incoming, result)
	}
	return result, nil
}

// admitFile проверяет и сохраняет один файл, раскладывая исход по разделам результата
func (s *FileService) admitFile(deployment *models.Deployment, incoming IncomingFile, result *AdmissionResult) {
	ext := filepath.Ext(incoming.Name)
	name := incoming.Name[:len(incoming.Name)-len(ext)]

	// Согласованность типа файла с типом развертывания
	if incoming.DataTypeID != nil {
		var explicit models.DataType
		if err := s.DB.First(&explicit, *incoming.DataTypeID).Error; err != nil {
			result.Invalid[incoming.Name] = "тип данных не найден"
			return
		}
		if deployment.DataTypeID != nil && explicit.ID != *deployment.DataTypeID {
			result.Invalid[incoming.Name] = fmt.Sprintf("тип файла %s не совпадает с типом развертывания %s",
				explicit.Name, deployment.DeploymentDeviceID)
			return
		}
	}

	// Время записи: явное либо из метаданных
	recordingDT := incoming.RecordingDT
	if recordingDT == nil {
		extracted, err := s.Extractor.RecordingTime(incoming.Name, incoming.Data)
		if err != nil {
			result.Invalid[incoming.Name] = err.Error()
			return
		}
		recordingDT = extracted
	}

	if ok := deployment.ContainsDate(*recordingDT); !ok {
		_, ferr := models.CheckRecordingInDeployment(*recordingDT, deployment)
		result.Invalid[incoming.Name] = ferr["recording_dt"]
		return
	}

	// Уже загруженный файл — отдельный исход, не ошибка и не повторный прием
	var existing models.DataFile
	err := s.DB.Where("deployment_id = ? AND file_name = ? AND file_format = ?",
		deployment.ID, name, ext).First(&existing).Error
	if err == nil {
		result.Existing[incoming.Name] = existing.ID
		return
	}
	if err != gorm.ErrRecordNotFound {
		result.Invalid[incoming.Name] = "ошибка при проверке существующих файлов"
		return
	}

	// Сохранение: сначала байты в хранилище, затем запись в БД.
	// При ошибке записи файл из хранилища убирается.
	relPath, err := s.Storage.Save(deployment.DeploymentDeviceID, incoming.Name, incoming.Data)
	if err != nil {
		result.Invalid[incoming.Name] = err.Error()
		return
	}

	// Тип файла наследуется от развертывания, явно указанный имеет приоритет
	fileTypeID := deployment.DataTypeID
	if incoming.DataTypeID != nil {
		fileTypeID = incoming.DataTypeID
	}

	dataFile := models.DataFile{
		FileName:     name,
		FileFormat:   ext,
		FileSize:     int64(len(incoming.Data)),
		RecordingDT:  recordingDT.UTC(),
		UploadDT:     time.Now().UTC(),
		DeploymentID: deployment.ID,
		DataTypeID:   fileTypeID,
		Path:         filepath.Dir(relPath),
		LocalPath:    relPath,
		SampleRate:   incoming.SampleRate,
		FileLength:   incoming.FileLength,
	}

	if err := s.DB.Create(&dataFile).Error; err != nil {
		_ = s.Storage.Delete(relPath)
		result.Invalid[incoming.Name] = "ошибка при сохранении файла: " + err.Error()
		return
	}

	result.Uploaded = append(result.Uploaded, dataFile)
}

// DeleteFile удаляет запись файла и его содержимое из хранилища
func (s *FileService) DeleteFile(fileID uint) error {
	var dataFile models.DataFile
	if err := s.DB.First(&dataFile, fileID).Error; err != nil {
		return fmt.Errorf("файл не найден: %w", err)
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&dataFile).Error; err != nil {
			return err
		}
		if dataFile.LocalPath != "" {
			// Содержимое убирается после фиксации удаления записи
			_ = s.Storage.Delete(dataFile.LocalPath)
		}
		return nil
	})
}
