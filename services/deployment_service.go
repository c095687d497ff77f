package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backend_sensor/models"
)

// DeploymentService представляет сервис жизненного цикла развертываний.
// Отвечает за генерацию идентификаторов, проверку пересечений по времени
// и согласованность типов данных.
type DeploymentService struct {
	DB                  *gorm.DB
	NotificationService *NotificationService
	GlobalProjectName   string

	// Блокировки по устройствам: проверка пересечения и запись должны
	// выполняться последовательно для одного устройства, иначе два
	// конкурентных создания могут оба не увидеть конфликта.
	mu          sync.Mutex
	deviceLocks map[uint]*sync.Mutex
}

// NewDeploymentService создает новый экземпляр DeploymentService
func NewDeploymentService(db *gorm.DB, notificationService *NotificationService, globalProjectName string) *DeploymentService {
	return &DeploymentService{
		DB:                  db,
		NotificationService: notificationService,
		GlobalProjectName:   globalProjectName,
		deviceLocks:         make(map[uint]*sync.Mutex),
	}
}

// lockDevice возвращает блокировку для устройства
func (s *DeploymentService) lockDevice(deviceID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok := s.deviceLocks[deviceID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.deviceLocks[deviceID] = lock
	return lock
}

// CheckOverlap возвращает идентификаторы развертываний устройства,
// пересекающихся с интервалом [start, end). Отсутствующий конец трактуется
// как +бесконечность. excludeID позволяет исключить само редактируемое
// развертывание. Для развертывания без устройства конфликтов не бывает.
func (s *DeploymentService) CheckOverlap(tx *gorm.DB, deviceID *uint, start time.Time, end *time.Time, excludeID uint) ([]string, error) {
	if deviceID == nil {
		return nil, nil
	}
	if tx == nil {
		tx = s.DB
	}

	// Два интервала [s1,e1) и [s2,e2) пересекаются тогда и только тогда,
	// когда s1 < e2 и s2 < e1.
	query := tx.Model(&models.Deployment{}).
		Where("device_id = ?", *deviceID).
		Where("deployment_end IS NULL OR deployment_end > ?", start.UTC())
	if end != nil {
		query = query.Where("deployment_start < ?", end.UTC())
	}
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}

	var ids []string
	if err := query.Pluck("deployment_device_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("ошибка при проверке пересечений: %w", err)
	}
	return ids, nil
}

// Create создает новое развертывание: разрешает действующий тип данных,
// проверяет пересечения по времени, генерирует идентификатор вида
// {device_ID}_{тип}_{N} и всегда добавляет глобальный проект.
// Нарушения возвращаются как models.FieldErrors и полностью блокируют запись.
func (s *DeploymentService) Create(deployment *models.Deployment, projectIDs []uint) error {
	deployment.DeploymentStart = deployment.DeploymentStart.UTC()
	if deployment.DeploymentEnd != nil {
		end := deployment.DeploymentEnd.UTC()
		deployment.DeploymentEnd = &end
	}

	if ok, ferr := models.CheckStartBeforeEnd(deployment.DeploymentStart, deployment.DeploymentEnd); !ok {
		return ferr
	}

	device, ferr := s.resolveDeviceAndType(deployment)
	if ferr != nil {
		return ferr
	}

	if device != nil {
		lock := s.lockDevice(device.ID)
		lock.Lock()
		defer lock.Unlock()
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		conflicts, err := s.CheckOverlap(tx, deployment.DeviceID, deployment.DeploymentStart, deployment.DeploymentEnd, 0)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			label := "устройства"
			if device != nil {
				label = device.DeviceID
			}
			return models.FieldErrors{
				"deployment_start": fmt.Sprintf("это развертывание %s пересекается с %s", label, strings.Join(conflicts, ",")),
			}
		}

		if err := s.assignDeploymentID(tx, deployment, device); err != nil {
			return err
		}

		if err := tx.Create(deployment).Error; err != nil {
			return fmt.Errorf("ошибка при создании развертывания: %w", err)
		}

		return s.replaceProjects(tx, deployment, projectIDs)
	})
}

// Update обновляет развертывание: повторно проверяет пересечения (исключая
// само развертывание), согласованность типов и инвариант глобального проекта.
// projectIDs == nil означает, что набор проектов не меняется.
func (s *DeploymentService) Update(deployment *models.Deployment, projectIDs []uint) error {
	deployment.DeploymentStart = deployment.DeploymentStart.UTC()
	if deployment.DeploymentEnd != nil {
		end := deployment.DeploymentEnd.UTC()
		deployment.DeploymentEnd = &end
	}

	if ok, ferr := models.CheckStartBeforeEnd(deployment.DeploymentStart, deployment.DeploymentEnd); !ok {
		return ferr
	}

	device, ferr := s.resolveDeviceAndType(deployment)
	if ferr != nil {
		return ferr
	}

	if device != nil {
		lock := s.lockDevice(device.ID)
		lock.Lock()
		defer lock.Unlock()
	}

	var wasOpen bool
	var prev models.Deployment
	if err := s.DB.First(&prev, deployment.ID).Error; err == nil {
		wasOpen = prev.DeploymentEnd == nil
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		conflicts, err := s.CheckOverlap(tx, deployment.DeviceID, deployment.DeploymentStart, deployment.DeploymentEnd, deployment.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			label := "устройства"
			if device != nil {
				label = device.DeviceID
			}
			return models.FieldErrors{
				"deployment_start": fmt.Sprintf("это развертывание %s пересекается с %s", label, strings.Join(conflicts, ",")),
			}
		}

		// Сужение окна не должно оставить уже принятые файлы
		// за пределами интервала развертывания
		if ferr := s.checkFilesInsideWindow(tx, deployment); ferr != nil {
			return ferr
		}

		if err := tx.Save(deployment).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении развертывания: %w", err)
		}

		if projectIDs != nil {
			if err := s.replaceProjects(tx, deployment, projectIDs); err != nil {
				return err
			}
		}
		// Даже без явной замены набора глобальный проект обязан остаться
		return s.ensureGlobalProject(tx, deployment)
	})
	if err != nil {
		return err
	}

	// Закрытие развертывания — повод для уведомления
	if wasOpen && deployment.DeploymentEnd != nil && s.NotificationService != nil {
		go s.NotificationService.NotifyDeploymentClosed(deployment)
	}
	return nil
}

// Delete удаляет развертывание. Отказывает, пока на развертывание ссылаются
// файлы данных: файлы не должны остаться без валидного интервала.
// Связи с проектами отвязываются, сами проекты не удаляются.
func (s *DeploymentService) Delete(deploymentID uint) error {
	var deployment models.Deployment
	if err := s.DB.First(&deployment, deploymentID).Error; err != nil {
		return fmt.Errorf("развертывание не найдено: %w", err)
	}

	var fileCount int64
	if err := s.DB.Model(&models.DataFile{}).Where("deployment_id = ?", deploymentID).Count(&fileCount).Error; err != nil {
		return err
	}
	if fileCount > 0 {
		return models.FieldErrors{
			"files": fmt.Sprintf("развертывание %s нельзя удалить: на него ссылаются файлы данных (%d)",
				deployment.DeploymentDeviceID, fileCount),
		}
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&deployment).Association("Projects").Clear(); err != nil {
			return err
		}
		return tx.Delete(&deployment).Error
	})
}

// checkFilesInsideWindow считает файлы развертывания со временем записи
// вне окна [start, end]. Границы включительные, как в ContainsDate.
func (s *DeploymentService) checkFilesInsideWindow(tx *gorm.DB, deployment *models.Deployment) error {
	query := tx.Model(&models.DataFile{}).
		Where("deployment_id = ?", deployment.ID).
		Where("recording_dt < ?", deployment.DeploymentStart)
	if deployment.DeploymentEnd != nil {
		query = tx.Model(&models.DataFile{}).
			Where("deployment_id = ?", deployment.ID).
			Where("recording_dt < ? OR recording_dt > ?", deployment.DeploymentStart, *deployment.DeploymentEnd)
	}

	var outside int64
	if err := query.Count(&outside).Error; err != nil {
		return err
	}
	if outside > 0 {
		return models.FieldErrors{
			"deployment_end": fmt.Sprintf("новое окно развертывания %s оставляет %d файлов за его пределами",
				deployment.DeploymentDeviceID, outside),
		}
	}
	return nil
}

// resolveDeviceAndType загружает устройство, проверяет согласованность
// явного типа развертывания с типом устройства и заполняет действующий тип
func (s *DeploymentService) resolveDeviceAndType(deployment *models.Deployment) (*models.Device, models.FieldErrors) {
	if deployment.DeviceID == nil {
		return nil, nil
	}

	var device models.Device
	if err := s.DB.Preload("Model.DataType").Preload("DataType").First(&device, *deployment.DeviceID).Error; err != nil {
		return nil, models.FieldErrors{"device": "устройство не найдено"}
	}

	deviceType := device.DataType
	if deviceType == nil && device.Model != nil {
		deviceType = device.Model.DataType
	}

	var explicit *models.DataType
	if deployment.DataTypeID != nil {
		var dt models.DataType
		if err := s.DB.First(&dt, *deployment.DataTypeID).Error; err != nil {
			return nil, models.FieldErrors{"device_type": "тип данных не найден"}
		}
		explicit = &dt
	}

	if ok, ferr := models.CheckTypeConsistent(explicit, deviceType, device.DeviceID, "device"); !ok {
		return nil, ferr
	}

	effective := models.ResolveDataType(explicit, deviceType)
	if effective != nil {
		id := effective.ID
		deployment.DataTypeID = &id
		deployment.DataType = effective
	}
	return &device, nil
}

// assignDeploymentID генерирует составной идентификатор развертывания.
// Номер берется из счетчика устройства и никогда не переиспользуется,
// даже после удаления развертывания с наибольшим номером.
func (s *DeploymentService) assignDeploymentID(tx *gorm.DB, deployment *models.Deployment, device *models.Device) error {
	typeName := "data"
	if deployment.DataType != nil {
		typeName = deployment.DataType.Name
	} else if deployment.DataTypeID != nil {
		var dt models.DataType
		if err := tx.First(&dt, *deployment.DataTypeID).Error; err == nil {
			typeName = dt.Name
		}
	}

	if device != nil {
		// Счетчик увеличивается атомарно в самой БД: копия устройства,
		// загруженная до взятия блокировки, могла устареть
		if err := tx.Model(&models.Device{}).Where("id = ?", device.ID).
			Update("deployment_counter", gorm.Expr("deployment_counter + 1")).Error; err != nil {
			return err
		}
		var next uint
		if err := tx.Model(&models.Device{}).Where("id = ?", device.ID).
			Select("deployment_counter").Scan(&next).Error; err != nil {
			return err
		}
		device.DeploymentCounter = next
		deployment.DeploymentDeviceID = fmt.Sprintf("%s_%s_%d", device.DeviceID, typeName, next)
		return nil
	}

	// Без устройства используется короткое имя места установки
	var site models.Site
	if err := tx.First(&site, deployment.SiteID).Error; err != nil {
		return models.FieldErrors{"site": "место установки не найдено"}
	}
	var count int64
	if err := tx.Unscoped().Model(&models.Deployment{}).Where("site_id = ? AND device_id IS NULL", deployment.SiteID).
		Count(&count).Error; err != nil {
		return err
	}
	deployment.DeploymentDeviceID = fmt.Sprintf("%s_%s_%d", site.ShortName, typeName, count+1)
	return nil
}

// replaceProjects заменяет набор проектов развертывания, всегда сохраняя
// глобальный проект
func (s *DeploymentService) replaceProjects(tx *gorm.DB, deployment *models.Deployment, projectIDs []uint) error {
	var projects []models.Project
	if len(projectIDs) > 0 {
		if err := tx.Find(&projects, projectIDs).Error; err != nil {
			return err
		}
	}

	global, err := s.globalProject(tx)
	if err != nil {
		return err
	}
	hasGlobal := false
	for _, p := range projects {
		if p.ID == global.ID {
			hasGlobal = true
			break
		}
	}
	if !hasGlobal {
		projects = append([]models.Project{*global}, projects...)
	}

	return tx.Model(deployment).Association("Projects").Replace(projects)
}

// ensureGlobalProject добавляет глобальный проект, если набор проектов
// оказался пуст или глобальный проект был из него убран
func (s *DeploymentService) ensureGlobalProject(tx *gorm.DB, deployment *models.Deployment) error {
	global, err := s.globalProject(tx)
	if err != nil {
		return err
	}

	var count int64
	if err := tx.Table("deployment_projects").
		Where("deployment_id = ? AND project_id = ?", deployment.ID, global.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Model(deployment).Association("Projects").Append(global)
}

// globalProject возвращает (при необходимости создавая) глобальный проект
func (s *DeploymentService) globalProject(tx *gorm.DB) (*models.Project, error) {
	var project models.Project
	err := tx.Where("name = ?", s.GlobalProjectName).First(&project).Error
	if err == gorm.ErrRecordNotFound {
		project = models.Project{Name: s.GlobalProjectName}
		if err := tx.Create(&project).Error; err != nil {
			return nil, fmt.Errorf("ошибка при создании глобального проекта: %w", err)
		}
		return &project, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// IsActive проверяет, активно ли развертывание в указанный момент
func (s *DeploymentService) IsActive(deployment *models.Deployment, now time.Time) bool {
	return deployment.IsActiveAt(now)
}

// ActiveDeployment возвращает активное развертывание устройства на момент now
func (s *DeploymentService) ActiveDeployment(deviceID uint, now time.Time) (*models.Deployment, error) {
	var deployments []models.Deployment
	err := s.DB.Preload("DataType").Where("device_id = ?", deviceID).Find(&deployments).Error
	if err != nil {
		return nil, err
	}
	for i := range deployments {
		if deployments[i].IsActiveAt(now) {
			return &deployments[i], nil
		}
	}
	return nil, nil
}

// CheckDates для каждого момента времени возвращает, попадает ли он в окно
// развертывания. Границы включительные, сравнение в UTC.
func (s *DeploymentService) CheckDates(deployment *models.Deployment, dts []time.Time) []bool {
	results := make([]bool, len(dts))
	for i, dt := range dts {
		results[i] = deployment.ContainsDate(dt)
	}
	return results
}

// Допустимые единицы измерения размера
var sizeUnits = map[string]decimal.Decimal{
	"KB": decimal.NewFromInt(1024),
	"MB": decimal.NewFromInt(1024 * 1024),
	"GB": decimal.NewFromInt(1024 * 1024 * 1024),
}

// FolderSize суммирует размеры файлов по условию и переводит байты
// в запрошенную единицу (KB, MB или GB; по умолчанию MB)
func folderSize(query *gorm.DB, unit string) (decimal.Decimal, error) {
	if unit == "" {
		unit = "MB"
	}
	divisor, ok := sizeUnits[unit]
	if !ok {
		return decimal.Zero, models.FieldErrors{"unit": fmt.Sprintf("неизвестная единица измерения: %s", unit)}
	}

	var total int64
	if err := query.Select("COALESCE(SUM(file_size), 0)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(total).Div(divisor), nil
}

// DeploymentFolderSize возвращает суммарный размер файлов развертывания
func (s *DeploymentService) DeploymentFolderSize(deploymentID uint, unit string) (decimal.Decimal, error) {
	return folderSize(s.DB.Model(&models.DataFile{}).Where("deployment_id = ?", deploymentID), unit)
}

// DeviceFolderSize возвращает суммарный размер файлов всех развертываний устройства
func (s *DeploymentService) DeviceFolderSize(deviceID uint, unit string) (decimal.Decimal, error) {
	return folderSize(s.DB.Model(&models.DataFile{}).
		Joins("JOIN deployments ON deployments.id = data_files.deployment_id").
		Where("deployments.device_id = ?", deviceID), unit)
}

// DeploymentLastUpload возвращает время последней загрузки файла развертывания
// или nil, если файлов нет
func (s *DeploymentService) DeploymentLastUpload(deploymentID uint) (*time.Time, error) {
	return lastUpload(s.DB.Model(&models.DataFile{}).Where("deployment_id = ?", deploymentID))
}

// DeviceLastUpload возвращает время последней загрузки файла устройства
func (s *DeploymentService) DeviceLastUpload(deviceID uint) (*time.Time, error) {
	return lastUpload(s.DB.Model(&models.DataFile{}).
		Joins("JOIN deployments ON deployments.id = data_files.deployment_id").
		Where("deployments.device_id = ?", deviceID))
}

func lastUpload(query *gorm.DB) (*time.Time, error) {
	var result struct {
		Last *time.Time
	}
	if err := query.Select("MAX(upload_dt) AS last").Scan(&result).Error; err != nil {
		return nil, err
	}
	return result.Last, nil
}
