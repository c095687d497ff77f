package services

import (
	"gorm.io/gorm"

	"backend_sensor/models"
)

// PermissionService представляет движок правил доступа. Каждое правило
// существует в двух формах, которые обязаны оставаться согласованными:
// Check* — проверка одного конкретного экземпляра, *Query — фильтрующий
// запрос для списков. Check реализован поверх того же запроса, ограниченного
// идентификатором экземпляра, поэтому обе формы не могут разойтись.
//
// Порядок композиции правил (с коротким замыканием):
//  1. суперпользователь — полный доступ;
//  2. владелец экземпляра;
//  3. ролевое членство по цепочке проект -> развертывание -> устройство.
//
// Роли: viewer дает только чтение, annotator — чтение и создание/привязку,
// manager — чтение, запись и удаление.
type PermissionService struct {
	DB *gorm.DB
}

// NewPermissionService создает новый экземпляр PermissionService
func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{DB: db}
}

// Уровни доступа к развертыванию
const (
	accessView   = "view"   // viewer, annotator, manager, владелец
	accessChange = "change" // annotator, manager, владелец
	accessManage = "manage" // manager, владелец
)

// rolesForAccess возвращает имена ролевых таблиц, дающих указанный уровень
func rolesForAccess(access string) []string {
	switch access {
	case accessView:
		return []string{"managers", "annotators", "viewers"}
	case accessChange:
		return []string{"managers", "annotators"}
	default:
		return []string{"managers"}
	}
}

// deploymentIDs возвращает запрос, выбирающий ID развертываний, к которым
// пользователь имеет доступ указанного уровня через любую из областей:
// само развертывание, его проекты или его устройство
func (p *PermissionService) deploymentIDs(user *models.User, access string) *gorm.DB {
	query := p.DB.Model(&models.Deployment{}).Select("deployments.id").
		Where("deployments.owner_id = ?", user.ID)

	for _, role := range rolesForAccess(access) {
		// Прямые роли развертывания
		query = query.Or("deployments.id IN (SELECT deployment_id FROM deployment_"+role+" WHERE user_id = ?)", user.ID)
		// Роли через проекты развертывания
		query = query.Or("deployments.id IN (SELECT dp.deployment_id FROM deployment_projects dp "+
			"JOIN project_"+role+" pr ON pr.project_id = dp.project_id WHERE pr.user_id = ?)", user.ID)
		// Роли через устройство
		query = query.Or("deployments.device_id IN (SELECT device_id FROM device_"+role+" WHERE user_id = ?)", user.ID)
	}

	// Владельцы проектов и устройств
	query = query.Or("deployments.id IN (SELECT dp.deployment_id FROM deployment_projects dp "+
		"JOIN projects p ON p.id = dp.project_id WHERE p.owner_id = ?)", user.ID)
	query = query.Or("deployments.device_id IN (SELECT id FROM devices WHERE owner_id = ?)", user.ID)

	return query
}

// --- Развертывания ---

// DeploymentQuery возвращает запрос развертываний, доступных пользователю
// на указанном уровне
func (p *PermissionService) DeploymentQuery(user *models.User, access string) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.Deployment{})
	}
	return p.DB.Model(&models.Deployment{}).Where("deployments.id IN (?)", p.deploymentIDs(user, access))
}

// CheckDeployment проверяет доступ пользователя к одному развертыванию
func (p *PermissionService) CheckDeployment(user *models.User, deploymentID uint, access string) bool {
	if user.IsSuperuser {
		return true
	}
	var count int64
	p.DeploymentQuery(user, access).Where("deployments.id = ?", deploymentID).Count(&count)
	return count > 0
}

// --- Устройства ---

// DeviceQuery возвращает запрос устройств, доступных пользователю
func (p *PermissionService) DeviceQuery(user *models.User, access string) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.Device{})
	}
	query := p.DB.Model(&models.Device{}).Where("devices.owner_id = ?", user.ID)
	for _, role := range rolesForAccess(access) {
		query = query.Or("devices.id IN (SELECT device_id FROM device_"+role+" WHERE user_id = ?)", user.ID)
	}
	return query
}

// CheckDevice проверяет доступ пользователя к одному устройству
func (p *PermissionService) CheckDevice(user *models.User, deviceID uint, access string) bool {
	if user.IsSuperuser {
		return true
	}
	var count int64
	p.DeviceQuery(user, access).Where("devices.id = ?", deviceID).Count(&count)
	return count > 0
}

// --- Проекты ---

// ProjectQuery возвращает запрос проектов, доступных пользователю
func (p *PermissionService) ProjectQuery(user *models.User, access string) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.Project{})
	}
	query := p.DB.Model(&models.Project{}).Where("projects.owner_id = ?", user.ID)
	for _, role := range rolesForAccess(access) {
		query = query.Or("projects.id IN (SELECT project_id FROM project_"+role+" WHERE user_id = ?)", user.ID)
	}
	return query
}

// CheckProject проверяет доступ пользователя к одному проекту
func (p *PermissionService) CheckProject(user *models.User, projectID uint, access string) bool {
	if user.IsSuperuser {
		return true
	}
	var count int64
	p.ProjectQuery(user, access).Where("projects.id = ?", projectID).Count(&count)
	return count > 0
}

// --- Файлы данных ---

// DataFileQuery возвращает запрос файлов, доступных пользователю на
// указанном уровне. Списки файлов и одиночные выборки обязаны строиться
// поверх этого запроса: файл вне видимого набора для чтения отдает 404,
// а не 403, чтобы не раскрывать существование.
func (p *PermissionService) DataFileQuery(user *models.User, access string) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.DataFile{})
	}
	return p.DB.Model(&models.DataFile{}).
		Where("data_files.deployment_id IN (?)", p.deploymentIDs(user, access))
}

// CheckDataFile проверяет доступ пользователя к одному файлу
func (p *PermissionService) CheckDataFile(user *models.User, fileID uint, access string) bool {
	if user.IsSuperuser {
		return true
	}
	var count int64
	p.DataFileQuery(user, access).Where("data_files.id = ?", fileID).Count(&count)
	return count > 0
}

// --- Наблюдения ---

// Для наблюдений действует правило "все файлы обязаны пройти": для
// создания и изменения пользователь должен иметь доступ к КАЖДОМУ
// привязанному файлу. Один недоступный файл в наборе накладывает вето
// на весь экземпляр — версия "достаточно одного файла" ослабляет
// ограничение и считается дефектом.

// observationAuthorizedQuery: наблюдения, у которых есть хотя бы один файл
// и нет ни одного файла вне доступного пользователю набора
func (p *PermissionService) observationAuthorizedQuery(user *models.User, access string) *gorm.DB {
	authorizedFiles := p.DataFileQuery(user, access).Select("data_files.id")
	return p.DB.Model(&models.Observation{}).
		Where("observations.id IN (SELECT observation_id FROM observation_data_files)").
		Where("observations.id NOT IN (SELECT observation_id FROM observation_data_files WHERE data_file_id NOT IN (?))",
			authorizedFiles)
}

// ObservationViewQuery возвращает наблюдения, у которых виден хотя бы один файл
func (p *PermissionService) ObservationViewQuery(user *models.User) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.Observation{})
	}
	visibleFiles := p.DataFileQuery(user, accessView).Select("data_files.id")
	return p.DB.Model(&models.Observation{}).
		Where("observations.owner_id = ? OR observations.id IN "+
			"(SELECT observation_id FROM observation_data_files WHERE data_file_id IN (?))",
			user.ID, visibleFiles)
}

// CheckViewObservation проверяет право на просмотр наблюдения
func (p *PermissionService) CheckViewObservation(user *models.User, observationID uint) bool {
	if user.IsSuperuser {
		return true
	}
	var count int64
	p.ObservationViewQuery(user).Where("observations.id = ?", observationID).Count(&count)
	return count > 0
}

// ObservationAddQuery возвращает наблюдения, к которым пользователь может
// добавлять привязки (все файлы доступны на уровне change)
func (p *PermissionService) ObservationAddQuery(user *models.User) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.Observation{})
	}
	return p.observationAuthorizedQuery(user, accessChange)
}

// CheckAddObservation проверяет право на создание наблюдения с данным
// набором файлов: каждый файл должен быть доступен на уровне change
func (p *PermissionService) CheckAddObservation(user *models.User, dataFileIDs []uint) bool {
	if user.IsSuperuser {
		return true
	}
	if len(dataFileIDs) == 0 {
		return false
	}
	var count int64
	p.DataFileQuery(user, accessChange).Where("data_files.id IN ?", dataFileIDs).Count(&count)
	return count == int64(len(dataFileIDs))
}

// ObservationChangeQuery возвращает наблюдения, которые пользователь может
// изменять: собственные либо те, где доступен каждый привязанный файл
func (p *PermissionService) ObservationChangeQuery(user *models.User) *gorm.DB {
	if user.IsSuperuser {
		return p.DB.Model(&models.Observation{})
	}
	authorized := p.observationAuthorizedQuery(user, accessManage).Select("observations.id")
	return p.DB.Model(&models.Observation{}).
		Where("observations.owner_id = ? OR observations.id IN (?)", user.ID, authorized)
}

// CheckChangeObservation проверяет право на изменение наблюдения
func (p *PermissionService) CheckChangeObservation(user *models.User, observationID uint) bool {
	if user.IsSuperuser {
		return true
	}
	var count int64
	p.ObservationChangeQuery(user).Where("observations.id = ?", observationID).Count(&count)
	return count > 0
}

// ObservationDeleteQuery возвращает наблюдения, которые пользователь может
// удалять. Аннотатор удаляет только собственные наблюдения, менеджер —
// наблюдения во всех своих областях.
func (p *PermissionService) ObservationDeleteQuery(user *models.User) *gorm.DB {
	return p.ObservationChangeQuery(user)
}

// CheckDeleteObservation проверяет право на удаление наблюдения
func (p *PermissionService) CheckDeleteObservation(user *models.User, observationID uint) bool {
	return p.CheckChangeObservation(user, observationID)
}
