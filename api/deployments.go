package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

// DeploymentAPI представляет API для работы с развертываниями
type DeploymentAPI struct {
	DB          *gorm.DB
	Deployments *services.DeploymentService
	Permissions *services.PermissionService
	Cache       *services.CacheService
}

// NewDeploymentAPI создает новый экземпляр DeploymentAPI
func NewDeploymentAPI(db *gorm.DB, deployments *services.DeploymentService, permissions *services.PermissionService, cache *services.CacheService) *DeploymentAPI {
	return &DeploymentAPI{DB: db, Deployments: deployments, Permissions: permissions, Cache: cache}
}

// DeploymentRequest представляет тело запроса на создание/обновление развертывания
type DeploymentRequest struct {
	DeviceID        *uint      `json:"device_id"`
	SiteID          uint       `json:"site_id" binding:"required"`
	DeploymentStart time.Time  `json:"deployment_start" binding:"required"`
	DeploymentEnd   *time.Time `json:"deployment_end"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	DataTypeID      *uint      `json:"data_type_id"`
	ProjectIDs      []uint     `json:"project_ids"`
}

// GetDeployments возвращает список развертываний, видимых пользователю
func (api *DeploymentAPI) GetDeployments(c *gin.Context) {
	user := CurrentUser(c)
	page := GetPagination(c)

	query := api.Permissions.DeploymentQuery(user, "view").
		Preload("Site").Preload("DataType").Preload("Projects")

	if siteID := c.Query("site_id"); siteID != "" {
		query = query.Where("deployments.site_id = ?", siteID)
	}
	if deviceID := c.Query("device_id"); deviceID != "" {
		query = query.Where("deployments.device_id = ?", deviceID)
	}
	if active := c.Query("active"); active == "true" {
		now := time.Now().UTC()
		query = query.Where("deployments.deployment_start <= ? AND (deployments.deployment_end IS NULL OR deployments.deployment_end >= ?)", now, now)
	}

	var total int64
	query.Count(&total)

	var deployments []models.Deployment
	if err := query.Order("deployments.deployment_start DESC").
		Limit(page.Limit).Offset(page.Offset).Find(&deployments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении развертываний"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deployments, "total": total})
}

// GetDeployment возвращает одно развертывание. Развертывание вне видимого
// набора отдает 404, не раскрывая его существование.
func (api *DeploymentAPI) GetDeployment(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var deployment models.Deployment
	err := api.Permissions.DeploymentQuery(user, "view").
		Preload("Site").Preload("DataType").Preload("Projects").Preload("Device").
		Where("deployments.id = ?", id).First(&deployment).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Развертывание не найдено"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deployment})
}

// CreateDeployment создает новое развертывание
func (api *DeploymentAPI) CreateDeployment(c *gin.Context) {
	user := CurrentUser(c)

	var req DeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	// Привязка устройства требует права на изменение устройства
	if req.DeviceID != nil && !api.Permissions.CheckDevice(user, *req.DeviceID, "change") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на использование этого устройства"})
		return
	}

	deployment := models.Deployment{
		DeviceID:        req.DeviceID,
		SiteID:          req.SiteID,
		DeploymentStart: req.DeploymentStart,
		DeploymentEnd:   req.DeploymentEnd,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		DataTypeID:      req.DataTypeID,
		OwnerID:         &user.ID,
	}

	if err := api.Deployments.Create(&deployment, req.ProjectIDs); err != nil {
		RespondError(c, err)
		return
	}

	api.DB.Preload("Site").Preload("DataType").Preload("Projects").First(&deployment, deployment.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Развертывание успешно создано",
		"data":    deployment,
	})
}

// UpdateDeployment обновляет развертывание
func (api *DeploymentAPI) UpdateDeployment(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var deployment models.Deployment
	if err := api.DB.First(&deployment, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Развертывание не найдено"})
		return
	}

	if !api.Permissions.CheckDeployment(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на изменение развертывания"})
		return
	}

	var req DeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	deployment.DeviceID = req.DeviceID
	deployment.SiteID = req.SiteID
	deployment.DeploymentStart = req.DeploymentStart
	deployment.DeploymentEnd = req.DeploymentEnd
	deployment.Latitude = req.Latitude
	deployment.Longitude = req.Longitude
	deployment.DataTypeID = req.DataTypeID

	if err := api.Deployments.Update(&deployment, req.ProjectIDs); err != nil {
		RespondError(c, err)
		return
	}

	api.DB.Preload("Site").Preload("DataType").Preload("Projects").First(&deployment, deployment.ID)

	c.JSON(http.StatusOK, gin.H{
		"message": "Развертывание успешно обновлено",
		"data":    deployment,
	})
}

// DeleteDeployment удаляет развертывание
func (api *DeploymentAPI) DeleteDeployment(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var deployment models.Deployment
	if err := api.DB.First(&deployment, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Развертывание не найдено"})
		return
	}

	if !api.Permissions.CheckDeployment(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на удаление развертывания"})
		return
	}

	if err := api.Deployments.Delete(id); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Развертывание успешно удалено"})
}

// CheckDatesRequest тело запроса на проверку попадания моментов в окно
type CheckDatesRequest struct {
	Dates []time.Time `json:"dates" binding:"required"`
}

// CheckDates проверяет для каждого момента времени, попадает ли он в окно
// развертывания (границы включительные)
func (api *DeploymentAPI) CheckDates(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var deployment models.Deployment
	err := api.Permissions.DeploymentQuery(user, "view").
		Where("deployments.id = ?", id).First(&deployment).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Развертывание не найдено"})
		return
	}

	var req CheckDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": api.Deployments.CheckDates(&deployment, req.Dates)})
}

// GetFolderSize возвращает суммарный размер файлов развертывания в
// запрошенной единице (KB, MB или GB; по умолчанию MB)
func (api *DeploymentAPI) GetFolderSize(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var deployment models.Deployment
	err := api.Permissions.DeploymentQuery(user, "view").
		Where("deployments.id = ?", id).First(&deployment).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Развертывание не найдено"})
		return
	}

	unit := c.DefaultQuery("unit", "MB")

	if api.Cache != nil {
		if size, err := api.Cache.GetCachedFolderSize(id, unit); err == nil {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"size": size, "unit": unit, "cached": true}})
			return
		}
	}

	size, err := api.Deployments.DeploymentFolderSize(id, unit)
	if err != nil {
		RespondError(c, err)
		return
	}

	if api.Cache != nil {
		api.Cache.CacheFolderSize(id, unit, size)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"size": size, "unit": unit}})
}

// GetLastUpload возвращает время последней загрузки файла развертывания
func (api *DeploymentAPI) GetLastUpload(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var deployment models.Deployment
	err := api.Permissions.DeploymentQuery(user, "view").
		Where("deployments.id = ?", id).First(&deployment).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Развертывание не найдено"})
		return
	}

	last, err := api.Deployments.DeploymentLastUpload(id)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"last_upload": last}})
}
