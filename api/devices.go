package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

// DeviceAPI представляет API для работы с устройствами
type DeviceAPI struct {
	DB          *gorm.DB
	Devices     *services.DeviceService
	Deployments *services.DeploymentService
	Permissions *services.PermissionService
	Cache       *services.CacheService
}

// NewDeviceAPI создает новый экземпляр DeviceAPI
func NewDeviceAPI(db *gorm.DB, devices *services.DeviceService, deployments *services.DeploymentService, permissions *services.PermissionService, cache *services.CacheService) *DeviceAPI {
	return &DeviceAPI{DB: db, Devices: devices, Deployments: deployments, Permissions: permissions, Cache: cache}
}

// GetDevices возвращает список устройств, видимых пользователю
func (api *DeviceAPI) GetDevices(c *gin.Context) {
	user := CurrentUser(c)
	page := GetPagination(c)

	query := api.Permissions.DeviceQuery(user, "view").
		Preload("Model").Preload("DataType")

	if status := c.Query("status"); status != "" {
		query = query.Where("devices.device_status = ?", status)
	}
	if modelID := c.Query("model_id"); modelID != "" {
		query = query.Where("devices.model_id = ?", modelID)
	}

	var total int64
	query.Count(&total)

	var devices []models.Device
	if err := query.Order("devices.device_id ASC").
		Limit(page.Limit).Offset(page.Offset).Find(&devices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении устройств"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": devices, "total": total})
}

// GetDevice возвращает одно устройство. Вне видимого набора — 404.
func (api *DeviceAPI) GetDevice(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var device models.Device
	err := api.Permissions.DeviceQuery(user, "view").
		Preload("Model").Preload("DataType").Preload("Deployments").
		Where("devices.id = ?", id).First(&device).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Устройство не найдено"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": device})
}

// CreateDevice создает новое устройство
func (api *DeviceAPI) CreateDevice(c *gin.Context) {
	user := CurrentUser(c)

	var device models.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	device.OwnerID = &user.ID
	if device.DeviceStatus == "" {
		device.DeviceStatus = models.DeviceStatusActive
	}

	if err := api.Devices.Create(&device); err != nil {
		RespondError(c, err)
		return
	}

	api.DB.Preload("Model").Preload("DataType").First(&device, device.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Устройство успешно создано",
		"data":    device,
	})
}

// UpdateDevice обновляет устройство
func (api *DeviceAPI) UpdateDevice(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var device models.Device
	if err := api.DB.First(&device, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Устройство не найдено"})
		return
	}

	if !api.Permissions.CheckDevice(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на изменение устройства"})
		return
	}

	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}
	device.ID = id

	if err := api.Devices.Update(&device); err != nil {
		RespondError(c, err)
		return
	}

	if api.Cache != nil {
		api.Cache.InvalidateDeviceCache(id)
	}

	api.DB.Preload("Model").Preload("DataType").First(&device, device.ID)

	c.JSON(http.StatusOK, gin.H{
		"message": "Устройство успешно обновлено",
		"data":    device,
	})
}

// DeleteDevice удаляет устройство. Отказывает, пока у устройства есть
// развертывания.
func (api *DeviceAPI) DeleteDevice(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var device models.Device
	if err := api.DB.First(&device, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Устройство не найдено"})
		return
	}

	if !api.Permissions.CheckDevice(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на удаление устройства"})
		return
	}

	var deploymentCount int64
	api.DB.Model(&models.Deployment{}).Where("device_id = ?", id).Count(&deploymentCount)
	if deploymentCount > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"deployments": "устройство нельзя удалить: у него есть развертывания",
		}})
		return
	}

	if err := api.DB.Delete(&device).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении устройства"})
		return
	}

	if api.Cache != nil {
		api.Cache.InvalidateDeviceCache(id)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Устройство успешно удалено"})
}

// GetDeviceFolderSize возвращает суммарный размер файлов устройства
func (api *DeviceAPI) GetDeviceFolderSize(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var device models.Device
	err := api.Permissions.DeviceQuery(user, "view").
		Where("devices.id = ?", id).First(&device).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Устройство не найдено"})
		return
	}

	unit := c.DefaultQuery("unit", "MB")
	size, err := api.Deployments.DeviceFolderSize(id, unit)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"size": size, "unit": unit}})
}

// GetDeviceLastUpload возвращает время последней загрузки файла устройства
func (api *DeviceAPI) GetDeviceLastUpload(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var device models.Device
	err := api.Permissions.DeviceQuery(user, "view").
		Where("devices.id = ?", id).First(&device).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Устройство не найдено"})
		return
	}

	last, err := api.Deployments.DeviceLastUpload(id)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"last_upload": last}})
}
