package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
)

// SiteAPI представляет API для работы с местами установки и справочниками
// (типы данных, модели устройств)
type SiteAPI struct {
	DB *gorm.DB
}

// NewSiteAPI создает новый экземпляр SiteAPI
func NewSiteAPI(db *gorm.DB) *SiteAPI {
	return &SiteAPI{DB: db}
}

// SiteRequest тело запроса на создание/обновление места установки
type SiteRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// GetSites возвращает список мест установки
func (api *SiteAPI) GetSites(c *gin.Context) {
	page := GetPagination(c)

	query := api.DB.Model(&models.Site{})
	if name := c.Query("name"); name != "" {
		query = query.Where("name ILIKE ? OR short_name ILIKE ?", "%"+name+"%", "%"+name+"%")
	}

	var total int64
	query.Count(&total)

	var sites []models.Site
	if err := query.Order("name ASC").
		Limit(page.Limit).Offset(page.Offset).Find(&sites).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении мест установки"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sites, "total": total})
}

// GetSite возвращает одно место установки
func (api *SiteAPI) GetSite(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var site models.Site
	if err := api.DB.First(&site, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Место установки не найдено"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": site})
}

// CreateSite создает новое место установки
func (api *SiteAPI) CreateSite(c *gin.Context) {
	var req SiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	site := models.Site{Name: req.Name}
	if err := api.DB.Create(&site).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании места установки"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Место установки успешно создано",
		"data":    site,
	})
}

// UpdateSite обновляет место установки. Короткое имя пересчитывается
// автоматически.
func (api *SiteAPI) UpdateSite(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var site models.Site
	if err := api.DB.First(&site, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Место установки не найдено"})
		return
	}

	var req SiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	site.Name = req.Name
	if err := api.DB.Save(&site).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении места установки"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Место установки успешно обновлено",
		"data":    site,
	})
}

// DeleteSite удаляет место установки. Отказывает, пока место используется
// развертываниями.
func (api *SiteAPI) DeleteSite(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var site models.Site
	if err := api.DB.First(&site, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Место установки не найдено"})
		return
	}

	var count int64
	api.DB.Model(&models.Deployment{}).Where("site_id = ?", id).Count(&count)
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"site": "место установки нельзя удалить: оно используется развертываниями",
		}})
		return
	}

	if err := api.DB.Delete(&site).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении места установки"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Место установки успешно удалено"})
}

// GetDataTypes возвращает справочник типов данных
func (api *SiteAPI) GetDataTypes(c *gin.Context) {
	var types []models.DataType
	if err := api.DB.Order("name ASC").Find(&types).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении типов данных"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": types})
}

// CreateDataType добавляет тип данных в справочник. Доступно только
// суперпользователю.
func (api *SiteAPI) CreateDataType(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil || !user.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Справочник типов данных может изменять только администратор"})
		return
	}

	var dataType models.DataType
	if err := c.ShouldBindJSON(&dataType); err != nil || dataType.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные"})
		return
	}

	if err := api.DB.Create(&dataType).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"name": "тип данных с таким названием уже существует"}})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Тип данных успешно создан",
		"data":    dataType,
	})
}

// GetDeviceModels возвращает справочник моделей устройств
func (api *SiteAPI) GetDeviceModels(c *gin.Context) {
	var deviceModels []models.DeviceModel
	if err := api.DB.Preload("DataType").Order("name ASC").Find(&deviceModels).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении моделей устройств"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": deviceModels})
}

// CreateDeviceModel добавляет модель устройства в справочник. Доступно
// только суперпользователю.
func (api *SiteAPI) CreateDeviceModel(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil || !user.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Справочник моделей может изменять только администратор"})
		return
	}

	var deviceModel models.DeviceModel
	if err := c.ShouldBindJSON(&deviceModel); err != nil || deviceModel.Name == "" || deviceModel.DataTypeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: требуются name и data_type_id"})
		return
	}

	if err := api.DB.Create(&deviceModel).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании модели устройства"})
		return
	}

	api.DB.Preload("DataType").First(&deviceModel, deviceModel.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Модель устройства успешно создана",
		"data":    deviceModel,
	})
}
