package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

// ObservationAPI представляет API для работы с наблюдениями
type ObservationAPI struct {
	DB          *gorm.DB
	Permissions *services.PermissionService
}

// NewObservationAPI создает новый экземпляр ObservationAPI
func NewObservationAPI(db *gorm.DB, permissions *services.PermissionService) *ObservationAPI {
	return &ObservationAPI{DB: db, Permissions: permissions}
}

// ObservationRequest тело запроса на создание/обновление наблюдения
type ObservationRequest struct {
	Label       string   `json:"label" binding:"required"`
	TaxonCode   string   `json:"taxon_code"`
	Confidence  *float64 `json:"confidence"`
	Comment     string   `json:"comment"`
	DataFileIDs []uint   `json:"data_file_ids" binding:"required,min=1"`
}

// GetObservations возвращает наблюдения, у которых виден хотя бы один файл
func (api *ObservationAPI) GetObservations(c *gin.Context) {
	user := CurrentUser(c)
	page := GetPagination(c)

	query := api.Permissions.ObservationViewQuery(user).Preload("DataFiles").Preload("Owner")

	if label := c.Query("label"); label != "" {
		query = query.Where("observations.label = ?", label)
	}
	if taxonCode := c.Query("taxon_code"); taxonCode != "" {
		query = query.Where("observations.taxon_code = ?", taxonCode)
	}

	var total int64
	query.Count(&total)

	var observations []models.Observation
	if err := query.Order("observations.created_at DESC").
		Limit(page.Limit).Offset(page.Offset).Find(&observations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении наблюдений"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": observations, "total": total})
}

// GetObservation возвращает одно наблюдение. Вне видимого набора — 404.
func (api *ObservationAPI) GetObservation(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var observation models.Observation
	err := api.Permissions.ObservationViewQuery(user).
		Preload("DataFiles").Preload("Owner").
		Where("observations.id = ?", id).First(&observation).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Наблюдение не найдено"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": observation})
}

// CreateObservation создает наблюдение. Пользователь должен иметь право
// на изменение КАЖДОГО привязываемого файла: один недоступный файл
// отклоняет весь запрос.
func (api *ObservationAPI) CreateObservation(c *gin.Context) {
	user := CurrentUser(c)

	var req ObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	if !api.Permissions.CheckAddObservation(user, req.DataFileIDs) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на аннотирование одного или нескольких указанных файлов"})
		return
	}

	var files []models.DataFile
	if err := api.DB.Find(&files, req.DataFileIDs).Error; err != nil || len(files) != len(req.DataFileIDs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Один или несколько файлов не найдены"})
		return
	}

	observation := models.Observation{
		Label:      req.Label,
		TaxonCode:  req.TaxonCode,
		Confidence: req.Confidence,
		Comment:    req.Comment,
		OwnerID:    user.ID,
		DataFiles:  files,
	}

	if err := api.DB.Create(&observation).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании наблюдения: " + err.Error()})
		return
	}

	api.DB.Preload("DataFiles").Preload("Owner").First(&observation, observation.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Наблюдение успешно создано",
		"data":    observation,
	})
}

// UpdateObservation обновляет наблюдение. Помимо права на само наблюдение
// проверяется право на каждый файл нового набора привязок.
func (api *ObservationAPI) UpdateObservation(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var observation models.Observation
	if err := api.Permissions.ObservationViewQuery(user).
		Where("observations.id = ?", id).First(&observation).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Наблюдение не найдено"})
		return
	}

	if !api.Permissions.CheckChangeObservation(user, id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на изменение наблюдения"})
		return
	}

	var req ObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	if !api.Permissions.CheckAddObservation(user, req.DataFileIDs) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на аннотирование одного или нескольких указанных файлов"})
		return
	}

	var files []models.DataFile
	if err := api.DB.Find(&files, req.DataFileIDs).Error; err != nil || len(files) != len(req.DataFileIDs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Один или несколько файлов не найдены"})
		return
	}

	observation.Label = req.Label
	observation.TaxonCode = req.TaxonCode
	observation.Confidence = req.Confidence
	observation.Comment = req.Comment

	err := api.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&observation).Error; err != nil {
			return err
		}
		return tx.Model(&observation).Association("DataFiles").Replace(files)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении наблюдения: " + err.Error()})
		return
	}

	api.DB.Preload("DataFiles").Preload("Owner").First(&observation, observation.ID)

	c.JSON(http.StatusOK, gin.H{
		"message": "Наблюдение успешно обновлено",
		"data":    observation,
	})
}

// DeleteObservation удаляет наблюдение
func (api *ObservationAPI) DeleteObservation(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var observation models.Observation
	if err := api.Permissions.ObservationViewQuery(user).
		Where("observations.id = ?", id).First(&observation).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Наблюдение не найдено"})
		return
	}

	if !api.Permissions.CheckDeleteObservation(user, id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на удаление наблюдения"})
		return
	}

	err := api.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&observation).Association("DataFiles").Clear(); err != nil {
			return err
		}
		return tx.Delete(&observation).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении наблюдения"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Наблюдение успешно удалено"})
}
