package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

// DataFileAPI представляет API для работы с файлами данных
type DataFileAPI struct {
	DB          *gorm.DB
	Files       *services.FileService
	Quality     *services.QualityService
	Permissions *services.PermissionService
	Cache       *services.CacheService
}

// NewDataFileAPI создает новый экземпляр DataFileAPI
func NewDataFileAPI(db *gorm.DB, files *services.FileService, quality *services.QualityService, permissions *services.PermissionService, cache *services.CacheService) *DataFileAPI {
	return &DataFileAPI{DB: db, Files: files, Quality: quality, Permissions: permissions, Cache: cache}
}

// GetDataFiles возвращает список файлов, видимых пользователю
func (api *DataFileAPI) GetDataFiles(c *gin.Context) {
	user := CurrentUser(c)
	page := GetPagination(c)

	query := api.Permissions.DataFileQuery(user, "view").Preload("DataType")

	if deploymentID := c.Query("deployment_id"); deploymentID != "" {
		query = query.Where("data_files.deployment_id = ?", deploymentID)
	}
	if status := c.Query("quality_check_status"); status != "" {
		query = query.Where("data_files.quality_check_status = ?", status)
	}
	if from := c.Query("recorded_from"); from != "" {
		if dt, err := time.Parse(time.RFC3339, from); err == nil {
			query = query.Where("data_files.recording_dt >= ?", dt.UTC())
		}
	}
	if to := c.Query("recorded_to"); to != "" {
		if dt, err := time.Parse(time.RFC3339, to); err == nil {
			query = query.Where("data_files.recording_dt <= ?", dt.UTC())
		}
	}

	var total int64
	query.Count(&total)

	var files []models.DataFile
	if err := query.Order("data_files.recording_dt DESC").
		Limit(page.Limit).Offset(page.Offset).Find(&files).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении файлов"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": files, "total": total})
}

// GetDataFile возвращает один файл. Файл вне видимого набора отдает 404.
func (api *DataFileAPI) GetDataFile(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	err := api.Permissions.DataFileQuery(user, "view").
		Preload("Deployment").Preload("DataType").Preload("Observations").
		Where("data_files.id = ?", id).First(&file).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": file})
}

// DownloadDataFile отдает содержимое файла из хранилища.
// Файл вне видимого набора пользователя отдает 404.
func (api *DataFileAPI) DownloadDataFile(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	err := api.Permissions.DataFileQuery(user, "view").
		Where("data_files.id = ?", id).First(&file).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	if file.LocalPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Содержимое файла отсутствует в хранилище"})
		return
	}

	c.FileAttachment(api.Files.Storage.FullPath(file.LocalPath), file.FileName+file.FileFormat)
}

// UploadDataFiles принимает пакет файлов через multipart форму.
// Целевое развертывание задается полем deployment либо device (берется
// активное развертывание устройства). Пакет с хотя бы одним принятым или
// уже существующим файлом — успех; отклоненные возвращаются по именам.
func (api *DataFileAPI) UploadDataFiles(c *gin.Context) {
	user := CurrentUser(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректная multipart форма: " + err.Error()})
		return
	}

	deployment, err := api.Files.ResolveTarget(c.PostForm("deployment"), c.PostForm("device"), time.Now().UTC())
	if err != nil {
		RespondError(c, err)
		return
	}

	// Загрузка файлов требует права на изменение развертывания
	if !api.Permissions.CheckDeployment(user, deployment.ID, "change") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на загрузку файлов в это развертывание"})
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Не передано ни одного файла"})
		return
	}

	var incoming []services.IncomingFile
	for _, header := range fileHeaders {
		opened, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Не удалось прочитать файл " + header.Filename})
			return
		}
		data, err := io.ReadAll(opened)
		opened.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Не удалось прочитать файл " + header.Filename})
			return
		}
		incoming = append(incoming, services.IncomingFile{Name: header.Filename, Data: data})
	}

	result, err := api.Files.RegisterFiles(deployment, incoming)
	if err != nil {
		RespondError(c, err)
		return
	}

	if api.Cache != nil {
		api.Cache.InvalidateDeploymentCache(deployment.ID)
	}

	status := http.StatusOK
	if !result.Success() {
		// Пакет отклонен целиком
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"data": result})
}

// DeleteDataFile удаляет файл вместе с содержимым хранилища
func (api *DataFileAPI) DeleteDataFile(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	if err := api.DB.First(&file, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	if !api.Permissions.CheckDataFile(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на удаление файла"})
		return
	}

	if err := api.Files.DeleteFile(id); err != nil {
		RespondError(c, err)
		return
	}

	if api.Cache != nil {
		api.Cache.InvalidateDeploymentCache(file.DeploymentID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Файл успешно удален"})
}

// Favourite добавляет файл в избранное пользователя
func (api *DataFileAPI) Favourite(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	err := api.Permissions.DataFileQuery(user, "view").
		Where("data_files.id = ?", id).First(&file).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	if err := api.DB.Model(&file).Association("FavouriteOf").Append(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при добавлении в избранное"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Файл добавлен в избранное"})
}

// Unfavourite убирает файл из избранного пользователя
func (api *DataFileAPI) Unfavourite(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	err := api.Permissions.DataFileQuery(user, "view").
		Where("data_files.id = ?", id).First(&file).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	if err := api.DB.Model(&file).Association("FavouriteOf").Delete(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении из избранного"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Файл убран из избранного"})
}

// CheckQuality запускает проверку качества файла в фоне
func (api *DataFileAPI) CheckQuality(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	err := api.Permissions.DataFileQuery(user, "view").
		Where("data_files.id = ?", id).First(&file).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	if !api.Permissions.CheckDataFile(user, id, "change") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на запуск проверки качества"})
		return
	}

	if err := api.Quality.StartCheck(id); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Проверка качества запущена"})
}

// QualityStatus возвращает текущее состояние проверки качества файла
func (api *DataFileAPI) QualityStatus(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var file models.DataFile
	err := api.Permissions.DataFileQuery(user, "view").
		Where("data_files.id = ?", id).First(&file).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Файл не найден"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"quality_check_status": file.QualityCheckStatus,
		"quality_score":        file.QualityScore,
		"quality_issues":       file.QualityIssues,
		"quality_check_dt":     file.QualityCheckDT,
		"quality_check_error":  file.QualityCheckError,
	}})
}
