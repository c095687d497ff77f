package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

// ReportAPI представляет API генерации отчетов
type ReportAPI struct {
	DB      *gorm.DB
	Reports *services.ReportService
}

// NewReportAPI создает новый экземпляр ReportAPI
func NewReportAPI(db *gorm.DB, reports *services.ReportService) *ReportAPI {
	return &ReportAPI{DB: db, Reports: reports}
}

// CreateReportRequest тело запроса на генерацию отчета
type CreateReportRequest struct {
	Name     string              `json:"name"`
	Type     models.ReportType   `json:"type" binding:"required"`
	Format   models.ReportFormat `json:"format" binding:"required"`
	DateFrom *time.Time          `json:"date_from"`
	DateTo   *time.Time          `json:"date_to"`
	SiteID   *uint               `json:"site_id"`
	DeviceID *uint               `json:"device_id"`
}

// CreateReport создает задание на отчет и запускает генерацию в фоне
func (api *ReportAPI) CreateReport(c *gin.Context) {
	user := CurrentUser(c)

	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	switch req.Type {
	case models.ReportTypeDevices, models.ReportTypeDeployments, models.ReportTypeDataFiles, models.ReportTypeObservations:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"type": "неизвестный тип отчета"}})
		return
	}
	switch req.Format {
	case models.ReportFormatCSV, models.ReportFormatExcel, models.ReportFormatPDF, models.ReportFormatJSON:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"format": "неизвестный формат отчета"}})
		return
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Отчет %s от %s", req.Type, time.Now().Format("02.01.2006 15:04"))
	}

	report := models.Report{
		Name:   name,
		Type:   req.Type,
		Format: req.Format,
		Status: models.ReportStatusPending,
		UserID: &user.ID,
	}
	if err := api.DB.Create(&report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании задания на отчет"})
		return
	}

	params := services.ReportParams{
		Type:     req.Type,
		Format:   req.Format,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		SiteID:   req.SiteID,
		DeviceID: req.DeviceID,
	}

	go func() {
		if err := api.Reports.GenerateReport(params, &report); err != nil {
			fmt.Printf("❌ Ошибка генерации отчета %d: %v\n", report.ID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Генерация отчета запущена",
		"data":    report,
	})
}

// GetReports возвращает отчеты текущего пользователя
func (api *ReportAPI) GetReports(c *gin.Context) {
	user := CurrentUser(c)
	page := GetPagination(c)

	query := api.DB.Model(&models.Report{})
	if !user.IsSuperuser {
		query = query.Where("user_id = ?", user.ID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var reports []models.Report
	if err := query.Order("created_at DESC").
		Limit(page.Limit).Offset(page.Offset).Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении отчетов"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reports, "total": total})
}

// GetReport возвращает один отчет
func (api *ReportAPI) GetReport(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	report, found := api.loadReport(user, id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Отчет не найден"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// DownloadReport отдает файл готового отчета
func (api *ReportAPI) DownloadReport(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	report, found := api.loadReport(user, id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Отчет не найден"})
		return
	}

	if report.Status != models.ReportStatusCompleted || report.FilePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Отчет еще не готов"})
		return
	}

	c.FileAttachment(report.FilePath, fmt.Sprintf("report_%d.%s", report.ID, report.Format))
}

// DeleteReport удаляет задание на отчет
func (api *ReportAPI) DeleteReport(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	report, found := api.loadReport(user, id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Отчет не найден"})
		return
	}

	if err := api.DB.Delete(report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении отчета"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Отчет успешно удален"})
}

// loadReport находит отчет, доступный пользователю. Чужие отчеты видит
// только суперпользователь.
func (api *ReportAPI) loadReport(user *models.User, id uint) (*models.Report, bool) {
	var report models.Report
	query := api.DB.Where("id = ?", id)
	if !user.IsSuperuser {
		query = query.Where("user_id = ?", user.ID)
	}
	if err := query.First(&report).Error; err != nil {
		return nil, false
	}
	return &report, true
}
