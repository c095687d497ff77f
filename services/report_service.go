package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"backend_sensor/models"
)

// ReportService предоставляет функциональность для генерации отчетов
// по устройствам, развертываниям, файлам данных и наблюдениям
type ReportService struct {
	db          *gorm.DB
	deployments *DeploymentService
}

// NewReportService создает новый экземпляр ReportService
func NewReportService(db *gorm.DB, deployments *DeploymentService) *ReportService {
	return &ReportService{db: db, deployments: deployments}
}

// ReportData представляет данные для отчета
type ReportData struct {
	Headers []string                 `json:"headers"`
	Rows    []map[string]interface{} `json:"rows"`
	Summary map[string]interface{}   `json:"summary,omitempty"`
}

// ReportParams представляет параметры для генерации отчета
type ReportParams struct {
	Type     models.ReportType   `json:"type"`
	DateFrom *time.Time          `json:"date_from,omitempty"`
	DateTo   *time.Time          `json:"date_to,omitempty"`
	SiteID   *uint               `json:"site_id,omitempty"`
	DeviceID *uint               `json:"device_id,omitempty"`
	Format   models.ReportFormat `json:"format"`
}

// GenerateReport генерирует отчет по заданным параметрам
func (rs *ReportService) GenerateReport(params ReportParams, report *models.Report) error {
	// Обновляем статус на "обрабатывается"
	now := time.Now()
	report.Status = models.ReportStatusProcessing
	report.StartedAt = &now
	if err := rs.db.Save(report).Error; err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}

	// Получаем данные для отчета
	data, err := rs.getReportData(params)
	if err != nil {
		rs.updateReportError(report, fmt.Sprintf("failed to get report data: %v", err))
		return err
	}

	// Генерируем файл отчета
	filePath, err := rs.generateReportFile(data, params, report)
	if err != nil {
		rs.updateReportError(report, fmt.Sprintf("failed to generate report file: %v", err))
		return err
	}

	// Получаем информацию о файле
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		rs.updateReportError(report, fmt.Sprintf("failed to get file info: %v", err))
		return err
	}

	// Обновляем отчет с результатами
	completedAt := time.Now()
	duration := int(completedAt.Sub(*report.StartedAt).Seconds())

	report.Status = models.ReportStatusCompleted
	report.CompletedAt = &completedAt
	report.Duration = duration
	report.FilePath = filePath
	report.FileSize = fileInfo.Size()
	report.RecordCount = len(data.Rows)
	report.ErrorMsg = ""

	return rs.db.Save(report).Error
}

// getReportData получает данные для отчета в зависимости от типа
func (rs *ReportService) getReportData(params ReportParams) (*ReportData, error) {
	switch params.Type {
	case models.ReportTypeDevices:
		return rs.getDevicesReportData(params)
	case models.ReportTypeDeployments:
		return rs.getDeploymentsReportData(params)
	case models.ReportTypeDataFiles:
		return rs.getDataFilesReportData(params)
	case models.ReportTypeObservations:
		return rs.getObservationsReportData(params)
	default:
		return nil, fmt.Errorf("unsupported report type: %s", params.Type)
	}
}

// getDevicesReportData получает данные отчета по устройствам
func (rs *ReportService) getDevicesReportData(params ReportParams) (*ReportData, error) {
	var devices []models.Device
	query := rs.db.Preload("Model").Preload("DataType")
	if params.DeviceID != nil {
		query = query.Where("id = ?", *params.DeviceID)
	}
	if err := query.Find(&devices).Error; err != nil {
		return nil, err
	}

	data := &ReportData{
		Headers: []string{"ID устройства", "Название", "Модель", "Статус", "Заряд", "Развертываний", "Объем (MB)"},
	}

	lowBattery := 0
	for i := range devices {
		device := devices[i]
		if device.DeviceStatus == models.DeviceStatusLowBattery {
			lowBattery++
		}

		size, err := rs.deployments.DeviceFolderSize(device.ID, "MB")
		if err != nil {
			return nil, err
		}

		var deploymentCount int64
		rs.db.Model(&models.Deployment{}).Where("device_id = ?", device.ID).Count(&deploymentCount)

		modelName := ""
		if device.Model != nil {
			modelName = device.Model.Name
		}

		data.Rows = append(data.Rows, map[string]interface{}{
			"ID устройства":  device.DeviceID,
			"Название":       device.Name,
			"Модель":         modelName,
			"Статус":         device.DeviceStatus,
			"Заряд":          device.BatteryLevel,
			"Развертываний":  deploymentCount,
			"Объем (MB)":     size.String(),
		})
	}

	data.Summary = map[string]interface{}{
		"total":       len(devices),
		"low_battery": lowBattery,
	}
	return data, nil
}

// getDeploymentsReportData получает данные отчета по развертываниям
func (rs *ReportService) getDeploymentsReportData(params ReportParams) (*ReportData, error) {
	var deployments []models.Deployment
	query := rs.db.Preload("Site").Preload("DataType")
	if params.SiteID != nil {
		query = query.Where("site_id = ?", *params.SiteID)
	}
	if params.DeviceID != nil {
		query = query.Where("device_id = ?", *params.DeviceID)
	}
	if params.DateFrom != nil {
		query = query.Where("deployment_start >= ?", params.DateFrom.UTC())
	}
	if params.DateTo != nil {
		query = query.Where("deployment_start <= ?", params.DateTo.UTC())
	}
	if err := query.Find(&deployments).Error; err != nil {
		return nil, err
	}

	data := &ReportData{
		Headers: []string{"Развертывание", "Место", "Начало", "Конец", "Активно", "Файлов", "Объем (MB)", "Последняя загрузка"},
	}

	now := time.Now().UTC()
	active := 0
	for i := range deployments {
		deployment := deployments[i]
		if deployment.IsActiveAt(now) {
			active++
		}

		size, err := rs.deployments.DeploymentFolderSize(deployment.ID, "MB")
		if err != nil {
			return nil, err
		}
		last, err := rs.deployments.DeploymentLastUpload(deployment.ID)
		if err != nil {
			return nil, err
		}

		var fileCount int64
		rs.db.Model(&models.DataFile{}).Where("deployment_id = ?", deployment.ID).Count(&fileCount)

		end := ""
		if deployment.DeploymentEnd != nil {
			end = deployment.DeploymentEnd.Format("02.01.2006 15:04")
		}
		lastStr := ""
		if last != nil {
			lastStr = last.Format("02.01.2006 15:04")
		}
		siteName := ""
		if deployment.Site != nil {
			siteName = deployment.Site.Name
		}

		data.Rows = append(data.Rows, map[string]interface{}{
			"Развертывание":      deployment.DeploymentDeviceID,
			"Место":              siteName,
			"Начало":             deployment.DeploymentStart.Format("02.01.2006 15:04"),
			"Конец":              end,
			"Активно":            deployment.IsActiveAt(now),
			"Файлов":             fileCount,
			"Объем (MB)":         size.String(),
			"Последняя загрузка": lastStr,
		})
	}

	data.Summary = map[string]interface{}{
		"total":  len(deployments),
		"active": active,
	}
	return data, nil
}

// getDataFilesReportData получает данные отчета по файлам данных
func (rs *ReportService) getDataFilesReportData(params ReportParams) (*ReportData, error) {
	var files []models.DataFile
	query := rs.db.Preload("Deployment")
	if params.DateFrom != nil {
		query = query.Where("recording_dt >= ?", params.DateFrom.UTC())
	}
	if params.DateTo != nil {
		query = query.Where("recording_dt <= ?", params.DateTo.UTC())
	}
	if params.DeviceID != nil {
		query = query.Joins("JOIN deployments ON deployments.id = data_files.deployment_id").
			Where("deployments.device_id = ?", *params.DeviceID)
	}
	if err := query.Find(&files).Error; err != nil {
		return nil, err
	}

	data := &ReportData{
		Headers: []string{"Файл", "Развертывание", "Время записи", "Размер (байт)", "Проверка качества", "Оценка"},
	}

	var totalSize int64
	checked := 0
	for i := range files {
		file := files[i]
		totalSize += file.FileSize
		if file.QualityCheckStatus == models.QualityStatusCompleted {
			checked++
		}

		deploymentName := ""
		if file.Deployment != nil {
			deploymentName = file.Deployment.DeploymentDeviceID
		}
		score := ""
		if file.QualityScore != nil {
			score = fmt.Sprintf("%.2f", *file.QualityScore)
		}

		data.Rows = append(data.Rows, map[string]interface{}{
			"Файл":              file.FullName(),
			"Развертывание":     deploymentName,
			"Время записи":      file.RecordingDT.Format("02.01.2006 15:04:05"),
			"Размер (байт)":     file.FileSize,
			"Проверка качества": file.QualityCheckStatus,
			"Оценка":            score,
		})
	}

	data.Summary = map[string]interface{}{
		"total":      len(files),
		"total_size": totalSize,
		"checked":    checked,
	}
	return data, nil
}

// getObservationsReportData получает данные отчета по наблюдениям
func (rs *ReportService) getObservationsReportData(params ReportParams) (*ReportData, error) {
	var observations []models.Observation
	query := rs.db.Preload("Owner").Preload("DataFiles")
	if params.DateFrom != nil {
		query = query.Where("created_at >= ?", params.DateFrom.UTC())
	}
	if params.DateTo != nil {
		query = query.Where("created_at <= ?", params.DateTo.UTC())
	}
	if err := query.Find(&observations).Error; err != nil {
		return nil, err
	}

	data := &ReportData{
		Headers: []string{"Метка", "Код таксона", "Уверенность", "Файлов", "Автор", "Создано"},
	}

	byLabel := make(map[string]int)
	for i := range observations {
		obs := observations[i]
		byLabel[obs.Label]++

		author := ""
		if obs.Owner != nil {
			author = obs.Owner.Username
		}
		confidence := ""
		if obs.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *obs.Confidence)
		}

		data.Rows = append(data.Rows, map[string]interface{}{
			"Метка":       obs.Label,
			"Код таксона": obs.TaxonCode,
			"Уверенность": confidence,
			"Файлов":      len(obs.DataFiles),
			"Автор":       author,
			"Создано":     obs.CreatedAt.Format("02.01.2006 15:04"),
		})
	}

	data.Summary = map[string]interface{}{
		"total":    len(observations),
		"by_label": byLabel,
	}
	return data, nil
}

// generateReportFile генерирует файл отчета в запрошенном формате
func (rs *ReportService) generateReportFile(data *ReportData, params ReportParams, report *models.Report) (string, error) {
	// Создаем директорию для отчетов если её нет
	reportsDir := "reports"
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", err
	}

	// Формируем имя файла
	timestamp := time.Now().Format("20060102_150405")
	fileName := fmt.Sprintf("report_%d_%s_%s", report.ID, params.Type, timestamp)

	switch params.Format {
	case models.ReportFormatCSV:
		return rs.generateCSVReport(data, filepath.Join(reportsDir, fileName+".csv"))
	case models.ReportFormatExcel:
		return rs.generateExcelReport(data, filepath.Join(reportsDir, fileName+".xlsx"))
	case models.ReportFormatPDF:
		return rs.generatePDFReport(data, filepath.Join(reportsDir, fileName+".pdf"))
	case models.ReportFormatJSON:
		return rs.generateJSONReport(data, filepath.Join(reportsDir, fileName+".json"))
	default:
		return "", fmt.Errorf("unsupported format: %s", params.Format)
	}
}

// generateCSVReport генерирует CSV файл отчета
func (rs *ReportService) generateCSVReport(data *ReportData, filePath string) (string, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Записываем заголовки
	if err := writer.Write(data.Headers); err != nil {
		return "", err
	}

	// Записываем данные
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			if value, ok := row[header]; ok {
				record[i] = fmt.Sprintf("%v", value)
			}
		}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	return filePath, nil
}

// generateExcelReport генерирует Excel файл отчета
func (rs *ReportService) generateExcelReport(data *ReportData, filePath string) (string, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheetName := "Отчет"
	f.SetSheetName("Sheet1", sheetName)

	// Записываем заголовки
	for i, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	// Записываем данные
	for rowIdx, row := range data.Rows {
		for colIdx, header := range data.Headers {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if value, ok := row[header]; ok {
				f.SetCellValue(sheetName, cell, value)
			}
		}
	}

	// Добавляем автофильтр
	endCell := fmt.Sprintf("%s%d", string(rune('A'+len(data.Headers)-1)), len(data.Rows)+1)
	f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{})

	// Сохраняем файл
	if err := f.SaveAs(filePath); err != nil {
		return "", err
	}

	return filePath, nil
}

// generatePDFReport генерирует PDF файл отчета
func (rs *ReportService) generatePDFReport(data *ReportData, filePath string) (string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)

	// Заголовок отчета
	pdf.Cell(40, 10, "Отчет")
	pdf.Ln(20)

	// Таблица с данными (упрощенная версия)
	pdf.SetFont("Arial", "", 8)

	// Заголовки
	for _, header := range data.Headers {
		pdf.Cell(25, 10, header)
	}
	pdf.Ln(10)

	// Данные (ограничиваем количество строк для PDF)
	maxRows := 50
	for i, row := range data.Rows {
		if i >= maxRows {
			pdf.Cell(25, 10, "... и еще записей")
			break
		}

		for _, header := range data.Headers {
			value := ""
			if val, ok := row[header]; ok {
				value = fmt.Sprintf("%.12s", fmt.Sprintf("%v", val))
			}
			pdf.Cell(25, 10, value)
		}
		pdf.Ln(5)
	}

	return filePath, pdf.OutputFileAndClose(filePath)
}

// generateJSONReport генерирует JSON файл отчета
func (rs *ReportService) generateJSONReport(data *ReportData, filePath string) (string, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	reportData := map[string]interface{}{
		"headers":      data.Headers,
		"data":         data.Rows,
		"summary":      data.Summary,
		"generated_at": time.Now(),
	}

	return filePath, encoder.Encode(reportData)
}

// updateReportError обновляет отчет с информацией об ошибке
func (rs *ReportService) updateReportError(report *models.Report, errorMsg string) {
	now := time.Now()
	report.Status = models.ReportStatusFailed
	report.ErrorMsg = errorMsg
	report.CompletedAt = &now
	if report.StartedAt != nil {
		report.Duration = int(now.Sub(*report.StartedAt).Seconds())
	}
	rs.db.Save(report)
}
