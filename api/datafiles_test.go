package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

func setupDataFileRouter(db *gorm.DB, files *services.FileService, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(asUser(user))

	dataFileAPI := NewDataFileAPI(db, files, nil, services.NewPermissionService(db), nil)
	api := router.Group("/api")
	{
		api.GET("/data-files/:id/download", dataFileAPI.DownloadDataFile)
	}
	return router
}

// Скачивание отдает содержимое владельцу и 404 постороннему
func TestDownloadDataFile(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	outsider := createTestUser(t, db, "outsider")
	deployment, _ := seedTestDeployment(t, db, owner)

	storage := services.NewLocalFileStorage(t.TempDir())
	relPath, err := storage.Save(deployment.DeploymentDeviceID, "rec.wav", []byte("RIFFdata"))
	require.NoError(t, err)

	file := models.DataFile{
		FileName:     "rec",
		FileFormat:   ".wav",
		FileSize:     8,
		RecordingDT:  mustParse("2024-01-15T00:00:00Z"),
		DeploymentID: deployment.ID,
		LocalPath:    relPath,
	}
	require.NoError(t, db.Create(&file).Error)

	files := services.NewFileService(db, storage, &services.FilenameMetadataExtractor{},
		services.NewDeploymentService(db, nil, "Global"))

	// Недоступный файл не раскрывается
	router := setupDataFileRouter(db, files, outsider)
	req, _ := http.NewRequest("GET", "/api/data-files/1/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Владелец получает содержимое с именем файла
	router = setupDataFileRouter(db, files, owner)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFFdata", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "rec.wav")
}
