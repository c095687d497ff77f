package api

import (
	"bytes"
	"encoding/json"
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

func setupObservationRouter(db *gorm.DB, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(asUser(user))

	observationAPI := NewObservationAPI(db, services.NewPermissionService(db))
	api := router.Group("/api")
	{
		api.GET("/observations/:id", observationAPI.GetObservation)
		api.POST("/observations", observationAPI.CreateObservation)
		api.PUT("/observations/:id", observationAPI.UpdateObservation)
		api.DELETE("/observations/:id", observationAPI.DeleteObservation)
	}
	return router
}

func seedObservationFixture(t *testing.T, db *gorm.DB, owner *models.User) (*models.DataFile, *models.DataFile) {
	deployment, _ := seedTestDeployment(t, db, owner)

	accessible := models.DataFile{
		FileName:     "own",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  mustParse("2024-01-15T00:00:00Z"),
		DeploymentID: deployment.ID,
	}
	require.NoError(t, db.Create(&accessible).Error)

	// Файл чужого развертывания
	site := models.Site{Name: "Другой кордон"}
	require.NoError(t, db.Create(&site).Error)
	foreignDeployment := models.Deployment{
		DeploymentDeviceID: "FOREIGN_audio_1",
		SiteID:             site.ID,
		DeploymentStart:    mustParse("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, db.Create(&foreignDeployment).Error)
	foreign := models.DataFile{
		FileName:     "foreign",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  mustParse("2024-01-15T00:00:00Z"),
		DeploymentID: foreignDeployment.ID,
	}
	require.NoError(t, db.Create(&foreign).Error)

	return &accessible, &foreign
}

// Один недоступный файл в наборе отклоняет создание наблюдения целиком
func TestCreateObservationVeto(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	accessible, foreign := seedObservationFixture(t, db, owner)

	router := setupObservationRouter(db, owner)

	post := func(fileIDs []uint) *httptest.ResponseRecorder {
		body, _ := json.Marshal(ObservationRequest{
			Label:       "Strix aluco",
			TaxonCode:   "strialu",
			DataFileIDs: fileIDs,
		})
		req, _ := http.NewRequest("POST", "/api/observations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// Набор с недоступным файлом — 403
	w := post([]uint{accessible.ID, foreign.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var count int64
	db.Model(&models.Observation{}).Count(&count)
	assert.Equal(t, int64(0), count)

	// Полностью доступный набор — 201
	w = post([]uint{accessible.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "Strix aluco", data["label"])
}

// Замена набора привязок также проверяет каждый файл нового набора
func TestUpdateObservationVetoOnNewFiles(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	accessible, foreign := seedObservationFixture(t, db, owner)

	observation := models.Observation{
		Label:     "Strix aluco",
		OwnerID:   owner.ID,
		DataFiles: []models.DataFile{*accessible},
	}
	require.NoError(t, db.Create(&observation).Error)

	router := setupObservationRouter(db, owner)
	body, _ := json.Marshal(ObservationRequest{
		Label:       "Strix uralensis",
		DataFileIDs: []uint{accessible.ID, foreign.ID},
	})
	req, _ := http.NewRequest("PUT", "/api/observations/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Наблюдение не изменилось
	var stored models.Observation
	require.NoError(t, db.First(&stored, observation.ID).Error)
	assert.Equal(t, "Strix aluco", stored.Label)
}

func TestGetObservationInvisibleReturns404(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	outsider := createTestUser(t, db, "outsider")
	accessible, _ := seedObservationFixture(t, db, owner)

	observation := models.Observation{
		Label:     "Strix aluco",
		OwnerID:   owner.ID,
		DataFiles: []models.DataFile{*accessible},
	}
	require.NoError(t, db.Create(&observation).Error)

	router := setupObservationRouter(db, outsider)
	req, _ := http.NewRequest("GET", "/api/observations/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	router = setupObservationRouter(db, owner)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteObservationClearsLinksOnly(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	accessible, _ := seedObservationFixture(t, db, owner)

	observation := models.Observation{
		Label:     "Strix aluco",
		OwnerID:   owner.ID,
		DataFiles: []models.DataFile{*accessible},
	}
	require.NoError(t, db.Create(&observation).Error)

	router := setupObservationRouter(db, owner)
	req, _ := http.NewRequest("DELETE", "/api/observations/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var observationCount int64
	db.Model(&models.Observation{}).Count(&observationCount)
	assert.Equal(t, int64(0), observationCount)

	// Файл при удалении наблюдения не трогается
	var fileCount int64
	db.Model(&models.DataFile{}).Where("id = ?", accessible.ID).Count(&fileCount)
	assert.Equal(t, int64(1), fileCount)
}
