package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

func newAPITestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.DataType{},
		&models.DeviceModel{},
		&models.Device{},
		&models.Site{},
		&models.Project{},
		&models.Deployment{},
		&models.DataFile{},
		&models.Observation{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := models.User{Username: username, Email: username + "@example.org", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

// asUser подменяет аутентификацию: кладет пользователя в контекст запроса
func asUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", user)
		c.Next()
	}
}

func mustParse(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func seedTestDeployment(t *testing.T, db *gorm.DB, owner *models.User) (*models.Deployment, *services.DeploymentService) {
	dataType := models.DataType{Name: "audio"}
	require.NoError(t, db.Create(&dataType).Error)
	model := models.DeviceModel{Name: "AudioMoth", DataTypeID: dataType.ID}
	require.NoError(t, db.Create(&model).Error)
	device := models.Device{DeviceID: "AM-501", ModelID: model.ID, OwnerID: &owner.ID}
	require.NoError(t, db.Create(&device).Error)
	site := models.Site{Name: "Кордон"}
	require.NoError(t, db.Create(&site).Error)

	deployments := services.NewDeploymentService(db, nil, "Global")
	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: mustParse("2024-01-10T00:00:00Z"),
		DeploymentEnd:   func() *time.Time { v := mustParse("2024-01-20T00:00:00Z"); return &v }(),
		OwnerID:         &owner.ID,
	}
	require.NoError(t, deployments.Create(&deployment, nil))
	return &deployment, deployments
}

func setupDeploymentRouter(db *gorm.DB, deployments *services.DeploymentService, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(asUser(user))

	deploymentAPI := NewDeploymentAPI(db, deployments, services.NewPermissionService(db), nil)
	api := router.Group("/api")
	{
		api.GET("/deployments", deploymentAPI.GetDeployments)
		api.GET("/deployments/:id", deploymentAPI.GetDeployment)
		api.PUT("/deployments/:id", deploymentAPI.UpdateDeployment)
		api.DELETE("/deployments/:id", deploymentAPI.DeleteDeployment)
		api.POST("/deployments/:id/check-dates", deploymentAPI.CheckDates)
	}
	return router
}

// Недоступное для чтения развертывание отдает 404, не раскрывая существование
func TestGetDeploymentInvisibleReturns404(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	outsider := createTestUser(t, db, "outsider")
	deployment, deployments := seedTestDeployment(t, db, owner)

	router := setupDeploymentRouter(db, deployments, outsider)
	req, _ := http.NewRequest("GET", "/api/deployments/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Владелец то же развертывание видит
	router = setupDeploymentRouter(db, deployments, owner)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, deployment.DeploymentDeviceID, data["deployment_device_ID"])
}

// Видимое, но не управляемое развертывание при записи отдает 403
func TestUpdateDeploymentWithoutManageReturns403(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	viewer := createTestUser(t, db, "viewer")
	deployment, deployments := seedTestDeployment(t, db, owner)
	require.NoError(t, db.Model(deployment).Association("Viewers").Append(viewer))

	body, _ := json.Marshal(DeploymentRequest{
		SiteID:          deployment.SiteID,
		DeploymentStart: deployment.DeploymentStart,
	})

	router := setupDeploymentRouter(db, deployments, viewer)
	req, _ := http.NewRequest("PUT", "/api/deployments/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/deployments/1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeploymentListFiltersInvisible(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	outsider := createTestUser(t, db, "outsider")
	_, deployments := seedTestDeployment(t, db, owner)

	router := setupDeploymentRouter(db, deployments, outsider)
	req, _ := http.NewRequest("GET", "/api/deployments", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data  []models.Deployment `json:"data"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Empty(t, response.Data)
	assert.Equal(t, int64(0), response.Total)
}

func TestCheckDatesEndpoint(t *testing.T) {
	db := newAPITestDB(t)
	owner := createTestUser(t, db, "owner")
	_, deployments := seedTestDeployment(t, db, owner)

	body, _ := json.Marshal(CheckDatesRequest{Dates: []time.Time{
		mustParse("2024-01-09T00:00:00Z"),
		mustParse("2024-01-10T00:00:00Z"),
		mustParse("2024-01-20T00:00:00Z"),
		mustParse("2024-01-21T00:00:00Z"),
	}})

	router := setupDeploymentRouter(db, deployments, owner)
	req, _ := http.NewRequest("POST", "/api/deployments/1/check-dates", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []bool{false, true, true, false}, response.Data)
}
