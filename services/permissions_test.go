package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_sensor/models"
)

// permFixture — пользователи во всех ролях вокруг одного развертывания
type permFixture struct {
	db *gorm.DB

	owner     models.User
	manager   models.User
	annotator models.User
	viewer    models.User
	outsider  models.User
	admin     models.User

	deployment models.Deployment
	file       models.DataFile
}

func newPermFixture(t *testing.T) *permFixture {
	db := newTestDB(t)
	f := &permFixture{db: db}

	users := []*models.User{&f.owner, &f.manager, &f.annotator, &f.viewer, &f.outsider, &f.admin}
	names := []string{"owner", "manager", "annotator", "viewer", "outsider", "admin"}
	for i, u := range users {
		u.Username = names[i]
		u.Email = names[i] + "@example.org"
		u.Password = "x"
		u.IsActive = true
		require.NoError(t, db.Create(u).Error)
	}
	f.admin.IsSuperuser = true
	require.NoError(t, db.Save(&f.admin).Error)

	device, site, _ := seedDevice(t, db, "AM-301")
	deployments := NewDeploymentService(db, nil, "Global")
	f.deployment = models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
		OwnerID:         &f.owner.ID,
	}
	require.NoError(t, deployments.Create(&f.deployment, nil))

	// Роли назначаются напрямую на развертывании
	require.NoError(t, db.Model(&f.deployment).Association("Managers").Append(&f.manager))
	require.NoError(t, db.Model(&f.deployment).Association("Annotators").Append(&f.annotator))
	require.NoError(t, db.Model(&f.deployment).Association("Viewers").Append(&f.viewer))

	f.file = models.DataFile{
		FileName:     "rec",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  dt("2024-01-05T00:00:00Z"),
		DeploymentID: f.deployment.ID,
	}
	require.NoError(t, db.Create(&f.file).Error)

	return f
}

func TestDeploymentAccessGrid(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	grid := []struct {
		name   string
		user   *models.User
		view   bool
		change bool
		manage bool
	}{
		{"владелец", &f.owner, true, true, true},
		{"менеджер", &f.manager, true, true, true},
		{"аннотатор", &f.annotator, true, true, false},
		{"наблюдатель", &f.viewer, true, false, false},
		{"посторонний", &f.outsider, false, false, false},
		{"суперпользователь", &f.admin, true, true, true},
	}

	for _, tt := range grid {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.view, service.CheckDeployment(tt.user, f.deployment.ID, "view"), "view")
			assert.Equal(t, tt.change, service.CheckDeployment(tt.user, f.deployment.ID, "change"), "change")
			assert.Equal(t, tt.manage, service.CheckDeployment(tt.user, f.deployment.ID, "manage"), "manage")
		})
	}
}

// Проверка одного экземпляра обязана совпадать с попаданием в выборку списка
func TestCheckMatchesQuery(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	users := []*models.User{&f.owner, &f.manager, &f.annotator, &f.viewer, &f.outsider, &f.admin}
	for _, user := range users {
		for _, access := range []string{"view", "change", "manage"} {
			var ids []uint
			require.NoError(t, service.DeploymentQuery(user, access).Pluck("deployments.id", &ids).Error)

			inQuery := false
			for _, id := range ids {
				if id == f.deployment.ID {
					inQuery = true
				}
			}
			assert.Equal(t, inQuery, service.CheckDeployment(user, f.deployment.ID, access),
				"расхождение check/query: user=%s access=%s", user.Username, access)

			var fileIDs []uint
			require.NoError(t, service.DataFileQuery(user, access).Pluck("data_files.id", &fileIDs).Error)
			inFileQuery := false
			for _, id := range fileIDs {
				if id == f.file.ID {
					inFileQuery = true
				}
			}
			assert.Equal(t, inFileQuery, service.CheckDataFile(user, f.file.ID, access),
				"расхождение check/query для файлов: user=%s access=%s", user.Username, access)
		}
	}
}

func TestProjectRolesGrantDeploymentAccess(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	projectViewer := models.User{Username: "pviewer", Email: "pviewer@example.org", Password: "x", IsActive: true}
	require.NoError(t, f.db.Create(&projectViewer).Error)

	// Роль на проекте развертывания распространяется на развертывание
	project := models.Project{Name: "Совы"}
	require.NoError(t, f.db.Create(&project).Error)
	require.NoError(t, f.db.Model(&project).Association("Viewers").Append(&projectViewer))
	require.NoError(t, f.db.Model(&f.deployment).Association("Projects").Append(&project))

	assert.True(t, service.CheckDeployment(&projectViewer, f.deployment.ID, "view"))
	assert.False(t, service.CheckDeployment(&projectViewer, f.deployment.ID, "change"))
}

func TestDeviceRolesGrantDeploymentAccess(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	deviceManager := models.User{Username: "dmanager", Email: "dmanager@example.org", Password: "x", IsActive: true}
	require.NoError(t, f.db.Create(&deviceManager).Error)

	var device models.Device
	require.NoError(t, f.db.First(&device, *f.deployment.DeviceID).Error)
	require.NoError(t, f.db.Model(&device).Association("Managers").Append(&deviceManager))

	assert.True(t, service.CheckDeployment(&deviceManager, f.deployment.ID, "manage"))
	assert.True(t, service.CheckDevice(&deviceManager, device.ID, "manage"))
}

func TestInvisibleDeploymentHiddenFromList(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	var deployments []models.Deployment
	require.NoError(t, service.DeploymentQuery(&f.outsider, "view").Find(&deployments).Error)
	assert.Empty(t, deployments)

	require.NoError(t, service.DeploymentQuery(&f.viewer, "view").Find(&deployments).Error)
	require.Len(t, deployments, 1)
	assert.Equal(t, f.deployment.ID, deployments[0].ID)
}

func TestCheckAddObservationVeto(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	// Второе развертывание, недоступное аннотатору первого
	other := seedDeployment(t, f.db, "AM-302")
	foreignFile := models.DataFile{
		FileName:     "foreign",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  dt("2024-01-15T00:00:00Z"),
		DeploymentID: other.ID,
	}
	require.NoError(t, f.db.Create(&foreignFile).Error)

	// Доступный набор проходит
	assert.True(t, service.CheckAddObservation(&f.annotator, []uint{f.file.ID}))

	// Один недоступный файл накладывает вето на весь набор
	assert.False(t, service.CheckAddObservation(&f.annotator, []uint{f.file.ID, foreignFile.ID}))

	// Пустой набор не дает права
	assert.False(t, service.CheckAddObservation(&f.annotator, nil))

	// Наблюдателю уровень change недоступен даже для своего файла
	assert.False(t, service.CheckAddObservation(&f.viewer, []uint{f.file.ID}))

	// Суперпользователь проходит всегда
	assert.True(t, service.CheckAddObservation(&f.admin, []uint{f.file.ID, foreignFile.ID}))
}

func TestObservationViewAndChange(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	observation := models.Observation{
		Label:     "Strix aluco",
		TaxonCode: "strialu",
		OwnerID:   f.annotator.ID,
		DataFiles: []models.DataFile{f.file},
	}
	require.NoError(t, f.db.Create(&observation).Error)

	// Видимость через видимость хотя бы одного файла
	assert.True(t, service.CheckViewObservation(&f.viewer, observation.ID))
	assert.False(t, service.CheckViewObservation(&f.outsider, observation.ID))

	// Автор меняет собственное наблюдение
	assert.True(t, service.CheckChangeObservation(&f.annotator, observation.ID))
	// Менеджер области меняет чужие наблюдения
	assert.True(t, service.CheckChangeObservation(&f.manager, observation.ID))
	// Наблюдатель — нет
	assert.False(t, service.CheckChangeObservation(&f.viewer, observation.ID))
	assert.False(t, service.CheckDeleteObservation(&f.viewer, observation.ID))
}

func TestObservationChangeVetoAcrossDeployments(t *testing.T) {
	f := newPermFixture(t)
	service := NewPermissionService(f.db)

	// Наблюдение охватывает файл из чужого развертывания
	other := seedDeployment(t, f.db, "AM-303")
	foreignFile := models.DataFile{
		FileName:     "foreign",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  dt("2024-01-15T00:00:00Z"),
		DeploymentID: other.ID,
	}
	require.NoError(t, f.db.Create(&foreignFile).Error)

	observation := models.Observation{
		Label:     "Strix uralensis",
		OwnerID:   f.outsider.ID,
		DataFiles: []models.DataFile{f.file, foreignFile},
	}
	require.NoError(t, f.db.Create(&observation).Error)

	// Менеджер первого развертывания не управляет вторым файлом:
	// изменение запрещено, хотя один из файлов полностью в его области
	assert.False(t, service.CheckChangeObservation(&f.manager, observation.ID))

	// Но наблюдение ему видно — один видимый файл достаточен для чтения
	assert.True(t, service.CheckViewObservation(&f.manager, observation.ID))
}
