package services

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"backend_sensor/models"
)

func newTestDB(t *testing.T) *gorm.DB {
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

// seedDevice создает тип данных, модель, устройство и место установки
func seedDevice(t *testing.T, db *gorm.DB, deviceID string) (*models.Device, *models.Site, *models.DataType) {
	dataType := models.DataType{Name: "audio"}
	require.NoError(t, db.Where(models.DataType{Name: "audio"}).FirstOrCreate(&dataType).Error)

	model := models.DeviceModel{Name: "AudioMoth", Manufacturer: "OAD", DataTypeID: dataType.ID}
	require.NoError(t, db.Create(&model).Error)

	device := models.Device{DeviceID: deviceID, ModelID: model.ID, DeviceStatus: models.DeviceStatusActive}
	require.NoError(t, db.Create(&device).Error)

	site := models.Site{Name: "Лесной кордон"}
	require.NoError(t, db.Create(&site).Error)

	return &device, &site, &dataType
}

func dt(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func dtPtr(value string) *time.Time {
	parsed := dt(value)
	return &parsed
}

func TestCheckOverlap(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-001")

	// Закрытое развертывание [10 янв, 20 янв)
	existing := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-10T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-01-20T00:00:00Z"),
	}
	require.NoError(t, service.Create(&existing, nil))

	tests := []struct {
		name     string
		start    time.Time
		end      *time.Time
		conflict bool
	}{
		{"Полное пересечение", dt("2024-01-12T00:00:00Z"), dtPtr("2024-01-15T00:00:00Z"), true},
		{"Пересечение по началу", dt("2024-01-05T00:00:00Z"), dtPtr("2024-01-11T00:00:00Z"), true},
		{"Новое начинается в момент окончания старого", dt("2024-01-20T00:00:00Z"), dtPtr("2024-01-25T00:00:00Z"), false},
		{"Новое заканчивается в момент начала старого", dt("2024-01-01T00:00:00Z"), dtPtr("2024-01-10T00:00:00Z"), false},
		{"Открытое развертывание, начало внутри окна", dt("2024-01-15T00:00:00Z"), nil, true},
		{"Открытое развертывание, начало после окна", dt("2024-02-01T00:00:00Z"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts, err := service.CheckOverlap(nil, &device.ID, tt.start, tt.end, 0)
			require.NoError(t, err)
			if tt.conflict {
				assert.NotEmpty(t, conflicts)
				assert.Contains(t, conflicts, existing.DeploymentDeviceID)
			} else {
				assert.Empty(t, conflicts)
			}
		})
	}

	// Исключение самого развертывания при редактировании
	conflicts, err := service.CheckOverlap(nil, &device.ID, dt("2024-01-12T00:00:00Z"), dtPtr("2024-01-15T00:00:00Z"), existing.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	// Развертывание без устройства не конфликтует ни с чем
	conflicts, err = service.CheckOverlap(nil, nil, dt("2024-01-12T00:00:00Z"), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestCreateOverlapRejected(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-002")

	first := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-03-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&first, nil))

	// Открытое развертывание блокирует любое более позднее
	second := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-04-01T00:00:00Z"),
	}
	err := service.Create(&second, nil)
	require.Error(t, err)

	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok, "ожидалась ошибка валидации по полям")
	assert.Contains(t, ferr["deployment_start"], device.DeviceID)
	assert.Contains(t, ferr["deployment_start"], first.DeploymentDeviceID)

	// Отклоненное развертывание не записано
	var count int64
	db.Model(&models.Deployment{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDeploymentIDSequenceNotReused(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-003")

	first := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-02-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&first, nil))
	assert.Equal(t, "AM-003_audio_1", first.DeploymentDeviceID)

	second := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-02-01T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-03-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&second, nil))
	assert.Equal(t, "AM-003_audio_2", second.DeploymentDeviceID)

	// После удаления последнего развертывания номер не освобождается
	require.NoError(t, service.Delete(second.ID))

	third := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-03-01T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-04-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&third, nil))
	assert.Equal(t, "AM-003_audio_3", third.DeploymentDeviceID)
}

func TestDeploymentWithoutDeviceUsesSiteShortName(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")

	site := models.Site{Name: "Заповедник Брянский лес"}
	require.NoError(t, db.Create(&site).Error)

	deployment := models.Deployment{
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, nil))
	assert.Equal(t, site.ShortName+"_data_1", deployment.DeploymentDeviceID)

	// Второе развертывание на том же месте тоже допустимо: без устройства
	// пересечения не проверяются
	another := models.Deployment{
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&another, nil))
	assert.Equal(t, site.ShortName+"_data_2", another.DeploymentDeviceID)
}

func TestGlobalProjectAlwaysAttached(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-004")

	extra := models.Project{Name: "Мониторинг сов"}
	require.NoError(t, db.Create(&extra).Error)

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-02-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, []uint{extra.ID}))

	projectNames := func() []string {
		var loaded models.Deployment
		require.NoError(t, db.Preload("Projects").First(&loaded, deployment.ID).Error)
		names := make([]string, 0, len(loaded.Projects))
		for _, p := range loaded.Projects {
			names = append(names, p.Name)
		}
		return names
	}

	assert.ElementsMatch(t, []string{"Global", "Мониторинг сов"}, projectNames())

	// Попытка очистить набор проектов: глобальный проект остается
	require.NoError(t, service.Update(&deployment, []uint{}))
	assert.Equal(t, []string{"Global"}, projectNames())

	// Замена набора без глобального проекта: он добавляется автоматически
	require.NoError(t, service.Update(&deployment, []uint{extra.ID}))
	assert.ElementsMatch(t, []string{"Global", "Мониторинг сов"}, projectNames())
}

func TestStartBeforeEndValidation(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-005")

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-02-01T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-01-01T00:00:00Z"),
	}
	err := service.Create(&deployment, nil)
	require.Error(t, err)

	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok)
	assert.Contains(t, ferr, "deployment_end")
}

func TestTypeMismatchNamesDevice(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-006")

	imageType := models.DataType{Name: "image"}
	require.NoError(t, db.Create(&imageType).Error)

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DataTypeID:      &imageType.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	err := service.Create(&deployment, nil)
	require.Error(t, err)

	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok)
	assert.Contains(t, ferr["device"], "AM-006")
	assert.Contains(t, ferr["device"], "image")
}

func TestDeploymentInheritsDeviceType(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, dataType := seedDevice(t, db, "AM-007")

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, nil))

	require.NotNil(t, deployment.DataTypeID)
	assert.Equal(t, dataType.ID, *deployment.DataTypeID)
}

func TestCheckDatesInclusiveBounds(t *testing.T) {
	deployment := models.Deployment{
		DeploymentStart: dt("2024-01-10T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-01-20T00:00:00Z"),
	}
	service := &DeploymentService{}

	results := service.CheckDates(&deployment, []time.Time{
		dt("2024-01-09T23:59:59Z"), // до начала
		dt("2024-01-10T00:00:00Z"), // ровно начало
		dt("2024-01-15T12:00:00Z"), // внутри
		dt("2024-01-20T00:00:00Z"), // ровно конец
		dt("2024-01-20T00:00:01Z"), // после конца
	})
	assert.Equal(t, []bool{false, true, true, true, false}, results)

	// Открытое развертывание: верхней границы нет
	open := models.Deployment{DeploymentStart: dt("2024-01-10T00:00:00Z")}
	results = service.CheckDates(&open, []time.Time{
		dt("2024-01-09T00:00:00Z"),
		dt("2030-01-01T00:00:00Z"),
	})
	assert.Equal(t, []bool{false, true}, results)
}

func TestFolderSizeUnits(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-008")

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, nil))

	// 4 MB + 3 MB = 7340032 байт
	for i, size := range []int64{4 * 1024 * 1024, 3 * 1024 * 1024} {
		file := models.DataFile{
			FileName:     "rec_" + string(rune('a'+i)),
			FileFormat:   ".wav",
			FileSize:     size,
			RecordingDT:  dt("2024-01-02T00:00:00Z"),
			UploadDT:     dt("2024-01-03T00:00:00Z"),
			DeploymentID: deployment.ID,
		}
		require.NoError(t, db.Create(&file).Error)
	}

	kb, err := service.DeploymentFolderSize(deployment.ID, "KB")
	require.NoError(t, err)
	assert.True(t, kb.Equal(decimal.NewFromInt(7168)), "KB: %s", kb)

	mb, err := service.DeploymentFolderSize(deployment.ID, "MB")
	require.NoError(t, err)
	assert.True(t, mb.Equal(decimal.NewFromInt(7)), "MB: %s", mb)

	gb, err := service.DeploymentFolderSize(deployment.ID, "GB")
	require.NoError(t, err)
	assert.True(t, gb.Equal(decimal.RequireFromString("0.0068359375")), "GB: %s", gb)

	// Единица по умолчанию — мегабайты
	def, err := service.DeploymentFolderSize(deployment.ID, "")
	require.NoError(t, err)
	assert.True(t, def.Equal(mb))

	// Размер на уровне устройства агрегирует все его развертывания
	deviceSize, err := service.DeviceFolderSize(device.ID, "MB")
	require.NoError(t, err)
	assert.True(t, deviceSize.Equal(decimal.NewFromInt(7)))

	// Неизвестная единица — ошибка валидации
	_, err = service.DeploymentFolderSize(deployment.ID, "TB")
	require.Error(t, err)
	_, ok := err.(models.FieldErrors)
	assert.True(t, ok)
}

func TestLastUpload(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-009")

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, nil))

	// Без файлов времени последней загрузки нет
	last, err := service.DeploymentLastUpload(deployment.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	uploads := []time.Time{dt("2024-01-05T10:00:00Z"), dt("2024-01-07T10:00:00Z")}
	for i, uploadDT := range uploads {
		file := models.DataFile{
			FileName:     "rec_" + string(rune('a'+i)),
			FileFormat:   ".wav",
			FileSize:     1024,
			RecordingDT:  dt("2024-01-02T00:00:00Z"),
			UploadDT:     uploadDT,
			DeploymentID: deployment.ID,
		}
		require.NoError(t, db.Create(&file).Error)
	}

	last, err = service.DeploymentLastUpload(deployment.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(uploads[1]))
}

func TestDeleteBlockedByFiles(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-010")

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, nil))

	file := models.DataFile{
		FileName:     "rec",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  dt("2024-01-02T00:00:00Z"),
		DeploymentID: deployment.ID,
	}
	require.NoError(t, db.Create(&file).Error)

	err := service.Delete(deployment.ID)
	require.Error(t, err)
	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok)
	assert.Contains(t, ferr["files"], deployment.DeploymentDeviceID)

	// После удаления файла развертывание удаляется
	require.NoError(t, db.Unscoped().Delete(&file).Error)
	require.NoError(t, service.Delete(deployment.ID))
}

func TestIsActiveAt(t *testing.T) {
	bounded := models.Deployment{
		DeploymentStart: dt("2024-01-10T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-01-20T00:00:00Z"),
	}
	assert.False(t, bounded.IsActiveAt(dt("2024-01-09T00:00:00Z")))
	assert.True(t, bounded.IsActiveAt(dt("2024-01-10T00:00:00Z")))
	assert.True(t, bounded.IsActiveAt(dt("2024-01-20T00:00:00Z")))
	assert.False(t, bounded.IsActiveAt(dt("2024-01-21T00:00:00Z")))

	open := models.Deployment{DeploymentStart: dt("2024-01-10T00:00:00Z")}
	assert.True(t, open.IsActiveAt(dt("2030-01-01T00:00:00Z")))
}

// Сужение окна при редактировании не должно оставить принятые файлы
// за пределами интервала развертывания
func TestUpdateWindowShrinkBlockedByFiles(t *testing.T) {
	db := newTestDB(t)
	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-011")

	deployment := models.Deployment{
		DeviceID:        &device.ID,
		SiteID:          site.ID,
		DeploymentStart: dt("2024-01-01T00:00:00Z"),
		DeploymentEnd:   dtPtr("2024-01-31T00:00:00Z"),
	}
	require.NoError(t, service.Create(&deployment, nil))

	file := models.DataFile{
		FileName:     "rec",
		FileFormat:   ".wav",
		FileSize:     1024,
		RecordingDT:  dt("2024-01-25T00:00:00Z"),
		DeploymentID: deployment.ID,
	}
	require.NoError(t, db.Create(&file).Error)

	// Перенос конца раньше времени записи файла отклоняется
	deployment.DeploymentEnd = dtPtr("2024-01-10T00:00:00Z")
	err := service.Update(&deployment, nil)
	require.Error(t, err)
	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok)
	assert.Contains(t, ferr["deployment_end"], deployment.DeploymentDeviceID)

	// Окно в БД не изменилось
	var stored models.Deployment
	require.NoError(t, db.First(&stored, deployment.ID).Error)
	require.NotNil(t, stored.DeploymentEnd)
	assert.True(t, stored.DeploymentEnd.Equal(dt("2024-01-31T00:00:00Z")))

	// Перенос начала позже времени записи также отклоняется
	deployment.DeploymentStart = dt("2024-01-26T00:00:00Z")
	deployment.DeploymentEnd = dtPtr("2024-01-31T00:00:00Z")
	err = service.Update(&deployment, nil)
	require.Error(t, err)

	// Окно, охватывающее все файлы, принимается
	deployment.DeploymentStart = dt("2024-01-20T00:00:00Z")
	require.NoError(t, service.Update(&deployment, nil))
}

// Конкурентные создания на одном устройстве получают разные номера:
// счетчик увеличивается атомарно внутри сериализованной транзакции
func TestConcurrentCreateDistinctIDs(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Одна in-memory база на все горутины
	sqlDB.SetMaxOpenConns(1)

	service := NewDeploymentService(db, nil, "Global")
	device, site, _ := seedDevice(t, db, "AM-012")

	windows := []struct{ start, end string }{
		{"2024-01-01T00:00:00Z", "2024-01-10T00:00:00Z"},
		{"2024-02-01T00:00:00Z", "2024-02-10T00:00:00Z"},
	}
	deployments := make([]models.Deployment, len(windows))
	errs := make([]error, len(windows))

	var wg sync.WaitGroup
	for i := range windows {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			deployments[i] = models.Deployment{
				DeviceID:        &device.ID,
				SiteID:          site.ID,
				DeploymentStart: dt(windows[i].start),
				DeploymentEnd:   dtPtr(windows[i].end),
			}
			errs[i] = service.Create(&deployments[i], nil)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, deployments[0].DeploymentDeviceID, deployments[1].DeploymentDeviceID)

	var stored models.Device
	require.NoError(t, db.First(&stored, device.ID).Error)
	assert.Equal(t, uint(2), stored.DeploymentCounter)
}
