package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_sensor/models"
)

func TestDeviceCreateTypeConsistency(t *testing.T) {
	db := newTestDB(t)
	service := NewDeviceService(db, nil)

	audio := models.DataType{Name: "audio"}
	require.NoError(t, db.Create(&audio).Error)
	image := models.DataType{Name: "image"}
	require.NoError(t, db.Create(&image).Error)

	model := models.DeviceModel{Name: "AudioMoth", DataTypeID: audio.ID}
	require.NoError(t, db.Create(&model).Error)

	// Явный тип, совпадающий с типом модели, допустим
	ok := models.Device{DeviceID: "AM-401", ModelID: model.ID, DataTypeID: &audio.ID, BatteryLevel: 100}
	require.NoError(t, service.Create(&ok))

	// Явный тип, противоречащий модели, отклоняется
	bad := models.Device{DeviceID: "AM-402", ModelID: model.ID, DataTypeID: &image.ID, BatteryLevel: 100}
	err := service.Create(&bad)
	require.Error(t, err)
	ferr, isFieldErr := err.(models.FieldErrors)
	require.True(t, isFieldErr)
	assert.Contains(t, ferr["type"], "AM-402")
	assert.Contains(t, ferr["type"], "image")
}

func TestDeviceBatteryValidation(t *testing.T) {
	db := newTestDB(t)
	service := NewDeviceService(db, nil)

	audio := models.DataType{Name: "audio"}
	require.NoError(t, db.Create(&audio).Error)
	model := models.DeviceModel{Name: "AudioMoth", DataTypeID: audio.ID}
	require.NoError(t, db.Create(&model).Error)

	device := models.Device{DeviceID: "AM-403", ModelID: model.ID, BatteryLevel: 150}
	err := service.Create(&device)
	require.Error(t, err)
	ferr, ok := err.(models.FieldErrors)
	require.True(t, ok)
	assert.Contains(t, ferr, "battery_level")
}

func TestDeviceLowBatteryStatusTransition(t *testing.T) {
	db := newTestDB(t)
	service := NewDeviceService(db, nil)

	audio := models.DataType{Name: "audio"}
	require.NoError(t, db.Create(&audio).Error)
	model := models.DeviceModel{Name: "AudioMoth", DataTypeID: audio.ID}
	require.NoError(t, db.Create(&model).Error)

	device := models.Device{
		DeviceID:     "AM-404",
		ModelID:      model.ID,
		DeviceStatus: models.DeviceStatusActive,
		BatteryLevel: 90,
	}
	require.NoError(t, service.Create(&device))

	// Падение заряда ниже порога переводит активное устройство в low_battery
	device.BatteryLevel = LowBatteryThreshold - 1
	require.NoError(t, service.Update(&device))
	assert.Equal(t, models.DeviceStatusLowBattery, device.DeviceStatus)

	var stored models.Device
	require.NoError(t, db.First(&stored, device.ID).Error)
	assert.Equal(t, models.DeviceStatusLowBattery, stored.DeviceStatus)

	// Устройство на обслуживании статус не меняет
	other := models.Device{
		DeviceID:     "AM-405",
		ModelID:      model.ID,
		DeviceStatus: models.DeviceStatusMaintenance,
		BatteryLevel: 90,
	}
	require.NoError(t, service.Create(&other))
	other.BatteryLevel = 5
	require.NoError(t, service.Update(&other))
	assert.Equal(t, models.DeviceStatusMaintenance, other.DeviceStatus)
}

func TestEffectiveDataType(t *testing.T) {
	audio := models.DataType{Name: "audio"}
	audio.ID = 1
	model := models.DeviceModel{Name: "AudioMoth", DataTypeID: audio.ID}

	// Без явного типа наследуется тип модели
	device := models.Device{Model: &model}
	require.NotNil(t, device.EffectiveDataTypeID())
	assert.Equal(t, audio.ID, *device.EffectiveDataTypeID())

	// Явный тип имеет приоритет
	explicit := uint(7)
	device.DataTypeID = &explicit
	assert.Equal(t, explicit, *device.EffectiveDataTypeID())
}
