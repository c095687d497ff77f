package services

import (
	"fmt"

	"gorm.io/gorm"

	"backend_sensor/models"
)

// Порог заряда батареи, ниже которого устройство считается разряженным
const LowBatteryThreshold = 20

// DeviceService представляет сервис для работы с устройствами
type DeviceService struct {
	DB                  *gorm.DB
	NotificationService *NotificationService
}

// NewDeviceService создает новый экземпляр DeviceService
func NewDeviceService(db *gorm.DB, notificationService *NotificationService) *DeviceService {
	return &DeviceService{DB: db, NotificationService: notificationService}
}

// Create создает устройство, проверяя согласованность явного типа данных
// с типом модели устройства
func (s *DeviceService) Create(device *models.Device) error {
	if ferr := s.checkType(device); ferr != nil {
		return ferr
	}
	if device.BatteryLevel < 0 || device.BatteryLevel > 100 {
		return models.FieldErrors{"battery_level": "уровень заряда должен быть от 0 до 100"}
	}
	if err := s.DB.Create(device).Error; err != nil {
		return fmt.Errorf("ошибка при создании устройства: %w", err)
	}
	return nil
}

// Update обновляет устройство с повторной проверкой типа. При падении заряда
// ниже порога статус переводится в low_battery и отправляется уведомление.
func (s *DeviceService) Update(device *models.Device) error {
	if ferr := s.checkType(device); ferr != nil {
		return ferr
	}
	if device.BatteryLevel < 0 || device.BatteryLevel > 100 {
		return models.FieldErrors{"battery_level": "уровень заряда должен быть от 0 до 100"}
	}

	var prev models.Device
	if err := s.DB.First(&prev, device.ID).Error; err != nil {
		return fmt.Errorf("устройство не найдено: %w", err)
	}

	if device.BatteryLevel < LowBatteryThreshold && device.DeviceStatus == models.DeviceStatusActive {
		device.DeviceStatus = models.DeviceStatusLowBattery
	}

	if err := s.DB.Save(device).Error; err != nil {
		return fmt.Errorf("ошибка при обновлении устройства: %w", err)
	}

	// Уведомляем один раз, при переходе через порог
	if s.NotificationService != nil &&
		device.BatteryLevel < LowBatteryThreshold && prev.BatteryLevel >= LowBatteryThreshold {
		go s.NotificationService.NotifyLowBattery(device)
	}
	return nil
}

// checkType проверяет, что явный тип устройства совпадает с типом его модели
func (s *DeviceService) checkType(device *models.Device) models.FieldErrors {
	if device.DataTypeID == nil {
		return nil
	}

	var model models.DeviceModel
	if err := s.DB.Preload("DataType").First(&model, device.ModelID).Error; err != nil {
		return models.FieldErrors{"model": "модель устройства не найдена"}
	}

	var explicit models.DataType
	if err := s.DB.First(&explicit, *device.DataTypeID).Error; err != nil {
		return models.FieldErrors{"type": "тип данных не найден"}
	}

	if ok, ferr := models.CheckTypeConsistent(&explicit, model.DataType, device.DeviceID, "type"); !ok {
		return ferr
	}
	return nil
}
