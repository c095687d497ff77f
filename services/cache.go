package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"backend_sensor/database"
	"backend_sensor/models"
)

// CacheService предоставляет методы для кэширования
type CacheService struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewCacheService создает новый экземпляр CacheService
func NewCacheService(redisClient *redis.Client, logger *log.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// Get получает значение из кэша
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	if cs.redis == nil {
		return "", fmt.Errorf("Redis не подключен")
	}

	val, err := cs.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("ключ не найден")
	}
	return val, err
}

// Set сохраняет значение в кэш
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if cs.redis == nil {
		if cs.logger != nil {
			cs.logger.Printf("Redis не подключен, пропускаем кэширование для ключа: %s", key)
		}
		return nil // Не возвращаем ошибку, просто пропускаем кэширование
	}

	return cs.redis.Set(ctx, key, value, ttl).Err()
}

// Del удаляет значение из кэша
func (cs *CacheService) Del(ctx context.Context, key string) error {
	if cs.redis == nil {
		return nil
	}

	return cs.redis.Del(ctx, key).Err()
}

// Константы для TTL кэша
const (
	CacheTTLShort  = 5 * time.Minute  // Для часто изменяемых данных
	CacheTTLMedium = 15 * time.Minute // Для умеренно изменяемых данных
	CacheTTLLong   = 1 * time.Hour    // Для редко изменяемых данных
	CacheTTLStatic = 24 * time.Hour   // Для статических данных
)

// CacheFolderSize кэширует размер каталога файлов развертывания
func (cs *CacheService) CacheFolderSize(deploymentID uint, unit string, size decimal.Decimal) error {
	key := database.GenerateDeploymentCacheKey(deploymentID, "folder_size:"+unit)
	return database.CacheSetJSON(key, size, CacheTTLShort)
}

// GetCachedFolderSize получает размер каталога из кэша
func (cs *CacheService) GetCachedFolderSize(deploymentID uint, unit string) (decimal.Decimal, error) {
	key := database.GenerateDeploymentCacheKey(deploymentID, "folder_size:"+unit)
	var size decimal.Decimal
	if err := database.CacheGetJSON(key, &size); err != nil {
		return decimal.Zero, err
	}
	return size, nil
}

// CacheLastUpload кэширует время последней загрузки развертывания
func (cs *CacheService) CacheLastUpload(deploymentID uint, last *time.Time) error {
	key := database.GenerateDeploymentCacheKey(deploymentID, "last_upload")
	return database.CacheSetJSON(key, last, CacheTTLShort)
}

// GetCachedLastUpload получает время последней загрузки из кэша
func (cs *CacheService) GetCachedLastUpload(deploymentID uint) (*time.Time, error) {
	key := database.GenerateDeploymentCacheKey(deploymentID, "last_upload")
	var last *time.Time
	if err := database.CacheGetJSON(key, &last); err != nil {
		return nil, err
	}
	return last, nil
}

// InvalidateDeploymentCache инвалидирует кэш метрик развертывания.
// Вызывается после приема или удаления файлов.
func (cs *CacheService) InvalidateDeploymentCache(deploymentID uint) error {
	pattern := fmt.Sprintf("deployment:%d:*", deploymentID)
	return cs.invalidateByPattern(pattern)
}

// CacheDevice кэширует устройство
func (cs *CacheService) CacheDevice(device *models.Device) error {
	key := database.GenerateDeviceCacheKey(device.ID, "data")
	return database.CacheSetJSON(key, device, CacheTTLMedium)
}

// GetCachedDevice получает устройство из кэша
func (cs *CacheService) GetCachedDevice(deviceID uint) (*models.Device, error) {
	key := database.GenerateDeviceCacheKey(deviceID, "data")
	var device models.Device
	if err := database.CacheGetJSON(key, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// InvalidateDeviceCache инвалидирует кэш устройства
func (cs *CacheService) InvalidateDeviceCache(deviceID uint) error {
	key := database.GenerateDeviceCacheKey(deviceID, "data")
	return database.CacheDel(key)
}

// CacheUser кэширует пользователя
func (cs *CacheService) CacheUser(user *models.User) error {
	key := database.GenerateUserCacheKey(user.ID, "data")
	return database.CacheSetJSON(key, user, CacheTTLMedium)
}

// GetCachedUser получает пользователя из кэша
func (cs *CacheService) GetCachedUser(userID uint) (*models.User, error) {
	key := database.GenerateUserCacheKey(userID, "data")
	var user models.User
	if err := database.CacheGetJSON(key, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// InvalidateUserCache инвалидирует кэш пользователя
func (cs *CacheService) InvalidateUserCache(userID uint) error {
	key := database.GenerateUserCacheKey(userID, "data")
	return database.CacheDel(key)
}

// CacheStats кэширует агрегированную статистику
func (cs *CacheService) CacheStats(statsType string, data interface{}) error {
	key := database.GenerateCacheKey("stats", statsType)
	return database.CacheSetJSON(key, data, CacheTTLShort)
}

// GetCachedStats получает статистику из кэша
func (cs *CacheService) GetCachedStats(statsType string, dest interface{}) error {
	key := database.GenerateCacheKey("stats", statsType)
	return database.CacheGetJSON(key, dest)
}

// invalidateByPattern инвалидирует кэш по паттерну
func (cs *CacheService) invalidateByPattern(pattern string) error {
	redisClient := database.GetRedis()
	if redisClient == nil {
		return nil // Redis не подключен
	}

	keys, err := redisClient.Keys(database.Ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return redisClient.Del(database.Ctx, keys...).Err()
	}

	return nil
}

// GetCacheStats возвращает статистику использования кэша
func (cs *CacheService) GetCacheStats() (map[string]interface{}, error) {
	redisClient := database.GetRedis()
	if redisClient == nil {
		return map[string]interface{}{
			"status": "disabled",
		}, nil
	}

	info, err := redisClient.Info(database.Ctx, "memory").Result()
	if err != nil {
		return nil, err
	}

	keyCount, err := redisClient.DBSize(database.Ctx).Result()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":    "enabled",
		"key_count": keyCount,
		"memory":    info,
	}, nil
}
