package main

import (
	"log"
	"time"

	"backend_sensor/api"
	"backend_sensor/config"
	"backend_sensor/database"
	"backend_sensor/middleware"
	"backend_sensor/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// initDB инициализирует подключение к базе данных
func initDB(cfg *config.Config) {
	log.Println("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(); err != nil {
		log.Fatal("❌ Ошибка при создании базы данных:", err)
	}

	// Подключаемся к базе данных
	if err := database.ConnectDatabase(); err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	// Создаем индексы производительности
	if err := database.CreatePerformanceIndexes(database.DB); err != nil {
		log.Printf("⚠️  Не все индексы удалось создать: %v", err)
	}

	// Глобальный проект должен существовать до первого развертывания
	if err := database.SeedGlobalProject(database.DB, cfg.App.GlobalProjectName); err != nil {
		log.Fatal("❌ Ошибка при создании глобального проекта:", err)
	}

	log.Println("✅ База данных успешно инициализирована")
}

func main() {
	// Загружаем конфигурацию (включая .env файл)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}
	cfg.LogConfig()

	// Инициализируем базу данных
	initDB(cfg)
	db := database.DB

	// Redis не критичен: без него кэш и rate limiting отключаются
	if err := database.InitRedis(); err != nil {
		log.Printf("⚠️  Redis недоступен, кэширование отключено: %v", err)
	}

	// Telegram клиент для уведомлений (опционально)
	var telegramClient *services.TelegramClient
	if cfg.External.TelegramBotToken != "" {
		telegramClient, err = services.NewTelegramClient(cfg.External.TelegramBotToken)
		if err != nil {
			log.Printf("⚠️  Telegram клиент не инициализирован: %v", err)
		} else {
			log.Println("✅ Telegram клиент подключен")
		}
	}

	// Сервисы
	notificationService := services.NewNotificationService(db, telegramClient, &cfg.External.SMTP)
	deploymentService := services.NewDeploymentService(db, notificationService, cfg.App.GlobalProjectName)
	deviceService := services.NewDeviceService(db, notificationService)
	permissionService := services.NewPermissionService(db)
	reportService := services.NewReportService(db, deploymentService)

	storage := services.NewLocalFileStorage(cfg.Storage.Root)
	fileService := services.NewFileService(db, storage, &services.FilenameMetadataExtractor{}, deploymentService)
	qualityService := services.NewQualityService(db, &services.BasicAnalyzer{}, storage)

	var cacheService *services.CacheService
	if database.RedisClient != nil {
		cacheService = services.NewCacheService(database.RedisClient, log.Default())
	}

	// Планировщик фоновых проверок качества
	qualityScheduler := services.NewQualityScheduler(qualityService, cfg.Quality.StuckTimeout, cfg.Quality.BatchSize)
	if err := qualityScheduler.Start(cfg.Quality.Schedule); err != nil {
		log.Fatal("❌ Ошибка запуска планировщика проверок качества:", err)
	}
	defer qualityScheduler.Stop()

	// API обработчики
	authAPI := api.NewAuthAPI(db, cfg.JWT.Secret, cfg.JWT.ExpiresIn, cfg.JWT.Issuer)
	deviceAPI := api.NewDeviceAPI(db, deviceService, deploymentService, permissionService, cacheService)
	deploymentAPI := api.NewDeploymentAPI(db, deploymentService, permissionService, cacheService)
	dataFileAPI := api.NewDataFileAPI(db, fileService, qualityService, permissionService, cacheService)
	observationAPI := api.NewObservationAPI(db, permissionService)
	projectAPI := api.NewProjectAPI(db, permissionService, cfg.App.GlobalProjectName)
	siteAPI := api.NewSiteAPI(db)
	reportAPI := api.NewReportAPI(db, reportService)
	notificationAPI := api.NewNotificationAPI(db, notificationService)

	authMiddleware := middleware.NewAuthMiddleware(db, cfg.JWT.Secret)

	// Настраиваем Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	// Базовые роуты
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "success",
			"message":  "pong",
			"database": "connected",
		})
	})

	// Аутентификация
	auth := r.Group("/api/auth")
	auth.POST("/login", middleware.AuthRateLimit(), authAPI.Login)
	auth.GET("/me", authMiddleware.RequireAuth(), authAPI.Me)

	// Защищенные API роуты
	apiGroup := r.Group("/api")
	apiGroup.Use(authMiddleware.RequireAuth())
	apiGroup.Use(middleware.ModerateRateLimit())
	{
		// Устройства
		apiGroup.GET("/devices", deviceAPI.GetDevices)
		apiGroup.GET("/devices/:id", deviceAPI.GetDevice)
		apiGroup.POST("/devices", deviceAPI.CreateDevice)
		apiGroup.PUT("/devices/:id", deviceAPI.UpdateDevice)
		apiGroup.DELETE("/devices/:id", deviceAPI.DeleteDevice)
		apiGroup.GET("/devices/:id/folder-size", deviceAPI.GetDeviceFolderSize)
		apiGroup.GET("/devices/:id/last-upload", deviceAPI.GetDeviceLastUpload)

		// Развертывания
		apiGroup.GET("/deployments", deploymentAPI.GetDeployments)
		apiGroup.GET("/deployments/:id", deploymentAPI.GetDeployment)
		apiGroup.POST("/deployments", deploymentAPI.CreateDeployment)
		apiGroup.PUT("/deployments/:id", deploymentAPI.UpdateDeployment)
		apiGroup.DELETE("/deployments/:id", deploymentAPI.DeleteDeployment)
		apiGroup.POST("/deployments/:id/check-dates", deploymentAPI.CheckDates)
		apiGroup.GET("/deployments/:id/folder-size", deploymentAPI.GetFolderSize)
		apiGroup.GET("/deployments/:id/last-upload", deploymentAPI.GetLastUpload)

		// Файлы данных
		apiGroup.GET("/data-files", dataFileAPI.GetDataFiles)
		apiGroup.GET("/data-files/:id", dataFileAPI.GetDataFile)
		apiGroup.GET("/data-files/:id/download", dataFileAPI.DownloadDataFile)
		apiGroup.POST("/data-files/upload", middleware.StrictRateLimit(), dataFileAPI.UploadDataFiles)
		apiGroup.DELETE("/data-files/:id", dataFileAPI.DeleteDataFile)
		apiGroup.POST("/data-files/:id/favourite", dataFileAPI.Favourite)
		apiGroup.DELETE("/data-files/:id/favourite", dataFileAPI.Unfavourite)
		apiGroup.POST("/data-files/:id/check-quality", dataFileAPI.CheckQuality)
		apiGroup.GET("/data-files/:id/quality-status", dataFileAPI.QualityStatus)

		// Наблюдения
		apiGroup.GET("/observations", observationAPI.GetObservations)
		apiGroup.GET("/observations/:id", observationAPI.GetObservation)
		apiGroup.POST("/observations", observationAPI.CreateObservation)
		apiGroup.PUT("/observations/:id", observationAPI.UpdateObservation)
		apiGroup.DELETE("/observations/:id", observationAPI.DeleteObservation)

		// Проекты
		apiGroup.GET("/projects", projectAPI.GetProjects)
		apiGroup.GET("/projects/:id", projectAPI.GetProject)
		apiGroup.POST("/projects", projectAPI.CreateProject)
		apiGroup.PUT("/projects/:id", projectAPI.UpdateProject)
		apiGroup.DELETE("/projects/:id", projectAPI.DeleteProject)
		apiGroup.PUT("/projects/:id/roles", projectAPI.SetRoles)

		// Места установки и справочники
		apiGroup.GET("/sites", siteAPI.GetSites)
		apiGroup.GET("/sites/:id", siteAPI.GetSite)
		apiGroup.POST("/sites", siteAPI.CreateSite)
		apiGroup.PUT("/sites/:id", siteAPI.UpdateSite)
		apiGroup.DELETE("/sites/:id", siteAPI.DeleteSite)
		apiGroup.GET("/data-types", siteAPI.GetDataTypes)
		apiGroup.POST("/data-types", siteAPI.CreateDataType)
		apiGroup.GET("/device-models", siteAPI.GetDeviceModels)
		apiGroup.POST("/device-models", siteAPI.CreateDeviceModel)

		// Отчеты
		apiGroup.GET("/reports", reportAPI.GetReports)
		apiGroup.GET("/reports/:id", reportAPI.GetReport)
		apiGroup.POST("/reports", reportAPI.CreateReport)
		apiGroup.GET("/reports/:id/download", reportAPI.DownloadReport)
		apiGroup.DELETE("/reports/:id", reportAPI.DeleteReport)

		// Журнал уведомлений
		apiGroup.GET("/notifications", notificationAPI.GetNotificationLogs)
	}

	log.Printf("🚀 Сервер запущен на порту %s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatal("❌ Ошибка запуска сервера:", err)
	}
}
