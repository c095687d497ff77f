package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/services"
)

// NotificationAPI представляет API журнала уведомлений
type NotificationAPI struct {
	DB            *gorm.DB
	Notifications *services.NotificationService
}

// NewNotificationAPI создает новый экземпляр NotificationAPI
func NewNotificationAPI(db *gorm.DB, notifications *services.NotificationService) *NotificationAPI {
	return &NotificationAPI{DB: db, Notifications: notifications}
}

// GetNotificationLogs возвращает журнал отправленных уведомлений.
// Доступно только суперпользователю.
func (api *NotificationAPI) GetNotificationLogs(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil || !user.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Журнал уведомлений доступен только администратору"})
		return
	}

	page := GetPagination(c)
	filters := map[string]interface{}{
		"type":    c.Query("type"),
		"channel": c.Query("channel"),
		"status":  c.Query("status"),
	}

	logs, total, err := api.Notifications.GetNotificationLogs(page.Limit, page.Offset, filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении журнала уведомлений"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs, "total": total})
}
