package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend_sensor/middleware"
	"backend_sensor/models"
)

// CurrentUser извлекает аутентифицированного пользователя из контекста Gin
func CurrentUser(c *gin.Context) *models.User {
	return middleware.GetCurrentUser(c)
}

// Pagination параметры постраничной выборки
type Pagination struct {
	Limit  int
	Offset int
}

// GetPagination разбирает параметры limit/offset из запроса
func GetPagination(c *gin.Context) Pagination {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return Pagination{Limit: limit, Offset: offset}
}

// ParseID разбирает параметр пути :id
func ParseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный ID"})
		return 0, false
	}
	return uint(id), true
}

// RespondError переводит ошибку сервиса в HTTP ответ: ошибки валидации
// (models.FieldErrors) отдаются как 400 с картой поле -> сообщение,
// остальные — как 500
func RespondError(c *gin.Context, err error) {
	if ferr, ok := err.(models.FieldErrors); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": ferr})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
