package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"backend_sensor/middleware"
	"backend_sensor/models"
)

// AuthAPI представляет API аутентификации
type AuthAPI struct {
	DB        *gorm.DB
	Secret    string
	ExpiresIn time.Duration
	Issuer    string
}

// NewAuthAPI создает новый экземпляр AuthAPI
func NewAuthAPI(db *gorm.DB, secret string, expiresIn time.Duration, issuer string) *AuthAPI {
	return &AuthAPI{DB: db, Secret: secret, ExpiresIn: expiresIn, Issuer: issuer}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=3,max=128"`
}

// Login аутентифицирует пользователя и выдает JWT токен
func (api *AuthAPI) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Invalid username or password"})
		return
	}

	var user models.User
	if err := api.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Invalid credentials"})
		return
	}

	if !user.IsActive || !user.CheckPassword(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Invalid credentials"})
		return
	}

	token, err := api.issueToken(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"token": token,
			"user":  user,
		},
	})
}

// issueToken подписывает JWT токен для пользователя
func (api *AuthAPI) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := middleware.Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    api.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(api.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(api.Secret))
}

// Me возвращает текущего аутентифицированного пользователя
func (api *AuthAPI) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": user})
}
