package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_sensor/models"
	"backend_sensor/services"
)

// ProjectAPI представляет API для работы с проектами
type ProjectAPI struct {
	DB          *gorm.DB
	Permissions *services.PermissionService

	// GlobalName — название глобального проекта. Он присоединен к каждому
	// развертыванию, его нельзя переименовать или удалить.
	GlobalName string
}

// NewProjectAPI создает новый экземпляр ProjectAPI
func NewProjectAPI(db *gorm.DB, permissions *services.PermissionService, globalName string) *ProjectAPI {
	return &ProjectAPI{DB: db, Permissions: permissions, GlobalName: globalName}
}

// ProjectRequest тело запроса на создание/обновление проекта
type ProjectRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	Organization string `json:"organization" binding:"max=100"`
}

// GetProjects возвращает список проектов, видимых пользователю
func (api *ProjectAPI) GetProjects(c *gin.Context) {
	user := CurrentUser(c)
	page := GetPagination(c)

	query := api.Permissions.ProjectQuery(user, "view")

	if name := c.Query("name"); name != "" {
		query = query.Where("projects.name ILIKE ?", "%"+name+"%")
	}

	var total int64
	query.Count(&total)

	var projects []models.Project
	if err := query.Order("projects.name ASC").
		Limit(page.Limit).Offset(page.Offset).Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении проектов"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": projects, "total": total})
}

// GetProject возвращает один проект. Вне видимого набора — 404.
func (api *ProjectAPI) GetProject(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var project models.Project
	err := api.Permissions.ProjectQuery(user, "view").
		Preload("Owner").Preload("Managers").Preload("Annotators").Preload("Viewers").
		Where("projects.id = ?", id).First(&project).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Проект не найден"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": project})
}

// CreateProject создает новый проект
func (api *ProjectAPI) CreateProject(c *gin.Context) {
	user := CurrentUser(c)

	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	project := models.Project{
		Name:         req.Name,
		Organization: req.Organization,
		OwnerID:      &user.ID,
	}

	if err := api.DB.Create(&project).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"name": "проект с таким названием уже существует"}})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Проект успешно создан",
		"data":    project,
	})
}

// UpdateProject обновляет проект
func (api *ProjectAPI) UpdateProject(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var project models.Project
	if err := api.DB.First(&project, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Проект не найден"})
		return
	}

	if !api.Permissions.CheckProject(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на изменение проекта"})
		return
	}

	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	if project.Name == api.GlobalName && req.Name != api.GlobalName {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"name": "глобальный проект нельзя переименовать"}})
		return
	}

	project.Name = req.Name
	project.Organization = req.Organization

	if err := api.DB.Save(&project).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"name": "проект с таким названием уже существует"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Проект успешно обновлен",
		"data":    project,
	})
}

// DeleteProject удаляет проект. Глобальный проект удалить нельзя.
func (api *ProjectAPI) DeleteProject(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var project models.Project
	if err := api.DB.First(&project, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Проект не найден"})
		return
	}

	if !api.Permissions.CheckProject(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на удаление проекта"})
		return
	}

	if project.Name == api.GlobalName {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"name": "глобальный проект нельзя удалить"}})
		return
	}

	err := api.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM deployment_projects WHERE project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении проекта"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Проект успешно удален"})
}

// RoleRequest тело запроса на назначение ролей проекта
type RoleRequest struct {
	ManagerIDs   []uint `json:"manager_ids"`
	AnnotatorIDs []uint `json:"annotator_ids"`
	ViewerIDs    []uint `json:"viewer_ids"`
}

// SetRoles заменяет списки менеджеров, аннотаторов и наблюдателей проекта
func (api *ProjectAPI) SetRoles(c *gin.Context) {
	user := CurrentUser(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var project models.Project
	if err := api.DB.First(&project, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Проект не найден"})
		return
	}

	if !api.Permissions.CheckProject(user, id, "manage") {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет прав на управление ролями проекта"})
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	err := api.DB.Transaction(func(tx *gorm.DB) error {
		var managers, annotators, viewers []models.User
		if len(req.ManagerIDs) > 0 {
			if err := tx.Find(&managers, req.ManagerIDs).Error; err != nil {
				return err
			}
		}
		if len(req.AnnotatorIDs) > 0 {
			if err := tx.Find(&annotators, req.AnnotatorIDs).Error; err != nil {
				return err
			}
		}
		if len(req.ViewerIDs) > 0 {
			if err := tx.Find(&viewers, req.ViewerIDs).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&project).Association("Managers").Replace(managers); err != nil {
			return err
		}
		if err := tx.Model(&project).Association("Annotators").Replace(annotators); err != nil {
			return err
		}
		return tx.Model(&project).Association("Viewers").Replace(viewers)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении ролей проекта"})
		return
	}

	api.DB.Preload("Managers").Preload("Annotators").Preload("Viewers").First(&project, id)

	c.JSON(http.StatusOK, gin.H{
		"message": "Роли проекта успешно обновлены",
		"data":    project,
	})
}
