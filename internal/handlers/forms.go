package handlers

import (
	"strings"
	"time"

	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FormsHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewFormsHandler(db *gorm.DB, audit *services.AuditService) *FormsHandler {
	return &FormsHandler{DB: db, Audit: audit}
}

type formRequest struct {
	Name            string                   `json:"name" validate:"required,max=255"`
	Description     string                   `json:"description"`
	BackgroundColor string                   `json:"backgroundColor" validate:"max=32"`
	SheetName       string                   `json:"sheetName" validate:"max=255"`
	Fields          []models.FieldDefinition `json:"fields"`
	AllowedUsers    []string                 `json:"allowedUsers"`
	ImageURL        *string                  `json:"imageURL"`
	IsActive        *bool                    `json:"isActive"`
}

// List returns every form to admins. Everyone else sees the active forms they are allowed to fill.
func (h *FormsHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	query := h.DB.Model(&models.Form{}).Order("name ASC")
	if !user.IsAdmin() {
		query = query.Where("is_active = ?", true)
	}
	query = utils.ApplySearch(query, c.Query("search"), "name", "description")

	var forms []models.Form
	if err := query.Find(&forms).Error; err != nil {
		return internalError(c, "forms_list_failed", err, "failed listing forms")
	}

	visible := make([]models.Form, 0, len(forms))
	for i := range forms {
		if forms[i].AllowsUser(user) {
			visible = append(visible, forms[i])
		}
	}
	return utils.Success(c, fiber.StatusOK, visible)
}

func (h *FormsHandler) Get(c *fiber.Ctx) error {
	form, err := h.loadAccessibleForm(c)
	if err != nil || form == nil {
		return err
	}
	return utils.Success(c, fiber.StatusOK, form)
}

// InitialValues returns the starting value of every input field of the form.
func (h *FormsHandler) InitialValues(c *fiber.Ctx) error {
	form, err := h.loadAccessibleForm(c)
	if err != nil || form == nil {
		return err
	}
	return utils.Success(c, fiber.StatusOK, services.InitialValues(form.Fields, time.Now()))
}

func (h *FormsHandler) Create(c *fiber.Ctx) error {
	var req formRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validateRequest(&req); err != nil {
		return validationFailed(c, err)
	}

	if taken, err := h.nameTaken(req.Name, uuid.Nil); err != nil {
		return internalError(c, "form_name_check_failed", err, "failed checking form name")
	} else if taken {
		return utils.Error(c, fiber.StatusConflict, "a form with this name already exists")
	}

	form := models.Form{
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		BackgroundColor: strings.TrimSpace(req.BackgroundColor),
		SheetName:       strings.TrimSpace(req.SheetName),
		Fields:          datatypes.JSONSlice[models.FieldDefinition](req.Fields),
		AllowedUsers:    datatypes.JSONSlice[string](trimmedStrings(req.AllowedUsers)),
		ImageURL:        nonEmpty(req.ImageURL),
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	if user := middleware.GetCurrentUser(c); user != nil {
		form.CreatedByID = &user.ID
	}

	if err := h.DB.Create(&form).Error; err != nil {
		return internalError(c, "form_create_failed", err, "failed creating form")
	}

	recordAudit(c, h.Audit, services.AuditFormCreate, "form", &form.ID, map[string]interface{}{
		"name":   form.Name,
		"fields": len(form.Fields),
	})

	return utils.Success(c, fiber.StatusCreated, form)
}

func (h *FormsHandler) Update(c *fiber.Ctx) error {
	formID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid form id")
	}

	var form models.Form
	if err := h.DB.First(&form, "id = ?", formID).Error; err != nil {
		if isNotFound(err) {
			return utils.Error(c, fiber.StatusNotFound, "form not found")
		}
		return internalError(c, "form_fetch_failed", err, "failed fetching form")
	}

	var req formRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validateRequest(&req); err != nil {
		return validationFailed(c, err)
	}

	if taken, err := h.nameTaken(req.Name, form.ID); err != nil {
		return internalError(c, "form_name_check_failed", err, "failed checking form name")
	} else if taken {
		return utils.Error(c, fiber.StatusConflict, "a form with this name already exists")
	}

	form.Name = req.Name
	form.Description = strings.TrimSpace(req.Description)
	form.BackgroundColor = strings.TrimSpace(req.BackgroundColor)
	form.SheetName = strings.TrimSpace(req.SheetName)
	form.Fields = datatypes.JSONSlice[models.FieldDefinition](req.Fields)
	form.AllowedUsers = datatypes.JSONSlice[string](trimmedStrings(req.AllowedUsers))
	form.ImageURL = nonEmpty(req.ImageURL)
	if req.IsActive != nil {
		form.IsActive = *req.IsActive
	}

	if err := h.DB.Save(&form).Error; err != nil {
		return internalError(c, "form_update_failed", err, "failed updating form")
	}

	recordAudit(c, h.Audit, services.AuditFormUpdate, "form", &form.ID, map[string]interface{}{
		"name":   form.Name,
		"fields": len(form.Fields),
	})

	return utils.Success(c, fiber.StatusOK, form)
}

func (h *FormsHandler) Delete(c *fiber.Ctx) error {
	formID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid form id")
	}

	result := h.DB.Delete(&models.Form{}, "id = ?", formID)
	if result.Error != nil {
		return internalError(c, "form_delete_failed", result.Error, "failed deleting form")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "form not found")
	}

	recordAudit(c, h.Audit, services.AuditFormDelete, "form", &formID, nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "form deleted"})
}

// loadAccessibleForm resolves :id and applies the allowed-users rule. When the returned form is
// nil the error response has already been written and err is the result of writing it.
func (h *FormsHandler) loadAccessibleForm(c *fiber.Ctx) (*models.Form, error) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return nil, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	form, status, err := findForm(h.DB, c.Params("id"), user)
	if err != nil {
		if status == fiber.StatusInternalServerError {
			return nil, internalError(c, "form_fetch_failed", err, "failed fetching form")
		}
		return nil, utils.Error(c, status, err.Error())
	}
	return form, nil
}

func (h *FormsHandler) validateRequest(req *formRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := models.ValidateStruct(req); err != nil {
		return err
	}
	sources, err := activeLookupSources(h.DB)
	if err != nil {
		return err
	}
	return models.ValidateFormFields(req.Fields, sources)
}

func (h *FormsHandler) nameTaken(name string, except uuid.UUID) (bool, error) {
	query := h.DB.Model(&models.Form{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if except != uuid.Nil {
		query = query.Where("id <> ?", except)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// findForm loads a form by id for user. Inactive forms are hidden from everyone but admins.
func findForm(db *gorm.DB, rawID string, user *models.User) (*models.Form, int, error) {
	formID, err := parseUUID(rawID)
	if err != nil {
		return nil, fiber.StatusBadRequest, errInvalidFormID
	}

	var form models.Form
	if err := db.First(&form, "id = ?", formID).Error; err != nil {
		if isNotFound(err) {
			return nil, fiber.StatusNotFound, errFormNotFound
		}
		return nil, fiber.StatusInternalServerError, err
	}
	if !form.IsActive && !user.IsAdmin() {
		return nil, fiber.StatusNotFound, errFormNotFound
	}
	if !form.AllowsUser(user) {
		return nil, fiber.StatusForbidden, errFormForbidden
	}
	return &form, 0, nil
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
