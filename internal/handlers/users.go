package handlers

import (
	"strings"

	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewUsersHandler(db *gorm.DB, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Audit: audit}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := utils.ApplySearch(h.DB.Model(&models.User{}), c.Query("search"),
		"username", "email", "first_name", "last_name")
	if role := models.UserRole(strings.TrimSpace(c.Query("role"))); role != "" {
		if !role.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return internalError(c, "users_count_failed", err, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return internalError(c, "users_list_failed", err, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

type createUserRequest struct {
	Username  string          `json:"username" validate:"required,min=3,max=100"`
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required"`
	FirstName string          `json:"firstName" validate:"max=100"`
	LastName  string          `json:"lastName" validate:"max=100"`
	Phone     string          `json:"phone" validate:"max=50"`
	Position  string          `json:"position" validate:"max=100"`
	Role      models.UserRole `json:"role"`
	IsActive  *bool           `json:"isActive"`
}

func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = models.UserRoleUser
	}

	if err := models.ValidateStruct(req); err != nil {
		return validationFailed(c, err)
	}
	if !req.Role.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if conflict, err := userConflict(h.DB, req.Username, req.Email, nil); err != nil {
		return internalError(c, "user_conflict_check_failed", err, "failed checking existing user")
	} else if conflict != "" {
		return utils.Error(c, fiber.StatusConflict, conflict)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Position:     strings.TrimSpace(req.Position),
		Role:         req.Role,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return internalError(c, "user_create_failed", err, "failed creating user")
	}

	recordAudit(c, h.Audit, services.AuditUserCreate, "user", &user.ID, map[string]interface{}{
		"username": user.Username,
		"role":     string(user.Role),
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if isNotFound(err) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return internalError(c, "user_fetch_failed", err, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type updateUserRequest struct {
	Username  *string          `json:"username"`
	Email     *string          `json:"email"`
	FirstName *string          `json:"firstName"`
	LastName  *string          `json:"lastName"`
	Phone     *string          `json:"phone"`
	Position  *string          `json:"position"`
	AvatarURL *string          `json:"avatarURL"`
	Role      *models.UserRole `json:"role"`
	IsActive  *bool            `json:"isActive"`
	Password  *string          `json:"password"`
}

func (h *UsersHandler) Update(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if isNotFound(err) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return internalError(c, "user_fetch_failed", err, "failed fetching user")
	}

	currentUser := middleware.GetCurrentUser(c)
	self := currentUser != nil && currentUser.ID == user.ID

	updates := profileUpdates(req.FirstName, req.LastName, req.Phone, req.Position, req.AvatarURL)

	username, email := user.Username, user.Email
	if req.Username != nil {
		username = strings.TrimSpace(*req.Username)
		if len(username) < 3 {
			return utils.Error(c, fiber.StatusBadRequest, "username must be at least 3 characters")
		}
		updates["username"] = username
	}
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
		if !models.IsEmail(email) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid email")
		}
		updates["email"] = email
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		if self && *req.Role != user.Role {
			return utils.Error(c, fiber.StatusBadRequest, "you cannot change your own role")
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		if self && !*req.IsActive {
			return utils.Error(c, fiber.StatusBadRequest, "you cannot deactivate your own account")
		}
		updates["is_active"] = *req.IsActive
	}
	if req.Password != nil {
		if err := utils.ValidatePassword(*req.Password); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		hash, err := utils.HashPassword(*req.Password)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
		}
		updates["password_hash"] = hash
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if req.Username != nil || req.Email != nil {
		if conflict, err := userConflict(h.DB, username, email, &user); err != nil {
			return internalError(c, "user_conflict_check_failed", err, "failed checking existing user")
		} else if conflict != "" {
			return utils.Error(c, fiber.StatusConflict, conflict)
		}
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return internalError(c, "user_update_failed", err, "failed updating user")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", user.ID).Error; err != nil {
		return internalError(c, "user_reload_failed", err, "failed fetching updated user")
	}

	fields := mapKeys(updates)
	for i, field := range fields {
		if field == "password_hash" {
			fields[i] = "password"
		}
	}
	recordAudit(c, h.Audit, services.AuditUserUpdate, "user", &user.ID, map[string]interface{}{
		"fields": fields,
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if currentUser := middleware.GetCurrentUser(c); currentUser != nil && currentUser.ID == userID {
		return utils.Error(c, fiber.StatusBadRequest, "you cannot delete your own account")
	}

	// hard delete frees the unique username and email
	result := h.DB.Unscoped().Delete(&models.User{}, "id = ?", userID)
	if result.Error != nil {
		return internalError(c, "user_delete_failed", result.Error, "failed deleting user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	recordAudit(c, h.Audit, services.AuditUserDelete, "user", &userID, nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}
