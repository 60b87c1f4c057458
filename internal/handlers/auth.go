package handlers

import (
	"strings"
	"time"

	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB                *gorm.DB
	Audit             *services.AuditService
	AllowRegistration bool
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService, allowRegistration bool) *AuthHandler {
	return &AuthHandler{DB: db, Audit: audit, AllowRegistration: allowRegistration}
}

type sessionResponse struct {
	Token       string       `json:"token,omitempty"`
	Valid       bool         `json:"valid,omitempty"`
	User        *models.User `json:"user"`
	Permissions []string     `json:"permissions"`
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	if !h.AllowRegistration {
		return utils.Error(c, fiber.StatusForbidden, "registration is disabled")
	}

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := models.ValidateStruct(req); err != nil {
		return validationFailed(c, err)
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if conflict, err := userConflict(h.DB, req.Username, req.Email, nil); err != nil {
		return internalError(c, "register_conflict_check_failed", err, "failed checking existing user")
	} else if conflict != "" {
		return utils.Error(c, fiber.StatusConflict, conflict)
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.UserRoleUser,
		IsActive:     true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return internalError(c, "register_create_failed", err, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       services.AuditUserRegister,
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details:      map[string]interface{}{"username": user.Username},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, sessionResponse{
		Token:       token,
		User:        &user,
		Permissions: user.Role.Permissions(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login answers every credential failure with the same 401 so usernames cannot be probed.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "username = ?", req.Username).Error; err != nil {
		if !isNotFound(err) {
			return internalError(c, "login_lookup_failed", err, "failed loading user")
		}
		utils.CheckDummyPassword(req.Password)
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !user.IsActive {
		logger.Warn("login_failed_inactive_user", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	now := time.Now().UTC()
	if err := h.DB.Model(&user).Update("last_login_at", now).Error; err != nil {
		logger.Error("login_timestamp_update_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}
	user.LastLoginAt = &now

	logger.Info("user_login", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"ip":       c.IP(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       services.AuditUserLogin,
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, sessionResponse{
		Token:       token,
		User:        &user,
		Permissions: user.Role.Permissions(),
	})
}

// Verify runs behind RequireAuth, which has already re-fetched the user and rejected
// missing or inactive accounts.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, sessionResponse{
		Valid:       true,
		User:        user,
		Permissions: user.Role.Permissions(),
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type updateMeRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Position  *string `json:"position"`
	AvatarURL *string `json:"avatarURL"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := profileUpdates(req.FirstName, req.LastName, req.Phone, req.Position, req.AvatarURL)
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		return internalError(c, "profile_update_failed", err, "failed updating user")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", currentUser.ID).Error; err != nil {
		return internalError(c, "profile_reload_failed", err, "failed fetching updated user")
	}

	recordAudit(c, h.Audit, services.AuditUserUpdate, "user", &currentUser.ID, map[string]interface{}{
		"fields": mapKeys(updates),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "newPassword must be at least 8 characters")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return internalError(c, "password_change_load_failed", err, "failed loading user")
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "oldPassword is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return internalError(c, "password_change_failed", err, "failed updating password")
	}

	recordAudit(c, h.Audit, services.AuditPasswordChange, "user", &currentUser.ID, nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

// profileUpdates turns optional profile fields into a column map. Empty optional text clears
// the column; names cannot be cleared.
func profileUpdates(firstName, lastName, phone, position, avatarURL *string) map[string]interface{} {
	updates := map[string]interface{}{}
	if firstName != nil {
		if value := strings.TrimSpace(*firstName); value != "" {
			updates["first_name"] = value
		}
	}
	if lastName != nil {
		if value := strings.TrimSpace(*lastName); value != "" {
			updates["last_name"] = value
		}
	}
	if phone != nil {
		updates["phone"] = strings.TrimSpace(*phone)
	}
	if position != nil {
		updates["position"] = strings.TrimSpace(*position)
	}
	if avatarURL != nil {
		if trimmed := strings.TrimSpace(*avatarURL); trimmed == "" {
			updates["avatar_url"] = nil
		} else {
			updates["avatar_url"] = trimmed
		}
	}
	return updates
}

// userConflict reports which unique field of a user is already taken, ignoring except.
func userConflict(db *gorm.DB, username, email string, except *models.User) (string, error) {
	query := db.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(username))
	if except != nil {
		query = query.Where("id <> ?", except.ID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return "username already taken", nil
	}

	if email == "" {
		return "", nil
	}
	query = db.Model(&models.User{}).Where("LOWER(email) = ?", strings.ToLower(email))
	if except != nil {
		query = query.Where("id <> ?", except.ID)
	}
	if err := query.Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return "email already registered", nil
	}
	return "", nil
}

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
