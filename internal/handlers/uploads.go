package handlers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/internal/storage"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Upload kinds accepted by POST /api/uploads/:kind.
const (
	UploadKindLogo            = "logo"
	UploadKindAppIcon         = "app-icon"
	UploadKindFormImage       = "form-image"
	UploadKindReportThumbnail = "report-thumbnail"
)

var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/svg+xml"}

var allowedUploadTypes = map[string][]string{
	UploadKindLogo:            imageTypes,
	UploadKindAppIcon:         append([]string{"image/x-icon", "image/vnd.microsoft.icon"}, imageTypes...),
	UploadKindFormImage:       imageTypes,
	UploadKindReportThumbnail: imageTypes,
}

type UploadsHandler struct {
	Store         storage.ObjectStore
	Audit         *services.AuditService
	MaxBytes      int64
	PublicBaseURL string
}

func NewUploadsHandler(store storage.ObjectStore, audit *services.AuditService, maxBytes int64, publicBaseURL string) *UploadsHandler {
	return &UploadsHandler{Store: store, Audit: audit, MaxBytes: maxBytes, PublicBaseURL: publicBaseURL}
}

type uploadResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Upload stores an image for the given kind. The type is sniffed from the content, never
// taken from the client, and nothing is written when the file is rejected.
func (h *UploadsHandler) Upload(c *fiber.Ctx) error {
	kind := c.Params("kind")
	allowed, ok := allowedUploadTypes[kind]
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "unknown upload kind")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	if fileHeader.Size <= 0 {
		return utils.Error(c, fiber.StatusBadRequest, "file is empty")
	}
	if h.MaxBytes > 0 && fileHeader.Size > h.MaxBytes {
		return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("file exceeds the %d byte limit", h.MaxBytes))
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return internalError(c, "upload_open_failed", err, "failed opening uploaded file")
	}
	defer stream.Close()

	detected, err := mimetype.DetectReader(stream)
	if err != nil {
		return internalError(c, "upload_sniff_failed", err, "failed reading uploaded file")
	}
	if !mimeAllowed(detected, allowed) {
		logger.Warn("upload_rejected_type", map[string]interface{}{
			"kind":      kind,
			"mime_type": detected.String(),
			"ip":        c.IP(),
		})
		return utils.Error(c, fiber.StatusBadRequest, "file type is not allowed")
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return internalError(c, "upload_rewind_failed", err, "failed reading uploaded file")
	}

	contentType := strings.SplitN(detected.String(), ";", 2)[0]
	key := fmt.Sprintf("%s/%s%s", kind, uuid.New().String(), detected.Extension())
	if err := h.Store.Put(c.UserContext(), key, stream, fileHeader.Size, contentType); err != nil {
		return internalError(c, "upload_store_failed", err, "failed storing file")
	}

	recordAudit(c, h.Audit, services.AuditUpload, "upload", nil, map[string]interface{}{
		"kind":      kind,
		"key":       key,
		"size":      fileHeader.Size,
		"mime_type": contentType,
	})

	return utils.Success(c, fiber.StatusCreated, uploadResponse{
		URL:         h.publicURL(key),
		Key:         key,
		ContentType: contentType,
		Size:        fileHeader.Size,
	})
}

// Serve streams a stored upload. Uploads are public assets such as logos.
func (h *UploadsHandler) Serve(c *fiber.Ctx) error {
	key, err := storage.CleanKey(c.Params("*"))
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	obj, err := h.Store.Open(c.UserContext(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return internalError(c, "upload_serve_failed", err, "failed reading file")
	}

	if obj.ContentType != "" {
		c.Set(fiber.HeaderContentType, obj.ContentType)
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	// SendStream closes the body once written.
	return c.SendStream(obj.Body, int(obj.Size))
}

func (h *UploadsHandler) publicURL(key string) string {
	return strings.TrimRight(h.PublicBaseURL, "/") + "/" + key
}

func mimeAllowed(detected *mimetype.MIME, allowed []string) bool {
	for _, candidate := range allowed {
		if detected.Is(candidate) {
			return true
		}
	}
	return false
}
