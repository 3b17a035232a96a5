package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/response"
	"github.com/gloads/portal/pkg/storage"
)

// VideoStorage is the subset of the S3 client the media endpoints use.
type VideoStorage interface {
	UploadVideo(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	GeneratePresignedUploadURL(ctx context.Context, key, contentType string, size int64) (string, error)
	PresignExpire() time.Duration
	PublicObjectURL(key string) string
}

// UploadURLRequest is the body for POST /media/videos/upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size" binding:"required,gt=0"`
}

// UploadResponse is returned after a server-side upload.
type UploadResponse struct {
	VideoKey    string `json:"video_key"`
	VideoURL    string `json:"video_url"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	Filename    string `json:"filename"`
}

// UploadURLResponse is returned for direct browser uploads.
type UploadURLResponse struct {
	UploadURL   string `json:"upload_url"`
	VideoKey    string `json:"video_key"`
	VideoURL    string `json:"video_url"`
	ContentType string `json:"content_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Handler handles ad video uploads.
type Handler struct {
	s3       VideoStorage
	maxBytes int64
	logger   *zap.Logger
}

// NewHandler creates a media handler. s3 may be nil, in which case uploads answer 503.
func NewHandler(s3 VideoStorage, maxBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{s3: s3, maxBytes: maxBytes, logger: logger}
}

func (h *Handler) sizeError() string {
	return fmt.Sprintf("file size exceeds %dMB limit", h.maxBytes>>20)
}

// multipartSlack covers form boundaries and part headers on top of the file itself.
const multipartSlack = 1 << 20

const invalidType = "invalid file type: only mp4, mov and webm video allowed"

// Upload handles POST /media/videos (multipart field "file"). The server streams the file to S3.
func (h *Handler) Upload(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "video storage is not configured")
		return
	}
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	limit := h.maxBytes + multipartSlack
	if c.Request.ContentLength > limit {
		response.BadRequest(c, h.sizeError())
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(c, h.sizeError())
			return
		}
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > h.maxBytes {
		response.BadRequest(c, h.sizeError())
		return
	}
	declared := file.Header.Get("Content-Type")
	if !storage.ValidateVideoFileType(declared, file.Filename) {
		response.BadRequest(c, invalidType)
		return
	}
	contentType := storage.ResolveVideoContentType(declared, file.Filename)

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	key := storage.VideoKey(sess.ID.String(), contentType)
	videoURL, err := h.s3.UploadVideo(c.Request.Context(), key, contentType, rc, file.Size)
	if err != nil {
		h.logger.Error("S3 upload failed", zap.Error(err), zap.String("advertiser_id", sess.ID.String()), zap.String("key", key))
		response.Internal(c, "failed to upload file to storage")
		return
	}

	h.logger.Info("ad video uploaded", zap.String("key", key), zap.Int64("size", file.Size))
	response.Created(c, UploadResponse{
		VideoKey:    key,
		VideoURL:    videoURL,
		ContentType: contentType,
		FileSize:    file.Size,
		Filename:    file.Filename,
	})
}

// UploadURL handles POST /media/videos/upload-url. The client PUTs the file to the returned URL
// and then passes video_key when creating the campaign.
func (h *Handler) UploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "video storage is not configured")
		return
	}
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.FileSize > h.maxBytes {
		response.BadRequest(c, h.sizeError())
		return
	}
	if !storage.ValidateVideoFileType(req.ContentType, req.Filename) {
		response.BadRequest(c, invalidType)
		return
	}
	contentType := storage.ResolveVideoContentType(req.ContentType, req.Filename)
	key := storage.VideoKey(sess.ID.String(), contentType)

	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), key, contentType, req.FileSize)
	if err != nil {
		h.logger.Error("generate presigned upload URL failed", zap.Error(err), zap.String("advertiser_id", sess.ID.String()))
		response.Internal(c, "video upload unavailable")
		return
	}
	response.OK(c, UploadURLResponse{
		UploadURL:   url,
		VideoKey:    key,
		VideoURL:    h.s3.PublicObjectURL(key),
		ContentType: contentType,
		ExpiresIn:   int(h.s3.PresignExpire().Seconds()),
	})
}
