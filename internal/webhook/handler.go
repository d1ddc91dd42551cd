package webhook

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorm-bridge/internal/archive"
	"scorm-bridge/internal/store"
)

// Uploader is the one Target operation the receiver needs.
type Uploader interface {
	UploadScormPackage(ctx context.Context, targetStepID string, pkg []byte, filename string) error
}

// Handler receives Origin's asynchronous export callbacks, correlates them
// to the Target step provisioned earlier and uploads the package.
//
// Origin delivers at least once and in no particular order, so the handler
// leans on the mapping store: a delivered mapping short-circuits to success
// without a second upload, and the final status write is a compare-and-swap
// so two concurrent deliveries of the same callback cannot both win.
type Handler struct {
	Store   store.MappingRepository
	Target  Uploader
	Archive archive.Config
	Log     *zap.Logger
}

type callbackRequest struct {
	OriginCourseID    string `json:"originCourseId" binding:"required"`
	PackageDataBase64 string `json:"packageDataBase64" binding:"required"`
}

func (h *Handler) Register(r gin.IRoutes, path string) {
	r.POST(path, h.HandleCallback)
}

// HandleCallback maps the internal error taxonomy onto response classes the
// way Origin's delivery layer expects: 4xx means "do not redeliver", 5xx
// means "redeliver later" (which the idempotency guard makes safe).
func (h *Handler) HandleCallback(c *gin.Context) {
	deliveryID := uuid.NewString()
	log := h.Log.With(zap.String("delivery_id", deliveryID))

	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("malformed callback payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "missing originCourseId or packageDataBase64"})
		return
	}
	log = log.With(zap.String("origin_course_id", req.OriginCourseID))

	ctx := c.Request.Context()

	// Target identity originates from provisioning only; an unknown course
	// is rejected, never mapped reactively.
	m, err := h.Store.Get(ctx, req.OriginCourseID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("callback for unknown course")
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "no mapping for course"})
		return
	}
	if err != nil {
		log.Error("mapping lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "mapping lookup failed"})
		return
	}

	if m.Status == store.StatusDelivered {
		log.Info("package already delivered, skipping upload")
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "already delivered"})
		return
	}

	pkg, err := base64.StdEncoding.DecodeString(req.PackageDataBase64)
	if err != nil {
		log.Warn("package payload is not valid base64", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid base64 package data"})
		return
	}

	h.archivePackage(ctx, req.OriginCourseID, deliveryID, pkg, log)

	filename := fmt.Sprintf("origin_%s_scorm.zip", req.OriginCourseID)
	if err := h.Target.UploadScormPackage(ctx, m.TargetStepID, pkg, filename); err != nil {
		log.Error("upload to target failed", zap.Error(err),
			zap.String("target_step_id", m.TargetStepID))
		if uerr := h.Store.UpdateStatus(ctx, req.OriginCourseID, m.Status, store.StatusUploadFailed); uerr != nil {
			if errors.Is(uerr, store.ErrInvalidTransition) {
				log.Info("upload failure not recorded, mapping already moved", zap.Error(uerr))
			} else {
				log.Error("could not record upload failure", zap.Error(uerr))
			}
		}
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "upload to target failed"})
		return
	}

	if err := h.Store.UpdateStatus(ctx, req.OriginCourseID, m.Status, store.StatusDelivered); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// lost the race against a concurrent delivery of the same
			// callback; if that one marked it delivered we are done
			cur, gerr := h.Store.Get(ctx, req.OriginCourseID)
			if gerr == nil && cur.Status == store.StatusDelivered {
				log.Info("concurrent delivery already marked the mapping delivered")
				c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "already delivered"})
				return
			}
			log.Error("invalid status transition after upload", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "status update failed"})
			return
		}
		// The upload landed but the status write did not. Answer retryable
		// so Origin redelivers; re-upload overwrites the step content.
		log.Error("status update failed after successful upload", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "status update failed"})
		return
	}

	log.Info("package delivered", zap.String("target_step_id", m.TargetStepID), zap.Int("bytes", len(pkg)))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// archivePackage keeps a copy of the decoded package when an archive host
// is configured. Best effort only.
func (h *Handler) archivePackage(ctx context.Context, originCourseID, deliveryID string, pkg []byte, log *zap.Logger) {
	if !h.Archive.Enabled() {
		return
	}
	name := fmt.Sprintf("%s_%s.zip", originCourseID, deliveryID)
	if err := archive.Store(ctx, h.Archive, name, pkg); err != nil {
		log.Warn("package archival failed", zap.Error(err))
	}
}
