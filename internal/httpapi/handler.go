package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartlab/internal/access"
	"smartlab/internal/apperr"
	"smartlab/internal/attendance"
	"smartlab/internal/auth"
	"smartlab/internal/badge"
	"smartlab/internal/device"
	"smartlab/internal/metrics"
	"smartlab/internal/queue"
	"smartlab/internal/report"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the handlers call into.
type Deps struct {
	Access          *access.Service
	Badges          *badge.Directory
	Attendance      *attendance.Resolver
	Clock           attendance.Clock
	Devices         device.Registry
	Issuer          *auth.Issuer
	Queue           queue.Queue
	Metrics         *metrics.Metrics
	ProvisioningKey string
	Health          map[string]HealthCheck
	Log             *zap.Logger
}

type Handler struct {
	Deps
	log *zap.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Deps: d, log: log}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.Health {
		ok := check(c.Request.Context())
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

func (h *Handler) ReaderStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"message":   "smart lab RFID API running",
		"policy":    h.Attendance.Policy(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ---------- Devices ----------

type registerDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required,max=64"`
}

// RegisterDevice issues a reader token to callers holding the provisioning key.
func (h *Handler) RegisterDevice(c *gin.Context) {
	if h.ProvisioningKey == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errorBody{Kind: "provisioning_disabled", Message: "device provisioning is disabled"}})
		return
	}
	if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Provisioning-Key")), []byte(h.ProvisioningKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorBody{Kind: apperr.KindUnauthorized, Message: "invalid provisioning key"}})
		return
	}
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.Devices.Register(ctx, req.DeviceID); err != nil {
		h.respondError(c, err)
		return
	}
	h.log.Info("reader registered", zap.String("device_id", req.DeviceID))
	h.issueDevice(c, req.DeviceID, http.StatusCreated)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshDevice rotates a reader's token pair. The presented refresh token
// is revoked and cannot be used again.
func (h *Handler) RefreshDevice(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	claims, err := h.Issuer.ParseRefresh(req.RefreshToken)
	if err != nil || claims.Role != auth.RoleDevice {
		h.respondError(c, apperr.ErrUnauthorized)
		return
	}
	deviceID, err := h.Devices.ConsumeRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if deviceID != claims.Subject {
		h.log.Warn("refresh token subject mismatch", zap.String("device_id", deviceID), zap.String("subject", claims.Subject))
		h.respondError(c, apperr.ErrUnauthorized)
		return
	}
	h.issueDevice(c, deviceID, http.StatusOK)
}

// issueDevice signs a reader token pair and stores its refresh token.
func (h *Handler) issueDevice(c *gin.Context, deviceID string, status int) {
	tokens, err := h.Issuer.Issue(deviceID, auth.RoleDevice)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Devices.SaveRefreshToken(c.Request.Context(), deviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---------- Reader endpoints ----------

type uidRequest struct {
	UID string `json:"uid" binding:"required,badge"`
}

func (h *Handler) deviceID(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}

// CaptureScan stores the uid a reader just saw for enrollment auto-fill.
func (h *Handler) CaptureScan(c *gin.Context) {
	var req uidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	scan, err := h.Access.CaptureScan(c.Request.Context(), h.deviceID(c), req.UID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scan)
}

// VerifyAccess decides on a badge presented at the calling reader.
func (h *Handler) VerifyAccess(c *gin.Context) {
	var req uidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	decision, err := h.Access.VerifyAccess(c.Request.Context(), req.UID)
	if err != nil {
		h.log.Error("access verification failed",
			zap.String("device_id", h.deviceID(c)),
			zap.String("uid", decision.UID),
			zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, decision)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// LastScan returns the live scan of a reader.
func (h *Handler) LastScan(c *gin.Context) {
	deviceID := c.Param("deviceId")
	scan, err := h.Access.LastScan(c.Request.Context(), deviceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "available": scan != nil, "scan": scan})
}

// ConfirmScan consumes a reader's scan once an enrollment form used it.
func (h *Handler) ConfirmScan(c *gin.Context) {
	var req uidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	ok, err := h.Access.ConfirmScan(c.Request.Context(), c.Param("deviceId"), req.UID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": ok})
}

// ---------- Badges ----------

type enrollRequest struct {
	UID      string `json:"uid" binding:"required,badge"`
	PersonID *int64 `json:"person_id" binding:"omitempty,gt=0"`
	Name     string `json:"name" binding:"omitempty,max=120"`
}

func (h *Handler) EnrollBadge(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	res, err := h.Badges.Enroll(c.Request.Context(), req.UID, badge.Target{PersonID: req.PersonID, Name: req.Name})
	if err != nil {
		h.Metrics.Enrollment(string(apperr.KindOf(err)))
		h.respondError(c, err)
		return
	}
	h.Metrics.Enrollment("ok")
	body := gin.H{"person": res.Person, "provisional": res.Provisional}
	if res.Provisional {
		body["warning"] = "person created with placeholder process number and credential; replace them before production use"
	}
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) ListBadges(c *gin.Context) {
	list, err := h.Badges.ListEnrolled(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": list, "total": len(list)})
}

func (h *Handler) CheckBadge(c *gin.Context) {
	var req uidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	av, err := h.Badges.Lookup(c.Request.Context(), req.UID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, av)
}

func (h *Handler) UnenrollBadge(c *gin.Context) {
	id, ok := h.int64Param(c, "personId")
	if !ok {
		return
	}
	if err := h.Badges.Unenroll(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Attendance ----------

type absencesRequest struct {
	Date  string `json:"date"`
	Async bool   `json:"async"`
}

func (h *Handler) RegisterAbsences(c *gin.Context) {
	var req absencesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondBindError(c, err)
			return
		}
	}
	date, ok := h.date(c, req.Date)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if req.Async && h.Queue != nil {
		job := queue.NewAbsenceJob(date.String())
		if err := h.Queue.Publish(ctx, job); err != nil {
			h.respondError(c, apperr.Storage("enqueue absence job", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "date": date})
		return
	}
	n, err := h.Attendance.RegisterAbsences(ctx, date)
	h.Metrics.AbsencesInserted(n)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "inserted": n})
}

func (h *Handler) Daily(c *gin.Context) {
	date, ok := h.date(c, c.Query("date"))
	if !ok {
		return
	}
	summary, err := h.Attendance.Daily(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) DailyExport(c *gin.Context) {
	date, ok := h.date(c, c.Query("date"))
	if !ok {
		return
	}
	summary, err := h.Attendance.Daily(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	buf, name, err := report.DailyXLSX(summary)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) History(c *gin.Context) {
	id, ok := h.int64Param(c, "id")
	if !ok {
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondError(c, apperr.ErrInvalidInput)
			return
		}
		limit = parsed
	}
	records, err := h.Attendance.History(c.Request.Context(), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"person_id": id, "records": records})
}

// ---------- helpers ----------

func (h *Handler) date(c *gin.Context, raw string) (attendance.Date, bool) {
	if raw == "" {
		return h.Clock.Today(), true
	}
	d, err := attendance.ParseDate(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{Kind: apperr.KindInvalidInput, Message: "date must be YYYY-MM-DD"}})
		return attendance.Date{}, false
	}
	return d, true
}

func (h *Handler) int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{Kind: apperr.KindInvalidInput, Message: name + " must be a positive integer"}})
		return 0, false
	}
	return id, true
}
