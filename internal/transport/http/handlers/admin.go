package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/transport/http/middleware"
	"github.com/arklim/workforce-biometric/internal/usecase"
)

const (
	defaultStatsWindow   = 24 * time.Hour
	defaultRiskThreshold = domain.DeviceRiskNeutral + 1
	defaultRiskLimit     = 50
)

// DeviceTrustManager applies administrative trust decisions to capture devices.
type DeviceTrustManager interface {
	Apply(ctx context.Context, identityID, deviceHash string, action usecase.DeviceTrustAction, performedBy string) (*domain.DeviceFingerprint, error)
	List(ctx context.Context, identityID string) ([]domain.DeviceFingerprint, error)
}

// ComplianceReporter produces compliance reports over the verification log.
type ComplianceReporter interface {
	Statistics(ctx context.Context, window time.Duration) (domain.VerificationStatistics, error)
	DeviceRiskReport(ctx context.Context, minRisk, limit int) ([]domain.DeviceFingerprint, error)
}

// AdminHandler exposes device trust management and compliance reports.
type AdminHandler struct {
	devices DeviceTrustManager
	reports ComplianceReporter
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(devices DeviceTrustManager, reports ComplianceReporter) *AdminHandler {
	return &AdminHandler{devices: devices, reports: reports}
}

// RegisterRoutes binds admin routes to the provided router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	devices := r.Group("/identities/:identity_id/devices")
	devices.GET("", h.ListDevices)
	devices.PUT("/:device_hash/trust", h.SetDeviceTrust)
	devices.PUT("/:device_hash/block", h.BlockDevice)

	reports := r.Group("/reports")
	reports.GET("/verification-stats", h.VerificationStats)
	reports.GET("/device-risk", h.DeviceRisk)
}

// ListDevices godoc
// @Summary List capture devices of an identity
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param identity_id path string true "Identity reference"
// @Success 200 {object} DeviceListResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/admin/identities/{identity_id}/devices [get]
func (h *AdminHandler) ListDevices(c *gin.Context) {
	if h.devices == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "device trust unavailable"))
		return
	}

	devices, err := h.devices.List(c.Request.Context(), c.Param("identity_id"))
	if err != nil {
		respondBiometricError(c, err, "failed to list devices")
		return
	}

	c.JSON(http.StatusOK, newDeviceListResponse(devices))
}

// SetDeviceTrust godoc
// @Summary Trust or untrust a capture device
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param identity_id path string true "Identity reference"
// @Param device_hash path string true "Device fingerprint"
// @Param request body DeviceTrustRequest true "Trust flag"
// @Success 200 {object} DevicePayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/identities/{identity_id}/devices/{device_hash}/trust [put]
func (h *AdminHandler) SetDeviceTrust(c *gin.Context) {
	var req DeviceTrustRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Trusted == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "trusted is required"))
		return
	}

	action := usecase.DeviceActionUntrust
	if *req.Trusted {
		action = usecase.DeviceActionTrust
	}
	h.apply(c, action)
}

// BlockDevice godoc
// @Summary Block a capture device
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param identity_id path string true "Identity reference"
// @Param device_hash path string true "Device fingerprint"
// @Success 200 {object} DevicePayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/identities/{identity_id}/devices/{device_hash}/block [put]
func (h *AdminHandler) BlockDevice(c *gin.Context) {
	h.apply(c, usecase.DeviceActionBlock)
}

func (h *AdminHandler) apply(c *gin.Context, action usecase.DeviceTrustAction) {
	if h.devices == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "device trust unavailable"))
		return
	}

	performedBy, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok || performedBy == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	device, err := h.devices.Apply(c.Request.Context(), c.Param("identity_id"), c.Param("device_hash"), action, performedBy)
	if err != nil {
		respondBiometricError(c, err, "failed to update device trust")
		return
	}

	c.JSON(http.StatusOK, newDevicePayload(*device))
}

// VerificationStats godoc
// @Summary Verification statistics
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param window query string false "Go duration, default 24h"
// @Success 200 {object} VerificationStatsResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/admin/reports/verification-stats [get]
func (h *AdminHandler) VerificationStats(c *gin.Context) {
	if h.reports == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "reports unavailable"))
		return
	}

	window := defaultStatsWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "window must be a positive duration"))
			return
		}
		window = parsed
	}

	stats, err := h.reports.Statistics(c.Request.Context(), window)
	if err != nil {
		respondBiometricError(c, err, "failed to build verification statistics")
		return
	}

	c.JSON(http.StatusOK, newVerificationStatsResponse(stats))
}

// DeviceRisk godoc
// @Summary Risky capture devices
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param min_risk query int false "Minimum risk score (default 51)"
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {object} DeviceListResponse
// @Router /api/v1/admin/reports/device-risk [get]
func (h *AdminHandler) DeviceRisk(c *gin.Context) {
	if h.reports == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "reports unavailable"))
		return
	}

	minRisk := defaultRiskThreshold
	if raw := c.Query("min_risk"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			minRisk = parsed
		}
	}
	limit := defaultRiskLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	devices, err := h.reports.DeviceRiskReport(c.Request.Context(), minRisk, limit)
	if err != nil {
		respondBiometricError(c, err, "failed to build device risk report")
		return
	}

	c.JSON(http.StatusOK, newDeviceListResponse(devices))
}
