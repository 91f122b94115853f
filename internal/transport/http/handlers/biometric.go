package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/similarity"
	"github.com/arklim/workforce-biometric/internal/transport/http/middleware"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// ProfileManager is the profile store surface used by the HTTP layer.
type ProfileManager interface {
	Enroll(ctx context.Context, req domain.EnrollmentRequest) (*domain.BiometricProfile, error)
	Update(ctx context.Context, req domain.EnrollmentRequest) (*domain.BiometricProfile, error)
	Deactivate(ctx context.Context, identityID, performedBy string) error
	Status(ctx context.Context, identityID string) (domain.ProfileStatus, error)
	LockoutStatus(ctx context.Context, identityID string) (domain.LockoutStatus, error)
	History(ctx context.Context, identityID string, limit int) ([]domain.VerificationLog, error)
}

// Verifier is the verification engine surface used by the HTTP layer.
type Verifier interface {
	Verify(ctx context.Context, req domain.VerificationRequest) (domain.VerificationResult, error)
	Compare(ctx context.Context, identityID string, reference, probe []float64, info domain.DeviceInfo) (similarity.Result, error)
}

// BiometricHandler serves enrollment and verification for the identity carried by the gate token.
type BiometricHandler struct {
	profiles ProfileManager
	verifier Verifier
}

// NewBiometricHandler constructs a biometric handler.
func NewBiometricHandler(profiles ProfileManager, verifier Verifier) *BiometricHandler {
	return &BiometricHandler{profiles: profiles, verifier: verifier}
}

// RegisterRoutes binds biometric routes to the provided router group.
func (h *BiometricHandler) RegisterRoutes(r *gin.RouterGroup, verifyMiddlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	r.POST("/enroll", h.Enroll)
	r.PUT("/profile", h.UpdateProfile)
	r.DELETE("/profile", h.DeleteProfile)
	r.GET("/status", h.Status)
	r.GET("/lockout", h.Lockout)
	r.GET("/history", h.History)

	verifyHandlers := append([]gin.HandlerFunc{}, verifyMiddlewares...)
	r.POST("/verify", append(verifyHandlers, h.Verify)...)
	r.POST("/compare", h.Compare)
}

func (h *BiometricHandler) identity(c *gin.Context) (string, bool) {
	identityID, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok || identityID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", false
	}
	return identityID, true
}

func (h *BiometricHandler) enrollmentRequest(c *gin.Context, identityID string) (domain.EnrollmentRequest, bool) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "vector is required"))
		return domain.EnrollmentRequest{}, false
	}
	return domain.EnrollmentRequest{
		IdentityID:    identityID,
		Vector:        req.Vector,
		Confirmation:  req.Confirmation,
		QualityScore:  req.QualityScore,
		DeviceInfo:    domain.DeviceInfo(req.DeviceInfo),
		NetworkOrigin: c.ClientIP(),
		PerformedBy:   identityID,
	}, true
}

// Enroll godoc
// @Summary Enroll a biometric profile
// @Description Seals the capture and registers a profile for the authenticated identity.
// @Tags Biometric
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body EnrollRequest true "Enrollment capture"
// @Success 201 {object} ProfilePayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/biometric/enroll [post]
func (h *BiometricHandler) Enroll(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}
	req, ok := h.enrollmentRequest(c, identityID)
	if !ok {
		return
	}

	profile, err := h.profiles.Enroll(c.Request.Context(), req)
	if err != nil {
		respondBiometricError(c, err, "failed to enroll biometric profile")
		return
	}

	c.JSON(http.StatusCreated, newProfilePayload(*profile))
}

// UpdateProfile godoc
// @Summary Replace the biometric profile
// @Description Re-enrolls the active profile with a new capture.
// @Tags Biometric
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body EnrollRequest true "Replacement capture"
// @Success 200 {object} ProfilePayload
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/biometric/profile [put]
func (h *BiometricHandler) UpdateProfile(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}
	req, ok := h.enrollmentRequest(c, identityID)
	if !ok {
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), req)
	if err != nil {
		respondBiometricError(c, err, "failed to update biometric profile")
		return
	}

	c.JSON(http.StatusOK, newProfilePayload(*profile))
}

// DeleteProfile godoc
// @Summary Deactivate the biometric profile
// @Tags Biometric
// @Security Bearer
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/biometric/profile [delete]
func (h *BiometricHandler) DeleteProfile(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}

	if err := h.profiles.Deactivate(c.Request.Context(), identityID, identityID); err != nil {
		respondBiometricError(c, err, "failed to delete biometric profile")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "biometric profile deleted"})
}

// Status godoc
// @Summary Biometric registration status
// @Tags Biometric
// @Security Bearer
// @Produce json
// @Success 200 {object} ProfileStatusResponse
// @Router /api/v1/biometric/status [get]
func (h *BiometricHandler) Status(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}

	status, err := h.profiles.Status(c.Request.Context(), identityID)
	if err != nil {
		respondBiometricError(c, err, "failed to load biometric status")
		return
	}

	c.JSON(http.StatusOK, newProfileStatusResponse(status))
}

// Lockout godoc
// @Summary Lockout status
// @Tags Biometric
// @Security Bearer
// @Produce json
// @Success 200 {object} LockoutStatusResponse
// @Router /api/v1/biometric/lockout [get]
func (h *BiometricHandler) Lockout(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}

	status, err := h.profiles.LockoutStatus(c.Request.Context(), identityID)
	if err != nil {
		respondBiometricError(c, err, "failed to load lockout status")
		return
	}

	c.JSON(http.StatusOK, newLockoutStatusResponse(status))
}

// History godoc
// @Summary Recent verification attempts
// @Tags Biometric
// @Security Bearer
// @Produce json
// @Param limit query int false "Maximum rows (default 20, max 200)"
// @Success 200 {object} HistoryResponse
// @Router /api/v1/biometric/history [get]
func (h *BiometricHandler) History(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxHistoryLimit)
		}
	}

	logs, err := h.profiles.History(c.Request.Context(), identityID, limit)
	if err != nil {
		respondBiometricError(c, err, "failed to load verification history")
		return
	}

	attempts := make([]VerificationLogPayload, 0, len(logs))
	for _, l := range logs {
		attempts = append(attempts, newVerificationLogPayload(l))
	}

	c.JSON(http.StatusOK, HistoryResponse{Attempts: attempts, Total: len(attempts)})
}

// Verify godoc
// @Summary Verify a live capture
// @Description Scores the capture against the enrolled profile. A failed match is a 200 with success=false.
// @Tags Biometric
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Live capture"
// @Success 200 {object} VerifyResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 423 {object} LockedResponse
// @Failure 429 {object} RateLimitedResponse
// @Router /api/v1/biometric/verify [post]
func (h *BiometricHandler) Verify(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "vector is required"))
		return
	}

	result, err := h.verifier.Verify(c.Request.Context(), domain.VerificationRequest{
		IdentityID:        identityID,
		SessionRef:        req.SessionRef,
		AttemptType:       domain.AttemptType(req.AttemptType),
		Vector:            req.Vector,
		LivenessDetected:  req.LivenessDetected,
		LivenessScore:     req.LivenessScore,
		QualityScore:      req.QualityScore,
		LightingCondition: req.LightingCondition,
		DeviceInfo:        domain.DeviceInfo(req.DeviceInfo),
		NetworkOrigin:     c.ClientIP(),
	})
	if err != nil {
		respondBiometricError(c, err, "verification failed")
		return
	}

	c.JSON(http.StatusOK, newVerifyResponse(result))
}

// Compare godoc
// @Summary Compare two captures
// @Description Scores two raw captures without touching lockout state. The attempt is logged as a test.
// @Tags Biometric
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body CompareRequest true "Captures"
// @Success 200 {object} CompareResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/biometric/compare [post]
func (h *BiometricHandler) Compare(c *gin.Context) {
	identityID, ok := h.identity(c)
	if !ok {
		return
	}

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "reference and probe are required"))
		return
	}

	res, err := h.verifier.Compare(c.Request.Context(), identityID, req.Reference, req.Probe, domain.DeviceInfo(req.DeviceInfo))
	if err != nil {
		respondBiometricError(c, err, "comparison failed")
		return
	}

	c.JSON(http.StatusOK, newCompareResponse(res))
}
