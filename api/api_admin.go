package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tipline/go-tipline-server/metrics"
	"github.com/tipline/go-tipline-server/services"
	"github.com/tipline/go-tipline-server/types"
)

// AdminApi manages the recipient registry and the retention policy. Every
// mutation is audited with the acting admin's id.
type AdminApi struct {
	recipientService  *services.RecipientService
	submissionService *services.SubmissionService
	settingsService   *services.SettingsService
	auditService      *services.AuditService
	validate          *validator.Validate
}

func NewAdminApi(recipientService *services.RecipientService, submissionService *services.SubmissionService, settingsService *services.SettingsService, auditService *services.AuditService) *AdminApi {
	return &AdminApi{
		recipientService:  recipientService,
		submissionService: submissionService,
		settingsService:   settingsService,
		auditService:      auditService,
		validate:          validator.New(),
	}
}

func toOutputRecipient(r *types.Recipient) *types.OutputRecipient {
	return &types.OutputRecipient{
		ID:      r.UnderscoreID,
		Name:    r.Name,
		Role:    r.Role,
		Tags:    r.Tags,
		Active:  r.Active,
		Created: r.Created,
		Revoked: r.Revoked,
	}
}

// RegisterRecipient adds a recipient to the registry
// @Summary Register a recipient
// @Tags Admin
// @Accept json
// @Produce json
// @Success 201 {object} types.OutputRecipient
// @Failure 400 {object} ApiError "invalid key material"
// @Security Bearer
// @Router /api/v1/admin/recipient [post]
func (aa *AdminApi) RegisterRecipient(c *gin.Context) {
	var input types.InputRecipient
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := aa.validate.Struct(&input); vErr != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(vErr, &validationErrors) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(validationErrors))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	recipient, err := aa.recipientService.Register(&input, c.GetString("recipientID"))
	if err != nil {
		if errors.Is(err, types.ErrInvalidPublicKey) {
			ApiErrorf(c, http.StatusBadRequest, "invalid key material")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to register recipient")
		return
	}
	c.JSON(http.StatusCreated, toOutputRecipient(recipient))
}

// ListRecipients returns the whole registry
// @Summary List recipients
// @Tags Admin
// @Produce json
// @Success 200 {array} types.OutputRecipient
// @Security Bearer
// @Router /api/v1/admin/recipient [get]
func (aa *AdminApi) ListRecipients(c *gin.Context) {
	recipients, err := aa.recipientService.List()
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to list recipients")
		return
	}
	out := make([]*types.OutputRecipient, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, toOutputRecipient(r))
	}
	c.JSON(http.StatusOK, out)
}

// RevokeRecipient removes a recipient from future routing. Wrapped keys
// already issued to them stay valid.
// @Summary Revoke a recipient
// @Tags Admin
// @Produce json
// @Success 200 {object} types.OutputRecipient
// @Failure 404 {object} ApiError "not found"
// @Security Bearer
// @Router /api/v1/admin/recipient/{id} [delete]
func (aa *AdminApi) RevokeRecipient(c *gin.Context) {
	id := c.Param("id")

	recipient, err := aa.recipientService.Revoke(id, c.GetString("recipientID"))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to revoke recipient")
		return
	}
	c.JSON(http.StatusOK, toOutputRecipient(recipient))
}

// GetRetention returns the active retention policy
// @Summary Read the retention policy
// @Tags Admin
// @Produce json
// @Success 200 {object} types.OutputRetentionPolicy
// @Security Bearer
// @Router /api/v1/admin/retention [get]
func (aa *AdminApi) GetRetention(c *gin.Context) {
	policy, err := aa.settingsService.GetRetention()
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to read retention policy")
		return
	}
	c.JSON(http.StatusOK, types.OutputRetentionPolicy{
		ExpiryDays:    policy.ExpiryDays,
		MaxExpiryDays: policy.MaxExpiryDays,
	})
}

// SetRetention replaces the retention policy
// @Summary Set the retention policy
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} types.OutputRetentionPolicy
// @Security Bearer
// @Router /api/v1/admin/retention [put]
func (aa *AdminApi) SetRetention(c *gin.Context) {
	var input types.InputRetentionPolicy
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := aa.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	policy, err := aa.settingsService.SetRetention(&input, c.GetString("recipientID"))
	if err != nil {
		if errors.Is(err, types.ErrBadRequest) {
			ApiErrorf(c, http.StatusBadRequest, "maximum retention below default")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to set retention policy")
		return
	}
	c.JSON(http.StatusOK, types.OutputRetentionPolicy{
		ExpiryDays:    policy.ExpiryDays,
		MaxExpiryDays: policy.MaxExpiryDays,
	})
}

// PurgeSubmission removes any submission regardless of routing
// @Summary Purge a submission
// @Tags Admin
// @Produce json
// @Success 200 {object} gin.H
// @Failure 404 {object} ApiError "not found"
// @Security Bearer
// @Router /api/v1/admin/submission/{id} [delete]
func (aa *AdminApi) PurgeSubmission(c *gin.Context) {
	id := c.Param("id")

	if err := aa.submissionService.Purge(id, c.GetString("recipientID")); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "purge failed")
		return
	}
	metrics.SubmissionsPurgedMetricsCount.Inc()
	c.JSON(http.StatusOK, gin.H{"id": id, "status": types.SubmissionStatusPurged})
}

// ListSubmissionAudit returns the audit trail of a single submission
// @Summary List audit events for a submission
// @Tags Admin
// @Produce json
// @Success 200 {array} types.OutputAuditEvent
// @Security Bearer
// @Router /api/v1/admin/submission/{id}/audit [get]
func (aa *AdminApi) ListSubmissionAudit(c *gin.Context) {
	id := c.Param("id")
	limit := 0
	if l, lErr := strconv.Atoi(c.Query("limit")); lErr == nil {
		limit = l
	}

	events, err := aa.auditService.ListForSubmission(id, limit)
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	out := make([]*types.OutputAuditEvent, 0, len(events))
	for _, e := range events {
		out = append(out, &types.OutputAuditEvent{
			Type:         e.Type,
			ActorID:      e.ActorID,
			SubmissionID: e.SubmissionID,
			Detail:       e.Detail,
			Created:      e.Created,
		})
	}
	c.JSON(http.StatusOK, out)
}

// ArchiveSubmission crypto shreds a submission but keeps its metadata
// @Summary Archive a submission
// @Tags Admin
// @Produce json
// @Success 200 {object} gin.H
// @Failure 404 {object} ApiError "not found"
// @Security Bearer
// @Router /api/v1/admin/submission/{id}/archive [post]
func (aa *AdminApi) ArchiveSubmission(c *gin.Context) {
	id := c.Param("id")

	if err := aa.submissionService.Archive(id, c.GetString("recipientID")); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "archive failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": types.SubmissionStatusArchived})
}
