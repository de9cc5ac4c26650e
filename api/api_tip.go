package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/metrics"
	"github.com/tipline/go-tipline-server/services"
	"github.com/tipline/go-tipline-server/types"
)

// TipApi is the authenticated recipient surface over routed submissions
type TipApi struct {
	submissionService *services.SubmissionService
	accessService     *services.AccessService
	recipientService  *services.RecipientService
	s3Service         *services.S3Service
	validate          *validator.Validate
}

func NewTipApi(submissionService *services.SubmissionService, accessService *services.AccessService, recipientService *services.RecipientService, s3Service *services.S3Service) *TipApi {
	return &TipApi{
		submissionService: submissionService,
		accessService:     accessService,
		recipientService:  recipientService,
		s3Service:         s3Service,
		validate:          validator.New(),
	}
}

func recipientIDFromContext(c *gin.Context) (string, bool) {
	recipientID := c.GetString("recipientID")
	if recipientID == "" {
		ApiErrorf(c, http.StatusUnauthorized, "not authorized")
		return "", false
	}
	return recipientID, true
}

// ListTips returns the caller's routed submissions
// @Summary List submissions routed to the caller
// @Tags Tip
// @Produce json
// @Success 200 {array} types.OutputTipListItem
// @Security Bearer
// @Router /api/v1/tip [get]
func (ta *TipApi) ListTips(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	limit := 0
	if l, lErr := strconv.Atoi(c.Query("limit")); lErr == nil {
		limit = l
	}

	items, err := ta.submissionService.ListTips(recipientID, limit)
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetTip returns one submission with the caller's wrapped key
// @Summary Read a routed submission
// @Tags Tip
// @Produce json
// @Success 200 {object} types.OutputTip
// @Failure 403 {object} ApiError "not authorized"
// @Failure 404 {object} ApiError "not found"
// @Security Bearer
// @Router /api/v1/tip/{id} [get]
func (ta *TipApi) GetTip(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	tip, err := ta.submissionService.GetTip(recipientID, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "not found")
			return
		}
		if errors.Is(err, types.ErrNotAuthorized) {
			metrics.AccessDeniedMetricsCount.Inc()
			ApiErrorf(c, http.StatusForbidden, "not authorized")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to read submission")
		return
	}
	c.JSON(http.StatusOK, tip)
}

// TipOp applies a recipient operation: postpone, label or notifications
// @Summary Modify a routed submission
// @Tags Tip
// @Accept json
// @Produce json
// @Success 200 {object} gin.H
// @Failure 403 {object} ApiError "not authorized"
// @Security Bearer
// @Router /api/v1/tip/{id} [put]
func (ta *TipApi) TipOp(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var input types.InputTipOp
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := ta.validate.Struct(&input); vErr != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(vErr, &validationErrors) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(validationErrors))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	submission, gErr := ta.submissionService.Get(id)
	if gErr != nil {
		ApiErrorf(c, http.StatusNotFound, "not found")
		return
	}
	if aErr := ta.accessService.Authorize(submission, recipientID); aErr != nil {
		metrics.AccessDeniedMetricsCount.Inc()
		ApiErrorf(c, http.StatusForbidden, "not authorized")
		return
	}

	var opErr error
	switch input.Operation {
	case "postpone":
		recipient, rErr := ta.recipientService.Get(recipientID)
		if rErr != nil || !recipient.CanPostpone {
			ApiErrorf(c, http.StatusForbidden, "not authorized")
			return
		}
		_, opErr = ta.submissionService.Postpone(id, recipientID)
	case "label":
		opErr = ta.submissionService.SetLabel(recipientID, id, input.Label)
	case "notifications":
		if input.Enabled == nil {
			ApiErrorf(c, http.StatusBadRequest, "invalid input")
			return
		}
		opErr = ta.submissionService.SetNotifications(recipientID, id, *input.Enabled)
	}
	if opErr != nil {
		ApiErrorf(c, http.StatusInternalServerError, "operation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "operation": input.Operation})
}

// PurgeTip irreversibly deletes a submission the caller may purge
// @Summary Purge a submission
// @Tags Tip
// @Produce json
// @Success 200 {object} gin.H
// @Failure 403 {object} ApiError "not authorized"
// @Security Bearer
// @Router /api/v1/tip/{id} [delete]
func (ta *TipApi) PurgeTip(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	recipient, rErr := ta.recipientService.Get(recipientID)
	if rErr != nil || !recipient.CanPurge {
		ApiErrorf(c, http.StatusForbidden, "not authorized")
		return
	}
	submission, gErr := ta.submissionService.Get(id)
	if gErr != nil {
		ApiErrorf(c, http.StatusNotFound, "not found")
		return
	}
	if aErr := ta.accessService.Authorize(submission, recipientID); aErr != nil {
		metrics.AccessDeniedMetricsCount.Inc()
		ApiErrorf(c, http.StatusForbidden, "not authorized")
		return
	}

	if pErr := ta.submissionService.Purge(id, recipientID); pErr != nil {
		ApiErrorf(c, http.StatusInternalServerError, "purge failed")
		return
	}
	metrics.SubmissionsPurgedMetricsCount.Inc()
	c.JSON(http.StatusOK, gin.H{"id": id, "status": types.SubmissionStatusPurged})
}

// AddComment appends a comment visible to all routed recipients
// @Summary Comment on a submission
// @Tags Tip
// @Accept json
// @Produce json
// @Success 201 {object} types.Comment
// @Security Bearer
// @Router /api/v1/tip/{id}/comment [post]
func (ta *TipApi) AddComment(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var input types.InputComment
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := ta.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	comment, err := ta.submissionService.AddComment(recipientID, id, input.Content)
	if err != nil {
		if errors.Is(err, types.ErrNotAuthorized) {
			metrics.AccessDeniedMetricsCount.Inc()
			ApiErrorf(c, http.StatusForbidden, "not authorized")
			return
		}
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to store comment")
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// AddMessage appends a recipient's message to the submitter conversation
// @Summary Message the submitter
// @Tags Tip
// @Accept json
// @Produce json
// @Success 201 {object} types.Message
// @Failure 403 {object} ApiError "not authorized"
// @Security Bearer
// @Router /api/v1/tip/{id}/message [post]
func (ta *TipApi) AddMessage(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var input types.InputMessage
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := ta.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	message, err := ta.submissionService.AddRecipientMessage(recipientID, id, input.Content)
	if err != nil {
		if errors.Is(err, types.ErrNotAuthorized) {
			metrics.AccessDeniedMetricsCount.Inc()
			ApiErrorf(c, http.StatusForbidden, "not authorized")
			return
		}
		if errors.Is(err, types.ErrNotFound) {
			ApiErrorf(c, http.StatusNotFound, "not found")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, message)
}

// GetAttachment streams one encrypted attachment blob
// @Summary Download an encrypted attachment
// @Tags Tip
// @Produce octet-stream
// @Success 200
// @Failure 403 {object} ApiError "not authorized"
// @Security Bearer
// @Router /api/v1/tip/{id}/attachment/{index} [get]
func (ta *TipApi) GetAttachment(c *gin.Context) {
	recipientID, ok := recipientIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")
	index, iErr := strconv.Atoi(c.Param("index"))
	if iErr != nil || index < 0 {
		ApiErrorf(c, http.StatusBadRequest, "invalid attachment index")
		return
	}

	submission, gErr := ta.submissionService.Get(id)
	if gErr != nil {
		ApiErrorf(c, http.StatusNotFound, "not found")
		return
	}
	if aErr := ta.accessService.Authorize(submission, recipientID); aErr != nil {
		metrics.AccessDeniedMetricsCount.Inc()
		ApiErrorf(c, http.StatusForbidden, "not authorized")
		return
	}
	if index >= len(submission.Attachments) {
		ApiErrorf(c, http.StatusNotFound, "not found")
		return
	}

	att := submission.Attachments[index]
	content, dErr := ta.s3Service.DownloadAttachment(global.Conf.Storage.Bucket, att.ObjectKey)
	if dErr != nil {
		ApiErrorf(c, http.StatusInternalServerError, "failed to read attachment")
		return
	}
	// the blob stays encrypted; the recipient decrypts with the unwrapped key
	c.Data(http.StatusOK, "application/octet-stream", content)
}
