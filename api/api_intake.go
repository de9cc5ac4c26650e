package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tipline/go-tipline-server/metrics"
	"github.com/tipline/go-tipline-server/services"
	"github.com/tipline/go-tipline-server/types"
)

// IntakeApi is the anonymous surface. Responses never reveal which internal
// stage failed and nothing about the submitter is recorded.
type IntakeApi struct {
	submissionService *services.SubmissionService
	validate          *validator.Validate
}

func NewIntakeApi(submissionService *services.SubmissionService) *IntakeApi {
	return &IntakeApi{
		submissionService: submissionService,
		validate:          validator.New(),
	}
}

// Submit accepts an anonymous submission
// @Summary Submit material anonymously
// @Tags Intake
// @Accept json
// @Produce json
// @Success 201 {object} types.OutputSubmissionAccepted
// @Failure 400 {object} ApiError "invalid input"
// @Failure 503 {object} ApiError "submission failed"
// @Router /api/v1/submission [post]
func (ia *IntakeApi) Submit(c *gin.Context) {
	var input types.InputSubmission
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := ia.validate.Struct(&input); vErr != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(vErr, &validationErrors) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(validationErrors))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	out, err := ia.submissionService.Receive(&input)
	if err != nil {
		if errors.Is(err, types.ErrBadRequest) {
			ApiErrorf(c, http.StatusBadRequest, "invalid input")
			return
		}
		// no internal detail reaches the submitter
		ApiErrorf(c, http.StatusServiceUnavailable, "submission failed")
		return
	}
	metrics.SubmissionsReceivedMetricsCount.Inc()

	c.JSON(http.StatusCreated, out)
}

// CheckReceipt lets a submitter confirm their material still exists
// @Summary Check a submission receipt
// @Tags Intake
// @Accept json
// @Produce json
// @Success 200 {object} gin.H
// @Failure 404 {object} ApiError "not found"
// @Router /api/v1/receipt [post]
func (ia *IntakeApi) CheckReceipt(c *gin.Context) {
	var input types.InputReceiptCheck
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := ia.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	status, messages, err := ia.submissionService.CheckReceipt(input.ID, input.Receipt)
	if err != nil {
		// a wrong receipt and a missing submission are indistinguishable
		ApiErrorf(c, http.StatusNotFound, "not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": input.ID, "status": status, "messages": messages})
}

// SubmitterMessage lets a submitter answer the recipients handling their
// material. The receipt code is the only credential; a wrong code and a
// missing submission are indistinguishable.
// @Summary Send a message as the submitter
// @Tags Intake
// @Accept json
// @Produce json
// @Success 201 {object} types.Message
// @Failure 404 {object} ApiError "not found"
// @Router /api/v1/receipt/message [post]
func (ia *IntakeApi) SubmitterMessage(c *gin.Context) {
	var input types.InputSubmitterMessage
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := ia.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	message, err := ia.submissionService.AddSubmitterMessage(input.ID, input.Receipt, input.Content)
	if err != nil {
		ApiErrorf(c, http.StatusNotFound, "not found")
		return
	}
	c.JSON(http.StatusCreated, message)
}
