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

// AccessApi authenticates recipients: a challenge nonce, then a signed proof
// exchanged for a bearer token.
type AccessApi struct {
	accessService *services.AccessService
	validate      *validator.Validate
}

func NewAccessApi(accessService *services.AccessService) *AccessApi {
	return &AccessApi{
		accessService: accessService,
		validate:      validator.New(),
	}
}

// Challenge issues a signing nonce for a recipient
// @Summary Request an access challenge
// @Tags Access
// @Accept json
// @Produce json
// @Success 200 {object} types.OutputAccessChallenge
// @Failure 401 {object} ApiError "authentication failed"
// @Failure 429 {object} ApiError "locked out"
// @Router /api/v1/access/challenge [post]
func (aa *AccessApi) Challenge(c *gin.Context) {
	var input types.InputAccessChallenge
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := aa.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	challenge, err := aa.accessService.Challenge(input.RecipientID)
	if err != nil {
		if errors.Is(err, types.ErrLockout) {
			ApiErrorf(c, http.StatusTooManyRequests, "locked out")
			return
		}
		metrics.AuthFailuresMetricsCount.Inc()
		ApiErrorf(c, http.StatusUnauthorized, "authentication failed")
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// Token exchanges a signed nonce for a bearer token
// @Summary Prove a challenge and mint an access token
// @Tags Access
// @Accept json
// @Produce json
// @Success 200 {object} types.OutputAccessToken
// @Failure 401 {object} ApiError "authentication failed"
// @Failure 429 {object} ApiError "locked out"
// @Router /api/v1/access/token [post]
func (aa *AccessApi) Token(c *gin.Context) {
	var input types.InputAccessProof
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if vErr := aa.validate.Struct(&input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}

	token, err := aa.accessService.Prove(&input)
	if err != nil {
		if errors.Is(err, types.ErrLockout) {
			ApiErrorf(c, http.StatusTooManyRequests, "locked out")
			return
		}
		metrics.AuthFailuresMetricsCount.Inc()
		ApiErrorf(c, http.StatusUnauthorized, "authentication failed")
		return
	}
	c.JSON(http.StatusOK, token)
}
