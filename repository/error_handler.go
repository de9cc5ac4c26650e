package repository

import (
	"encoding/json"
	"errors"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/types"
)

func handleError(reqErr *resty.Response) error {
	if reqErr.StatusCode() == 404 {
		return types.ErrNotFound
	}
	if reqErr.StatusCode() == 409 {
		return types.ErrConflict
	}
	if reqErr.StatusCode() >= 500 {
		return types.ErrStoreUnavailable
	}
	if reqErr.IsError() {
		var body map[string]interface{}
		uErr := json.Unmarshal(reqErr.Body(), &body)
		if uErr != nil {
			level.Error(global.Logger).Log("msg", "failed to unmarshal couchdb error", "err", uErr)
			return uErr
		}
		if errDesc, ok := body["error"]; ok {
			return errors.New(errDesc.(string))
		}
		return types.ErrBadRequest
	}
	return nil
}
