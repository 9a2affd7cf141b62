package handler

import (
	"robosim/backend/common/response"
	"robosim/backend/internal/types"

	"github.com/gofiber/fiber/v2"
)

// writeError 按错误码映射HTTP响应
func writeError(c *fiber.Ctx, err error) error {
	appErr, ok := err.(*types.AppError)
	if !ok {
		return response.ServerError(c, err.Error())
	}

	switch appErr.Code {
	case types.ErrCodeNotFound, types.ErrCodeTemplateNotFound, types.ErrCodeRunNotFound:
		return response.NotFound(c, appErr.Message)
	case types.ErrCodeRunConflict, types.ErrCodeDeleteWhileRunning:
		return response.Conflict(c, appErr.Message)
	case types.ErrCodeInvalidParameter, types.ErrCodeInvalidPlan,
		types.ErrCodeBagObjectMissing, types.ErrCodeNotRunning:
		return response.Error(c, appErr.Error())
	default:
		return response.ServerError(c, appErr.Error())
	}
}
