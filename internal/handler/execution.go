package handler

import (
	"robosim/backend/common/response"
	"robosim/backend/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// ExecutionHandler 仿真执行处理器
type ExecutionHandler struct{}

// NewExecutionHandler 创建仿真执行处理器
func NewExecutionHandler() *ExecutionHandler {
	return &ExecutionHandler{}
}

// ActionReq 执行动作请求
type ActionReq struct {
	Action string `json:"action" validate:"required"` // start, stop
}

// Action 启动或停止仿真执行
// POST /api/simulation/:id/action
func (h *ExecutionHandler) Action(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	var req ActionReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	execLogic := logic.NewExecutionLogic(c.UserContext())

	switch req.Action {
	case "start":
		exec, err := execLogic.StartRun(id)
		if err != nil {
			return writeError(c, err)
		}
		return response.SuccessWithMessage(c, "仿真已启动", exec)
	case "stop":
		if err := execLogic.StopRun(id); err != nil {
			return writeError(c, err)
		}
		return response.SuccessWithMessage(c, "仿真已停止", nil)
	default:
		return response.Error(c, "未知的动作: "+req.Action)
	}
}

// Status 查询当前执行状态
// GET /api/simulation/:id/status
func (h *ExecutionHandler) Status(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	execLogic := logic.NewExecutionLogic(c.UserContext())

	rec, err := execLogic.CurrentStatus(id)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, rec)
}

// History 查询执行历史
// GET /api/simulation/:id/executions
func (h *ExecutionHandler) History(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("pageSize", 10)

	execLogic := logic.NewExecutionLogic(c.UserContext())

	list, total, err := execLogic.History(id, page, pageSize)
	if err != nil {
		return writeError(c, err)
	}

	return response.Page(c, list, total, page, pageSize)
}
