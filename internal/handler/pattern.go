package handler

import (
	"strconv"

	"robosim/backend/common/response"
	"robosim/backend/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// PatternHandler 执行计划编辑处理器
type PatternHandler struct{}

// NewPatternHandler 创建执行计划编辑处理器
func NewPatternHandler() *PatternHandler {
	return &PatternHandler{}
}

// AddStep 添加步骤
// POST /api/simulation/:id/steps
func (h *PatternHandler) AddStep(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	var req logic.AddStepReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}
	if req.StepOrder <= 0 {
		return response.Error(c, "步骤编号必须大于0")
	}
	if req.TemplateID == 0 {
		return response.Error(c, "模板ID不能为空")
	}

	patternLogic := logic.NewPatternLogic(c.UserContext())

	step, err := patternLogic.AddStep(id, &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, step)
}

// DeleteStep 删除步骤
// DELETE /api/simulation/:id/steps/:order
func (h *PatternHandler) DeleteStep(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	order, err := strconv.Atoi(c.Params("order"))
	if err != nil || order <= 0 {
		return response.Error(c, "无效的步骤编号")
	}

	patternLogic := logic.NewPatternLogic(c.UserContext())

	if err := patternLogic.DeleteStep(id, order); err != nil {
		return writeError(c, err)
	}

	return response.Success(c, nil)
}

// AddGroup 添加分组
// POST /api/simulation/:id/groups
func (h *PatternHandler) AddGroup(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	var req logic.AddGroupReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}
	if req.Name == "" {
		return response.Error(c, "分组名称不能为空")
	}
	if req.TemplateID == 0 {
		return response.Error(c, "模板ID不能为空")
	}

	patternLogic := logic.NewPatternLogic(c.UserContext())

	group, err := patternLogic.AddGroup(id, &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, group)
}

// DeleteGroup 删除分组
// DELETE /api/simulation/:id/groups/:groupId
func (h *PatternHandler) DeleteGroup(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	groupID, err := strconv.ParseUint(c.Params("groupId"), 10, 64)
	if err != nil || groupID == 0 {
		return response.Error(c, "无效的分组ID")
	}

	patternLogic := logic.NewPatternLogic(c.UserContext())

	if err := patternLogic.DeleteGroup(id, uint(groupID)); err != nil {
		return writeError(c, err)
	}

	return response.Success(c, nil)
}
