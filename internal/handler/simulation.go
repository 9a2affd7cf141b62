package handler

import (
	"strconv"

	"robosim/backend/common/response"
	"robosim/backend/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// SimulationHandler 仿真处理器
type SimulationHandler struct{}

// NewSimulationHandler 创建仿真处理器
func NewSimulationHandler() *SimulationHandler {
	return &SimulationHandler{}
}

// simulationID 解析路径中的仿真ID
func simulationID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Create 创建仿真
// POST /api/simulation
func (h *SimulationHandler) Create(c *fiber.Ctx) error {
	var req logic.CreateSimulationReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}

	if req.Name == "" {
		return response.Error(c, "仿真名称不能为空")
	}
	if req.PatternType == "" {
		return response.Error(c, "执行模式不能为空")
	}

	simLogic := logic.NewSimulationLogic(c.UserContext())

	sim, err := simLogic.Create(&req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, sim)
}

// List 获取仿真列表
// GET /api/simulation
func (h *SimulationHandler) List(c *fiber.Ctx) error {
	var req logic.SimulationListReq
	if err := c.QueryParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}

	simLogic := logic.NewSimulationLogic(c.UserContext())

	list, total, err := simLogic.List(&req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Page(c, list, total, req.Page, req.PageSize)
}

// GetByID 获取仿真详情(含步骤/分组)
// GET /api/simulation/:id
func (h *SimulationHandler) GetByID(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	simLogic := logic.NewSimulationLogic(c.UserContext())

	sim, err := simLogic.Get(id)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, sim)
}

// Delete 删除仿真及其全部资源
// DELETE /api/simulation/:id
func (h *SimulationHandler) Delete(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	simLogic := logic.NewSimulationLogic(c.UserContext())

	if err := simLogic.Delete(id); err != nil {
		return writeError(c, err)
	}

	return response.SuccessWithMessage(c, "仿真已删除", nil)
}

// DeletionStatus 查询删除进度
// GET /api/simulation/:id/deletion
func (h *SimulationHandler) DeletionStatus(c *fiber.Ctx) error {
	id, ok := simulationID(c)
	if !ok {
		return response.Error(c, "无效的仿真ID")
	}

	simLogic := logic.NewSimulationLogic(c.UserContext())

	rec, err := simLogic.DeletionStatus(id)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, rec)
}
