package handler

import (
	"strconv"

	"robosim/backend/common/response"
	"robosim/backend/internal/logic"

	"github.com/gofiber/fiber/v2"
)

// TemplateHandler 模板处理器
type TemplateHandler struct{}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

// Create 创建模板
// POST /api/template
func (h *TemplateHandler) Create(c *fiber.Ctx) error {
	var req logic.CreateTemplateReq
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "参数解析失败")
	}
	if req.Name == "" {
		return response.Error(c, "模板名称不能为空")
	}
	if req.BagObjectPath == "" {
		return response.Error(c, "rosbag对象路径不能为空")
	}

	tplLogic := logic.NewTemplateLogic(c.UserContext())

	tpl, err := tplLogic.Create(&req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, tpl)
}

// List 获取模板列表
// GET /api/template
func (h *TemplateHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("pageSize", 20)
	keyword := c.Query("keyword")

	tplLogic := logic.NewTemplateLogic(c.UserContext())

	list, total, err := tplLogic.List(keyword, page, pageSize)
	if err != nil {
		return writeError(c, err)
	}

	return response.Page(c, list, total, page, pageSize)
}

// GetByID 获取模板详情
// GET /api/template/:id
func (h *TemplateHandler) GetByID(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return response.Error(c, "无效的模板ID")
	}

	tplLogic := logic.NewTemplateLogic(c.UserContext())

	tpl, err := tplLogic.Get(uint(id))
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, tpl)
}

// Delete 删除模板
// DELETE /api/template/:id
func (h *TemplateHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return response.Error(c, "无效的模板ID")
	}

	tplLogic := logic.NewTemplateLogic(c.UserContext())

	if err := tplLogic.Delete(uint(id)); err != nil {
		return writeError(c, err)
	}

	return response.Success(c, nil)
}
