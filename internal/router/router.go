package router

import (
	"robosim/backend/common/middleware"
	"robosim/backend/internal/handler"

	"github.com/gofiber/fiber/v2"
)

// Setup 设置路由
func Setup(app *fiber.App) {
	// 全局中间件
	app.Use(middleware.Recover())
	app.Use(middleware.CORS())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"app":    "robosim",
		})
	})

	// 创建 Handler
	simulationHandler := handler.NewSimulationHandler()
	executionHandler := handler.NewExecutionHandler()
	patternHandler := handler.NewPatternHandler()
	templateHandler := handler.NewTemplateHandler()

	api := app.Group("/api")

	// 仿真管理
	simulation := api.Group("/simulation")
	simulation.Post("/", simulationHandler.Create)
	simulation.Get("/", simulationHandler.List)
	simulation.Get("/:id", simulationHandler.GetByID)
	simulation.Delete("/:id", simulationHandler.Delete)
	simulation.Get("/:id/deletion", simulationHandler.DeletionStatus)

	// 执行生命周期
	simulation.Post("/:id/action", executionHandler.Action)
	simulation.Get("/:id/status", executionHandler.Status)
	simulation.Get("/:id/executions", executionHandler.History)

	// 执行计划编辑
	simulation.Post("/:id/steps", patternHandler.AddStep)
	simulation.Delete("/:id/steps/:order", patternHandler.DeleteStep)
	simulation.Post("/:id/groups", patternHandler.AddGroup)
	simulation.Delete("/:id/groups/:groupId", patternHandler.DeleteGroup)

	// 模板管理
	template := api.Group("/template")
	template.Post("/", templateHandler.Create)
	template.Get("/", templateHandler.List)
	template.Get("/:id", templateHandler.GetByID)
	template.Delete("/:id", templateHandler.Delete)
}
