package logger

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Middleware fiber请求日志中间件
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", latency),
			zap.String("ip", c.IP()),
		}
		if reqID, ok := c.Locals("requestid").(string); ok && reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
			L().WithOptions(zap.WithCaller(false)).Error("HTTP", fields...)
			return err
		}
		L().WithOptions(zap.WithCaller(false)).Info("HTTP", fields...)
		return nil
	}
}
