package executor

import (
	"context"
	"fmt"
	"time"

	"robosim/backend/common/logger"
	"robosim/backend/internal/model"

	"go.uber.org/zap"
)

// runSequential 顺序执行：按step_order逐阶段推进
// 任一阶段失败立即终止，后续阶段不再启动；取消在阶段间隔中也能立即生效
func (e *Engine) runSequential(ctx context.Context, plan *RunPlan, st *runState) (string, string) {
	for i, u := range plan.Units {
		select {
		case <-ctx.Done():
			return model.ExecutionStatusStopped, "执行被停止"
		default:
		}

		logger.Info("阶段开始",
			zap.Uint("simulation_id", plan.Simulation.ID),
			zap.String("unit", u.Label()))

		outcome := e.runUnit(ctx, plan, st, u)
		switch outcome.status {
		case model.UnitStatusStopped:
			return model.ExecutionStatusStopped, "执行被停止"
		case model.UnitStatusFailed:
			msg := fmt.Sprintf("%s 执行失败", u.Label())
			if outcome.err != nil {
				msg = fmt.Sprintf("%s 执行失败: %s", u.Label(), outcome.err.Error())
			}
			return model.ExecutionStatusFailed, msg
		}

		e.sync.Heartbeat(context.Background(), st.snapshot())

		// 阶段间隔，取消时立即中断
		if d := u.DelayAfterSec(); d > 0 && i < len(plan.Units)-1 {
			select {
			case <-ctx.Done():
				return model.ExecutionStatusStopped, "执行被停止"
			case <-time.After(time.Duration(d) * time.Second):
			}
		}
	}
	return model.ExecutionStatusCompleted, ""
}
