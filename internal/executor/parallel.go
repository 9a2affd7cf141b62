package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"robosim/backend/common/logger"
	"robosim/backend/internal/model"

	"go.uber.org/zap"
)

// runParallel 并行执行：所有分组同时启动
// 分组之间互不影响，单组失败不取消其他分组；取消对所有分组生效
func (e *Engine) runParallel(ctx context.Context, plan *RunPlan, st *runState) (string, string) {
	type groupResult struct {
		unit    Unit
		outcome unitOutcome
	}

	results := make(chan groupResult, len(plan.Units))
	var wg sync.WaitGroup
	for _, u := range plan.Units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			logger.Info("分组开始",
				zap.Uint("simulation_id", plan.Simulation.ID),
				zap.String("unit", u.Label()))
			results <- groupResult{unit: u, outcome: e.runUnit(ctx, plan, st, u)}
		}(u)
	}
	wg.Wait()
	close(results)

	var failures []string
	stopped := false
	for r := range results {
		switch r.outcome.status {
		case model.UnitStatusFailed:
			if r.outcome.err != nil {
				failures = append(failures, fmt.Sprintf("%s: %s", r.unit.Label(), r.outcome.err.Error()))
			} else {
				failures = append(failures, r.unit.Label())
			}
		case model.UnitStatusStopped:
			stopped = true
		}
	}

	// 观察到取消信号时终态为STOPPED，已失败分组的结果保持不变
	if stopped || ctx.Err() != nil {
		return model.ExecutionStatusStopped, "执行被停止"
	}
	if len(failures) > 0 {
		return model.ExecutionStatusFailed, "分组执行失败: " + strings.Join(failures, "; ")
	}
	return model.ExecutionStatusCompleted, ""
}
