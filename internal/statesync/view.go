package statesync

import (
	"context"

	"robosim/backend/common/logger"
	"robosim/backend/internal/model"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// View 执行状态读取器：优先实时存储，未命中或出错时回退到持久化存储
type View struct {
	live    LiveStore
	durable *GormStore
}

// NewView 创建状态读取器
func NewView(live LiveStore, durable *GormStore) *View {
	return &View{live: live, durable: durable}
}

// CurrentStatus 查询仿真当前执行状态
func (v *View) CurrentStatus(ctx context.Context, simulationID uint) (*RunRecord, error) {
	rec, err := v.live.LoadRecord(ctx, simulationID)
	if err != nil {
		logger.Warn("实时状态读取失败，回退到数据库",
			zap.Uint("simulation_id", simulationID), zap.Error(err))
	}
	if rec != nil {
		return rec, nil
	}
	return v.rebuild(ctx, simulationID)
}

// ExecutionStatus 查询指定执行的状态
func (v *View) ExecutionStatus(ctx context.Context, simulationID, executionID uint) (*RunRecord, error) {
	rec, err := v.live.LoadExecutionRecord(ctx, simulationID, executionID)
	if err != nil {
		logger.Warn("实时状态读取失败，回退到数据库",
			zap.Uint("simulation_id", simulationID),
			zap.Uint("execution_id", executionID), zap.Error(err))
	}
	if rec != nil {
		return rec, nil
	}
	return v.rebuild(ctx, simulationID)
}

// rebuild 从持久化行重建状态文档
// 终态执行的进度细节取自result_summary快照，运行细节丢失时只能给出粗粒度状态
func (v *View) rebuild(ctx context.Context, simulationID uint) (*RunRecord, error) {
	sim, _, err := v.durable.LoadPlan(ctx, simulationID)
	if err != nil {
		return nil, err
	}

	exec, err := v.durable.LatestExecution(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, nil
	}

	// result_summary保存了终态时的完整文档快照
	if exec.ResultSummary != "" {
		var rec RunRecord
		if err := sonic.UnmarshalString(exec.ResultSummary, &rec); err == nil {
			rec.Status = exec.Status
			rec.Message = exec.Message
			return &rec, nil
		}
		logger.Warn("解析执行结果快照失败",
			zap.Uint("execution_id", exec.ID))
	}

	rec := &RunRecord{
		SimulationID: simulationID,
		ExecutionID:  exec.ID,
		SessionID:    exec.SessionID,
		PatternType:  exec.PatternType,
		Status:       exec.Status,
		Message:      exec.Message,
	}
	if exec.StartedAt.Valid {
		t := exec.StartedAt.DateTime
		rec.Timestamps.StartedAt = &t
	}

	switch sim.PatternType {
	case model.PatternSequential:
		total := len(sim.Steps)
		completed := 0
		current := 0
		for _, step := range sim.Steps {
			detail := &StepDetail{
				StepOrder:        step.StepOrder,
				Status:           step.Status,
				AutonomousAgents: step.AgentCount,
				TotalRepeats:     step.RepeatCount,
			}
			if step.Status == model.UnitStatusCompleted {
				completed++
				detail.Progress = 1.0
				detail.CurrentRepeat = step.RepeatCount
			}
			if step.Status == model.UnitStatusRunning {
				current = step.StepOrder
			}
			rec.StepDetails = append(rec.StepDetails, detail)
		}
		overall := 0.0
		if total > 0 {
			overall = float64(completed) / float64(total)
		}
		rec.Progress = &Progress{
			OverallProgress: overall,
			CurrentStep:     &current,
			CompletedSteps:  &completed,
			TotalSteps:      &total,
		}
	case model.PatternParallel:
		total := len(sim.Groups)
		completed := 0
		running := 0
		for _, group := range sim.Groups {
			detail := &GroupDetail{
				GroupID:          group.ID,
				Status:           group.Status,
				AutonomousAgents: group.AgentCount,
				TotalRepeats:     group.RepeatCount,
			}
			if group.Status == model.UnitStatusCompleted {
				completed++
				detail.Progress = 1.0
				detail.CurrentRepeat = group.RepeatCount
			}
			if group.Status == model.UnitStatusRunning {
				running++
			}
			rec.GroupDetails = append(rec.GroupDetails, detail)
		}
		overall := 0.0
		if total > 0 {
			overall = float64(completed) / float64(total)
		}
		rec.Progress = &Progress{
			OverallProgress: overall,
			CompletedGroups: &completed,
			RunningGroups:   &running,
			TotalGroups:     &total,
		}
	}
	return rec, nil
}
