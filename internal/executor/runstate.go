package executor

import (
	"sync"
	"time"

	commontypes "robosim/backend/common/types"
	"robosim/backend/internal/model"
	"robosim/backend/internal/statesync"
)

func nowPtr() *commontypes.DateTime {
	t := commontypes.NewDateTime(time.Now())
	return &t
}

// runState 一次执行的内存状态，所有变更经互斥锁保护
// 对外只暴露snapshot的深拷贝，写入方可以安全并发
type runState struct {
	mu          sync.Mutex
	rec         *statesync.RunRecord
	pattern     string
	stepByOrder map[int]*statesync.StepDetail
	groupByID   map[uint]*statesync.GroupDetail

	totalStages int
}

func newRunState(plan *RunPlan) *runState {
	st := &runState{
		pattern:     plan.Simulation.PatternType,
		stepByOrder: make(map[int]*statesync.StepDetail),
		groupByID:   make(map[uint]*statesync.GroupDetail),
		totalStages: len(plan.Units),
	}

	rec := &statesync.RunRecord{
		SimulationID: plan.Simulation.ID,
		ExecutionID:  plan.Execution.ID,
		SessionID:    plan.SessionID,
		PatternType:  plan.Simulation.PatternType,
		Status:       model.ExecutionStatusPending,
		Timestamps:   statesync.Timestamps{CreatedAt: nowPtr()},
	}

	for _, u := range plan.Units {
		switch u.Kind {
		case UnitStep:
			detail := &statesync.StepDetail{
				StepOrder:        u.Step.StepOrder,
				Status:           model.UnitStatusPending,
				AutonomousAgents: u.AgentCount(),
				TotalRepeats:     u.RepeatBudget(),
			}
			st.stepByOrder[u.Step.StepOrder] = detail
			rec.StepDetails = append(rec.StepDetails, detail)
		case UnitGroup:
			detail := &statesync.GroupDetail{
				GroupID:          u.Group.ID,
				Status:           model.UnitStatusPending,
				AutonomousAgents: u.AgentCount(),
				TotalRepeats:     u.RepeatBudget(),
			}
			st.groupByID[u.Group.ID] = detail
			rec.GroupDetails = append(rec.GroupDetails, detail)
		}
	}

	st.rec = rec
	st.recomputeOverallLocked()
	return st
}

// setRunStatus 更新整体状态与终态时间戳
func (st *runState) setRunStatus(status, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.rec.Status = status
	st.rec.Message = message
	now := nowPtr()
	st.rec.Timestamps.LastUpdated = now
	switch status {
	case model.ExecutionStatusRunning:
		if st.rec.Timestamps.StartedAt == nil {
			st.rec.Timestamps.StartedAt = now
		}
	case model.ExecutionStatusCompleted:
		st.rec.Timestamps.CompletedAt = now
	case model.ExecutionStatusFailed:
		st.rec.Timestamps.FailedAt = now
	case model.ExecutionStatusStopped:
		st.rec.Timestamps.StoppedAt = now
	}
}

// setUnitRunning 单元进入运行态
func (st *runState) setUnitRunning(u Unit) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := nowPtr()
	switch u.Kind {
	case UnitStep:
		detail := st.stepByOrder[u.Step.StepOrder]
		detail.Status = model.UnitStatusRunning
		if detail.StartedAt == nil {
			detail.StartedAt = now
		}
	case UnitGroup:
		detail := st.groupByID[u.Group.ID]
		detail.Status = model.UnitStatusRunning
		if detail.StartedAt == nil {
			detail.StartedAt = now
		}
	}
	st.rec.Timestamps.LastUpdated = now
	st.recomputeOverallLocked()
}

// setUnitProgress 更新单元进度与循环数
func (st *runState) setUnitProgress(u Unit, progress float64, repeat int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch u.Kind {
	case UnitStep:
		detail := st.stepByOrder[u.Step.StepOrder]
		detail.Progress = progress
		detail.CurrentRepeat = repeat
	case UnitGroup:
		detail := st.groupByID[u.Group.ID]
		detail.Progress = progress
		detail.CurrentRepeat = repeat
	}
	st.rec.Timestamps.LastUpdated = nowPtr()
	st.recomputeOverallLocked()
}

// setUnitTerminal 单元终态
// 失败/停止时保留最后进度，完成时强制进度1.0并补满循环数
func (st *runState) setUnitTerminal(u Unit, status, errMsg string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := nowPtr()
	apply := func(statusField *string, progress *float64, repeat *int,
		completedAt, failedAt, stoppedAt **commontypes.DateTime, errField *string) {
		*statusField = status
		switch status {
		case model.UnitStatusCompleted:
			*progress = 1.0
			*repeat = u.RepeatBudget()
			*completedAt = now
		case model.UnitStatusFailed:
			*failedAt = now
			*errField = errMsg
		case model.UnitStatusStopped:
			*stoppedAt = now
		}
	}

	switch u.Kind {
	case UnitStep:
		d := st.stepByOrder[u.Step.StepOrder]
		apply(&d.Status, &d.Progress, &d.CurrentRepeat, &d.CompletedAt, &d.FailedAt, &d.StoppedAt, &d.Error)
	case UnitGroup:
		d := st.groupByID[u.Group.ID]
		apply(&d.Status, &d.Progress, &d.CurrentRepeat, &d.CompletedAt, &d.FailedAt, &d.StoppedAt, &d.Error)
	}
	st.rec.Timestamps.LastUpdated = now
	st.recomputeOverallLocked()
}

// recomputeOverallLocked 重算整体进度，调用方必须持锁
func (st *runState) recomputeOverallLocked() {
	switch st.pattern {
	case model.PatternSequential:
		current := 0
		currentProgress := 0.0
		completed := 0
		for _, d := range st.rec.StepDetails {
			if d.Status == model.UnitStatusRunning {
				current = d.StepOrder
				currentProgress = d.Progress
			}
			if d.Status == model.UnitStatusCompleted {
				completed++
			}
		}
		total := st.totalStages
		st.rec.Progress = &statesync.Progress{
			OverallProgress: SequentialProgress(completed, currentProgress, total),
			CurrentStep:     &current,
			CompletedSteps:  &completed,
			TotalSteps:      &total,
		}
	case model.PatternParallel:
		progresses := make([]float64, 0, len(st.rec.GroupDetails))
		agents := make([]int, 0, len(st.rec.GroupDetails))
		completed := 0
		running := 0
		for _, d := range st.rec.GroupDetails {
			progresses = append(progresses, d.Progress)
			agents = append(agents, d.AutonomousAgents)
			switch d.Status {
			case model.UnitStatusCompleted:
				completed++
			case model.UnitStatusRunning:
				running++
			}
		}
		total := st.totalStages
		st.rec.Progress = &statesync.Progress{
			OverallProgress: WeightedProgress(progresses, agents),
			CompletedGroups: &completed,
			RunningGroups:   &running,
			TotalGroups:     &total,
		}
	}
}

// snapshot 状态文档深拷贝
func (st *runState) snapshot() *statesync.RunRecord {
	st.mu.Lock()
	defer st.mu.Unlock()

	rec := *st.rec
	if st.rec.Progress != nil {
		p := *st.rec.Progress
		if st.rec.Progress.CurrentStep != nil {
			v := *st.rec.Progress.CurrentStep
			p.CurrentStep = &v
		}
		if st.rec.Progress.CompletedSteps != nil {
			v := *st.rec.Progress.CompletedSteps
			p.CompletedSteps = &v
		}
		if st.rec.Progress.TotalSteps != nil {
			v := *st.rec.Progress.TotalSteps
			p.TotalSteps = &v
		}
		if st.rec.Progress.CompletedGroups != nil {
			v := *st.rec.Progress.CompletedGroups
			p.CompletedGroups = &v
		}
		if st.rec.Progress.RunningGroups != nil {
			v := *st.rec.Progress.RunningGroups
			p.RunningGroups = &v
		}
		if st.rec.Progress.TotalGroups != nil {
			v := *st.rec.Progress.TotalGroups
			p.TotalGroups = &v
		}
		rec.Progress = &p
	}
	if len(st.rec.StepDetails) > 0 {
		details := make([]*statesync.StepDetail, len(st.rec.StepDetails))
		for i, d := range st.rec.StepDetails {
			c := *d
			details[i] = &c
		}
		rec.StepDetails = details
	}
	if len(st.rec.GroupDetails) > 0 {
		details := make([]*statesync.GroupDetail, len(st.rec.GroupDetails))
		for i, d := range st.rec.GroupDetails {
			c := *d
			details[i] = &c
		}
		rec.GroupDetails = details
	}
	return &rec
}
