package executor

import (
	"testing"

	"robosim/backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialPlan(stepCount int) *RunPlan {
	sim := &model.Simulation{PatternType: model.PatternSequential}
	sim.ID = 1
	exec := &model.SimulationExecution{SimulationID: 1}
	exec.ID = 10

	plan := &RunPlan{
		Simulation: sim,
		Execution:  exec,
		SessionID:  "session-test",
		Namespace:  model.Namespace(1),
	}
	for i := 1; i <= stepCount; i++ {
		step := &model.SimulationStep{
			StepOrder:   i,
			RepeatCount: 3,
			AgentCount:  2,
		}
		step.ID = uint(i)
		plan.Units = append(plan.Units, StepUnit(step))
	}
	return plan
}

func parallelPlan(agentCounts ...int) *RunPlan {
	sim := &model.Simulation{PatternType: model.PatternParallel}
	sim.ID = 2
	exec := &model.SimulationExecution{SimulationID: 2}
	exec.ID = 20

	plan := &RunPlan{
		Simulation: sim,
		Execution:  exec,
		SessionID:  "session-test",
		Namespace:  model.Namespace(2),
	}
	for i, n := range agentCounts {
		group := &model.SimulationGroup{
			Name:        "g",
			RepeatCount: 2,
			AgentCount:  n,
		}
		group.ID = uint(i + 1)
		plan.Units = append(plan.Units, GroupUnit(group))
	}
	return plan
}

func TestRunStateInitial(t *testing.T) {
	st := newRunState(sequentialPlan(3))
	rec := st.snapshot()

	assert.Equal(t, model.ExecutionStatusPending, rec.Status)
	require.Len(t, rec.StepDetails, 3)
	for _, d := range rec.StepDetails {
		assert.Equal(t, model.UnitStatusPending, d.Status)
		assert.Equal(t, 2, d.AutonomousAgents)
		assert.Equal(t, 3, d.TotalRepeats)
	}
	require.NotNil(t, rec.Progress)
	assert.Equal(t, 0.0, rec.Progress.OverallProgress)
	assert.Equal(t, 3, *rec.Progress.TotalSteps)
	assert.NotNil(t, rec.Timestamps.CreatedAt)
}

func TestRunStateSequentialOverall(t *testing.T) {
	plan := sequentialPlan(4)
	st := newRunState(plan)

	// 第1步完成，第2步进行到一半
	st.setUnitRunning(plan.Units[0])
	st.setUnitTerminal(plan.Units[0], model.UnitStatusCompleted, "")
	st.setUnitRunning(plan.Units[1])
	st.setUnitProgress(plan.Units[1], 0.5, 1)

	rec := st.snapshot()
	assert.InDelta(t, (1.0+0.5)/4.0, rec.Progress.OverallProgress, 1e-9)
	assert.Equal(t, 1, *rec.Progress.CompletedSteps)
	assert.Equal(t, 2, *rec.Progress.CurrentStep)

	// 步骤完成时进度强制为1.0并补满循环数
	st.setUnitTerminal(plan.Units[1], model.UnitStatusCompleted, "")
	rec = st.snapshot()
	assert.Equal(t, 1.0, rec.StepDetails[1].Progress)
	assert.Equal(t, 3, rec.StepDetails[1].CurrentRepeat)
	// 步骤完成与下一步启动之间整体进度不回退
	assert.InDelta(t, 0.5, rec.Progress.OverallProgress, 1e-9)
}

func TestRunStateFailurePreservesProgress(t *testing.T) {
	plan := sequentialPlan(2)
	st := newRunState(plan)

	st.setUnitRunning(plan.Units[0])
	st.setUnitProgress(plan.Units[0], 0.7, 2)
	st.setUnitTerminal(plan.Units[0], model.UnitStatusFailed, "回放中断")

	rec := st.snapshot()
	d := rec.StepDetails[0]
	assert.Equal(t, model.UnitStatusFailed, d.Status)
	// 失败时保留最后采样的进度
	assert.Equal(t, 0.7, d.Progress)
	assert.Equal(t, 2, d.CurrentRepeat)
	assert.Equal(t, "回放中断", d.Error)
	assert.NotNil(t, d.FailedAt)
	assert.Nil(t, d.CompletedAt)
}

func TestRunStateParallelWeighted(t *testing.T) {
	plan := parallelPlan(1, 3)
	st := newRunState(plan)

	st.setUnitRunning(plan.Units[0])
	st.setUnitRunning(plan.Units[1])
	st.setUnitProgress(plan.Units[0], 1.0, 2)
	st.setUnitProgress(plan.Units[1], 0.5, 1)

	rec := st.snapshot()
	// (1.0×1 + 0.5×3) / 4
	assert.InDelta(t, 0.625, rec.Progress.OverallProgress, 1e-9)
	assert.Equal(t, 2, *rec.Progress.RunningGroups)
	assert.Equal(t, 0, *rec.Progress.CompletedGroups)

	st.setUnitTerminal(plan.Units[0], model.UnitStatusCompleted, "")
	rec = st.snapshot()
	assert.Equal(t, 1, *rec.Progress.CompletedGroups)
	assert.Equal(t, 1, *rec.Progress.RunningGroups)
}

func TestRunStateTerminalTimestamps(t *testing.T) {
	st := newRunState(sequentialPlan(1))

	st.setRunStatus(model.ExecutionStatusRunning, "")
	rec := st.snapshot()
	require.NotNil(t, rec.Timestamps.StartedAt)
	started := rec.Timestamps.StartedAt

	// 重复进入运行态不覆盖开始时间
	st.setRunStatus(model.ExecutionStatusRunning, "")
	assert.Equal(t, started, st.snapshot().Timestamps.StartedAt)

	st.setRunStatus(model.ExecutionStatusStopped, "用户停止")
	rec = st.snapshot()
	assert.Equal(t, model.ExecutionStatusStopped, rec.Status)
	assert.Equal(t, "用户停止", rec.Message)
	assert.NotNil(t, rec.Timestamps.StoppedAt)
	assert.Nil(t, rec.Timestamps.CompletedAt)
}

func TestRunStateSnapshotIsolation(t *testing.T) {
	plan := sequentialPlan(2)
	st := newRunState(plan)

	snap := st.snapshot()
	st.setUnitRunning(plan.Units[0])
	st.setUnitProgress(plan.Units[0], 0.9, 1)

	// 快照不随后续变更改变
	assert.Equal(t, model.UnitStatusPending, snap.StepDetails[0].Status)
	assert.Equal(t, 0.0, snap.StepDetails[0].Progress)
}
