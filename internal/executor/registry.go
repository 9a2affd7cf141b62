package executor

import (
	"context"
	"sync"

	"robosim/backend/internal/types"
)

// ActiveRun 一次运行中执行的注册信息
type ActiveRun struct {
	SimulationID uint
	ExecutionID  uint
	SessionID    string

	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

// Done 执行排空后关闭
func (r *ActiveRun) Done() <-chan struct{} {
	return r.done
}

// RunRegistry 运行中执行的注册表，每个仿真最多一个
type RunRegistry struct {
	mu   sync.Mutex
	runs map[uint]*ActiveRun
}

// NewRunRegistry 创建注册表
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[uint]*ActiveRun)}
}

// Register 注册新执行，已存在运行中的执行时返回冲突
// 返回的context不挂在HTTP请求上，执行生命周期独立于请求
func (r *RunRegistry) Register(simulationID, executionID uint, sessionID string) (context.Context, *ActiveRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[simulationID]; ok {
		return nil, nil, types.ErrRunConflict
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &ActiveRun{
		SimulationID: simulationID,
		ExecutionID:  executionID,
		SessionID:    sessionID,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	r.runs[simulationID] = run
	return ctx, run, nil
}

// RequestStop 请求停止执行
// 不在运行中返回 ErrNotRunning，重复停止返回 ErrStopping
func (r *RunRegistry) RequestStop(simulationID uint) (*ActiveRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[simulationID]
	if !ok {
		return nil, types.ErrNotRunning
	}
	if run.stopping {
		return nil, types.ErrStopping
	}
	run.stopping = true
	run.cancel()
	return run, nil
}

// IsRunning 判断仿真是否有运行中的执行
func (r *RunRegistry) IsRunning(simulationID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[simulationID]
	return ok
}

// Count 当前运行中的执行数
func (r *RunRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// finish 执行排空后注销，由引擎在收尾时调用
func (r *RunRegistry) finish(simulationID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[simulationID]
	if !ok {
		return
	}
	run.cancel()
	close(run.done)
	delete(r.runs, simulationID)
}
