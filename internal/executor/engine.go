package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"robosim/backend/common/logger"
	"robosim/backend/common/utils"
	"robosim/backend/internal/client"
	"robosim/backend/internal/model"
	"robosim/backend/internal/statesync"
	"robosim/backend/internal/types"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// RunPlan 一次执行的完整计划，由编排层装配
type RunPlan struct {
	Simulation *model.Simulation
	Execution  *model.SimulationExecution
	Units      []Unit
	Bags       map[uint]string // templateID -> 对象存储key
	BagURLs    map[uint]string // templateID -> 预签名下载地址
	Namespace  string
	SessionID  string
}

// Engine 仿真执行引擎
type Engine struct {
	pods     client.PodClient
	agents   client.AgentClient
	sync     *statesync.Sync
	registry *RunRegistry

	pollInterval time.Duration
	startTimeout time.Duration
}

// NewEngine 创建执行引擎
func NewEngine(pods client.PodClient, agents client.AgentClient, sync *statesync.Sync,
	registry *RunRegistry, pollInterval, startTimeout time.Duration) *Engine {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if startTimeout <= 0 {
		startTimeout = 2 * time.Minute
	}
	return &Engine{
		pods:         pods,
		agents:       agents,
		sync:         sync,
		registry:     registry,
		pollInterval: pollInterval,
		startTimeout: startTimeout,
	}
}

// Registry 返回运行注册表
func (e *Engine) Registry() *RunRegistry {
	return e.registry
}

// Seed 生成执行的初始状态文档，启动前写入实时存储用
func (e *Engine) Seed(plan *RunPlan) *statesync.RunRecord {
	return newRunState(plan).snapshot()
}

// Launch 注册并在后台启动执行，注册冲突时返回错误
func (e *Engine) Launch(plan *RunPlan) (*ActiveRun, error) {
	ctx, run, err := e.registry.Register(plan.Simulation.ID, plan.Execution.ID, plan.SessionID)
	if err != nil {
		return nil, err
	}

	utils.SafeGoWithName(fmt.Sprintf("run-%d", plan.Simulation.ID), func() {
		defer e.registry.finish(plan.Simulation.ID)
		e.run(ctx, plan)
	})
	return run, nil
}

// run 执行主流程，ctx取消即停止请求
// 状态落库不使用ctx：停止后收尾写入仍要成功
func (e *Engine) run(ctx context.Context, plan *RunPlan) {
	simID := plan.Simulation.ID
	logger.Info("执行开始",
		zap.Uint("simulation_id", simID),
		zap.Uint("execution_id", plan.Execution.ID),
		zap.String("session_id", plan.SessionID),
		zap.String("pattern", plan.Simulation.PatternType))

	st := newRunState(plan)
	st.setRunStatus(model.ExecutionStatusRunning, "")
	if err := e.sync.RunRunning(context.Background(), st.snapshot()); err != nil {
		logger.Error("执行状态落库失败", zap.Uint("simulation_id", simID), zap.Error(err))
		st.setRunStatus(model.ExecutionStatusFailed, "执行状态落库失败: "+err.Error())
		e.finish(st)
		return
	}

	var status, message string
	switch plan.Simulation.PatternType {
	case model.PatternSequential:
		status, message = e.runSequential(ctx, plan, st)
	case model.PatternParallel:
		status, message = e.runParallel(ctx, plan, st)
	default:
		status = model.ExecutionStatusFailed
		message = "未知的执行模式: " + plan.Simulation.PatternType
	}

	st.setRunStatus(status, message)
	e.finish(st)
	logger.Info("执行结束",
		zap.Uint("simulation_id", simID),
		zap.Uint("execution_id", plan.Execution.ID),
		zap.String("status", status),
		zap.String("message", message))
}

// finish 终态落库，状态文档快照存入result_summary
func (e *Engine) finish(st *runState) {
	snap := st.snapshot()
	summary, err := sonic.MarshalString(snap)
	if err != nil {
		logger.Warn("序列化执行结果快照失败",
			zap.Uint("simulation_id", snap.SimulationID), zap.Error(err))
		summary = ""
	}
	if err := e.sync.RunFinished(context.Background(), snap, summary); err != nil {
		logger.Error("执行终态落库失败",
			zap.Uint("simulation_id", snap.SimulationID),
			zap.Uint("execution_id", snap.ExecutionID),
			zap.Error(err))
	}
}

// unitOutcome 执行单元结果
type unitOutcome struct {
	status string // COMPLETED / FAILED / STOPPED
	err    error
}

// runUnit 执行一个单元：等待Pod就绪、下发回放、轮询到终态
func (e *Engine) runUnit(ctx context.Context, plan *RunPlan, st *runState, u Unit) unitOutcome {
	label := u.Label()
	bag := plan.Bags[u.TemplateID()]

	st.setUnitRunning(u)
	if err := e.sync.UnitStatus(context.Background(), st.snapshot(), u.OwnerKind(), u.ID(), model.UnitStatusRunning); err != nil {
		return e.failUnit(st, u, types.NewAppErrorWithCause(types.ErrCodeInternal, label+" 状态落库失败", err))
	}

	pods, err := e.waitForPods(ctx, plan.Namespace, u)
	if err != nil {
		if ctx.Err() != nil {
			return e.stopUnit(st, u, nil)
		}
		return e.failUnit(st, u, err)
	}

	playReq := &client.PlayRequest{
		ObjectPath:        bag,
		ObjectURL:         plan.BagURLs[u.TemplateID()],
		MaxLoops:          u.RepeatBudget(),
		ExecutionDuration: u.ExecutionDurationSec(),
	}
	if err := e.startPlayback(ctx, pods, playReq); err != nil {
		e.stopPods(pods)
		if ctx.Err() != nil {
			return e.stopUnit(st, u, pods)
		}
		return e.failUnit(st, u,
			types.NewAppErrorWithCause(types.ErrCodeUnitStart, label+" 回放启动失败", err))
	}

	watch := newUnitWatch(pods)
	unitCtx, cancelUnit := context.WithCancel(context.Background())
	defer cancelUnit()
	for i := range watch.pods {
		watch.wg.Add(1)
		go e.watchPod(unitCtx, watch, i)
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stopPods(pods)
			cancelUnit()
			watch.wg.Wait()
			return e.stopUnit(st, u, nil)
		case <-ticker.C:
			progresses, loops, failedMsg, allDone := watch.aggregate()
			st.setUnitProgress(u, MeanProgress(progresses), RepeatCounter(loops, u.RepeatBudget()))
			e.sync.Heartbeat(context.Background(), st.snapshot())

			if failedMsg != "" {
				e.stopPods(pods)
				cancelUnit()
				watch.wg.Wait()
				return e.failUnit(st, u,
					types.NewAppErrorWithDetails(types.ErrCodeUnitExecution, label+" 执行失败", failedMsg))
			}
			if allDone {
				cancelUnit()
				watch.wg.Wait()
				st.setUnitTerminal(u, model.UnitStatusCompleted, "")
				if err := e.sync.UnitStatus(context.Background(), st.snapshot(), u.OwnerKind(), u.ID(), model.UnitStatusCompleted); err != nil {
					logger.Error("单元终态落库失败", zap.String("unit", label), zap.Error(err))
				}
				return unitOutcome{status: model.UnitStatusCompleted}
			}
		}
	}
}

func (e *Engine) failUnit(st *runState, u Unit, cause error) unitOutcome {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	st.setUnitTerminal(u, model.UnitStatusFailed, msg)
	if err := e.sync.UnitStatus(context.Background(), st.snapshot(), u.OwnerKind(), u.ID(), model.UnitStatusFailed); err != nil {
		logger.Error("单元终态落库失败", zap.String("unit", u.Label()), zap.Error(err))
	}
	return unitOutcome{status: model.UnitStatusFailed, err: cause}
}

func (e *Engine) stopUnit(st *runState, u Unit, pods []podTarget) unitOutcome {
	if pods != nil {
		e.stopPods(pods)
	}
	st.setUnitTerminal(u, model.UnitStatusStopped, "")
	if err := e.sync.UnitStatus(context.Background(), st.snapshot(), u.OwnerKind(), u.ID(), model.UnitStatusStopped); err != nil {
		logger.Error("单元终态落库失败", zap.String("unit", u.Label()), zap.Error(err))
	}
	return unitOutcome{status: model.UnitStatusStopped}
}

// podTarget 可访问的代理Pod
type podTarget struct {
	name    string
	baseURL string
}

// waitForPods 等待单元的全部Pod就绪并拿到地址
func (e *Engine) waitForPods(ctx context.Context, namespace string, u Unit) ([]podTarget, error) {
	filter := client.PodFilter{OwnerKind: u.OwnerKind(), OwnerID: u.ID()}
	want := u.AgentCount()
	deadline := time.Now().Add(e.startTimeout)

	for {
		infos, err := e.pods.ListPods(ctx, namespace, filter)
		if err == nil {
			ready := make([]podTarget, 0, len(infos))
			for _, info := range infos {
				if info.Phase == client.PodRunning && info.IP != "" {
					ready = append(ready, podTarget{name: info.Name, baseURL: e.agents.AgentBaseURL(info.IP)})
				}
			}
			if len(ready) >= want && want > 0 {
				return ready, nil
			}
		} else {
			logger.Warn("Pod列表查询失败", zap.String("unit", u.Label()), zap.Error(err))
		}

		if time.Now().After(deadline) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeUnitStart,
				u.Label()+" Pod未就绪",
				fmt.Sprintf("等待 %d 个Pod就绪超时", want))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}

// startPlayback 并发向所有Pod下发回放，任一失败整体失败
func (e *Engine) startPlayback(ctx context.Context, pods []podTarget, req *client.PlayRequest) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(pods))
	for _, pod := range pods {
		wg.Add(1)
		go func(p podTarget) {
			defer wg.Done()
			if err := e.agents.Play(ctx, p.baseURL, req); err != nil {
				errs <- fmt.Errorf("%s: %w", p.name, err)
			}
		}(pod)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		return err
	}
	return nil
}

// stopPods 尽力停止所有Pod的回放，失败只告警
func (e *Engine) stopPods(pods []podTarget) {
	var wg sync.WaitGroup
	for _, pod := range pods {
		wg.Add(1)
		go func(p podTarget) {
			defer wg.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.agents.Stop(stopCtx, p.baseURL); err != nil {
				logger.Warn("回放停止失败", zap.String("pod", p.name), zap.Error(err))
			}
		}(pod)
	}
	wg.Wait()
}

// podState 单个Pod的观测状态
type podState struct {
	target   podTarget
	progress float64
	loop     int
	done     bool
	failed   bool
	errMsg   string
}

// unitWatch 单元内所有Pod的共享观测状态
type unitWatch struct {
	mu   sync.Mutex
	pods []*podState
	wg   sync.WaitGroup
}

func newUnitWatch(targets []podTarget) *unitWatch {
	w := &unitWatch{pods: make([]*podState, len(targets))}
	for i, t := range targets {
		w.pods[i] = &podState{target: t}
	}
	return w
}

// aggregate 汇总观测状态
// 返回各Pod进度、循环数、失败信息(空串表示无失败)、是否全部完成
func (w *unitWatch) aggregate() ([]float64, []int, string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	progresses := make([]float64, len(w.pods))
	loops := make([]int, len(w.pods))
	failedMsg := ""
	allDone := len(w.pods) > 0
	for i, p := range w.pods {
		progresses[i] = p.progress
		loops[i] = p.loop
		if p.failed && failedMsg == "" {
			failedMsg = fmt.Sprintf("%s: %s", p.target.name, p.errMsg)
		}
		if !p.done {
			allDone = false
		}
	}
	return progresses, loops, failedMsg, allDone
}

// watchPod 单Pod观测循环：按轮询间隔拉取回放状态
// 轮询出错保留最后一次成功的观测值，从不判失败
func (e *Engine) watchPod(ctx context.Context, w *unitWatch, idx int) {
	defer w.wg.Done()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	state := w.pods[idx]
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, e.pollInterval)
			status, err := e.agents.Status(pollCtx, state.target.baseURL)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("回放状态轮询失败",
					zap.String("pod", state.target.name), zap.Error(err))
				continue
			}

			w.mu.Lock()
			state.loop = status.CurrentLoop
			state.progress = PodProgress(status.CurrentLoop, status.MaxLoops, status.Completed())
			if status.Completed() {
				state.done = true
			}
			if status.Failed() {
				state.done = true
				state.failed = true
				state.errMsg = "回放失败(stopReason=failed)"
			}
			if !status.IsPlaying && status.StopReason == client.StopReasonStopped {
				state.done = true
			}
			terminal := state.done
			w.mu.Unlock()

			if terminal {
				return
			}
		}
	}
}
