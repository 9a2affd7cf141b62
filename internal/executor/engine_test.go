package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"robosim/backend/internal/client"
	"robosim/backend/internal/model"
	"robosim/backend/internal/statesync"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeLiveStore 内存实时存储
type fakeLiveStore struct {
	mu      sync.Mutex
	records map[uint]*statesync.RunRecord
	expired map[uint]time.Duration
}

func newFakeLiveStore() *fakeLiveStore {
	return &fakeLiveStore{
		records: make(map[uint]*statesync.RunRecord),
		expired: make(map[uint]time.Duration),
	}
}

func (f *fakeLiveStore) SaveRecord(ctx context.Context, rec *statesync.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.SimulationID] = rec
	return nil
}

func (f *fakeLiveStore) LoadRecord(ctx context.Context, simulationID uint) (*statesync.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[simulationID], nil
}

func (f *fakeLiveStore) LoadExecutionRecord(ctx context.Context, simulationID, executionID uint) (*statesync.RunRecord, error) {
	return f.LoadRecord(ctx, simulationID)
}

func (f *fakeLiveStore) SaveDeletion(ctx context.Context, rec *statesync.DeletionRecord) error {
	return nil
}

func (f *fakeLiveStore) LoadDeletion(ctx context.Context, simulationID uint) (*statesync.DeletionRecord, error) {
	return nil, nil
}

func (f *fakeLiveStore) ExpireRun(ctx context.Context, simulationID, executionID uint, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired[simulationID] = ttl
	return nil
}

func (f *fakeLiveStore) Purge(ctx context.Context, simulationID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, simulationID)
	return nil
}

// fakePodClient 所有Pod立即就绪
type fakePodClient struct {
	mu      sync.Mutex
	pods    map[string][]client.PodInfo // "kind/id" -> pods
	listErr error
}

func newFakePodClient() *fakePodClient {
	return &fakePodClient{pods: make(map[string][]client.PodInfo)}
}

func ownerKey(kind string, id uint) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (f *fakePodClient) addPods(kind string, id uint, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < count; i++ {
		f.pods[ownerKey(kind, id)] = append(f.pods[ownerKey(kind, id)], client.PodInfo{
			Name:  fmt.Sprintf("pod-%s-%d-%d", kind, id, i),
			IP:    fmt.Sprintf("10.0.%d.%d", id, i),
			Phase: client.PodRunning,
		})
	}
}

func (f *fakePodClient) EnsureNamespace(ctx context.Context, name string) error { return nil }
func (f *fakePodClient) DeleteNamespace(ctx context.Context, name string) error { return nil }
func (f *fakePodClient) CreatePod(ctx context.Context, spec *client.PodSpec) error { return nil }
func (f *fakePodClient) DeletePod(ctx context.Context, namespace, name string) error { return nil }
func (f *fakePodClient) GetPod(ctx context.Context, namespace, name string) (*client.PodInfo, error) {
	return nil, nil
}

func (f *fakePodClient) ListPods(ctx context.Context, namespace string, filter client.PodFilter) ([]client.PodInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pods[ownerKey(filter.OwnerKind, filter.OwnerID)], nil
}

// fakeAgentClient 按baseURL返回脚本化的回放状态
type fakeAgentClient struct {
	mu       sync.Mutex
	statuses map[string]*client.PlaybackStatus // baseURL -> 当前状态
	statErr  map[string]error
	playErr  error
	plays    map[string]int
	stops    map[string]int
	played   chan string
}

func newFakeAgentClient() *fakeAgentClient {
	return &fakeAgentClient{
		statuses: make(map[string]*client.PlaybackStatus),
		statErr:  make(map[string]error),
		plays:    make(map[string]int),
		stops:    make(map[string]int),
		played:   make(chan string, 64),
	}
}

func (f *fakeAgentClient) AgentBaseURL(podIP string) string {
	return "http://" + podIP + ":9100"
}

func (f *fakeAgentClient) setStatus(baseURL string, s client.PlaybackStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[baseURL] = &s
}

func (f *fakeAgentClient) Play(ctx context.Context, baseURL string, req *client.PlayRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.plays[baseURL]++
	select {
	case f.played <- baseURL:
	default:
	}
	return nil
}

func (f *fakeAgentClient) Stop(ctx context.Context, baseURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops[baseURL]++
	return nil
}

func (f *fakeAgentClient) Status(ctx context.Context, baseURL string) (*client.PlaybackStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statErr[baseURL]; err != nil {
		return nil, err
	}
	s, ok := f.statuses[baseURL]
	if !ok {
		return &client.PlaybackStatus{IsPlaying: true}, nil
	}
	c := *s
	return &c, nil
}

func (f *fakeAgentClient) stopCount(baseURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops[baseURL]
}

// engineFixture 引擎测试环境：内存库 + 伪造的Pod/代理客户端
type engineFixture struct {
	db     *gorm.DB
	store  *statesync.GormStore
	live   *fakeLiveStore
	pods   *fakePodClient
	agents *fakeAgentClient
	engine *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := statesync.NewGormStore(db)
	require.NoError(t, store.AutoMigrate())

	live := newFakeLiveStore()
	pods := newFakePodClient()
	agents := newFakeAgentClient()
	sync := statesync.NewSync(store, live, time.Hour)
	engine := NewEngine(pods, agents, sync, NewRunRegistry(),
		10*time.Millisecond, 500*time.Millisecond)

	return &engineFixture{db: db, store: store, live: live, pods: pods, agents: agents, engine: engine}
}

// seedSequential 落库一个顺序仿真及其执行记录，每步一个就绪Pod
func (f *engineFixture) seedSequential(t *testing.T, stepCount int) *RunPlan {
	t.Helper()
	sim := &model.Simulation{
		Name:        "seq-sim",
		PatternType: model.PatternSequential,
		Status:      model.SimulationStatusPending,
	}
	require.NoError(t, f.db.Create(sim).Error)
	sim.Namespace = model.Namespace(sim.ID)

	plan := &RunPlan{
		Simulation: sim,
		SessionID:  "session-seq",
		Namespace:  sim.Namespace,
		Bags:       map[uint]string{1: "bags/demo.bag"},
	}
	for i := 1; i <= stepCount; i++ {
		step := &model.SimulationStep{
			SimulationID: sim.ID,
			StepOrder:    i,
			TemplateID:   1,
			RepeatCount:  2,
			AgentCount:   1,
		}
		require.NoError(t, f.db.Create(step).Error)
		f.pods.addPods(model.InstanceOwnerStep, step.ID, 1)
		plan.Units = append(plan.Units, StepUnit(step))
	}

	exec := &model.SimulationExecution{
		SimulationID: sim.ID,
		SessionID:    plan.SessionID,
		PatternType:  sim.PatternType,
		Status:       model.ExecutionStatusPending,
	}
	require.NoError(t, f.db.Create(exec).Error)
	plan.Execution = exec
	return plan
}

// seedParallel 落库一个并行仿真，每组一个就绪Pod
func (f *engineFixture) seedParallel(t *testing.T, groupCount int) *RunPlan {
	t.Helper()
	sim := &model.Simulation{
		Name:        "par-sim",
		PatternType: model.PatternParallel,
		Status:      model.SimulationStatusPending,
	}
	require.NoError(t, f.db.Create(sim).Error)
	sim.Namespace = model.Namespace(sim.ID)

	plan := &RunPlan{
		Simulation: sim,
		SessionID:  "session-par",
		Namespace:  sim.Namespace,
		Bags:       map[uint]string{1: "bags/demo.bag"},
	}
	for i := 0; i < groupCount; i++ {
		group := &model.SimulationGroup{
			SimulationID: sim.ID,
			Name:         fmt.Sprintf("group-%d", i+1),
			TemplateID:   1,
			RepeatCount:  2,
			AgentCount:   1,
		}
		require.NoError(t, f.db.Create(group).Error)
		f.pods.addPods(model.InstanceOwnerGroup, group.ID, 1)
		plan.Units = append(plan.Units, GroupUnit(group))
	}

	exec := &model.SimulationExecution{
		SimulationID: sim.ID,
		SessionID:    plan.SessionID,
		PatternType:  sim.PatternType,
		Status:       model.ExecutionStatusPending,
	}
	require.NoError(t, f.db.Create(exec).Error)
	plan.Execution = exec
	return plan
}

func (f *engineFixture) podBaseURL(kind string, id uint, idx int) string {
	return f.agents.AgentBaseURL(fmt.Sprintf("10.0.%d.%d", id, idx))
}

func (f *engineFixture) waitDone(t *testing.T, run *ActiveRun) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("执行超时未排空")
	}
}

func TestEngineSequentialCompletes(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedSequential(t, 2)

	// 两步的代理都直接上报完成
	for _, u := range plan.Units {
		f.agents.setStatus(f.podBaseURL(model.InstanceOwnerStep, u.Step.ID, 0),
			client.PlaybackStatus{IsPlaying: false, CurrentLoop: 2, MaxLoops: 2, StopReason: client.StopReasonCompleted})
	}

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)
	f.waitDone(t, run)

	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusCompleted, exec.Status)
	assert.NotEmpty(t, exec.ResultSummary)
	assert.True(t, exec.StartedAt.Valid)
	assert.True(t, exec.FinishedAt.Valid)

	var sim model.Simulation
	require.NoError(t, f.db.First(&sim, plan.Simulation.ID).Error)
	assert.Equal(t, model.SimulationStatusCompleted, sim.Status)

	var steps []model.SimulationStep
	require.NoError(t, f.db.Where("simulation_id = ?", sim.ID).Find(&steps).Error)
	for _, s := range steps {
		assert.Equal(t, model.UnitStatusCompleted, s.Status)
	}

	// 终态镜像：整体进度1.0并已设置TTL
	rec, err := f.live.LoadRecord(context.Background(), sim.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.ExecutionStatusCompleted, rec.Status)
	assert.Equal(t, 1.0, rec.Progress.OverallProgress)
	assert.Contains(t, f.live.expired, sim.ID)
	assert.False(t, f.engine.Registry().IsRunning(sim.ID))
}

func TestEngineSequentialFailFast(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedSequential(t, 2)

	// 第1步失败，第2步不应启动
	f.agents.setStatus(f.podBaseURL(model.InstanceOwnerStep, plan.Units[0].Step.ID, 0),
		client.PlaybackStatus{IsPlaying: false, CurrentLoop: 1, MaxLoops: 2, StopReason: client.StopReasonFailed})

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)
	f.waitDone(t, run)

	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Message, "step-1")

	var steps []model.SimulationStep
	require.NoError(t, f.db.Where("simulation_id = ?", plan.Simulation.ID).
		Order("step_order ASC").Find(&steps).Error)
	assert.Equal(t, model.UnitStatusFailed, steps[0].Status)
	assert.Equal(t, model.UnitStatusPending, steps[1].Status)

	// 第2步的代理从未收到回放指令
	assert.Zero(t, f.agents.plays[f.podBaseURL(model.InstanceOwnerStep, steps[1].ID, 0)])
}

func TestEngineStopMidRun(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedSequential(t, 1)

	url := f.podBaseURL(model.InstanceOwnerStep, plan.Units[0].Step.ID, 0)
	f.agents.setStatus(url, client.PlaybackStatus{IsPlaying: true, CurrentLoop: 1, MaxLoops: 2})

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)

	// 等到回放下发后再停止
	select {
	case <-f.agents.played:
	case <-time.After(2 * time.Second):
		t.Fatal("回放指令未下发")
	}
	_, err = f.engine.Registry().RequestStop(plan.Simulation.ID)
	require.NoError(t, err)
	f.waitDone(t, run)

	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusStopped, exec.Status)

	var sim model.Simulation
	require.NoError(t, f.db.First(&sim, plan.Simulation.ID).Error)
	assert.Equal(t, model.SimulationStatusStopped, sim.Status)

	// 停止时尽力通知代理停止回放
	assert.GreaterOrEqual(t, f.agents.stopCount(url), 1)
}

func TestEngineParallelIsolation(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedParallel(t, 2)

	// 第1组失败，第2组完成
	f.agents.setStatus(f.podBaseURL(model.InstanceOwnerGroup, plan.Units[0].Group.ID, 0),
		client.PlaybackStatus{IsPlaying: false, CurrentLoop: 0, MaxLoops: 2, StopReason: client.StopReasonFailed})
	f.agents.setStatus(f.podBaseURL(model.InstanceOwnerGroup, plan.Units[1].Group.ID, 0),
		client.PlaybackStatus{IsPlaying: false, CurrentLoop: 2, MaxLoops: 2, StopReason: client.StopReasonCompleted})

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)
	f.waitDone(t, run)

	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Message, "分组执行失败")

	// 单组失败不影响其他分组完成
	var groups []model.SimulationGroup
	require.NoError(t, f.db.Where("simulation_id = ?", plan.Simulation.ID).
		Order("id ASC").Find(&groups).Error)
	assert.Equal(t, model.UnitStatusFailed, groups[0].Status)
	assert.Equal(t, model.UnitStatusCompleted, groups[1].Status)
}

func TestEngineParallelStopAfterGroupFailure(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedParallel(t, 2)

	// 第1组失败，第2组保持回放
	url1 := f.podBaseURL(model.InstanceOwnerGroup, plan.Units[0].Group.ID, 0)
	url2 := f.podBaseURL(model.InstanceOwnerGroup, plan.Units[1].Group.ID, 0)
	f.agents.setStatus(url1,
		client.PlaybackStatus{IsPlaying: false, CurrentLoop: 0, MaxLoops: 2, StopReason: client.StopReasonFailed})
	f.agents.setStatus(url2,
		client.PlaybackStatus{IsPlaying: true, CurrentLoop: 1, MaxLoops: 2})

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)

	// 等第1组真正失败后再停止
	assert.Eventually(t, func() bool {
		var g model.SimulationGroup
		if err := f.db.First(&g, plan.Units[0].Group.ID).Error; err != nil {
			return false
		}
		return g.Status == model.UnitStatusFailed
	}, 2*time.Second, 20*time.Millisecond)

	_, err = f.engine.Registry().RequestStop(plan.Simulation.ID)
	require.NoError(t, err)
	f.waitDone(t, run)

	// 观察到停止信号时整体终态为STOPPED，而非FAILED
	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusStopped, exec.Status)

	// 已失败分组的结果保持不变，未完成分组记为STOPPED
	var groups []model.SimulationGroup
	require.NoError(t, f.db.Where("simulation_id = ?", plan.Simulation.ID).
		Order("id ASC").Find(&groups).Error)
	assert.Equal(t, model.UnitStatusFailed, groups[0].Status)
	assert.Equal(t, model.UnitStatusStopped, groups[1].Status)
}

func TestEnginePollErrorKeepsRunning(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedSequential(t, 1)
	step := plan.Units[0].Step
	step.AgentCount = 2

	f.pods.mu.Lock()
	f.pods.pods = make(map[string][]client.PodInfo)
	f.pods.mu.Unlock()
	f.pods.addPods(model.InstanceOwnerStep, step.ID, 2)

	// 第1个Pod的状态接口持续报错，第2个上报完成
	urlErr := f.podBaseURL(model.InstanceOwnerStep, step.ID, 0)
	urlOK := f.podBaseURL(model.InstanceOwnerStep, step.ID, 1)
	f.agents.statErr[urlErr] = errors.New("connection refused")
	f.agents.setStatus(urlOK,
		client.PlaybackStatus{IsPlaying: false, CurrentLoop: 2, MaxLoops: 2, StopReason: client.StopReasonCompleted})

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)

	// 轮询报错的Pod进度计为0.0，整体进度为两Pod均值且不判失败
	assert.Eventually(t, func() bool {
		rec, err := f.live.LoadRecord(context.Background(), plan.Simulation.ID)
		if err != nil || rec == nil {
			return false
		}
		return rec.Status == model.ExecutionStatusRunning && rec.Progress.OverallProgress == 0.5
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, f.engine.Registry().IsRunning(plan.Simulation.ID))

	// 仍可正常停止
	_, err = f.engine.Registry().RequestStop(plan.Simulation.ID)
	require.NoError(t, err)
	f.waitDone(t, run)

	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusStopped, exec.Status)
}

func TestEngineLaunchConflict(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedSequential(t, 1)

	url := f.podBaseURL(model.InstanceOwnerStep, plan.Units[0].Step.ID, 0)
	f.agents.setStatus(url, client.PlaybackStatus{IsPlaying: true, CurrentLoop: 0, MaxLoops: 2})

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)

	// 同一仿真重复启动冲突
	_, err = f.engine.Launch(plan)
	assert.Error(t, err)

	_, err = f.engine.Registry().RequestStop(plan.Simulation.ID)
	require.NoError(t, err)
	f.waitDone(t, run)
}

func TestEnginePodNotReadyFails(t *testing.T) {
	f := newEngineFixture(t)
	plan := f.seedSequential(t, 1)

	// 清空Pod列表：等待就绪超时后整体失败
	f.pods.mu.Lock()
	f.pods.pods = make(map[string][]client.PodInfo)
	f.pods.mu.Unlock()

	run, err := f.engine.Launch(plan)
	require.NoError(t, err)
	f.waitDone(t, run)

	var exec model.SimulationExecution
	require.NoError(t, f.db.First(&exec, plan.Execution.ID).Error)
	assert.Equal(t, model.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Message, "Pod未就绪")
}
