package logic

import (
	"context"
	"testing"
	"time"

	"robosim/backend/common/config"
	"robosim/backend/internal/client"
	"robosim/backend/internal/executor"
	"robosim/backend/internal/model"
	"robosim/backend/internal/statesync"
	"robosim/backend/internal/svc"
	"robosim/backend/internal/types"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeBagStore 内存对象存储
type fakeBagStore struct {
	objects map[string]bool
}

func (f *fakeBagStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	return f.objects[objectPath], nil
}

func (f *fakeBagStore) PresignGet(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	return "http://minio.local/" + objectPath, nil
}

func (f *fakeBagStore) Delete(ctx context.Context, objectPath string) error {
	delete(f.objects, objectPath)
	return nil
}

// nopPodClient 无实际动作的Pod控制面
type nopPodClient struct {
	created []string
	deleted []string
}

func (n *nopPodClient) EnsureNamespace(ctx context.Context, name string) error  { return nil }
func (n *nopPodClient) DeleteNamespace(ctx context.Context, name string) error { return nil }
func (n *nopPodClient) CreatePod(ctx context.Context, spec *client.PodSpec) error {
	n.created = append(n.created, spec.Name)
	return nil
}
func (n *nopPodClient) DeletePod(ctx context.Context, namespace, name string) error {
	n.deleted = append(n.deleted, name)
	return nil
}
func (n *nopPodClient) GetPod(ctx context.Context, namespace, name string) (*client.PodInfo, error) {
	return nil, nil
}
func (n *nopPodClient) ListPods(ctx context.Context, namespace string, filter client.PodFilter) ([]client.PodInfo, error) {
	return nil, nil
}

// nopAgentClient 无实际动作的代理客户端
type nopAgentClient struct{}

func (nopAgentClient) AgentBaseURL(podIP string) string { return "http://" + podIP }
func (nopAgentClient) Play(ctx context.Context, baseURL string, req *client.PlayRequest) error {
	return nil
}
func (nopAgentClient) Stop(ctx context.Context, baseURL string) error { return nil }
func (nopAgentClient) Status(ctx context.Context, baseURL string) (*client.PlaybackStatus, error) {
	return &client.PlaybackStatus{IsPlaying: true}, nil
}

// nopLive 无实际动作的实时存储
type nopLive struct{}

func (nopLive) SaveRecord(ctx context.Context, rec *statesync.RunRecord) error { return nil }
func (nopLive) LoadRecord(ctx context.Context, simulationID uint) (*statesync.RunRecord, error) {
	return nil, nil
}
func (nopLive) LoadExecutionRecord(ctx context.Context, simulationID, executionID uint) (*statesync.RunRecord, error) {
	return nil, nil
}
func (nopLive) SaveDeletion(ctx context.Context, rec *statesync.DeletionRecord) error { return nil }
func (nopLive) LoadDeletion(ctx context.Context, simulationID uint) (*statesync.DeletionRecord, error) {
	return nil, nil
}
func (nopLive) ExpireRun(ctx context.Context, simulationID, executionID uint, ttl time.Duration) error {
	return nil
}
func (nopLive) Purge(ctx context.Context, simulationID uint) error { return nil }

// setupTestCtx 以内存库和伪造客户端初始化全局服务上下文
func setupTestCtx(t *testing.T) (*gorm.DB, *fakeBagStore, *nopPodClient) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := statesync.NewGormStore(db)
	require.NoError(t, store.AutoMigrate())

	bags := &fakeBagStore{objects: make(map[string]bool)}
	pods := &nopPodClient{}
	live := nopLive{}
	stateSync := statesync.NewSync(store, live, time.Hour)

	svc.Init(&svc.ServiceContext{
		Config: &config.Config{
			PodControl: config.PodControlConfig{AgentImage: "robosim/rosbag-agent:latest"},
			Executor:   config.ExecutorConfig{StopGraceSeconds: 1},
		},
		DB:     db,
		Redis:  nil,
		Pods:   pods,
		Agents: nopAgentClient{},
		Bags:   bags,
		Sync:   stateSync,
		View:   statesync.NewView(live, store),
		Engine: executor.NewEngine(pods, nopAgentClient{}, stateSync,
			executor.NewRunRegistry(), 10*time.Millisecond, 100*time.Millisecond),
	})
	return db, bags, pods
}

func createSequentialSim(t *testing.T, db *gorm.DB, stepOrders ...int) *model.Simulation {
	t.Helper()
	sim := &model.Simulation{
		Name:        "sim",
		PatternType: model.PatternSequential,
		Status:      model.SimulationStatusPending,
	}
	require.NoError(t, db.Create(sim).Error)
	for _, order := range stepOrders {
		require.NoError(t, db.Create(&model.SimulationStep{
			SimulationID: sim.ID, StepOrder: order, TemplateID: 1,
			RepeatCount: 1, AgentCount: 1,
		}).Error)
	}
	return sim
}

func TestBuildUnits(t *testing.T) {
	sim := &model.Simulation{PatternType: model.PatternSequential}

	// 空计划
	_, err := buildUnits(sim)
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))

	// 编号不连续
	sim.Steps = []model.SimulationStep{
		{StepOrder: 1, AgentCount: 1},
		{StepOrder: 3, AgentCount: 1},
	}
	_, err = buildUnits(sim)
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))

	// 代理数非法
	sim.Steps = []model.SimulationStep{{StepOrder: 1, AgentCount: 0}}
	_, err = buildUnits(sim)
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))

	// 合法计划
	sim.Steps = []model.SimulationStep{
		{StepOrder: 1, AgentCount: 1},
		{StepOrder: 2, AgentCount: 2},
	}
	units, err := buildUnits(sim)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, executor.UnitStep, units[0].Kind)

	// 未知模式
	_, err = buildUnits(&model.Simulation{PatternType: "random"})
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))
}

func TestStartRunRejectsMissingBag(t *testing.T) {
	db, bags, _ := setupTestCtx(t)
	sim := createSequentialSim(t, db, 1)
	require.NoError(t, db.Create(&model.Template{
		Name: "tpl", BagObjectPath: "bags/missing.bag",
	}).Error)

	l := NewExecutionLogic(context.Background())
	_, err := l.StartRun(sim.ID)
	assert.Equal(t, types.ErrCodeBagObjectMissing, types.GetErrorCode(err))

	// 对象就位后不再因包缺失被拒
	bags.objects["bags/missing.bag"] = true
	_, err = l.StartRun(sim.ID)
	assert.NotEqual(t, types.ErrCodeBagObjectMissing, types.GetErrorCode(err))
}

func TestStartRunConflict(t *testing.T) {
	db, _, _ := setupTestCtx(t)
	sim := createSequentialSim(t, db, 1)

	// 数据库中已有未终态执行
	require.NoError(t, db.Create(&model.SimulationExecution{
		SimulationID: sim.ID, Status: model.ExecutionStatusRunning,
	}).Error)

	l := NewExecutionLogic(context.Background())
	_, err := l.StartRun(sim.ID)
	assert.Equal(t, types.ErrRunConflict, err)
}

func TestStartRunMissingSimulation(t *testing.T) {
	setupTestCtx(t)
	l := NewExecutionLogic(context.Background())
	_, err := l.StartRun(9999)
	assert.Equal(t, types.ErrSimulationNotFound, err)
}

func TestStopRunNotRunning(t *testing.T) {
	setupTestCtx(t)
	l := NewExecutionLogic(context.Background())
	assert.Equal(t, types.ErrNotRunning, l.StopRun(42))
}

func TestAddStepOrderRule(t *testing.T) {
	db, _, pods := setupTestCtx(t)
	sim := createSequentialSim(t, db, 1)
	require.NoError(t, db.Create(&model.Template{
		Name: "tpl", BagObjectPath: "bags/demo.bag",
	}).Error)

	l := NewPatternLogic(context.Background())

	// 跳号追加被拒
	_, err := l.AddStep(sim.ID, &AddStepReq{StepOrder: 3, TemplateID: 1})
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))

	// 紧接序列末尾可追加
	step, err := l.AddStep(sim.ID, &AddStepReq{StepOrder: 2, TemplateID: 1, AgentCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, step.StepOrder)

	// 每个代理一个实例Pod
	assert.Len(t, pods.created, 2)
	var instances []model.Instance
	require.NoError(t, db.Where("owner_id = ?", step.ID).Find(&instances).Error)
	require.Len(t, instances, 2)
	for _, inst := range instances {
		assert.Equal(t, model.PodName(sim.ID, inst.ID), inst.PodName)
	}

	// 模板不存在
	_, err = l.AddStep(sim.ID, &AddStepReq{StepOrder: 3, TemplateID: 99})
	assert.Equal(t, types.ErrTemplateNotFound, err)
}

func TestDeleteStepLastOnly(t *testing.T) {
	db, _, _ := setupTestCtx(t)
	sim := createSequentialSim(t, db, 1, 2, 3)

	l := NewPatternLogic(context.Background())

	// 只能删除末尾步骤
	err := l.DeleteStep(sim.ID, 2)
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))

	require.NoError(t, l.DeleteStep(sim.ID, 3))

	var count int64
	require.NoError(t, db.Model(&model.SimulationStep{}).
		Where("simulation_id = ?", sim.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestPatternMismatch(t *testing.T) {
	db, _, _ := setupTestCtx(t)
	sim := createSequentialSim(t, db, 1)

	l := NewPatternLogic(context.Background())

	// 顺序仿真不能添加分组
	_, err := l.AddGroup(sim.ID, &AddGroupReq{Name: "g", TemplateID: 1})
	assert.Equal(t, types.ErrCodeInvalidPlan, types.GetErrorCode(err))
}

func TestTemplateCreateValidatesBag(t *testing.T) {
	_, bags, _ := setupTestCtx(t)

	l := NewTemplateLogic(context.Background())

	_, err := l.Create(&CreateTemplateReq{Name: "tpl", BagObjectPath: "bags/none.bag"})
	assert.Equal(t, types.ErrCodeBagObjectMissing, types.GetErrorCode(err))

	bags.objects["bags/demo.bag"] = true
	tpl, err := l.Create(&CreateTemplateReq{
		Name:          "tpl",
		BagObjectPath: "bags/demo.bag",
		Topics:        []string{" /odom ", "/tf", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "/odom,/tf", tpl.Topics)
}

func TestResolveBagsPresignedURL(t *testing.T) {
	db, bags, _ := setupTestCtx(t)
	bags.objects["bags/demo.bag"] = true
	require.NoError(t, db.Create(&model.Template{
		Name: "tpl", BagObjectPath: "bags/demo.bag",
	}).Error)

	step := &model.SimulationStep{StepOrder: 1, TemplateID: 1, AgentCount: 1}
	l := NewExecutionLogic(context.Background())
	paths, urls, err := l.resolveBags([]executor.Unit{executor.StepUnit(step)})
	require.NoError(t, err)

	// 回放计划带对象key和预签名下载地址
	assert.Equal(t, "bags/demo.bag", paths[1])
	assert.Equal(t, "http://minio.local/bags/demo.bag", urls[1])
}

func TestTemplateDeleteCleansBagObject(t *testing.T) {
	_, bags, _ := setupTestCtx(t)
	bags.objects["bags/solo.bag"] = true
	bags.objects["bags/shared.bag"] = true

	l := NewTemplateLogic(context.Background())
	solo, err := l.Create(&CreateTemplateReq{Name: "solo", BagObjectPath: "bags/solo.bag"})
	require.NoError(t, err)
	shared1, err := l.Create(&CreateTemplateReq{Name: "shared-1", BagObjectPath: "bags/shared.bag"})
	require.NoError(t, err)
	_, err = l.Create(&CreateTemplateReq{Name: "shared-2", BagObjectPath: "bags/shared.bag"})
	require.NoError(t, err)

	// 独占的对象随模板删除
	require.NoError(t, l.Delete(solo.ID))
	assert.False(t, bags.objects["bags/solo.bag"])

	// 仍被其他模板共用的对象保留
	require.NoError(t, l.Delete(shared1.ID))
	assert.True(t, bags.objects["bags/shared.bag"])
}

func TestTemplateDeleteRejectsReferenced(t *testing.T) {
	db, bags, _ := setupTestCtx(t)
	bags.objects["bags/demo.bag"] = true

	l := NewTemplateLogic(context.Background())
	tpl, err := l.Create(&CreateTemplateReq{Name: "tpl", BagObjectPath: "bags/demo.bag"})
	require.NoError(t, err)

	sim := createSequentialSim(t, db)
	require.NoError(t, db.Create(&model.SimulationStep{
		SimulationID: sim.ID, StepOrder: 1, TemplateID: tpl.ID, AgentCount: 1,
	}).Error)

	err = l.Delete(tpl.ID)
	assert.Equal(t, types.ErrCodeRunConflict, types.GetErrorCode(err))

	require.NoError(t, db.Where("template_id = ?", tpl.ID).
		Delete(&model.SimulationStep{}).Error)
	assert.NoError(t, l.Delete(tpl.ID))
}

func TestSimulationCreateValidation(t *testing.T) {
	setupTestCtx(t)
	l := NewSimulationLogic(context.Background())

	_, err := l.Create(&CreateSimulationReq{Name: "s", PatternType: "weird"})
	assert.Equal(t, types.ErrCodeInvalidParameter, types.GetErrorCode(err))

	sim, err := l.Create(&CreateSimulationReq{Name: "s", PatternType: model.PatternSequential})
	require.NoError(t, err)
	assert.Equal(t, model.SimulationStatusPending, sim.Status)
	assert.Equal(t, model.Namespace(sim.ID), sim.Namespace)

	// 非法时间格式
	_, err = l.Create(&CreateSimulationReq{
		Name: "s2", PatternType: model.PatternSequential,
		ScheduledStartTime: "not-a-time",
	})
	assert.Equal(t, types.ErrCodeInvalidParameter, types.GetErrorCode(err))
}
