package logic

import (
	"context"
	"fmt"
	"time"

	"robosim/backend/common/logger"
	"robosim/backend/internal/executor"
	"robosim/backend/internal/model"
	"robosim/backend/internal/statesync"
	"robosim/backend/internal/svc"
	"robosim/backend/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExecutionLogic 执行编排逻辑
type ExecutionLogic struct {
	ctx context.Context
}

// NewExecutionLogic 创建执行编排逻辑
func NewExecutionLogic(ctx context.Context) *ExecutionLogic {
	return &ExecutionLogic{ctx: ctx}
}

// StartRun 启动一次执行
// 校验计划、检查冲突、创建执行记录并在后台启动引擎
func (l *ExecutionLogic) StartRun(simulationID uint) (*model.SimulationExecution, error) {
	store := svc.Ctx.Sync.Durable()

	sim, _, err := store.LoadPlan(l.ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if sim.Status == model.SimulationStatusDeleting || sim.Status == model.SimulationStatusDeleted {
		return nil, types.NewAppError(types.ErrCodeInvalidPlan, "仿真已删除或删除中")
	}

	// 冲突检查：注册表 + 数据库中的未终态执行
	if svc.Ctx.Engine.Registry().IsRunning(simulationID) {
		return nil, types.ErrRunConflict
	}
	active, err := store.HasActiveExecution(l.ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, types.ErrRunConflict
	}

	units, err := buildUnits(sim)
	if err != nil {
		return nil, err
	}

	bags, bagURLs, err := l.resolveBags(units)
	if err != nil {
		return nil, err
	}

	namespace := sim.Namespace
	if namespace == "" {
		namespace = model.Namespace(simulationID)
	}

	exec := &model.SimulationExecution{
		SimulationID: simulationID,
		SessionID:    uuid.NewString(),
		PatternType:  sim.PatternType,
		Status:       model.ExecutionStatusPending,
	}
	if err := store.CreateExecution(l.ctx, exec); err != nil {
		return nil, err
	}

	plan := &executor.RunPlan{
		Simulation: sim,
		Execution:  exec,
		Units:      units,
		Bags:       bags,
		BagURLs:    bagURLs,
		Namespace:  namespace,
		SessionID:  exec.SessionID,
	}

	svc.Ctx.Sync.RunSeeded(l.ctx, svc.Ctx.Engine.Seed(plan))

	if _, err := svc.Ctx.Engine.Launch(plan); err != nil {
		finishErr := store.FinishRun(l.ctx, simulationID, exec.ID,
			model.ExecutionStatusFailed, "执行启动失败: "+err.Error(), "")
		if finishErr != nil {
			logger.Error("执行启动失败后落库失败",
				zap.Uint("simulation_id", simulationID), zap.Error(finishErr))
		}
		return nil, err
	}

	logger.Info("执行已启动",
		zap.Uint("simulation_id", simulationID),
		zap.Uint("execution_id", exec.ID),
		zap.String("session_id", exec.SessionID))
	return exec, nil
}

// buildUnits 由仿真计划构造执行单元并校验
func buildUnits(sim *model.Simulation) ([]executor.Unit, error) {
	switch sim.PatternType {
	case model.PatternSequential:
		if len(sim.Steps) == 0 {
			return nil, types.NewAppError(types.ErrCodeInvalidPlan, "顺序仿真没有任何步骤")
		}
		units := make([]executor.Unit, 0, len(sim.Steps))
		for i := range sim.Steps {
			step := &sim.Steps[i]
			if step.StepOrder != i+1 {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidPlan,
					"步骤编号不连续",
					fmt.Sprintf("期望 %d，实际 %d", i+1, step.StepOrder))
			}
			if step.AgentCount < 1 {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidPlan,
					"步骤没有代理实例", fmt.Sprintf("step %d", step.StepOrder))
			}
			units = append(units, executor.StepUnit(step))
		}
		return units, nil
	case model.PatternParallel:
		if len(sim.Groups) == 0 {
			return nil, types.NewAppError(types.ErrCodeInvalidPlan, "并行仿真没有任何分组")
		}
		units := make([]executor.Unit, 0, len(sim.Groups))
		for i := range sim.Groups {
			group := &sim.Groups[i]
			if group.AgentCount < 1 {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidPlan,
					"分组没有代理实例", group.Name)
			}
			units = append(units, executor.GroupUnit(group))
		}
		return units, nil
	}
	return nil, types.NewAppError(types.ErrCodeInvalidPlan, "未知的执行模式: "+sim.PatternType)
}

// bagPresignTTL 预签名下载地址有效期，覆盖代理拉包的整个启动窗口
const bagPresignTTL = time.Hour

// resolveBags 解析各单元模板的rosbag对象，校验其存在并生成预签名下载地址
func (l *ExecutionLogic) resolveBags(units []executor.Unit) (map[uint]string, map[uint]string, error) {
	bags := make(map[uint]string)
	bagURLs := make(map[uint]string)
	for _, u := range units {
		tid := u.TemplateID()
		if _, ok := bags[tid]; ok {
			continue
		}
		var tpl model.Template
		if err := svc.Ctx.DB.WithContext(l.ctx).First(&tpl, tid).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, nil, types.NewAppErrorWithDetails(types.ErrCodeTemplateNotFound,
					"模板不存在", fmt.Sprintf("template %d (%s)", tid, u.Label()))
			}
			return nil, nil, err
		}
		exists, err := svc.Ctx.Bags.Exists(l.ctx, tpl.BagObjectPath)
		if err != nil {
			return nil, nil, types.NewAppErrorWithCause(types.ErrCodeObjectStore, "对象存储检查失败", err)
		}
		if !exists {
			return nil, nil, types.NewAppErrorWithDetails(types.ErrCodeBagObjectMissing,
				"rosbag对象不存在", tpl.BagObjectPath)
		}
		url, err := svc.Ctx.Bags.PresignGet(l.ctx, tpl.BagObjectPath, bagPresignTTL)
		if err != nil {
			return nil, nil, types.NewAppErrorWithCause(types.ErrCodeObjectStore, "生成下载地址失败", err)
		}
		bags[tid] = tpl.BagObjectPath
		bagURLs[tid] = url
	}
	return bags, bagURLs, nil
}

// StopRun 停止运行中的执行，排空等待超限时强制标记失败
func (l *ExecutionLogic) StopRun(simulationID uint) error {
	run, err := svc.Ctx.Engine.Registry().RequestStop(simulationID)
	if err != nil {
		return err
	}

	grace := time.Duration(svc.Ctx.Config.Executor.StopGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 2 * time.Minute
	}

	select {
	case <-run.Done():
		logger.Info("执行已停止", zap.Uint("simulation_id", simulationID))
		return nil
	case <-time.After(grace):
		logger.Error("停止排空超时，强制标记失败",
			zap.Uint("simulation_id", simulationID),
			zap.Uint("execution_id", run.ExecutionID),
			zap.Duration("grace", grace))
		if err := svc.Ctx.Sync.Durable().FinishRun(context.Background(), simulationID, run.ExecutionID,
			model.ExecutionStatusFailed, types.ErrStopTimeout.Message, ""); err != nil {
			logger.Error("超时终态落库失败",
				zap.Uint("simulation_id", simulationID), zap.Error(err))
		}
		return types.ErrStopTimeout
	}
}

// CurrentStatus 查询仿真当前执行状态
func (l *ExecutionLogic) CurrentStatus(simulationID uint) (*statesync.RunRecord, error) {
	rec, err := svc.Ctx.View.CurrentStatus(l.ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.ErrExecutionNotFound
	}
	return rec, nil
}

// History 分页查询仿真的执行历史
func (l *ExecutionLogic) History(simulationID uint, page, pageSize int) ([]model.SimulationExecution, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := svc.Ctx.DB.WithContext(l.ctx).Model(&model.SimulationExecution{}).
		Where("simulation_id = ?", simulationID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var execs []model.SimulationExecution
	err := db.Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&execs).Error
	return execs, total, err
}
