package logic

import (
	"context"
	"time"

	"robosim/backend/common/logger"
	commontypes "robosim/backend/common/types"
	"robosim/backend/internal/model"
	"robosim/backend/internal/statesync"
	"robosim/backend/internal/svc"
	"robosim/backend/internal/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SimulationLogic 仿真管理逻辑
type SimulationLogic struct {
	ctx context.Context
}

// NewSimulationLogic 创建仿真管理逻辑
func NewSimulationLogic(ctx context.Context) *SimulationLogic {
	return &SimulationLogic{ctx: ctx}
}

// CreateSimulationReq 创建仿真请求
type CreateSimulationReq struct {
	Name               string `json:"name" validate:"required"`
	Description        string `json:"description"`
	PatternType        string `json:"patternType" validate:"required"`
	ScheduledStartTime string `json:"scheduledStartTime"` // yyyy-MM-dd HH:mm:ss，可空
	ScheduledEndTime   string `json:"scheduledEndTime"`
}

// SimulationListReq 仿真列表请求
type SimulationListReq struct {
	Page     int    `query:"page"`
	PageSize int    `query:"pageSize"`
	Status   string `query:"status"`
	Pattern  string `query:"pattern"`
}

// Create 创建仿真并准备专属命名空间
func (l *SimulationLogic) Create(req *CreateSimulationReq) (*model.Simulation, error) {
	if req.PatternType != model.PatternSequential && req.PatternType != model.PatternParallel {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter,
			"未知的执行模式: "+req.PatternType)
	}

	sim := &model.Simulation{
		Name:        req.Name,
		Description: req.Description,
		PatternType: req.PatternType,
		Status:      model.SimulationStatusInitiating,
	}
	if req.ScheduledStartTime != "" {
		t, err := time.Parse(commontypes.DateTimeFormat, req.ScheduledStartTime)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInvalidParameter, "计划开始时间格式错误")
		}
		sim.ScheduledStartTime = commontypes.NewNullDateTime(t, true)
	}
	if req.ScheduledEndTime != "" {
		t, err := time.Parse(commontypes.DateTimeFormat, req.ScheduledEndTime)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInvalidParameter, "计划结束时间格式错误")
		}
		sim.ScheduledEndTime = commontypes.NewNullDateTime(t, true)
	}

	if err := svc.Ctx.DB.WithContext(l.ctx).Create(sim).Error; err != nil {
		return nil, err
	}

	namespace := model.Namespace(sim.ID)
	if err := svc.Ctx.Pods.EnsureNamespace(l.ctx, namespace); err != nil {
		logger.Error("命名空间创建失败", zap.Uint("simulation_id", sim.ID), zap.Error(err))
		return nil, types.NewAppErrorWithCause(types.ErrCodePodControl, "命名空间创建失败", err)
	}

	sim.Namespace = namespace
	sim.Status = model.SimulationStatusPending
	if err := svc.Ctx.DB.WithContext(l.ctx).Model(sim).
		Updates(map[string]interface{}{"namespace": namespace, "status": sim.Status}).Error; err != nil {
		return nil, err
	}

	logger.Info("仿真已创建",
		zap.Uint("simulation_id", sim.ID),
		zap.String("pattern", sim.PatternType),
		zap.String("namespace", namespace))
	return sim, nil
}

// List 分页查询仿真
func (l *SimulationLogic) List(req *SimulationListReq) ([]model.Simulation, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	db := svc.Ctx.DB.WithContext(l.ctx).Model(&model.Simulation{})
	if req.Status != "" {
		db = db.Where("status = ?", req.Status)
	}
	if req.Pattern != "" {
		db = db.Where("pattern_type = ?", req.Pattern)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sims []model.Simulation
	err := db.Order("id DESC").
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&sims).Error
	return sims, total, err
}

// Get 查询仿真详情(含步骤/分组)
func (l *SimulationLogic) Get(simulationID uint) (*model.Simulation, error) {
	sim, _, err := svc.Ctx.Sync.Durable().LoadPlan(l.ctx, simulationID)
	return sim, err
}

// Delete 删除仿真：命名空间、实时状态、数据库三步走
// 删除进度逐步写入实时存储；命名空间不存在视为成功
func (l *SimulationLogic) Delete(simulationID uint) error {
	sim, _, err := svc.Ctx.Sync.Durable().LoadPlan(l.ctx, simulationID)
	if err != nil {
		return err
	}
	if svc.Ctx.Engine.Registry().IsRunning(simulationID) {
		return types.ErrDeleteWhileRunning
	}

	if err := svc.Ctx.Sync.Durable().SetSimulationStatus(l.ctx, simulationID, model.SimulationStatusDeleting); err != nil {
		return err
	}

	now := commontypes.NewDateTime(time.Now())
	deletion := &statesync.DeletionRecord{
		SimulationID: simulationID,
		Status:       "RUNNING",
		Steps: map[string]string{
			statesync.DeletionStepNamespace: model.UnitStatusPending,
			statesync.DeletionStepRedis:     model.UnitStatusPending,
			statesync.DeletionStepDB:        model.UnitStatusPending,
		},
		StartedAt: &now,
	}
	saveDeletion := func() {
		if err := svc.Ctx.Sync.Live().SaveDeletion(l.ctx, deletion); err != nil {
			logger.Warn("删除进度写入失败", zap.Uint("simulation_id", simulationID), zap.Error(err))
		}
	}
	fail := func(step string, cause error) error {
		deletion.Status = "FAILED"
		deletion.Steps[step] = model.UnitStatusFailed
		deletion.ErrorMessage = cause.Error()
		saveDeletion()
		return cause
	}
	saveDeletion()

	// 1. 命名空间(连带全部Pod)
	deletion.Steps[statesync.DeletionStepNamespace] = model.UnitStatusRunning
	saveDeletion()
	namespace := sim.Namespace
	if namespace == "" {
		namespace = model.Namespace(simulationID)
	}
	if err := svc.Ctx.Pods.DeleteNamespace(l.ctx, namespace); err != nil {
		return fail(statesync.DeletionStepNamespace,
			types.NewAppErrorWithCause(types.ErrCodePodControl, "命名空间删除失败", err))
	}
	deletion.Steps[statesync.DeletionStepNamespace] = model.UnitStatusCompleted
	deletion.Progress = 33
	saveDeletion()

	// 2. 实时状态
	deletion.Steps[statesync.DeletionStepRedis] = model.UnitStatusRunning
	saveDeletion()
	if err := svc.Ctx.Sync.Live().Purge(l.ctx, simulationID); err != nil {
		// 实时状态残留不阻断删除，键有TTL兜底
		logger.Warn("实时状态清除失败", zap.Uint("simulation_id", simulationID), zap.Error(err))
	}
	deletion.Steps[statesync.DeletionStepRedis] = model.UnitStatusCompleted
	deletion.Progress = 66
	saveDeletion()

	// 3. 数据库(软删除)
	deletion.Steps[statesync.DeletionStepDB] = model.UnitStatusRunning
	saveDeletion()
	err = svc.Ctx.DB.WithContext(l.ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Simulation{}).Where("id = ?", simulationID).
			Update("status", model.SimulationStatusDeleted).Error; err != nil {
			return err
		}
		if err := tx.Where("simulation_id = ?", simulationID).Delete(&model.Instance{}).Error; err != nil {
			return err
		}
		if err := tx.Where("simulation_id = ?", simulationID).Delete(&model.SimulationStep{}).Error; err != nil {
			return err
		}
		if err := tx.Where("simulation_id = ?", simulationID).Delete(&model.SimulationGroup{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Simulation{}, simulationID).Error
	})
	if err != nil {
		return fail(statesync.DeletionStepDB, err)
	}
	deletion.Steps[statesync.DeletionStepDB] = model.UnitStatusCompleted
	deletion.Progress = 100
	deletion.Status = "COMPLETED"
	done := commontypes.NewDateTime(time.Now())
	deletion.CompletedAt = &done
	saveDeletion()

	logger.Info("仿真已删除", zap.Uint("simulation_id", simulationID))
	return nil
}

// DeletionStatus 查询删除进度
func (l *SimulationLogic) DeletionStatus(simulationID uint) (*statesync.DeletionRecord, error) {
	rec, err := svc.Ctx.Sync.Live().LoadDeletion(l.ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.NewAppError(types.ErrCodeNotFound, "删除进度不存在")
	}
	return rec, nil
}
