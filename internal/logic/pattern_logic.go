package logic

import (
	"context"
	"fmt"
	"strconv"

	"robosim/backend/common/logger"
	"robosim/backend/internal/client"
	"robosim/backend/internal/model"
	"robosim/backend/internal/svc"
	"robosim/backend/internal/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PatternLogic 执行计划编辑逻辑(步骤/分组/实例)
type PatternLogic struct {
	ctx context.Context
}

// NewPatternLogic 创建执行计划编辑逻辑
func NewPatternLogic(ctx context.Context) *PatternLogic {
	return &PatternLogic{ctx: ctx}
}

// AddStepReq 添加步骤请求
type AddStepReq struct {
	StepOrder            int  `json:"stepOrder" validate:"required,min=1"`
	TemplateID           uint `json:"templateId" validate:"required"`
	RepeatCount          int  `json:"repeatCount"`
	DelayAfterSec        int  `json:"delayAfterSec"`
	ExecutionDurationSec int  `json:"executionDurationSec"`
	AgentCount           int  `json:"agentCount"`
}

// AddGroupReq 添加分组请求
type AddGroupReq struct {
	Name                 string `json:"name" validate:"required"`
	TemplateID           uint   `json:"templateId" validate:"required"`
	RepeatCount          int    `json:"repeatCount"`
	ExecutionDurationSec int    `json:"executionDurationSec"`
	AgentCount           int    `json:"agentCount"`
}

// editableSimulation 校验仿真可编辑：存在、模式匹配、未运行、未删除
func (l *PatternLogic) editableSimulation(simulationID uint, pattern string) (*model.Simulation, error) {
	sim, _, err := svc.Ctx.Sync.Durable().LoadPlan(l.ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if sim.PatternType != pattern {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidPlan,
			"执行模式不匹配",
			fmt.Sprintf("仿真为 %s 模式", sim.PatternType))
	}
	if svc.Ctx.Engine.Registry().IsRunning(simulationID) {
		return nil, types.NewAppError(types.ErrCodeRunConflict, "仿真运行中，不能编辑计划")
	}
	if sim.Status == model.SimulationStatusDeleting || sim.Status == model.SimulationStatusDeleted {
		return nil, types.NewAppError(types.ErrCodeInvalidPlan, "仿真已删除或删除中")
	}
	return sim, nil
}

// templateMustExist 校验模板存在
func (l *PatternLogic) templateMustExist(templateID uint) error {
	var tpl model.Template
	if err := svc.Ctx.DB.WithContext(l.ctx).First(&tpl, templateID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.ErrTemplateNotFound
		}
		return err
	}
	return nil
}

// AddStep 向顺序仿真添加步骤，步骤编号必须恰好接在已有序列之后
func (l *PatternLogic) AddStep(simulationID uint, req *AddStepReq) (*model.SimulationStep, error) {
	sim, err := l.editableSimulation(simulationID, model.PatternSequential)
	if err != nil {
		return nil, err
	}
	if err := l.templateMustExist(req.TemplateID); err != nil {
		return nil, err
	}

	nextOrder := len(sim.Steps) + 1
	if req.StepOrder != nextOrder {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidPlan,
			"步骤编号必须接在已有序列之后",
			fmt.Sprintf("期望 %d，实际 %d", nextOrder, req.StepOrder))
	}

	step := &model.SimulationStep{
		SimulationID:         simulationID,
		StepOrder:            req.StepOrder,
		TemplateID:           req.TemplateID,
		RepeatCount:          defaultOne(req.RepeatCount),
		DelayAfterSec:        req.DelayAfterSec,
		ExecutionDurationSec: req.ExecutionDurationSec,
		AgentCount:           defaultOne(req.AgentCount),
	}
	if err := svc.Ctx.DB.WithContext(l.ctx).Create(step).Error; err != nil {
		return nil, err
	}

	if err := l.createInstances(sim, model.InstanceOwnerStep, step.ID, step.AgentCount, step.RepeatCount); err != nil {
		return nil, err
	}
	logger.Info("步骤已添加",
		zap.Uint("simulation_id", simulationID),
		zap.Int("step_order", step.StepOrder),
		zap.Int("agent_count", step.AgentCount))
	return step, nil
}

// DeleteStep 删除步骤，只允许删除序列末尾的步骤
func (l *PatternLogic) DeleteStep(simulationID uint, stepOrder int) error {
	sim, err := l.editableSimulation(simulationID, model.PatternSequential)
	if err != nil {
		return err
	}
	if len(sim.Steps) == 0 {
		return types.NewAppError(types.ErrCodeNotFound, "步骤不存在")
	}
	last := sim.Steps[len(sim.Steps)-1]
	if stepOrder != last.StepOrder {
		return types.NewAppErrorWithDetails(types.ErrCodeInvalidPlan,
			"只能删除末尾步骤",
			fmt.Sprintf("末尾步骤为 %d", last.StepOrder))
	}
	return l.removeUnit(sim, model.InstanceOwnerStep, last.ID, &model.SimulationStep{})
}

// AddGroup 向并行仿真添加分组
func (l *PatternLogic) AddGroup(simulationID uint, req *AddGroupReq) (*model.SimulationGroup, error) {
	sim, err := l.editableSimulation(simulationID, model.PatternParallel)
	if err != nil {
		return nil, err
	}
	if err := l.templateMustExist(req.TemplateID); err != nil {
		return nil, err
	}

	group := &model.SimulationGroup{
		SimulationID:         simulationID,
		Name:                 req.Name,
		TemplateID:           req.TemplateID,
		RepeatCount:          defaultOne(req.RepeatCount),
		ExecutionDurationSec: req.ExecutionDurationSec,
		AgentCount:           defaultOne(req.AgentCount),
	}
	if err := svc.Ctx.DB.WithContext(l.ctx).Create(group).Error; err != nil {
		return nil, err
	}

	if err := l.createInstances(sim, model.InstanceOwnerGroup, group.ID, group.AgentCount, group.RepeatCount); err != nil {
		return nil, err
	}
	logger.Info("分组已添加",
		zap.Uint("simulation_id", simulationID),
		zap.Uint("group_id", group.ID),
		zap.Int("agent_count", group.AgentCount))
	return group, nil
}

// DeleteGroup 删除分组
func (l *PatternLogic) DeleteGroup(simulationID, groupID uint) error {
	sim, err := l.editableSimulation(simulationID, model.PatternParallel)
	if err != nil {
		return err
	}
	found := false
	for _, g := range sim.Groups {
		if g.ID == groupID {
			found = true
			break
		}
	}
	if !found {
		return types.NewAppError(types.ErrCodeNotFound, "分组不存在")
	}
	return l.removeUnit(sim, model.InstanceOwnerGroup, groupID, &model.SimulationGroup{})
}

// createInstances 为执行单元批量创建实例与Pod
func (l *PatternLogic) createInstances(sim *model.Simulation, ownerKind string, ownerID uint, count, repeatCount int) error {
	namespace := sim.Namespace
	if namespace == "" {
		namespace = model.Namespace(sim.ID)
	}

	for i := 0; i < count; i++ {
		inst := &model.Instance{
			SimulationID: sim.ID,
			OwnerKind:    ownerKind,
			OwnerID:      ownerID,
			PodNamespace: namespace,
		}
		if err := svc.Ctx.DB.WithContext(l.ctx).Create(inst).Error; err != nil {
			return err
		}
		inst.PodName = model.PodName(sim.ID, inst.ID)
		if err := svc.Ctx.DB.WithContext(l.ctx).Model(inst).
			Update("pod_name", inst.PodName).Error; err != nil {
			return err
		}

		spec := &client.PodSpec{
			Name:      inst.PodName,
			Namespace: namespace,
			Image:     svc.Ctx.Config.PodControl.AgentImage,
			Labels: map[string]string{
				client.LabelOwnerKind: ownerKind,
				client.LabelOwnerID:   strconv.FormatUint(uint64(ownerID), 10),
			},
			Env: map[string]string{
				"REPEAT_COUNT": strconv.Itoa(repeatCount),
			},
		}
		if err := svc.Ctx.Pods.CreatePod(l.ctx, spec); err != nil {
			return types.NewAppErrorWithCause(types.ErrCodePodControl,
				"Pod创建失败: "+inst.PodName, err)
		}
	}
	return nil
}

// removeUnit 删除执行单元及其实例和Pod
func (l *PatternLogic) removeUnit(sim *model.Simulation, ownerKind string, ownerID uint, unitModel interface{}) error {
	var instances []model.Instance
	if err := svc.Ctx.DB.WithContext(l.ctx).
		Where("simulation_id = ? AND owner_kind = ? AND owner_id = ?", sim.ID, ownerKind, ownerID).
		Find(&instances).Error; err != nil {
		return err
	}

	for _, inst := range instances {
		if err := svc.Ctx.Pods.DeletePod(l.ctx, inst.PodNamespace, inst.PodName); err != nil {
			logger.Warn("Pod删除失败",
				zap.String("pod", inst.PodName), zap.Error(err))
		}
	}

	return svc.Ctx.DB.WithContext(l.ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("simulation_id = ? AND owner_kind = ? AND owner_id = ?",
			sim.ID, ownerKind, ownerID).Delete(&model.Instance{}).Error; err != nil {
			return err
		}
		return tx.Delete(unitModel, ownerID).Error
	})
}

func defaultOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
