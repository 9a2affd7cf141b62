package statesync

import (
	"context"
	"errors"
	"time"

	"robosim/backend/common/types"
	"robosim/backend/internal/model"
	apptypes "robosim/backend/internal/types"

	"gorm.io/gorm"
)

// GormStore 执行相关的持久化存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建持久化存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB 返回底层gorm连接
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// AutoMigrate 迁移执行相关表结构
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Simulation{},
		&model.SimulationStep{},
		&model.SimulationGroup{},
		&model.Instance{},
		&model.Template{},
		&model.SimulationExecution{},
	)
}

// CreateExecution 创建执行记录
func (s *GormStore) CreateExecution(ctx context.Context, exec *model.SimulationExecution) error {
	return s.db.WithContext(ctx).Create(exec).Error
}

// HasActiveExecution 判断仿真是否存在未终态的执行记录
func (s *GormStore) HasActiveExecution(ctx context.Context, simulationID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.SimulationExecution{}).
		Where("simulation_id = ? AND status IN ?", simulationID,
			[]string{model.ExecutionStatusPending, model.ExecutionStatusRunning}).
		Count(&count).Error
	return count > 0, err
}

// LatestExecution 查询仿真最近一次执行记录，不存在返回 (nil, nil)
func (s *GormStore) LatestExecution(ctx context.Context, simulationID uint) (*model.SimulationExecution, error) {
	var exec model.SimulationExecution
	err := s.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Order("id DESC").First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// RunRunning 执行进入运行态：执行记录与仿真状态同事务更新
func (s *GormStore) RunRunning(ctx context.Context, simulationID, executionID uint) error {
	now := types.NewNullDateTime(time.Now(), true)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.SimulationExecution{}).
			Where("id = ?", executionID).
			Updates(map[string]interface{}{
				"status":     model.ExecutionStatusRunning,
				"started_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Simulation{}).
			Where("id = ?", simulationID).
			Update("status", model.SimulationStatusRunning).Error
	})
}

// SetUnitStatus 更新步骤或分组的持久化状态
func (s *GormStore) SetUnitStatus(ctx context.Context, ownerKind string, unitID uint, status string) error {
	switch ownerKind {
	case model.InstanceOwnerStep:
		return s.db.WithContext(ctx).Model(&model.SimulationStep{}).
			Where("id = ?", unitID).Update("status", status).Error
	case model.InstanceOwnerGroup:
		return s.db.WithContext(ctx).Model(&model.SimulationGroup{}).
			Where("id = ?", unitID).Update("status", status).Error
	}
	return apptypes.NewAppError(apptypes.ErrCodeInternal, "未知的执行单元类型: "+ownerKind)
}

// FinishRun 执行终态落库：执行记录、仿真状态同事务更新
func (s *GormStore) FinishRun(ctx context.Context, simulationID, executionID uint, status, message, resultSummary string) error {
	now := types.NewNullDateTime(time.Now(), true)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":      status,
			"message":     message,
			"finished_at": now,
		}
		if resultSummary != "" {
			updates["result_summary"] = resultSummary
		}
		if err := tx.Model(&model.SimulationExecution{}).
			Where("id = ?", executionID).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&model.Simulation{}).
			Where("id = ?", simulationID).
			Update("status", status).Error
	})
}

// SetSimulationStatus 更新仿真状态
func (s *GormStore) SetSimulationStatus(ctx context.Context, simulationID uint, status string) error {
	return s.db.WithContext(ctx).Model(&model.Simulation{}).
		Where("id = ?", simulationID).Update("status", status).Error
}

// LoadPlan 加载仿真及其步骤/分组/实例
func (s *GormStore) LoadPlan(ctx context.Context, simulationID uint) (*model.Simulation, []model.Instance, error) {
	var sim model.Simulation
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		Preload("Groups").
		First(&sim, simulationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apptypes.ErrSimulationNotFound
		}
		return nil, nil, err
	}

	var instances []model.Instance
	if err := s.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Find(&instances).Error; err != nil {
		return nil, nil, err
	}
	return &sim, instances, nil
}
