package statesync

import (
	"context"
	"time"

	"robosim/backend/common/logger"

	"go.uber.org/zap"
)

// Sync 状态同步器，先落库再镜像实时存储
// 实时存储写入失败只告警，永远不影响执行
type Sync struct {
	durable *GormStore
	live    LiveStore
	ttl     time.Duration // 终态记录TTL
}

// NewSync 创建状态同步器
func NewSync(durable *GormStore, live LiveStore, ttl time.Duration) *Sync {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Sync{durable: durable, live: live, ttl: ttl}
}

// Durable 返回持久化存储
func (s *Sync) Durable() *GormStore {
	return s.durable
}

// Live 返回实时存储
func (s *Sync) Live() LiveStore {
	return s.live
}

func (s *Sync) mirror(ctx context.Context, rec *RunRecord) {
	if err := s.live.SaveRecord(ctx, rec); err != nil {
		logger.Warn("实时状态镜像写入失败",
			zap.Uint("simulation_id", rec.SimulationID),
			zap.Uint("execution_id", rec.ExecutionID),
			zap.Error(err))
	}
}

// RunSeeded 执行创建后的初始状态，只写实时存储(执行记录已由调用方落库)
func (s *Sync) RunSeeded(ctx context.Context, rec *RunRecord) {
	s.mirror(ctx, rec)
}

// RunRunning 执行进入运行态
func (s *Sync) RunRunning(ctx context.Context, rec *RunRecord) error {
	if err := s.durable.RunRunning(ctx, rec.SimulationID, rec.ExecutionID); err != nil {
		return err
	}
	s.mirror(ctx, rec)
	return nil
}

// UnitStatus 执行单元状态变更
func (s *Sync) UnitStatus(ctx context.Context, rec *RunRecord, ownerKind string, unitID uint, status string) error {
	if err := s.durable.SetUnitStatus(ctx, ownerKind, unitID, status); err != nil {
		return err
	}
	s.mirror(ctx, rec)
	return nil
}

// Heartbeat 进度心跳，只写实时存储
func (s *Sync) Heartbeat(ctx context.Context, rec *RunRecord) {
	s.mirror(ctx, rec)
}

// RunFinished 执行终态：落库、镜像并设置TTL
func (s *Sync) RunFinished(ctx context.Context, rec *RunRecord, resultSummary string) error {
	if err := s.durable.FinishRun(ctx, rec.SimulationID, rec.ExecutionID, rec.Status, rec.Message, resultSummary); err != nil {
		return err
	}
	s.mirror(ctx, rec)
	if err := s.live.ExpireRun(ctx, rec.SimulationID, rec.ExecutionID, s.ttl); err != nil {
		logger.Warn("设置实时状态TTL失败",
			zap.Uint("simulation_id", rec.SimulationID),
			zap.Error(err))
	}
	return nil
}
