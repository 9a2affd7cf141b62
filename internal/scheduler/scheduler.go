package scheduler

import (
	"context"
	"time"

	"robosim/backend/common/logger"
	"robosim/backend/internal/logic"
	"robosim/backend/internal/model"
	"robosim/backend/internal/svc"
	"robosim/backend/internal/types"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler 定时仿真调度器，周期扫描到期的计划启停时间
type Scheduler struct {
	scheduler gocron.Scheduler
	interval  time.Duration
}

// New 创建调度器
func New(interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: s, interval: interval}, nil
}

// Start 注册扫描任务并启动调度器
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.scheduler.Start()
	logger.Info("定时调度器已启动", zap.Duration("interval", s.interval))
	return nil
}

// Shutdown 停止调度器
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

// sweep 单轮扫描：启动到期仿真，停止超期仿真
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	s.startDue(ctx)
	s.stopOverdue(ctx)
}

// startDue 启动 scheduled_start_time 已到且未运行的仿真
func (s *Scheduler) startDue(ctx context.Context) {
	now := time.Now()
	var sims []model.Simulation
	err := svc.Ctx.DB.WithContext(ctx).
		Where("status = ? AND scheduled_start_time IS NOT NULL AND scheduled_start_time <= ?",
			model.SimulationStatusPending, now).
		Find(&sims).Error
	if err != nil {
		logger.Error("扫描待启动仿真失败", zap.Error(err))
		return
	}

	execLogic := logic.NewExecutionLogic(ctx)
	for _, sim := range sims {
		if svc.Ctx.Engine.Registry().IsRunning(sim.ID) {
			continue
		}
		if _, err := execLogic.StartRun(sim.ID); err != nil {
			if types.GetErrorCode(err) == types.ErrCodeRunConflict {
				continue
			}
			logger.Error("定时启动仿真失败",
				zap.Uint("simulation_id", sim.ID), zap.Error(err))
			continue
		}
		logger.Info("定时启动仿真", zap.Uint("simulation_id", sim.ID))
	}
}

// stopOverdue 停止 scheduled_end_time 已过且仍在运行的仿真
func (s *Scheduler) stopOverdue(ctx context.Context) {
	now := time.Now()
	var sims []model.Simulation
	err := svc.Ctx.DB.WithContext(ctx).
		Where("status = ? AND scheduled_end_time IS NOT NULL AND scheduled_end_time <= ?",
			model.SimulationStatusRunning, now).
		Find(&sims).Error
	if err != nil {
		logger.Error("扫描超期仿真失败", zap.Error(err))
		return
	}

	execLogic := logic.NewExecutionLogic(ctx)
	for _, sim := range sims {
		if !svc.Ctx.Engine.Registry().IsRunning(sim.ID) {
			continue
		}
		if err := execLogic.StopRun(sim.ID); err != nil {
			if types.GetErrorCode(err) == types.ErrCodeNotRunning {
				continue
			}
			logger.Error("定时停止仿真失败",
				zap.Uint("simulation_id", sim.ID), zap.Error(err))
			continue
		}
		logger.Info("定时停止仿真", zap.Uint("simulation_id", sim.ID))
	}
}
