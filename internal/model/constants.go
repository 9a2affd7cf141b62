package model

import "fmt"

// 仿真执行模式
const (
	PatternSequential = "sequential" // 顺序执行(按步骤)
	PatternParallel   = "parallel"   // 并行执行(按分组)
)

// 仿真生命周期状态
const (
	SimulationStatusInitiating = "INITIATING"
	SimulationStatusPending    = "PENDING"
	SimulationStatusRunning    = "RUNNING"
	SimulationStatusCompleted  = "COMPLETED"
	SimulationStatusFailed     = "FAILED"
	SimulationStatusStopped    = "STOPPED"
	SimulationStatusDeleting   = "DELETING"
	SimulationStatusDeleted    = "DELETED"
)

// 执行记录状态
const (
	ExecutionStatusPending   = "PENDING"
	ExecutionStatusRunning   = "RUNNING"
	ExecutionStatusCompleted = "COMPLETED"
	ExecutionStatusFailed    = "FAILED"
	ExecutionStatusStopped   = "STOPPED"
)

// 执行单元(步骤/分组)状态
const (
	UnitStatusPending   = "PENDING"
	UnitStatusRunning   = "RUNNING"
	UnitStatusCompleted = "COMPLETED"
	UnitStatusFailed    = "FAILED"
	UnitStatusStopped   = "STOPPED"
)

// 实例归属类型
const (
	InstanceOwnerStep  = "step"
	InstanceOwnerGroup = "group"
)

// IsTerminalExecutionStatus 判断执行记录是否已终态
func IsTerminalExecutionStatus(status string) bool {
	switch status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped:
		return true
	}
	return false
}

// Namespace 仿真专属命名空间名称
func Namespace(simulationID uint) string {
	return fmt.Sprintf("simulation-%d", simulationID)
}

// PodName 实例Pod名称
func PodName(simulationID, instanceID uint) string {
	return fmt.Sprintf("instance-%d-%d", simulationID, instanceID)
}
