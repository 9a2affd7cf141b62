package model

import "robosim/backend/common/types"

// Simulation 仿真模型
type Simulation struct {
	BaseModel
	Name               string               `gorm:"size:100;not null" json:"name"`
	Description        string               `gorm:"size:500" json:"description"`
	PatternType        string               `gorm:"size:20;not null" json:"patternType"` // sequential, parallel
	Status             string               `gorm:"size:20;default:INITIATING" json:"status"`
	Namespace          string               `gorm:"size:100" json:"namespace"`
	ScheduledStartTime types.NullDateTime   `json:"scheduledStartTime"`
	ScheduledEndTime   types.NullDateTime   `json:"scheduledEndTime"`
	Steps              []SimulationStep     `gorm:"foreignKey:SimulationID" json:"steps,omitempty"`
	Groups             []SimulationGroup    `gorm:"foreignKey:SimulationID" json:"groups,omitempty"`
	Executions         []SimulationExecution `gorm:"foreignKey:SimulationID" json:"-"`
}

// TableName 表名
func (Simulation) TableName() string {
	return "simulations"
}

// SimulationStep 顺序模式执行步骤模型
type SimulationStep struct {
	BaseModel
	SimulationID         uint   `gorm:"index;not null" json:"simulationId"`
	StepOrder            int    `gorm:"not null" json:"stepOrder"` // 从1开始连续编号
	TemplateID           uint   `gorm:"index;not null" json:"templateId"`
	RepeatCount          int    `gorm:"default:1" json:"repeatCount"`
	DelayAfterSec        int    `gorm:"default:0" json:"delayAfterSec"` // 步骤完成后的间隔
	ExecutionDurationSec int    `gorm:"default:0" json:"executionDurationSec"`
	AgentCount           int    `gorm:"default:1" json:"agentCount"`
	Status               string `gorm:"size:20;default:PENDING" json:"status"`
}

// TableName 表名
func (SimulationStep) TableName() string {
	return "simulation_steps"
}

// SimulationGroup 并行模式执行分组模型
type SimulationGroup struct {
	BaseModel
	SimulationID         uint   `gorm:"index;not null" json:"simulationId"`
	Name                 string `gorm:"size:100;not null" json:"name"`
	TemplateID           uint   `gorm:"index;not null" json:"templateId"`
	RepeatCount          int    `gorm:"default:1" json:"repeatCount"`
	ExecutionDurationSec int    `gorm:"default:0" json:"executionDurationSec"`
	AgentCount           int    `gorm:"default:1" json:"agentCount"`
	Status               string `gorm:"size:20;default:PENDING" json:"status"`
}

// TableName 表名
func (SimulationGroup) TableName() string {
	return "simulation_groups"
}

// Instance 仿真代理实例模型，每个实例对应一个Pod
type Instance struct {
	BaseModel
	SimulationID uint   `gorm:"index;not null" json:"simulationId"`
	OwnerKind    string `gorm:"size:10;not null" json:"ownerKind"` // step, group
	OwnerID      uint   `gorm:"index;not null" json:"ownerId"`
	PodName      string `gorm:"size:100" json:"podName"`
	PodNamespace string `gorm:"size:100" json:"podNamespace"`
	Status       string `gorm:"size:20;default:PENDING" json:"status"`
}

// TableName 表名
func (Instance) TableName() string {
	return "instances"
}
