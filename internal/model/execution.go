package model

import "robosim/backend/common/types"

// SimulationExecution 仿真执行记录模型
type SimulationExecution struct {
	BaseModel
	SimulationID  uint               `gorm:"index;not null" json:"simulationId"`
	SessionID     string             `gorm:"size:36;index" json:"sessionId"`
	PatternType   string             `gorm:"size:20;not null" json:"patternType"`
	Status        string             `gorm:"size:20;default:PENDING" json:"status"`
	Message       string             `gorm:"size:500" json:"message"`
	ResultSummary string             `gorm:"type:text" json:"resultSummary"` // JSON
	StartedAt     types.NullDateTime `json:"startedAt"`
	FinishedAt    types.NullDateTime `json:"finishedAt"`
}

// TableName 表名
func (SimulationExecution) TableName() string {
	return "simulation_executions"
}
