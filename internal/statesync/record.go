package statesync

import (
	"fmt"

	"robosim/backend/common/types"
)

// 实时状态键格式
const (
	keyRecordFmt    = "simulation:%d"
	keyExecutionFmt = "simulation:%d:execution:%d"
	keyStepsFmt     = "simulation:%d:steps"
	keyGroupsFmt    = "simulation:%d:groups"
	keyDeletionFmt  = "simulation:%d:deletion"

	hashMetaField = "meta"
)

func recordKey(simulationID uint) string {
	return fmt.Sprintf(keyRecordFmt, simulationID)
}

func executionKey(simulationID, executionID uint) string {
	return fmt.Sprintf(keyExecutionFmt, simulationID, executionID)
}

func stepsKey(simulationID uint) string {
	return fmt.Sprintf(keyStepsFmt, simulationID)
}

func groupsKey(simulationID uint) string {
	return fmt.Sprintf(keyGroupsFmt, simulationID)
}

func deletionKey(simulationID uint) string {
	return fmt.Sprintf(keyDeletionFmt, simulationID)
}

func stepField(stepOrder int) string {
	return fmt.Sprintf("step:%d", stepOrder)
}

func groupField(groupID uint) string {
	return fmt.Sprintf("group:%d", groupID)
}

// Timestamps 运行时间戳
type Timestamps struct {
	CreatedAt   *types.DateTime `json:"createdAt,omitempty"`
	LastUpdated *types.DateTime `json:"lastUpdated,omitempty"`
	StartedAt   *types.DateTime `json:"startedAt,omitempty"`
	CompletedAt *types.DateTime `json:"completedAt,omitempty"`
	FailedAt    *types.DateTime `json:"failedAt,omitempty"`
	StoppedAt   *types.DateTime `json:"stoppedAt,omitempty"`
}

// Progress 整体进度，顺序/并行模式各用一组字段
type Progress struct {
	OverallProgress float64 `json:"overallProgress"`
	CurrentStep     *int    `json:"currentStep,omitempty"`
	CompletedSteps  *int    `json:"completedSteps,omitempty"`
	TotalSteps      *int    `json:"totalSteps,omitempty"`
	CompletedGroups *int    `json:"completedGroups,omitempty"`
	RunningGroups   *int    `json:"runningGroups,omitempty"`
	TotalGroups     *int    `json:"totalGroups,omitempty"`
}

// StepDetail 顺序模式单步状态
type StepDetail struct {
	StepOrder        int             `json:"stepOrder"`
	Status           string          `json:"status"`
	Progress         float64         `json:"progress"`
	StartedAt        *types.DateTime `json:"startedAt,omitempty"`
	CompletedAt      *types.DateTime `json:"completedAt,omitempty"`
	FailedAt         *types.DateTime `json:"failedAt,omitempty"`
	StoppedAt        *types.DateTime `json:"stoppedAt,omitempty"`
	AutonomousAgents int             `json:"autonomousAgents"`
	CurrentRepeat    int             `json:"currentRepeat"`
	TotalRepeats     int             `json:"totalRepeats"`
	Error            string          `json:"error,omitempty"`
}

// GroupDetail 并行模式单组状态
type GroupDetail struct {
	GroupID          uint            `json:"groupId"`
	Status           string          `json:"status"`
	Progress         float64         `json:"progress"`
	StartedAt        *types.DateTime `json:"startedAt,omitempty"`
	CompletedAt      *types.DateTime `json:"completedAt,omitempty"`
	FailedAt         *types.DateTime `json:"failedAt,omitempty"`
	StoppedAt        *types.DateTime `json:"stoppedAt,omitempty"`
	AutonomousAgents int             `json:"autonomousAgents"`
	CurrentRepeat    int             `json:"currentRepeat"`
	TotalRepeats     int             `json:"totalRepeats"`
	Error            string          `json:"error,omitempty"`
}

// RunRecord 一次执行的完整实时状态文档
type RunRecord struct {
	SimulationID uint           `json:"simulationId"`
	ExecutionID  uint           `json:"executionId"`
	SessionID    string         `json:"sessionId,omitempty"`
	PatternType  string         `json:"patternType"`
	Status       string         `json:"status"`
	Progress     *Progress      `json:"progress,omitempty"`
	Timestamps   Timestamps     `json:"timestamps"`
	Message      string         `json:"message,omitempty"`
	StepDetails  []*StepDetail  `json:"stepDetails,omitempty"`
	GroupDetails []*GroupDetail `json:"groupDetails,omitempty"`
}

// StepsMeta 步骤hash的meta字段
type StepsMeta struct {
	TotalSteps     int `json:"totalSteps"`
	CompletedSteps int `json:"completedSteps"`
	CurrentStep    int `json:"currentStep"`
}

// GroupsMeta 分组hash的meta字段
type GroupsMeta struct {
	TotalGroups     int `json:"totalGroups"`
	CompletedGroups int `json:"completedGroups"`
	RunningGroups   int `json:"runningGroups"`
}

// 删除流程的分步名称
const (
	DeletionStepNamespace = "namespace"
	DeletionStepRedis     = "redis"
	DeletionStepDB        = "db"
)

// DeletionRecord 仿真删除进度文档
type DeletionRecord struct {
	SimulationID uint              `json:"simulationId"`
	Status       string            `json:"status"`   // PENDING, RUNNING, COMPLETED, FAILED
	Progress     int               `json:"progress"` // 0~100
	Steps        map[string]string `json:"steps"`
	StartedAt    *types.DateTime   `json:"startedAt,omitempty"`
	CompletedAt  *types.DateTime   `json:"completedAt,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}
