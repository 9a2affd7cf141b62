package executor

import (
	"fmt"

	"robosim/backend/internal/model"
)

// UnitKind 执行单元类型
type UnitKind string

const (
	UnitStep  UnitKind = "step"
	UnitGroup UnitKind = "group"
)

// Unit 执行单元，顺序模式的步骤或并行模式的分组
// Kind 决定哪个指针有效，访问器内部做类型分派
type Unit struct {
	Kind  UnitKind
	Step  *model.SimulationStep
	Group *model.SimulationGroup
}

// StepUnit 由步骤构造执行单元
func StepUnit(step *model.SimulationStep) Unit {
	return Unit{Kind: UnitStep, Step: step}
}

// GroupUnit 由分组构造执行单元
func GroupUnit(group *model.SimulationGroup) Unit {
	return Unit{Kind: UnitGroup, Group: group}
}

// ID 单元主键
func (u Unit) ID() uint {
	switch u.Kind {
	case UnitStep:
		return u.Step.ID
	case UnitGroup:
		return u.Group.ID
	}
	panic("executor: 无效的执行单元类型")
}

// Label 单元日志标识
func (u Unit) Label() string {
	switch u.Kind {
	case UnitStep:
		return fmt.Sprintf("step-%d", u.Step.StepOrder)
	case UnitGroup:
		return fmt.Sprintf("group-%d(%s)", u.Group.ID, u.Group.Name)
	}
	panic("executor: 无效的执行单元类型")
}

// OwnerKind 实例归属类型
func (u Unit) OwnerKind() string {
	switch u.Kind {
	case UnitStep:
		return model.InstanceOwnerStep
	case UnitGroup:
		return model.InstanceOwnerGroup
	}
	panic("executor: 无效的执行单元类型")
}

// TemplateID 单元引用的模板
func (u Unit) TemplateID() uint {
	switch u.Kind {
	case UnitStep:
		return u.Step.TemplateID
	case UnitGroup:
		return u.Group.TemplateID
	}
	panic("executor: 无效的执行单元类型")
}

// RepeatBudget 回放循环预算
func (u Unit) RepeatBudget() int {
	switch u.Kind {
	case UnitStep:
		return u.Step.RepeatCount
	case UnitGroup:
		return u.Group.RepeatCount
	}
	panic("executor: 无效的执行单元类型")
}

// AgentCount 单元的代理数量
func (u Unit) AgentCount() int {
	switch u.Kind {
	case UnitStep:
		return u.Step.AgentCount
	case UnitGroup:
		return u.Group.AgentCount
	}
	panic("executor: 无效的执行单元类型")
}

// ExecutionDurationSec 回放时长上限(秒)，0表示不限制
func (u Unit) ExecutionDurationSec() int {
	switch u.Kind {
	case UnitStep:
		return u.Step.ExecutionDurationSec
	case UnitGroup:
		return u.Group.ExecutionDurationSec
	}
	panic("executor: 无效的执行单元类型")
}

// DelayAfterSec 步骤完成后的间隔(秒)，分组无间隔
func (u Unit) DelayAfterSec() int {
	if u.Kind == UnitStep {
		return u.Step.DelayAfterSec
	}
	return 0
}
