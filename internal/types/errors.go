package types

import "fmt"

// ErrorCode 错误码
type ErrorCode string

const (
	// 通用错误码
	ErrCodeUnknown          ErrorCode = "UNKNOWN_ERROR"
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"

	// 执行计划相关错误码
	ErrCodeInvalidPlan      ErrorCode = "INVALID_PLAN"
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeBagObjectMissing ErrorCode = "BAG_OBJECT_MISSING"

	// 运行生命周期相关错误码
	ErrCodeRunConflict        ErrorCode = "RUN_CONFLICT"
	ErrCodeRunNotFound        ErrorCode = "RUN_NOT_FOUND"
	ErrCodeNotRunning         ErrorCode = "NOT_RUNNING"
	ErrCodeStopTimeout        ErrorCode = "STOP_TIMEOUT"
	ErrCodeDeleteWhileRunning ErrorCode = "DELETE_WHILE_RUNNING"

	// 执行单元相关错误码
	ErrCodeUnitStart     ErrorCode = "UNIT_START_FAILED"
	ErrCodeUnitExecution ErrorCode = "UNIT_EXECUTION_FAILED"

	// 基础设施相关错误码
	ErrCodeLiveStore   ErrorCode = "LIVE_STORE_ERROR"
	ErrCodePodControl  ErrorCode = "POD_CONTROL_ERROR"
	ErrCodeAgentError  ErrorCode = "AGENT_ERROR"
	ErrCodeObjectStore ErrorCode = "OBJECT_STORE_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError 创建应用错误
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithDetails 创建带详情的应用错误
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAppErrorWithCause 创建带原因的应用错误
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: cause.Error(),
		Cause:   cause,
	}
}

// 预定义错误
var (
	ErrSimulationNotFound = NewAppError(ErrCodeNotFound, "仿真不存在")
	ErrExecutionNotFound  = NewAppError(ErrCodeNotFound, "执行记录不存在")
	ErrTemplateNotFound   = NewAppError(ErrCodeTemplateNotFound, "模板不存在")

	ErrRunConflict = NewAppError(ErrCodeRunConflict, "仿真已有运行中的执行")
	ErrNotRunning  = NewAppError(ErrCodeNotRunning, "仿真当前没有运行中的执行")
	ErrStopping    = NewAppError(ErrCodeRunConflict, "仿真正在停止中")
	ErrStopTimeout = NewAppError(ErrCodeStopTimeout, "停止等待超时，执行被标记为失败")

	ErrDeleteWhileRunning = NewAppError(ErrCodeDeleteWhileRunning, "仿真运行中，不能删除")
)

// IsAppError 检查是否为应用错误
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeUnknown
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToErrorResponse 转换为错误响应
func (e *AppError) ToErrorResponse() *ErrorResponse {
	return &ErrorResponse{
		Code:    string(e.Code),
		Message: e.Message,
		Details: e.Details,
	}
}
