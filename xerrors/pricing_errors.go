package xerrors

import (
	"context"
	"errors"
	"fmt"
)

// 定价引擎错误码。
const (
	CodeInvalidParameters = 400101
	CodeUnknownMethod     = 400102
	CodeOverflowRisk      = 422103
	CodeDeadlineExceeded  = 504104
	CodeCanceled          = 504105
)

// 哨兵错误仅用于 errors.Is 比较，不要在其上调用 WithDetail/WithContext。
var (
	// ErrInvalidParameters 参数违反无套利区间、价格/行权价为负、步数非法或双数字期权行权价顺序错误。
	ErrInvalidParameters = New(ErrInvalidArg, CodeInvalidParameters, "invalid parameters", "", nil)
	// ErrUnknownMethod 未识别的欧式定价方法名。
	ErrUnknownMethod = New(ErrInvalidArg, CodeUnknownMethod, "unknown pricing method", "supported methods: iterative, aggregated", nil)
	// ErrOverflowRisk 聚合（组合闭式）算法步数过大，阶乘运算会溢出或丢失精度。
	ErrOverflowRisk = New(ErrOutOfRange, CodeOverflowRisk, "overflow risk", "", nil)
)

// InvalidParameters 构造一个参数非法错误。
func InvalidParameters(format string, args ...any) *Error {
	return New(ErrInvalidArg, CodeInvalidParameters, "invalid parameters", fmt.Sprintf(format, args...), nil)
}

// UnknownMethod 构造一个未知定价方法错误。
func UnknownMethod(name string) *Error {
	return New(ErrInvalidArg, CodeUnknownMethod, "unknown pricing method",
		fmt.Sprintf("%q is not one of: iterative, aggregated", name), nil).
		WithContext("method", name)
}

// OverflowRisk 构造一个溢出风险错误。
func OverflowRisk(steps, limit int) *Error {
	return New(ErrOutOfRange, CodeOverflowRisk, "overflow risk",
		fmt.Sprintf("aggregated method limited to %d steps, got %d", limit, steps), nil).
		WithContext("steps", steps).
		WithContext("limit", limit)
}

// Interrupted 将 context 的取消或超时转换为带码错误，原始错误作为 Cause 保留，errors.Is 仍可识别。
func Interrupted(err error, op string) *Error {
	if err == nil {
		return nil
	}
	code := CodeCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeDeadlineExceeded
	}
	return New(ErrTimeout, code, op+" interrupted", err.Error(), err)
}
