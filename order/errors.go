package order

import "errors"

// 执行器错误分两级：Abort 跳过本市场本轮，整体继续；
// Fatal 订单处于未知或半撤销状态，需要人工介入，自动动作停止。
var (
	ErrPriceUnavailable      = errors.New("ticker unavailable")
	ErrInsufficientBalance   = errors.New("insufficient wallet balance")
	ErrSubmissionExhausted   = errors.New("order submission retries exhausted")
	ErrConfirmationExhausted = errors.New("order confirmation retries exhausted")
	ErrCancellationExhausted = errors.New("order cancellation retries exhausted")
)

// IsAbort 报告错误是否属于可跳过级别。
func IsAbort(err error) bool {
	return errors.Is(err, ErrPriceUnavailable) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrSubmissionExhausted)
}

// IsFatal 报告错误是否需要人工介入。
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfirmationExhausted) ||
		errors.Is(err, ErrCancellationExhausted)
}
