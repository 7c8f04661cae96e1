// Package types 定义状态引擎共享的错误分类。
//
// 所有跨包传播的失败都携带一个 ErrorCode，调用方通过 types.IsCode /
// types.IsRetryable 做分支处理，而不是字符串匹配。
package types
