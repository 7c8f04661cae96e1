// Package supervisor 实现质量驱动的监督修订循环。
//
// 每个周期依次执行:评估当前草稿质量、守卫分数回归、红队批判性评审、
// 决策(批准 / 驳回修订),并把每次状态迁移都通过置信门控的状态存储持久化。
// 终止策略:达到质量目标收敛、周期预算耗尽或连续无提升判定停滞。
package supervisor
