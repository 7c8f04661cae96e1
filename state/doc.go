// Package state 定义状态引擎管理的四类实体模型：
// AgentState、ResearchState、VerificationState、SupervisionState。
//
// 每个实体携带单调递增的 Version 和 LastUpdated 时间戳，由 store 包
// 在提交时统一推进。状态枚举的合法转换通过 CanTransition 校验，
// 任何写入前都会先经过 Validate。
//
// 实体离开 store 边界时一律使用 Clone 深拷贝，协作方（评估器、评审器）
// 只拿到副本，不持有直接引用。
package state
