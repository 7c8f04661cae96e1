// Package store 实现置信门控的分布式多层状态存储。
//
// 写路径在持有按实体分片的锁时依次完成：读取前值、校验状态机与
// 单调性、推进版本、门控评估、远程落库、更新本地缓存、发布变更
// 事件。门控拒绝（分数低于阈值）或落库失败时，缓存和持久层均保持
// 提交前的值和版本，调用方收到 LOW_CONFIDENCE_REJECTION 或
// STORE_UNAVAILABLE。
//
// 读路径优先命中本地 TTL 缓存，未命中时回源远程持久层并回填。
// 编排方只能通过本包的 Get/Set 读写实体，绕过门控或锁表不受支持。
package store
