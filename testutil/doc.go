// Package testutil 提供测试辅助:上下文与等待工具、实体夹具、
// 以及脚本化的协作方和置信门控替身。
//
// 本包只应被 _test.go 文件引用。
package testutil
