// Package engine 定义存储引擎接口
//
// 所有实现必须保证线程安全。事务在提交前相互隔离。
package engine
