// Package handlers 暴露 HTTP 层接口，负责路由注册、参数校验与服务编排。
// handlers 内部聚焦输入/输出转换，并委托 services 层完成数据获取与报表生成。
package handlers
