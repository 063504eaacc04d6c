// Package services 提供应用的领域服务层：拉取估值 API 数据、筛选可比房产、生成 JSON/CSV/HTML/PDF 报表。
// 该层对 handlers 提供较为稳定的接口，避免在 HTTP 层直接处理上游协议、缓存或渲染细节。
package services
