package storage

import (
	"time"

	"gorm.io/gorm"
)

// 本文件定义服务使用的 GORM 模型。上游房产数据不落库，仅记录报表生成的审计信息。

// 报表类型
const (
	ReportKindJSON = "json"
	ReportKindPDF  = "pdf"
	ReportKindHTML = "html"
	ReportKindCSV  = "csv"
)

// ReportRecord 记录一次报表请求的结果，便于统计与排障。
type ReportRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Kind       string `gorm:"size:16;index"` // json | pdf | html | csv
	InitialID  *int64 `gorm:"index"`         // CSV 汇总报表为 NULL
	Rows       int    // 可比房产条数或 CSV 数据行数
	Bytes      int
	DurationMS int64
	Status     int    `gorm:"index"`
	Detail     string `gorm:"size:255"` // 失败原因
	RequestID  string `gorm:"size:64;index"`
	IPAddress  string `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"index"`
}

// AutoMigrate 执行数据库自动迁移。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ReportRecord{})
}
