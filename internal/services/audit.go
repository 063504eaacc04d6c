package services

import (
    "context"
    "time"

    log "github.com/sirupsen/logrus"
    "gorm.io/gorm"

    "valuations/internal/storage"
)

// AuditService 将报表生成记录持久化到数据库；未配置数据库时为空操作。
type AuditService struct{ db *gorm.DB }

func NewAuditService(db *gorm.DB) *AuditService { return &AuditService{db: db} }

// Enabled 表示是否已连接数据库。
func (s *AuditService) Enabled() bool { return s != nil && s.db != nil }

// Write 写入一条报表记录；失败只记录日志。
func (s *AuditService) Write(ctx context.Context, rec storage.ReportRecord) {
    if !s.Enabled() {
        return
    }
    if rec.CreatedAt.IsZero() {
        rec.CreatedAt = time.Now()
    }
    if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
        log.WithError(err).WithField("kind", rec.Kind).Warn("write report record failed")
    }
}

// Recent 按时间倒序返回最近的报表记录。
func (s *AuditService) Recent(ctx context.Context, limit int) ([]storage.ReportRecord, error) {
    if !s.Enabled() {
        return nil, nil
    }
    var out []storage.ReportRecord
    err := s.db.WithContext(ctx).Order("created_at desc, id desc").Limit(recentLimit(limit)).Find(&out).Error
    return out, err
}

// recentLimit 未指定时取 50，超过 500 时截断为 500。
func recentLimit(limit int) int {
    switch {
    case limit <= 0:
        return 50
    case limit > 500:
        return 500
    default:
        return limit
    }
}

// PurgeBefore 删除早于 cutoff 的记录，返回删除条数。dryRun 时只统计。
func (s *AuditService) PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error) {
    if !s.Enabled() {
        return 0, nil
    }
    q := s.db.WithContext(ctx).Model(&storage.ReportRecord{}).Where("created_at < ?", cutoff)
    if dryRun {
        var n int64
        err := q.Count(&n).Error
        return n, err
    }
    res := q.Delete(&storage.ReportRecord{})
    return res.RowsAffected, res.Error
}
