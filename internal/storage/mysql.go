package storage

import (
    "database/sql"
    "fmt"

    mysqldrv "github.com/go-sql-driver/mysql"
    "gorm.io/driver/mysql"
    "gorm.io/gorm"
    "gorm.io/gorm/logger"

    "valuations/internal/config"
)

// InitMySQL 打开到 MySQL 的 GORM 连接，并通过 AutoMigrate 确保表结构存在。
func InitMySQL(cfg config.Config) (*gorm.DB, error) {
    dsn := cfg.MySQL.DSN()
    // 提前解析 DSN，参数拼写错误时给出脱敏后的连接串
    if _, err := mysqldrv.ParseDSN(dsn); err != nil {
        return nil, fmt.Errorf("invalid mysql dsn %s: %w", cfg.MySQL.DSNMasked(), err)
    }
    gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
    db, err := gorm.Open(mysql.Open(dsn), gcfg)
    if err != nil {
        return nil, fmt.Errorf("open mysql: %w", err)
    }
    // 验证底层连接可用
    sqlDB, err := db.DB()
    if err != nil {
        return nil, fmt.Errorf("sql db: %w", err)
    }
    if err := sqlDB.Ping(); err != nil {
        return nil, fmt.Errorf("ping mysql: %w", err)
    }

    if err := AutoMigrate(db); err != nil {
        return nil, fmt.Errorf("auto migrate: %w", err)
    }
    return db, nil
}

// CloseMySQL 关闭底层 sql.DB 连接。
func CloseMySQL(db *gorm.DB) {
    if db == nil {
        return
    }
    var s *sql.DB
    var err error
    s, err = db.DB()
    if err == nil && s != nil {
        _ = s.Close()
    }
}
