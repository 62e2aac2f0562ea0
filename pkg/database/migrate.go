package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable 与其他服务共用数据库时避免冲突
const migrationsTable = "edumanager_schema_migrations"

// embeddedSource 返回内嵌的迁移文件源
func embeddedSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("加载迁移文件失败: %w", err)
	}
	return src, nil
}

// Migrator PostgreSQL 迁移执行器；sqlite 开发模式走 AutoMigrate，不经过这里
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// NewMigrator 基于已有连接创建迁移执行器
func NewMigrator(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	src, err := embeddedSource()
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("创建迁移驱动失败: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("初始化迁移实例失败: %w", err)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Up 应用全部未执行的迁移
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("执行迁移失败: %w", err)
	}
	mg.logVersion("数据库迁移完成")
	return nil
}

// Rollback 回滚最近 steps 个迁移
func (mg *Migrator) Rollback(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("回滚步数必须大于 0")
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("回滚迁移失败: %w", err)
	}
	mg.logVersion("数据库回滚完成")
	return nil
}

func (mg *Migrator) logVersion(msg string) {
	version, dirty, err := mg.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		mg.logger.Info(msg, zap.String("version", "none"))
	case dirty:
		mg.logger.Warn("数据库迁移处于 dirty 状态", zap.Uint("version", version))
	default:
		mg.logger.Info(msg, zap.Uint("version", version))
	}
}

// RunMigrations 启动时执行迁移
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	mg, err := NewMigrator(db, logger)
	if err != nil {
		return err
	}
	return mg.Up()
}
