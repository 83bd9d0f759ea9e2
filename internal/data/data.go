package data

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gamification/internal/biz"
	"gamification/internal/conf"

	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewIDGenerator,
	NewTransaction,
	NewDeveloperRepository,
	NewStatsRepository,
	NewXPLedgerRepository,
	NewPointsLedgerRepository,
	NewBadgeRepository,
	NewSettingsRepository,
	NewCache,
	NewRateLimitStore,
	NewLocalRateLimitStore,
	NewPublisher,
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// contextTxKey 事务句柄在 ctx 中的键
type contextTxKey struct{}

// Data 持有数据库与 Redis 连接，rds 为 nil 表示未启用 Redis
type Data struct {
	db        *gorm.DB
	rds       *redis.Client
	driver    string
	txTimeout time.Duration
	txRetries int
	txOpts    *sql.TxOptions
	log       *log.Helper
}

// NewData .
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	if c == nil || c.Database == nil {
		return nil, nil, fmt.Errorf("data.database is not configured")
	}

	db, err := openDatabase(c.Database)
	if err != nil {
		helper.Errorf("Failed to open database, driver: %s, error: %v", c.Database.Driver, err)
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		helper.Errorf("Failed to get underlying SQL DB: %v", err)
		return nil, nil, err
	}
	if driverName(c.Database) == driverSQLite {
		// sqlite 同一时刻只允许一个写者
		sqlDB.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), c.Database.TxTimeout())
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		helper.Errorf("Failed to ping database: %v", err)
		return nil, nil, err
	}

	if c.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			helper.Errorf("Failed to migrate database: %v", err)
			return nil, nil, err
		}
	}

	d := &Data{
		db:        db,
		rds:       openRedis(c.Redis, helper),
		driver:    driverName(c.Database),
		txTimeout: c.Database.TxTimeout(),
		txRetries: c.Database.TxRetries,
		log:       helper,
	}
	if d.driver != driverSQLite {
		d.txOpts = txOptions(c.Database.Isolation)
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		if d.rds != nil {
			_ = d.rds.Close()
		}
		_ = sqlDB.Close()
	}
	return d, cleanup, nil
}

// Migrate 建表与索引
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&biz.Developer{},
		&biz.DeveloperStats{},
		&biz.XPLedgerEntry{},
		&biz.PointsLedgerEntry{},
		&biz.UserBadgeAward{},
		&badgeModel{},
		&settingModel{},
	)
}

func driverName(c *conf.Data_Database) string {
	if c.Driver == "" {
		return driverMySQL
	}
	return strings.ToLower(c.Driver)
}

func openDatabase(c *conf.Data_Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driverName(c) {
	case driverMySQL:
		dialector = mysql.Open(c.Source)
	case driverPostgres:
		dialector = postgres.Open(c.Source)
	case driverSQLite:
		dialector = sqlite.Open(c.Source)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
}

// openRedis 连不上时返回 nil，由调用方退回进程内实现
func openRedis(c *conf.Data_Redis, helper *log.Helper) *redis.Client {
	if c == nil || c.Addr == "" {
		helper.Info("Redis is not configured, using in-process cache and rate limit")
		return nil
	}
	rds := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout())
	defer cancel()
	if err := rds.Ping(ctx).Err(); err != nil {
		helper.Warnf("Failed to connect to Redis, using in-process cache and rate limit: %v", err)
		_ = rds.Close()
		return nil
	}
	return rds
}

func txOptions(isolation string) *sql.TxOptions {
	switch strings.ToLower(isolation) {
	case "serializable":
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	case "repeatable_read":
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case "read_committed":
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

// RedisClient 返回Redis客户端，未启用时为 nil
func (d *Data) RedisClient() *redis.Client {
	return d.rds
}

// DB 返回 ctx 中的事务句柄，不在事务内时返回连接池
func (d *Data) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return d.db.WithContext(ctx)
}

// InTx 在事务内执行 fn；嵌套调用复用外层事务，遇到死锁或序列化失败时整体重试
func (d *Data) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt <= d.txRetries; attempt++ {
		if attempt > 0 {
			d.log.WithContext(ctx).Warnf("Retrying transaction, attempt: %d, error: %v", attempt, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
			}
		}
		err = d.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

func (d *Data) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.txTimeout)
		defer cancel()
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, contextTxKey{}, tx))
	}, d.txOpts)
	if stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("transaction timed out after %s: %w", d.txTimeout, err)
	}
	return err
}

// NewTransaction 以 Data 作为业务层的事务边界
func NewTransaction(d *Data) biz.Transaction {
	return d
}
