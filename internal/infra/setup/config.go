package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported DB_DRIVER values.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBOptions describes how to reach the database.
type DBOptions struct {
	Driver   string
	DSN      string // used as-is when set
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// BuildDSN assembles a driver-specific DSN from the individual fields.
func (o DBOptions) BuildDSN() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch o.Driver {
	case DriverMySQL, "":
		if o.User == "" {
			return "", fmt.Errorf("DB_USER environment variable not set")
		}
		host, port := orDefault(o.Host, "127.0.0.1"), orDefault(o.Port, "3306")
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			o.User, o.Password, host, port, orDefault(o.Name, "peacepad_calls")), nil
	case DriverPostgres:
		if o.User == "" {
			return "", fmt.Errorf("DB_USER environment variable not set")
		}
		host, port := orDefault(o.Host, "127.0.0.1"), orDefault(o.Port, "5432")
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			host, o.User, o.Password, orDefault(o.Name, "peacepad_calls"), port), nil
	case DriverSQLite:
		return orDefault(o.Name, "peacepad_calls.db"), nil
	}
	return "", fmt.Errorf("unsupported DB_DRIVER %q", o.Driver)
}

// InitDB opens the database for the configured driver and tunes the pool.
func InitDB(opts DBOptions) (*gorm.DB, error) {
	dsn, err := opts.BuildDSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverMySQL, "":
		dialector = mysql.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", orDefault(opts.Driver, DriverMySQL), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.Driver == DriverSQLite {
		// SQLite allows one writer; serialize through a single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	logrus.WithField("driver", orDefault(opts.Driver, DriverMySQL)).Info("Database connected")
	return db, nil
}

// InitRedis connects to Redis and verifies the connection with PING.
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("Redis connected")
	return client, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
