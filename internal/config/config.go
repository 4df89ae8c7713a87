package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
	"github.com/JoeShih716/go-wallet-ledger/pkg/postgres"
)

// Driver 帳本儲存後端
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

// 環境變數覆寫
const (
	EnvGRPCAddr    = "LEDGER_GRPC_ADDR"
	EnvHTTPAddr    = "LEDGER_HTTP_ADDR"
	EnvDriver      = "LEDGER_STORAGE_DRIVER"
	EnvWALPath     = "LEDGER_WAL_PATH"
	EnvMySQLDSN    = "LEDGER_MYSQL_DSN"
	EnvPostgresURL = "LEDGER_POSTGRES_URL"
	EnvLogLevel    = "LEDGER_LOG_LEVEL"
	EnvEnvironment = "LEDGER_ENV"
)

// DefaultEnvFile 未指定時讀取的 .env
const DefaultEnvFile = ".env"

const (
	defaultGRPCAddr  = ":50051"
	defaultHTTPAddr  = ":8080"
	defaultWALPath   = "wal.log"
	defaultShutdown  = 10 * time.Second
	defaultOpenConns = 100
	defaultIdleConns = 10
)

// Config 服務設定
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Storage  StorageConfig   `yaml:"storage"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Log      logger.Config   `yaml:"log"`
}

type ServerConfig struct {
	GRPCAddr        string        `yaml:"grpc_addr"`
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver Driver `yaml:"driver"`
	// WALPath memory driver 的 WAL 檔案，空字串代表不持久化
	WALPath string `yaml:"wal_path"`
}

// Load 依序套用 YAML 檔、.env、LEDGER_* 環境變數，最後補上預設值
//
// 參數:
//
//	path: YAML 設定檔路徑，空字串代表不讀檔
//	envFiles: .env 檔案，不給時讀取目前目錄的 .env (不存在則略過)
//
// 回傳:
//
//	*Config: 設定
//	error: 讀檔、解析或驗證錯誤
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{WALPath: defaultWALPath},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		// godotenv 不會覆蓋已存在的環境變數
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.Server.GRPCAddr, EnvGRPCAddr)
	override(&c.Server.HTTPAddr, EnvHTTPAddr)
	override((*string)(&c.Storage.Driver), EnvDriver)
	override(&c.Storage.WALPath, EnvWALPath)
	override(&c.MySQL.RawDSN, EnvMySQLDSN)
	override(&c.Postgres.URL, EnvPostgresURL)
	override(&c.Log.Level, EnvLogLevel)
	override((*string)(&c.Log.Environment), EnvEnvironment)
}

func override(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok {
		*dst = value
	}
}

func (c *Config) applyDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = defaultGRPCAddr
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = defaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdown
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Log.Environment == "" {
		c.Log.Environment = logger.EnvironmentProduction
	}
	// 補全 MySQL 預設配置 (如果 yaml 沒寫)
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = defaultOpenConns
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = defaultIdleConns
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
}

// Validate 檢查所選 driver 所需的設定是否齊全
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
		return nil
	case DriverMySQL:
		if c.MySQL.RawDSN == "" && c.MySQL.Host == "" {
			return errors.New("config: mysql driver needs mysql.host or " + EnvMySQLDSN)
		}
		return nil
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("config: postgres driver needs postgres.url or " + EnvPostgresURL)
		}
		return nil
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
}
