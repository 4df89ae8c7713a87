package mysql

import (
	"fmt"
	"time"
)

// Config 定義 MySQL 連線與連線池的配置
type Config struct {
	Host     string // 資料庫主機地址
	Port     int    // 資料庫埠號 (預設 3306)
	User     string // 使用者名稱
	Password string // 密碼
	DBName   string // 資料庫名稱

	// RawDSN 不為空時直接使用，忽略上面的欄位
	RawDSN string

	// 連線池設定 (Connection Pool)
	// 參考: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           // 最大開啟連線數
	MaxIdleConns    int           // 最大閒置連線數
	ConnMaxLifetime time.Duration // 連線最大存活時間

	// 啟動時的連線重試
	ConnectAttempts int
	RetryInterval   time.Duration

	// GORM 設定
	LogLevel      string        // Log 等級: "silent", "error", "warn", "info"
	SlowThreshold time.Duration // 超過此時間的查詢記為 warn，0 代表不檢查
}

// DSN (Data Source Name) 產生連線字串
// 格式: user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true
// 帳本時間一律以 UTC 存放；clientFoundRows 讓 UPDATE 回傳符合條件的列數而非實際變動的列數
func (c *Config) DSN() string {
	if c.RawDSN != "" {
		return c.RawDSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

func (c *Config) attempts() int {
	if c.ConnectAttempts <= 0 {
		return 10
	}
	return c.ConnectAttempts
}

func (c *Config) retryInterval() time.Duration {
	if c.RetryInterval <= 0 {
		return 2 * time.Second
	}
	return c.RetryInterval
}
