package mysql

import (
	"fmt"
	"net"
	"strconv"

	mysqldrv "github.com/go-sql-driver/mysql"
)

// DSNConfig holds the parameters for building a MySQL DSN.
type DSNConfig struct {
	Host     string // database host (default localhost)
	Port     int    // database port (default 3306)
	User     string // user name
	Password string // user password
	Database string // database name

	// ExtraParams are passed through as driver connection parameters.
	ExtraParams map[string]string
}

// DefaultDSNConfig returns a DSN configuration with default host and port.
func DefaultDSNConfig() DSNConfig {
	return DSNConfig{
		Host: "localhost",
		Port: 3306,
	}
}

// BuildDSN renders a go-sql-driver DSN from structured parameters. The
// connection always uses utf8mb4 and parses DATE/TIMESTAMP columns into
// time.Time.
//
// Example result:
// user:pass@tcp(localhost:3306)/dbname?charset=utf8mb4&parseTime=true
func BuildDSN(config DSNConfig) string {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 3306
	}

	mc := mysqldrv.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	mc.User = config.User
	mc.Passwd = config.Password
	mc.DBName = config.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for key, value := range config.ExtraParams {
		if key != "" && value != "" {
			mc.Params[key] = value
		}
	}

	return mc.FormatDSN()
}

// ValidateConfig checks that a DSN configuration is complete enough to
// connect with.
func ValidateConfig(config DSNConfig) error {
	if config.User == "" {
		return fmt.Errorf("user is required")
	}
	if config.Database == "" {
		return fmt.Errorf("database is required")
	}
	if config.Host == "" {
		return fmt.Errorf("host is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", config.Port)
	}
	return nil
}
