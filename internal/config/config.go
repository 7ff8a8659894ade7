package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Contracts  ContractsConfig  `mapstructure:"contracts"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Points     PointsConfig     `mapstructure:"points"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type ChainConfig struct {
	Name           string `mapstructure:"name"`
	RPCURL         string `mapstructure:"rpc_url"`
	ChainID        uint64 `mapstructure:"chain_id"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

type ContractsConfig struct {
	AMMRouter    string `mapstructure:"amm_router"`
	NativeRouter string `mapstructure:"native_router"`
	Rewards      string `mapstructure:"rewards"`
	WMON         string `mapstructure:"wmon"`
}

type ScannerConfig struct {
	BatchSize       int64 `mapstructure:"batch_size"`
	SafetyOverlap   int64 `mapstructure:"safety_overlap"`
	InitialLookback int64 `mapstructure:"initial_lookback"`
}

type PointsConfig struct {
	// 每多少WMON交易量给1点JXP
	VolumeDivisor float64 `mapstructure:"volume_divisor"`
	SyncCron      string  `mapstructure:"sync_cron"`
	SyncInterval  int     `mapstructure:"sync_interval"`
}

type SettlementConfig struct {
	OperatorKey    string `mapstructure:"operator_key"`
	GasLimit       uint64 `mapstructure:"gas_limit"`
	ConfirmTimeout int    `mapstructure:"confirm_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("scanner.batch_size", 50)
	v.SetDefault("scanner.safety_overlap", 500)
	v.SetDefault("scanner.initial_lookback", 1000)
	v.SetDefault("points.volume_divisor", 10)
	v.SetDefault("points.sync_interval", 6)
	v.SetDefault("chain.request_timeout", 5)
	v.SetDefault("settlement.gas_limit", 3000000)
	v.SetDefault("settlement.confirm_timeout", 120)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
