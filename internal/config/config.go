package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentResult    string `mapstructure:"payment_result"`
	WithdrawalResult string `mapstructure:"withdrawal_result"`
	SettlementResult string `mapstructure:"settlement_result"`
}

// GatewayConfig 外部支付网关配置
type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SecretKey      string `mapstructure:"secret_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BusinessConfig struct {
	CreditExchangeRate   int64   `mapstructure:"credit_exchange_rate"`    // 1 额度兑换的货币金额
	SettlementFeeRate    float64 `mapstructure:"settlement_fee_rate"`     // 平台抽成比例，如 0.10
	SettlementChunkSize  int     `mapstructure:"settlement_chunk_size"`   // 结算批次分片大小
	RefundWindowDays     int     `mapstructure:"refund_window_days"`      // 支付后可退款的天数
	FreeCreditExpiryDays int     `mapstructure:"free_credit_expiry_days"` // 免费额度默认有效期
	MaxRetryCount        int     `mapstructure:"max_retry_count"`         // 发件箱消息最大重试次数
}

// CronConfig 定时任务触发表达式
type CronConfig struct {
	Settlement string `mapstructure:"settlement"`
	Expiry     string `mapstructure:"expiry"`
	Statistics string `mapstructure:"statistics"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
