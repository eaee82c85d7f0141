package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
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
	// MaxRetry outbox 消息发送失败的最大重试次数，超过后标记失败不再投递
	MaxRetry int `mapstructure:"max_retry"`
}

type KafkaTopicConfig struct {
	PaymentResult  string `mapstructure:"payment_result"`
	PaymentExpired string `mapstructure:"payment_expired"`
}

// GatewayConfig 支付网关配置
// environment 取值 test / staging / production，决定请求走哪个地址
type GatewayConfig struct {
	Environment   string `mapstructure:"environment"`
	BaseURL       string `mapstructure:"base_url"`
	SandboxURL    string `mapstructure:"sandbox_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSecond int    `mapstructure:"timeout_second"`
}

// Endpoint 根据环境返回网关地址
func (g *GatewayConfig) Endpoint() string {
	if g.Environment == "production" {
		return g.BaseURL
	}
	return g.SandboxURL
}

// MethodPolicy 单个支付方式的对账策略
//
// 银行票据用 expires_after_days 表示票据到期后多少天作废，
// 即时转账用 expires_in_seconds 表示开单后多少秒作废，
// 信用卡同步结算，永远不会过期，这两个字段对它无意义。
type MethodPolicy struct {
	Enabled             bool `mapstructure:"enabled"`
	MustExpire          bool `mapstructure:"must_expire"`
	ExpiresAfterDays    int  `mapstructure:"expires_after_days"`
	ExpiresInSeconds    int  `mapstructure:"expires_in_seconds"`
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds"`
}

func (p MethodPolicy) PollInterval() time.Duration {
	if p.PollIntervalSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// 话务中心类来源订单的本地建单时机
const (
	CallCenterOnPaid       = "on_paid"
	CallCenterOnIntegrated = "on_integrated"
	CallCenterNever        = "never"
)

// ReconcileConfig 对账策略配置
//
// 替代进程级全局 settings，由调用方显式传给引擎和驱动，
// 避免后台任务和 webhook 处理器读到不一致的配置。
type ReconcileConfig struct {
	// WatermarkSeconds 轮询水位线：updated_at 在该秒数以内的记录跳过，
	// 避免重复处理 webhook 刚刚碰过的记录
	WatermarkSeconds int `mapstructure:"watermark_seconds"`
	// PageSize 轮询分页大小
	PageSize int `mapstructure:"page_size"`
	// CallCenter 话务中心类来源的建单时机：on_paid / on_integrated / never
	CallCenter string `mapstructure:"call_center"`
	// CreateFromAPI 是否为 API 来源的已支付订单自动建单
	CreateFromAPI bool `mapstructure:"create_from_api"`

	BankSlip        MethodPolicy `mapstructure:"bank_slip"`
	CreditCard      MethodPolicy `mapstructure:"credit_card"`
	InstantTransfer MethodPolicy `mapstructure:"instant_transfer"`
}

func (c *ReconcileConfig) Watermark() time.Duration {
	if c.WatermarkSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.WatermarkSeconds) * time.Second
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
