package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Payment    PaymentConfig    `yaml:"payment"`
	Tron       TronConfig       `yaml:"tron"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Admin      AdminConfig      `yaml:"admin"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// StorageConfig выбирает хранилище: postgres или memory
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env-required:"true"`
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// PaymentConfig — приём оплаты в USDT
type PaymentConfig struct {
	WalletAddress   string        `yaml:"wallet_address" env:"USDT_WALLET" env-required:"true"`
	Currency        string        `yaml:"currency" env-default:"USDT"`
	Timeout         time.Duration `yaml:"timeout" env-default:"30m"`
	PollInterval    time.Duration `yaml:"poll_interval" env-default:"30s"`
	AmountTolerance string        `yaml:"amount_tolerance" env-default:"0.01"`
}

// Tolerance возвращает допуск суммы перевода
func (p PaymentConfig) Tolerance() (decimal.Decimal, error) {
	return decimal.NewFromString(p.AmountTolerance)
}

// TronConfig — доступ к TronGrid
type TronConfig struct {
	BaseURL         string        `yaml:"base_url" env-default:"https://api.trongrid.io"`
	ContractAddress string        `yaml:"contract_address" env-default:"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"`
	APIKey          string        `yaml:"-" env:"TRON_API_KEY"`
	Decimals        int32         `yaml:"decimals" env-default:"6"`
	Limit           int           `yaml:"limit" env-default:"20"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env-default:"10s"`
	RPS             float64       `yaml:"rps" env-default:"5"`
	Burst           int           `yaml:"burst" env-default:"5"`
}

// RedisConfig — кэш заказов, пустой адрес отключает кэш
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	OrderTTL time.Duration `yaml:"order_ttl" env-default:"5m"`
}

// KafkaConfig — поток уведомлений, без брокеров уведомления пишутся в лог
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env-default:"shop.notifications"`
	Buffer  int      `yaml:"buffer" env-default:"256"`
}

type AdminConfig struct {
	Usernames []string `yaml:"usernames"`
}

type NotifyConfig struct {
	OperatorIDs    []int64 `yaml:"operator_ids"`
	SupportContact string  `yaml:"support_contact"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %s", configPath, err)
	}

	switch cfg.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		panic("unknown storage driver: " + cfg.Storage.Driver)
	}
	if _, err := cfg.Payment.Tolerance(); err != nil {
		panic("invalid payment.amount_tolerance: " + cfg.Payment.AmountTolerance)
	}

	return &cfg
}
