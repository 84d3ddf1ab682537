package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string `validate:"required"`
	Port          string `validate:"required"`
	IsProduction  bool
	EnableDBCheck bool
	JWTSecret     string `validate:"required,min=16"`
	JWTIssuer     string

	// Fee split applied by the fee preview; stored donation fees are computed upstream.
	DebtFeePercent        decimal.Decimal
	OperationalFeePercent decimal.Decimal
	TransactionFeePercent decimal.Decimal
	// Withholding computed against the operator-confirmed gross deposit.
	DepositFeePercent    decimal.Decimal
	SettlementMinimumEur decimal.Decimal
	MinimumBatchAmount   decimal.Decimal
	OptimalBatchAmount   decimal.Decimal

	ProcessingCycle       string `validate:"oneof=daily weekly biweekly monthly manual"`
	DefaultTriggerOnChain bool
	DefaultTriggerBanking bool

	// Purchase providers the direct route may use, filtered against the known fee table.
	DirectPurchaseProviders []string `validate:"min=1"`

	Simplex  SimplexConfig
	Tron     TronConfig
	Bank     BankConfig
	P2P      P2PConfig
	Operator OperatorConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	MonitorInterval     time.Duration `validate:"gt=0"`
	MonitorBatchLimit   int           `validate:"gt=0"`
	MonitorWorkers      int           `validate:"gt=0"`
	MonitorLockTTL      time.Duration `validate:"gt=0"`
	CycleRunnerInterval time.Duration `validate:"gt=0"`
	CycleRunnerEnabled  bool
	ExternalCallTimeout time.Duration `validate:"gt=0"`
	RateMaxAge          time.Duration `validate:"gt=0"`
	WebhookRateLimit    string        `validate:"required"`
	CORSAllowedOrigins  []string
}

// SimplexConfig configures the fiat-to-crypto payment gateway.
type SimplexConfig struct {
	APIURL        string `validate:"required,url"`
	APIKey        string
	AppProviderID string
}

// TronConfig configures the TRON node connection and the hot wallet.
type TronConfig struct {
	Network        string `validate:"oneof=mainnet shasta nile"`
	GRPCURL        string
	APIKey         string
	PrivateKey     string
	USDTContract   string
	FeeLimitSun    int64 `validate:"gt=0"`
	RequestsPerSec int   `validate:"gt=0"`
}

// BankConfig configures the SEPA fallback.
type BankConfig struct {
	APIURL      string
	APIKey      string
	AccountIBAN string
}

// P2PConfig configures the peer-to-peer purchase desk.
type P2PConfig struct {
	APIURL string
	APIKey string
}

// OperatorConfig identifies the account used when purchases are started by the pipeline itself.
type OperatorConfig struct {
	Email     string
	FirstName string
	LastName  string
}

// RedisConfig configures the lock store. An empty Addr selects the in-process lock.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// KafkaConfig configures settlement event publishing. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("JWT_ISSUER", "d2c-settlement")

	viper.SetDefault("DEFAULT_DEBT_FEE_PERCENT", "10")
	viper.SetDefault("DEFAULT_OPERATIONAL_FEE_PERCENT", "10")
	viper.SetDefault("DEFAULT_TRANSACTION_FEE_PERCENT", "5")
	viper.SetDefault("OPERATIONAL_FEE_PERCENT", "10")
	viper.SetDefault("SETTLEMENT_MINIMUM_EUR", "44")
	viper.SetDefault("MINIMUM_BATCH_AMOUNT", "100")
	viper.SetDefault("OPTIMAL_BATCH_AMOUNT", "1000")
	viper.SetDefault("PROCESSING_CYCLE", "weekly")
	viper.SetDefault("TRIGGER_ON_CHAIN", false)
	viper.SetDefault("TRIGGER_BANKING", true)

	viper.SetDefault("SIMPLEX_API_URL", "https://sandbox.test-simplex.com")
	viper.SetDefault("SIMPLEX_API_KEY", "")
	viper.SetDefault("SIMPLEX_APP_PROVIDER_ID", "")
	viper.SetDefault("DIRECT_PURCHASE_PROVIDERS", "simplex")

	viper.SetDefault("TRON_NETWORK", "nile")
	viper.SetDefault("TRON_GRPC_URL", "")
	viper.SetDefault("TRON_API_KEY", "")
	viper.SetDefault("TRON_PRIVATE_KEY", "")
	viper.SetDefault("USDT_TRC20_CONTRACT", "")
	viper.SetDefault("TRON_FEE_LIMIT_SUN", 100_000_000)
	viper.SetDefault("TRON_REQUESTS_PER_SECOND", 10)

	viper.SetDefault("BANK_API_URL", "")
	viper.SetDefault("BANK_API_KEY", "")
	viper.SetDefault("BANK_ACCOUNT_IBAN", "")
	viper.SetDefault("P2P_API_URL", "")
	viper.SetDefault("P2P_API_KEY", "")

	viper.SetDefault("OPERATOR_EMAIL", "")
	viper.SetDefault("OPERATOR_FIRST_NAME", "Settlement")
	viper.SetDefault("OPERATOR_LAST_NAME", "Operator")

	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_NAMESPACE", "d2c")
	viper.SetDefault("KAFKA_BROKERS", "")
	viper.SetDefault("KAFKA_TOPIC", "settlement-events")

	viper.SetDefault("MONITOR_INTERVAL", "60s")
	viper.SetDefault("MONITOR_BATCH_LIMIT", 10)
	viper.SetDefault("MONITOR_WORKERS", 4)
	viper.SetDefault("MONITOR_LOCK_TTL", "2m")
	viper.SetDefault("CYCLE_RUNNER_INTERVAL", "15m")
	viper.SetDefault("CYCLE_RUNNER_ENABLED", true)
	viper.SetDefault("EXTERNAL_CALL_TIMEOUT", "30s")
	viper.SetDefault("RATE_MAX_AGE", "24h")
	viper.SetDefault("WEBHOOK_RATE_LIMIT", "60-M")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "" {
		log.Println("Warning: JWT_SECRET environment variable not set. API authentication cannot succeed.")
	}
	cfg.JWTIssuer = viper.GetString("JWT_ISSUER")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")

	var err error
	if cfg.DebtFeePercent, err = getDecimal("DEFAULT_DEBT_FEE_PERCENT"); err != nil {
		return nil, err
	}
	if cfg.OperationalFeePercent, err = getDecimal("DEFAULT_OPERATIONAL_FEE_PERCENT"); err != nil {
		return nil, err
	}
	if cfg.TransactionFeePercent, err = getDecimal("DEFAULT_TRANSACTION_FEE_PERCENT"); err != nil {
		return nil, err
	}
	if cfg.DepositFeePercent, err = getDecimal("OPERATIONAL_FEE_PERCENT"); err != nil {
		return nil, err
	}
	if cfg.SettlementMinimumEur, err = getDecimal("SETTLEMENT_MINIMUM_EUR"); err != nil {
		return nil, err
	}
	if cfg.MinimumBatchAmount, err = getDecimal("MINIMUM_BATCH_AMOUNT"); err != nil {
		return nil, err
	}
	if cfg.OptimalBatchAmount, err = getDecimal("OPTIMAL_BATCH_AMOUNT"); err != nil {
		return nil, err
	}

	cfg.ProcessingCycle = strings.ToLower(viper.GetString("PROCESSING_CYCLE"))
	cfg.DefaultTriggerOnChain = viper.GetBool("TRIGGER_ON_CHAIN")
	cfg.DefaultTriggerBanking = viper.GetBool("TRIGGER_BANKING")

	cfg.Simplex = SimplexConfig{
		APIURL:        viper.GetString("SIMPLEX_API_URL"),
		APIKey:        viper.GetString("SIMPLEX_API_KEY"),
		AppProviderID: viper.GetString("SIMPLEX_APP_PROVIDER_ID"),
	}
	if cfg.Simplex.APIKey == "" {
		log.Println("Warning: SIMPLEX_API_KEY not set. Direct crypto purchases will fail.")
	}
	cfg.DirectPurchaseProviders = splitList(viper.GetString("DIRECT_PURCHASE_PROVIDERS"))

	cfg.Tron = TronConfig{
		Network:        strings.ToLower(viper.GetString("TRON_NETWORK")),
		GRPCURL:        viper.GetString("TRON_GRPC_URL"),
		APIKey:         viper.GetString("TRON_API_KEY"),
		PrivateKey:     viper.GetString("TRON_PRIVATE_KEY"),
		USDTContract:   viper.GetString("USDT_TRC20_CONTRACT"),
		FeeLimitSun:    viper.GetInt64("TRON_FEE_LIMIT_SUN"),
		RequestsPerSec: viper.GetInt("TRON_REQUESTS_PER_SECOND"),
	}
	if cfg.Tron.PrivateKey == "" {
		log.Println("Warning: TRON_PRIVATE_KEY not set. On-chain sends will fail.")
	}

	cfg.Bank = BankConfig{
		APIURL:      viper.GetString("BANK_API_URL"),
		APIKey:      viper.GetString("BANK_API_KEY"),
		AccountIBAN: viper.GetString("BANK_ACCOUNT_IBAN"),
	}
	cfg.P2P = P2PConfig{
		APIURL: viper.GetString("P2P_API_URL"),
		APIKey: viper.GetString("P2P_API_KEY"),
	}
	cfg.Operator = OperatorConfig{
		Email:     viper.GetString("OPERATOR_EMAIL"),
		FirstName: viper.GetString("OPERATOR_FIRST_NAME"),
		LastName:  viper.GetString("OPERATOR_LAST_NAME"),
	}
	cfg.Redis = RedisConfig{
		Addr:      viper.GetString("REDIS_ADDR"),
		Password:  viper.GetString("REDIS_PASSWORD"),
		DB:        viper.GetInt("REDIS_DB"),
		Namespace: viper.GetString("REDIS_NAMESPACE"),
	}
	cfg.Kafka = KafkaConfig{
		Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
		Topic:   viper.GetString("KAFKA_TOPIC"),
	}

	cfg.MonitorInterval = getDuration("MONITOR_INTERVAL", time.Minute)
	cfg.MonitorBatchLimit = viper.GetInt("MONITOR_BATCH_LIMIT")
	cfg.MonitorWorkers = viper.GetInt("MONITOR_WORKERS")
	cfg.MonitorLockTTL = getDuration("MONITOR_LOCK_TTL", 2*time.Minute)
	cfg.CycleRunnerInterval = getDuration("CYCLE_RUNNER_INTERVAL", 15*time.Minute)
	cfg.CycleRunnerEnabled = viper.GetBool("CYCLE_RUNNER_ENABLED")
	cfg.ExternalCallTimeout = getDuration("EXTERNAL_CALL_TIMEOUT", 30*time.Second)
	cfg.RateMaxAge = getDuration("RATE_MAX_AGE", 24*time.Hour)
	cfg.WebhookRateLimit = viper.GetString("WEBHOOK_RATE_LIMIT")
	cfg.CORSAllowedOrigins = splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getDecimal(key string) (decimal.Decimal, error) {
	raw := viper.GetString(key)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value for %s ('%s'): %w", key, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid value for %s ('%s'): must not be negative", key, raw)
	}
	return d, nil
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback.String())
		}
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
