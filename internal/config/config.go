package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	Payment    PaymentConfig
	Graduation GraduationConfig
	Jobs       JobsConfig

	MetricsUser         string
	MetricsPasswordHash string
	CORSAllowedOrigins  []string
}

type PaymentConfig struct {
	GatewayBaseURL   string
	GatewaySecretKey string
	WebhookSecret    string
	// InsecureSkipWebhookVerify accepts unsigned webhooks. Only for local gateway simulators.
	InsecureSkipWebhookVerify bool
	CallbackURL               string
	Currency                  string
	Provider                  string
	MinAmount                 decimal.Decimal
	GatewayTimeout            time.Duration
	ReverifyAfter             time.Duration
	ReverifyBatchSize         int
}

type GraduationConfig struct {
	MinLevel       int
	MinCGPA        decimal.Decimal
	MinCreditUnits int
	Concurrency    int
	DegreeAwarded  string
}

type JobsConfig struct {
	Enabled          bool
	GraduationSpec   string
	OverdueSweepSpec string
	ReverifySpec     string
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	secretKey := os.Getenv("PAYMENT_GATEWAY_SECRET_KEY")

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		DBMaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		Payment: PaymentConfig{
			GatewayBaseURL:   getEnv("PAYMENT_GATEWAY_BASE_URL", "https://api.paystack.co"),
			GatewaySecretKey: secretKey,
			// The gateway signs webhooks with the account secret key unless told otherwise.
			WebhookSecret:             getEnv("PAYMENT_WEBHOOK_SECRET", secretKey),
			InsecureSkipWebhookVerify: getBool("PAYMENT_WEBHOOK_INSECURE_SKIP_VERIFY", false),
			CallbackURL:               os.Getenv("PAYMENT_CALLBACK_URL"),
			Currency:                  getEnv("PAYMENT_CURRENCY", "NGN"),
			Provider:                  getEnv("PAYMENT_PROVIDER", "paystack"),
			MinAmount:                 getDecimal("PAYMENT_MIN_AMOUNT", decimal.Zero),
			GatewayTimeout:            getDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
			ReverifyAfter:             getDuration("PAYMENT_REVERIFY_AFTER", 15*time.Minute),
			ReverifyBatchSize:         getInt("PAYMENT_REVERIFY_BATCH_SIZE", 50),
		},

		Graduation: GraduationConfig{
			MinLevel:       getInt("GRADUATION_MIN_LEVEL", 400),
			MinCGPA:        getDecimal("GRADUATION_MIN_CGPA", decimal.NewFromInt(1)),
			MinCreditUnits: getInt("GRADUATION_MIN_CREDITS", 120),
			Concurrency:    getInt("GRADUATION_CONCURRENCY", 4),
			DegreeAwarded:  getEnv("GRADUATION_DEGREE_AWARDED", "Bachelor's Degree"),
		},

		Jobs: JobsConfig{
			Enabled:          getBool("JOBS_ENABLED", true),
			GraduationSpec:   getEnv("GRADUATION_CRON", "0 2 * * *"),
			OverdueSweepSpec: getEnv("OVERDUE_SWEEP_CRON", "15 0 * * *"),
			ReverifySpec:     getEnv("PAYMENT_REVERIFY_CRON", "*/10 * * * *"),
		},

		MetricsUser:         getEnv("METRICS_USER", "metrics"),
		MetricsPasswordHash: os.Getenv("METRICS_PASSWORD_HASH"),
		CORSAllowedOrigins:  getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if cfg.Payment.InsecureSkipWebhookVerify {
		log.Println("WARNING: PAYMENT_WEBHOOK_INSECURE_SKIP_VERIFY is set, webhook signatures will NOT be verified")
	} else if cfg.Payment.WebhookSecret == "" {
		log.Println("WARNING: no webhook secret configured, every webhook will be rejected")
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
