package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// StoreBackend selects the user/job/report directories: "dynamo" or "memory".
	StoreBackend string
	// MemorySeedFile is a JSON array of users loaded into the memory backend at startup.
	MemorySeedFile string
	// VerificationStore selects the OTP store: "redis", or empty/"dynamo" to follow StoreBackend.
	VerificationStore string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	S3BucketName             string
	ModerationArchiveEnabled bool

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	AllowedOrigins []string // CORS allowed origins

	VerificationCodeTTL     time.Duration
	DispatchWait            time.Duration
	VerificationExposeCodes bool
	FlagThreshold           int
	SendCodeRate            float64
	SendCodeBurst           int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users         string
	Jobs          string
	JobReports    string
	Verifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
			Jobs:          getEnv("DYNAMO_TABLE_JOBS", "jobs"),
			JobReports:    getEnv("DYNAMO_TABLE_JOB_REPORTS", "job_reports"),
			Verifications: getEnv("DYNAMO_TABLE_VERIFICATIONS", "verifications"),
		},

		StoreBackend:      getEnv("STORE_BACKEND", "dynamo"),
		MemorySeedFile:    getEnv("MEMORY_SEED_FILE", ""),
		VerificationStore: getEnv("VERIFICATION_STORE", "dynamo"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),

		S3BucketName:             getEnv("S3_BUCKET_NAME", "jobboard-moderation"),
		ModerationArchiveEnabled: getEnvBool("MODERATION_ARCHIVE_ENABLED", false),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		VerificationCodeTTL:     getEnvDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
		DispatchWait:            getEnvDuration("DISPATCH_WAIT", 3*time.Second),
		VerificationExposeCodes: getEnvBool("VERIFICATION_EXPOSE_CODES", false),
		FlagThreshold:           getEnvInt("FLAG_THRESHOLD", 3),
		SendCodeRate:            getEnvFloat("SEND_CODE_RATE", 1),
		SendCodeBurst:           getEnvInt("SEND_CODE_BURST", 3),
	}
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
