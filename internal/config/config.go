package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	VoiceProviderTwilio = "twilio"
	VoiceProviderLog    = "log"

	TextGenProviderOpenAI = "openai"
	TextGenProviderStatic = "static"

	LockProviderMemory = "memory"
	LockProviderRedis  = "redis"

	StoreProviderPostgres = "postgres"
	StoreProviderMemory   = "memory"
)

type Config struct {
	HTTPPort          string `mapstructure:"http_port"`
	HTTPTimeout       int    `mapstructure:"http_timeout"`
	PublicBaseURL     string `mapstructure:"public_base_url"          validate:"required"`
	MaxListingsSearch int    `mapstructure:"max_listings_per_search"`

	StoreProvider string `mapstructure:"store_provider" validate:"oneof=postgres memory"`
	StoreTTL      int    `mapstructure:"store_ttl"`

	PostgresHost            string `mapstructure:"postgres_host"              validate:"required_if=StoreProvider postgres"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required_if=StoreProvider postgres"`
	PostgresPassword        string `mapstructure:"postgres_password"          validate:"required_if=StoreProvider postgres"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required_if=StoreProvider postgres"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required_if=StoreProvider postgres"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	DispatchWorkers              int     `mapstructure:"dispatch_workers"`
	DispatchRatePerSecond        float64 `mapstructure:"dispatch_rate_per_second"`
	DispatchBurst                int     `mapstructure:"dispatch_burst"`
	DispatchDenyBackoffMs        int     `mapstructure:"dispatch_deny_backoff_ms"`
	DispatchMaxAdmissionAttempts int     `mapstructure:"dispatch_max_admission_attempts"`
	CallPlacementTimeout         int     `mapstructure:"call_placement_timeout"`

	VoiceProvider                string `mapstructure:"voice_provider"                 validate:"oneof=twilio log"`
	TwilioBaseURL                string `mapstructure:"twilio_base_url"`
	TwilioAccountSID             string `mapstructure:"twilio_account_sid"             validate:"required_if=VoiceProvider twilio"`
	TwilioAuthToken              string `mapstructure:"twilio_auth_token"              validate:"required_if=VoiceProvider twilio"`
	TwilioCallerID               string `mapstructure:"twilio_caller_id"               validate:"required_if=VoiceProvider twilio"`
	TwilioTimeout                int    `mapstructure:"twilio_timeout"`
	TwilioRetryMaxAttempts       uint   `mapstructure:"twilio_retry_max_attempts"`
	TwilioRetryBackoffMin        int    `mapstructure:"twilio_retry_backoff_min"`
	TwilioRetryBackoffMax        int    `mapstructure:"twilio_retry_backoff_max"`
	TwilioIntervalCB             uint32 `mapstructure:"twilio_interval_cb"`
	TwilioConsecutiveFailuresCB  uint32 `mapstructure:"twilio_consecutive_failures_cb"`
	TwilioMaxRecordingSize       int64  `mapstructure:"twilio_max_recording_size"`
	TwilioSpeechTimeout          int    `mapstructure:"twilio_speech_timeout"`
	TwilioSayVoice               string `mapstructure:"twilio_say_voice"`

	TextGenProvider             string  `mapstructure:"textgen_provider"               validate:"oneof=openai static"`
	OpenAIBaseURL               string  `mapstructure:"openai_base_url"`
	OpenAIAPIKey                string  `mapstructure:"openai_api_key"                 validate:"required_if=TextGenProvider openai"`
	OpenAIModel                 string  `mapstructure:"openai_model"`
	OpenAITimeout               int     `mapstructure:"openai_timeout"`
	OpenAIRetryMaxAttempts      uint    `mapstructure:"openai_retry_max_attempts"`
	OpenAIRetryMinBackoff       int     `mapstructure:"openai_retry_min_backoff"`
	OpenAIRetryMaxBackoff       int     `mapstructure:"openai_retry_max_backoff"`
	OpenAIIntervalCB            uint32  `mapstructure:"openai_interval_cb"`
	OpenAIConsecutiveFailuresCB uint32  `mapstructure:"openai_consecutive_failures_cb"`
	ClarifyTemperature          float64 `mapstructure:"clarify_temperature"`
	ClarifyMaxTokens            int64   `mapstructure:"clarify_max_tokens"`
	SummaryTemperature          float64 `mapstructure:"summary_temperature"`
	SummaryMaxTokens            int64   `mapstructure:"summary_max_tokens"`
	ClarifyTimeout              int     `mapstructure:"clarify_timeout"`
	SummaryTimeout              int     `mapstructure:"summary_timeout"`

	LockProvider string `mapstructure:"lock_provider"  validate:"oneof=memory redis"`
	LockTTL      int    `mapstructure:"lock_ttl"`
	LockWait     int    `mapstructure:"lock_wait"`
	RedisAddress string `mapstructure:"redis_address"  validate:"required_if=LockProvider redis"`
	RedisPass    string `mapstructure:"redis_password"`
	RedisDB      int    `mapstructure:"redis_db"`

	KafkaEnabled               bool   `mapstructure:"kafka_enabled"`
	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"        validate:"required_if=KafkaEnabled true"`
	KafkaSASLEnabled           bool   `mapstructure:"kafka_sasl_enabled"`
	KafkaSASLMechanism         string `mapstructure:"kafka_sasl_mechanism"          validate:"oneof=SCRAM-SHA-256 SCRAM-SHA-512"`
	KafkaUsername              string `mapstructure:"kafka_username"`
	KafkaPassword              string `mapstructure:"kafka_password"`
	KafkaBatchTopic            string `mapstructure:"kafka_batch_topic"             validate:"required_if=KafkaEnabled true"`
	KafkaBatchGroupID          string `mapstructure:"kafka_batch_group_id"          validate:"required_if=KafkaEnabled true"`
	KafkaResultTopic           string `mapstructure:"kafka_result_topic"            validate:"required_if=KafkaEnabled true"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	RecordingEnabled            bool   `mapstructure:"recording_enabled"`
	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"              validate:"required_if=RecordingEnabled true"`
	MinioAccessKey              string `mapstructure:"minio_access_key"                validate:"required_if=RecordingEnabled true"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"                validate:"required_if=RecordingEnabled true"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"               validate:"required_if=RecordingEnabled true"`
	MinioSecure                 bool   `mapstructure:"minio_secure"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`

	DeadLetterEnabled        bool `mapstructure:"deadletter_enabled"`
	DeadLetterPoolSize       int  `mapstructure:"dead_letter_pool_size"`
	DeadLetterCallMaxRetries int  `mapstructure:"deadletter_call_max_retries"`
	DeadLetterCallLimit      int  `mapstructure:"deadletter_call_limit"`
	DeadLetterCallInterval   int  `mapstructure:"deadletter_call_interval"`
	DeadLetterCallRetryDelay int  `mapstructure:"deadletter_call_retry_delay"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

// Load reads the environment (and an optional .env file) into a validated Config.
func Load() (*Config, error) {
	var cfg Config

	err := loadEnvConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvConfig(cfg *Config) error {
	v := viper.New()

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults(v)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	err := v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = v.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return validator.New().Struct(cfg)
}

func setupDefaults(v *viper.Viper) {
	confType := reflect.TypeOf(Config{})
	for i := range confType.NumField() {
		field := confType.Field(i)
		v.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("HTTP_TIMEOUT", "30")
	v.SetDefault("MAX_LISTINGS_PER_SEARCH", "300")
	v.SetDefault("STORE_PROVIDER", StoreProviderPostgres)
	v.SetDefault("STORE_TTL", "0")
	v.SetDefault("DB_INTERVAL_CB", "30")
	v.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	v.SetDefault("DISPATCH_WORKERS", "10")
	v.SetDefault("DISPATCH_RATE_PER_SECOND", "1.0")
	v.SetDefault("DISPATCH_BURST", "10")
	v.SetDefault("DISPATCH_DENY_BACKOFF_MS", "500")
	v.SetDefault("DISPATCH_MAX_ADMISSION_ATTEMPTS", "0")
	v.SetDefault("CALL_PLACEMENT_TIMEOUT", "30")
	v.SetDefault("VOICE_PROVIDER", VoiceProviderTwilio)
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("TWILIO_TIMEOUT", "15")
	v.SetDefault("TWILIO_RETRY_MAX_ATTEMPTS", "1")
	v.SetDefault("TWILIO_RETRY_BACKOFF_MIN", "1")
	v.SetDefault("TWILIO_RETRY_BACKOFF_MAX", "10")
	v.SetDefault("TWILIO_INTERVAL_CB", "30")
	v.SetDefault("TWILIO_CONSECUTIVE_FAILURES_CB", "5")
	v.SetDefault("TWILIO_MAX_RECORDING_SIZE", "52428800")
	v.SetDefault("TWILIO_SPEECH_TIMEOUT", "5")
	v.SetDefault("TWILIO_SAY_VOICE", "alice")
	v.SetDefault("TEXTGEN_PROVIDER", TextGenProviderOpenAI)
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1/")
	v.SetDefault("OPENAI_MODEL", "gpt-4")
	v.SetDefault("OPENAI_TIMEOUT", "20")
	v.SetDefault("OPENAI_RETRY_MAX_ATTEMPTS", "2")
	v.SetDefault("OPENAI_RETRY_MIN_BACKOFF", "1")
	v.SetDefault("OPENAI_RETRY_MAX_BACKOFF", "5")
	v.SetDefault("OPENAI_INTERVAL_CB", "30")
	v.SetDefault("OPENAI_CONSECUTIVE_FAILURES_CB", "5")
	v.SetDefault("CLARIFY_TEMPERATURE", "0.7")
	v.SetDefault("CLARIFY_MAX_TOKENS", "100")
	v.SetDefault("SUMMARY_TEMPERATURE", "0.5")
	v.SetDefault("SUMMARY_MAX_TOKENS", "300")
	v.SetDefault("CLARIFY_TIMEOUT", "10")
	v.SetDefault("SUMMARY_TIMEOUT", "30")
	v.SetDefault("LOCK_PROVIDER", LockProviderMemory)
	v.SetDefault("LOCK_TTL", "60")
	v.SetDefault("LOCK_WAIT", "10")
	v.SetDefault("REDIS_DB", "0")
	v.SetDefault("KAFKA_ENABLED", "false")
	v.SetDefault("KAFKA_SASL_ENABLED", "false")
	v.SetDefault("KAFKA_SASL_MECHANISM", "SCRAM-SHA-512")
	v.SetDefault("KAFKA_INTERVAL_CB", "30")
	v.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FILE_PATH", "./access.log")
	v.SetDefault("RECORDING_ENABLED", "false")
	v.SetDefault("MINIO_SECURE", "true")
	v.SetDefault("MINIO_PATH_PREFIX", "recordings")
	v.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	v.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	v.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	v.SetDefault("MINIO_TIMEOUT", "60")
	v.SetDefault("MINIO_INTERVAL_CB", "300")
	v.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	v.SetDefault("DEADLETTER_ENABLED", "false")
	v.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	v.SetDefault("DEADLETTER_CALL_MAX_RETRIES", "3")
	v.SetDefault("DEADLETTER_CALL_LIMIT", "100")
	v.SetDefault("DEADLETTER_CALL_INTERVAL", "1")
	v.SetDefault("DEADLETTER_CALL_RETRY_DELAY", "5")
	v.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	v.SetDefault("PROMETHEUS_PORT", "2112")
	v.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
