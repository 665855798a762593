package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Registry   RegistryConfig
	Service    ServiceConfig
	Auth       AuthConfig
	Metrics    MetricsConfig
	Queue      QueueConfig
	Kubernetes KubernetesConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

const (
	RegistryPostgres = "postgres"
	RegistrySQLite   = "sqlite"
)

type RegistryConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SQLitePath      string
}

func (r RegistryConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		r.User, r.Password, r.Host, r.Port, r.Name, r.SSLMode)
}

type ServiceConfig struct {
	Route        string
	ModelName    string
	ModelTag     string
	MaxBatchSize int
}

// AuthConfig enables API-key checks when APIKeyHash (a bcrypt hash) is set.
type AuthConfig struct {
	APIKeyHash string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

const (
	QueueNone  = "none"
	QueueRedis = "redis"
	QueueSQS   = "sqs"
)

type QueueConfig struct {
	Driver         string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	JobsQueue      string
	ResultsQueue   string
	SQSJobsURL     string
	SQSResultsURL  string
	AWSRegion      string
	MaxConcurrency int
	WaitTime       time.Duration
}

type KubernetesConfig struct {
	Enabled        bool
	InCluster      bool
	KubeConfigPath string
	DefaultNS      string
}

// Load reads an optional .env file, then the environment, over the defaults.
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith is Load on a caller-supplied viper instance, so command-line flags
// bound to v take precedence over the environment.
func LoadWith(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env file")
	}

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")

	v.SetDefault("REGISTRY_DRIVER", RegistrySQLite)
	v.SetDefault("REGISTRY_DB_HOST", "localhost")
	v.SetDefault("REGISTRY_DB_PORT", 5432)
	v.SetDefault("REGISTRY_DB_USER", "postgres")
	v.SetDefault("REGISTRY_DB_PASSWORD", "")
	v.SetDefault("REGISTRY_DB_NAME", "model_registry")
	v.SetDefault("REGISTRY_DB_SSLMODE", "disable")
	v.SetDefault("REGISTRY_DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("REGISTRY_DB_MAX_IDLE_CONNS", 2)
	v.SetDefault("REGISTRY_DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("REGISTRY_SQLITE_PATH", "registry.db")

	v.SetDefault("SERVICE_ROUTE", "fraud-classifier")
	v.SetDefault("SERVICE_MODEL_NAME", "fraud_classifier")
	v.SetDefault("SERVICE_MODEL_TAG", "latest")
	v.SetDefault("SERVICE_MAX_BATCH_SIZE", 1000)

	v.SetDefault("AUTH_API_KEY_HASH", "")

	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	v.SetDefault("QUEUE_DRIVER", QueueNone)
	v.SetDefault("QUEUE_REDIS_ADDR", "localhost:6379")
	v.SetDefault("QUEUE_REDIS_PASSWORD", "")
	v.SetDefault("QUEUE_REDIS_DB", 0)
	v.SetDefault("QUEUE_JOBS", "fraud:jobs")
	v.SetDefault("QUEUE_RESULTS", "fraud:results")
	v.SetDefault("QUEUE_SQS_JOBS_URL", "")
	v.SetDefault("QUEUE_SQS_RESULTS_URL", "")
	v.SetDefault("QUEUE_AWS_REGION", "us-east-1")
	v.SetDefault("QUEUE_MAX_CONCURRENCY", 4)
	v.SetDefault("QUEUE_WAIT_TIME", "5s")

	v.SetDefault("K8S_ENABLED", false)
	v.SetDefault("K8S_IN_CLUSTER", false)
	v.SetDefault("K8S_KUBECONFIG", "")
	v.SetDefault("K8S_DEFAULT_NAMESPACE", "default")

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: durationOr(v.GetString("SERVER_SHUTDOWN_TIMEOUT"), 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		Registry: RegistryConfig{
			Driver:          v.GetString("REGISTRY_DRIVER"),
			Host:            v.GetString("REGISTRY_DB_HOST"),
			Port:            v.GetInt("REGISTRY_DB_PORT"),
			User:            v.GetString("REGISTRY_DB_USER"),
			Password:        v.GetString("REGISTRY_DB_PASSWORD"),
			Name:            v.GetString("REGISTRY_DB_NAME"),
			SSLMode:         v.GetString("REGISTRY_DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("REGISTRY_DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("REGISTRY_DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durationOr(v.GetString("REGISTRY_DB_CONN_MAX_LIFETIME"), 30*time.Minute),
			SQLitePath:      v.GetString("REGISTRY_SQLITE_PATH"),
		},
		Service: ServiceConfig{
			Route:        v.GetString("SERVICE_ROUTE"),
			ModelName:    v.GetString("SERVICE_MODEL_NAME"),
			ModelTag:     v.GetString("SERVICE_MODEL_TAG"),
			MaxBatchSize: v.GetInt("SERVICE_MAX_BATCH_SIZE"),
		},
		Auth: AuthConfig{
			APIKeyHash: v.GetString("AUTH_API_KEY_HASH"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
			Path:    v.GetString("METRICS_PATH"),
		},
		Queue: QueueConfig{
			Driver:         v.GetString("QUEUE_DRIVER"),
			RedisAddr:      v.GetString("QUEUE_REDIS_ADDR"),
			RedisPassword:  v.GetString("QUEUE_REDIS_PASSWORD"),
			RedisDB:        v.GetInt("QUEUE_REDIS_DB"),
			JobsQueue:      v.GetString("QUEUE_JOBS"),
			ResultsQueue:   v.GetString("QUEUE_RESULTS"),
			SQSJobsURL:     v.GetString("QUEUE_SQS_JOBS_URL"),
			SQSResultsURL:  v.GetString("QUEUE_SQS_RESULTS_URL"),
			AWSRegion:      v.GetString("QUEUE_AWS_REGION"),
			MaxConcurrency: v.GetInt("QUEUE_MAX_CONCURRENCY"),
			WaitTime:       durationOr(v.GetString("QUEUE_WAIT_TIME"), 5*time.Second),
		},
		Kubernetes: KubernetesConfig{
			Enabled:        v.GetBool("K8S_ENABLED"),
			InCluster:      v.GetBool("K8S_IN_CLUSTER"),
			KubeConfigPath: v.GetString("K8S_KUBECONFIG"),
			DefaultNS:      v.GetString("K8S_DEFAULT_NAMESPACE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Registry.Driver {
	case RegistryPostgres, RegistrySQLite:
	default:
		return fmt.Errorf("unknown REGISTRY_DRIVER %q", c.Registry.Driver)
	}
	switch c.Queue.Driver {
	case QueueNone, QueueRedis, QueueSQS:
	default:
		return fmt.Errorf("unknown QUEUE_DRIVER %q", c.Queue.Driver)
	}
	if c.Service.Route == "" {
		return fmt.Errorf("SERVICE_ROUTE must not be empty")
	}
	return nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
