package config

import (
	"net"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"publisher"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"100"`
}

// DSN is the postgres connection URL. Credentials are escaped so they may
// carry any character.
func (d *dbConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Hostname, d.Port),
		Path:   "/" + d.Name,
	}
	return u.String()
}

type svcConfig struct {
	Address         string   `envconfig:"PUBLISHER_ADDRESS" default:":3443"`
	MetricsAddress  string   `envconfig:"PUBLISHER_METRICS_ADDRESS" default:":8080"`
	LogLevel        string   `envconfig:"PUBLISHER_LOG_LEVEL" default:"info"`
	LogFormat       string   `envconfig:"PUBLISHER_LOG_FORMAT" default:"console"`
	MigrationFolder string   `envconfig:"PUBLISHER_MIGRATIONS_FOLDER" default:""`
	AllowedOrigins  []string `envconfig:"PUBLISHER_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	Auth            Auth
	Publisher       Publisher
	S3              S3
	Kafka           Kafka
	DataSets        DataSets
}

type Auth struct {
	AuthenticationType string `envconfig:"PUBLISHER_AUTH" default:""`
	JwkCertURL         string `envconfig:"PUBLISHER_JWK_URL" default:""`
	Issuer             string `envconfig:"PUBLISHER_JWT_ISSUER" default:""`
}

// Publisher holds the pipeline schedules. Cron expressions carry a leading
// seconds field.
type Publisher struct {
	StageScheduledReleasesCron  string        `envconfig:"STAGE_SCHEDULED_RELEASES_CRON" default:"0 0 21 * * *"`
	PublishReleaseContentCron   string        `envconfig:"PUBLISH_RELEASE_CONTENT_CRON" default:"0 30 9 * * *"`
	StagingLeadTime             time.Duration `envconfig:"PUBLISHER_STAGING_LEAD_TIME" default:"24h"`
	MaxWorkers                  int           `envconfig:"PUBLISHER_MAX_WORKERS" default:"10"`
	StageTimeout                time.Duration `envconfig:"PUBLISHER_STAGE_TIMEOUT" default:"10m"`
	StatusGaugeInterval         time.Duration `envconfig:"PUBLISHER_STATUS_GAUGE_INTERVAL" default:"1m"`
	CompletedJobRetentionPeriod time.Duration `envconfig:"PUBLISHER_COMPLETED_JOB_RETENTION" default:"24h"`
	DiscardedJobRetentionPeriod time.Duration `envconfig:"PUBLISHER_DISCARDED_JOB_RETENTION" default:"168h"`
	PoliciesFolder              string        `envconfig:"PUBLISHER_POLICIES_FOLDER" default:""`
}

type S3 struct {
	Endpoint      string `envconfig:"PUBLISHER_S3_ENDPOINT" default:""`
	AccessKey     string `envconfig:"PUBLISHER_S3_ACCESS_KEY" default:""`
	SecretKey     string `envconfig:"PUBLISHER_S3_SECRET_KEY" default:""`
	UseSSL        bool   `envconfig:"PUBLISHER_S3_USE_SSL" default:"false"`
	PrivateBucket string `envconfig:"PUBLISHER_S3_PRIVATE_BUCKET" default:"releases-private"`
	PublicBucket  string `envconfig:"PUBLISHER_S3_PUBLIC_BUCKET" default:"releases-public"`
}

type Kafka struct {
	Brokers  []string `envconfig:"PUBLISHER_KAFKA_BROKERS" default:""`
	Topic    string   `envconfig:"PUBLISHER_KAFKA_TOPIC" default:"statspub.publishing.events"`
	ClientID string   `envconfig:"PUBLISHER_KAFKA_CLIENT_ID" default:"release-publisher"`
	Version  string   `envconfig:"PUBLISHER_KAFKA_VERSION" default:""`
	Buffer   int      `envconfig:"PUBLISHER_EVENTS_BUFFER" default:"1024"`
}

type DataSets struct {
	Folder       string        `envconfig:"PUBLISHER_DATA_SETS_FOLDER" default:"/var/lib/publisher/data-sets"`
	DuckDBPath   string        `envconfig:"PUBLISHER_DUCKDB_PATH" default:""`
	MaxPageSize  int           `envconfig:"PUBLISHER_QUERY_MAX_PAGE_SIZE" default:"10000"`
	CacheBackend string        `envconfig:"PUBLISHER_META_CACHE_BACKEND" default:"memory"`
	CacheTTL     time.Duration `envconfig:"PUBLISHER_META_CACHE_TTL" default:"10m"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault builds a fresh configuration that is not cached. Tests use it to
// tweak the database settings without touching the process-wide config.
func NewDefault() *Config {
	cfg := new(Config)
	_ = envconfig.Process("", cfg)
	return cfg
}
