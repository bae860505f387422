package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "CHANNEL_CONNECTOR"

	URL_APP_NAME                  = "URL_App_Name"
	URL_PATH_PREFIX               = "URL_Path_Prefix"
	URL_BASE_PATH                 = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT         = "HTTP_Shutdown_Timeout"
	PROFILE                       = "Enable_Profile"
	JWT_SIGNING_KEY               = "Jwt_Signing_Key"
	JWT_TOKEN_EXPIRY              = "Jwt_Token_Expiry_Minutes"
	DATABASE_HOST                 = "Database_Host"
	DATABASE_PORT                 = "Database_Port"
	DATABASE_USER                 = "Database_User"
	DATABASE_PASSWORD             = "Database_Password"
	DATABASE_NAME                 = "Database_Name"
	DATABASE_SSL_MODE             = "Database_SSL_Mode"
	DATABASE_SSL_ROOT_CERT        = "Database_SSL_Root_Cert"
	DB_MIGRATION_LOCATION         = "DB_Migration_Location"
	PROVIDER_CONNECT_TIMEOUT      = "Provider_Connect_Timeout"
	PROVIDER_SEND_TIMEOUT         = "Provider_Send_Timeout"
	SOCKET_WRITE_TIMEOUT          = "Socket_Write_Timeout"
	SOCKET_PING_INTERVAL          = "Socket_Ping_Interval"
	SOCKET_SEND_BUFFER_SIZE       = "Socket_Send_Buffer_Size"
	INSTANCE_CACHE_SIZE           = "Instance_Cache_Size"
	INSTANCE_CACHE_TTL            = "Instance_Cache_TTL"
	EVENT_FEED_BROKERS            = "Event_Feed_Kafka_Brokers"
	EVENT_FEED_TOPIC              = "Event_Feed_Kafka_Topic"
	EVENT_FEED_BATCH_SIZE         = "Event_Feed_Kafka_Batch_Size"
	EVENT_FEED_BATCH_BYTES        = "Event_Feed_Kafka_Batch_Bytes"
	EVENT_FEED_BALANCER           = "Event_Feed_Kafka_Balancer"
	KAFKA_USERNAME                = "Kafka_Username"
	KAFKA_PASSWORD                = "Kafka_Password"
	KAFKA_SASL_MECHANISM          = "Kafka_SASL_Mechanism"
	KAFKA_CA                      = "Kafka_CA"
	DEFAULT_PAGINATION_LIMIT      = "Default_Pagination_Limit"
	MAX_PAGINATION_LIMIT          = "Max_Pagination_Limit"
)

type Config struct {
	UrlAppName              string
	UrlPathPrefix           string
	UrlBasePath             string
	HttpShutdownTimeout     time.Duration
	Profile                 bool
	JwtSigningKey           string
	JwtTokenExpiry          int
	DatabaseHost            string
	DatabasePort            int
	DatabaseUser            string
	DatabasePassword        string
	DatabaseName            string
	DatabaseSslMode         string
	DatabaseSslRootCert     string
	DbMigrationLocation     string
	ProviderConnectTimeout  time.Duration
	ProviderSendTimeout     time.Duration
	SocketWriteTimeout      time.Duration
	SocketPingInterval      time.Duration
	SocketSendBufferSize    int
	InstanceCacheSize       int
	InstanceCacheTTL        time.Duration
	EventFeedBrokers        []string
	EventFeedTopic          string
	EventFeedBatchSize      int
	EventFeedBatchBytes     int
	EventFeedBalancer       string
	KafkaUsername           string
	KafkaPassword           string
	KafkaSASLMechanism      string
	KafkaCA                 string
	DefaultPaginationLimit  int
	MaxPaginationLimit      int
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_HOST, c.DatabaseHost)
	fmt.Fprintf(&b, "%s: %d\n", DATABASE_PORT, c.DatabasePort)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_NAME, c.DatabaseName)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_SSL_MODE, c.DatabaseSslMode)
	fmt.Fprintf(&b, "%s: %s\n", DB_MIGRATION_LOCATION, c.DbMigrationLocation)
	fmt.Fprintf(&b, "%s: %s\n", PROVIDER_CONNECT_TIMEOUT, c.ProviderConnectTimeout)
	fmt.Fprintf(&b, "%s: %s\n", PROVIDER_SEND_TIMEOUT, c.ProviderSendTimeout)
	fmt.Fprintf(&b, "%s: %s\n", SOCKET_WRITE_TIMEOUT, c.SocketWriteTimeout)
	fmt.Fprintf(&b, "%s: %s\n", SOCKET_PING_INTERVAL, c.SocketPingInterval)
	fmt.Fprintf(&b, "%s: %d\n", SOCKET_SEND_BUFFER_SIZE, c.SocketSendBufferSize)
	fmt.Fprintf(&b, "%s: %d\n", INSTANCE_CACHE_SIZE, c.InstanceCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", INSTANCE_CACHE_TTL, c.InstanceCacheTTL)
	fmt.Fprintf(&b, "%s: %s\n", EVENT_FEED_BROKERS, c.EventFeedBrokers)
	fmt.Fprintf(&b, "%s: %s\n", EVENT_FEED_TOPIC, c.EventFeedTopic)
	fmt.Fprintf(&b, "%s: %d\n", EVENT_FEED_BATCH_SIZE, c.EventFeedBatchSize)
	fmt.Fprintf(&b, "%s: %d\n", EVENT_FEED_BATCH_BYTES, c.EventFeedBatchBytes)
	fmt.Fprintf(&b, "%s: %s\n", EVENT_FEED_BALANCER, c.EventFeedBalancer)
	fmt.Fprintf(&b, "%s: %d\n", DEFAULT_PAGINATION_LIMIT, c.DefaultPaginationLimit)
	fmt.Fprintf(&b, "%s: %d\n", MAX_PAGINATION_LIMIT, c.MaxPaginationLimit)

	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "channel-connector")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(PROFILE, false)
	options.SetDefault(JWT_SIGNING_KEY, "")
	options.SetDefault(JWT_TOKEN_EXPIRY, 60)
	options.SetDefault(DATABASE_HOST, "localhost")
	options.SetDefault(DATABASE_PORT, 5432)
	options.SetDefault(DATABASE_USER, "postgres")
	options.SetDefault(DATABASE_PASSWORD, "postgres")
	options.SetDefault(DATABASE_NAME, "channel-connector")
	options.SetDefault(DATABASE_SSL_MODE, "disable")
	options.SetDefault(DATABASE_SSL_ROOT_CERT, "db_ssl_root_cert.pem")
	options.SetDefault(DB_MIGRATION_LOCATION, "file://db/migrations")
	options.SetDefault(PROVIDER_CONNECT_TIMEOUT, 30)
	options.SetDefault(PROVIDER_SEND_TIMEOUT, 15)
	options.SetDefault(SOCKET_WRITE_TIMEOUT, 10)
	options.SetDefault(SOCKET_PING_INTERVAL, 15)
	options.SetDefault(SOCKET_SEND_BUFFER_SIZE, 32)
	options.SetDefault(INSTANCE_CACHE_SIZE, 1024)
	options.SetDefault(INSTANCE_CACHE_TTL, 300)
	options.SetDefault(EVENT_FEED_BROKERS, []string{})
	options.SetDefault(EVENT_FEED_TOPIC, "platform.channel-connector.events")
	options.SetDefault(EVENT_FEED_BATCH_SIZE, 100)
	options.SetDefault(EVENT_FEED_BATCH_BYTES, 1048576)
	options.SetDefault(EVENT_FEED_BALANCER, "hash")
	options.SetDefault(KAFKA_USERNAME, "")
	options.SetDefault(KAFKA_PASSWORD, "")
	options.SetDefault(KAFKA_SASL_MECHANISM, "")
	options.SetDefault(KAFKA_CA, "")
	options.SetDefault(DEFAULT_PAGINATION_LIMIT, 100)
	options.SetDefault(MAX_PAGINATION_LIMIT, 1000)

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		UrlPathPrefix:          options.GetString(URL_PATH_PREFIX),
		UrlAppName:             options.GetString(URL_APP_NAME),
		UrlBasePath:            buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout:    options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		Profile:                options.GetBool(PROFILE),
		JwtSigningKey:          options.GetString(JWT_SIGNING_KEY),
		JwtTokenExpiry:         options.GetInt(JWT_TOKEN_EXPIRY),
		DatabaseHost:           options.GetString(DATABASE_HOST),
		DatabasePort:           options.GetInt(DATABASE_PORT),
		DatabaseUser:           options.GetString(DATABASE_USER),
		DatabasePassword:       options.GetString(DATABASE_PASSWORD),
		DatabaseName:           options.GetString(DATABASE_NAME),
		DatabaseSslMode:        options.GetString(DATABASE_SSL_MODE),
		DatabaseSslRootCert:    options.GetString(DATABASE_SSL_ROOT_CERT),
		DbMigrationLocation:    options.GetString(DB_MIGRATION_LOCATION),
		ProviderConnectTimeout: options.GetDuration(PROVIDER_CONNECT_TIMEOUT) * time.Second,
		ProviderSendTimeout:    options.GetDuration(PROVIDER_SEND_TIMEOUT) * time.Second,
		SocketWriteTimeout:     options.GetDuration(SOCKET_WRITE_TIMEOUT) * time.Second,
		SocketPingInterval:     options.GetDuration(SOCKET_PING_INTERVAL) * time.Second,
		SocketSendBufferSize:   options.GetInt(SOCKET_SEND_BUFFER_SIZE),
		InstanceCacheSize:      options.GetInt(INSTANCE_CACHE_SIZE),
		InstanceCacheTTL:       options.GetDuration(INSTANCE_CACHE_TTL) * time.Second,
		EventFeedBrokers:       options.GetStringSlice(EVENT_FEED_BROKERS),
		EventFeedTopic:         options.GetString(EVENT_FEED_TOPIC),
		EventFeedBatchSize:     options.GetInt(EVENT_FEED_BATCH_SIZE),
		EventFeedBatchBytes:    options.GetInt(EVENT_FEED_BATCH_BYTES),
		EventFeedBalancer:      options.GetString(EVENT_FEED_BALANCER),
		KafkaUsername:          options.GetString(KAFKA_USERNAME),
		KafkaPassword:          options.GetString(KAFKA_PASSWORD),
		KafkaSASLMechanism:     options.GetString(KAFKA_SASL_MECHANISM),
		KafkaCA:                options.GetString(KAFKA_CA),
		DefaultPaginationLimit: options.GetInt(DEFAULT_PAGINATION_LIMIT),
		MaxPaginationLimit:     options.GetInt(MAX_PAGINATION_LIMIT),
	}
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
