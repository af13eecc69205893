package configuration

import (
	"fmt"
	"os"
	"strconv"

	"social-publisher/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	Database    Database    `json:"database"`
	App         App         `json:"app"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	RedisClient RedisClient `json:"redisClient"`
	Logger      Logger      `json:"logger"`
	OAuth       OAuth       `json:"oauth"`
	Publish     Publish     `json:"publish"`
	ContentGen  ContentGen  `json:"contentGen"`
}

type App struct {
	Port             int      `json:"port"`
	SecretKey        string   `json:"secretKey"`
	TLSEnabled       bool     `json:"tlsEnabled"`
	TLSCertFile      string   `json:"tlsCertFile"`
	TLSKeyFile       string   `json:"tlsKeyFile"`
	SimulatedEnabled bool     `json:"simulatedEnabled"`
	AllowOrigins     []string `json:"allowOrigins"`
	// OAuthSuccessRedirect receives the browser after a completed connect.
	OAuthSuccessRedirect string `json:"oauthSuccessRedirect"`
}

type Database struct {
	Vendor string `json:"vendor"`
	Psql   Db     `json:"psql"`
	MySql  Db     `json:"mysql"`
	Mongo  Db     `json:"mongo"`
	Mssql  Db     `json:"mssql"`
	Pool   Pool   `json:"pool"`
}

// Pool tunes database/sql connection pools of the SQL credential stores.
type Pool struct {
	MaxOpenConns           int `json:"maxOpenConns"`
	MaxIdleConns           int `json:"maxIdleConns"`
	ConnMaxLifetimeSeconds int `json:"connMaxLifetimeSeconds"`
	ConnMaxIdleTimeSeconds int `json:"connMaxIdleTimeSeconds"`
	PingTimeoutSeconds     int `json:"pingTimeoutSeconds"`
}

type Db struct {
	Name     string `json:"string"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
	Topic     string `json:"topic"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

type RedisClient struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Password     string `json:"password"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
}

type Logger struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

// OAuth holds third-party platform OAuth client credentials
type OAuth struct {
	YouTube   OAuthClient `json:"youtube"`
	Instagram OAuthClient `json:"instagram"`
	Facebook  OAuthClient `json:"facebook"`
	Twitter   OAuthClient `json:"twitter"`
	LinkedIn  OAuthClient `json:"linkedin"`
	TikTok    OAuthClient `json:"tiktok"`
}

type OAuthClient struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	RedirectURI  string   `json:"redirectURI"`
	Scopes       []string `json:"scopes"`
	AuthURL      string   `json:"authURL"`
	TokenURL     string   `json:"tokenURL"`
}

// Publish tunes the orchestrator, the upload engine and the adapters.
type Publish struct {
	ChunkSizeBytes        int64              `json:"chunkSizeBytes"`
	MaxVideoBytes         int64              `json:"maxVideoBytes"`
	MaxChunkRequests      int                `json:"maxChunkRequests"`
	InitTimeoutSeconds    int                `json:"initTimeoutSeconds"`
	ChunkTimeoutSeconds   int                `json:"chunkTimeoutSeconds"`
	RefreshTimeoutSeconds int                `json:"refreshTimeoutSeconds"`
	RequestTimeoutSeconds int                `json:"requestTimeoutSeconds"`
	MinValiditySeconds    int                `json:"minValiditySeconds"`
	ContainerDelaySeconds int                `json:"containerDelaySeconds"`
	MaxConcurrency        int                `json:"maxConcurrency"`
	EventTimeoutSeconds   int                `json:"eventTimeoutSeconds"`
	EventBuffer           int                `json:"eventBuffer"`
	RunTimeoutSeconds     int                `json:"runTimeoutSeconds"`
	PrivacyStatus         string             `json:"privacyStatus"`
	CategoryID            string             `json:"categoryId"`
	YouTubeUploadURL      string             `json:"youtubeUploadURL"`
	GraphBaseURL          string             `json:"graphBaseURL"`
	RateLimits            map[string]float64 `json:"rateLimits"`
}

type ContentGen struct {
	URL            string `json:"url"`
	APIKey         string `json:"apiKey"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

var C Config

func init() {
	Reload()
}

// Reload re-reads the config file and environment, e.g. after .env files
// were loaded into the process environment.
func Reload() {
	C = Config{}
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initPublish(&C.Publish)
	// Prefer https redirect URIs locally when TLS enabled
	if C.App.TLSEnabled {
		for _, oc := range []*OAuthClient{&C.OAuth.YouTube, &C.OAuth.Instagram, &C.OAuth.Facebook, &C.OAuth.Twitter, &C.OAuth.LinkedIn, &C.OAuth.TikTok} {
			if oc.RedirectURI != "" && !hasHTTPS(oc.RedirectURI) {
				oc.RedirectURI = toHTTPSCallback(oc.RedirectURI)
			}
		}
	}
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	if v := os.Getenv("DB_VENDOR"); v != "" {
		C.Database.Vendor = v
	}
	if C.Database.Psql.Name == "" {
		C.Database.Psql.Name = os.Getenv("DB_NAME")
	}
	if C.Database.Psql.Host == "" {
		C.Database.Psql.Host = os.Getenv("DB_HOST")
	}
	if C.Database.Psql.User == "" {
		C.Database.Psql.User = os.Getenv("DB_USER")
	}
	if C.Database.Psql.Password == "" {
		C.Database.Psql.Password = os.Getenv("DB_PASSWORD")
	}
	if C.Database.Psql.Port == "" {
		C.Database.Psql.Port = os.Getenv("DB_PORT")
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"vendor": C.Database.Vendor,
		"host":   C.Database.Psql.Host,
		"name":   C.Database.Psql.Name,
	}).Info("Database configuration")

	// Optional MSSQL config via environment variables (for Azure SQL in production)
	if C.Database.Mssql.Name == "" {
		C.Database.Mssql.Name = os.Getenv("MSSQL_DB_NAME")
	}
	if C.Database.Mssql.Host == "" {
		C.Database.Mssql.Host = getEnv("MSSQL_HOST", "localhost")
	}
	if C.Database.Mssql.Password == "" {
		C.Database.Mssql.Password = os.Getenv("MSSQL_PASSWORD")
	}
	if C.Database.Mssql.Port == "" {
		C.Database.Mssql.Port = getEnv("MSSQL_PORT", "1433")
	}
	if C.Database.Mssql.User == "" {
		C.Database.Mssql.User = getEnv("MSSQL_USER", "sa")
	}

	if C.Database.MySql.Host == "" {
		C.Database.MySql.Host = getEnv("MYSQL_HOST", "localhost")
	}
	if C.Database.MySql.Port == "" {
		C.Database.MySql.Port = getEnv("MYSQL_PORT", "3306")
	}
	if C.Database.MySql.User == "" {
		C.Database.MySql.User = os.Getenv("MYSQL_USER")
	}
	if C.Database.MySql.Password == "" {
		C.Database.MySql.Password = os.Getenv("MYSQL_PASSWORD")
	}
	if C.Database.MySql.Name == "" {
		C.Database.MySql.Name = os.Getenv("MYSQL_DB_NAME")
	}

	initPool(&C.Database.Pool)

	if C.Database.Mongo.Host == "" {
		C.Database.Mongo.Host = os.Getenv("MONGO_HOST")
	}
	if C.Database.Mongo.Port == "" {
		C.Database.Mongo.Port = getEnv("MONGO_PORT", "27017")
	}
	if C.Database.Mongo.Name == "" {
		C.Database.Mongo.Name = getEnv("MONGO_DB_NAME", "social_publisher")
	}
}

func initApp(C *Config) {
	// Prefer SECRET_KEY from environment for JWT verification; overrides config file when provided
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		C.App.TLSEnabled = parseBool(v, C.App.TLSEnabled)
	}
	if v := os.Getenv("SIMULATED_ENABLED"); v != "" {
		C.App.SimulatedEnabled = parseBool(v, C.App.SimulatedEnabled)
	}
	if C.App.OAuthSuccessRedirect == "" {
		C.App.OAuthSuccessRedirect = os.Getenv("OAUTH_SUCCESS_REDIRECT")
	}
	if C.App.TLSCertFile == "" {
		C.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if C.App.TLSKeyFile == "" {
		C.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if len(C.App.AllowOrigins) == 0 {
		C.App.AllowOrigins = []string{"http://localhost:4200", "https://localhost:4200", "http://localhost:5173"}
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

func initPool(p *Pool) {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 20
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 10
	}
	if p.ConnMaxLifetimeSeconds <= 0 {
		p.ConnMaxLifetimeSeconds = 300
	}
	if p.ConnMaxIdleTimeSeconds <= 0 {
		p.ConnMaxIdleTimeSeconds = 300
	}
	if p.PingTimeoutSeconds <= 0 {
		p.PingTimeoutSeconds = 5
	}
}

func initPublish(p *Publish) {
	if p.ChunkSizeBytes <= 0 {
		p.ChunkSizeBytes = 5 * 1024 * 1024
	}
	if p.MaxVideoBytes <= 0 {
		p.MaxVideoBytes = 256 << 30
	}
	if p.InitTimeoutSeconds <= 0 {
		p.InitTimeoutSeconds = 30
	}
	if p.ChunkTimeoutSeconds <= 0 {
		p.ChunkTimeoutSeconds = 120
	}
	if p.RefreshTimeoutSeconds <= 0 {
		p.RefreshTimeoutSeconds = 15
	}
	if p.RequestTimeoutSeconds <= 0 {
		p.RequestTimeoutSeconds = 30
	}
	if p.MinValiditySeconds <= 0 {
		p.MinValiditySeconds = 300
	}
	if p.ContainerDelaySeconds <= 0 {
		p.ContainerDelaySeconds = 5
	}
	if p.EventTimeoutSeconds <= 0 {
		p.EventTimeoutSeconds = 5
	}
	if p.EventBuffer <= 0 {
		p.EventBuffer = 256
	}
	if p.RunTimeoutSeconds <= 0 {
		p.RunTimeoutSeconds = 1800
	}
	if p.PrivacyStatus == "" {
		p.PrivacyStatus = getEnv("YOUTUBE_PRIVACY_STATUS", "private")
	}
	if p.CategoryID == "" {
		p.CategoryID = "22"
	}
}

func parseBool(v string, def bool) bool {
	switch v {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	}
	return def
}

// helpers to coerce local callback to https
func hasHTTPS(u string) bool { return len(u) >= 8 && u[:8] == "https://" }
func toHTTPSCallback(u string) string {
	if len(u) >= 7 && u[:7] == "http://" {
		return "https://" + u[7:]
	}
	return u
}

// Env is the deployment environment name (ENV), e.g. "production".
func Env() string { return os.Getenv("ENV") }
