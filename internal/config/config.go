package config

import (
	"errors"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	SES      SESConfig      `mapstructure:"ses"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the document store. Driver is "mongo" or "memory";
// the memory driver keeps everything in-process and is meant for local runs.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URI    string `mapstructure:"uri"`
	Name   string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// SESConfig configures review notifications. An empty From disables e-mail and
// notifications are only logged.
type SESConfig struct {
	Region          string `mapstructure:"region"`
	From            string `mapstructure:"from"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "tint" or "json"
}

// CreditsConfig controls the credit ledger: signup bonus, privileged
// accounts that are never charged, and the price of each AI action.
type CreditsConfig struct {
	SignupBonus   int64       `mapstructure:"signup_bonus"`
	ExemptUserIDs []string    `mapstructure:"exempt_user_ids"`
	Costs         CostsConfig `mapstructure:"costs"`
}

type CostsConfig struct {
	Chat                   int64 `mapstructure:"chat"`
	Workout                int64 `mapstructure:"workout"`
	Program                int64 `mapstructure:"program"`
	FormCheckBasic         int64 `mapstructure:"form_check_basic"`
	FormCheckStandard      int64 `mapstructure:"form_check_standard"`
	FormCheckDetailed      int64 `mapstructure:"form_check_detailed"`
	GroupWorkoutPerAthlete int64 `mapstructure:"group_workout_per_athlete"`
}

// GatewayConfig points at the external AI generation service.
type GatewayConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads configuration from an optional .env file, a config.yaml in
// path, and environment variables (server.address -> SERVER_ADDRESS).
func LoadConfig(path string) (config Config, err error) {
	if envErr := godotenv.Load(filepath.Join(path, ".env")); envErr == nil {
		log.Println("Loaded environment from .env")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	// Every key needs a default so that AutomaticEnv can see it during Unmarshal.
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "group_coach")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("ses.region", "us-east-1")
	v.SetDefault("ses.from", "")
	v.SetDefault("ses.access_key_id", "")
	v.SetDefault("ses.secret_access_key", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("credits.signup_bonus", 10)
	v.SetDefault("credits.exempt_user_ids", []string{})
	v.SetDefault("credits.costs.chat", 1)
	v.SetDefault("credits.costs.workout", 5)
	v.SetDefault("credits.costs.program", 10)
	v.SetDefault("credits.costs.form_check_basic", 10)
	v.SetDefault("credits.costs.form_check_standard", 15)
	v.SetDefault("credits.costs.form_check_detailed", 25)
	v.SetDefault("credits.costs.group_workout_per_athlete", 5)
	v.SetDefault("gateway.endpoint", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", "30s")

	err = v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	config.Credits.ExemptUserIDs = splitList(config.Credits.ExemptUserIDs)
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)
	return config, nil
}

// splitList normalizes list values that may arrive from the environment as a
// single comma separated string.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
