package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	API struct {
		BaseURL string `mapstructure:"base_url"`
	}
	Storage struct {
		Backend   string
		Path      string
		Bucket    string
		KeyPrefix string `mapstructure:"key_prefix"`
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Session struct {
		ClearOnLogoutFailure bool `mapstructure:"clear_on_logout_failure"`
	}
	Backend struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret       string `mapstructure:"jwt_secret"`
		TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
		SeedUsername    string `mapstructure:"seed_username"`
		SeedPassword    string `mapstructure:"seed_password"`
		AllowedOrigin   string `mapstructure:"allowed_origin"`
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")
	return load(".")
}

func load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUTOTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("api.base_url", "http://localhost:5001")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "data/local_storage.db")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.key_prefix", "autotest-console")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("session.clear_on_logout_failure", false)
	v.SetDefault("backend.addr", "0.0.0.0:5001")
	v.SetDefault("database.path", "data/autotest.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 24*60)
	v.SetDefault("auth.seed_username", "admin")
	v.SetDefault("auth.seed_password", "123456")
	v.SetDefault("auth.allowed_origin", "http://localhost:8080")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(configPath)
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	return cfg, nil
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
