package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Конечная структура конфигурации приложения.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
	} `mapstructure:"server"`

	Auth struct {
		AdminToken string `mapstructure:"admin_token"` // Bearer-токен для /api
	} `mapstructure:"auth"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто — только stdout
	} `mapstructure:"logs"`

	Database struct {
		Driver string `mapstructure:"driver"` // "sqlite" | "mysql" | "postgres"
		DSN    string `mapstructure:"dsn"`    // для sqlite — путь к файлу
	} `mapstructure:"database"`

	WireGuard struct {
		ConfigDir  string `mapstructure:"config_dir"`  // куда пишем wg0.conf и ключи
		KeyGen     string `mapstructure:"keygen"`      // auto|wg|native
		WGBinary   string `mapstructure:"wg_binary"`   // путь к утилите wg
		SyncDevice bool   `mapstructure:"sync_device"` // применять пиров к живому интерфейсу через wgctrl
	} `mapstructure:"wireguard"`
}

// Load читает конфиг из .env/env/файла с дефолтами.
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("auth.admin_token", "CHANGE_ME")

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "gate-wireguard.db")

	v.SetDefault("wireguard.config_dir", filepath.Join("config", "wireguard"))
	v.SetDefault("wireguard.keygen", "auto")
	v.SetDefault("wireguard.wg_binary", "wg")
	v.SetDefault("wireguard.sync_device", false)

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "gate-wireguard"))
		}
		v.AddConfigPath("/etc/gate-wireguard")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Auth.AdminToken) == "" || c.Auth.AdminToken == "CHANGE_ME" {
		return errors.New("auth.admin_token must be set (not empty and not CHANGE_ME)")
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if strings.TrimSpace(c.WireGuard.ConfigDir) == "" {
		return errors.New("wireguard.config_dir must not be empty")
	}
	switch c.WireGuard.KeyGen {
	case "auto", "wg", "native":
	default:
		return fmt.Errorf("wireguard.keygen %q: expected auto|wg|native", c.WireGuard.KeyGen)
	}
	return nil
}
