package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/tvremote/protocol"
)

// Config is loaded in layers: Defaults, then the TOML file, then .env.local,
// then the process environment.
type Config struct {
	LogLevel string `toml:"log_level" env:"TVREMOTE_LOG_LEVEL"`

	ClientName       string        `toml:"client_name" env:"TVREMOTE_CLIENT_NAME"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout" env:"TVREMOTE_HANDSHAKE_TIMEOUT"`
	DialTimeout      time.Duration `toml:"dial_timeout" env:"TVREMOTE_DIAL_TIMEOUT"`
	IdleTimeout      time.Duration `toml:"idle_timeout" env:"TVREMOTE_IDLE_TIMEOUT"`

	ServiceType    string        `toml:"service_type" env:"TVREMOTE_SERVICE_TYPE"`
	Domain         string        `toml:"domain" env:"TVREMOTE_DOMAIN"`
	BrowseWindow   time.Duration `toml:"browse_window" env:"TVREMOTE_BROWSE_WINDOW"`
	LostAfter      int           `toml:"lost_after" env:"TVREMOTE_LOST_AFTER"`
	ResolveTimeout time.Duration `toml:"resolve_timeout" env:"TVREMOTE_RESOLVE_TIMEOUT"`

	HTTPHost  string `toml:"http_host" env:"TVREMOTE_HTTP_HOST"`
	HTTPPort  int    `toml:"http_port" env:"TVREMOTE_HTTP_PORT"`
	Reuseport bool   `toml:"reuseport" env:"TVREMOTE_REUSEPORT"`
	DebugHTTP bool   `toml:"debug_http" env:"TVREMOTE_DEBUG_HTTP"`
}

func Defaults() Config {
	return Config{
		LogLevel:         "info",
		ClientName:       "tvremote",
		HandshakeTimeout: 0,
		DialTimeout:      5 * time.Second,
		ServiceType:      protocol.DefaultServiceType,
		Domain:           "local.",
		BrowseWindow:     10 * time.Second,
		LostAfter:        2,
		ResolveTimeout:   5 * time.Second,
		HTTPHost:         "127.0.0.1",
		HTTPPort:         7362,
	}
}

// LoadConfig builds the configuration. path names an optional TOML file, a
// missing file is only an error when path was given explicitly.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, fmt.Errorf("Failed to load config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(".env.local"); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Failed to load .env.local: %w", err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
