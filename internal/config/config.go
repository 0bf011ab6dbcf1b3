// Package config assembles the server's configuration from defaults, an
// optional TOML file, and environment variable overrides, following the
// option table this system exposes externally.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the fully-resolved configuration passed to every subsystem.
// Nothing past main() reads a flag or an environment variable directly.
type Config struct {
	SMTPIP    string `toml:"smtp_ip"`
	SMTPPort  int    `toml:"smtp_port"`
	SMTPIdent string `toml:"smtp_ident"`
	SMTPAuth  string `toml:"smtp_auth"`

	HTTPIP   string `toml:"http_ip"`
	HTTPPort int    `toml:"http_port"`
	HTTPAuth string `toml:"http_auth"`

	DB string `toml:"db"`

	NoQuit  bool `toml:"no_quit"`
	NoClear bool `toml:"no_clear"`

	CallbackWebhookURL    string `toml:"callback_webhook_url"`
	CallbackWebhookMethod string `toml:"callback_webhook_method"`
	CallbackWebhookAuth   string `toml:"callback_webhook_auth"`

	Debug bool `toml:"debug"`

	LogFile string `toml:"log_file"`
	PidFile string `toml:"pid_file"`
}

// Defaults returns the built-in defaults, matching the external
// interface's stated default binds.
func Defaults() Config {
	return Config{
		SMTPIP:                "127.0.0.1",
		SMTPPort:              1025,
		HTTPIP:                "127.0.0.1",
		HTTPPort:              1080,
		DB:                    "",
		CallbackWebhookMethod: "POST",
		LogFile:               "stderr",
	}
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// Load reads defaults, then overlays a TOML file (if path is non-empty),
// then environment variables prefixed SENDRIA_, then validates.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.CallbackWebhookMethod == "" {
		cfg.CallbackWebhookMethod = "POST"
	}
	method := strings.ToUpper(cfg.CallbackWebhookMethod)
	if !validMethods[method] {
		return cfg, fmt.Errorf("invalid callback_webhook_method %q", cfg.CallbackWebhookMethod)
	}
	cfg.CallbackWebhookMethod = method

	if cfg.SMTPIdent == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "sendria"
		}
		cfg.SMTPIdent = host
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("SENDRIA_" + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv("SENDRIA_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("SENDRIA_" + key); ok {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}

	str("SMTP_IP", &cfg.SMTPIP)
	num("SMTP_PORT", &cfg.SMTPPort)
	str("SMTP_IDENT", &cfg.SMTPIdent)
	str("SMTP_AUTH", &cfg.SMTPAuth)
	str("HTTP_IP", &cfg.HTTPIP)
	num("HTTP_PORT", &cfg.HTTPPort)
	str("HTTP_AUTH", &cfg.HTTPAuth)
	str("DB", &cfg.DB)
	boolean("NO_QUIT", &cfg.NoQuit)
	boolean("NO_CLEAR", &cfg.NoClear)
	str("CALLBACK_WEBHOOK_URL", &cfg.CallbackWebhookURL)
	str("CALLBACK_WEBHOOK_METHOD", &cfg.CallbackWebhookMethod)
	str("CALLBACK_WEBHOOK_AUTH", &cfg.CallbackWebhookAuth)
	boolean("DEBUG", &cfg.Debug)
	str("LOG_FILE", &cfg.LogFile)
	str("PID_FILE", &cfg.PidFile)
}
