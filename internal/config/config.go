package config

import "time"

// Config holds gateway configuration values.
type Config struct {
	// ListenAddr is the TCP address serving IRC clients.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// StatusAddr is the HTTP address serving /health and /api/status.
	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr"`
	// ServerName is the hostname the gateway presents on the IRC side.
	ServerName string `mapstructure:"server_name" yaml:"server_name"`

	// APIBaseURL is the Discord-compatible REST endpoint.
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	// GatewayURL is the websocket event gateway endpoint.
	GatewayURL string `mapstructure:"gateway_url" yaml:"gateway_url"`

	RemoteTimeout   time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MOTD lines shown to clients before login.
	MOTD []string `mapstructure:"motd" yaml:"motd"`

	LoginLimit LimitConfig `mapstructure:"login_limit" yaml:"login_limit"`
	NickLimit  LimitConfig `mapstructure:"nick_limit" yaml:"nick_limit"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// LimitConfig describes one token bucket family: Tokens refill over
// Window, spent one per attempt.
type LimitConfig struct {
	Tokens int           `mapstructure:"tokens" yaml:"tokens"`
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// FillRate converts the limit into tokens per second.
func (l LimitConfig) FillRate() float64 {
	if l.Window <= 0 {
		return 0
	}
	return float64(l.Tokens) / l.Window.Seconds()
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ListenAddr:      ":6667",
		StatusAddr:      ":8080",
		ServerName:      "discord.gg",
		APIBaseURL:      "https://discordapp.com/api",
		GatewayURL:      "wss://gateway.discord.gg",
		RemoteTimeout:   30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MOTD: []string{
			"Bridging your client to Discord.",
			"Log in with PASS email:password or PASS token.",
		},
		LoginLimit: LimitConfig{Tokens: 5, Window: 5 * time.Minute},
		NickLimit:  LimitConfig{Tokens: 2, Window: time.Hour},
		LogLevel:   "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ListenAddr != "" {
		c.ListenAddr = other.ListenAddr
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.ServerName != "" {
		c.ServerName = other.ServerName
	}
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.GatewayURL != "" {
		c.GatewayURL = other.GatewayURL
	}
	if other.RemoteTimeout != 0 {
		c.RemoteTimeout = other.RemoteTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if len(other.MOTD) > 0 {
		c.MOTD = other.MOTD
	}
	if other.LoginLimit.Tokens != 0 {
		c.LoginLimit = other.LoginLimit
	}
	if other.NickLimit.Tokens != 0 {
		c.NickLimit = other.NickLimit
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
