package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// SessionSettings is the configuration surface of one device session.
// A snapshot is taken when start is invoked; later edits never affect an
// in-flight session.
type SessionSettings struct {
	MaxSize      int    `mapstructure:"max_size" json:"maxSize"`
	VideoBitRate int    `mapstructure:"video_bit_rate" json:"videoBitRate"`
	MaxFPS       int    `mapstructure:"max_fps" json:"maxFps"`
	Audio        bool   `mapstructure:"audio" json:"audio"`
	VideoCodec   string `mapstructure:"video_codec" json:"videoCodec"` // h264, h265 or av1
	Decoder      string `mapstructure:"decoder" json:"decoder"`        // software or hardware
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// AgentURL is the local resource the mirroring-agent payload is fetched from.
	AgentURL string `mapstructure:"agent_url"`
	// KeyPath is where the device-protocol credential key lives.
	KeyPath string `mapstructure:"key_path"`

	Session SessionSettings `mapstructure:"session"`
}

// Snapshot returns a copy of the default session settings.
func (c *Config) Snapshot() SessionSettings {
	return c.Session
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("agent_url", "http://127.0.0.1:8080/static/agent/droidview-agent.jar")
	v.SetDefault("key_path", "droidview.key")
	v.SetDefault("session.max_size", 1280)
	v.SetDefault("session.video_bit_rate", 8_000_000)
	v.SetDefault("session.max_fps", 60)
	v.SetDefault("session.audio", false)
	v.SetDefault("session.video_codec", "h264")
	v.SetDefault("session.decoder", "software")
}
