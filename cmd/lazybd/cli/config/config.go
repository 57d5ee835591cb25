package config

// Config mirrors the Configuration Surface the core consumes.
// Tags double as mapstructure keys for Viper unmarshaling and as yaml keys
// for the file this CLI reads and writes.
type Config struct {
	IOEngine    int            `mapstructure:"ioEngine" yaml:"ioEngine"`
	RepoBlobURL string         `mapstructure:"repoBlobUrl" yaml:"repoBlobUrl"`
	Download    DownloadConfig `mapstructure:"download" yaml:"download"`

	AccelerationLayer bool   `mapstructure:"accelerationLayer" yaml:"accelerationLayer"`
	RecordTracePath   string `mapstructure:"recordTracePath" yaml:"recordTracePath"`
}

// DownloadConfig holds background-download settings.
type DownloadConfig struct {
	Enable     bool    `mapstructure:"enable" yaml:"enable"`
	Delay      float64 `mapstructure:"delay" yaml:"delay"`
	DelayExtra float64 `mapstructure:"delayExtra" yaml:"delayExtra"`
	MaxMBps    float64 `mapstructure:"maxMBps" yaml:"maxMBps"`
	TryCnt     int     `mapstructure:"tryCnt" yaml:"tryCnt"`
}

// Default returns the configuration surface's documented defaults.
func Default() Config {
	return Config{
		IOEngine: 0,
		Download: DownloadConfig{Enable: false, DelayExtra: -1, TryCnt: 3},
	}
}
