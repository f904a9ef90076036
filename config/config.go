package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	// StateDB is the SQLite file holding the dashboard document. Empty means
	// state is kept in memory only.
	StateDB string `toml:"state_db"`
}

type SupabaseConfig struct {
	Url string `toml:"url"`
	// key is specified via the SUPABASE_KEY env var
	Schema string `toml:"schema"`
}

type HistoryConfig struct {
	BufferDB           string         `toml:"buffer_db"`
	UploadIntervalSecs int            `toml:"upload_interval_secs"`
	Supabase           SupabaseConfig `toml:"supabase"`
}

type MQTTConfig struct {
	// Broker is host:port. Empty disables the MQTT telemetry bridge.
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
}

type ConsoleConfig struct {
	// Host is the server address the operator console connects to.
	Host string `toml:"host"`
}

type Config struct {
	Server  ServerConfig  `toml:"server"`
	History HistoryConfig `toml:"history"`
	MQTT    MQTTConfig    `toml:"mqtt"`
	Console ConsoleConfig `toml:"console"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    8039,
			StateDB:       "linewatch.sqlite",
		},
		History: HistoryConfig{
			BufferDB:           "history.sqlite",
			UploadIntervalSecs: 5,
			Supabase: SupabaseConfig{
				Url:    "",
				Schema: "linewatch",
			},
		},
		MQTT: MQTTConfig{
			Broker:   "",
			Topic:    "linewatch/telemetry",
			ClientID: "linewatch-server",
		},
		Console: ConsoleConfig{
			Host: "localhost:8039",
		},
	}
}

// Load reads the TOML config at path. When the file does not exist it is created
// with defaults, so a fresh install comes up without any hand-editing.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()

		cfgFile, err := os.Create(path)
		if err != nil {
			return Config{}, fmt.Errorf("create config file: %w", err)
		}
		defer cfgFile.Close()

		err = toml.NewEncoder(cfgFile).Encode(cfg)
		if err != nil {
			return Config{}, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
