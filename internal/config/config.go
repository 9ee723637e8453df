package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string   `yaml:"env" env-default:"local" env:"ENV"`
	Mode       string   `yaml:"mode" env-default:"peer" env:"MODE"`
	Connect    []string `yaml:"connect" env:"CONNECT" env-separator:","`
	ListenPort int      `yaml:"listen_port" env-default:"7447" env:"LISTEN_PORT"`
	Scouting   Scouting `yaml:"scouting"`
	Storage    Storage  `yaml:"storage"`
}

type Scouting struct {
	Multicast bool          `yaml:"multicast" env-default:"true" env:"SCOUT_MULTICAST"`
	Gossip    bool          `yaml:"gossip" env-default:"true" env:"SCOUT_GOSSIP"`
	Group     string        `yaml:"group" env-default:"224.0.0.224:7446" env:"SCOUT_GROUP"`
	Timeout   time.Duration `yaml:"timeout" env-default:"5s" env:"SCOUT_TIMEOUT"`
	Interval  time.Duration `yaml:"interval" env-default:"1s" env:"SCOUT_INTERVAL"`
}

type Storage struct {
	HelloCachePath string `yaml:"hello_cache_path" env-default:"hellos.db" env:"HELLO_CACHE_PATH"`
	RegistryPath   string `yaml:"registry_path" env-default:"registry.sqlite" env:"REGISTRY_PATH"`
	MigrationsPath string `yaml:"migrations_path" env-default:"migrations" env:"MIGRATIONS_PATH"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadConfig(configPath)
}

func MustLoadConfig(configPath string) *Config {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

// Load reads the config without panicking, for reloads at runtime.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Priority: flag > env > default.
// default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
