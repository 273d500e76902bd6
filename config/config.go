package config

import (
	"github.com/spf13/viper"
)

// NetworkConfig holds the transport fault model.
type NetworkConfig struct {
	MinDelay      float64 `mapstructure:"min_delay"`
	MaxDelay      float64 `mapstructure:"max_delay"`
	DropRate      float64 `mapstructure:"drop_rate"`
	DuplicateRate float64 `mapstructure:"duplicate_rate"`
	RateLimit     int     `mapstructure:"rate_limit"`
}

// Config is the simulation configuration consumed by the orchestrator and
// passed piecewise to nodes and the network simulator.
type Config struct {
	ChainID            string        `mapstructure:"chain_id"`
	NumNodes           int           `mapstructure:"num_nodes"`
	NumTransactions    int           `mapstructure:"num_transactions"`
	NumBlocks          int           `mapstructure:"num_blocks"`
	SimulationDuration float64       `mapstructure:"simulation_duration"`
	Seed               int64         `mapstructure:"seed"`
	LogFile            string        `mapstructure:"log_file"`
	LogLevel           int           `mapstructure:"log_level"`
	Network            NetworkConfig `mapstructure:"network"`
}

// LoadConfig reads the named config file (yaml) from configPath; when
// configPath is empty it searches the working directory and then ./config.
// A non-empty configPath is the only place searched. Missing keys take the
// documented defaults.
func LoadConfig(configPath, configName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath("./")
		v.AddConfigPath("./config")
	}

	v.SetDefault("chain_id", "mainnet")
	v.SetDefault("num_nodes", 8)
	v.SetDefault("num_transactions", 5)
	v.SetDefault("num_blocks", 3)
	v.SetDefault("simulation_duration", 2.0)
	v.SetDefault("seed", 42)
	v.SetDefault("log_file", "logs/simulation.log")
	v.SetDefault("log_level", 3)
	v.SetDefault("network.min_delay", 0.01)
	v.SetDefault("network.max_delay", 0.5)
	v.SetDefault("network.drop_rate", 0.05)
	v.SetDefault("network.duplicate_rate", 0.02)
	v.SetDefault("network.rate_limit", 100)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// New builds a config programmatically, mainly for tests.
func New(chainID string, numNodes, numTransactions, numBlocks int, simulationDuration float64,
	seed int64, logLevel int, network NetworkConfig) *Config {
	return &Config{
		ChainID:            chainID,
		NumNodes:           numNodes,
		NumTransactions:    numTransactions,
		NumBlocks:          numBlocks,
		SimulationDuration: simulationDuration,
		Seed:               seed,
		LogFile:            "logs/simulation.log",
		LogLevel:           logLevel,
		Network:            network,
	}
}
