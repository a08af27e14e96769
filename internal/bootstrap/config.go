package bootstrap

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort       string  `mapstructure:"SERVER_PORT"`
	EnginePath       string  `mapstructure:"ENGINE_PATH"`
	EngineSkillLevel int     `mapstructure:"ENGINE_SKILL_LEVEL"`
	EngineThreads    int     `mapstructure:"ENGINE_THREADS"`
	EngineHashSizeMb int     `mapstructure:"ENGINE_HASH_SIZE_MB"`
	EngineMovetimeMs int     `mapstructure:"ENGINE_MOVETIME_MS"`
	EngineDepth      int     `mapstructure:"ENGINE_DEPTH"`
	EngineTimeoutMs  int     `mapstructure:"ENGINE_TIMEOUT_MS"`
	RedisUrl         string  `mapstructure:"REDIS_URL"`
	MongoUri         string  `mapstructure:"MONGO_URI"`
	IsLocalCors      bool    `mapstructure:"LOCAL_CORS"`
	AccuracyDecay    float64 `mapstructure:"ACCURACY_DECAY"`
}

func Setup(cfgPath string) (*Config, error) {
	viper.SetConfigFile(cfgPath)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
