package cmd

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "placement-engine"
	envPrefix = "PLACEMENT"
)

type Config struct {
	HTTP    *HTTPConfig    `mapstructure:"http"`
	Store   *StoreConfig   `mapstructure:"store"`
	Redis   *RedisConfig   `mapstructure:"redis"`
	Intake  *IntakeConfig  `mapstructure:"intake"`
	Extract *ExtractConfig `mapstructure:"extract"`
	AI      *AIConfig      `mapstructure:"ai"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	CORSOrigins  []string      `mapstructure:"cors-origins"`
}

type StoreConfig struct {
	Driver          string `mapstructure:"driver"`
	DatabaseURL     string `mapstructure:"database-url"`
	DatabaseURLFile string `mapstructure:"database-url-file"`
	MaxConns        int32  `mapstructure:"max-conns"`
}

type RedisConfig struct {
	URL           string `mapstructure:"url"`
	ChannelPrefix string `mapstructure:"channel-prefix"`
}

type IntakeConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base-url"`
}

type ExtractConfig struct {
	MaxBytes int64 `mapstructure:"max-bytes"`
}

type AIConfig struct {
	Provider       string        `mapstructure:"provider"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max-retries"`
	MaxLogLength   int           `mapstructure:"max-log-length"`
	MaxResumeRunes int           `mapstructure:"max-resume-runes"`
	Gemini         *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "placement-engine scores student resumes against job postings and tracks applications",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is placement-engine.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read-timeout", 30*time.Second)
	v.SetDefault("http.write-timeout", 120*time.Second)
	v.SetDefault("http.cors-origins", []string{"*"})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database-url", "")
	v.SetDefault("store.database-url-file", "")
	v.SetDefault("store.max-conns", 10)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel-prefix", "")

	v.SetDefault("intake.dir", "./data/resumes")
	v.SetDefault("intake.base-url", "")

	v.SetDefault("extract.max-bytes", 5<<20)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max-retries", 0)
	v.SetDefault("ai.max-log-length", 400)
	v.SetDefault("ai.max-resume-runes", 20000)
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "")
}

func initConfig() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("empty configuration")
	}

	return config, nil
}
