// Package config loads simulation settings from defaults, an optional YAML
// file and MMSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"mmsim/internal/brownian"
	"mmsim/internal/engine"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MMSIM_MODEL_GAMMA
const EnvPrefix = "MMSIM"

// Config is the top-level configuration
type Config struct {
	Model ModelConfig `mapstructure:"model"`
	Batch BatchConfig `mapstructure:"batch"`
	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`
	HTTP  HTTPConfig  `mapstructure:"http"`
}

// ModelConfig holds the price process and market maker parameters.
// S0 and Mu only feed the price process.
type ModelConfig struct {
	S0    float64 `mapstructure:"s0"    json:"s0"`
	N     int     `mapstructure:"n"     json:"n"     validate:"min=1"`
	Dt    float64 `mapstructure:"dt"    json:"dt"    validate:"gt=0"`
	Mu    float64 `mapstructure:"mu"    json:"mu"`
	Sigma float64 `mapstructure:"sigma" json:"sigma" validate:"gte=0"`
	Gamma float64 `mapstructure:"gamma" json:"gamma" validate:"gt=0"`
	K     float64 `mapstructure:"k"     json:"k"     validate:"gt=0"`
}

// BatchConfig controls how many runs execute and how they are seeded
type BatchConfig struct {
	NSim      int    `mapstructure:"n_sim"      validate:"min=1"`
	Seed      uint64 `mapstructure:"seed"`
	Workers   int    `mapstructure:"workers"    validate:"gte=0"`
	KeepPaths bool   `mapstructure:"keep_paths"`
}

// StoreConfig locates the path database
type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"       validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// HTTPConfig configures the serve mode
type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"         validate:"required"`
	RateLimit   float64  `mapstructure:"rate_limit"   validate:"gte=0"`
	RateBurst   int      `mapstructure:"rate_burst"   validate:"gte=0"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	MaxNSim     int      `mapstructure:"max_n_sim"    validate:"min=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func setDefaults(v *viper.Viper) {
	p := brownian.DefaultParams()
	v.SetDefault("model.s0", p.S0)
	v.SetDefault("model.n", p.N)
	v.SetDefault("model.dt", p.Dt)
	v.SetDefault("model.mu", p.Mu)
	v.SetDefault("model.sigma", p.Sigma)
	v.SetDefault("model.gamma", 0.1)
	v.SetDefault("model.k", 1.5)

	v.SetDefault("batch.n_sim", 100)
	v.SetDefault("batch.seed", 1)
	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.keep_paths", false)

	v.SetDefault("store.path", "mmsim.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("http.addr", ":8088")
	v.SetDefault("http.rate_limit", 2.0)
	v.SetDefault("http.rate_burst", 5)
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.max_n_sim", 10000)
}

// Load reads configuration. An empty file path skips the YAML file.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the struct tag rules and reports every failing field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: failed %s%s (got %v)", ns, fe.Tag(), paramSuffix(fe.Param()), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// Engine returns the market maker parameters
func (m ModelConfig) Engine() engine.Params {
	return engine.Params{
		Gamma: m.Gamma,
		K:     m.K,
		Sigma: m.Sigma,
		Dt:    m.Dt,
		N:     m.N,
	}
}

// Process returns the price process parameters
func (m ModelConfig) Process() brownian.Params {
	return brownian.Params{
		S0:    m.S0,
		N:     m.N,
		Dt:    m.Dt,
		Mu:    m.Mu,
		Sigma: m.Sigma,
	}
}

// ValidateModel checks a model section on its own, for request overrides
func ValidateModel(m ModelConfig) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	return nil
}
