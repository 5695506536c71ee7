package config

import (
	"strings"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultRequestTimeout = 300 * time.Second
	DefaultMinTurns       = 5
	DefaultListen         = ":3000"
	DefaultEventsTopic    = "chat"

	DefaultTogetherBaseURL = "https://api.together.xyz/v1"
)

// FamilySettings holds the credentials of one model family. A family with an
// empty APIKey is unconfigured, except ollama which needs none.
type FamilySettings struct {
	APIKey  string `yaml:"api-key,omitempty"`
	BaseURL string `yaml:"base-url,omitempty"`
}

type Settings struct {
	Families       map[models.Family]FamilySettings
	OllamaHost     string
	RequestTimeout time.Duration
	MinTurns       int

	Store    store.Kind
	StoreDSN string

	Listen      string
	ModelsFile  string
	EventsTopic string
}

// legacyEnv lists the environment variable names used by the hosted
// deployment. They are read when the CLUE_ prefixed name is unset.
var legacyEnv = map[string]string{
	"openai-api-key":   "OPENAI_API_KEY",
	"google-api-key":   "GOOGLE_GENERATIVE_AI_API_KEY",
	"together-api-key": "TOGETHER_AI_API_KEY",
	"bedrock-api-key":  "BEDROCK_API_KEY",
	"bedrock-base-url": "BEDROCK_BASE_URL",
	"ollama-host":      "OLLAMA_HOST",
}

// BindLegacyEnv makes v fall back to the unprefixed environment names.
func BindLegacyEnv(v *viper.Viper, envPrefix string) error {
	for key, legacy := range legacyEnv {
		prefixed := strings.ToUpper(envPrefix + "_" + strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return errors.Wrapf(err, "binding %s", key)
		}
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("request-timeout", DefaultRequestTimeout)
	v.SetDefault("min-turns", DefaultMinTurns)
	v.SetDefault("store", string(store.KindMemory))
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("events-topic", DefaultEventsTopic)
	v.SetDefault("together-base-url", DefaultTogetherBaseURL)
}

// FromViper reads Settings from v. A nil v reads the global viper instance.
func FromViper(v *viper.Viper) (*Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}

	s := &Settings{
		Families: map[models.Family]FamilySettings{
			models.FamilyOpenAI: {
				APIKey:  v.GetString("openai-api-key"),
				BaseURL: v.GetString("openai-base-url"),
			},
			models.FamilyGoogle: {
				APIKey:  v.GetString("google-api-key"),
				BaseURL: v.GetString("google-base-url"),
			},
			models.FamilyTogether: {
				APIKey:  v.GetString("together-api-key"),
				BaseURL: v.GetString("together-base-url"),
			},
			models.FamilyBedrock: {
				APIKey:  v.GetString("bedrock-api-key"),
				BaseURL: v.GetString("bedrock-base-url"),
			},
		},
		OllamaHost:     v.GetString("ollama-host"),
		RequestTimeout: v.GetDuration("request-timeout"),
		MinTurns:       v.GetInt("min-turns"),
		Store:          store.Kind(strings.ToLower(v.GetString("store"))),
		StoreDSN:       v.GetString("store-dsn"),
		Listen:         v.GetString("listen"),
		ModelsFile:     v.GetString("models-file"),
		EventsTopic:    v.GetString("events-topic"),
	}

	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.MinTurns < 0 {
		return nil, errors.Errorf("min-turns must not be negative, got %d", s.MinTurns)
	}
	if s.EventsTopic == "" {
		s.EventsTopic = DefaultEventsTopic
	}
	switch s.Store {
	case store.KindMemory, store.KindSQLite, store.KindYAML, store.KindRedis:
	case "":
		s.Store = store.KindMemory
	default:
		return nil, errors.Errorf("unknown store %q (memory, sqlite, yaml, redis)", s.Store)
	}

	return s, nil
}

// Catalog loads ModelsFile when set, the embedded catalog otherwise.
func (s *Settings) Catalog() (*models.Catalog, error) {
	if s.ModelsFile != "" {
		return models.LoadFile(s.ModelsFile)
	}
	return models.LoadDefault()
}

// Configured reports whether family f has credentials.
func (s *Settings) Configured(f models.Family) bool {
	if f == models.FamilyOllama {
		return true
	}
	return s.Families[f].APIKey != ""
}
