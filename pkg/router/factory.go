package router

import (
	"github.com/cxcscmu/LLM-Interviewer/pkg/config"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NewFromSettings builds one adapter per configured family. Families without
// credentials are left out; dispatching to them yields
// *FamilyNotConfiguredError.
func NewFromSettings(s *config.Settings, catalog *models.Catalog, options ...Option) (*Router, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}
	opts := []Option{WithTimeout(s.RequestTimeout)}

	for _, family := range models.AllFamilies() {
		if !s.Configured(family) {
			log.Debug().Str("family", string(family)).Msg("model family not configured")
			continue
		}
		fs := s.Families[family]

		var adapter Adapter
		switch family {
		case models.FamilyOpenAI, models.FamilyTogether:
			adapter = NewOpenAIAdapter(string(family), fs.APIKey, fs.BaseURL, s.RequestTimeout)
		case models.FamilyBedrock:
			if fs.BaseURL == "" {
				return nil, errors.New("bedrock-base-url is required when bedrock-api-key is set")
			}
			adapter = NewOpenAIAdapter(string(family), fs.APIKey, fs.BaseURL, s.RequestTimeout)
		case models.FamilyGoogle:
			adapter = NewGeminiAdapter(fs.APIKey, fs.BaseURL)
		case models.FamilyOllama:
			if len(catalog.Family(models.FamilyOllama)) == 0 {
				continue
			}
			a, err := NewOllamaAdapter(s.OllamaHost)
			if err != nil {
				return nil, err
			}
			adapter = a
		default:
			return nil, errors.Errorf("no adapter for family %s", family)
		}
		opts = append(opts, WithAdapter(family, adapter))
	}

	return New(catalog, append(opts, options...)...), nil
}
