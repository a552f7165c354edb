package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ads is the promotional document appended to every published post.
// The file is usually JSON; any YAML document with the same keys works too.
type Ads struct {
	Phrases []string `yaml:"phrases"`
	URL     string   `yaml:"url"`
}

func LoadAds(path string) (*Ads, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadAds: %w", err)
	}

	return ParseAds(raw)
}

func ParseAds(raw []byte) (*Ads, error) {
	var ads Ads
	if err := yaml.Unmarshal(raw, &ads); err != nil {
		return nil, fmt.Errorf("config.ParseAds: %w", err)
	}

	phrases := ads.Phrases[:0]
	for _, p := range ads.Phrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	ads.Phrases = phrases
	ads.URL = strings.TrimSpace(ads.URL)

	if len(ads.Phrases) == 0 {
		return nil, fmt.Errorf("config.ParseAds: phrases must not be empty")
	}

	if ads.URL == "" {
		return nil, fmt.Errorf("config.ParseAds: url is required")
	}

	return &ads, nil
}
