package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cwkhub/internal/calendar"
	"cwkhub/internal/timeutil"
)

// Config models cwkhub.yml.
type Config struct {
	Organisation struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"organisation" json:"organisation"`
	Calendar struct {
		Blocks []BlockConfig `yaml:"blocks" json:"blocks"`
	} `yaml:"calendar" json:"calendar"`
	Finance struct {
		PartialPaymentFallback float64 `yaml:"partial_payment_fallback" json:"partial_payment_fallback"`
		Currency               string  `yaml:"currency" json:"currency"`
	} `yaml:"finance" json:"finance"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type BlockConfig struct {
	ID            string `yaml:"id" json:"id"`
	Weekday       string `yaml:"weekday" json:"weekday"`
	Start         string `yaml:"start" json:"start"`
	End           string `yaml:"end" json:"end"`
	Recurrence    string `yaml:"recurrence" json:"recurrence"`
	ISOWeekParity string `yaml:"iso_week_parity,omitempty" json:"iso_week_parity,omitempty"`
	Reason        string `yaml:"reason" json:"reason"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with cwk config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Organisation.ID) == "" {
		return fmt.Errorf("config.organisation.id is required")
	}
	seen := map[string]bool{}
	for i, b := range c.Calendar.Blocks {
		if b.ID == "" {
			return fmt.Errorf("calendar.blocks[%d].id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("calendar block %s defined twice", b.ID)
		}
		seen[b.ID] = true
		if _, err := calendar.ParseWeekday(b.Weekday); err != nil {
			return fmt.Errorf("calendar block %s: %w", b.ID, err)
		}
		if err := timeutil.ValidateRange(b.Start, b.End); err != nil {
			return fmt.Errorf("calendar block %s: %w", b.ID, err)
		}
		switch calendar.Recurrence(b.Recurrence) {
		case calendar.Weekly:
		case calendar.Biweekly:
			switch calendar.Parity(b.ISOWeekParity) {
			case "", calendar.OddWeeks, calendar.EvenWeeks:
			default:
				return fmt.Errorf("calendar block %s: iso_week_parity must be odd or even", b.ID)
			}
		default:
			return fmt.Errorf("calendar block %s: recurrence must be weekly or biweekly", b.ID)
		}
	}
	if f := c.Finance.PartialPaymentFallback; f < 0 || f > 1 {
		return fmt.Errorf("finance.partial_payment_fallback must be between 0 and 1")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Blocks converts the configured compulsory blocks. Call Validate first.
func (c *Config) Blocks() calendar.Blocks {
	out := make(calendar.Blocks, 0, len(c.Calendar.Blocks))
	for _, b := range c.Calendar.Blocks {
		day, _ := calendar.ParseWeekday(b.Weekday)
		rec := calendar.Recurrence(b.Recurrence)
		parity := calendar.Parity(b.ISOWeekParity)
		if parity == "" && rec == calendar.Biweekly {
			parity = calendar.OddWeeks
		}
		out = append(out, calendar.Block{
			ID:         b.ID,
			Weekday:    day,
			Start:      b.Start,
			End:        b.End,
			Recurrence: rec,
			Parity:     parity,
			Reason:     b.Reason,
		})
	}
	return out
}

// PartialPaymentFallback returns the finance fallback ratio as a decimal.
func (c *Config) PartialPaymentFallback() decimal.Decimal {
	return decimal.NewFromFloat(c.Finance.PartialPaymentFallback)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cwkhub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for an organisation.
func Default(orgID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(orgID)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `organisation:
  id: %s
  name: ""

calendar:
  blocks:
    - id: team-meeting
      weekday: monday
      start: "09:00"
      end: "10:00"
      recurrence: weekly
      reason: "Monday 09:00-10:00 is reserved for the weekly team meeting"
    - id: educators-meeting
      weekday: thursday
      start: "09:00"
      end: "10:00"
      recurrence: biweekly
      iso_week_parity: odd
      reason: "Thursday 09:00-10:00 is reserved for the bi-weekly educators meeting"

finance:
  partial_payment_fallback: 0.5
  currency: EUR
`
