package models

import "time"

// Config represents the main configuration
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Output  OutputConfig  `mapstructure:"output"`
	Compile CompileConfig `mapstructure:"compile"`
	Log     LogConfig     `mapstructure:"log"`
	Lists   []FilterList  `mapstructure:"lists"`
}

// HTTPConfig contains HTTP client settings
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// OutputConfig contains output settings
type OutputConfig struct {
	TargetFormat     string `mapstructure:"target_format"`
	RuleLimit        int    `mapstructure:"rule_limit"` // 0 = format ceiling
	MaxRulesPerFile  int    `mapstructure:"max_rules_per_file"`
	GenerateManifest bool   `mapstructure:"generate_manifest"`
}

// CompileConfig contains compiler tuning
type CompileConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig contains logger settings
type LogConfig struct {
	File      string `mapstructure:"file"`
	Level     string `mapstructure:"level"`
	FileCount int    `mapstructure:"file_count"`
	FileSize  int    `mapstructure:"file_size"`
	KeepDays  int    `mapstructure:"keep_days"`
	Console   bool   `mapstructure:"console"`
}

// FilterList represents a single filter list configuration
type FilterList struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Path    string `mapstructure:"path"`
	Format  string `mapstructure:"format"`
	Enabled bool   `mapstructure:"enabled"`
}

// Location returns the URL or the local path of the list
func (l FilterList) Location() string {
	if l.Path != "" {
		return l.Path
	}
	return l.URL
}

// EnabledLists returns only enabled filter lists
func (c *Config) EnabledLists() []FilterList {
	var enabled []FilterList
	for _, l := range c.Lists {
		if l.Enabled {
			enabled = append(enabled, l)
		}
	}
	return enabled
}
