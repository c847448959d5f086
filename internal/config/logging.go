package config

import (
	"github.com/smazurov/camstream/internal/logging"
)

// LoadLoggingConfig reads the [logging] table of the file at path. Any key
// other than level and format is a module level; a nested [logging.modules]
// table is accepted as well. Missing or unreadable files give the defaults.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	tree, err := readTree(path)
	if err != nil {
		return cfg
	}
	section, _ := lookup(tree, "logging")
	table, ok := section.(map[string]any)
	if !ok {
		return cfg
	}

	for key, value := range table {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, isString := level.(string); isString {
					cfg.Modules[module] = s
				}
			}
		}
	}
	return cfg
}
