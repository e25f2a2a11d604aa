package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

type modeTableFile struct {
	Modes map[string]yaml.Node `yaml:"modes"`
}

// LoadModeTable reads a YAML mode table and applies it over base. Modes and
// fields the file leaves out keep their base values.
//
//	modes:
//	  heavy:
//	    rinse_soak_minutes: 15
//	    rinse_cycles: 3
func LoadModeTable(path string, base model.ModeTable) (model.ModeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mode table: %w", err)
	}
	return ParseModeTable(data, base)
}

func ParseModeTable(data []byte, base model.ModeTable) (model.ModeTable, error) {
	var file modeTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mode table: %w", err)
	}

	table := make(model.ModeTable, len(base))
	for mode, settings := range base {
		table[mode] = settings
	}

	for name, node := range file.Modes {
		mode, err := model.ParseWashMode(name)
		if err != nil {
			return nil, err
		}
		settings := table[mode]
		if err := node.Decode(&settings); err != nil {
			return nil, fmt.Errorf("mode %s: %w", name, err)
		}
		table[mode] = settings
	}
	return table, nil
}
