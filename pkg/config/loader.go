package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// Load loads a configuration from a YAML file
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}
	return Parse(data, config)
}

// Parse substitutes environment variables in data and unmarshals it.
func Parse(data []byte, config interface{}) error {
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}
	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} with the variable's value. Unset
// variables are left untouched.
func substituteEnvVars(content string) string {
	return envRef.ReplaceAllStringFunc(content, func(ref string) string {
		name := ref[2 : len(ref)-1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return ref
	})
}
