package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

// LoadFile reads a YAML file into cfg. ${VAR} references are replaced by
// environment values first; unset variables expand to "".
func LoadFile(filePath string, cfg interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator's --config flag
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").WithDetail("path", filePath)
	}
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file").WithDetail("path", filePath)
	}
	return nil
}

// substituteEnvVars expands ${NAME}. An unterminated reference is left as is.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(content[start:], '}')
		if end < 0 {
			break
		}
		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : start+end]))
		content = content[start+end+1:]
	}
	b.WriteString(content)
	return b.String()
}
