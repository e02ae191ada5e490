package config

import (
	"fmt"
	"slices"
	"strings"
)

// OutputFormats lists the accepted values of the output setting.
var OutputFormats = []string{"auto", "text", "table", "json", "yaml"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DefaultNamespace == "" {
		return fmt.Errorf("default_namespace is required")
	}
	if strings.Contains(c.DefaultNamespace, ".") {
		return fmt.Errorf("default_namespace %q must not contain dots", c.DefaultNamespace)
	}
	if c.OutputFormat != "" && !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (want one of %s)", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}
