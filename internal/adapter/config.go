package adapter

import (
	"fmt"
	"strings"
)

const (
	// reservedNamespacePrefix marks namespaces reserved for the backend's
	// own products; user namespaces must not collide with them.
	reservedNamespacePrefix = "AWS/"

	// maxNameLength bounds namespaces, tag names and tag values.
	maxNameLength = 255
)

// Config configures an Adapter.
type Config struct {
	// Namespace is the logical grouping all measurements are published
	// under, e.g. "MyCompany/MyAppDomain". Required, 1-255 characters,
	// must not start with the reserved "AWS/" prefix.
	Namespace string `yaml:"namespace"`

	// Prefix is prepended to every metric name, e.g. "myapp.".
	Prefix string `yaml:"prefix"`

	// Application, when set, is attached to every measurement as an
	// "application" tag. 1-255 characters.
	Application string `yaml:"application"`

	// Hostname, when set, is attached to every measurement as a
	// "hostname" tag. 1-255 characters.
	Hostname string `yaml:"hostname"`

	// SkipEmpty suppresses the remote call when a send cycle drains an
	// empty buffer. Off by default: empty batches are still published.
	SkipEmpty bool `yaml:"skip_empty"`
}

// Validate checks the configuration. A violation here is a configuration
// error; the adapter refuses to construct.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	if len(c.Namespace) > maxNameLength {
		return fmt.Errorf(
			"namespace must be at most %d characters, got %d",
			maxNameLength, len(c.Namespace),
		)
	}

	if strings.HasPrefix(c.Namespace, reservedNamespacePrefix) {
		return fmt.Errorf(
			"namespaces starting with %q are reserved for use by the backend",
			reservedNamespacePrefix,
		)
	}

	if err := validateIdentifier("application", c.Application); err != nil {
		return err
	}

	return validateIdentifier("hostname", c.Hostname)
}

// validateIdentifier checks an optional tag value: absent is fine,
// present means 1-255 characters.
func validateIdentifier(field, value string) error {
	if value == "" {
		return nil
	}

	if len(value) > maxNameLength {
		return fmt.Errorf(
			"%s must be at most %d characters, got %d",
			field, maxNameLength, len(value),
		)
	}

	return nil
}
