package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Configuration struct (shared by the CLI and embedding applications)
// --------------------------------------------------------------------------

// Config holds all parameters needed to open mutexes and stores.
type Config struct {
	// Backend is the requested backend (auto, native or file)
	Backend Backend
	// Dir is the directory used by the file backend
	Dir string

	// Serializer is the name of the value codec (msgpack, json)
	Serializer string
	// SizeHint is the byte budget for new segments (0 = default size)
	SizeHint int

	// Logging configuration
	LogLevel string
	LogFile  string
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendAuto,
		Dir:        DefaultDir(),
		Serializer: "msgpack",
		LogLevel:   "warn",
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Backend")
	addField("Backend", string(c.Backend))
	addField("Directory", c.Dir)

	addSection("Store")
	addField("Serializer", c.Serializer)
	if c.SizeHint > 0 {
		addField("Size Hint", fmt.Sprintf("%d bytes", c.SizeHint))
	} else {
		addField("Size Hint", "default")
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.LogFile != "" {
		addField("Log File", c.LogFile)
	} else {
		addField("Log File", "stdout")
	}

	return sb.String()
}
