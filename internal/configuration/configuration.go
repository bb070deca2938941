// Package configuration reads the application configuration from
// environment-style configuration files.
package configuration

import (
	"strconv"
	"strings"
	"time"
)

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// Handler maps the raw key/value pairs of a configuration file to typed
// values.
type Handler struct {
	GenericHandler genericConfigProvider
}

// NewHandler returns a pointer to a new [Handler].
func NewHandler(genericHandler genericConfigProvider) *Handler {
	return &Handler{
		GenericHandler: genericHandler,
	}
}

// ReadGeneric reads configuration files into a map (map[key]value).
func (c *Handler) ReadGeneric(filenames ...string) (map[string]string, error) {
	return c.GenericHandler.Read(filenames...)
}

// MapKeyToString returns the value of key or an empty string.
func (c *Handler) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return strings.TrimSpace(value)
	}

	return ""
}

// MapKeyToInt returns the value of key or -1 if it is unset or malformed.
func (c *Handler) MapKeyToInt(envMap map[string]string, key string) int {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return -1
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}

	return intValue
}

// MapKeyToUInt64 returns the value of key or 0 if it is unset or malformed.
func (c *Handler) MapKeyToUInt64(envMap map[string]string, key string) uint64 {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}

	return intValue
}

// MapKeyToBool returns the value of key, or def if it is unset or
// malformed.
func (c *Handler) MapKeyToBool(envMap map[string]string, key string, def bool) bool {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return def
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}

	return boolValue
}

// MapKeyToMillis returns the value of key as a number of milliseconds, or
// 0 if it is unset or malformed.
func (c *Handler) MapKeyToMillis(envMap map[string]string, key string) time.Duration {
	ms := c.MapKeyToInt(envMap, key)
	if ms <= 0 {
		return 0
	}

	return time.Duration(ms) * time.Millisecond
}
