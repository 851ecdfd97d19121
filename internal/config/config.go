// Package config reads and writes the daemon settings file, a flat list of
// KEY=value lines with "#" comments.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"gofirewalld/internal/backup"
)

const (
	DefaultZone     = "DefaultZone"
	MinimalMark     = "MinimalMark"
	CleanupOnExit   = "CleanupOnExit"
	Lockdown        = "Lockdown"
	IPv6RPFilter    = "IPv6_rpfilter"
	IndividualCalls = "IndividualCalls"
	LogDenied       = "LogDenied"
)

// Keys lists the settings the daemon understands, in file order.
var Keys = []string{DefaultZone, MinimalMark, CleanupOnExit, Lockdown, IPv6RPFilter, IndividualCalls, LogDenied}

var fallbacks = map[string]string{
	DefaultZone:     "public",
	MinimalMark:     "100",
	CleanupOnExit:   "yes",
	Lockdown:        "no",
	IPv6RPFilter:    "yes",
	IndividualCalls: "no",
	LogDenied:       "off",
}

// Fallback is the value used when key is absent from the file.
func Fallback(key string) string {
	return fallbacks[key]
}

type line struct {
	raw string
	key string
}

// Conf is the content of the settings file. Unknown lines and comments are
// kept so Write only touches the values that were set.
type Conf struct {
	Path   string
	values map[string]string
	lines  []line
}

func New(path string) *Conf {
	return &Conf{Path: path, values: make(map[string]string)}
}

// Load reads path. A missing file yields an empty Conf, so every key falls
// back to its default.
func Load(path string) (*Conf, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(path), nil, nil
		}
		return New(path), nil, err
	}
	c := New(path)
	warnings, err := parse(string(data), c)
	if err != nil {
		return New(path), nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, warnings, nil
}

func parse(raw string, c *Conf) ([]string, error) {
	var warnings []string
	for i, rawLine := range strings.Split(strings.TrimSuffix(raw, "\n"), "\n") {
		lineNo := i + 1
		text := strings.TrimSpace(stripComment(rawLine))
		if text == "" {
			c.lines = append(c.lines, line{raw: rawLine})
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return warnings, fmt.Errorf("line %d: expected KEY=value", lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return warnings, fmt.Errorf("line %d: empty key", lineNo)
		}
		val, err := parseString(value)
		if err != nil {
			return warnings, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !slices.Contains(Keys, key) {
			warnings = append(warnings, fmt.Sprintf("line %d: unknown key %q", lineNo, key))
			c.lines = append(c.lines, line{raw: rawLine})
			continue
		}
		if _, dup := c.values[key]; dup {
			warnings = append(warnings, fmt.Sprintf("line %d: duplicate key %q", lineNo, key))
		}
		c.values[key] = val
		c.lines = append(c.lines, line{raw: rawLine, key: key})
	}
	return warnings, nil
}

// Get returns the value stored for key and whether it was present.
func (c *Conf) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the stored value of key or its fallback.
func (c *Conf) Value(key string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return Fallback(key)
}

func (c *Conf) Set(key, value string) {
	c.values[key] = value
}

// Bool interprets key as yes/no/true/false, falling back to the default on
// unparsable values.
func (c *Conf) Bool(key string) bool {
	v, err := ParseBool(c.Value(key))
	if err != nil {
		v, _ = ParseBool(Fallback(key))
	}
	return v
}

// Values returns every known key with its effective value.
func (c *Conf) Values() map[string]string {
	out := make(map[string]string, len(Keys))
	for _, k := range Keys {
		out[k] = c.Value(k)
	}
	return out
}

func (c *Conf) Clone() *Conf {
	n := New(c.Path)
	for k, v := range c.values {
		n.values[k] = v
	}
	n.lines = slices.Clone(c.lines)
	return n
}

// Marshal renders the file. Lines of keys that were set are rewritten in
// place; keys without a line are appended.
func (c *Conf) Marshal() []byte {
	var b strings.Builder
	written := make(map[string]bool)
	for _, l := range c.lines {
		if l.key == "" {
			b.WriteString(l.raw + "\n")
			continue
		}
		if written[l.key] {
			continue
		}
		written[l.key] = true
		b.WriteString(l.key + "=" + c.values[l.key] + "\n")
	}
	for _, k := range Keys {
		if _, ok := c.values[k]; ok && !written[k] {
			b.WriteString(k + "=" + c.values[k] + "\n")
		}
	}
	return []byte(b.String())
}

// Write replaces the file, keeping the previous version as a backup.
func (c *Conf) Write() error {
	if c.Path == "" {
		return errors.New("config path is empty")
	}
	return backup.WriteFile(c.Path, c.Marshal(), 0o644)
}

func stripComment(line string) string {
	inQuotes := false
	escaped := false

	for i, r := range line {
		if escaped {
			escaped = false
			continue
		}
		if inQuotes && r == '\\' {
			escaped = true
			continue
		}
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if r == '#' && !inQuotes {
			return line[:i]
		}
	}

	return line
}

// parseString accepts bare or double quoted values.
func parseString(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "\"") {
		return value, nil
	}
	if len(value) >= 2 && strings.HasSuffix(value, "\"") {
		unquotedFast := value[1 : len(value)-1]
		if !strings.Contains(unquotedFast, `\`) && !strings.Contains(unquotedFast, `"`) {
			return unquotedFast, nil
		}
	}
	unquoted, err := strconv.Unquote(value)
	if err != nil {
		return "", fmt.Errorf("invalid string %q", value)
	}
	return unquoted, nil
}

// ParseBool accepts the spellings the settings file allows.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", value)
	}
}

func ParseInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", value)
	}
	return n, nil
}
