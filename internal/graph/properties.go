package graph

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"gofirewalld/internal/config"
	"gofirewalld/internal/fwerr"
)

// ErrReadOnly is returned when setting a property that can only be read.
var ErrReadOnly = errors.New("property is read-only")

var writable = map[string]bool{
	config.MinimalMark:   true,
	config.CleanupOnExit: true,
	config.Lockdown:      true,
	config.IPv6RPFilter:  true,
}

// Property returns the effective value of one daemon setting. MinimalMark is
// reported as an int32, everything else as a string.
func (g *Graph) Property(name string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	props := properties(g.conf)
	v, ok := props[name]
	if !ok {
		return nil, fwerr.New(fwerr.InvalidProperty, name)
	}
	return v, nil
}

func (g *Graph) Properties() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return properties(g.conf)
}

func properties(c *config.Conf) map[string]any {
	out := make(map[string]any, len(config.Keys))
	for _, k := range config.Keys {
		v := c.Value(k)
		if k == config.MinimalMark {
			n, err := config.ParseInt(v)
			if err != nil {
				n, _ = config.ParseInt(config.Fallback(k))
			}
			out[k] = int32(n)
			continue
		}
		out[k] = v
	}
	return out
}

// SetProperty stores a writable daemon setting, rewrites firewalld.conf and
// announces the changed key.
func (g *Graph) SetProperty(c Caller, name string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return err
	}
	if name == config.DefaultZone {
		return fmt.Errorf("%s: %w", name, ErrReadOnly)
	}
	if !writable[name] {
		return fwerr.New(fwerr.InvalidProperty, name)
	}
	raw, err := propertyValue(name, value)
	if err != nil {
		return err
	}

	conf := g.conf.Clone()
	conf.Set(name, raw)
	if err := conf.Write(); err != nil {
		return fmt.Errorf("write %s: %w", conf.Path, err)
	}
	g.conf = conf
	slog.Info("property set", "name", name, "value", raw)
	g.metrics.Mutation("property", "set")
	g.sink.PropertiesChanged(map[string]any{name: properties(conf)[name]})
	return nil
}

func propertyValue(name string, value any) (string, error) {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case int32:
		raw = strconv.Itoa(int(v))
	case int:
		raw = strconv.Itoa(v)
	case bool:
		raw = strconv.FormatBool(v)
	default:
		return "", fwerr.Errorf(fwerr.InvalidValue, "%v", value)
	}
	if name == config.MinimalMark {
		if _, err := config.ParseInt(raw); err != nil {
			return "", fwerr.New(fwerr.InvalidMark, raw)
		}
		return raw, nil
	}
	if _, err := config.ParseBool(raw); err != nil {
		return "", fwerr.Errorf(fwerr.InvalidValue, "'%s' for %s", raw, name)
	}
	return raw, nil
}

// ReloadConf rereads firewalld.conf and announces the keys whose effective
// value changed. A file that cannot be read keeps the current settings.
func (g *Graph) ReloadConf() error {
	conf, err := g.backend.LoadConf()
	if err != nil {
		return fmt.Errorf("reload firewalld.conf: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	before := properties(g.conf)
	after := properties(conf)
	g.conf = conf

	delta := make(map[string]any)
	for k, v := range after {
		if before[k] != v {
			delta[k] = v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	slog.Info("firewalld.conf changed", "keys", sortedKeys(delta))
	g.sink.PropertiesChanged(delta)
	return nil
}

func (g *Graph) DefaultZone() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conf.Value(config.DefaultZone)
}

func (g *Graph) CleanupOnExit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conf.Bool(config.CleanupOnExit)
}

func (g *Graph) IndividualCalls() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conf.Bool(config.IndividualCalls)
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[M ~map[K]V, K cmp.Ordered, V any](m M) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
