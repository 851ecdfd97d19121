// Package persist stores configuration records as firewalld XML files.
//
// Every entity kind has two layers: builtin files shipped with the system
// and user files that override them by name. Records read from the builtin
// layer are never written in place; saving one copies it into the user
// layer.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gofirewalld/internal/backup"
	"gofirewalld/internal/config"
	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/validation"
)

const (
	DefaultSystemDir = "/usr/lib/firewalld"
	DefaultUserDir   = "/etc/firewalld"

	fileSuffix = ".xml"
)

type Layout struct {
	SystemDir string
	UserDir   string
}

func DefaultLayout() Layout {
	return Layout{SystemDir: DefaultSystemDir, UserDir: DefaultUserDir}
}

// Under prefixes both directories with root.
func (l Layout) Under(root string) Layout {
	return Layout{
		SystemDir: filepath.Join(root, l.SystemDir),
		UserDir:   filepath.Join(root, l.UserDir),
	}
}

func (l Layout) KindDir(k settings.Kind, builtin bool) string {
	if builtin {
		return filepath.Join(l.SystemDir, k.Dir())
	}
	return filepath.Join(l.UserDir, k.Dir())
}

func (l Layout) ConfFile() string {
	return filepath.Join(l.UserDir, "firewalld.conf")
}

func (l Layout) DirectFile() string {
	return filepath.Join(l.UserDir, "direct.xml")
}

func (l Layout) LockdownWhitelistFile() string {
	return filepath.Join(l.UserDir, "lockdown-whitelist.xml")
}

type layer map[string]settings.Record

type Backend struct {
	mu      sync.Mutex
	layout  Layout
	builtin map[settings.Kind]layer
	user    map[settings.Kind]layer
}

func New(layout Layout) *Backend {
	b := &Backend{
		layout:  layout,
		builtin: make(map[settings.Kind]layer),
		user:    make(map[settings.Kind]layer),
	}
	for _, k := range settings.Kinds {
		b.builtin[k] = make(layer)
		b.user[k] = make(layer)
	}
	return b
}

func (b *Backend) Layout() Layout {
	return b.layout
}

// Load reads both layers of kind k from disk and returns the effective
// records sorted by name. Files that fail to parse or validate are skipped.
func (b *Backend) Load(k settings.Kind) ([]settings.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	builtin, err := b.readDir(k, true)
	if err != nil {
		return nil, err
	}
	user, err := b.readDir(k, false)
	if err != nil {
		return nil, err
	}
	b.builtin[k] = builtin
	b.user[k] = user

	var out []settings.Record
	for name, rec := range builtin {
		if _, shadowed := user[name]; !shadowed {
			out = append(out, rec.Clone())
		}
	}
	for _, rec := range user {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base().Name < out[j].Base().Name })
	slog.Debug("loaded records", "kind", k, "builtin", len(builtin), "user", len(user))
	return out, nil
}

func (b *Backend) readDir(k settings.Kind, builtin bool) (layer, error) {
	dir := b.layout.KindDir(k, builtin)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(layer), nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	l := make(layer)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		rec, err := b.readFile(k, dir, e.Name(), builtin)
		if err != nil {
			slog.Warn("skipping config file", "kind", k, "path", filepath.Join(dir, e.Name()), "error", err)
			continue
		}
		l[rec.Base().Name] = rec
	}
	return l, nil
}

func (b *Backend) readFile(k settings.Kind, dir, filename string, builtin bool) (settings.Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return nil, err
	}
	rec, err := Decode(k, data)
	if err != nil {
		return nil, err
	}
	*rec.Base() = settings.Meta{
		Name:     strings.TrimSuffix(filename, fileSuffix),
		Path:     dir,
		Filename: filename,
		Builtin:  builtin,
		Default:  builtin,
	}
	if err := validation.Record(rec, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// Has reports whether a record of kind k named name exists in either layer.
func (b *Backend) Has(k settings.Kind, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.has(k, name)
}

func (b *Backend) has(k settings.Kind, name string) bool {
	if _, ok := b.user[k][name]; ok {
		return true
	}
	_, ok := b.builtin[k][name]
	return ok
}

// HasBuiltin reports whether a builtin record of kind k named name exists.
func (b *Backend) HasBuiltin(k settings.Kind, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.builtin[k][name]
	return ok
}

type lockedKnown struct{ b *Backend }

func (l lockedKnown) Has(k settings.Kind, name string) bool { return l.b.has(k, name) }

// Validate checks rec and the names it references.
func (b *Backend) Validate(rec settings.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return validation.Record(rec, lockedKnown{b})
}

// New writes a new user record of kind k.
func (b *Backend) New(k settings.Kind, name string, rec settings.Record) (settings.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec == nil || rec.Kind() != k {
		return nil, fwerr.Errorf(fwerr.InvalidObject, "%s settings expected", k)
	}
	if b.has(k, name) {
		return nil, fwerr.Errorf(fwerr.NameConflict, "new %s %q already exists", k, name)
	}
	rec = rec.Clone()
	*rec.Base() = settings.Meta{
		Name:     name,
		Path:     b.layout.KindDir(k, false),
		Filename: name + fileSuffix,
	}
	if err := validation.Record(rec, lockedKnown{b}); err != nil {
		return nil, err
	}
	if err := b.write(rec); err != nil {
		return nil, err
	}
	b.user[k][name] = rec
	return rec.Clone(), nil
}

// Save persists rec. A builtin record is copied into the user layer; the
// returned record carries the resulting origin.
func (b *Backend) Save(rec settings.Record) (settings.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save(rec, lockedKnown{b})
}

// Rewrite persists rec like Save but skips the check of the names rec
// references. It is used when a reference is being dropped, so a record
// that already names something missing can still be written.
func (b *Backend) Rewrite(rec settings.Record) (settings.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save(rec, nil)
}

func (b *Backend) save(rec settings.Record, known validation.Known) (settings.Record, error) {
	rec = rec.Clone()
	m := rec.Base()
	if m.Builtin || m.Path != b.layout.KindDir(rec.Kind(), false) {
		m.Path = b.layout.KindDir(rec.Kind(), false)
		m.Builtin = false
		if m.Filename == "" {
			m.Filename = m.Name + fileSuffix
		}
	}
	if err := validation.Record(rec, known); err != nil {
		return nil, err
	}
	if err := b.write(rec); err != nil {
		return nil, err
	}
	b.user[rec.Kind()][m.Name] = rec
	return rec.Clone(), nil
}

// Remove deletes the user file of rec. Builtin records cannot be removed.
// When rec overrode a builtin, the builtin record is returned so the caller
// can fall back to it.
func (b *Backend) Remove(rec settings.Record) (settings.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := rec.Base()
	k := rec.Kind()
	if m.Builtin {
		return nil, fwerr.New(k.BuiltinCode(), m.Name)
	}
	if err := backup.Remove(filepath.Join(m.Path, m.Filename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	delete(b.user[k], m.Name)
	if builtin, ok := b.builtin[k][m.Name]; ok {
		return builtin.Clone(), nil
	}
	return nil, nil
}

func (b *Backend) write(rec settings.Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	m := rec.Base()
	path := filepath.Join(m.Path, m.Filename)
	if err := backup.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	slog.Debug("record saved", "kind", rec.Kind(), "name", m.Name, "path", path)
	return nil
}

// KindOfPath reports the kind and layer of an XML file path.
func (b *Backend) KindOfPath(path string) (settings.Kind, bool, bool) {
	if !strings.HasSuffix(path, fileSuffix) {
		return 0, false, false
	}
	dir := filepath.Dir(path)
	for _, k := range settings.Kinds {
		if dir == b.layout.KindDir(k, true) {
			return k, true, true
		}
		if dir == b.layout.KindDir(k, false) {
			return k, false, true
		}
	}
	return 0, false, false
}

// ResolvePathChange folds an on-disk change of path into the cached layers
// and reports how the live graph has to change. A Change with ActionNone
// means nothing visible changed.
func (b *Backend) ResolvePathChange(path string) (settings.Change, error) {
	k, builtin, ok := b.KindOfPath(path)
	if !ok {
		return settings.Change{}, fwerr.New(fwerr.InvalidFilename, path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	filename := filepath.Base(path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return b.resolveRemoved(k, builtin, filename), nil
	}

	rec, err := b.readFile(k, filepath.Dir(path), filename, builtin)
	if err != nil {
		return settings.Change{}, fmt.Errorf("read %s: %w", path, err)
	}
	name := rec.Base().Name
	userRec, inUser := b.user[k][name]
	builtinRec, inBuiltin := b.builtin[k][name]

	if !builtin {
		b.user[k][name] = rec
		switch {
		case inUser:
			return settings.Change{Action: settings.ActionUpdate, Kind: k, Old: userRec.Clone(), New: rec.Clone()}, nil
		case inBuiltin:
			return settings.Change{Action: settings.ActionUpdate, Kind: k, Old: builtinRec.Clone(), New: rec.Clone()}, nil
		default:
			return settings.Change{Action: settings.ActionNew, Kind: k, New: rec.Clone()}, nil
		}
	}

	b.builtin[k][name] = rec
	switch {
	case inUser:
		// shadowed by a user file
		return settings.Change{Kind: k}, nil
	case inBuiltin:
		return settings.Change{Action: settings.ActionUpdate, Kind: k, Old: builtinRec.Clone(), New: rec.Clone()}, nil
	default:
		return settings.Change{Action: settings.ActionNew, Kind: k, New: rec.Clone()}, nil
	}
}

func (b *Backend) resolveRemoved(k settings.Kind, builtin bool, filename string) settings.Change {
	if !builtin {
		for name, rec := range b.user[k] {
			if rec.Base().Filename != filename {
				continue
			}
			delete(b.user[k], name)
			if br, ok := b.builtin[k][name]; ok {
				return settings.Change{Action: settings.ActionUpdate, Kind: k, Old: rec.Clone(), New: br.Clone()}
			}
			return settings.Change{Action: settings.ActionRemove, Kind: k, Old: rec.Clone()}
		}
		return settings.Change{Kind: k}
	}

	for name, rec := range b.builtin[k] {
		if rec.Base().Filename != filename {
			continue
		}
		delete(b.builtin[k], name)
		if _, shadowed := b.user[k][name]; shadowed {
			return settings.Change{Kind: k}
		}
		return settings.Change{Action: settings.ActionRemove, Kind: k, Old: rec.Clone()}
	}
	return settings.Change{Kind: k}
}

// LoadDirect reads the direct ruleset. A missing file is an empty ruleset.
func (b *Backend) LoadDirect() (*settings.Direct, error) {
	data, err := os.ReadFile(b.layout.DirectFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &settings.Direct{}, nil
		}
		return nil, err
	}
	return DecodeDirect(data)
}

func (b *Backend) SaveDirect(d *settings.Direct) error {
	data, err := EncodeDirect(d)
	if err != nil {
		return err
	}
	return backup.WriteFile(b.layout.DirectFile(), data, 0o644)
}

func (b *Backend) LoadLockdownWhitelist() (*settings.LockdownWhitelist, error) {
	data, err := os.ReadFile(b.layout.LockdownWhitelistFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &settings.LockdownWhitelist{}, nil
		}
		return nil, err
	}
	return DecodeLockdownWhitelist(data)
}

func (b *Backend) SaveLockdownWhitelist(w *settings.LockdownWhitelist) error {
	data, err := EncodeLockdownWhitelist(w)
	if err != nil {
		return err
	}
	return backup.WriteFile(b.layout.LockdownWhitelistFile(), data, 0o644)
}

// LoadConf reads the daemon settings file and logs parse warnings.
func (b *Backend) LoadConf() (*config.Conf, error) {
	c, warnings, err := config.Load(b.layout.ConfFile())
	for _, w := range warnings {
		slog.Warn("firewalld.conf", "warning", w)
	}
	return c, err
}
