// Package graph holds the live configuration objects: zones, services, icmp
// types and ip sets, plus the direct ruleset, the lockdown whitelist and the
// daemon properties.
//
// All state is guarded by one mutex. RPC handlers and the file watcher both
// go through the same mutation primitives, so invariants (append-only index
// allocation, cascade retraction of removed services and icmp types) hold
// whatever triggered the change. Sink and Registrar callbacks run while the
// lock is held and must not call back into the Graph.
package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gofirewalld/internal/config"
	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/metrics"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/validation"
)

// ConfigPath is the identity prefix of every live object.
const ConfigPath = "/org/fedoraproject/FirewallD1/config"

// EntityPath builds the external identity of the index-th entity of kind k.
func EntityPath(k settings.Kind, index uint32) string {
	return ConfigPath + "/" + k.String() + "/" + strconv.FormatUint(uint64(index), 10)
}

type State int

const (
	Unregistered State = iota
	Registered
	Removed
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Removed:
		return "removed"
	default:
		return "unregistered"
	}
}

// Entity is a live object wrapping one settings record.
type Entity struct {
	kind  settings.Kind
	index uint32
	path  string
	state State
	rec   settings.Record
}

func (e *Entity) Kind() settings.Kind { return e.kind }
func (e *Entity) Index() uint32       { return e.index }
func (e *Entity) Path() string        { return e.path }

// Name and State are read without the graph lock; they only change while
// the graph lock is held and callers observe them from sink callbacks or
// after a mutation returned.
func (e *Entity) Name() string  { return e.rec.Base().Name }
func (e *Entity) State() State { return e.state }

// Sink receives change notifications in mutation order.
type Sink interface {
	Added(e *Entity)
	Updated(e *Entity)
	Removed(e *Entity)
	DirectUpdated()
	LockdownWhitelistUpdated()
	PropertiesChanged(changed map[string]any)
}

// Registrar makes entities externally addressable.
type Registrar interface {
	Register(e *Entity) error
	Unregister(e *Entity)
}

// Backend persists records. *persist.Backend implements it.
type Backend interface {
	Load(k settings.Kind) ([]settings.Record, error)
	New(k settings.Kind, name string, rec settings.Record) (settings.Record, error)
	Save(rec settings.Record) (settings.Record, error)
	Remove(rec settings.Record) (settings.Record, error)
	Rewrite(rec settings.Record) (settings.Record, error)
	HasBuiltin(k settings.Kind, name string) bool
	LoadDirect() (*settings.Direct, error)
	SaveDirect(d *settings.Direct) error
	LoadLockdownWhitelist() (*settings.LockdownWhitelist, error)
	SaveLockdownWhitelist(w *settings.LockdownWhitelist) error
	LoadConf() (*config.Conf, error)
}

type Options struct {
	Backend   Backend
	Sink      Sink
	Registrar Registrar
	// Gate is consulted before every mutation, after the lockdown check.
	Gate    AccessGate
	Metrics *metrics.Registry
}

type Graph struct {
	mu        sync.Mutex
	backend   Backend
	sink      Sink
	registrar Registrar
	gate      AccessGate
	metrics   *metrics.Registry

	entities  map[settings.Kind][]*Entity
	next      map[settings.Kind]uint32
	direct    *settings.Direct
	whitelist *settings.LockdownWhitelist
	conf      *config.Conf
}

func New(opts Options) *Graph {
	g := &Graph{
		backend:   opts.Backend,
		sink:      opts.Sink,
		registrar: opts.Registrar,
		gate:      opts.Gate,
		metrics:   opts.Metrics,
		entities:  make(map[settings.Kind][]*Entity),
		next:      make(map[settings.Kind]uint32),
		direct:    &settings.Direct{},
		whitelist: &settings.LockdownWhitelist{},
		conf:      config.New(""),
	}
	if g.sink == nil {
		g.sink = nopSink{}
	}
	if g.registrar == nil {
		g.registrar = nopRegistrar{}
	}
	return g
}

// Load populates the graph from the backend: daemon settings, lockdown
// whitelist, direct ruleset, then every kind in dependency order.
func (g *Graph) Load() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load()
}

func (g *Graph) load() error {
	conf, err := g.backend.LoadConf()
	if err != nil {
		return fmt.Errorf("load firewalld.conf: %w", err)
	}
	g.conf = conf

	if w, err := g.backend.LoadLockdownWhitelist(); err != nil {
		slog.Warn("lockdown whitelist not loaded", "error", err)
	} else {
		g.whitelist = w
	}
	if d, err := g.backend.LoadDirect(); err != nil {
		slog.Warn("direct ruleset not loaded", "error", err)
	} else {
		g.direct = d
	}

	for _, k := range settings.Kinds {
		recs, err := g.backend.Load(k)
		if err != nil {
			return fmt.Errorf("load %s: %w", k.Dir(), err)
		}
		for _, rec := range recs {
			if _, err := g.add(k, rec); err != nil {
				return err
			}
		}
		slog.Info("configuration loaded", "kind", k, "count", len(g.entities[k]))
	}
	return nil
}

// Reload drops every live object and loads the backend again. Index
// counters keep running so stale identities are never reissued.
func (g *Graph) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, k := range settings.Kinds {
		list := g.entities[k]
		for i := len(list) - 1; i >= 0; i-- {
			g.release(list[i])
		}
		g.entities[k] = nil
		g.metrics.Objects(k.String(), 0)
	}
	return g.load()
}

// List returns the live objects of kind k in creation order.
func (g *Graph) List(k settings.Kind) []*Entity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.entities[k])
}

func (g *Graph) Paths(k settings.Kind) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	paths := make([]string, 0, len(g.entities[k]))
	for _, e := range g.entities[k] {
		paths = append(paths, e.path)
	}
	return paths
}

func (g *Graph) Names(k settings.Kind) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.entities[k]))
	for _, e := range g.entities[k] {
		names = append(names, e.Name())
	}
	return names
}

func (g *Graph) ByName(k settings.Kind, name string) (*Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e := g.byName(k, name); e != nil {
		return e, nil
	}
	return nil, fwerr.New(k.NotFound(), name)
}

func (g *Graph) byName(k settings.Kind, name string) *Entity {
	for _, e := range g.entities[k] {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

func (g *Graph) ByPath(path string) (*Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range settings.Kinds {
		for _, e := range g.entities[k] {
			if e.path == path {
				return e, nil
			}
		}
	}
	return nil, fwerr.New(fwerr.InvalidObject, path)
}

// Settings returns a copy of the record e wraps.
func (g *Graph) Settings(e *Entity) settings.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return e.rec.Clone()
}

// Add creates a new entity of kind k and persists it.
func (g *Graph) Add(c Caller, k settings.Kind, name string, rec settings.Record) (*Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fwerr.Errorf(fwerr.InvalidObject, "no settings for %s %q", k, name)
	}
	rec = normalize(rec.Clone())
	saved, err := g.backend.New(k, name, rec)
	if err != nil {
		return nil, err
	}
	return g.add(k, saved)
}

// Update replaces the settings of e and persists them. Name and origin of
// the record are kept.
func (g *Graph) Update(c Caller, e *Entity, rec settings.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return err
	}
	if e.state == Removed {
		return fwerr.New(fwerr.InvalidObject, e.path)
	}
	if rec == nil || rec.Kind() != e.kind {
		return fwerr.Errorf(fwerr.InvalidObject, "%s settings expected", e.kind)
	}
	return g.save(e, rec.Clone())
}

// Edit runs fn on a copy of the settings of e and stores the result. The
// read, fn and the save happen under one lock, so concurrent edits of the
// same entity never lose each other's changes. An error from fn leaves e
// untouched.
func (g *Graph) Edit(c Caller, e *Entity, fn func(rec settings.Record) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return err
	}
	if e.state == Removed {
		return fwerr.New(fwerr.InvalidObject, e.path)
	}
	rec := e.rec.Clone()
	if err := fn(rec); err != nil {
		return err
	}
	return g.save(e, rec)
}

func (g *Graph) save(e *Entity, rec settings.Record) error {
	rec = normalize(rec)
	*rec.Base() = *e.rec.Base()
	saved, err := g.backend.Save(rec)
	if err != nil {
		return err
	}
	return g.update(e.rec, saved)
}

// Remove deletes e. Removing a user override of a builtin record reverts
// the entity to the builtin instead.
func (g *Graph) Remove(c Caller, e *Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return err
	}
	if e.state == Removed {
		return fwerr.New(fwerr.InvalidObject, e.path)
	}
	if e.kind == settings.KindZone && e.Name() == g.conf.Value(config.DefaultZone) {
		return fwerr.Errorf(fwerr.BuiltinZone, "'%s' is the default zone", e.Name())
	}
	if e.rec.Base().Builtin {
		return fwerr.New(e.kind.BuiltinCode(), e.Name())
	}

	// Zones stop referencing the name before its file goes away, so a
	// failed retraction leaves everything as it was.
	var r *retraction
	if !g.backend.HasBuiltin(e.kind, e.Name()) {
		var err error
		if r, err = g.retract(e.kind, e.Name()); err != nil {
			return err
		}
	}
	fallback, err := g.backend.Remove(e.rec)
	if err != nil {
		g.undo(r)
		return err
	}
	if fallback != nil {
		return g.update(e.rec, fallback)
	}
	g.commit(r)
	g.drop(e)
	return nil
}

// ApplyChange folds a change detected on disk into the graph. It takes the
// same paths as the RPC mutations but skips the access check and the
// backend, which already holds the new state.
func (g *Graph) ApplyChange(ch settings.Change) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch ch.Action {
	case settings.ActionNew:
		if e := g.byName(ch.Kind, ch.New.Base().Name); e != nil {
			return g.update(e.rec, ch.New)
		}
		_, err := g.add(ch.Kind, ch.New)
		return err
	case settings.ActionUpdate:
		return g.update(ch.Old, ch.New)
	case settings.ActionRemove:
		return g.remove(ch.Old)
	default:
		return nil
	}
}

func (g *Graph) add(k settings.Kind, rec settings.Record) (*Entity, error) {
	idx := g.next[k]
	g.next[k]++

	e := &Entity{kind: k, index: idx, path: EntityPath(k, idx), rec: rec}
	if err := g.registrar.Register(e); err != nil {
		return nil, fmt.Errorf("register %s: %w", e.path, err)
	}
	e.state = Registered
	g.entities[k] = append(g.entities[k], e)

	slog.Debug("entity added", "kind", k, "name", e.Name(), "path", e.path)
	g.metrics.Mutation(k.String(), "add")
	g.metrics.Objects(k.String(), len(g.entities[k]))
	g.sink.Added(e)
	return e, nil
}

// locate finds the live entity that wraps a record read from the same file
// under the same name as rec.
func (g *Graph) locate(rec settings.Record) *Entity {
	m := *rec.Base()
	for _, e := range g.entities[rec.Kind()] {
		if e.rec.Base().SameOrigin(m) {
			return e
		}
	}
	return nil
}

func (g *Graph) update(old, rec settings.Record) error {
	e := g.locate(old)
	if e == nil {
		return fwerr.Errorf(fwerr.InvalidObject, "no live %s for %s", old.Kind(), old.Base().Name)
	}
	e.rec = rec

	slog.Debug("entity updated", "kind", e.kind, "name", e.Name(), "path", e.path)
	g.metrics.Mutation(e.kind.String(), "update")
	g.sink.Updated(e)
	return nil
}

func (g *Graph) remove(rec settings.Record) error {
	e := g.locate(rec)
	if e == nil {
		return fwerr.Errorf(fwerr.InvalidObject, "no live %s for %s", rec.Kind(), rec.Base().Name)
	}
	r, err := g.retract(e.kind, e.Name())
	if err != nil {
		return err
	}
	g.commit(r)
	g.drop(e)
	return nil
}

func (g *Graph) drop(e *Entity) {
	g.sink.Removed(e)
	g.release(e)
	g.entities[e.kind] = slices.DeleteFunc(g.entities[e.kind], func(x *Entity) bool { return x == e })

	slog.Debug("entity removed", "kind", e.kind, "name", e.Name(), "path", e.path)
	g.metrics.Mutation(e.kind.String(), "remove")
	g.metrics.Objects(e.kind.String(), len(g.entities[e.kind]))
}

// retraction is a set of zones already saved without a removed name but
// not yet swapped into the graph.
type retraction struct {
	kind  settings.Kind
	name  string
	zones []*Entity
	saved []settings.Record
}

// retract saves every zone that references name of kind k without that
// reference. Nothing live changes until commit. When a save fails, the
// zones saved so far are restored.
func (g *Graph) retract(k settings.Kind, name string) (*retraction, error) {
	r := &retraction{kind: k, name: name}
	if k != settings.KindService && k != settings.KindIcmpType {
		return r, nil
	}
	for _, z := range g.entities[settings.KindZone] {
		zone := z.rec.Clone().(*settings.Zone)
		if !zone.Retract(k, name) {
			continue
		}
		saved, err := g.backend.Rewrite(zone)
		if err != nil {
			g.undo(r)
			return nil, fmt.Errorf("retract %s %q from zone %q: %w", k, name, z.Name(), err)
		}
		r.zones = append(r.zones, z)
		r.saved = append(r.saved, saved)
	}
	return r, nil
}

// undo puts the saved zones of r back as they were on disk.
func (g *Graph) undo(r *retraction) {
	if r == nil {
		return
	}
	for i, z := range r.zones {
		var err error
		if z.rec.Base().Builtin {
			_, err = g.backend.Remove(r.saved[i])
		} else {
			_, err = g.backend.Rewrite(z.rec)
		}
		if err != nil {
			slog.Error("zone not restored", "zone", z.Name(), "error", err)
		}
	}
}

func (g *Graph) commit(r *retraction) {
	if r == nil {
		return
	}
	for i, z := range r.zones {
		slog.Info("reference retracted", "kind", r.kind, "name", r.name, "zone", z.Name())
		z.rec = r.saved[i]
		g.metrics.Mutation(z.kind.String(), "update")
		g.sink.Updated(z)
	}
}

func (g *Graph) release(e *Entity) {
	if e.state == Registered {
		g.registrar.Unregister(e)
	}
	e.state = Removed
}

// ZoneOfInterface names the zone whose settings list iface, or "" when none
// does. More than one claiming zone is a ZONE_CONFLICT.
func (g *Graph) ZoneOfInterface(iface string) (string, error) {
	return g.zoneOf("interface", iface, func(z *settings.Zone) []string { return z.Interfaces })
}

func (g *Graph) ZoneOfSource(source string) (string, error) {
	return g.zoneOf("source", source, func(z *settings.Zone) []string { return z.Sources })
}

func (g *Graph) zoneOf(what, value string, field func(*settings.Zone) []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var zones []string
	for _, e := range g.entities[settings.KindZone] {
		if slices.Contains(field(e.rec.(*settings.Zone)), value) {
			zones = append(zones, e.Name())
		}
	}
	switch len(zones) {
	case 0:
		return "", nil
	case 1:
		return zones[0], nil
	default:
		return "", fwerr.Errorf(fwerr.ZoneConflict, "%s '%s' is in %d zone files: %s", what, value, len(zones), strings.Join(zones, ", "))
	}
}

// normalize maps the "default" zone target onto the stored default.
func normalize(rec settings.Record) settings.Record {
	if z, ok := rec.(*settings.Zone); ok && (z.Target == "default" || z.Target == "") {
		z.Target = validation.DefaultZoneTarget
	}
	return rec
}

type nopSink struct{}

func (nopSink) Added(*Entity)                    {}
func (nopSink) Updated(*Entity)                  {}
func (nopSink) Removed(*Entity)                  {}
func (nopSink) DirectUpdated()                   {}
func (nopSink) LockdownWhitelistUpdated()        {}
func (nopSink) PropertiesChanged(map[string]any) {}

type nopRegistrar struct{}

func (nopRegistrar) Register(*Entity) error { return nil }
func (nopRegistrar) Unregister(*Entity)     {}
