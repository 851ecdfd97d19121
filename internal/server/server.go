//go:build linux
// +build linux

// Package server exports the configuration graph on the system bus.
package server

import (
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"gofirewalld/internal/ebtables"
	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/graph"
	"gofirewalld/internal/settings"
)

const (
	BusName = "org.fedoraproject.FirewallD1"

	mainPath   = dbus.ObjectPath("/org/fedoraproject/FirewallD1")
	configPath = dbus.ObjectPath(graph.ConfigPath)

	ifaceMain     = "org.fedoraproject.FirewallD1"
	ifaceConfig   = "org.fedoraproject.FirewallD1.config"
	ifaceDirect   = "org.fedoraproject.FirewallD1.config.direct"
	ifacePolicies = "org.fedoraproject.FirewallD1.config.policies"
	ifaceProps    = "org.freedesktop.DBus.Properties"
	ifaceIntro    = "org.freedesktop.DBus.Introspectable"

	errException = "org.fedoraproject.FirewallD1.Exception"
)

// Bus is the part of *dbus.Conn the server uses.
type Bus interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	ExportWithMap(v any, mapping map[string]string, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

type Options struct {
	Resolver Resolver
	Version  string
}

// Server implements graph.Sink and graph.Registrar. Bind must be called
// before the graph is loaded.
type Server struct {
	bus      Bus
	resolver Resolver
	version  string
	graph    *graph.Graph

	mu       sync.Mutex
	exported map[dbus.ObjectPath][]string
}

func New(bus Bus, opts Options) *Server {
	r := opts.Resolver
	if r == nil {
		r = anonymous{}
	}
	return &Server{
		bus:      bus,
		resolver: r,
		version:  opts.Version,
		exported: make(map[dbus.ObjectPath][]string),
	}
}

func (s *Server) Bind(g *graph.Graph) {
	s.graph = g
}

// Start exports the daemon and config objects. Entity objects are exported
// as the graph registers them.
func (s *Server) Start() error {
	objects := []struct {
		path  dbus.ObjectPath
		iface string
		v     any
	}{
		{mainPath, ifaceMain, &mainObject{s}},
		{mainPath, ifaceProps, &mainProps{s}},
		{configPath, ifaceConfig, &configObject{s}},
		{configPath, ifaceDirect, &directObject{s}},
		{configPath, ifacePolicies, &policiesObject{s}},
		{configPath, ifaceProps, &configProps{s}},
	}
	for _, o := range objects {
		if err := s.export(o.v, o.path, o.iface); err != nil {
			return err
		}
	}

	intro := map[dbus.ObjectPath]*introspect.Node{
		mainPath: {Interfaces: []introspect.Interface{
			describe(ifaceMain, &mainObject{}, nil),
			introspect.IntrospectData,
			propsData,
		}},
		configPath: {Interfaces: []introspect.Interface{
			describe(ifaceConfig, &configObject{}, configSignals),
			describe(ifaceDirect, &directObject{}, []introspect.Signal{{Name: "Updated"}}),
			describe(ifacePolicies, &policiesObject{}, []introspect.Signal{{Name: "LockdownWhitelistUpdated"}}),
			introspect.IntrospectData,
			propsData,
		}},
	}
	for path, node := range intro {
		if err := s.bus.Export(introspect.NewIntrospectable(node), path, ifaceIntro); err != nil {
			return err
		}
	}
	slog.Info("configuration exported", "path", configPath)
	return nil
}

func (s *Server) export(v any, path dbus.ObjectPath, iface string) error {
	if iface == ifaceProps {
		return s.bus.Export(v, path, iface)
	}
	return s.bus.ExportWithMap(v, methodNames(v), path, iface)
}

// Register exports the object of e.
func (s *Server) Register(e *graph.Entity) error {
	path := dbus.ObjectPath(e.Path())
	iface := entityInterface(e.Kind())
	obj := newEntityObject(s, e)

	if err := s.export(obj, path, iface); err != nil {
		return err
	}
	if err := s.bus.Export(&entityProps{s: s, e: e}, path, ifaceProps); err != nil {
		return err
	}
	node := &introspect.Node{Interfaces: []introspect.Interface{
		describe(iface, obj, entitySignals),
		introspect.IntrospectData,
		propsData,
	}}
	if err := s.bus.Export(introspect.NewIntrospectable(node), path, ifaceIntro); err != nil {
		return err
	}

	s.mu.Lock()
	s.exported[path] = []string{iface, ifaceProps, ifaceIntro}
	s.mu.Unlock()
	return nil
}

func (s *Server) Unregister(e *graph.Entity) {
	path := dbus.ObjectPath(e.Path())
	s.mu.Lock()
	ifaces := s.exported[path]
	delete(s.exported, path)
	s.mu.Unlock()

	for _, iface := range ifaces {
		if err := s.bus.Export(nil, path, iface); err != nil {
			slog.Warn("unexport failed", "path", path, "iface", iface, "error", err)
		}
	}
}

func (s *Server) emit(path dbus.ObjectPath, name string, values ...any) {
	if err := s.bus.Emit(path, name, values...); err != nil {
		slog.Warn("signal not sent", "path", path, "signal", name, "error", err)
	}
}

func (s *Server) Added(e *graph.Entity) {
	s.emit(configPath, ifaceConfig+"."+addedSignal(e.Kind()), e.Name())
}

func (s *Server) Updated(e *graph.Entity) {
	s.emit(dbus.ObjectPath(e.Path()), entityInterface(e.Kind())+".Updated", e.Name())
}

func (s *Server) Removed(e *graph.Entity) {
	s.emit(dbus.ObjectPath(e.Path()), entityInterface(e.Kind())+".Removed", e.Name())
}

func (s *Server) DirectUpdated() {
	s.emit(configPath, ifaceDirect+".Updated")
}

func (s *Server) LockdownWhitelistUpdated() {
	s.emit(configPath, ifacePolicies+".LockdownWhitelistUpdated")
}

func (s *Server) PropertiesChanged(changed map[string]any) {
	s.emit(configPath, ifaceProps+".PropertiesChanged", ifaceConfig, variants(changed), []string{})
}

func (s *Server) caller(sender dbus.Sender) graph.Caller {
	return s.resolver.Caller(sender)
}

func entityInterface(k settings.Kind) string {
	return ifaceConfig + "." + k.String()
}

func addedSignal(k settings.Kind) string {
	switch k {
	case settings.KindZone:
		return "ZoneAdded"
	case settings.KindService:
		return "ServiceAdded"
	case settings.KindIcmpType:
		return "IcmpTypeAdded"
	default:
		return "IPSetAdded"
	}
}

// busError maps err onto the exception every firewalld client expects.
func busError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrReadOnly) {
		return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []any{err.Error()})
	}
	var fe *fwerr.Error
	if errors.As(err, &fe) {
		return dbus.NewError(errException, []any{fe.Error()})
	}
	var te *ebtables.ToolError
	if errors.As(err, &te) {
		return dbus.NewError(errException, []any{fwerr.CommandFailed.String() + ": " + te.Error()})
	}
	slog.Error("unexpected error", "error", err)
	return dbus.NewError(errException, []any{fwerr.UnknownError.String() + ": " + err.Error()})
}

func variants(m map[string]any) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(m))
	for k, v := range m {
		out[k] = dbus.MakeVariant(v)
	}
	return out
}

// methodNames maps the exported Go methods of v onto the lower camel case
// names firewalld uses on the bus.
func methodNames(v any) map[string]string {
	t := reflect.TypeOf(v)
	out := make(map[string]string, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		out[name] = lowerFirst(name)
	}
	return out
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func describe(iface string, v any, signals []introspect.Signal) introspect.Interface {
	methods := introspect.Methods(v)
	for i := range methods {
		methods[i].Name = lowerFirst(methods[i].Name)
	}
	return introspect.Interface{Name: iface, Methods: methods, Signals: signals}
}

var (
	nameArg = []introspect.Arg{{Name: "name", Type: "s"}}

	configSignals = []introspect.Signal{
		{Name: "ZoneAdded", Args: nameArg},
		{Name: "ServiceAdded", Args: nameArg},
		{Name: "IcmpTypeAdded", Args: nameArg},
		{Name: "IPSetAdded", Args: nameArg},
	}
	entitySignals = []introspect.Signal{
		{Name: "Updated", Args: nameArg},
		{Name: "Removed", Args: nameArg},
	}
	propsData = introspect.Interface{
		Name: ifaceProps,
		Methods: []introspect.Method{
			{Name: "Get", Args: []introspect.Arg{{Name: "interface", Type: "s", Direction: "in"}, {Name: "property", Type: "s", Direction: "in"}, {Name: "value", Type: "v", Direction: "out"}}},
			{Name: "GetAll", Args: []introspect.Arg{{Name: "interface", Type: "s", Direction: "in"}, {Name: "props", Type: "a{sv}", Direction: "out"}}},
			{Name: "Set", Args: []introspect.Arg{{Name: "interface", Type: "s", Direction: "in"}, {Name: "property", Type: "s", Direction: "in"}, {Name: "value", Type: "v", Direction: "in"}}},
		},
		Signals: []introspect.Signal{
			{Name: "PropertiesChanged", Args: []introspect.Arg{{Name: "interface", Type: "s"}, {Name: "changed", Type: "a{sv}"}, {Name: "invalidated", Type: "as"}}},
		},
	}
)
