// Package settings holds the persisted configuration records wrapped by the
// live object graph. Records are plain values; cross references between
// kinds are named fields (Zone.Services, Zone.IcmpBlocks).
package settings

import (
	"maps"
	"slices"

	"gofirewalld/internal/fwerr"
)

type Kind int

const (
	KindZone Kind = iota
	KindService
	KindIcmpType
	KindIPSet
)

// Kinds lists the entity kinds in load order: referenced kinds come before
// the zones that reference them.
var Kinds = []Kind{KindIPSet, KindIcmpType, KindService, KindZone}

func (k Kind) String() string {
	switch k {
	case KindZone:
		return "zone"
	case KindService:
		return "service"
	case KindIcmpType:
		return "icmptype"
	case KindIPSet:
		return "ipset"
	default:
		return "unknown"
	}
}

// Dir is the directory name of the kind below a configuration root.
func (k Kind) Dir() string {
	return k.String() + "s"
}

// NotFound is the code reported when a name lookup of this kind misses.
func (k Kind) NotFound() fwerr.Code {
	switch k {
	case KindZone:
		return fwerr.InvalidZone
	case KindService:
		return fwerr.InvalidService
	case KindIcmpType:
		return fwerr.InvalidIcmpType
	case KindIPSet:
		return fwerr.InvalidIPSet
	default:
		return fwerr.InvalidObject
	}
}

// BuiltinCode is the code reported when a builtin entity is removed.
func (k Kind) BuiltinCode() fwerr.Code {
	switch k {
	case KindZone:
		return fwerr.BuiltinZone
	case KindService:
		return fwerr.BuiltinService
	case KindIcmpType:
		return fwerr.BuiltinIcmpType
	case KindIPSet:
		return fwerr.BuiltinIPSet
	default:
		return fwerr.InvalidObject
	}
}

// Meta identifies where a record came from. Name+Path+Filename is the
// identity used to match reloaded records against live objects.
type Meta struct {
	Name     string
	Path     string
	Filename string
	Builtin  bool
	Default  bool
}

func (m *Meta) Base() *Meta { return m }

// SameOrigin reports whether both records were read from the same file under
// the same name.
func (m Meta) SameOrigin(o Meta) bool {
	return m.Name == o.Name && m.Path == o.Path && m.Filename == o.Filename
}

type Record interface {
	Base() *Meta
	Kind() Kind
	Clone() Record
}

type Port struct {
	Port     string
	Protocol string
}

type ForwardPort struct {
	Port     string
	Protocol string
	ToPort   string
	ToAddr   string
}

type Zone struct {
	Meta
	Version            string
	Short              string
	Description        string
	Target             string
	Services           []string
	Ports              []Port
	IcmpBlocks         []string
	Masquerade         bool
	ForwardPorts       []ForwardPort
	Interfaces         []string
	Sources            []string
	Protocols          []string
	SourcePorts        []Port
	IcmpBlockInversion bool
}

func (z *Zone) Kind() Kind { return KindZone }

func (z *Zone) Clone() Record {
	c := *z
	c.Services = slices.Clone(z.Services)
	c.Ports = slices.Clone(z.Ports)
	c.IcmpBlocks = slices.Clone(z.IcmpBlocks)
	c.ForwardPorts = slices.Clone(z.ForwardPorts)
	c.Interfaces = slices.Clone(z.Interfaces)
	c.Sources = slices.Clone(z.Sources)
	c.Protocols = slices.Clone(z.Protocols)
	c.SourcePorts = slices.Clone(z.SourcePorts)
	return &c
}

// References returns the names of kind k the zone refers to.
func (z *Zone) References(k Kind) []string {
	switch k {
	case KindService:
		return z.Services
	case KindIcmpType:
		return z.IcmpBlocks
	default:
		return nil
	}
}

// Retract drops name from the reference list of kind k and reports whether
// it was present.
func (z *Zone) Retract(k Kind, name string) bool {
	var list *[]string
	switch k {
	case KindService:
		list = &z.Services
	case KindIcmpType:
		list = &z.IcmpBlocks
	default:
		return false
	}
	before := len(*list)
	*list = slices.DeleteFunc(*list, func(s string) bool { return s == name })
	return len(*list) != before
}

type Service struct {
	Meta
	Version     string
	Short       string
	Description string
	Ports       []Port
	Modules     []string
	Destination map[string]string
	Protocols   []string
	SourcePorts []Port
}

func (s *Service) Kind() Kind { return KindService }

func (s *Service) Clone() Record {
	c := *s
	c.Ports = slices.Clone(s.Ports)
	c.Modules = slices.Clone(s.Modules)
	c.Destination = maps.Clone(s.Destination)
	c.Protocols = slices.Clone(s.Protocols)
	c.SourcePorts = slices.Clone(s.SourcePorts)
	return &c
}

type IcmpType struct {
	Meta
	Version     string
	Short       string
	Description string
	Destination []string
}

func (i *IcmpType) Kind() Kind { return KindIcmpType }

func (i *IcmpType) Clone() Record {
	c := *i
	c.Destination = slices.Clone(i.Destination)
	return &c
}

type IPSet struct {
	Meta
	Version     string
	Short       string
	Description string
	Type        string
	Options     map[string]string
	Entries     []string
}

func (s *IPSet) Kind() Kind { return KindIPSet }

func (s *IPSet) Clone() Record {
	c := *s
	c.Options = maps.Clone(s.Options)
	c.Entries = slices.Clone(s.Entries)
	return &c
}

// New returns an empty record of kind k named name.
func New(k Kind, name string) Record {
	switch k {
	case KindZone:
		return &Zone{Meta: Meta{Name: name}}
	case KindService:
		return &Service{Meta: Meta{Name: name}}
	case KindIcmpType:
		return &IcmpType{Meta: Meta{Name: name}}
	case KindIPSet:
		return &IPSet{Meta: Meta{Name: name}}
	default:
		return nil
	}
}
