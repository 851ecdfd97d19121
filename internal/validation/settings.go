package validation

import (
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

// DefaultZoneTarget replaces the "default" target on zones created over RPC.
const DefaultZoneTarget = "{chain}_{zone}"

var (
	zoneTargets    = []string{"default", "ACCEPT", "%%REJECT%%", "DROP", DefaultZoneTarget}
	portProtocols  = []string{"tcp", "udp", "sctp", "dccp"}
	ipsetTypes     = []string{"hash:ip", "hash:ip,port", "hash:ip,port,ip", "hash:ip,port,net", "hash:ip,mark", "hash:net", "hash:net,net", "hash:net,port", "hash:net,port,net", "hash:net,iface", "hash:mac"}
	ipsetOptions   = []string{"family", "timeout", "hashsize", "maxelem"}
	destinationIPv = []string{"ipv4", "ipv6"}
)

// Known answers whether an entity of a kind exists, for reference checks.
type Known interface {
	Has(kind settings.Kind, name string) bool
}

// Record validates a settings record of any kind. known may be nil, in which
// case references between kinds are not checked.
func Record(rec settings.Record, known Known) error {
	name := rec.Base().Name
	nameCheck := CheckName
	if rec.Kind() == settings.KindZone {
		nameCheck = CheckZoneName
	}
	if err := nameCheck(name); err != nil {
		return fwerr.Wrap(fwerr.InvalidName, err, name)
	}

	switch r := rec.(type) {
	case *settings.Zone:
		return Zone(r, known)
	case *settings.Service:
		return Service(r)
	case *settings.IcmpType:
		return IcmpType(r)
	case *settings.IPSet:
		return IPSet(r)
	default:
		return fwerr.Errorf(fwerr.InvalidObject, "%T", rec)
	}
}

func Zone(z *settings.Zone, known Known) error {
	if z.Target != "" && !slices.Contains(zoneTargets, z.Target) {
		return fwerr.New(fwerr.InvalidTarget, z.Target)
	}
	for _, p := range z.Ports {
		if err := Port(p); err != nil {
			return err
		}
	}
	for _, p := range z.SourcePorts {
		if err := Port(p); err != nil {
			return err
		}
	}
	for _, p := range z.Protocols {
		if err := Protocol(p); err != nil {
			return err
		}
	}
	for _, fp := range z.ForwardPorts {
		if err := ForwardPort(fp); err != nil {
			return err
		}
	}
	for _, iface := range z.Interfaces {
		if err := Interface(iface); err != nil {
			return err
		}
	}
	for _, src := range z.Sources {
		if err := Source(src); err != nil {
			return err
		}
	}
	if known == nil {
		return nil
	}
	for _, s := range z.Services {
		if !known.Has(settings.KindService, s) {
			return fwerr.New(fwerr.InvalidService, s)
		}
	}
	for _, i := range z.IcmpBlocks {
		if !known.Has(settings.KindIcmpType, i) {
			return fwerr.New(fwerr.InvalidIcmpType, i)
		}
	}
	for _, src := range z.Sources {
		if set, ok := strings.CutPrefix(src, "ipset:"); ok && !known.Has(settings.KindIPSet, set) {
			return fwerr.New(fwerr.InvalidIPSet, set)
		}
	}
	return nil
}

func Service(s *settings.Service) error {
	for _, p := range s.Ports {
		if err := Port(p); err != nil {
			return err
		}
	}
	for _, p := range s.SourcePorts {
		if err := Port(p); err != nil {
			return err
		}
	}
	for _, p := range s.Protocols {
		if err := Protocol(p); err != nil {
			return err
		}
	}
	for _, m := range s.Modules {
		if strings.TrimSpace(m) == "" {
			return fwerr.New(fwerr.InvalidValue, "empty module name")
		}
	}
	for ipv, addr := range s.Destination {
		if !slices.Contains(destinationIPv, ipv) {
			return fwerr.New(fwerr.InvalidIPv, ipv)
		}
		if err := Address(ipv, addr); err != nil {
			return err
		}
	}
	return nil
}

func IcmpType(i *settings.IcmpType) error {
	for _, d := range i.Destination {
		if !slices.Contains(destinationIPv, d) {
			return fwerr.New(fwerr.InvalidIPv, d)
		}
	}
	return nil
}

func IPSet(s *settings.IPSet) error {
	if !slices.Contains(ipsetTypes, s.Type) {
		return fwerr.New(fwerr.InvalidType, s.Type)
	}
	for key, value := range s.Options {
		if !slices.Contains(ipsetOptions, key) {
			return fwerr.New(fwerr.InvalidOption, key)
		}
		switch key {
		case "family":
			if value != "inet" && value != "inet6" {
				return fwerr.Errorf(fwerr.InvalidOption, "family %q", value)
			}
		default:
			if n, err := strconv.Atoi(value); err != nil || n < 0 {
				return fwerr.Errorf(fwerr.InvalidOption, "%s %q", key, value)
			}
		}
	}
	for _, e := range s.Entries {
		if err := IPSetEntry(s.Type, e); err != nil {
			return err
		}
	}
	return nil
}

// IPSetEntry checks the first dimension of an entry against the set type.
func IPSetEntry(setType, entry string) error {
	first, _, _ := strings.Cut(entry, ",")
	kind, _, _ := strings.Cut(strings.TrimPrefix(setType, "hash:"), ",")
	var ok bool
	switch kind {
	case "ip":
		ok = isAddr(first) || isRange(first) || isPrefix(first)
	case "net":
		ok = isAddr(first) || isPrefix(first)
	case "mac":
		_, err := net.ParseMAC(first)
		ok = err == nil
	}
	if !ok {
		return fwerr.Errorf(fwerr.InvalidEntry, "%q for %s", entry, setType)
	}
	return nil
}

// Port accepts a single port or a "lo-hi" range with a port protocol.
func Port(p settings.Port) error {
	if !slices.Contains(portProtocols, p.Protocol) {
		return fwerr.New(fwerr.InvalidProtocol, p.Protocol)
	}
	if _, _, err := PortRange(p.Port); err != nil {
		return err
	}
	return nil
}

func PortRange(value string) (int, int, error) {
	lo, hi, isRange := strings.Cut(value, "-")
	start, err := portNumber(lo)
	if err != nil {
		return 0, 0, fwerr.New(fwerr.InvalidPort, value)
	}
	if !isRange {
		return start, start, nil
	}
	end, err := portNumber(hi)
	if err != nil || end < start {
		return 0, 0, fwerr.New(fwerr.InvalidPort, value)
	}
	return start, end, nil
}

func portNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}

func Protocol(p string) error {
	if p == "" {
		return fwerr.New(fwerr.InvalidProtocol, p)
	}
	for _, r := range p {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			continue
		}
		return fwerr.New(fwerr.InvalidProtocol, p)
	}
	return nil
}

func ForwardPort(fp settings.ForwardPort) error {
	if err := Port(settings.Port{Port: fp.Port, Protocol: fp.Protocol}); err != nil {
		return err
	}
	if fp.ToPort == "" && fp.ToAddr == "" {
		return fwerr.Errorf(fwerr.InvalidForward, "%s/%s has neither to-port nor to-addr", fp.Port, fp.Protocol)
	}
	if fp.ToPort != "" {
		if _, _, err := PortRange(fp.ToPort); err != nil {
			return fwerr.New(fwerr.InvalidForward, fp.ToPort)
		}
	}
	if fp.ToAddr != "" && !isAddr(fp.ToAddr) {
		return fwerr.New(fwerr.InvalidAddr, fp.ToAddr)
	}
	return nil
}

// Interface follows the kernel's IFNAMSIZ limit.
func Interface(name string) error {
	if name == "" || len(name) > 15 || strings.ContainsAny(name, " /\t\n") {
		return fwerr.New(fwerr.InvalidInterface, name)
	}
	return nil
}

// Source accepts an address, a prefix, a MAC address or "ipset:<name>".
func Source(src string) error {
	if set, ok := strings.CutPrefix(src, "ipset:"); ok {
		if err := CheckName(set); err != nil {
			return fwerr.Wrap(fwerr.InvalidIPSet, err, set)
		}
		return nil
	}
	if isAddr(src) || isPrefix(src) {
		return nil
	}
	if _, err := net.ParseMAC(src); err == nil {
		return nil
	}
	return fwerr.New(fwerr.InvalidAddr, src)
}

func Address(ipv, addr string) error {
	var a netip.Addr
	if p, err := netip.ParsePrefix(addr); err == nil {
		a = p.Addr()
	} else if parsed, err := netip.ParseAddr(addr); err == nil {
		a = parsed
	} else {
		return fwerr.New(fwerr.InvalidAddr, addr)
	}
	if (ipv == "ipv4") != a.Is4() {
		return fwerr.Errorf(fwerr.InvalidAddr, "%s is not an %s address", addr, ipv)
	}
	return nil
}

func isAddr(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

func isPrefix(s string) bool {
	_, err := netip.ParsePrefix(s)
	return err == nil
}

func isRange(s string) bool {
	lo, hi, ok := strings.Cut(s, "-")
	return ok && isAddr(lo) && isAddr(hi)
}
