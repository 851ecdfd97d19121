package persist

import (
	"encoding/xml"
	"fmt"
	"net"
	"slices"
	"sort"
	"strconv"
	"strings"

	shlex "github.com/anmitsu/go-shlex"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/validation"
)

type nameXML struct {
	Name string `xml:"name,attr"`
}

type valueXML struct {
	Value string `xml:"value,attr"`
}

type portXML struct {
	Port     string `xml:"port,attr"`
	Protocol string `xml:"protocol,attr"`
}

type forwardPortXML struct {
	Port     string `xml:"port,attr"`
	Protocol string `xml:"protocol,attr"`
	ToPort   string `xml:"to-port,attr,omitempty"`
	ToAddr   string `xml:"to-addr,attr,omitempty"`
}

type sourceXML struct {
	Address string `xml:"address,attr,omitempty"`
	Mac     string `xml:"mac,attr,omitempty"`
	IPSet   string `xml:"ipset,attr,omitempty"`
}

type zoneXML struct {
	XMLName            xml.Name         `xml:"zone"`
	Version            string           `xml:"version,attr,omitempty"`
	Target             string           `xml:"target,attr,omitempty"`
	Short              string           `xml:"short,omitempty"`
	Description        string           `xml:"description,omitempty"`
	Interfaces         []nameXML        `xml:"interface"`
	Sources            []sourceXML      `xml:"source"`
	Services           []nameXML        `xml:"service"`
	Ports              []portXML        `xml:"port"`
	Protocols          []valueXML       `xml:"protocol"`
	IcmpBlocks         []nameXML        `xml:"icmp-block"`
	IcmpBlockInversion *struct{}        `xml:"icmp-block-inversion"`
	Masquerade         *struct{}        `xml:"masquerade"`
	ForwardPorts       []forwardPortXML `xml:"forward-port"`
	SourcePorts        []portXML        `xml:"source-port"`
}

type destinationXML struct {
	IPv4 string `xml:"ipv4,attr,omitempty"`
	IPv6 string `xml:"ipv6,attr,omitempty"`
}

type serviceXML struct {
	XMLName     xml.Name        `xml:"service"`
	Version     string          `xml:"version,attr,omitempty"`
	Short       string          `xml:"short,omitempty"`
	Description string          `xml:"description,omitempty"`
	Ports       []portXML       `xml:"port"`
	Protocols   []valueXML      `xml:"protocol"`
	SourcePorts []portXML       `xml:"source-port"`
	Modules     []nameXML       `xml:"module"`
	Destination *destinationXML `xml:"destination"`
}

type icmpTypeXML struct {
	XMLName     xml.Name        `xml:"icmptype"`
	Version     string          `xml:"version,attr,omitempty"`
	Short       string          `xml:"short,omitempty"`
	Description string          `xml:"description,omitempty"`
	Destination *destinationXML `xml:"destination"`
}

type optionXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr,omitempty"`
}

type ipsetXML struct {
	XMLName     xml.Name    `xml:"ipset"`
	Version     string      `xml:"version,attr,omitempty"`
	Type        string      `xml:"type,attr"`
	Short       string      `xml:"short,omitempty"`
	Description string      `xml:"description,omitempty"`
	Options     []optionXML `xml:"option"`
	Entries     []string    `xml:"entry"`
}

type directChainXML struct {
	IPv   string `xml:"ipv,attr"`
	Table string `xml:"table,attr"`
	Chain string `xml:"chain,attr"`
}

type directRuleXML struct {
	IPv      string `xml:"ipv,attr"`
	Table    string `xml:"table,attr"`
	Chain    string `xml:"chain,attr"`
	Priority int32  `xml:"priority,attr"`
	Args     string `xml:",chardata"`
}

type passthroughXML struct {
	IPv  string `xml:"ipv,attr"`
	Args string `xml:",chardata"`
}

type directXML struct {
	XMLName      xml.Name         `xml:"direct"`
	Chains       []directChainXML `xml:"chain"`
	Rules        []directRuleXML  `xml:"rule"`
	Passthroughs []passthroughXML `xml:"passthrough"`
}

type whitelistUserXML struct {
	Name string `xml:"name,attr,omitempty"`
	ID   string `xml:"id,attr,omitempty"`
}

type selinuxXML struct {
	Context string `xml:"context,attr"`
}

type whitelistXML struct {
	XMLName  xml.Name           `xml:"whitelist"`
	Commands []nameXML          `xml:"command"`
	Contexts []selinuxXML       `xml:"selinux"`
	Users    []whitelistUserXML `xml:"user"`
}

// Decode parses the XML of a record of kind k. Meta is left for the caller.
func Decode(k settings.Kind, data []byte) (settings.Record, error) {
	switch k {
	case settings.KindZone:
		return decodeZone(data)
	case settings.KindService:
		return decodeService(data)
	case settings.KindIcmpType:
		return decodeIcmpType(data)
	case settings.KindIPSet:
		return decodeIPSet(data)
	default:
		return nil, fwerr.Errorf(fwerr.InvalidType, "kind %d", k)
	}
}

func parseError(err error) error {
	return fwerr.Wrap(fwerr.ParseError, err, "")
}

func decodeZone(data []byte) (*settings.Zone, error) {
	var zx zoneXML
	if err := xml.Unmarshal(data, &zx); err != nil {
		return nil, parseError(err)
	}
	z := &settings.Zone{
		Version:            zx.Version,
		Short:              zx.Short,
		Description:        zx.Description,
		Target:             zx.Target,
		Masquerade:         zx.Masquerade != nil,
		IcmpBlockInversion: zx.IcmpBlockInversion != nil,
	}
	if z.Target == "" {
		z.Target = validation.DefaultZoneTarget
	}
	for _, i := range zx.Interfaces {
		z.Interfaces = appendUnique(z.Interfaces, i.Name)
	}
	for _, s := range zx.Sources {
		switch {
		case s.Address != "":
			z.Sources = appendUnique(z.Sources, s.Address)
		case s.Mac != "":
			z.Sources = appendUnique(z.Sources, s.Mac)
		case s.IPSet != "":
			z.Sources = appendUnique(z.Sources, "ipset:"+s.IPSet)
		}
	}
	for _, s := range zx.Services {
		z.Services = appendUnique(z.Services, s.Name)
	}
	for _, p := range zx.Ports {
		z.Ports = append(z.Ports, settings.Port{Port: p.Port, Protocol: p.Protocol})
	}
	for _, p := range zx.Protocols {
		z.Protocols = appendUnique(z.Protocols, p.Value)
	}
	for _, i := range zx.IcmpBlocks {
		z.IcmpBlocks = appendUnique(z.IcmpBlocks, i.Name)
	}
	for _, fp := range zx.ForwardPorts {
		z.ForwardPorts = append(z.ForwardPorts, settings.ForwardPort(fp))
	}
	for _, p := range zx.SourcePorts {
		z.SourcePorts = append(z.SourcePorts, settings.Port{Port: p.Port, Protocol: p.Protocol})
	}
	return z, nil
}

func encodeZone(z *settings.Zone) zoneXML {
	zx := zoneXML{
		Version:     z.Version,
		Short:       z.Short,
		Description: z.Description,
	}
	if z.Target != validation.DefaultZoneTarget && z.Target != "default" {
		zx.Target = z.Target
	}
	if z.Masquerade {
		zx.Masquerade = &struct{}{}
	}
	if z.IcmpBlockInversion {
		zx.IcmpBlockInversion = &struct{}{}
	}
	for _, i := range z.Interfaces {
		zx.Interfaces = append(zx.Interfaces, nameXML{Name: i})
	}
	for _, s := range z.Sources {
		if set, ok := strings.CutPrefix(s, "ipset:"); ok {
			zx.Sources = append(zx.Sources, sourceXML{IPSet: set})
		} else if _, err := net.ParseMAC(s); err == nil {
			zx.Sources = append(zx.Sources, sourceXML{Mac: s})
		} else {
			zx.Sources = append(zx.Sources, sourceXML{Address: s})
		}
	}
	for _, s := range z.Services {
		zx.Services = append(zx.Services, nameXML{Name: s})
	}
	for _, p := range z.Ports {
		zx.Ports = append(zx.Ports, portXML(p))
	}
	for _, p := range z.Protocols {
		zx.Protocols = append(zx.Protocols, valueXML{Value: p})
	}
	for _, i := range z.IcmpBlocks {
		zx.IcmpBlocks = append(zx.IcmpBlocks, nameXML{Name: i})
	}
	for _, fp := range z.ForwardPorts {
		zx.ForwardPorts = append(zx.ForwardPorts, forwardPortXML(fp))
	}
	for _, p := range z.SourcePorts {
		zx.SourcePorts = append(zx.SourcePorts, portXML(p))
	}
	return zx
}

func decodeService(data []byte) (*settings.Service, error) {
	var sx serviceXML
	if err := xml.Unmarshal(data, &sx); err != nil {
		return nil, parseError(err)
	}
	s := &settings.Service{
		Version:     sx.Version,
		Short:       sx.Short,
		Description: sx.Description,
	}
	for _, p := range sx.Ports {
		s.Ports = append(s.Ports, settings.Port{Port: p.Port, Protocol: p.Protocol})
	}
	for _, p := range sx.Protocols {
		s.Protocols = appendUnique(s.Protocols, p.Value)
	}
	for _, p := range sx.SourcePorts {
		s.SourcePorts = append(s.SourcePorts, settings.Port{Port: p.Port, Protocol: p.Protocol})
	}
	for _, m := range sx.Modules {
		s.Modules = appendUnique(s.Modules, m.Name)
	}
	if d := sx.Destination; d != nil {
		s.Destination = make(map[string]string)
		if d.IPv4 != "" {
			s.Destination["ipv4"] = d.IPv4
		}
		if d.IPv6 != "" {
			s.Destination["ipv6"] = d.IPv6
		}
	}
	return s, nil
}

func encodeService(s *settings.Service) serviceXML {
	sx := serviceXML{
		Version:     s.Version,
		Short:       s.Short,
		Description: s.Description,
	}
	for _, p := range s.Ports {
		sx.Ports = append(sx.Ports, portXML(p))
	}
	for _, p := range s.Protocols {
		sx.Protocols = append(sx.Protocols, valueXML{Value: p})
	}
	for _, p := range s.SourcePorts {
		sx.SourcePorts = append(sx.SourcePorts, portXML(p))
	}
	for _, m := range s.Modules {
		sx.Modules = append(sx.Modules, nameXML{Name: m})
	}
	if len(s.Destination) > 0 {
		sx.Destination = &destinationXML{IPv4: s.Destination["ipv4"], IPv6: s.Destination["ipv6"]}
	}
	return sx
}

func decodeIcmpType(data []byte) (*settings.IcmpType, error) {
	var ix icmpTypeXML
	if err := xml.Unmarshal(data, &ix); err != nil {
		return nil, parseError(err)
	}
	i := &settings.IcmpType{
		Version:     ix.Version,
		Short:       ix.Short,
		Description: ix.Description,
	}
	if d := ix.Destination; d != nil {
		if yes(d.IPv4) {
			i.Destination = append(i.Destination, "ipv4")
		}
		if yes(d.IPv6) {
			i.Destination = append(i.Destination, "ipv6")
		}
	}
	return i, nil
}

func encodeIcmpType(i *settings.IcmpType) icmpTypeXML {
	ix := icmpTypeXML{
		Version:     i.Version,
		Short:       i.Short,
		Description: i.Description,
	}
	if len(i.Destination) > 0 {
		ix.Destination = &destinationXML{}
		if slices.Contains(i.Destination, "ipv4") {
			ix.Destination.IPv4 = "yes"
		}
		if slices.Contains(i.Destination, "ipv6") {
			ix.Destination.IPv6 = "yes"
		}
	}
	return ix
}

func decodeIPSet(data []byte) (*settings.IPSet, error) {
	var sx ipsetXML
	if err := xml.Unmarshal(data, &sx); err != nil {
		return nil, parseError(err)
	}
	s := &settings.IPSet{
		Version:     sx.Version,
		Short:       sx.Short,
		Description: sx.Description,
		Type:        sx.Type,
	}
	for _, o := range sx.Options {
		if s.Options == nil {
			s.Options = make(map[string]string)
		}
		s.Options[o.Name] = o.Value
	}
	for _, e := range sx.Entries {
		s.Entries = appendUnique(s.Entries, strings.TrimSpace(e))
	}
	return s, nil
}

func encodeIPSet(s *settings.IPSet) ipsetXML {
	sx := ipsetXML{
		Version:     s.Version,
		Type:        s.Type,
		Short:       s.Short,
		Description: s.Description,
		Entries:     slices.Clone(s.Entries),
	}
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sx.Options = append(sx.Options, optionXML{Name: k, Value: s.Options[k]})
	}
	return sx
}

// Encode renders rec as an indented XML document.
func Encode(rec settings.Record) ([]byte, error) {
	var v any
	switch r := rec.(type) {
	case *settings.Zone:
		v = encodeZone(r)
	case *settings.Service:
		v = encodeService(r)
	case *settings.IcmpType:
		v = encodeIcmpType(r)
	case *settings.IPSet:
		v = encodeIPSet(r)
	default:
		return nil, fwerr.Errorf(fwerr.InvalidObject, "%T", rec)
	}
	return marshal(v)
}

func marshal(v any) ([]byte, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(append([]byte(xml.Header), data...), '\n'), nil
}

func DecodeDirect(data []byte) (*settings.Direct, error) {
	var dx directXML
	if err := xml.Unmarshal(data, &dx); err != nil {
		return nil, parseError(err)
	}
	d := &settings.Direct{}
	for _, c := range dx.Chains {
		dc := settings.DirectChain(c)
		if !d.HasChain(dc) {
			d.Chains = append(d.Chains, dc)
		}
	}
	for _, r := range dx.Rules {
		args, err := SplitArgs(r.Args)
		if err != nil {
			return nil, parseError(fmt.Errorf("rule %q: %w", r.Args, err))
		}
		dr := settings.DirectRule{IPv: r.IPv, Table: r.Table, Chain: r.Chain, Priority: r.Priority, Args: args}
		if !d.HasRule(dr) {
			d.Rules = append(d.Rules, dr)
		}
	}
	for _, p := range dx.Passthroughs {
		args, err := SplitArgs(p.Args)
		if err != nil {
			return nil, parseError(fmt.Errorf("passthrough %q: %w", p.Args, err))
		}
		pt := settings.Passthrough{IPv: p.IPv, Args: args}
		if !d.HasPassthrough(pt) {
			d.Passthroughs = append(d.Passthroughs, pt)
		}
	}
	return d, nil
}

func EncodeDirect(d *settings.Direct) ([]byte, error) {
	var dx directXML
	for _, c := range d.Chains {
		dx.Chains = append(dx.Chains, directChainXML(c))
	}
	for _, r := range d.Rules {
		dx.Rules = append(dx.Rules, directRuleXML{IPv: r.IPv, Table: r.Table, Chain: r.Chain, Priority: r.Priority, Args: JoinArgs(r.Args)})
	}
	for _, p := range d.Passthroughs {
		dx.Passthroughs = append(dx.Passthroughs, passthroughXML{IPv: p.IPv, Args: JoinArgs(p.Args)})
	}
	return marshal(dx)
}

func DecodeLockdownWhitelist(data []byte) (*settings.LockdownWhitelist, error) {
	var wx whitelistXML
	if err := xml.Unmarshal(data, &wx); err != nil {
		return nil, parseError(err)
	}
	w := &settings.LockdownWhitelist{}
	for _, c := range wx.Commands {
		w.Commands = appendUnique(w.Commands, c.Name)
	}
	for _, c := range wx.Contexts {
		w.Contexts = appendUnique(w.Contexts, c.Context)
	}
	for _, u := range wx.Users {
		switch {
		case u.ID != "":
			uid, err := strconv.Atoi(u.ID)
			if err != nil {
				return nil, parseError(fmt.Errorf("user id %q: %w", u.ID, err))
			}
			if !slices.Contains(w.UIDs, uid) {
				w.UIDs = append(w.UIDs, uid)
			}
		case u.Name != "":
			w.Users = appendUnique(w.Users, u.Name)
		}
	}
	return w, nil
}

func EncodeLockdownWhitelist(w *settings.LockdownWhitelist) ([]byte, error) {
	var wx whitelistXML
	for _, c := range w.Commands {
		wx.Commands = append(wx.Commands, nameXML{Name: c})
	}
	for _, c := range w.Contexts {
		wx.Contexts = append(wx.Contexts, selinuxXML{Context: c})
	}
	for _, u := range w.Users {
		wx.Users = append(wx.Users, whitelistUserXML{Name: u})
	}
	for _, id := range w.UIDs {
		wx.Users = append(wx.Users, whitelistUserXML{ID: strconv.Itoa(id)})
	}
	return marshal(wx)
}

// SplitArgs splits a stored argument line with POSIX shell quoting.
func SplitArgs(s string) ([]string, error) {
	return shlex.Split(strings.TrimSpace(s), true)
}

// JoinArgs is the inverse of SplitArgs.
func JoinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quoteArg(a)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if !strings.ContainsAny(a, " \t\n'\"\\$`|&;<>()*?[]#~!") {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func yes(v string) bool {
	return v == "yes" || v == "true"
}
