//go:build linux
// +build linux

package ebtables

import (
	"bufio"
	"strings"
)

// Chain is one chain of a table listing.
type Chain struct {
	Name   string
	Policy string
	Rules  []string
}

// Listing is the parsed output of "ebtables -t <table> -L".
type Listing struct {
	Table  string
	Order  []string
	Chains map[string]Chain
}

// ParseListing reads the human readable listing format:
//
//	Bridge table: filter
//
//	Bridge chain: INPUT, entries: 1, policy: ACCEPT
//	-j INPUT_direct
func ParseListing(out string) Listing {
	l := Listing{Chains: make(map[string]Chain)}
	var cur *Chain
	flush := func() {
		if cur != nil {
			l.Chains[cur.Name] = *cur
			cur = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "Bridge table:"):
			flush()
			l.Table = strings.TrimSpace(strings.TrimPrefix(line, "Bridge table:"))
		case strings.HasPrefix(line, "Bridge chain:"):
			flush()
			cur = parseChainHeader(strings.TrimPrefix(line, "Bridge chain:"))
			l.Order = append(l.Order, cur.Name)
		case cur != nil:
			cur.Rules = append(cur.Rules, line)
		}
	}
	flush()
	return l
}

func parseChainHeader(s string) *Chain {
	c := &Chain{}
	for i, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if i == 0 {
			c.Name = field
			continue
		}
		if v, ok := strings.CutPrefix(field, "policy:"); ok {
			c.Policy = strings.TrimSpace(v)
		}
	}
	return c
}
