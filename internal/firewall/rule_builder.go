//go:build linux
// +build linux

package firewall

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

const (
	// IP Header Constants
	IPv6AddrLen = 16
	IPv4AddrLen = 4

	// IPv6 Header Offsets (RFC 2460)
	IPv6SrcOffset = 8
	IPv6DstOffset = 24

	// IPv4 Header Offsets (RFC 791)
	IPv4SrcOffset = 12
	IPv4DstOffset = 16

	// TCP/UDP Header Offsets
	TransportSrcPortOffset = 0
	TransportDstPortOffset = 2
	PortLen                = 2
)

// LocalSubnetKeyword expands to the subnets configured on local interfaces.
const LocalSubnetKeyword = "localsubnet"

// ruleFields are the values set on a MutableRule before Insert.
type ruleFields struct {
	name        string
	direction   Direction
	action      Action
	enabled     bool
	protocol    Protocol
	protocolSet bool
	localAddrs  string
	localPorts  string
	remoteAddrs string
	remotePorts string
}

// anonSet is an anonymous interval set referenced by one Lookup expression.
// SetName and SetID on lookup are filled in once the set is added.
type anonSet struct {
	set      *nftables.Set
	elements []nftables.SetElement
	lookup   *expr.Lookup
}

type compiledRule struct {
	exprs []expr.Any
	sets  []anonSet
}

// interval is an inclusive [from, to] range of big-endian keys.
type interval struct {
	from []byte
	to   []byte
}

// addrFilter is a parsed address filter string.
type addrFilter struct {
	any         bool
	localSubnet bool
	is6         bool
	hasFamily   bool
	intervals   []interval
}

// compileRule turns rule fields into nftables expressions:
// family match, address matches, l4proto match, port matches, counter, verdict.
func compileRule(f ruleFields, subnets SubnetResolver) (*compiledRule, error) {
	if f.protocolSet && f.protocol != ProtocolAny && (f.protocol < 0 || f.protocol > 255) {
		return nil, fmt.Errorf("protocol %d cannot be matched", f.protocol)
	}

	local, err := parseAddressFilter(f.localAddrs)
	if err != nil {
		return nil, fmt.Errorf("local addresses: %w", err)
	}
	remote, err := parseAddressFilter(f.remoteAddrs)
	if err != nil {
		return nil, fmt.Errorf("remote addresses: %w", err)
	}

	// Both filters match the same packet, so they must agree on family.
	if local.hasFamily && remote.hasFamily && local.is6 != remote.is6 {
		return nil, errors.New("local and remote addresses mix IPv4 and IPv6")
	}
	is6 := (local.hasFamily && local.is6) || (remote.hasFamily && remote.is6)

	for _, af := range []*addrFilter{&local, &remote} {
		if !af.localSubnet {
			continue
		}
		if err := af.resolveLocalSubnets(subnets, is6); err != nil {
			return nil, err
		}
	}

	out := &compiledRule{}

	if !local.any || !remote.any {
		family := byte(unix.NFPROTO_IPV4)
		if is6 {
			family = byte(unix.NFPROTO_IPV6)
		}
		out.exprs = append(out.exprs,
			&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{family}},
		)
	}

	// Inbound: local is the destination. Outbound: local is the source.
	localIsSrc := f.direction == DirectionOutbound
	if !local.any {
		out.matchAddress(local.intervals, is6, localIsSrc)
	}
	if !remote.any {
		out.matchAddress(remote.intervals, is6, !localIsSrc)
	}

	if f.protocolSet && f.protocol != ProtocolAny {
		out.exprs = append(out.exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{byte(f.protocol)}},
		)
	}

	if f.protocolSet && PortFilterAllowed(f.protocol) {
		localPorts, err := parsePortFilter(f.localPorts)
		if err != nil {
			return nil, fmt.Errorf("local ports: %w", err)
		}
		remotePorts, err := parsePortFilter(f.remotePorts)
		if err != nil {
			return nil, fmt.Errorf("remote ports: %w", err)
		}
		if localPorts != nil {
			out.matchPort(localPorts, localIsSrc)
		}
		if remotePorts != nil {
			out.matchPort(remotePorts, !localIsSrc)
		}
	}

	out.exprs = append(out.exprs, &expr.Counter{})

	if f.enabled {
		kind := expr.VerdictDrop
		if f.action == ActionAllow {
			kind = expr.VerdictAccept
		}
		out.exprs = append(out.exprs, &expr.Verdict{Kind: kind})
	}

	return out, nil
}

func (c *compiledRule) matchAddress(ivs []interval, is6, isSrc bool) {
	var offset, length uint32
	keyType := nftables.TypeIPAddr
	switch {
	case is6 && isSrc:
		offset, length = IPv6SrcOffset, IPv6AddrLen
	case is6:
		offset, length = IPv6DstOffset, IPv6AddrLen
	case isSrc:
		offset, length = IPv4SrcOffset, IPv4AddrLen
	default:
		offset, length = IPv4DstOffset, IPv4AddrLen
	}
	if is6 {
		keyType = nftables.TypeIP6Addr
	}

	c.exprs = append(c.exprs, &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseNetworkHeader,
		Offset:       offset,
		Len:          length,
	})
	c.matchIntervals(ivs, keyType)
}

func (c *compiledRule) matchPort(ivs []interval, isSrc bool) {
	offset := uint32(TransportDstPortOffset)
	if isSrc {
		offset = TransportSrcPortOffset
	}
	c.exprs = append(c.exprs, &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseTransportHeader,
		Offset:       offset,
		Len:          PortLen,
	})
	c.matchIntervals(ivs, nftables.TypeInetService)
}

// matchIntervals compares register 1 against ivs: a Cmp for one value, a
// Range for one interval, an anonymous interval set otherwise.
func (c *compiledRule) matchIntervals(ivs []interval, keyType nftables.SetDatatype) {
	if len(ivs) == 1 {
		iv := ivs[0]
		if bytes.Equal(iv.from, iv.to) {
			c.exprs = append(c.exprs, &expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: iv.from})
			return
		}
		c.exprs = append(c.exprs, &expr.Range{Op: expr.CmpOpEq, Register: 1, FromData: iv.from, ToData: iv.to})
		return
	}

	set := &nftables.Set{
		Anonymous: true,
		Constant:  true,
		Interval:  true,
		KeyType:   keyType,
	}
	var elements []nftables.SetElement
	for _, iv := range ivs {
		elements = append(elements, nftables.SetElement{Key: iv.from})
		if end, ok := next(iv.to); ok {
			elements = append(elements, nftables.SetElement{Key: end, IntervalEnd: true})
		}
	}
	lookup := &expr.Lookup{SourceRegister: 1}
	c.exprs = append(c.exprs, lookup)
	c.sets = append(c.sets, anonSet{set: set, elements: elements, lookup: lookup})
}

// parseAddressFilter parses a comma separated list of addresses, CIDR
// prefixes, "a-b" ranges and the LocalSubnet keyword. "", "*" and "any"
// match everything.
func parseAddressFilter(s string) (addrFilter, error) {
	var af addrFilter
	items := splitList(s)
	if len(items) == 0 {
		af.any = true
		return af, nil
	}

	for _, item := range items {
		switch strings.ToLower(item) {
		case "*", "any":
			return addrFilter{any: true}, nil
		case LocalSubnetKeyword:
			af.localSubnet = true
			continue
		}

		iv, is6, err := parseAddressItem(item)
		if err != nil {
			return af, err
		}
		if af.hasFamily && af.is6 != is6 {
			return af, fmt.Errorf("%q: mixed IPv4 and IPv6 addresses", s)
		}
		af.hasFamily = true
		af.is6 = is6
		af.intervals = append(af.intervals, iv)
	}
	af.intervals = mergeIntervals(af.intervals)
	return af, nil
}

func parseAddressItem(item string) (interval, bool, error) {
	if from, to, ok := strings.Cut(item, "-"); ok {
		a, err := netip.ParseAddr(strings.TrimSpace(from))
		if err != nil {
			return interval{}, false, err
		}
		b, err := netip.ParseAddr(strings.TrimSpace(to))
		if err != nil {
			return interval{}, false, err
		}
		a, b = a.Unmap(), b.Unmap()
		if a.Is4() != b.Is4() {
			return interval{}, false, fmt.Errorf("range %q mixes address families", item)
		}
		if b.Less(a) {
			return interval{}, false, fmt.Errorf("range %q is reversed", item)
		}
		return interval{from: a.AsSlice(), to: b.AsSlice()}, a.Is6(), nil
	}

	if strings.Contains(item, "/") {
		p, err := netip.ParsePrefix(item)
		if err != nil {
			return interval{}, false, err
		}
		return prefixInterval(p), p.Addr().Is6(), nil
	}

	a, err := netip.ParseAddr(item)
	if err != nil {
		return interval{}, false, err
	}
	a = a.Unmap()
	return interval{from: a.AsSlice(), to: a.AsSlice()}, a.Is6(), nil
}

func prefixInterval(p netip.Prefix) interval {
	p = p.Masked()
	from := p.Addr().AsSlice()
	to := make([]byte, len(from))
	copy(to, from)
	for bit := p.Bits(); bit < len(to)*8; bit++ {
		to[bit/8] |= 0x80 >> (bit % 8)
	}
	return interval{from: from, to: to}
}

func (af *addrFilter) resolveLocalSubnets(r SubnetResolver, is6 bool) error {
	if r == nil {
		return errors.New("no subnet resolver for LocalSubnet")
	}
	prefixes, err := r.LocalSubnets()
	if err != nil {
		return fmt.Errorf("resolve local subnets: %w", err)
	}
	n := 0
	for _, p := range prefixes {
		if p.Addr().Is6() != is6 {
			continue
		}
		af.intervals = append(af.intervals, prefixInterval(p))
		n++
	}
	if n == 0 {
		return errors.New("no local subnets of the rule's address family")
	}
	af.intervals = mergeIntervals(af.intervals)
	return nil
}

// parsePortFilter parses "80", "8000-8080" lists. A nil result matches any
// port.
func parsePortFilter(s string) ([]interval, error) {
	items := splitList(s)
	var out []interval
	for _, item := range items {
		if item == "*" || strings.EqualFold(item, "any") {
			return nil, nil
		}
		from, to, isRange := strings.Cut(item, "-")
		a, err := parsePort(from)
		if err != nil {
			return nil, err
		}
		b := a
		if isRange {
			if b, err = parsePort(to); err != nil {
				return nil, err
			}
			if b < a {
				return nil, fmt.Errorf("port range %q is reversed", item)
			}
		}
		out = append(out, interval{
			from: binaryutil.BigEndian.PutUint16(a),
			to:   binaryutil.BigEndian.PutUint16(b),
		})
	}
	return mergeIntervals(out), nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// mergeIntervals sorts ivs and joins overlapping or adjacent intervals.
// Interval sets reject overlapping elements.
func mergeIntervals(ivs []interval) []interval {
	if len(ivs) < 2 {
		return ivs
	}
	sort.Slice(ivs, func(i, j int) bool { return bytes.Compare(ivs[i].from, ivs[j].from) < 0 })
	out := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if end, ok := next(last.to); !ok || bytes.Compare(iv.from, end) <= 0 {
			if bytes.Compare(iv.to, last.to) > 0 {
				last.to = iv.to
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// next returns b+1 as a big-endian integer; ok is false on overflow.
func next(b []byte) ([]byte, bool) {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out, true
		}
	}
	return nil, false
}
