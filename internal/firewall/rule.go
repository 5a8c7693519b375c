package firewall

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is the verdict a rule applies to matching traffic.
// Values mirror the native NET_FW_ACTION enumeration.
type Action int

const (
	ActionBlock Action = 0
	ActionAllow Action = 1
)

func (a Action) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionAllow:
		return "allow"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionBlock || a == ActionAllow
}

// ParseAction converts "allow"/"accept" and "block"/"drop"/"deny" to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "accept":
		return ActionAllow, nil
	case "block", "drop", "deny":
		return ActionBlock, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// Direction selects which traffic a rule is evaluated against.
type Direction int

const (
	DirectionInbound  Direction = 1
	DirectionOutbound Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "in"
	case DirectionOutbound:
		return "out"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// ParseDirection accepts "in"/"inbound" and "out"/"outbound".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "inbound", "input":
		return DirectionInbound, nil
	case "out", "outbound", "output":
		return DirectionOutbound, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Protocol is an IANA protocol number. Zero means unspecified.
type Protocol int

const (
	ProtocolUnspecified Protocol = 0
	ProtocolICMP        Protocol = 1
	ProtocolTCP         Protocol = 6
	ProtocolUDP         Protocol = 17
	ProtocolICMPv6      Protocol = 58
	ProtocolAny         Protocol = 256
)

var protocolNames = map[string]Protocol{
	"icmp":   ProtocolICMP,
	"tcp":    ProtocolTCP,
	"udp":    ProtocolUDP,
	"icmpv6": ProtocolICMPv6,
	"any":    ProtocolAny,
	"all":    ProtocolAny,
}

func (p Protocol) String() string {
	switch p {
	case ProtocolUnspecified:
		return ""
	case ProtocolICMP:
		return "icmp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolICMPv6:
		return "icmpv6"
	case ProtocolAny:
		return "any"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParseProtocol accepts a protocol name or number. An empty string is
// ProtocolUnspecified.
func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ProtocolUnspecified, nil
	}
	if p, ok := protocolNames[s]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > int(ProtocolAny) {
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
	return Protocol(n), nil
}

// PortFilterAllowed reports whether port filters mean anything for p.
// Only TCP and UDP carry ports.
func PortFilterAllowed(p Protocol) bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// RuleSpec describes a desired firewall rule.
//
// Empty address or port filters mean "any". Port filters are only attached
// when PortFilterAllowed(Protocol); otherwise they are dropped silently.
type RuleSpec struct {
	Name            string
	Action          Action
	Direction       Direction
	Protocol        Protocol
	LocalAddresses  string
	LocalPorts      string
	RemoteAddresses string
	RemotePorts     string
}

// Validate checks the fields the store cannot be trusted to reject.
func (s RuleSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if !s.Action.Valid() {
		return fmt.Errorf("invalid action %d", int(s.Action))
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("invalid direction %d", int(s.Direction))
	}
	if s.Protocol < 0 || s.Protocol > ProtocolAny {
		return fmt.Errorf("invalid protocol %d", int(s.Protocol))
	}
	return nil
}
