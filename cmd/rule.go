package cmd

import (
	"flag"
	"fmt"

	"grimm.is/fwrules/internal/brand"
	"grimm.is/fwrules/internal/firewall"
	"grimm.is/fwrules/internal/i18n"
)

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(Stderr)
	configFile := fs.String("config", brand.DefaultConfigPath(), "Configuration file")
	fs.StringVar(configFile, "c", brand.DefaultConfigPath(), "Alias for -config")
	return fs, configFile
}

// ruleNameArg parses fs and returns its single positional argument.
func ruleNameArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("usage: %s %s [-config FILE] <name>", brand.BinaryName, fs.Name())
	}
	return fs.Arg(0), nil
}

// RunCreate handles the "create" command.
func RunCreate(args []string) error {
	fs, configFile := newFlagSet("create")

	var name, action, direction, protocol, localAddr, localPort, remoteAddr, remotePort string
	fs.StringVar(&name, "name", "", "Rule name")
	fs.StringVar(&action, "action", "", "allow or block")
	fs.StringVar(&direction, "dir", "", "in or out")
	fs.StringVar(&protocol, "protocol", "", "Protocol name or number (tcp, udp, icmp, any, 0-256)")
	fs.StringVar(&localAddr, "local-addr", "", "Local address filter")
	fs.StringVar(&localPort, "local-port", "", "Local port filter (tcp/udp only)")
	fs.StringVar(&remoteAddr, "remote-addr", "", "Remote address filter")
	fs.StringVar(&remotePort, "remote-port", "", "Remote port filter (tcp/udp only)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if name == "" || action == "" || direction == "" {
		return fmt.Errorf("usage: %s create -name N -action allow|block -dir in|out [-protocol P] [-local-addr A] [-local-port P] [-remote-addr A] [-remote-port P]", brand.BinaryName)
	}

	spec, err := parseRuleSpec(name, action, direction, protocol)
	if err != nil {
		return err
	}
	spec.LocalAddresses = localAddr
	spec.LocalPorts = localPort
	spec.RemoteAddresses = remoteAddr
	spec.RemotePorts = remotePort

	rt, err := newRuntime(*configFile, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.manager.CreateRule(spec); err != nil {
		return err
	}
	Printer.Fprintf(Stdout, i18n.MsgRuleCreated, name)
	return nil
}

func parseRuleSpec(name, action, direction, protocol string) (firewall.RuleSpec, error) {
	a, err := firewall.ParseAction(action)
	if err != nil {
		return firewall.RuleSpec{}, err
	}
	d, err := firewall.ParseDirection(direction)
	if err != nil {
		return firewall.RuleSpec{}, err
	}
	p, err := firewall.ParseProtocol(protocol)
	if err != nil {
		return firewall.RuleSpec{}, err
	}
	return firewall.RuleSpec{Name: name, Action: a, Direction: d, Protocol: p}, nil
}

// RunDelete handles the "delete" command. Deleting an absent name succeeds.
func RunDelete(args []string) error {
	fs, configFile := newFlagSet("delete")
	name, err := ruleNameArg(fs, args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(*configFile, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.manager.DeleteRule(name); err != nil {
		return err
	}
	Printer.Fprintf(Stdout, i18n.MsgRuleDeleted, name, rt.last.Removed)
	return nil
}

// RunExists handles the "exists" command.
func RunExists(args []string) (firewall.Presence, error) {
	fs, configFile := newFlagSet("exists")
	name, err := ruleNameArg(fs, args)
	if err != nil {
		return firewall.PresenceError, err
	}

	rt, err := newRuntime(*configFile, false)
	if err != nil {
		return firewall.PresenceError, err
	}
	defer rt.Close()

	presence, err := rt.manager.RuleExists(name)
	if err != nil {
		return presence, err
	}
	if presence == firewall.PresencePresent {
		Printer.Fprintf(Stdout, i18n.MsgRulePresent, name)
	} else {
		Printer.Fprintf(Stdout, i18n.MsgRuleAbsent, name)
	}
	return presence, nil
}

// ExitCode maps a RunExists result to the process exit status:
// 0 present, 1 absent, 2 error.
func ExitCode(p firewall.Presence, err error) int {
	switch {
	case err != nil:
		return 2
	case p == firewall.PresencePresent:
		return 0
	default:
		return 1
	}
}
