// Package firewall manages the lifecycle of named host firewall rules.
//
// # Overview
//
// Rules are identified by a display name that is NOT a unique key: the
// native store may hold several rules with the same name. The [Manager]
// exposes three operations over a [Store]:
//
//   - [Manager.CreateRule]: insert one fully populated rule
//   - [Manager.DeleteRule]: remove every rule carrying a name, bounded
//   - [Manager.RuleExists]: tri-state presence check
//
// Every call opens its own [Session], obtains the [Collection] and releases
// all handles before returning, on success and failure alike.
//
// # Stores
//
//   - [NFTablesStore] (Linux): rules in an inet table, the name kept in the
//     rule comment. Address and port filters are compiled to nftables
//     expressions when the rule is inserted.
//   - [MemoryStore]: in-process, used for dry runs.
//
// # Errors
//
// Failures are returned as [*Error] carrying an [ErrorKind] and the store's
// native code. Use errors.Is with the Err* sentinels to test the kind.
//
// # Example
//
//	mgr := firewall.NewManager(firewall.NewNFTablesStore("fwrules"), logger)
//	err := mgr.CreateRule(firewall.RuleSpec{
//		Name:       "block-ssh",
//		Action:     firewall.ActionBlock,
//		Direction:  firewall.DirectionInbound,
//		Protocol:   firewall.ProtocolTCP,
//		LocalPorts: "22",
//	})
package firewall
