// Package config loads the fwrules configuration file.
//
// Three syntaxes are accepted, chosen by file extension:
//   - .hcl: native HCL; expressions may read env.NAME and call lower, upper,
//     join and trimspace
//   - .json: HCL JSON syntax
//   - .yaml / .yml: YAML with the same keys; rule blocks become a "rules" list
//
// Loading applies defaults and then validates with struct tags plus
// cross-field rules. See [Config] for the schema.
package config
