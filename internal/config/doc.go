// Package config loads and validates the decision server's YAML
// configuration: listener address, model source, policy store backend,
// decision cache, audit trail, and logging. Values support ${VAR} and
// ${VAR:-default} environment substitution.
package config
