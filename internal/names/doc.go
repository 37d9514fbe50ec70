// Package names provides the scoped name/secret resolver used by deskpilot.
//
// A Resolver holds the process-wide global table of names (secrets,
// constants). It is populated once during startup from the SQLite
// name_values table, an optional dotenv secrets file, and the constants in
// config.yaml, and is read-only afterwards, so lookups need no locking.
//
// Strings reference names with angle brackets:
//
//	aria/<cargo_id>[role="button"]
//
// Interpolate replaces every <identifier> with its resolved value and fails
// on the first reference it cannot resolve.
//
// A Scope layers one step's own field map over the global table for the
// duration of a single expansion. Local fields shadow global names:
//
//	scope := resolver.LocalScope(step.Fields)
//	defer scope.Close()
//	res := scope.Interpolate(template)
package names
