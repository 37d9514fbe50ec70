// Package config loads deskpilot.yaml.
//
// Values layer as defaults, the YAML file, an optional dotenv file and
// finally DESKPILOT_* variables. Script secrets do not belong here: list
// them in secrets.dotenv_path and reference them from scripts as <name>.
package config
