// Package scripts provides the on-disk stores for action scripts, recorded
// browser step scripts and application shortcuts.
//
// A Store searches its directories in order; the first match wins:
//
//	store := scripts.NewStore(cfg.Engine.ScriptDirs...)
//	res := store.LoadStepsOrActions("morning-reports")
//
// Script files are JSON with optional comments and trailing commas. Nothing
// is cached; every load reads the file again.
package scripts
