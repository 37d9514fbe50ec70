// Package process runs DeskPilot's child processes: pooled browsers kept
// alive by a Manager, desktop applications started with StartDetached,
// and batch programs run to completion with Run.
//
// Every child leads its own process group, so stopping or cancelling one
// also reaches the helpers it spawned.
package process
