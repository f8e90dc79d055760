package actions

import "github.com/stake-plus/bottlebot/src/actions/core"

type (
	// Manager re-exports core.Manager for the command line.
	Manager = core.Manager
	// Module re-exports the core.Module interface.
	Module = core.Module
)

func NewManager(mods ...Module) *Manager {
	return core.NewManager(mods...)
}
