package phase

// registry maps each ID to its concrete Phase implementation, used by the
// orchestrator's driver loop to dispatch without a type switch.
var registry = map[ID]Phase{
	Requirements: RequirementsPhase{},
	Design:       DesignPhase{},
	Tasks:        TasksPhase{},
	Review:       ReviewPhase{},
	Fixup:        FixupPhase{},
	Final:        FinalPhase{},
}

// Get returns the concrete Phase for id.
func Get(id ID) Phase { return registry[id] }
