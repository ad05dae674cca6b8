package logger

// Component name constants for standardized logging
const (
	// Core components
	ComponentCore              = "Core"
	ComponentControlLoop       = "ControlLoop"
	ComponentStarvationChecker = "StarveCheck"

	// Lifecycle orchestration
	ComponentModuleRegistry = "ModuleRegistry"

	// FSM components
	ComponentFSMRegistry = "FSMRegistry"
	ComponentFSMMachine  = "FSM"

	// Outer surfaces
	ComponentAPI     = "API"
	ComponentMetrics = "Metrics"

	// Configuration
	ComponentConfig = "Config"
)
