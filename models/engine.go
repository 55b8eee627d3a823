package models

import "fmt"

// Engine identifies which execution engine produced a step output.
// The two engines serialize binary values differently.
type Engine int

const (
	// EngineNative is the built-in Go engine
	EngineNative Engine = iota
	// EngineScript is the embedded JavaScript engine
	EngineScript
)

func (e Engine) String() string {
	switch e {
	case EngineNative:
		return "native"
	case EngineScript:
		return "script"
	default:
		return fmt.Sprintf("engine(%d)", int(e))
	}
}

// ParseEngine converts a configuration string into an Engine
func ParseEngine(s string) (Engine, error) {
	switch s {
	case "native", "":
		return EngineNative, nil
	case "script", "js":
		return EngineScript, nil
	default:
		return EngineNative, fmt.Errorf("unknown engine: %q", s)
	}
}
