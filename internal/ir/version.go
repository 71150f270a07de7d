package ir

// Version constants for the stored record format and the engine.
const (
	// FormatVersion is the stored record format version.
	FormatVersion = "1"

	// EngineVersion is the txgraph engine version.
	EngineVersion = "0.1.0"
)
