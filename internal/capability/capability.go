package capability

// Capability identifies one externally-backed operation the orchestrator can
// invoke. The set is closed: dispatch happens via switch statements over these
// constants, not string lookup tables.
type Capability string

const (
	Identify        Capability = "identify"
	DetectDisease   Capability = "detect_disease"
	SearchKnowledge Capability = "search_knowledge"
	SearchWeb       Capability = "search_web"
	GetWeather      Capability = "get_weather"
	Synthesize      Capability = "synthesize"
)

// All returns every known capability in a stable order.
func All() []Capability {
	return []Capability{Identify, DetectDisease, SearchKnowledge, SearchWeb, GetWeather, Synthesize}
}

// Valid reports whether c names a known capability.
func (c Capability) Valid() bool {
	switch c {
	case Identify, DetectDisease, SearchKnowledge, SearchWeb, GetWeather, Synthesize:
		return true
	}
	return false
}

func (c Capability) String() string { return string(c) }
