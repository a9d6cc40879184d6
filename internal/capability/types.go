package capability

// PlantRecord is the outcome of a plant identification call.
type PlantRecord struct {
	Identified     bool              `json:"identified"`
	PlantName      string            `json:"plant_name"`
	ScientificName string            `json:"scientific_name,omitempty"`
	Family         string            `json:"family,omitempty"`
	CommonNames    []string          `json:"common_names,omitempty"`
	Confidence     float64           `json:"confidence"`
	Message        string            `json:"message,omitempty"`
	Health         *HealthAssessment `json:"health_assessment,omitempty"`
}

// UnknownPlant is the default record used when identification fails or is skipped.
func UnknownPlant() PlantRecord {
	return PlantRecord{PlantName: "Unknown", Confidence: 0}
}

// HealthAssessment summarises plant health findings from image analysis.
type HealthAssessment struct {
	IsHealthy       bool          `json:"is_healthy"`
	HealthScore     float64       `json:"health_score"`
	Diseases        []HealthIssue `json:"diseases,omitempty"`
	Pests           []HealthIssue `json:"pests,omitempty"`
	SeverityLevel   string        `json:"severity_level,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
}

// HealthIssue is a single suspected disease or pest.
type HealthIssue struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// KnowledgeSnippet is one ranked result from the semantic knowledge store.
type KnowledgeSnippet struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// WebResult is one result from a web search capability.
type WebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	SourceQuery string `json:"source_query,omitempty"`
}

// WeatherReport holds current conditions for a location. A non-empty Err is
// the error sentinel: downstream consumers treat it as "no weather data".
type WeatherReport struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Description string  `json:"description"`
	Err         string  `json:"error,omitempty"`
}

// OK reports whether the report carries usable weather data. A zero-value
// report is not usable: real observations always carry a description.
func (w WeatherReport) OK() bool { return w.Err == "" && w.Description != "" }

// WeatherError builds the designated error sentinel.
func WeatherError(msg string) WeatherReport {
	if msg == "" {
		msg = "weather data unavailable"
	}
	return WeatherReport{Err: msg}
}

// HealthIssueRef is a flattened disease/pest reference passed to synthesis.
type HealthIssueRef struct {
	Kind        string  `json:"type"` // disease or pest
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// AdviceContext is the structured input projected out of turn state for the
// advice synthesis capability.
type AdviceContext struct {
	Query            string             `json:"query"`
	Plant            PlantRecord        `json:"plant"`
	HealthIssues     []HealthIssueRef   `json:"health_issues,omitempty"`
	Knowledge        []KnowledgeSnippet `json:"knowledge,omitempty"`
	WebResults       []WebResult        `json:"web_results,omitempty"`
	Weather          WeatherReport      `json:"weather"`
	Location         string             `json:"location,omitempty"`
	ImageDescription string             `json:"image_description,omitempty"`
	HasImage         bool               `json:"has_image"`
}
