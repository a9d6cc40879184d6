package plantid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
)

// Client talks to the Plant.id v3 API for species identification and health
// assessment. It implements both capability.Identifier and
// capability.DiseaseDetector.
type Client struct {
	apiKey        string
	endpoint      string
	minConfidence float64
	httpClient    *http.Client
	logger        *log.Logger
}

// New creates a Plant.id client from config.
func New(cfg config.IdentifyConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANTID] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:        cfg.APIKey,
		endpoint:      cfg.Endpoint,
		minConfidence: cfg.MinConfidence,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

type identifyRequest struct {
	Images              []string `json:"images"`
	SimilarImages       bool     `json:"similar_images"`
	ClassificationLevel string   `json:"classification_level,omitempty"`
	Health              string   `json:"health,omitempty"`
}

type identifyResponse struct {
	Result struct {
		IsPlant struct {
			Binary      bool    `json:"binary"`
			Probability float64 `json:"probability"`
		} `json:"is_plant"`
		Classification struct {
			Suggestions []suggestion `json:"suggestions"`
		} `json:"classification"`
		IsHealthy struct {
			Binary      bool    `json:"binary"`
			Probability float64 `json:"probability"`
		} `json:"is_healthy"`
		Disease struct {
			Suggestions []healthSuggestion `json:"suggestions"`
		} `json:"disease"`
		HealthAssessment struct {
			IsHealthy struct {
				Binary      bool    `json:"binary"`
				Probability float64 `json:"probability"`
			} `json:"is_healthy"`
			Diseases []healthSuggestion `json:"diseases"`
			Pests    []healthSuggestion `json:"pests"`
		} `json:"health_assessment"`
	} `json:"result"`
}

type suggestion struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Details     struct {
		CommonNames []string `json:"common_names"`
		Taxonomy    struct {
			Family string `json:"family"`
		} `json:"taxonomy"`
	} `json:"details"`
}

type healthSuggestion struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Identify sends the image to Plant.id and maps the top classification
// suggestion into a PlantRecord. Results below the configured confidence
// floor come back with Identified=false but keep the observed confidence.
func (c *Client) Identify(ctx context.Context, imageBase64, description string) (capability.PlantRecord, error) {
	if imageBase64 == "" {
		return capability.PlantRecord{}, fmt.Errorf("identification requires an image")
	}

	reqBody := identifyRequest{
		Images:              []string{imageBase64},
		SimilarImages:       true,
		ClassificationLevel: "all",
		Health:              "all",
	}
	var resp identifyResponse
	if err := c.post(ctx, c.endpoint, reqBody, &resp); err != nil {
		return capability.PlantRecord{}, err
	}

	if !resp.Result.IsPlant.Binary {
		return capability.PlantRecord{
			Identified: false,
			PlantName:  "Unknown",
			Message:    "image does not appear to contain a plant",
		}, nil
	}

	suggestions := resp.Result.Classification.Suggestions
	if len(suggestions) == 0 {
		return capability.PlantRecord{
			Identified: false,
			PlantName:  "Unknown",
			Message:    "no plant species identified",
		}, nil
	}

	top := suggestions[0]
	record := capability.PlantRecord{
		PlantName:      top.Name,
		ScientificName: top.Name,
		Family:         top.Details.Taxonomy.Family,
		CommonNames:    top.Details.CommonNames,
		Confidence:     top.Probability,
	}
	if top.Probability < c.minConfidence {
		record.Identified = false
		record.PlantName = "Unknown"
		record.Message = fmt.Sprintf("identification confidence %.2f below threshold %.2f", top.Probability, c.minConfidence)
		return record, nil
	}
	record.Identified = true

	// The identification endpoint may already carry inline health data;
	// attach it so simple turns avoid a second API call.
	if len(resp.Result.Disease.Suggestions) > 0 {
		record.Health = inlineHealth(resp.Result.IsHealthy.Binary, resp.Result.IsHealthy.Probability, resp.Result.Disease.Suggestions)
	}
	return record, nil
}

// DetectDisease runs a dedicated health assessment for an already-identified
// plant and maps diseases, pests, severity and recommendations.
func (c *Client) DetectDisease(ctx context.Context, imageBase64, plantName string) (capability.HealthAssessment, error) {
	if imageBase64 == "" {
		return capability.HealthAssessment{}, fmt.Errorf("health assessment requires an image")
	}

	reqBody := identifyRequest{
		Images:        []string{imageBase64},
		SimilarImages: true,
		Health:        "all",
	}
	var resp identifyResponse
	if err := c.post(ctx, healthEndpoint(c.endpoint), reqBody, &resp); err != nil {
		return capability.HealthAssessment{}, err
	}

	if !resp.Result.IsPlant.Binary {
		return capability.HealthAssessment{
			IsHealthy:       false,
			SeverityLevel:   "Unknown",
			Recommendations: []string{"Image does not appear to contain a plant."},
		}, nil
	}

	ha := resp.Result.HealthAssessment
	healthyProb := ha.IsHealthy.Probability
	diseases := mapIssues(ha.Diseases)
	pests := mapIssues(ha.Pests)

	out := capability.HealthAssessment{
		IsHealthy:     healthyProb > 0.5,
		HealthScore:   healthScore(diseases, pests, healthyProb),
		Diseases:      diseases,
		Pests:         pests,
		SeverityLevel: severityLevel(diseases, pests),
	}
	out.Recommendations = recommendations(out)
	return out, nil
}

func (c *Client) post(ctx context.Context, url string, reqBody, out interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	// The v3 API answers 201 for freshly created identifications.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("plant.id API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// healthEndpoint derives the health assessment URL from the identification
// endpoint so only one setting needs configuring.
func healthEndpoint(identEndpoint string) string {
	const suffix = "/identification"
	if len(identEndpoint) > len(suffix) && identEndpoint[len(identEndpoint)-len(suffix):] == suffix {
		return identEndpoint[:len(identEndpoint)-len(suffix)] + "/health_assessment"
	}
	return identEndpoint
}

func inlineHealth(healthyBinary bool, healthyProb float64, diseases []healthSuggestion) *capability.HealthAssessment {
	issues := mapIssues(diseases)
	healthy := healthyBinary
	if len(issues) > 0 && issues[0].Probability > 0.3 {
		healthy = false
	}
	return &capability.HealthAssessment{
		IsHealthy:     healthy,
		HealthScore:   healthScore(issues, nil, healthyProb),
		Diseases:      issues,
		SeverityLevel: severityLevel(issues, nil),
	}
}

func mapIssues(in []healthSuggestion) []capability.HealthIssue {
	out := make([]capability.HealthIssue, 0, len(in))
	for _, s := range in {
		out = append(out, capability.HealthIssue{Name: s.Name, Probability: s.Probability})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}

// healthScore combines the API's is_healthy probability with weighted
// disease/pest impact. Diseases weigh 0.7, pests 0.5, total impact capped at 1.
func healthScore(diseases, pests []capability.HealthIssue, healthyProb float64) float64 {
	if len(diseases) == 0 && len(pests) == 0 {
		return round2(healthyProb)
	}
	var impact float64
	for _, d := range diseases {
		impact += d.Probability * 0.7
	}
	for _, p := range pests {
		impact += p.Probability * 0.5
	}
	if impact > 1 {
		impact = 1
	}
	score := 1 - impact
	if healthyProb < score {
		score = healthyProb
	}
	if score < 0 {
		score = 0
	}
	return round2(score)
}

func severityLevel(diseases, pests []capability.HealthIssue) string {
	var max float64
	for _, d := range diseases {
		if d.Probability > max {
			max = d.Probability
		}
	}
	for _, p := range pests {
		if p.Probability > max {
			max = p.Probability
		}
	}
	switch {
	case max >= 0.8:
		return "Critical"
	case max >= 0.6:
		return "High"
	case max >= 0.3:
		return "Moderate"
	case max > 0:
		return "Low"
	default:
		return "Healthy"
	}
}

func recommendations(ha capability.HealthAssessment) []string {
	if ha.IsHealthy && len(ha.Diseases) == 0 && len(ha.Pests) == 0 {
		return []string{
			"Your plant appears healthy! Continue with regular care.",
			"Monitor regularly for any changes in appearance.",
		}
	}
	var recs []string
	if len(ha.Diseases) > 0 {
		recs = append(recs,
			"Disease detected - isolate plant from other plants if possible.",
			"Remove affected leaves or parts if safe to do so.",
			"Avoid overhead watering to prevent spread.",
		)
	}
	if len(ha.Pests) > 0 {
		recs = append(recs,
			"Pest activity detected - inspect plant thoroughly.",
			"Consider using insecticidal soap or neem oil.",
		)
	}
	recs = append(recs, "Consider consulting with a local plant expert for persistent issues.")
	return recs
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
