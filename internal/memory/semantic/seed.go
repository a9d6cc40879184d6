package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// seedDoc is one built-in care document.
type seedDoc struct {
	text string
	meta map[string]string
}

var seedDocs = []seedDoc{
	{
		text: "Monstera deliciosa care: Water when top inch of soil is dry. Prefers bright, indirect light. Humidity 40-60%. Temperature 65-80°F. Fertilize monthly during growing season.",
		meta: map[string]string{"plant_name": "Monstera deliciosa", "source": "manual", "type": "care_instructions"},
	},
	{
		text: "Snake plant (Sansevieria) care: Very drought tolerant, water every 2-3 weeks. Tolerates low light but prefers bright, indirect light. Low humidity requirements. Temperature 60-80°F.",
		meta: map[string]string{"plant_name": "Sansevieria", "source": "manual", "type": "care_instructions"},
	},
	{
		text: "Pothos care: Water when soil feels dry 1-2 inches down. Thrives in medium to bright, indirect light. Average home humidity is fine. Temperature 65-75°F. Very easy to care for.",
		meta: map[string]string{"plant_name": "Pothos", "source": "manual", "type": "care_instructions"},
	},
	{
		text: "Fiddle leaf fig care: Water when top inch of soil is dry, usually weekly. Needs bright, indirect light. Prefers humidity 30-65%. Temperature 60-75°F. Sensitive to overwatering.",
		meta: map[string]string{"plant_name": "Ficus lyrata", "source": "manual", "type": "care_instructions"},
	},
}

// Seed loads the built-in care documents. It is idempotent: document IDs are
// content-derived, so repeated seeding does not duplicate entries.
func (s *Store) Seed(ctx context.Context) error {
	for _, d := range seedDocs {
		if err := s.Append(ctx, d.text, d.meta); err != nil {
			return fmt.Errorf("seeding knowledge store: %w", err)
		}
	}
	s.logger.Printf("seeded knowledge store with %d care documents", len(seedDocs))
	return nil
}

// contentID derives a stable document ID from content.
func contentID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
