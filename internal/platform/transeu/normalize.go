package transeu

import (
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

// Normalizer turns raw proposals into flat freight records.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer that logs skipped proposals to logger.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With(slog.String("component", "freight_normalizer"))}
}

// Normalize converts every offer independently. Offers that fail to decode or
// have no route are dropped; the rest keep their input order.
func (n *Normalizer) Normalize(offers []json.RawMessage) []domain.FreightRecord {
	records := make([]domain.FreightRecord, 0, len(offers))
	skipped := 0
	for i, raw := range offers {
		rec, ok, err := convertOffer(raw)
		if err != nil {
			n.logger.Warn("skipping malformed freight proposal",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		n.logger.Debug("normalized freight proposals",
			slog.Int("input", len(offers)),
			slog.Int("kept", len(records)),
			slog.Int("skipped", skipped),
		)
	}
	return records
}

// convertOffer decodes one proposal. ok is false when the proposal decoded
// cleanly but has no usable route.
func convertOffer(raw json.RawMessage) (domain.FreightRecord, bool, error) {
	var p APIProposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.FreightRecord{}, false, err
	}
	rec, ok := p.ToDomainFreight()
	return rec, ok, nil
}
