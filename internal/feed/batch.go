package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	indicatordomain "github.com/smallbiznis/threatintel/internal/indicator/domain"
	malwaredomain "github.com/smallbiznis/threatintel/internal/malware/domain"
)

var (
	ErrInvalidBatch  = errors.New("invalid_batch")
	ErrBatchTooLarge = errors.New("batch_too_large")
)

// Batch is one feed file. Standalone indicators are reconciled first, then
// every malware entry with its own indicators. TTLDays, when set, gives
// indicators without an expirationDate one that many days after load.
type Batch struct {
	Source     string                           `json:"source"`
	TTLDays    int                              `json:"ttlDays,omitempty"`
	Malware    []malwaredomain.UpsertRequest    `json:"malware"`
	Indicators []indicatordomain.IndicatorInput `json:"indicators"`
}

// Size counts every indicator input carried by the batch.
func (b *Batch) Size() int {
	if b == nil {
		return 0
	}
	n := len(b.Indicators)
	for _, m := range b.Malware {
		n += len(m.Indicators)
	}
	return n
}

func Decode(r io.Reader) (*Batch, error) {
	var batch Batch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	return &batch, nil
}

// Result summarizes one loaded batch.
type Result struct {
	RunID        string   `json:"run_id"`
	Source       string   `json:"source"`
	IndicatorIDs []string `json:"indicator_ids"`
	MalwareIDs   []string `json:"malware_ids"`
}
