package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EvaluationRecord captures an end-to-end evaluation attempt for audit and
// analysis, independent of the database row: what the bot saw, what the
// decision chain answered, and what (if anything) was executed.
type EvaluationRecord struct {
	Timestamp    time.Time              `json:"timestamp"`
	BotID        string                 `json:"bot_id"`
	EvaluationID string                 `json:"evaluation_id"`
	Symbol       string                 `json:"symbol,omitempty"`
	Timeframe    string                 `json:"timeframe,omitempty"`
	Decision     string                 `json:"decision"`
	Confidence   int                    `json:"confidence"`
	Reasoning    string                 `json:"reasoning,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	ChartRef     string                 `json:"chart_ref,omitempty"`
	PromptDigest string                 `json:"prompt_digest,omitempty"`
	TradeJSON    string                 `json:"trade_json,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Writer persists evaluation records to a directory as JSON files (journal style).
type Writer struct {
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteEvaluation writes a record to a timestamped JSON file.
func (w *Writer) WriteEvaluation(rec *EvaluationRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	name := fmt.Sprintf("eval_%s_%05d.json", rec.Timestamp.UTC().Format("20060102_150405"), w.seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
