package strategy

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jxskiss/base62"
)

// Version is an immutable snapshot of a strategy: a prompt template reference
// plus a parameter set, linked to its parent to form a derivation chain. Only
// the denormalized Performance snapshot is ever rewritten after creation.
type Version struct {
	VersionID      string             `json:"version_id"`
	Timestamp      time.Time          `json:"timestamp"`
	PromptTemplate string             `json:"prompt_template"`
	Params         Params             `json:"strategy_params"`
	Performance    *PerformanceRecord `json:"performance_metrics,omitempty"`
	ParentVersion  string             `json:"parent_version,omitempty"`
	ChangeReason   string             `json:"change_reason,omitempty"`
}

// VersionID derives the content-addressed identity of a version from its
// template reference, parameter set and parent id. Identical inputs always
// produce the same id, which is what makes creation idempotent.
func VersionID(templateRef string, params Params, parentID string) string {
	paramsJSON, _ := json.Marshal(params) // struct fields marshal in declaration order
	h := sha256.New()
	h.Write([]byte(templateRef))
	h.Write([]byte{'|'})
	h.Write(paramsJSON)
	h.Write([]byte{'|'})
	h.Write([]byte(parentID))
	return base62.EncodeToString(h.Sum(nil)[:12])
}

// PerformanceRecord is the running statistical summary of trade outcomes for
// one version. Counters are monotonic; derived metrics are recomputed from
// the counters on every append, never by replaying history.
type PerformanceRecord struct {
	VersionID        string  `json:"version_id"`
	TradesExecuted   int     `json:"trades_executed"`
	ProfitableTrades int     `json:"profitable_trades"`
	TotalProfit      float64 `json:"total_profit"`
	TotalLoss        float64 `json:"total_loss"`
	AverageWin       float64 `json:"average_win"`
	AverageLoss      float64 `json:"average_loss"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"-"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	EvaluationDays   int     `json:"evaluation_period_days"`

	// Drawdown bookkeeping for O(1) streaming updates.
	CumulativePnL float64 `json:"cumulative_pnl"`
	PeakPnL       float64 `json:"peak_pnl"`
}

// AddTrade appends one realized outcome and recomputes the derived metrics.
func (r *PerformanceRecord) AddTrade(pnl float64) {
	r.TradesExecuted++
	if pnl > 0 {
		r.ProfitableTrades++
		r.TotalProfit += pnl
	} else {
		r.TotalLoss += math.Abs(pnl)
	}

	r.CumulativePnL += pnl
	if r.CumulativePnL > r.PeakPnL {
		r.PeakPnL = r.CumulativePnL
	}
	if dd := r.PeakPnL - r.CumulativePnL; dd > r.MaxDrawdown {
		r.MaxDrawdown = dd
	}

	r.updateDerived()
}

func (r *PerformanceRecord) updateDerived() {
	if r.ProfitableTrades > 0 {
		r.AverageWin = r.TotalProfit / float64(r.ProfitableTrades)
	}
	if losing := r.TradesExecuted - r.ProfitableTrades; losing > 0 {
		r.AverageLoss = r.TotalLoss / float64(losing)
	}

	if r.TradesExecuted > 0 {
		r.WinRate = float64(r.ProfitableTrades) / float64(r.TradesExecuted)
	} else {
		r.WinRate = 0
	}

	switch {
	case r.TotalLoss > 0:
		r.ProfitFactor = r.TotalProfit / r.TotalLoss
	case r.TotalProfit > 0:
		// No losses yet: the ratio is defined as the infinite sentinel.
		r.ProfitFactor = math.Inf(1)
	default:
		r.ProfitFactor = 0
	}
}

// profitFactorJSON carries ProfitFactor across JSON, where IEEE +Inf has no
// native representation and is encoded as the string "inf".
type profitFactorJSON struct {
	ProfitFactor json.RawMessage `json:"profit_factor,omitempty"`
}

const infSentinel = `"inf"`

// MarshalJSON encodes the record with the profit-factor sentinel applied.
func (r PerformanceRecord) MarshalJSON() ([]byte, error) {
	type plain PerformanceRecord
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}

	var pf json.RawMessage
	if math.IsInf(r.ProfitFactor, 1) {
		pf = json.RawMessage(infSentinel)
	} else {
		pf, err = json.Marshal(r.ProfitFactor)
		if err != nil {
			return nil, err
		}
	}

	// Splice profit_factor into the object produced for the alias type.
	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	buf.WriteString(`,"profit_factor":`)
	buf.Write(pf)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the record, translating the "inf" sentinel back to
// IEEE +Inf.
func (r *PerformanceRecord) UnmarshalJSON(data []byte) error {
	type plain PerformanceRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var pf profitFactorJSON
	if err := json.Unmarshal(data, &pf); err != nil {
		return err
	}

	*r = PerformanceRecord(p)
	if len(pf.ProfitFactor) > 0 {
		if string(pf.ProfitFactor) == infSentinel {
			r.ProfitFactor = math.Inf(1)
		} else if err := json.Unmarshal(pf.ProfitFactor, &r.ProfitFactor); err != nil {
			return fmt.Errorf("strategy: invalid profit_factor: %w", err)
		}
	}
	return nil
}
