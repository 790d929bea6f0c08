package agent

// Usage carries token and cost accounting for one invocation. Cost and
// DurationMS stay nil when the engine did not report them so consumers can
// distinguish "not reported" from "reported as zero".
type Usage struct {
	InputTokens  int      `json:"inputTokens"`
	OutputTokens int      `json:"outputTokens"`
	Cost         *float64 `json:"cost,omitempty"`
	DurationMS   *int64   `json:"durationMs,omitempty"`
}

// Add accumulates another invocation's usage. Token counts always sum;
// the optional fields sum over the contributors that reported them.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	if other.Cost != nil {
		c := *other.Cost
		if u.Cost != nil {
			c += *u.Cost
		}
		u.Cost = &c
	}
	if other.DurationMS != nil {
		d := *other.DurationMS
		if u.DurationMS != nil {
			d += *u.DurationMS
		}
		u.DurationMS = &d
	}
}
