package core

// CostLedger accumulates the per-call cost of successful capability
// invocations over the lifetime of a run, keyed by agent and by step. The
// ledger is not self-locking; the owning Run guards all access.
type CostLedger struct {
	// Total is the sum of all charges.
	Total int `json:"total"`
	// ByAgent maps agent IDs to their accumulated charges.
	ByAgent map[string]int `json:"by_agent"`
	// ByStep maps step IDs to their accumulated charges.
	ByStep map[string]int `json:"by_step"`
}

// NewCostLedger creates an empty ledger.
func NewCostLedger() *CostLedger {
	return &CostLedger{
		ByAgent: map[string]int{},
		ByStep:  map[string]int{},
	}
}

// Charge records a cost against an agent and a step.
func (l *CostLedger) Charge(agentID, stepID string, amount int) {
	if amount == 0 {
		return
	}
	l.Total += amount
	l.ByAgent[agentID] += amount
	l.ByStep[stepID] += amount
}

// Clone returns a copy of the ledger safe for independent mutation.
func (l *CostLedger) Clone() *CostLedger {
	c := NewCostLedger()
	c.Total = l.Total
	for k, v := range l.ByAgent {
		c.ByAgent[k] = v
	}
	for k, v := range l.ByStep {
		c.ByStep[k] = v
	}
	return c
}
