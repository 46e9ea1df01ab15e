package enums

// SettlementOutcome is what a provider, or an operator, reports for a pending transaction.
type SettlementOutcome string

const (
	SettlementOutcomeSucceeded SettlementOutcome = "succeeded"
	SettlementOutcomeFailed    SettlementOutcome = "failed"
	SettlementOutcomeCanceled  SettlementOutcome = "canceled"
)

var outcomeStates = map[SettlementOutcome]TransactionState{
	SettlementOutcomeSucceeded: TransactionStateCompleted,
	SettlementOutcomeFailed:    TransactionStateFailed,
	SettlementOutcomeCanceled:  TransactionStateCancelled,
}

func (o SettlementOutcome) String() string { return string(o) }

func (o SettlementOutcome) IsValid() bool {
	_, ok := outcomeStates[o]
	return ok
}

// TargetState is the terminal transaction state the outcome produces, or "" if unknown.
func (o SettlementOutcome) TargetState() TransactionState { return outcomeStates[o] }

func ParseSettlementOutcome(value string) (SettlementOutcome, error) {
	o := SettlementOutcome(value)
	if !o.IsValid() {
		return "", errorf("settlement outcome", value)
	}
	return o, nil
}
