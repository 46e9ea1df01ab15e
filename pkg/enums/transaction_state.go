package enums

// TransactionState tracks where a transaction sits in its settlement lifecycle.
type TransactionState string

const (
	TransactionStatePending           TransactionState = "pending"
	TransactionStateCompleted         TransactionState = "completed"
	TransactionStateFailed            TransactionState = "failed"
	TransactionStateCancelled         TransactionState = "cancelled"
	TransactionStateRefunded          TransactionState = "refunded"
	TransactionStatePartiallyRefunded TransactionState = "partially_refunded"
)

var transactionStates = []TransactionState{
	TransactionStatePending,
	TransactionStateCompleted,
	TransactionStateFailed,
	TransactionStateCancelled,
	TransactionStateRefunded,
	TransactionStatePartiallyRefunded,
}

// pending settles exactly once; only a completed transaction can be refunded.
var transactionTransitions = map[TransactionState][]TransactionState{
	TransactionStatePending:   {TransactionStateCompleted, TransactionStateFailed, TransactionStateCancelled},
	TransactionStateCompleted: {TransactionStateRefunded, TransactionStatePartiallyRefunded},
}

func (s TransactionState) String() string { return string(s) }

func (s TransactionState) IsValid() bool { return oneOf(s, transactionStates) }

// IsTerminal reports whether settlement has already happened.
func (s TransactionState) IsTerminal() bool {
	return s.IsValid() && s != TransactionStatePending
}

func (s TransactionState) CanTransitionTo(next TransactionState) bool {
	return oneOf(next, transactionTransitions[s])
}

func ParseTransactionState(value string) (TransactionState, error) {
	return parseOneOf("transaction state", value, transactionStates)
}
