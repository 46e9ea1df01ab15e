package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransaction  OutboxAggregateType = "transaction"
	AggregateSubscription OutboxAggregateType = "subscription"
)

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTransactionCompleted OutboxEventType = "transaction_completed"
	EventTransactionFailed    OutboxEventType = "transaction_failed"
	EventTransactionRefunded  OutboxEventType = "transaction_refunded"
	EventSubscriptionRenewed  OutboxEventType = "subscription_renewed"
	EventSubscriptionExpired  OutboxEventType = "subscription_expired"
)

// Each event type belongs to exactly one aggregate.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventTransactionCompleted: AggregateTransaction,
	EventTransactionFailed:    AggregateTransaction,
	EventTransactionRefunded:  AggregateTransaction,
	EventSubscriptionRenewed:  AggregateSubscription,
	EventSubscriptionExpired:  AggregateSubscription,
}

var aggregateTypes = []OutboxAggregateType{AggregateTransaction, AggregateSubscription}

func (a OutboxAggregateType) IsValid() bool { return oneOf(a, aggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseOneOf("aggregate type", value, aggregateTypes)
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is the aggregate type rows of this event must carry. Empty for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType { return eventAggregates[e] }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", errorf("event type", value)
	}
	return e, nil
}
