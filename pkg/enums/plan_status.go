package enums

// PlanStatus controls whether a billing plan can still be purchased.
type PlanStatus string

const (
	PlanStatusActive     PlanStatus = "active"
	PlanStatusDeprecated PlanStatus = "deprecated"
	PlanStatusHidden     PlanStatus = "hidden"
)

var planStatuses = []PlanStatus{PlanStatusActive, PlanStatusDeprecated, PlanStatusHidden}

func (p PlanStatus) String() string { return string(p) }

func (p PlanStatus) IsValid() bool { return oneOf(p, planStatuses) }

// Purchasable reports whether new subscriptions may start on the plan. Deprecated and
// hidden plans keep renewing for existing subscribers.
func (p PlanStatus) Purchasable() bool { return p == PlanStatusActive }

func ParsePlanStatus(value string) (PlanStatus, error) {
	return parseOneOf("plan status", value, planStatuses)
}
