package event

// Tier names a subscription plan.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierPremium      Tier = "premium"
	TierProfessional Tier = "professional"
)

// Unlimited disables a quota.
const Unlimited = -1

// Limits holds the per-tier quotas: how many events one aquarium may carry
// and how many reminders one event may carry.
type Limits struct {
	EventsPerAquarium map[Tier]int
	RemindersPerEvent map[Tier]int
}

// DefaultLimits returns the stock plan ceilings.
func DefaultLimits() Limits {
	return Limits{
		EventsPerAquarium: map[Tier]int{
			TierBasic:        50,
			TierPremium:      Unlimited,
			TierProfessional: Unlimited,
		},
		RemindersPerEvent: map[Tier]int{
			TierBasic:        1,
			TierPremium:      5,
			TierProfessional: Unlimited,
		},
	}
}

// EventQuota returns the events-per-aquarium ceiling for the tier.
// Unknown tiers get the basic (most restrictive) quota.
func (l Limits) EventQuota(t Tier) int {
	if n, ok := l.EventsPerAquarium[t]; ok {
		return n
	}
	if n, ok := l.EventsPerAquarium[TierBasic]; ok {
		return n
	}
	return Unlimited
}

// ReminderQuota returns the reminders-per-event ceiling for the tier.
func (l Limits) ReminderQuota(t Tier) int {
	if n, ok := l.RemindersPerEvent[t]; ok {
		return n
	}
	if n, ok := l.RemindersPerEvent[TierBasic]; ok {
		return n
	}
	return Unlimited
}
