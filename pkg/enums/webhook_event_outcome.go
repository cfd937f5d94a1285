package enums

import "slices"

// WebhookEventOutcome records what processing a gateway event did.
type WebhookEventOutcome string

const (
	WebhookOutcomeApplied     WebhookEventOutcome = "applied"
	WebhookOutcomeIgnored     WebhookEventOutcome = "ignored"
	WebhookOutcomeUnmatched   WebhookEventOutcome = "unmatched"
	WebhookOutcomeUnparseable WebhookEventOutcome = "unparseable"
	WebhookOutcomeDuplicate   WebhookEventOutcome = "duplicate"
)

var validWebhookEventOutcomes = []WebhookEventOutcome{
	WebhookOutcomeApplied,
	WebhookOutcomeIgnored,
	WebhookOutcomeUnmatched,
	WebhookOutcomeUnparseable,
	WebhookOutcomeDuplicate,
}

func (o WebhookEventOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known outcome.
func (o WebhookEventOutcome) IsValid() bool {
	return slices.Contains(validWebhookEventOutcomes, o)
}
