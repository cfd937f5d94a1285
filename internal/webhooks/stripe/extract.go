package stripewebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"

	"github.com/stripe/stripe-go/v84"

	"github.com/lectern-edu/lectern-payments/internal/gateway"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
)

// Event is the loosely decoded webhook envelope. Any field may be empty.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
	Raw    []byte
}

// decodeEvent reads id, type and data.object without requiring a well-formed
// envelope. ok is false only when the payload is not a JSON object at all.
func decodeEvent(payload []byte) (*Event, bool) {
	ev := &Event{Raw: payload}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ev, false
	}
	_ = json.Unmarshal(fields["id"], &ev.ID)
	_ = json.Unmarshal(fields["type"], &ev.Type)

	var data map[string]json.RawMessage
	if err := json.Unmarshal(fields["data"], &data); err == nil {
		ev.Object = data["object"]
	}
	return ev, true
}

// IntentExtractor resolves the payment intent an event refers to. A miss is
// (nil, nil); an error is transient and aborts handling.
type IntentExtractor interface {
	Name() string
	Extract(ctx context.Context, ev *Event) (*gateway.Intent, error)
}

type embeddedObjectExtractor struct{}

func (embeddedObjectExtractor) Name() string { return "embedded_object" }

func (embeddedObjectExtractor) Extract(_ context.Context, ev *Event) (*gateway.Intent, error) {
	if ev == nil {
		return nil, nil
	}
	// A bare id string is not an embedded object; leave it to the fetch strategy.
	object := bytes.TrimSpace(ev.Object)
	if len(object) == 0 || object[0] != '{' {
		return nil, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(object, &pi); err != nil {
		return nil, nil
	}
	if !gateway.IsIntentID(pi.ID) {
		return nil, nil
	}
	return gateway.IntentFromStripe(&pi), nil
}

type intentFetcher interface {
	FetchIntent(ctx context.Context, intentID string) (*gateway.Intent, error)
}

var intentIDPattern = regexp.MustCompile(`\bpi_[A-Za-z0-9]+`)

// maxFetchCandidates bounds how many distinct ids one payload can make us fetch.
const maxFetchCandidates = 3

type remoteFetchExtractor struct {
	fetcher intentFetcher
}

func (remoteFetchExtractor) Name() string { return "remote_fetch" }

func (r remoteFetchExtractor) Extract(ctx context.Context, ev *Event) (*gateway.Intent, error) {
	if ev == nil || r.fetcher == nil {
		return nil, nil
	}
	seen := make(map[string]struct{})
	for _, candidate := range intentIDPattern.FindAllString(string(ev.Raw), -1) {
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		if len(seen) > maxFetchCandidates {
			break
		}

		intent, err := r.fetcher.FetchIntent(ctx, candidate)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				continue
			}
			return nil, err
		}
		if intent != nil && gateway.IsIntentID(intent.ID) {
			return intent, nil
		}
	}
	return nil, nil
}

// DefaultExtractors is the production chain: the embedded object first, then a fetch by id.
func DefaultExtractors(fetcher intentFetcher) []IntentExtractor {
	return []IntentExtractor{
		embeddedObjectExtractor{},
		remoteFetchExtractor{fetcher: fetcher},
	}
}
