package webhook

import (
	"encoding/json"
	"strings"
	"time"
)

/* Webhook represents a local webhook registration record
 * Uses value semantics as it represents data, not behavior
 */
type Webhook struct {
	ID string

	// ModelID is the id of the Trello model being watched (board, list,
	// card...). At most 24 characters.
	ModelID string

	// TrelloID is the webhook id returned by the Trello API. Empty means
	// the record is not registered remotely. TrelloIDConflict means a
	// remote registration exists for the model but points at a different
	// callback URL.
	TrelloID string

	Description string

	// AuthToken is the Trello user token the webhook acts on behalf of.
	// Treated as a secret - never logged in full.
	AuthToken string

	// Active reflects the remote activation status. Unknown until the
	// first successful sync.
	Active Activation

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

/* TrelloIDConflict is the sentinel stored in TrelloID when the remote side
 * has a registration for the model with a mismatched callback URL. Updating
 * a mismatched remote webhook is unsupported - the operator must delete and
 * recreate.
 */
const TrelloIDConflict = "conflict"

// MaxModelIDLength mirrors the length of a Trello object id
const MaxModelIDLength = 24

// State describes where a record sits in the registration lifecycle
type State int

const (
	// Unregistered means no remote registration is known
	Unregistered State = iota + 1
	// Registered means the record carries a live remote webhook id
	Registered
	// Orphaned means the remote counterpart is conflicting or inactive
	Orphaned
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Orphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// HasTrelloID reports whether a remote webhook id is present
func (w Webhook) HasTrelloID() bool {
	return w.TrelloID != ""
}

// State derives the lifecycle state from the record fields
func (w Webhook) State() State {
	switch {
	case w.TrelloID == "":
		return Unregistered
	case w.TrelloID == TrelloIDConflict:
		return Orphaned
	case w.Active == Inactive:
		return Orphaned
	default:
		return Registered
	}
}

/* CallbackURL derives the URL Trello calls back on, from the configured
 * public domain. The path doubles as the authentication key for inbound
 * callbacks, so it must match the route registered by the HTTP layer.
 */
func (w Webhook) CallbackURL(domain string) string {
	return strings.TrimSuffix(domain, "/") + "/" + w.AuthToken + "/" + w.ModelID + "/"
}

// Validate checks the fields required before a record can be persisted
func (w Webhook) Validate() error {
	if w.ModelID == "" {
		return ErrMissingModelID
	}
	if len(w.ModelID) > MaxModelIDLength {
		return ErrModelIDTooLong
	}
	if w.AuthToken == "" {
		return ErrMissingAuthToken
	}
	return nil
}

/* CallbackEvent is one inbound delivery from Trello, persisted verbatim.
 * Events are an append-only log: they are never mutated after creation and
 * survive deletion of the owning webhook record.
 */
type CallbackEvent struct {
	ID        string
	WebhookID string

	// EventType is the Trello action type - commentCard, updateCard, etc.
	EventType string

	// Payload is the complete callback body as received
	Payload json.RawMessage

	// Timestamp is the ingestion time, not Trello's own event time. The
	// record is a receipt, not a replay of remote ordering.
	Timestamp time.Time
}
