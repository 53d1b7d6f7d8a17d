package payload

import (
	"encoding/json"
	"fmt"
)

/* Document is a parsed Trello callback body.
 *
 * Trello payloads are deeply nested and sparsely populated - which fields
 * are present depends on the action type. Access goes through explicit
 * lookups that report absence instead of panicking on a missing key.
 */
type Document struct {
	raw    []byte
	fields map[string]any
}

// Parse parses a callback body. The body must be a JSON object.
func Parse(data []byte) (Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Document{}, fmt.Errorf("unmarshaling callback body: %w", err)
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	return Document{raw: raw, fields: fields}, nil
}

// Raw returns the verbatim body the document was parsed from
func (d Document) Raw() []byte {
	return d.raw
}

/* Lookup walks the nested path and returns the value at the end of it.
 * The second return is false as soon as any segment is missing or not an
 * object.
 */
func (d Document) Lookup(path ...string) (any, bool) {
	var current any = d.fields
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String returns the string value at the path, or ("", false) if absent or
// not a string
func (d Document) String(path ...string) (string, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the boolean value at the path
func (d Document) Bool(path ...string) (bool, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

/* ActionType extracts the event classification - "commentCard",
 * "updateCard", and so on. Every well-formed Trello callback carries one.
 */
func (d Document) ActionType() (string, bool) {
	return d.String("action", "type")
}

// MemberCreator returns the full name of the member whose action triggered
// the callback
func (d Document) MemberCreator() (string, bool) {
	return d.String("action", "memberCreator", "fullName")
}

// BoardName returns the name of the board the action happened on
func (d Document) BoardName() (string, bool) {
	return d.String("action", "data", "board", "name")
}

// CardName returns the name of the card the action happened on
func (d Document) CardName() (string, bool) {
	return d.String("action", "data", "card", "name")
}

// CommentText returns the text of a commentCard action
func (d Document) CommentText() (string, bool) {
	return d.String("action", "data", "text")
}

// ModelID returns the id of the model the webhook is watching
func (d Document) ModelID() (string, bool) {
	return d.String("model", "id")
}
