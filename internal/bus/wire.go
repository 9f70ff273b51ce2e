package bus

import (
	"encoding/json"
	"fmt"

	"github.com/codefionn/wellspace/internal/entity"
)

// Wire message types shared by every window of a session.
const (
	TypeEntitySelected = "ENTITY_SELECTED"
	TypeWindowFocus    = "WINDOW_FOCUS"
)

// EntityPayload is the entity block of an ENTITY_SELECTED message. Scope is
// the path of the scope the entity was selected in.
type EntityPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Scope string `json:"scope"`
}

// Message is the cross-window wire format. ENTITY_SELECTED fills Entity;
// WINDOW_FOCUS fills the window fields. Origin names the publishing bus so a
// window never re-applies its own broadcast.
type Message struct {
	Type       string         `json:"type"`
	Entity     *EntityPayload `json:"entity,omitempty"`
	WindowID   string         `json:"windowId,omitempty"`
	WindowType string         `json:"windowType,omitempty"`
	EntityName string         `json:"entityName,omitempty"`
	Message    string         `json:"message,omitempty"`
	Origin     string         `json:"origin,omitempty"`
}

// Encode marshals m for the transport.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode bus message: %w", err)
	}
	switch m.Type {
	case TypeEntitySelected:
		if m.Entity == nil || (m.Entity.ID == "" && m.Entity.Path == "") {
			return Message{}, fmt.Errorf("decode bus message: %s without entity", m.Type)
		}
	case TypeWindowFocus:
		if m.WindowID == "" {
			return Message{}, fmt.Errorf("decode bus message: %s without windowId", m.Type)
		}
	default:
		return Message{}, fmt.Errorf("decode bus message: unknown type %q", m.Type)
	}
	return m, nil
}

// Selected is delivered to selection subscribers.
type Selected struct {
	Entity entity.Ref
	Scope  entity.Scope
	// Remote is true when the event arrived from another window.
	Remote bool
}

// Focus is delivered to focus subscribers.
type Focus struct {
	WindowID   string
	WindowType string
	EntityName string
	Message    string
	Remote     bool
}

func selectedMessage(ref entity.Ref, scope entity.Scope) Message {
	scopePath := scope.Path
	if scopePath == "" {
		scopePath = ref.Scope
	}
	return Message{
		Type: TypeEntitySelected,
		Entity: &EntityPayload{
			ID:    ref.ID,
			Name:  ref.Name,
			Path:  ref.Path,
			Scope: scopePath,
		},
	}
}

func (m Message) selected(remote bool) Selected {
	p := m.Entity
	return Selected{
		Entity: entity.Ref{ID: p.ID, Name: p.Name, Path: p.Path, Scope: p.Scope},
		Scope:  entity.Scope{Path: p.Scope},
		Remote: remote,
	}
}

func (m Message) focus(remote bool) Focus {
	return Focus{
		WindowID:   m.WindowID,
		WindowType: m.WindowType,
		EntityName: m.EntityName,
		Message:    m.Message,
		Remote:     remote,
	}
}
