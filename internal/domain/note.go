package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Note is a read-only copy of a note owned by the external repository.
type Note struct {
	ID           string
	LastModified time.Time // zero when the listing carried no timestamp
}

// noteWire accepts both listing shapes served by the notes API:
// {"name": ...} in the workspace listing and
// {"note_name": ..., "last_modified": <epoch seconds>} in the review listing.
type noteWire struct {
	Name         string   `json:"name"`
	NoteName     string   `json:"note_name"`
	LastModified *float64 `json:"last_modified"`
}

// UnmarshalJSON decodes a note listing entry. A bare JSON string is taken as the identifier.
func (n *Note) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*n = Note{ID: id}
		return nil
	}

	var w noteWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode note: %w", err)
	}
	id = w.NoteName
	if id == "" {
		id = w.Name
	}
	if id == "" {
		return fmt.Errorf("decode note: missing identifier")
	}

	*n = Note{ID: id}
	if w.LastModified != nil {
		n.LastModified = time.Unix(int64(*w.LastModified), 0)
	}
	return nil
}

// MarshalJSON encodes a note in the review listing shape.
func (n Note) MarshalJSON() ([]byte, error) {
	out := struct {
		NoteName     string `json:"note_name"`
		LastModified int64  `json:"last_modified,omitempty"`
	}{NoteName: n.ID}
	if !n.LastModified.IsZero() {
		out.LastModified = n.LastModified.Unix()
	}
	return json.Marshal(out)
}

// Option is one answer choice of a question.
type Option struct {
	Description string `json:"description"`
	IsCorrect   bool   `json:"isCorrect"`
}

// Question is a single multiple-choice quiz question.
// Exactly one option is expected to be correct, but nothing enforces it.
type Question struct {
	Prompt  string   `json:"question"`
	Options []Option `json:"options"`
}

// Clone returns a deep copy of the question.
func (q Question) Clone() Question {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return Question{Prompt: q.Prompt, Options: opts}
}
