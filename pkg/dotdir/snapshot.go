package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/papercomputeco/parley/pkg/conversation"
)

const (
	snapshotFile = "conversation.json"
)

// Snapshot is the persisted state of a chat, written when the chat exits and
// restored with "parley chat --resume".
type Snapshot struct {
	SavedAt time.Time `json:"saved_at"`
	Model   string    `json:"model,omitempty"`

	// Turns is the conversation in display order.
	Turns []SnapshotTurn `json:"turns"`
}

// SnapshotTurn is one persisted turn.
type SnapshotTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// NewSnapshot captures turns, leaving placeholders out.
func NewSnapshot(model string, turns []conversation.Turn) *Snapshot {
	s := &Snapshot{
		SavedAt: time.Now().UTC(),
		Model:   model,
		Turns:   make([]SnapshotTurn, 0, len(turns)),
	}
	for _, t := range turns {
		if t.Placeholder {
			continue
		}
		s.Turns = append(s.Turns, SnapshotTurn{Speaker: t.Speaker.String(), Text: t.Text})
	}
	return s
}

// ConversationTurns converts the snapshot back into log turns.
func (s *Snapshot) ConversationTurns() ([]conversation.Turn, error) {
	turns := make([]conversation.Turn, 0, len(s.Turns))
	for i, t := range s.Turns {
		speaker, err := conversation.ParseSpeaker(t.Speaker)
		if err != nil {
			return nil, fmt.Errorf("snapshot turn %d: %w", i, err)
		}
		turns = append(turns, conversation.Turn{Speaker: speaker, Text: t.Text})
	}
	return turns, nil
}

// LoadSnapshot loads the snapshot from a target .parley/conversation.json.
// Returns nil, nil if no snapshot exists.
func (m *Manager) LoadSnapshot(overrideDir string) (*Snapshot, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation snapshot: %w", err)
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("parsing conversation snapshot: %w", err)
	}

	return snap, nil
}

// SaveSnapshot persists the snapshot to a target .parley/conversation.json.
func (m *Manager) SaveSnapshot(snap *Snapshot, overrideDir string) error {
	if snap == nil {
		return errors.New("cannot save nil snapshot")
	}

	dir, err := m.Ensure(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation snapshot: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, snapshotFile), data, 0o600); err != nil {
		return fmt.Errorf("writing conversation snapshot: %w", err)
	}

	return nil
}

// ClearSnapshot removes the snapshot file. Returns nil if it doesn't exist.
func (m *Manager) ClearSnapshot(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return err
	}

	if err := os.Remove(filepath.Join(dir, snapshotFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing conversation snapshot: %w", err)
	}

	return nil
}
