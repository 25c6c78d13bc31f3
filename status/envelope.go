package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	// ErrEnvelopeNotFound indicates the envelope was already consumed
	// or never existed.
	ErrEnvelopeNotFound = errors.New("envelope not found")

	// ErrInvalidEnvelope indicates a malformed envelope.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is one self-contained, idempotently-reapplicable proposed
// update to the shared status artifact. The non-writer agent appends
// envelopes; the writer folds them in and deletes them, exactly once.
type Envelope struct {
	// ID uniquely identifies the envelope file.
	ID string `json:"id"`

	// Producer is the agent that proposed the update.
	Producer string `json:"producer"`

	// CreatedAt orders envelopes from one producer.
	CreatedAt time.Time `json:"created_at"`

	// ItemID is the content address: the artifact block this update
	// replaces or inserts. Reapplying the same envelope twice leaves
	// the artifact unchanged.
	ItemID string `json:"item_id"`

	// Section is the artifact section the block belongs under.
	Section string `json:"section,omitempty"`

	// Body is the rendered block content.
	Body string `json:"body"`
}

// Validate checks required envelope fields.
func (e *Envelope) Validate() error {
	if e.Producer == "" || e.ItemID == "" {
		return ErrInvalidEnvelope
	}
	return nil
}

// Queue is the on-disk update merge queue: one JSON file per envelope
// in the envelopes folder of the vault.
type Queue struct {
	dir string
}

// NewQueue opens the queue rooted at the given directory.
func NewQueue(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating envelope dir: %w", err)
	}
	return &Queue{dir: dir}, nil
}

// Append adds an envelope to the queue. The ID and timestamp are filled
// in if absent. The file is placed atomically so the writer never reads
// a partial envelope.
func (q *Queue) Append(env Envelope) (string, error) {
	if err := env.Validate(); err != nil {
		return "", err
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(q.dir, ".tmp-env-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, filepath.Join(q.dir, env.ID+".json")); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return env.ID, nil
}

// List returns all pending envelopes ordered by creation time, then ID.
func (q *Queue) List() ([]Envelope, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var envs []Envelope
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(q.dir, name))
		if err != nil {
			return nil, err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("corrupt envelope %s: %w", name, err)
		}
		envs = append(envs, env)
	}

	sort.Slice(envs, func(i, j int) bool {
		if !envs[i].CreatedAt.Equal(envs[j].CreatedAt) {
			return envs[i].CreatedAt.Before(envs[j].CreatedAt)
		}
		return envs[i].ID < envs[j].ID
	})
	return envs, nil
}

// Consume removes a folded envelope from the queue.
func (q *Queue) Consume(id string) error {
	err := os.Remove(filepath.Join(q.dir, id+".json"))
	if err != nil && os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrEnvelopeNotFound, id)
	}
	return err
}
