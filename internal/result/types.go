package result

import (
	"time"

	"github.com/signalnine/hypersweep/internal/space"
)

type State string

const (
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFail     State = "fail"
)

type Study struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// Trial is one sampled configuration and, once finished, its outcome.
type Trial struct {
	ID          string             `json:"id"`
	StudyID     string             `json:"study_id"`
	Number      int                `json:"number"`
	State       State              `json:"state"`
	Value       float64            `json:"value"`
	Params      space.Config       `json:"params"`
	Attrs       map[string]float64 `json:"attrs,omitempty"`
	Failure     string             `json:"failure,omitempty"`
	Diagnostic  string             `json:"diagnostic,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

func (t *Trial) Finished() bool {
	return t.State != StateRunning
}

func (t *Trial) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Completion is everything written when a trial finishes.
type Completion struct {
	State       State
	Value       float64
	Attrs       map[string]float64
	Failure     string
	Diagnostic  string
	CompletedAt time.Time
}
