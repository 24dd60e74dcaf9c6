package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is the state of one render request. Nothing in it is shared with other
// jobs: temp files, the random seed and the logger all belong to the job.
type Job struct {
	ID      string
	TempDir string
	Seed    int64
	Started time.Time
	Log     zerolog.Logger
}

// NewJob creates a job with its own temp directory under base (or the system
// temp dir). A zero seed is replaced by one derived from the clock.
func NewJob(base string, seed int64, log zerolog.Logger) (*Job, error) {
	id := uuid.NewString()
	dir, err := os.MkdirTemp(base, "talkinghead_"+id[:8]+"_")
	if err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Job{
		ID:      id,
		TempDir: dir,
		Seed:    seed,
		Started: time.Now(),
		Log:     log.With().Str("job", id).Logger(),
	}, nil
}

func (j *Job) Close() error {
	return os.RemoveAll(j.TempDir)
}
