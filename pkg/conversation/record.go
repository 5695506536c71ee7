package conversation

import (
	"fmt"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// CurrentSchemaVersion is written into every persisted record.
const CurrentSchemaVersion = 1

var ErrUnsupportedSchema = errors.New("unsupported record schema version")

// Phase selects which half of a Record is being written.
type Phase string

const (
	PhaseSession   Phase = "session"
	PhaseInterview Phase = "interview"
)

func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseSession, PhaseInterview:
		return Phase(s), nil
	default:
		return "", errors.Errorf("unknown phase %q", s)
	}
}

// Record is the single persisted entity of a study participant: the session
// transcript, the interview transcript, their models and timestamps.
//
// Field order is the export order.
type Record struct {
	SchemaVersion  int        `json:"schemaVersion" yaml:"schemaVersion"`
	SessionModel   string     `json:"sessionModel" yaml:"sessionModel"`
	Session        []Message  `json:"session" yaml:"session"`
	SessionStart   *time.Time `json:"sessionStart,omitempty" yaml:"sessionStart,omitempty"`
	SessionEnd     *time.Time `json:"sessionEnd,omitempty" yaml:"sessionEnd,omitempty"`
	InterviewModel string     `json:"interviewModel" yaml:"interviewModel"`
	Interview      []Message  `json:"interview" yaml:"interview"`
	InterviewStart *time.Time `json:"interviewStart,omitempty" yaml:"interviewStart,omitempty"`
	InterviewEnd   *time.Time `json:"interviewEnd,omitempty" yaml:"interviewEnd,omitempty"`
}

// NewRecord returns an empty record: no messages, no models, no timestamps.
func NewRecord() *Record {
	return &Record{
		SchemaVersion: CurrentSchemaVersion,
		Session:       []Message{},
		Interview:     []Message{},
	}
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return clone.Clone(r).(*Record)
}

func (r *Record) Messages(p Phase) []Message {
	if p == PhaseInterview {
		return r.Interview
	}
	return r.Session
}

func (r *Record) Model(p Phase) string {
	if p == PhaseInterview {
		return r.InterviewModel
	}
	return r.SessionModel
}

func (r *Record) Start(p Phase) *time.Time {
	if p == PhaseInterview {
		return r.InterviewStart
	}
	return r.SessionStart
}

func (r *Record) End(p Phase) *time.Time {
	if p == PhaseInterview {
		return r.InterviewEnd
	}
	return r.SessionEnd
}

// SetPhase overwrites every field belonging to phase p and nothing else.
func (r *Record) SetPhase(p Phase, model string, messages []Message, start, end *time.Time) {
	switch p {
	case PhaseInterview:
		r.InterviewModel = model
		r.Interview = messages
		r.InterviewStart = start
		r.InterviewEnd = end
	default:
		r.SessionModel = model
		r.Session = messages
		r.SessionStart = start
		r.SessionEnd = end
	}
}

// Normalize fills nil slices and migrates records written before schema
// versioning existed.
func (r *Record) Normalize() error {
	switch {
	case r.SchemaVersion == 0:
		r.SchemaVersion = CurrentSchemaVersion
	case r.SchemaVersion > CurrentSchemaVersion:
		return errors.Wrapf(ErrUnsupportedSchema, "version %d (current %d)", r.SchemaVersion, CurrentSchemaVersion)
	}
	if r.Session == nil {
		r.Session = []Message{}
	}
	if r.Interview == nil {
		r.Interview = []Message{}
	}
	return nil
}

func (r *Record) String() string {
	return fmt.Sprintf("Record{sessionModel=%q session=%d interviewModel=%q interview=%d}",
		r.SessionModel, len(r.Session), r.InterviewModel, len(r.Interview))
}
