// Package store persists claims, results, and operational facts in a
// relational database through GORM. Claims are the only strict surface:
// acquiring one is an atomic insert-if-absent and the answer must be exact.
// Everything else is best-effort; a dead database degrades persistence, never
// the OCR run itself.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// Lease is an exclusive claim on one input file. The primary key makes the
// insert race safe: whoever inserts first owns the file.
type Lease struct {
	FileName      string    `gorm:"primaryKey"`
	WorkerProfile string    `gorm:"index"`
	LockedAt      time.Time `gorm:"index"`
}

func (Lease) TableName() string { return "ocr_locks" }

// Result is the recognized text for one input file plus its run metadata.
// Optional columns are pointers so a partial save can leave previously
// written values untouched during the merge upsert.
type Result struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	BatchID    *string
	FileName   string `gorm:"uniqueIndex:idx_results_source_file"`
	SourcePath string `gorm:"uniqueIndex:idx_results_source_file"`
	PageNo     *int
	RawText    *string
	CardID     *string
	BrowserID  *string
	DurationS  *float64 `gorm:"column:ocr_duration_sec"`
	StartTS    *time.Time
	EndTS      *time.Time
	Profile    *string `gorm:"column:browser_profile;index"`
	ModelLabel *string
	ExecMode   *string `gorm:"column:execution_mode"`
}

func (Result) TableName() string { return "ocr_results" }

// TokenUsage is an append-only accounting row for one scan.
type TokenUsage struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	BatchID    *string
	FileName   string
	SourcePath string
	PageNo     *int
	Profile    *string `gorm:"column:browser_profile;index"`
	BrowserID  *string
	ModelLabel *string
	TokIn      *int
	TokOut     *int
	TokTotal   *int
	CharsIn    *int
	CharsOut   *int
	DurationS  *float64 `gorm:"column:ocr_duration_sec"`
}

func (TokenUsage) TableName() string { return "ocr_token_usage" }

// ErrorTrace records where a saved Playwright trace lives and what failed.
type ErrorTrace struct {
	ID           uint      `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"index"`
	BatchID      string    `gorm:"index"`
	FileName     string
	SourcePath   string
	PageNo       *int
	Profile      string `gorm:"column:browser_profile;index"`
	BrowserID    *string
	WorkerID     *int
	ErrorType    string
	ErrorMessage *string
	TracePath    string `gorm:"column:trace_file_path"`
	TraceBytes   *int64 `gorm:"column:trace_file_size_bytes"`
	ModelLabel   *string
	ExecMode     *string `gorm:"column:execution_mode"`
	DurationS    *float64 `gorm:"column:ocr_duration_sec"`
}

func (ErrorTrace) TableName() string { return "error_traces" }

// Artifact is a binary debug blob (screenshot, HTML dump, video).
type Artifact struct {
	ID           uint `gorm:"primaryKey"`
	BatchID      *string
	FileName     *string
	ProfileName  string         `gorm:"not null;index"`
	ArtifactType string         `gorm:"size:32;not null"`
	Content      []byte
	CreatedAt    time.Time `gorm:"index"`
	Meta         datatypes.JSON `gorm:"default:'{}'"`
}

func (Artifact) TableName() string { return "ocr_debug_artifacts" }

// ProfileState is the shared runtime record for one browser profile, used to
// pause profiles and to surface which worker currently drives them.
type ProfileState struct {
	ProfileName     string `gorm:"primaryKey"`
	IsPaused        bool
	PauseUntil      *time.Time
	PauseReason     *string
	LastUpdated     time.Time
	ActiveWorkerPID *int `gorm:"column:active_worker_pid"`
	CurrentAction   *string
	Meta            datatypes.JSON `gorm:"default:'{}'"`
}

func (ProfileState) TableName() string { return "profile_runtime_state" }

// CriticalEvent is an operator-facing incident: something automation cannot
// recover from on its own.
type CriticalEvent struct {
	ID             uint   `gorm:"primaryKey"`
	ProfileName    string `gorm:"not null;index"`
	EventType      string `gorm:"not null"`
	Message        string
	RequiresAction bool
	CreatedAt      time.Time `gorm:"index"`
	ResolvedAt     *time.Time
	Meta           datatypes.JSON `gorm:"default:'{}'"`
}

func (CriticalEvent) TableName() string { return "critical_events" }
