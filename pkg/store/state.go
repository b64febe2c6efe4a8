package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// StateUpdate is a sparse change to a profile's runtime state. Nil fields
// are left untouched in the database.
type StateUpdate struct {
	IsPaused        *bool
	PauseUntil      *time.Time
	PauseReason     *string
	ActiveWorkerPID *int
	CurrentAction   *string
	Meta            map[string]any
}

// GetProfileState reads the runtime state for a profile. Missing rows and
// database errors both read as no state; state checks run on hot paths and
// must not spam logs.
func (s *Store) GetProfileState(profileName string) (*ProfileState, bool) {
	if !s.Enabled() {
		return nil, false
	}
	var st ProfileState
	if err := s.db.First(&st, "profile_name = ?", profileName).Error; err != nil {
		return nil, false
	}
	return &st, true
}

// SetProfileState upserts the given fields for a profile, bumping
// last_updated. Best effort.
func (s *Store) SetProfileState(profileName string, update StateUpdate) {
	if !s.Enabled() {
		return
	}

	fields := map[string]interface{}{
		"profile_name": profileName,
		"last_updated": time.Now(),
	}
	if update.IsPaused != nil {
		fields["is_paused"] = *update.IsPaused
	}
	if update.PauseUntil != nil {
		fields["pause_until"] = *update.PauseUntil
	}
	if update.PauseReason != nil {
		fields["pause_reason"] = *update.PauseReason
	}
	if update.ActiveWorkerPID != nil {
		fields["active_worker_pid"] = *update.ActiveWorkerPID
	}
	if update.CurrentAction != nil {
		fields["current_action"] = *update.CurrentAction
	}
	if update.Meta != nil {
		if metaJSON, err := json.Marshal(update.Meta); err == nil {
			fields["meta"] = datatypes.JSON(metaJSON)
		}
	}
	if len(fields) == 2 {
		return
	}

	assignments := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k == "profile_name" {
			continue
		}
		assignments[k] = v
	}

	err := s.db.Model(&ProfileState{}).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_name"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(fields).Error
	s.bestEffort("set profile state", err)
}

// IsProfilePaused reports whether the profile is paused right now, honoring
// an optional pause deadline.
func (s *Store) IsProfilePaused(profileName string) bool {
	st, ok := s.GetProfileState(profileName)
	if !ok || !st.IsPaused {
		return false
	}
	if st.PauseUntil != nil && time.Now().After(*st.PauseUntil) {
		return false
	}
	return true
}
