package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// LogCriticalEvent records an incident that needs operator attention. Best
// effort.
func (s *Store) LogCriticalEvent(profileName, eventType, message string, requiresAction bool, meta map[string]any) {
	if !s.Enabled() {
		return
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil || meta == nil {
		metaJSON = []byte("{}")
	}
	ev := CriticalEvent{
		ProfileName:    profileName,
		EventType:      eventType,
		Message:        message,
		RequiresAction: requiresAction,
		CreatedAt:      time.Now(),
		Meta:           datatypes.JSON(metaJSON),
	}
	if err := s.db.Create(&ev).Error; err != nil {
		s.bestEffort("log critical event", err)
		return
	}
	s.logger.Info().
		Str("event_type", eventType).
		Str("profile", profileName).
		Msg("logged critical event")
}

// CriticalEvents lists events, newest first. An empty profileName matches
// all profiles; unresolvedOnly narrows to open incidents.
func (s *Store) CriticalEvents(profileName string, unresolvedOnly bool) []CriticalEvent {
	if !s.Enabled() {
		return nil
	}
	q := s.db.Model(&CriticalEvent{}).Order("created_at DESC")
	if unresolvedOnly {
		q = q.Where("resolved_at IS NULL")
	}
	if profileName != "" {
		q = q.Where("profile_name = ?", profileName)
	}
	var events []CriticalEvent
	if err := q.Find(&events).Error; err != nil {
		s.bestEffort("get critical events", err)
		return nil
	}
	return events
}

// ResolveCriticalEvent stamps an open event as resolved. Resolving an
// already-resolved event is a no-op.
func (s *Store) ResolveCriticalEvent(id uint) {
	if !s.Enabled() {
		return
	}
	res := s.db.Model(&CriticalEvent{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", time.Now())
	if res.Error != nil {
		s.bestEffort("resolve critical event", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		s.logger.Info().Uint("event_id", id).Msg("resolved critical event")
	}
}
