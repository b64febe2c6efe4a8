package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SaveTokenUsage appends one accounting row. Best effort.
func (s *Store) SaveTokenUsage(u TokenUsage) {
	if !s.Enabled() {
		return
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.bestEffort("save token usage", s.db.Create(&u).Error)
}

// SaveErrorTrace records metadata for a saved failure trace. Best effort.
func (s *Store) SaveErrorTrace(t ErrorTrace) {
	if !s.Enabled() {
		return
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if err := s.db.Create(&t).Error; err != nil {
		s.bestEffort("save error trace", err)
		return
	}
	s.logger.Info().
		Str("file", t.FileName).
		Str("trace", t.TracePath).
		Msg("saved error trace")
}

// SaveArtifact stores a binary debug blob with freeform metadata. Empty
// content is dropped silently. Best effort.
func (s *Store) SaveArtifact(batchID, fileName *string, artifactType string, content []byte, meta map[string]any) {
	if !s.Enabled() || len(content) == 0 {
		return
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil || meta == nil {
		metaJSON = []byte("{}")
	}
	a := Artifact{
		BatchID:      batchID,
		FileName:     fileName,
		ProfileName:  s.profile,
		ArtifactType: artifactType,
		Content:      content,
		CreatedAt:    time.Now(),
		Meta:         datatypes.JSON(metaJSON),
	}
	if err := s.db.Create(&a).Error; err != nil {
		s.bestEffort("save artifact", err)
		return
	}
	s.logger.Info().
		Str("type", artifactType).
		Int("bytes", len(content)).
		Msg("saved artifact")
}
