package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// resultMerge is the column-wise upsert rule for results: an incoming NULL
// never erases a stored value, and the original created_at survives repeat
// saves. Re-saving a result is therefore idempotent.
var resultMerge = clause.Assignments(map[string]interface{}{
	"created_at":       gorm.Expr("COALESCE(created_at, excluded.created_at)"),
	"batch_id":         gorm.Expr("COALESCE(excluded.batch_id, batch_id)"),
	"page_no":          gorm.Expr("COALESCE(excluded.page_no, page_no)"),
	"raw_text":         gorm.Expr("COALESCE(excluded.raw_text, raw_text)"),
	"card_id":          gorm.Expr("COALESCE(excluded.card_id, card_id)"),
	"browser_id":       gorm.Expr("COALESCE(excluded.browser_id, browser_id)"),
	"ocr_duration_sec": gorm.Expr("COALESCE(excluded.ocr_duration_sec, ocr_duration_sec)"),
	"start_ts":         gorm.Expr("COALESCE(excluded.start_ts, start_ts)"),
	"end_ts":           gorm.Expr("COALESCE(excluded.end_ts, end_ts)"),
	"browser_profile":  gorm.Expr("COALESCE(excluded.browser_profile, browser_profile)"),
	"model_label":      gorm.Expr("COALESCE(excluded.model_label, model_label)"),
	"execution_mode":   gorm.Expr("COALESCE(excluded.execution_mode, execution_mode)"),
})

// SaveResult upserts a result keyed by (source_path, file_name), merging
// column-wise so partial saves accumulate instead of clobbering each other.
// Best effort.
func (s *Store) SaveResult(r Result) {
	if !s.Enabled() {
		return
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}, {Name: "source_path"}},
		DoUpdates: resultMerge,
	}).Create(&r).Error
	s.bestEffort("save result", err)
}

// DoneFiles returns the names of every file already recorded for the source
// path. Best effort; an unreachable database reads as nothing done.
func (s *Store) DoneFiles(sourcePath string) map[string]struct{} {
	done := make(map[string]struct{})
	if !s.Enabled() {
		return done
	}
	var names []string
	err := s.db.Model(&Result{}).
		Where("source_path = ?", sourcePath).
		Pluck("file_name", &names).Error
	if err != nil {
		s.bestEffort("done files", err)
		return done
	}
	for _, n := range names {
		done[n] = struct{}{}
	}
	return done
}

// IsDone reports whether the file already has a result row.
func (s *Store) IsDone(sourcePath, fileName string) bool {
	if !s.Enabled() {
		return false
	}
	var count int64
	err := s.db.Model(&Result{}).
		Where("source_path = ? AND file_name = ?", sourcePath, fileName).
		Limit(1).
		Count(&count).Error
	if err != nil {
		s.bestEffort("done check", err)
		return false
	}
	return count > 0
}

// LastProcessed returns the alphabetically last recorded file name for the
// source path. Scanners that walk inputs in name order use it as a resume
// point without loading the whole done set.
func (s *Store) LastProcessed(sourcePath string) (string, bool) {
	if !s.Enabled() {
		return "", false
	}
	var names []string
	err := s.db.Model(&Result{}).
		Where("source_path = ?", sourcePath).
		Order("file_name DESC").
		Limit(1).
		Pluck("file_name", &names).Error
	if err != nil || len(names) == 0 {
		return "", false
	}
	return names[0], true
}
