package store

import (
	"time"

	"gorm.io/gorm/clause"
)

// TryAcquire claims a file for this worker's profile. The claim is an atomic
// insert; a conflict means someone else holds it. Callers must SweepExpired
// first so a crashed worker's stale claim does not block the file forever.
// A disabled or unreachable store refuses the claim rather than risking a
// duplicate scan.
func (s *Store) TryAcquire(fileName string) bool {
	if !s.Enabled() {
		return false
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Lease{
		FileName:      fileName,
		WorkerProfile: s.profile,
		LockedAt:      time.Now(),
	})
	if res.Error != nil {
		s.bestEffort("acquire lease", res.Error)
		return false
	}
	return res.RowsAffected == 1
}

// SweepExpired deletes claims older than LeaseTimeout, regardless of owner.
// Any worker may sweep; the subsequent acquire race stays safe because the
// insert is atomic.
func (s *Store) SweepExpired() {
	if !s.Enabled() {
		return
	}
	cutoff := time.Now().Add(-LeaseTimeout)
	s.bestEffort("sweep leases", s.db.Where("locked_at < ?", cutoff).Delete(&Lease{}).Error)
}

// Release drops the claim on one file.
func (s *Store) Release(fileName string) {
	if !s.Enabled() {
		return
	}
	s.bestEffort("release lease", s.db.Where("file_name = ?", fileName).Delete(&Lease{}).Error)
}

// ReleaseAllMine drops every claim held by this worker's profile, used on
// shutdown so an interrupted batch frees its files immediately.
func (s *Store) ReleaseAllMine() {
	if !s.Enabled() {
		return
	}
	s.bestEffort("release all leases", s.db.Where("worker_profile = ?", s.profile).Delete(&Lease{}).Error)
}
