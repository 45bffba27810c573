package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"presence-tracker-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	GetMember(ctx context.Context, id string) (*model.Member, error)
	CreateMember(ctx context.Context, m *model.Member) error
	EnsureMembers(ctx context.Context, members []model.Member) (int, error)
	UpdateMember(ctx context.Context, id string, upd MemberUpdate) (*model.Member, error)
	DeleteMember(ctx context.Context, id string, now time.Time) error
	ReassignTag(ctx context.Context, oldID, newID string) error

	TogglePresence(ctx context.Context, id string, now time.Time, maxCredit time.Duration, source model.ScanSource) (*Transition, error)
	CheckOut(ctx context.Context, id string, now time.Time, source model.ScanSource) (*Transition, error)
	AutoCheckout(ctx context.Context, now time.Time, after time.Duration) ([]Transition, error)

	GetPresence(ctx context.Context, id string) (*MemberPresence, error)
	ListMembers(ctx context.Context) ([]MemberPresence, error)
	PresentMembers(ctx context.Context) ([]MemberPresence, error)
	ListScanEvents(ctx context.Context, memberID string, limit int) ([]model.ScanEvent, error)
	Leaderboard(ctx context.Context, limit int) (*Leaderboard, error)

	AddPendingTag(ctx context.Context, id string, now time.Time) (bool, error)
	ListPendingTags(ctx context.Context) ([]model.PendingTag, error)
	RemovePendingTag(ctx context.Context, id string) (bool, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// gormStore implements the Store interface using GORM.
// mu serializes every read-modify-write of a presence record.
type gormStore struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// --- Presence transitions ---

// TogglePresence flips a member between IN and OUT. Checking out credits the
// elapsed session time when it is positive and below maxCredit.
func (s *gormStore) TogglePresence(ctx context.Context, id string, now time.Time, maxCredit time.Duration, source model.ScanSource) (*Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tr *Transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, rec, err := loadForUpdate(tx, id)
		if err != nil {
			return err
		}

		if rec.Status == model.StatusIn {
			elapsed, credited := CreditFor(rec.CheckedInAt, now, maxCredit)
			tr, err = checkOut(tx, member, rec, now, elapsed, credited, model.ActionOut, source)
			return err
		}
		tr, err = checkIn(tx, member, now, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// CheckOut forces a present member OUT without crediting any time.
func (s *gormStore) CheckOut(ctx context.Context, id string, now time.Time, source model.ScanSource) (*Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tr *Transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, rec, err := loadForUpdate(tx, id)
		if err != nil {
			return err
		}
		if rec.Status != model.StatusIn {
			return ErrNotPresent
		}
		elapsed, _ := CreditFor(rec.CheckedInAt, now, 0)
		tr, err = checkOut(tx, member, rec, now, elapsed, 0, model.ActionForcedOut, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// AutoCheckout forces OUT every member whose session has lasted at least
// `after`, crediting zero time. Members already OUT are untouched.
func (s *gormStore) AutoCheckout(ctx context.Context, now time.Time, after time.Duration) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []model.PresenceRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", model.StatusIn).
			Find(&open).Error; err != nil {
			return fmt.Errorf("failed to fetch open presence records: %w", err)
		}

		for i := range open {
			rec := open[i]
			var elapsed time.Duration
			if rec.CheckedInAt != nil {
				elapsed = now.Sub(*rec.CheckedInAt)
				if elapsed < after {
					continue
				}
			}

			var member model.Member
			if err := tx.Unscoped().Where("id = ?", rec.MemberID).First(&member).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("failed to load member %s: %w", rec.MemberID, err)
				}
				member = model.Member{ID: rec.MemberID}
			}

			tr, err := checkOut(tx, &member, &rec, now, elapsed, 0, model.ActionAutoOut, model.SourceSweeper)
			if err != nil {
				return err
			}
			out = append(out, *tr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreditFor returns the session length and the part of it to credit.
// Negative sessions are clamped to zero; sessions at or above maxCredit earn
// nothing. A maxCredit of 0 credits nothing.
func CreditFor(checkedInAt *time.Time, now time.Time, maxCredit time.Duration) (elapsed, credited time.Duration) {
	if checkedInAt == nil {
		return 0, 0
	}
	elapsed = now.Sub(*checkedInAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > 0 && elapsed < maxCredit {
		credited = elapsed
	}
	return elapsed, credited
}

func loadForUpdate(tx *gorm.DB, id string) (*model.Member, *model.PresenceRecord, error) {
	var member model.Member
	if err := tx.Where("id = ?", id).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrMemberNotFound
		}
		return nil, nil, fmt.Errorf("failed to load member %s: %w", id, err)
	}

	var rec model.PresenceRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("member_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = model.PresenceRecord{MemberID: id, Status: model.StatusOut, UpdatedAt: time.Now().UTC()}
		if err := tx.Create(&rec).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create presence record for %s: %w", id, err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to load presence record for %s: %w", id, err)
	}
	return &member, &rec, nil
}

func checkIn(tx *gorm.DB, member *model.Member, now time.Time, source model.ScanSource) (*Transition, error) {
	sessionID := uuid.NewString()
	if err := tx.Model(&model.PresenceRecord{}).Where("member_id = ?", member.ID).Updates(map[string]any{
		"status":        model.StatusIn,
		"checked_in_at": now,
		"session_id":    sessionID,
		"last_scan_at":  now,
		"updated_at":    now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to check in member %s: %w", member.ID, err)
	}

	event := model.ScanEvent{
		MemberID:  member.ID,
		Action:    model.ActionIn,
		Status:    model.StatusIn,
		SessionID: &sessionID,
		Source:    source,
		ScannedAt: now,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("failed to log scan event for member %s: %w", member.ID, err)
	}

	return &Transition{
		MemberID:     member.ID,
		Name:         member.Name,
		Action:       model.ActionIn,
		Status:       model.StatusIn,
		TotalSeconds: member.TotalSeconds,
		SessionID:    sessionID,
		At:           now,
	}, nil
}

func checkOut(tx *gorm.DB, member *model.Member, rec *model.PresenceRecord, now time.Time, elapsed, credited time.Duration, action model.ScanAction, source model.ScanSource) (*Transition, error) {
	seconds := int64(credited.Round(time.Second) / time.Second)
	if seconds > 0 {
		if err := tx.Unscoped().Model(&model.Member{}).Where("id = ?", member.ID).
			Update("total_seconds", gorm.Expr("total_seconds + ?", seconds)).Error; err != nil {
			return nil, fmt.Errorf("failed to credit member %s: %w", member.ID, err)
		}
		member.TotalSeconds += seconds
	}

	// The status guard keeps a concurrent writer from double-closing a session.
	res := tx.Model(&model.PresenceRecord{}).
		Where("member_id = ? AND status = ?", member.ID, model.StatusIn).
		Updates(map[string]any{
			"status":        model.StatusOut,
			"checked_in_at": nil,
			"session_id":    nil,
			"last_scan_at":  now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to check out member %s: %w", member.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotPresent
	}

	forced := action != model.ActionOut
	event := model.ScanEvent{
		MemberID:        member.ID,
		Action:          action,
		Status:          model.StatusOut,
		Forced:          forced,
		CreditedSeconds: seconds,
		SessionID:       rec.SessionID,
		Source:          source,
		ScannedAt:       now,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("failed to log scan event for member %s: %w", member.ID, err)
	}

	tr := &Transition{
		MemberID:     member.ID,
		Name:         member.Name,
		Action:       action,
		Status:       model.StatusOut,
		Forced:       forced,
		Elapsed:      elapsed,
		Credited:     time.Duration(seconds) * time.Second,
		TotalSeconds: member.TotalSeconds,
		At:           now,
	}
	if rec.SessionID != nil {
		tr.SessionID = *rec.SessionID
	}
	return tr, nil
}

// --- Members ---

func (s *gormStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	var member model.Member
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// CreateMember registers a member with an OUT presence record and clears the
// matching pending tag. A soft-deleted member with the same id is restored.
func (s *gormStore) CreateMember(ctx context.Context, m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Member
		err := tx.Unscoped().Where("id = ?", m.ID).First(&existing).Error
		switch {
		case err == nil && !existing.DeletedAt.Valid:
			return ErrMemberExists
		case err == nil:
			log.Printf("Restoring previously deleted member %s", m.ID)
			if err := tx.Unscoped().Model(&model.Member{}).Where("id = ?", m.ID).Updates(map[string]any{
				"name":       m.Name,
				"category":   m.Category,
				"boat_class": m.BoatClass,
				"deleted_at": nil,
			}).Error; err != nil {
				return fmt.Errorf("failed to restore member %s: %w", m.ID, err)
			}
			if err := tx.Where("id = ?", m.ID).First(m).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(m).Error; err != nil {
				return fmt.Errorf("failed to create member %s: %w", m.ID, err)
			}
		default:
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "member_id"}},
			DoNothing: true,
		}).Create(&model.PresenceRecord{MemberID: m.ID, Status: model.StatusOut, UpdatedAt: now}).Error; err != nil {
			return fmt.Errorf("failed to create presence record for %s: %w", m.ID, err)
		}

		if err := tx.Where("id = ?", m.ID).Delete(&model.PendingTag{}).Error; err != nil {
			return fmt.Errorf("failed to clear pending tag %s: %w", m.ID, err)
		}
		return nil
	})
}

// EnsureMembers registers every member that has never been registered.
// Soft-deleted members are left deleted.
func (s *gormStore) EnsureMembers(ctx context.Context, members []model.Member) (int, error) {
	created := 0
	for i := range members {
		var count int64
		if err := s.db.WithContext(ctx).Unscoped().Model(&model.Member{}).
			Where("id = ?", members[i].ID).Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}
		if err := s.CreateMember(ctx, &members[i]); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *gormStore) UpdateMember(ctx context.Context, id string, upd MemberUpdate) (*model.Member, error) {
	updates := make(map[string]any)
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Category != nil {
		updates["category"] = nullIfEmpty(*upd.Category)
	}
	if upd.BoatClass != nil {
		updates["boat_class"] = nullIfEmpty(*upd.BoatClass)
	}
	if upd.TotalSeconds != nil {
		updates["total_seconds"] = *upd.TotalSeconds
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	member, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return member, nil
	}

	if err := s.db.WithContext(ctx).Model(member).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update member %s: %w", id, err)
	}
	return s.GetMember(ctx, id)
}

// DeleteMember soft-deletes a member, checking them out first.
func (s *gormStore) DeleteMember(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, rec, err := loadForUpdate(tx, id)
		if err != nil {
			return err
		}
		if rec.Status == model.StatusIn {
			elapsed, _ := CreditFor(rec.CheckedInAt, now, 0)
			if _, err := checkOut(tx, member, rec, now, elapsed, 0, model.ActionForcedOut, model.SourceAdmin); err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", id).Delete(&model.Member{}).Error; err != nil {
			return fmt.Errorf("failed to delete member %s: %w", id, err)
		}
		return tx.Where("id = ?", id).Delete(&model.PendingTag{}).Error
	})
}

// ReassignTag moves a member, their presence, history and subscriptions to a new tag id.
func (s *gormStore) ReassignTag(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Member{}).Where("id = ?", oldID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrMemberNotFound
		}
		if err := tx.Unscoped().Model(&model.Member{}).Where("id = ?", newID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrMemberExists
		}

		steps := []struct {
			table  string
			column string
		}{
			{"members", "id"},
			{"presence_records", "member_id"},
			{"scan_events", "member_id"},
			{"subscription_member_mapping", "member_id"},
		}
		for _, st := range steps {
			if err := tx.Table(st.table).Where(st.column+" = ?", oldID).
				Update(st.column, newID).Error; err != nil {
				return fmt.Errorf("failed to re-key %s: %w", st.table, err)
			}
		}
		return tx.Where("id = ?", newID).Delete(&model.PendingTag{}).Error
	})
}

// --- Queries ---

func (s *gormStore) memberPresence(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("members").
		Select("members.id, members.name, members.category, members.boat_class, members.total_seconds, "+
			"COALESCE(presence_records.status, ?) AS status, presence_records.checked_in_at, presence_records.last_scan_at",
			model.StatusOut).
		Joins("LEFT JOIN presence_records ON presence_records.member_id = members.id").
		Where("members.deleted_at IS NULL")
}

func (s *gormStore) GetPresence(ctx context.Context, id string) (*MemberPresence, error) {
	var rows []MemberPresence
	if err := s.memberPresence(ctx).Where("members.id = ?", id).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrMemberNotFound
	}
	return &rows[0], nil
}

func (s *gormStore) ListMembers(ctx context.Context) ([]MemberPresence, error) {
	var rows []MemberPresence
	if err := s.memberPresence(ctx).Order("members.name").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *gormStore) PresentMembers(ctx context.Context) ([]MemberPresence, error) {
	var rows []MemberPresence
	if err := s.memberPresence(ctx).
		Where("presence_records.status = ?", model.StatusIn).
		Order("presence_records.checked_in_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *gormStore) ListScanEvents(ctx context.Context, memberID string, limit int) ([]model.ScanEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.ScanEvent
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("scanned_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *gormStore) Leaderboard(ctx context.Context, limit int) (*Leaderboard, error) {
	if limit <= 0 {
		limit = 10
	}
	db := s.db.WithContext(ctx)
	board := &Leaderboard{}

	if err := db.Model(&model.Member{}).
		Select("boat_class, COALESCE(SUM(total_seconds), 0) AS total_seconds, COUNT(*) AS member_count").
		Where("boat_class IS NOT NULL AND boat_class <> ''").
		Group("boat_class").
		Order("SUM(total_seconds) DESC").
		Scan(&board.BoatClasses).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate boat classes: %w", err)
	}

	var top []model.Member
	if err := db.Where("total_seconds > 0").
		Order("total_seconds DESC, name").
		Limit(limit).
		Find(&top).Error; err != nil {
		return nil, fmt.Errorf("failed to rank members: %w", err)
	}
	board.Top = make([]LeaderboardEntry, 0, len(top))
	for _, m := range top {
		board.Top = append(board.Top, LeaderboardEntry{
			ID: m.ID, Name: m.Name, Category: m.Category, BoatClass: m.BoatClass, TotalSeconds: m.TotalSeconds,
		})
	}

	if err := db.Model(&model.Member{}).Select("COALESCE(SUM(total_seconds), 0)").Scan(&board.TotalSeconds).Error; err != nil {
		return nil, fmt.Errorf("failed to total member time: %w", err)
	}
	if err := db.Model(&model.Member{}).Count(&board.MemberCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	return board, nil
}

// --- Pending tags ---

// AddPendingTag records a tag seen in registration mode. It reports false
// when the tag was already pending.
func (s *gormStore) AddPendingTag(ctx context.Context, id string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&model.PendingTag{ID: id, CreatedAt: now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to add pending tag %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) ListPendingTags(ctx context.Context) ([]model.PendingTag, error) {
	var tags []model.PendingTag
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *gormStore) RemovePendingTag(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PendingTag{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// --- Settings ---

func (s *gormStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var setting model.Setting
	err := s.db.WithContext(ctx).Where(&model.Setting{Key: key}).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

func (s *gormStore) SetSetting(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.Setting{Key: key, Value: value}).Error
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
