package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/parse"
	"presence-tracker-backend/internal/store"
)

const registrationModeKey = "registration_mode"

// Engine turns tag reads into presence transitions.
type Engine struct {
	store     store.Store
	debounce  time.Duration
	maxCredit time.Duration
	now       func() time.Time
	notifier  Notifier

	// recent holds the time of the last accepted read per identifier.
	recent     *cache.Cache
	debounceMu sync.Mutex

	mode atomic.Int32

	lastMu sync.RWMutex
	last   *Result
}

// NewEngine creates a presence engine backed by the given store.
func NewEngine(cfg *config.PresenceConfig, s store.Store) *Engine {
	window := cfg.Debounce
	cleanup := 10 * time.Minute
	if window > 0 && window*2 < cleanup {
		cleanup = window * 2
	}
	return &Engine{
		store:     s,
		debounce:  window,
		maxCredit: cfg.MaxCredit,
		now:       time.Now,
		recent:    cache.New(window, cleanup),
	}
}

// SetNotifier registers the receiver of check-in notifications.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// RecordScan applies one read. Debounced, unknown and pending reads are
// outcomes, not errors; only persistence failures return an error, wrapped
// with ErrStoreUnavailable.
func (e *Engine) RecordScan(ctx context.Context, scan Scan) (Result, error) {
	id := strings.TrimSpace(scan.Identifier)
	if id == "" {
		return Result{}, ErrEmptyIdentifier
	}
	if scan.Source == "" {
		scan.Source = model.SourceRFID
	}

	now := e.now().UTC()
	res := Result{Identifier: id, At: now}

	if !e.accept(id, now) {
		res.Outcome = OutcomeDebounced
		return res, nil
	}

	if scan.Mode == ModeRegistration {
		res, err := e.capture(ctx, res)
		if err != nil {
			e.recent.Delete(id)
			return res, err
		}
		e.remember(res)
		return res, nil
	}

	tr, err := e.store.TogglePresence(ctx, id, now, e.maxCredit, scan.Source)
	if errors.Is(err, store.ErrMemberNotFound) {
		log.Printf("Unknown tag: %s", id)
		res.Outcome = OutcomeUnknown
		e.remember(res)
		return res, nil
	}
	if err != nil {
		e.recent.Delete(id)
		return res, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	res = fromTransition(id, tr)
	if res.Outcome == OutcomeCheckedIn {
		log.Printf("%s checked IN", tr.Name)
		if e.notifier != nil {
			e.notifier.NotifyCheckIn(tr.MemberID)
		}
	} else {
		log.Printf("%s checked OUT after %s (credited %ds)", tr.Name, parse.FormatDuration(tr.Elapsed), res.CreditedSeconds)
	}
	e.remember(res)
	return res, nil
}

// accept reports whether the read falls outside the debounce window of the
// previous accepted read of the same identifier, and arms the window if so.
func (e *Engine) accept(id string, now time.Time) bool {
	if e.debounce <= 0 {
		return true
	}

	e.debounceMu.Lock()
	defer e.debounceMu.Unlock()

	if v, found := e.recent.Get(id); found {
		if last, ok := v.(time.Time); ok && now.Sub(last) < e.debounce && !now.Before(last) {
			return false
		}
	}
	e.recent.Set(id, now, e.debounce)
	return true
}

func (e *Engine) capture(ctx context.Context, res Result) (Result, error) {
	res.Outcome = OutcomePending

	member, err := e.store.GetMember(ctx, res.Identifier)
	if err == nil {
		log.Printf("Registration mode: tag %s already belongs to %s", res.Identifier, member.Name)
		res.MemberID = member.ID
		res.Name = member.Name
		return res, nil
	}
	if !errors.Is(err, store.ErrMemberNotFound) {
		return res, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	added, err := e.store.AddPendingTag(ctx, res.Identifier, res.At)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if added {
		log.Printf("Registration mode: captured pending tag %s", res.Identifier)
	}
	return res, nil
}

// ForceCheckout checks a present member out without crediting time.
func (e *Engine) ForceCheckout(ctx context.Context, memberID string) (Result, error) {
	tr, err := e.store.CheckOut(ctx, memberID, e.now().UTC(), model.SourceAdmin)
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) || errors.Is(err, store.ErrNotPresent) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	log.Printf("%s was checked out by an admin", tr.Name)
	res := fromTransition(memberID, tr)
	e.remember(res)
	return res, nil
}

// PresentMembers lists checked-in members, most recent arrival first.
func (e *Engine) PresentMembers(ctx context.Context) ([]PresentMember, error) {
	rows, err := e.store.PresentMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	now := e.now().UTC()
	members := make([]PresentMember, 0, len(rows))
	for _, row := range rows {
		pm := PresentMember{MemberPresence: row, DurationText: "just arrived"}
		if row.CheckedInAt != nil {
			d := now.Sub(*row.CheckedInAt)
			if d < 0 {
				d = 0
			}
			pm.DurationSeconds = d.Seconds()
			pm.DurationText = parse.FormatDuration(d)
		}
		members = append(members, pm)
	}
	return members, nil
}

// LoadMode restores the persisted registration mode.
func (e *Engine) LoadMode(ctx context.Context) error {
	v, ok, err := e.store.GetSetting(ctx, registrationModeKey)
	if err != nil {
		return err
	}
	if ok && v == "1" {
		e.mode.Store(int32(ModeRegistration))
	} else {
		e.mode.Store(int32(ModeAttendance))
	}
	return nil
}

// Mode returns the mode new reads should be recorded in.
func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

func (e *Engine) EnterRegistrationMode(ctx context.Context) error {
	return e.setMode(ctx, ModeRegistration)
}

func (e *Engine) ExitRegistrationMode(ctx context.Context) error {
	return e.setMode(ctx, ModeAttendance)
}

func (e *Engine) setMode(ctx context.Context, m Mode) error {
	value := "0"
	if m == ModeRegistration {
		value = "1"
	}
	if err := e.store.SetSetting(ctx, registrationModeKey, value); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	e.mode.Store(int32(m))
	log.Printf("Scanner switched to %s mode", m)
	return nil
}

// LastScan returns the most recent non-debounced read.
func (e *Engine) LastScan() (Result, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.last == nil {
		return Result{}, false
	}
	return *e.last, true
}

func (e *Engine) remember(res Result) {
	e.lastMu.Lock()
	e.last = &res
	e.lastMu.Unlock()
}

func fromTransition(id string, tr *store.Transition) Result {
	res := Result{
		Outcome:         OutcomeCheckedOut,
		Identifier:      id,
		MemberID:        tr.MemberID,
		Name:            tr.Name,
		Status:          tr.Status,
		Forced:          tr.Forced,
		CreditedSeconds: int64(tr.Credited / time.Second),
		TotalHours:      parse.Hours(tr.TotalSeconds),
		At:              tr.At,
	}
	if tr.Status == model.StatusIn {
		res.Outcome = OutcomeCheckedIn
	}
	return res
}
