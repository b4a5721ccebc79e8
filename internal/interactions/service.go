package interactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimsum-app/backend/internal/corpus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrContentNotFound indicates the referenced corpus entry does not exist.
	ErrContentNotFound = errors.New("interactions: content not found")

	errMissingDatabase  = errors.New("interactions: database handle is required")
	errMissingUserID    = errors.New("interactions: user identifier is required")
	errMissingContentID = errors.New("interactions: content identifier is required")
	noOpLogger          = zap.NewNop()
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "interactions.service.new"
	opUpsert     = "interactions.upsert"
	opRecordView = "interactions.record_view"
	opQuery      = "interactions.query"
	opList       = "interactions.list"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ServiceConfig describes the dependencies of the interaction ledger.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service maintains per-(user, content) interaction flags and keeps the
// aggregate counters on corpus entries consistent with them.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the interaction ledger.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Upsert applies a like/bookmark toggle. The prior flag state is read under
// a row lock and the counter deltas derive from that read, so the record
// write and the aggregate adjustment always agree: +1 on false->true, -1 on
// true->false, 0 otherwise. Fields absent from the request keep their
// stored value.
func (s *Service) Upsert(ctx context.Context, userID, contentID string, request UpsertRequest) (Record, error) {
	userID = strings.TrimSpace(userID)
	contentID = strings.TrimSpace(contentID)
	if userID == "" {
		return Record{}, newServiceError(opUpsert, "missing_user_id", errMissingUserID)
	}
	if contentID == "" {
		return Record{}, newServiceError(opUpsert, "missing_content_id", errMissingContentID)
	}

	var updated Record
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := lockEntry(tx, contentID)
		if err != nil {
			return err
		}

		var existing Record
		var existingPtr *Record
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND content_id = ?", userID, contentID).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			existingPtr = nil
		} else if err != nil {
			s.logError(opUpsert, "record_select_failed", err,
				zap.String("user_id", userID),
				zap.String("content_id", contentID))
			return newServiceError(opUpsert, "record_select_failed", err)
		} else {
			existingPtr = &existing
		}

		now := s.clock().UTC()
		next := Record{
			UserID:    userID,
			ContentID: contentID,
			Category:  entry.Category,
			UpdatedAt: now,
		}
		if existingPtr != nil {
			next.IsLiked = existingPtr.IsLiked
			next.IsBookmarked = existingPtr.IsBookmarked
			next.IsViewed = existingPtr.IsViewed
			next.CreatedAt = existingPtr.CreatedAt
		} else {
			next.CreatedAt = now
		}

		likedDelta := toggleDelta(previousFlag(existingPtr, func(r *Record) bool { return r.IsLiked }), request.IsLiked)
		bookmarkDelta := toggleDelta(previousFlag(existingPtr, func(r *Record) bool { return r.IsBookmarked }), request.IsBookmarked)
		if request.IsLiked != nil {
			next.IsLiked = *request.IsLiked
		}
		if request.IsBookmarked != nil {
			next.IsBookmarked = *request.IsBookmarked
		}

		if err := tx.Save(&next).Error; err != nil {
			s.logError(opUpsert, "record_save_failed", err,
				zap.String("user_id", userID),
				zap.String("content_id", contentID))
			return newServiceError(opUpsert, "record_save_failed", err)
		}

		counters := map[string]interface{}{}
		if likedDelta != 0 {
			counters["liked_num"] = gorm.Expr("liked_num + ?", likedDelta)
		}
		if bookmarkDelta != 0 {
			counters["bookmark_num"] = gorm.Expr("bookmark_num + ?", bookmarkDelta)
		}
		if len(counters) > 0 {
			if err := tx.Model(&corpus.Entry{}).
				Where("unique_id = ?", contentID).
				Updates(counters).Error; err != nil {
				s.logError(opUpsert, "counter_update_failed", err,
					zap.String("content_id", contentID))
				return newServiceError(opUpsert, "counter_update_failed", err)
			}
		}

		updated = next
		return nil
	})
	if txErr != nil {
		return Record{}, txErr
	}
	return updated, nil
}

// RecordView bumps the raw hit counter on every call, authenticated or not.
// When the caller is authenticated and has not viewed the entry before, the
// per-user record is additionally marked viewed; repeat views do not retrip
// that branch.
func (s *Service) RecordView(ctx context.Context, contentID, optionalUserID string) (ViewResult, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return ViewResult{}, newServiceError(opRecordView, "missing_content_id", errMissingContentID)
	}
	userID := strings.TrimSpace(optionalUserID)

	var result ViewResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := lockEntry(tx, contentID)
		if err != nil {
			return err
		}

		result = ViewResult{ContentID: contentID, AuthenticatedCall: userID != ""}

		if userID != "" {
			var existing Record
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND content_id = ?", userID, contentID).
				Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				now := s.clock().UTC()
				fresh := Record{
					UserID:    userID,
					ContentID: contentID,
					Category:  entry.Category,
					IsViewed:  true,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := tx.Create(&fresh).Error; err != nil {
					return newServiceError(opRecordView, "record_create_failed", err)
				}
				result.MarkedViewed = true
			case err != nil:
				s.logError(opRecordView, "record_select_failed", err,
					zap.String("user_id", userID),
					zap.String("content_id", contentID))
				return newServiceError(opRecordView, "record_select_failed", err)
			case !existing.IsViewed:
				if err := tx.Model(&Record{}).
					Where("user_id = ? AND content_id = ?", userID, contentID).
					Updates(map[string]interface{}{
						"is_viewed":  true,
						"updated_at": s.clock().UTC(),
					}).Error; err != nil {
					return newServiceError(opRecordView, "record_update_failed", err)
				}
				result.MarkedViewed = true
			}
		}

		if err := tx.Model(&corpus.Entry{}).
			Where("unique_id = ?", contentID).
			Update("view_num", gorm.Expr("view_num + ?", 1)).Error; err != nil {
			s.logError(opRecordView, "counter_update_failed", err,
				zap.String("content_id", contentID))
			return newServiceError(opRecordView, "counter_update_failed", err)
		}
		result.ViewNum = entry.ViewNum + 1
		return nil
	})
	if txErr != nil {
		return ViewResult{}, txErr
	}
	return result, nil
}

// Query returns the caller's current flags for one entry, defaulting to
// all-false when no record exists yet.
func (s *Service) Query(ctx context.Context, userID, contentID string) (Flags, error) {
	userID = strings.TrimSpace(userID)
	contentID = strings.TrimSpace(contentID)
	if userID == "" {
		return Flags{}, newServiceError(opQuery, "missing_user_id", errMissingUserID)
	}
	if contentID == "" {
		return Flags{}, newServiceError(opQuery, "missing_content_id", errMissingContentID)
	}

	var record Record
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Flags{}, nil
	}
	if err != nil {
		s.logError(opQuery, "record_select_failed", err,
			zap.String("user_id", userID),
			zap.String("content_id", contentID))
		return Flags{}, newServiceError(opQuery, "record_select_failed", err)
	}

	createdAt := record.CreatedAt
	updatedAt := record.UpdatedAt
	return Flags{
		IsLiked:      record.IsLiked,
		IsBookmarked: record.IsBookmarked,
		IsViewed:     record.IsViewed,
		CreatedAt:    &createdAt,
		UpdatedAt:    &updatedAt,
	}, nil
}

// List returns one page of the caller's liked or bookmarked entries,
// newest interaction first, optionally filtered by a case-insensitive
// substring of the entry text.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter, page, limit int, search string) (ListPage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ListPage{}, newServiceError(opList, "missing_user_id", errMissingUserID)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	flagColumn := "is_liked"
	if filter == FilterBookmarked {
		flagColumn = "is_bookmarked"
	}

	filtered := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&Record{}).
			Joins("JOIN corpus_entries ON corpus_entries.unique_id = user_corpus_interactions.content_id").
			Where("user_corpus_interactions.user_id = ?", userID).
			Where(fmt.Sprintf("user_corpus_interactions.%s = ?", flagColumn), true)
		if trimmed := strings.TrimSpace(search); trimmed != "" {
			query = query.Where("corpus_entries.data LIKE ?", "%"+trimmed+"%")
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		s.logError(opList, "count_failed", err, zap.String("user_id", userID))
		return ListPage{}, newServiceError(opList, "count_failed", err)
	}

	var records []Record
	if err := filtered().
		Select("user_corpus_interactions.*").
		Order("user_corpus_interactions.updated_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return ListPage{}, newServiceError(opList, "query_failed", err)
	}

	entries, err := s.loadEntries(ctx, records)
	if err != nil {
		s.logError(opList, "entry_load_failed", err, zap.String("user_id", userID))
		return ListPage{}, newServiceError(opList, "entry_load_failed", err)
	}

	items := make([]ListItem, 0, len(records))
	for _, record := range records {
		items = append(items, ListItem{Record: record, Entry: entries[record.ContentID]})
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return ListPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) loadEntries(ctx context.Context, records []Record) (map[string]corpus.Entry, error) {
	if len(records) == 0 {
		return map[string]corpus.Entry{}, nil
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ContentID)
	}
	var entries []corpus.Entry
	if err := s.db.WithContext(ctx).Where("unique_id IN ?", ids).Find(&entries).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]corpus.Entry, len(entries))
	for _, entry := range entries {
		byID[entry.UniqueID] = entry
	}
	return byID, nil
}

// lockEntry loads the referenced corpus entry under a row lock so counter
// adjustments serialize against concurrent writers on the same entry.
func lockEntry(tx *gorm.DB, contentID string) (corpus.Entry, error) {
	var entry corpus.Entry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("unique_id = ?", contentID).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return corpus.Entry{}, ErrContentNotFound
	}
	if err != nil {
		return corpus.Entry{}, fmt.Errorf("interactions: entry select: %w", err)
	}
	return entry, nil
}

// toggleDelta computes the signed aggregate adjustment for one flag
// transition: +1 on false->true, -1 on true->false, 0 otherwise.
func toggleDelta(previous bool, requested *bool) int64 {
	if requested == nil {
		return 0
	}
	switch {
	case *requested && !previous:
		return 1
	case !*requested && previous:
		return -1
	default:
		return 0
	}
}

func previousFlag(record *Record, pick func(*Record) bool) bool {
	if record == nil {
		return false
	}
	return pick(record)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("interaction ledger error", attrs...)
}
