package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

type matrixRequestRepository interface {
	ListPendingByYear(ctx context.Context, year int) ([]models.CourseRequest, error)
	CountForCourse(ctx context.Context, courseID string, year int) (int, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, requests []models.CourseRequest) (int, error)
}

type matrixCourseRepository interface {
	ListActive(ctx context.Context) ([]models.Course, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

type conflictMatrixRepository interface {
	DeleteByYear(ctx context.Context, exec sqlx.ExtContext, year int) (int64, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.ConflictMatrixEntry) error
	UpdateCount(ctx context.Context, exec sqlx.ExtContext, entry *models.ConflictMatrixEntry) error
	FindPair(ctx context.Context, exec sqlx.ExtContext, year int, a, b string) (*models.ConflictMatrixEntry, error)
	ListByYear(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error)
	ListSingleton(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error)
	ListForCourse(ctx context.Context, year int, courseID string) ([]models.ConflictMatrixEntry, error)
	ListAtLeast(ctx context.Context, year, threshold int) ([]models.ConflictMatrixEntry, error)
}

type csvDecoder interface {
	Decode(r io.Reader, out interface{}) error
}

// ConflictMatrixConfig tunes matrix locking.
type ConflictMatrixConfig struct {
	LockTimeout time.Duration
}

// ConflictMatrixService precomputes how many students requested each pair of courses.
type ConflictMatrixService struct {
	requests matrixRequestRepository
	courses  matrixCourseRepository
	matrix   conflictMatrixRepository
	tx       txProvider
	cache    *HeatmapCacheService
	csv      csvDecoder
	locks    keyLocker
	cfg      ConflictMatrixConfig
	logger   *zap.Logger
}

// NewConflictMatrixService constructs the matrix builder.
func NewConflictMatrixService(
	requests matrixRequestRepository,
	courses matrixCourseRepository,
	matrix conflictMatrixRepository,
	tx txProvider,
	cache *HeatmapCacheService,
	csv csvDecoder,
	locks *lock.KeyedMutex,
	cfg ConflictMatrixConfig,
	logger *zap.Logger,
) *ConflictMatrixService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictMatrixService{
		requests: requests,
		courses:  courses,
		matrix:   matrix,
		tx:       tx,
		cache:    cache,
		csv:      csv,
		locks:    newKeyLocker(locks, cfg.LockTimeout),
		cfg:      cfg,
		logger:   logger,
	}
}

// ConflictPercentage is count relative to the larger course's demand, clamped to [0,100].
func ConflictPercentage(count, totalA, totalB int) float64 {
	denominator := totalA
	if totalB > denominator {
		denominator = totalB
	}
	if denominator < 1 {
		denominator = 1
	}
	return clamp(float64(count)/float64(denominator)*100, 0, 100)
}

// GenerateConflictMatrix rebuilds the year's matrix from the request ledger and returns the number of pairs stored.
func (s *ConflictMatrixService) GenerateConflictMatrix(ctx context.Context, year int) (int, error) {
	if year <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "year is required")
	}
	unlock, err := s.locks.acquire(ctx, lock.YearKey(year))
	if err != nil {
		return 0, err
	}
	defer unlock()

	var (
		requests []models.CourseRequest
		courses  []models.Course
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		requests, err = s.requests.ListPendingByYear(gctx, year)
		return err
	})
	g.Go(func() error {
		var err error
		courses, err = s.courses.ListActive(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, appErrors.Internal(err, "failed to load matrix inputs")
	}

	singleton := make(map[string]bool, len(courses))
	for _, course := range courses {
		singleton[course.ID] = course.IsSingleton
	}

	entries := s.buildEntries(year, requests, singleton)

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if _, err := s.matrix.DeleteByYear(ctx, tx, year); err != nil {
			return appErrors.Internal(err, "failed to clear conflict matrix")
		}
		for i := range entries {
			if err := s.matrix.Insert(ctx, tx, &entries[i]); err != nil {
				return appErrors.Internal(err, "failed to store conflict matrix entry")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.cache.Evict(ctx, year)
	s.logger.Info("conflict matrix generated", zap.Int("year", year), zap.Int("pairs", len(entries)), zap.Int("requests", len(requests)))
	return len(entries), nil
}

func (s *ConflictMatrixService) buildEntries(year int, requests []models.CourseRequest, singleton map[string]bool) []models.ConflictMatrixEntry {
	byStudent := make(map[string]map[string]struct{})
	demand := make(map[string]map[string]struct{})
	for _, req := range requests {
		if req.StudentID == "" || req.CourseID == "" {
			s.logger.Warn("skipping course request with incomplete data", zap.String("request_id", req.ID))
			continue
		}
		if byStudent[req.StudentID] == nil {
			byStudent[req.StudentID] = make(map[string]struct{})
		}
		byStudent[req.StudentID][req.CourseID] = struct{}{}
		if demand[req.CourseID] == nil {
			demand[req.CourseID] = make(map[string]struct{})
		}
		demand[req.CourseID][req.StudentID] = struct{}{}
	}

	type pair struct{ a, b string }
	counts := make(map[pair]int)
	for _, courseSet := range byStudent {
		ids := make([]string, 0, len(courseSet))
		for id := range courseSet {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				counts[pair{ids[i], ids[j]}]++
			}
		}
	}

	entries := make([]models.ConflictMatrixEntry, 0, len(counts))
	for p, count := range counts {
		entries = append(entries, models.ConflictMatrixEntry{
			Course1ID:           p.a,
			Course2ID:           p.b,
			ScheduleYear:        year,
			ConflictCount:       count,
			ConflictPercentage:  ConflictPercentage(count, len(demand[p.a]), len(demand[p.b])),
			IsSingletonConflict: singleton[p.a] || singleton[p.b],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Course1ID != entries[j].Course1ID {
			return entries[i].Course1ID < entries[j].Course1ID
		}
		return entries[i].Course2ID < entries[j].Course2ID
	})
	return entries
}

// UpdateConflict adds delta to a pair's count, creating the entry when absent.
// It holds the year lock so it never interleaves with a rebuild of the same year.
func (s *ConflictMatrixService) UpdateConflict(ctx context.Context, year int, courseA, courseB string, delta int) (*models.ConflictMatrixEntry, error) {
	if courseA == "" || courseB == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "both course ids are required")
	}
	if courseA == courseB {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a course cannot conflict with itself")
	}
	unlock, err := s.locks.acquire(ctx, lock.YearKey(year))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *models.ConflictMatrixEntry
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		entry, err := s.matrix.FindPair(ctx, tx, year, courseA, courseB)
		switch {
		case err == nil:
			entry.ConflictCount += delta
			if entry.ConflictCount < 0 {
				entry.ConflictCount = 0
			}
			entry.ConflictPercentage = s.percentageFor(ctx, year, entry)
			if err := s.matrix.UpdateCount(ctx, tx, entry); err != nil {
				return appErrors.Internal(err, "failed to update conflict entry")
			}
		case errors.Is(err, sql.ErrNoRows):
			first, second := models.OrderedPair(courseA, courseB)
			entry = &models.ConflictMatrixEntry{Course1ID: first, Course2ID: second, ScheduleYear: year, ConflictCount: delta}
			if entry.ConflictCount < 0 {
				entry.ConflictCount = 0
			}
			entry.IsSingletonConflict = s.anySingleton(ctx, first, second)
			entry.ConflictPercentage = s.percentageFor(ctx, year, entry)
			if err := s.matrix.Insert(ctx, tx, entry); err != nil {
				return appErrors.Internal(err, "failed to create conflict entry")
			}
		default:
			return appErrors.Internal(err, "failed to load conflict entry")
		}
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Evict(ctx, year)
	return result, nil
}

func (s *ConflictMatrixService) percentageFor(ctx context.Context, year int, entry *models.ConflictMatrixEntry) float64 {
	totalA, errA := s.requests.CountForCourse(ctx, entry.Course1ID, year)
	totalB, errB := s.requests.CountForCourse(ctx, entry.Course2ID, year)
	if errA != nil || errB != nil {
		s.logger.Warn("failed to count course demand", zap.Error(errors.Join(errA, errB)))
		return entry.ConflictPercentage
	}
	return ConflictPercentage(entry.ConflictCount, totalA, totalB)
}

func (s *ConflictMatrixService) anySingleton(ctx context.Context, ids ...string) bool {
	courses, err := s.courses.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load courses for singleton flag", zap.Error(err))
		return false
	}
	for _, course := range courses {
		if course.IsSingleton {
			return true
		}
	}
	return false
}

// GetSingletonConflicts lists entries involving a singleton course.
func (s *ConflictMatrixService) GetSingletonConflicts(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	entries, err := s.matrix.ListSingleton(ctx, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list singleton conflicts")
	}
	return nonNilEntries(entries), nil
}

// GetConflictsForCourse lists entries on either side of courseID.
func (s *ConflictMatrixService) GetConflictsForCourse(ctx context.Context, year int, courseID string) ([]models.ConflictMatrixEntry, error) {
	if courseID == "" {
		return []models.ConflictMatrixEntry{}, nil
	}
	entries, err := s.matrix.ListForCourse(ctx, year, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list course conflicts")
	}
	return nonNilEntries(entries), nil
}

// GetHighConflicts lists entries whose count reaches threshold.
func (s *ConflictMatrixService) GetHighConflicts(ctx context.Context, year, threshold int) ([]models.ConflictMatrixEntry, error) {
	entries, err := s.matrix.ListAtLeast(ctx, year, threshold)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list high conflicts")
	}
	return nonNilEntries(entries), nil
}

// HasConflict reports whether the pair's count reaches threshold.
func (s *ConflictMatrixService) HasConflict(ctx context.Context, year int, courseA, courseB string, threshold int) (bool, error) {
	entry, err := s.findPair(ctx, year, courseA, courseB)
	if err != nil || entry == nil {
		return false, err
	}
	return entry.ConflictCount >= threshold, nil
}

// CalculateConflictPercentage returns the stored percentage for a pair, 0 when absent.
func (s *ConflictMatrixService) CalculateConflictPercentage(ctx context.Context, year int, courseA, courseB string) (float64, error) {
	entry, err := s.findPair(ctx, year, courseA, courseB)
	if err != nil || entry == nil {
		return 0, err
	}
	return entry.ConflictPercentage, nil
}

func (s *ConflictMatrixService) findPair(ctx context.Context, year int, courseA, courseB string) (*models.ConflictMatrixEntry, error) {
	if courseA == "" || courseB == "" || courseA == courseB {
		return nil, nil
	}
	entry, err := s.matrix.FindPair(ctx, nil, year, courseA, courseB)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load conflict entry")
	}
	return entry, nil
}

// GetConflictHeatmap returns a symmetric name-by-name count map. Failures yield an empty map.
func (s *ConflictMatrixService) GetConflictHeatmap(ctx context.Context, year int) map[string]map[string]int {
	if cached, hit := s.cache.Lookup(ctx, year); hit {
		return cached
	}

	entries, err := s.matrix.ListByYear(ctx, year)
	if err != nil {
		s.logger.Error("failed to load conflict matrix", zap.Int("year", year), zap.Error(err))
		return map[string]map[string]int{}
	}
	heatmap := make(Heatmap)
	put := func(a, b string, count int) {
		if heatmap[a] == nil {
			heatmap[a] = make(map[string]int)
		}
		heatmap[a][b] = count
	}
	for _, entry := range entries {
		nameA := firstNonEmpty(entry.Course1Name, entry.Course1ID)
		nameB := firstNonEmpty(entry.Course2Name, entry.Course2ID)
		put(nameA, nameB, entry.ConflictCount)
		put(nameB, nameA, entry.ConflictCount)
	}
	s.cache.Store(ctx, year, heatmap)
	return heatmap
}

// Entries lists every pair of a year.
func (s *ConflictMatrixService) Entries(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	entries, err := s.matrix.ListByYear(ctx, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list conflict matrix")
	}
	return nonNilEntries(entries), nil
}

// ClearConflictMatrix removes every pair of a year.
func (s *ConflictMatrixService) ClearConflictMatrix(ctx context.Context, year int) (int64, error) {
	unlock, err := s.locks.acquire(ctx, lock.YearKey(year))
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed, err := s.matrix.DeleteByYear(ctx, nil, year)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to clear conflict matrix")
	}
	s.cache.Evict(ctx, year)
	return removed, nil
}

// ImportRequests loads ledger rows (student_id, course_id, priority_weight) from CSV.
func (s *ConflictMatrixService) ImportRequests(ctx context.Context, year int, r io.Reader) (int, error) {
	if year <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "year is required")
	}
	if s.csv == nil {
		return 0, appErrors.Clone(appErrors.ErrInternal, "csv decoder missing")
	}
	var rows []models.CourseRequest
	if err := s.csv.Decode(r, &rows); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course request csv")
	}
	valid := make([]models.CourseRequest, 0, len(rows))
	for i, row := range rows {
		if row.StudentID == "" || row.CourseID == "" {
			s.logger.Warn("skipping course request row with incomplete data", zap.Int("row", i+2))
			continue
		}
		row.ScheduleYear = year
		row.Status = models.CourseRequestPending
		valid = append(valid, row)
	}

	var inserted int
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = s.requests.InsertBatch(ctx, tx, valid)
		if err != nil {
			return appErrors.Internal(err, "failed to import course requests")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("course requests imported", zap.Int("year", year), zap.Int("rows", len(rows)), zap.Int("inserted", inserted))
	return inserted, nil
}

func nonNilEntries(entries []models.ConflictMatrixEntry) []models.ConflictMatrixEntry {
	if entries == nil {
		return []models.ConflictMatrixEntry{}
	}
	return entries
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
