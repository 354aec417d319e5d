package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	"github.com/svnapro/campus-api/internal/repository"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type migrationStoreStub struct {
	migrations map[string]*models.Migration
	active     bool
	failNotes  string
}

func newMigrationStoreStub() *migrationStoreStub {
	return &migrationStoreStub{migrations: make(map[string]*models.Migration)}
}

func (s *migrationStoreStub) Create(ctx context.Context, migration *models.Migration) error {
	if migration.ID == "" {
		migration.ID = fmt.Sprintf("mig-%d", len(s.migrations)+1)
	}
	migration.Status = models.MigrationStatusPending
	s.migrations[migration.ID] = migration
	return nil
}

func (s *migrationStoreStub) GetByID(ctx context.Context, id string) (*models.Migration, error) {
	if migration, ok := s.migrations[id]; ok {
		copy := *migration
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *migrationStoreStub) List(ctx context.Context, filter models.MigrationFilter) ([]models.Migration, int, error) {
	result := make([]models.Migration, 0, len(s.migrations))
	for _, migration := range s.migrations {
		result = append(result, *migration)
	}
	return result, len(result), nil
}

func (s *migrationStoreStub) HasActive(ctx context.Context, collegeID string) (bool, error) {
	return s.active, nil
}

func (s *migrationStoreStub) MarkInProgress(ctx context.Context, id string, startedAt time.Time) error {
	migration, ok := s.migrations[id]
	if !ok || migration.Status != models.MigrationStatusPending {
		return sql.ErrNoRows
	}
	migration.Status = models.MigrationStatusInProgress
	migration.StartedAt = &startedAt
	return nil
}

func (s *migrationStoreStub) Complete(ctx context.Context, params repository.CompleteParams) error {
	migration, ok := s.migrations[params.ID]
	if !ok || migration.Status != models.MigrationStatusInProgress {
		return sql.ErrNoRows
	}
	migration.Status = models.MigrationStatusCompleted
	migration.StudentsPromoted = params.StudentsPromoted
	migration.SectionsArchived = params.SectionsArchived
	migration.SubjectsArchived = params.SubjectsArchived
	migration.AssignmentsCleared = params.AssignmentsCleared
	migration.CanRollback = params.CanRollback
	migration.CompletedAt = &params.CompletedAt
	return nil
}

func (s *migrationStoreStub) Fail(ctx context.Context, id, notes string, failedAt time.Time) error {
	migration, ok := s.migrations[id]
	if !ok {
		return sql.ErrNoRows
	}
	migration.Status = models.MigrationStatusFailed
	s.failNotes = notes
	return nil
}

func (s *migrationStoreStub) DisableRollback(ctx context.Context, id, notes string) error {
	migration, ok := s.migrations[id]
	if !ok || !migration.CanRollback || migration.Status != models.MigrationStatusCompleted {
		return sql.ErrNoRows
	}
	migration.CanRollback = false
	return nil
}

type yearStoreStub struct {
	years   map[string]*models.AcademicYear
	current *models.AcademicYear
}

func newYearStoreStub(years ...*models.AcademicYear) *yearStoreStub {
	stub := &yearStoreStub{years: make(map[string]*models.AcademicYear)}
	for _, year := range years {
		stub.years[year.ID] = year
		if year.IsCurrent {
			stub.current = year
		}
	}
	return stub
}

func (s *yearStoreStub) GetByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := s.years[id]; ok {
		copy := *year
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *yearStoreStub) CurrentForCollege(ctx context.Context, collegeID string) (*models.AcademicYear, error) {
	if s.current == nil {
		return nil, sql.ErrNoRows
	}
	copy := *s.current
	return &copy, nil
}

func (s *yearStoreStub) MarkArchived(ctx context.Context, id string) error {
	if year, ok := s.years[id]; ok {
		year.Archived = true
		year.IsCurrent = false
		return nil
	}
	return sql.ErrNoRows
}

type studentStoreStub struct {
	byYear      []models.YearCount
	bySection   []models.SectionCount
	promotable  map[string][]models.Student
	promoted    int
	promoteErr  error
	reverted    int
	rollbackIDs []string
}

func (s *studentStoreStub) CountByStudyYear(ctx context.Context, collegeID, academicYearID string) ([]models.YearCount, error) {
	return s.byYear, nil
}

func (s *studentStoreStub) CountBySection(ctx context.Context, collegeID, academicYearID string) ([]models.SectionCount, error) {
	return s.bySection, nil
}

func (s *studentStoreStub) ListPromotable(ctx context.Context, collegeID, studyYear string) ([]models.Student, error) {
	return s.promotable[studyYear], nil
}

func (s *studentStoreStub) PromoteByRules(ctx context.Context, migrationID, collegeID, targetYearID string, rules []repository.PromoteRule) (int, error) {
	if s.promoteErr != nil {
		return 0, s.promoteErr
	}
	return s.promoted, nil
}

func (s *studentStoreStub) RollbackMigration(ctx context.Context, migrationID string) (int, error) {
	s.rollbackIDs = append(s.rollbackIDs, migrationID)
	return s.reverted, nil
}

type archiveStoreStub struct {
	counts models.ArchivePreviewCounts
}

func (s *archiveStoreStub) PreviewCounts(ctx context.Context, collegeID, academicYearID string) (*models.ArchivePreviewCounts, error) {
	copy := s.counts
	return &copy, nil
}

func (s *archiveStoreStub) ArchiveSections(ctx context.Context, collegeID, academicYearID string) (int, error) {
	return s.counts.Sections, nil
}

func (s *archiveStoreStub) ArchiveSubjects(ctx context.Context, collegeID, academicYearID string) (int, error) {
	return s.counts.Subjects, nil
}

func (s *archiveStoreStub) ClearAssignments(ctx context.Context, collegeID, academicYearID string) (int, error) {
	return s.counts.Assignments, nil
}

type requestWriterStub struct {
	created []models.PromotionRequest
}

func (s *requestWriterStub) CreateBulk(ctx context.Context, requests []models.PromotionRequest) (int, error) {
	s.created = append(s.created, requests...)
	return len(requests), nil
}

type cacheStub struct {
	entries map[string][]byte
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries[key] = raw
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.entries = make(map[string][]byte)
	return nil
}

type auditStub struct {
	logs []models.AuditLog
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

type migrationFixture struct {
	svc        *MigrationService
	migrations *migrationStoreStub
	years      *yearStoreStub
	students   *studentStoreStub
	requests   *requestWriterStub
	cache      *cacheStub
	audit      *auditStub
}

func newMigrationFixture(years ...*models.AcademicYear) *migrationFixture {
	f := &migrationFixture{
		migrations: newMigrationStoreStub(),
		years:      newYearStoreStub(years...),
		students:   &studentStoreStub{},
		requests:   &requestWriterStub{},
		cache:      newCacheStub(),
		audit:      &auditStub{},
	}
	f.svc = NewMigrationService(MigrationServiceParams{
		Migrations: f.migrations,
		Years:      f.years,
		Students:   f.students,
		Archives:   &archiveStoreStub{counts: models.ArchivePreviewCounts{Sections: 3, Subjects: 5, Assignments: 8}},
		Requests:   f.requests,
		Cache:      f.cache,
		Audit:      f.audit,
	})
	return f
}

func adminClaims(collegeID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, CollegeID: &collegeID}
}

func testYears() (*models.AcademicYear, *models.AcademicYear) {
	from := &models.AcademicYear{ID: "year-1", CollegeID: "col-1", Name: "2024-25", IsCurrent: true}
	to := &models.AcademicYear{ID: "year-2", CollegeID: "col-1", Name: "2025-26"}
	return from, to
}

func TestMigrationServicePreviewAggregatesCounts(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.students.byYear = []models.YearCount{{StudyYear: "1", Count: 40}, {StudyYear: "2", Count: 35}}
	f.students.bySection = []models.SectionCount{{SectionID: "sec-1", SectionName: "CSE-A", Count: 40}}

	preview, cached, err := f.svc.Preview(context.Background(), dto.PreviewMigrationRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
	}, adminClaims("col-1"))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 75, preview.StudentsToPromote)
	assert.Equal(t, 3, preview.SectionsToArchive)
	assert.Equal(t, 8, preview.AssignmentsToClear)

	// Second call is served from cache.
	_, cached, err = f.svc.Preview(context.Background(), dto.PreviewMigrationRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
	}, adminClaims("col-1"))
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestMigrationServicePreviewRejectsSameYear(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)

	_, _, err := f.svc.Preview(context.Background(), dto.PreviewMigrationRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-1",
		CollegeID:          "col-1",
	}, adminClaims("col-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMigrationServicePreviewTenantMismatch(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)

	_, _, err := f.svc.Preview(context.Background(), dto.PreviewMigrationRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
	}, adminClaims("col-2"))
	assert.ErrorIs(t, err, appErrors.ErrTenantMismatch)
}

func TestMigrationServicePromoteRejectsConcurrentRun(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.migrations.active = true

	_, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    true,
	}, adminClaims("col-1"))
	assert.ErrorIs(t, err, appErrors.ErrMigrationRunning)
}

func TestMigrationServicePromoteAutoApprove(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.students.promoted = 72

	result, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}, {FromYear: "2", ToYear: "3"}},
		AutoApprove:    true,
	}, adminClaims("col-1"))
	require.NoError(t, err)
	assert.Equal(t, models.MigrationStatusCompleted, result.Status)
	assert.Equal(t, 72, result.StudentsPromoted)
	assert.Zero(t, result.RequestsCreated)

	stored := f.migrations.migrations[result.MigrationID]
	require.NotNil(t, stored)
	assert.Equal(t, models.MigrationStatusCompleted, stored.Status)
	assert.True(t, stored.CanRollback)
	require.NotNil(t, stored.FromAcademicYearID)
	assert.Equal(t, "year-1", *stored.FromAcademicYearID)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionMigrationPromote, f.audit.logs[0].Action)
}

func TestMigrationServicePromoteWithoutAutoApproveCreatesRequests(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.students.promotable = map[string][]models.Student{
		"1": {{ID: "stu-1", CollegeID: "col-1", StudyYear: "1"}, {ID: "stu-2", CollegeID: "col-1", StudyYear: "1"}},
	}

	result, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    false,
	}, adminClaims("col-1"))
	require.NoError(t, err)
	assert.Zero(t, result.StudentsPromoted)
	assert.Equal(t, 2, result.RequestsCreated)
	require.Len(t, f.requests.created, 2)
	assert.Equal(t, models.PromotionStatusPending, f.requests.created[0].Status)

	stored := f.migrations.migrations[result.MigrationID]
	assert.False(t, stored.CanRollback)
}

func TestMigrationServicePromoteFailureMarksFailed(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.students.promoteErr = errors.New("deadlock detected")

	_, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    true,
	}, adminClaims("col-1"))
	require.Error(t, err)

	require.Len(t, f.migrations.migrations, 1)
	for _, migration := range f.migrations.migrations {
		assert.Equal(t, models.MigrationStatusFailed, migration.Status)
	}
	assert.Contains(t, f.migrations.failNotes, "deadlock")
}

func TestMigrationServicePromoteRejectsArchivedTarget(t *testing.T) {
	from, to := testYears()
	to.Archived = true
	f := newMigrationFixture(from, to)

	_, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    true,
	}, adminClaims("col-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrYearArchived.Code, appErrors.FromError(err).Code)
}

func TestMigrationServiceArchive(t *testing.T) {
	from, to := testYears()
	from.IsCurrent = false
	to.IsCurrent = true
	f := newMigrationFixture(from, to)

	result, err := f.svc.Archive(context.Background(), dto.ArchiveRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
		ArchiveSections:    true,
		ArchiveSubjects:    true,
		ArchiveAssignments: true,
	}, adminClaims("col-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.SectionsArchived)
	assert.Equal(t, 5, result.SubjectsArchived)
	assert.Equal(t, 8, result.AssignmentsCleared)
	assert.True(t, f.years.years["year-1"].Archived)
}

func TestMigrationServiceArchiveRejectsCurrentYear(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)

	_, err := f.svc.Archive(context.Background(), dto.ArchiveRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
		ArchiveSections:    true,
	}, adminClaims("col-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestMigrationServiceRollback(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.students.promoted = 10
	f.students.reverted = 10

	result, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    true,
	}, adminClaims("col-1"))
	require.NoError(t, err)

	migration, err := f.svc.Rollback(context.Background(), result.MigrationID, adminClaims("col-1"))
	require.NoError(t, err)
	assert.False(t, migration.CanRollback)
	assert.Equal(t, []string{result.MigrationID}, f.students.rollbackIDs)

	// A second rollback of the same run is refused.
	_, err = f.svc.Rollback(context.Background(), result.MigrationID, adminClaims("col-1"))
	assert.ErrorIs(t, err, appErrors.ErrRollbackUnavailable)
}

func TestMigrationServiceRollbackUnavailableForRequestRuns(t *testing.T) {
	from, to := testYears()
	f := newMigrationFixture(from, to)
	f.students.promotable = map[string][]models.Student{"1": {{ID: "stu-1"}}}

	result, err := f.svc.Promote(context.Background(), dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    false,
	}, adminClaims("col-1"))
	require.NoError(t, err)

	_, err = f.svc.Rollback(context.Background(), result.MigrationID, adminClaims("col-1"))
	assert.ErrorIs(t, err, appErrors.ErrRollbackUnavailable)
}
