package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryPromoteByRules(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, study_year, academic_year_id FROM students`).
		WithArgs("col-1", "1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "study_year", "academic_year_id"}).
			AddRow("stu-1", "1", "year-1").
			AddRow("stu-2", "1", "year-1"))
	mock.ExpectExec(`UPDATE students SET study_year = \$1, academic_year_id = \$2, updated_at = \$3 WHERE id IN \(\$4, \$5\)`).
		WithArgs("2", "year-2", sqlmock.AnyArg(), "stu-1", "stu-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO student_migration_logs`).
		WithArgs(sqlmock.AnyArg(), "mig-1", "stu-1", "1", "2", "year-1", "year-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO student_migration_logs`).
		WithArgs(sqlmock.AnyArg(), "mig-1", "stu-2", "1", "2", "year-1", "year-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	promoted, err := repo.PromoteByRules(context.Background(), "mig-1", "col-1", "year-2",
		[]PromoteRule{{FromYear: "1", ToYear: "2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryPromoteByRulesSkipsEmptyRule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, study_year, academic_year_id FROM students`).
		WithArgs("col-1", "4").
		WillReturnRows(sqlmock.NewRows([]string{"id", "study_year", "academic_year_id"}))
	mock.ExpectCommit()

	promoted, err := repo.PromoteByRules(context.Background(), "mig-1", "col-1", "year-2",
		[]PromoteRule{{FromYear: "4", ToYear: "5"}})
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRollbackMigration(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(`UPDATE students AS s`).
		WithArgs("mig-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	reverted, err := repo.RollbackMigration(context.Background(), "mig-1")
	require.NoError(t, err)
	assert.Equal(t, 7, reverted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryApplyPromotionInactiveStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(`UPDATE students SET study_year = \$2`).
		WithArgs("stu-1", "2", "year-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyPromotion(context.Background(), "stu-1", "2", "year-2")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
