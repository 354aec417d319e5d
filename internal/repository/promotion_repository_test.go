package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svnapro/campus-api/internal/models"
)

func TestPromotionRepositoryCreateBulk(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO promotion_requests`).
		WithArgs(sqlmock.AnyArg(), "stu-1", "col-1", "1", "2", false, models.PromotionStatusPending, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO promotion_requests`).
		WithArgs(sqlmock.AnyArg(), "stu-2", "col-1", "1", "2", false, models.PromotionStatusPending, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CreateBulk(context.Background(), []models.PromotionRequest{
		{StudentID: "stu-1", CollegeID: "col-1", FromYear: "1", ToYear: "2"},
		{StudentID: "stu-2", CollegeID: "col-1", FromYear: "1", ToYear: "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryReviewOnlyPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	mock.ExpectExec(`UPDATE promotion_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Review(context.Background(), ReviewParams{
		ID:         "req-1",
		Status:     models.PromotionStatusRejected,
		ReviewedBy: "admin",
		ReviewedAt: time.Now(),
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryListByStudentAndStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "college_id", "from_year", "to_year", "fee_paid", "fee_amount",
		"payment_reference", "status", "rejection_reason", "notes", "requested_at", "reviewed_by", "reviewed_at", "promoted_at",
	}).AddRow("req-1", "stu-1", "col-1", "1", "2", true, 1500.0, "pay-1", models.PromotionStatusPending, nil, nil, now, nil, nil, nil)

	mock.ExpectQuery(`FROM promotion_requests WHERE student_id = \$1 AND status IN \(\$2\) ORDER BY requested_at DESC`).
		WithArgs("stu-1", models.PromotionStatusPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM promotion_requests WHERE student_id = $1 AND status IN ($2)")).
		WithArgs("stu-1", models.PromotionStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.PromotionFilter{
		StudentID: "stu-1",
		Status:    []models.PromotionStatus{models.PromotionStatusPending},
	})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.True(t, requests[0].FeePaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
