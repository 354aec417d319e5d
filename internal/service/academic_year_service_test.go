package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type academicYearStoreStub struct {
	years     map[string]*models.AcademicYear
	listCalls int
}

func newAcademicYearStoreStub(years ...*models.AcademicYear) *academicYearStoreStub {
	stub := &academicYearStoreStub{years: make(map[string]*models.AcademicYear)}
	for _, year := range years {
		stub.years[year.ID] = year
	}
	return stub
}

func (s *academicYearStoreStub) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error) {
	s.listCalls++
	result := make([]models.AcademicYear, 0, len(s.years))
	for _, year := range s.years {
		if !filter.IncludeArchived && year.Archived {
			continue
		}
		result = append(result, *year)
	}
	return result, nil
}

func (s *academicYearStoreStub) GetByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := s.years[id]; ok {
		copy := *year
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *academicYearStoreStub) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = fmt.Sprintf("year-%d", len(s.years)+1)
	}
	s.years[year.ID] = year
	return nil
}

func (s *academicYearStoreStub) SetCurrent(ctx context.Context, collegeID, yearID string) error {
	target, ok := s.years[yearID]
	if !ok || target.Archived || target.CollegeID != collegeID {
		return sql.ErrNoRows
	}
	for _, year := range s.years {
		if year.CollegeID == collegeID {
			year.IsCurrent = false
		}
	}
	target.IsCurrent = true
	return nil
}

func newYearServiceFixture(years ...*models.AcademicYear) (*AcademicYearService, *academicYearStoreStub, *cacheStub) {
	store := newAcademicYearStoreStub(years...)
	cache := newCacheStub()
	svc := NewAcademicYearService(store, cache, &auditStub{}, nil, AcademicYearServiceConfig{ListCacheTTL: time.Minute})
	return svc, store, cache
}

func TestAcademicYearServiceListUsesCache(t *testing.T) {
	svc, store, _ := newYearServiceFixture(
		&models.AcademicYear{ID: "year-1", CollegeID: "col-1", Name: "2024-25", IsCurrent: true},
	)

	years, err := svc.List(context.Background(), false, adminClaims("col-1"))
	require.NoError(t, err)
	assert.Len(t, years, 1)

	_, err = svc.List(context.Background(), false, adminClaims("col-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)
}

func TestAcademicYearServiceCreateWithCurrentFlag(t *testing.T) {
	svc, store, _ := newYearServiceFixture(
		&models.AcademicYear{ID: "year-1", CollegeID: "col-1", Name: "2024-25", IsCurrent: true},
	)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	year, err := svc.Create(context.Background(), dto.CreateAcademicYearRequest{
		Name:      "2025-26",
		StartDate: start,
		EndDate:   start.AddDate(1, 0, 0),
		IsCurrent: true,
	}, adminClaims("col-1"))
	require.NoError(t, err)
	assert.True(t, year.IsCurrent)
	assert.False(t, store.years["year-1"].IsCurrent)
}

func TestAcademicYearServiceCreateRejectsInvertedDates(t *testing.T) {
	svc, _, _ := newYearServiceFixture()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), dto.CreateAcademicYearRequest{
		Name:      "2025-26",
		StartDate: start,
		EndDate:   start.AddDate(-1, 0, 0),
	}, adminClaims("col-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAcademicYearServiceSetCurrentKeepsOneCurrent(t *testing.T) {
	svc, store, _ := newYearServiceFixture(
		&models.AcademicYear{ID: "year-1", CollegeID: "col-1", Name: "2024-25", IsCurrent: true},
		&models.AcademicYear{ID: "year-2", CollegeID: "col-1", Name: "2025-26"},
	)

	year, err := svc.SetCurrent(context.Background(), "year-2", adminClaims("col-1"))
	require.NoError(t, err)
	assert.True(t, year.IsCurrent)

	currents := 0
	for _, stored := range store.years {
		if stored.IsCurrent {
			currents++
		}
	}
	assert.Equal(t, 1, currents)
}

func TestAcademicYearServiceSetCurrentRejectsArchived(t *testing.T) {
	svc, _, _ := newYearServiceFixture(
		&models.AcademicYear{ID: "year-old", CollegeID: "col-1", Name: "2020-21", Archived: true},
	)

	_, err := svc.SetCurrent(context.Background(), "year-old", adminClaims("col-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrYearArchived.Code, appErrors.FromError(err).Code)
}

func TestAcademicYearServiceSetCurrentTenantMismatch(t *testing.T) {
	svc, _, _ := newYearServiceFixture(
		&models.AcademicYear{ID: "year-1", CollegeID: "col-2", Name: "2024-25"},
	)

	_, err := svc.SetCurrent(context.Background(), "year-1", adminClaims("col-1"))
	assert.ErrorIs(t, err, appErrors.ErrTenantMismatch)
}
