package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/middleware"
	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
	"github.com/svnapro/campus-api/pkg/response"
)

type migrationServiceMock struct {
	previewResp  *dto.MigrationPreviewResponse
	previewCache bool
	previewErr   error
	promoteResp  *dto.PromoteStudentsResponse
	promoteErr   error
	archiveResp  *dto.ArchiveResponse
	archiveErr   error
	listResp     []models.Migration
	listQuery    dto.MigrationQuery
	getResp      *models.Migration
	getErr       error
	rollbackResp *models.Migration
	rollbackErr  error
}

func (m *migrationServiceMock) Preview(ctx context.Context, req dto.PreviewMigrationRequest, actor *models.JWTClaims) (*dto.MigrationPreviewResponse, bool, error) {
	return m.previewResp, m.previewCache, m.previewErr
}

func (m *migrationServiceMock) Promote(ctx context.Context, req dto.PromoteStudentsRequest, actor *models.JWTClaims) (*dto.PromoteStudentsResponse, error) {
	return m.promoteResp, m.promoteErr
}

func (m *migrationServiceMock) Archive(ctx context.Context, req dto.ArchiveRequest, actor *models.JWTClaims) (*dto.ArchiveResponse, error) {
	return m.archiveResp, m.archiveErr
}

func (m *migrationServiceMock) List(ctx context.Context, query dto.MigrationQuery, actor *models.JWTClaims) ([]models.Migration, *models.Pagination, error) {
	m.listQuery = query
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *migrationServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Migration, error) {
	return m.getResp, m.getErr
}

func (m *migrationServiceMock) Rollback(ctx context.Context, id string, actor *models.JWTClaims) (*models.Migration, error) {
	return m.rollbackResp, m.rollbackErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func adminContext(c *gin.Context) {
	collegeID := "col-1"
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin, CollegeID: &collegeID})
}

func TestMigrationHandlerPreview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &migrationServiceMock{
		previewResp:  &dto.MigrationPreviewResponse{StudentsToPromote: 12, SectionsToArchive: 3},
		previewCache: true,
	}
	handler := NewMigrationHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.PreviewMigrationRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
	})
	c, w := newGinContext(http.MethodPost, "/migrations/preview", payload)
	adminContext(c)

	handler.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Meta)
	require.Equal(t, true, envelope.Meta["cached"])
}

func TestMigrationHandlerPreviewBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMigrationHandler(&migrationServiceMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/migrations/preview", []byte("{not json"))
	adminContext(c)

	handler.Preview(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMigrationHandlerPromote(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &migrationServiceMock{
		promoteResp: &dto.PromoteStudentsResponse{
			MigrationID:      "mig-1",
			Status:           models.MigrationStatusCompleted,
			StudentsPromoted: 40,
		},
	}
	handler := NewMigrationHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
		AutoApprove:    true,
	})
	c, w := newGinContext(http.MethodPost, "/students/promote", payload)
	adminContext(c)

	handler.Promote(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMigrationHandlerPromoteConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &migrationServiceMock{promoteErr: appErrors.ErrMigrationRunning}
	handler := NewMigrationHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.PromoteStudentsRequest{
		AcademicYearID: "year-2",
		CollegeID:      "col-1",
		PromotionRules: []dto.PromotionRule{{FromYear: "1", ToYear: "2"}},
	})
	c, w := newGinContext(http.MethodPost, "/students/promote", payload)
	adminContext(c)

	handler.Promote(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrMigrationRunning.Code, envelope.Error.Code)
}

func TestMigrationHandlerArchive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &migrationServiceMock{
		archiveResp: &dto.ArchiveResponse{
			MigrationID:      "mig-2",
			Status:           models.MigrationStatusCompleted,
			SectionsArchived: 5,
		},
	}
	handler := NewMigrationHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.ArchiveRequest{
		FromAcademicYearID: "year-1",
		ToAcademicYearID:   "year-2",
		CollegeID:          "col-1",
		ArchiveSections:    true,
	})
	c, w := newGinContext(http.MethodPost, "/academic-years/archive", payload)
	adminContext(c)

	handler.Archive(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMigrationHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &migrationServiceMock{
		listResp: []models.Migration{{ID: "mig-1", Status: models.MigrationStatusCompleted}},
	}
	handler := NewMigrationHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodGet, "/migrations?status=completed,failed&type=year_promotion&page=2&page_size=10", nil)
	adminContext(c)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.MigrationStatus{models.MigrationStatusCompleted, models.MigrationStatusFailed}, mockSvc.listQuery.Status)
	require.Equal(t, models.MigrationTypeYearPromotion, mockSvc.listQuery.Type)
	require.Equal(t, 2, mockSvc.listQuery.Page)
	require.Equal(t, 10, mockSvc.listQuery.PageSize)
}

func TestMigrationHandlerRollbackUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &migrationServiceMock{rollbackErr: appErrors.ErrRollbackUnavailable}
	handler := NewMigrationHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/migrations/mig-1/rollback", nil)
	c.Params = gin.Params{{Key: "id", Value: "mig-1"}}
	adminContext(c)

	handler.Rollback(c)
	require.Equal(t, http.StatusConflict, w.Code)
}
