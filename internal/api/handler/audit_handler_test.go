package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/practiceledger-recon/internal/domain/audit"
)

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) GetRecord(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *MockAuditService) ListRecords(ctx context.Context, limit int) ([]*audit.Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func TestAuditHandler_List(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("DefaultLimit", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(logger, mockService)

		records := []*audit.Record{{ID: uuid.New(), Operation: audit.OperationInvoiceCleanup}}
		mockService.On("ListRecords", mock.Anything, 20).Return(records, nil)

		router := setupTestRouter()
		router.GET("/audit", handler.List)

		req, _ := http.NewRequest(http.MethodGet, "/audit", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("ExplicitLimit", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(logger, mockService)

		mockService.On("ListRecords", mock.Anything, 5).Return([]*audit.Record{}, nil)

		router := setupTestRouter()
		router.GET("/audit", handler.List)

		req, _ := http.NewRequest(http.MethodGet, "/audit?limit=5", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("LimitOutOfRange", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(logger, mockService)

		router := setupTestRouter()
		router.GET("/audit", handler.List)

		req, _ := http.NewRequest(http.MethodGet, "/audit?limit=500", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "ListRecords", mock.Anything, mock.Anything)
	})
}

func TestAuditHandler_GetByID(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Found", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(logger, mockService)

		recordID := uuid.New()
		record := &audit.Record{ID: recordID, Operation: audit.OperationReconciliationApply, Succeeded: 3}
		mockService.On("GetRecord", mock.Anything, recordID).Return(record, nil)

		router := setupTestRouter()
		router.GET("/audit/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/audit/"+recordID.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var response Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Nil(t, response.Error)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(logger, mockService)

		recordID := uuid.New()
		mockService.On("GetRecord", mock.Anything, recordID).Return(nil, nil)

		router := setupTestRouter()
		router.GET("/audit/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/audit/"+recordID.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(logger, mockService)

		router := setupTestRouter()
		router.GET("/audit/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/audit/not-a-uuid", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "GetRecord", mock.Anything, mock.Anything)
	})
}
