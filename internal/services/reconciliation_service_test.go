package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gstrecon/internal/caching"
	"gstrecon/internal/models"
	"gstrecon/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockGSTR2ARepo struct {
	mock.Mock
}

func (m *mockGSTR2ARepo) ReplaceSections(ctx context.Context, userID uuid.UUID, period string, sections []models.GSTR2ASection) error {
	args := m.Called(ctx, userID, period, sections)
	return args.Error(0)
}

func (m *mockGSTR2ARepo) ListSections(ctx context.Context, userID uuid.UUID, period string) ([]models.GSTR2ASection, error) {
	args := m.Called(ctx, userID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GSTR2ASection), args.Error(1)
}

func (m *mockGSTR2ARepo) CountInvoices(ctx context.Context, userID uuid.UUID, period string) (int, error) {
	args := m.Called(ctx, userID, period)
	return args.Int(0), args.Error(1)
}

func (m *mockGSTR2ARepo) ListUnreconciledPeriods(ctx context.Context) ([]repositories.StagedPeriod, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.StagedPeriod), args.Error(1)
}

type mockPurchaseRepo struct {
	mock.Mock
}

func (m *mockPurchaseRepo) Create(ctx context.Context, invoice *models.PurchaseInvoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *mockPurchaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseInvoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PurchaseInvoice), args.Error(1)
}

func (m *mockPurchaseRepo) ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.PurchaseInvoice, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PurchaseInvoice), args.Error(1)
}

func (m *mockPurchaseRepo) ListByVendor(ctx context.Context, userID uuid.UUID, vendorGSTIN string) ([]models.PurchaseInvoice, error) {
	args := m.Called(ctx, userID, vendorGSTIN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PurchaseInvoice), args.Error(1)
}

type mockReconRepo struct {
	mock.Mock
}

func (m *mockReconRepo) SaveRun(ctx context.Context, result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) error {
	args := m.Called(ctx, result, survey)
	return args.Error(0)
}

func (m *mockReconRepo) LatestRun(ctx context.Context, userID uuid.UUID, period string) (*repositories.ReconRun, error) {
	args := m.Called(ctx, userID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ReconRun), args.Error(1)
}

func (m *mockReconRepo) ListRecentRuns(ctx context.Context, since time.Time) ([]repositories.ReconRun, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.ReconRun), args.Error(1)
}

func (m *mockReconRepo) ListMatchRows(ctx context.Context, runID uuid.UUID) ([]repositories.MatchRow, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.MatchRow), args.Error(1)
}

func (m *mockReconRepo) ListMatchRowsByStatus(ctx context.Context, runID uuid.UUID, status models.MatchStatus) ([]repositories.MatchRow, error) {
	args := m.Called(ctx, runID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.MatchRow), args.Error(1)
}

func (m *mockReconRepo) ListActions(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationAction, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReconciliationAction), args.Error(1)
}

func (m *mockReconRepo) GetSurvey(ctx context.Context, runID uuid.UUID) (*models.MismatchSurveyResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MismatchSurveyResult), args.Error(1)
}

type mockReportArchive struct {
	mock.Mock
}

func (m *mockReportArchive) ArchiveRun(ctx context.Context, result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) (string, error) {
	args := m.Called(ctx, result, survey)
	return args.String(0), args.Error(1)
}

func (m *mockReportArchive) GetReportURL(userID uuid.UUID, period string, runID uuid.UUID, expiry time.Duration) (string, error) {
	args := m.Called(userID, period, runID, expiry)
	return args.String(0), args.Error(1)
}

func (m *mockReportArchive) EnsureBucketExists(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockReportArchive) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockCacheService struct {
	mock.Mock
}

func (m *mockCacheService) GetSummary(ctx context.Context, userID uuid.UUID, period string) (*models.ReconciliationSummary, error) {
	args := m.Called(ctx, userID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReconciliationSummary), args.Error(1)
}

func (m *mockCacheService) SetSummary(ctx context.Context, summary *models.ReconciliationSummary, ttl time.Duration) error {
	args := m.Called(ctx, summary, ttl)
	return args.Error(0)
}

func (m *mockCacheService) GetVendorSummaries(ctx context.Context, userID uuid.UUID, period string) ([]models.VendorReconciliation, error) {
	args := m.Called(ctx, userID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VendorReconciliation), args.Error(1)
}

func (m *mockCacheService) SetVendorSummaries(ctx context.Context, userID uuid.UUID, period string, vendors []models.VendorReconciliation, ttl time.Duration) error {
	args := m.Called(ctx, userID, period, vendors, ttl)
	return args.Error(0)
}

func (m *mockCacheService) InvalidatePeriod(ctx context.Context, userID uuid.UUID, period string) error {
	args := m.Called(ctx, userID, period)
	return args.Error(0)
}

func (m *mockCacheService) IsRateLimited(ctx context.Context, key string, limit int) (bool, error) {
	args := m.Called(ctx, key, limit)
	return args.Bool(0), args.Error(1)
}

func (m *mockCacheService) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	args := m.Called(ctx, key, window)
	return args.Error(0)
}

func (m *mockCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *mockCacheService) GetString(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockCacheService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type ReconciliationServiceTestSuite struct {
	suite.Suite
	gstr2aRepo   *mockGSTR2ARepo
	purchaseRepo *mockPurchaseRepo
	reconRepo    *mockReconRepo
	archive      *mockReportArchive
	service      ReconciliationService
	userID       uuid.UUID
	ctx          context.Context
}

func (suite *ReconciliationServiceTestSuite) SetupTest() {
	suite.gstr2aRepo = new(mockGSTR2ARepo)
	suite.purchaseRepo = new(mockPurchaseRepo)
	suite.reconRepo = new(mockReconRepo)
	suite.archive = new(mockReportArchive)
	suite.service = NewReconciliationService(
		suite.gstr2aRepo, suite.purchaseRepo, suite.reconRepo,
		nil, suite.archive, nil, 0, 2)
	suite.userID = uuid.New()
	suite.ctx = context.Background()
}

func TestReconciliationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReconciliationServiceTestSuite))
}

func (suite *ReconciliationServiceTestSuite) TestImportGSTR2A_StagesSections() {
	payload := []byte(`{
		"sections": [
			{
				"supplier_gstin": "27AABCU9603R1ZN",
				"invoices": [
					{"invoice_number": "INV-001", "invoice_date_text": "15-07-2025", "declared_value": "1000"},
					{"invoice_number": "INV-002", "invoice_date_text": "20-07-2025", "declared_value": "2500"}
				]
			}
		]
	}`)

	suite.gstr2aRepo.On("ReplaceSections", suite.ctx, suite.userID, "2025-07", mock.Anything).Return(nil)

	result, err := suite.service.ImportGSTR2A(suite.ctx, suite.userID, "2025-07", payload)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, result.Sections)
	assert.Equal(suite.T(), 2, result.Invoices)
	suite.gstr2aRepo.AssertExpectations(suite.T())
}

func (suite *ReconciliationServiceTestSuite) TestImportGSTR2A_MalformedPayloadIsFatal() {
	result, err := suite.service.ImportGSTR2A(suite.ctx, suite.userID, "2025-07", []byte(`{"sections": [`))
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), result)
	suite.gstr2aRepo.AssertNotCalled(suite.T(), "ReplaceSections", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ReconciliationServiceTestSuite) TestImportGSTR2A_RejectsBadPeriod() {
	_, err := suite.service.ImportGSTR2A(suite.ctx, suite.userID, "July 2025", []byte(`{"sections":[]}`))
	assert.Error(suite.T(), err)
}

func (suite *ReconciliationServiceTestSuite) TestReconcilePeriod_RunsFullPipeline() {
	period := "2025-07"
	invoiceDate := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	sections := []models.GSTR2ASection{
		{
			SupplierGSTIN: "27AABCU9603R1ZN",
			FiscalPeriod:  period,
			Invoices: []models.GSTR2AInvoice{
				{InvoiceNumber: "INV-001", InvoiceDateText: "15-07-2025", DeclaredValue: decimal.NewFromInt(1000)},
			},
		},
	}
	books := []models.PurchaseInvoice{
		{
			ID: uuid.New(), UserID: suite.userID, VendorGSTIN: "27AABCU9603R1ZN",
			InvoiceNumber: "INV-001", InvoiceDate: &invoiceDate,
			TotalAmount: decimal.NewFromInt(1000), ITCEligible: true,
		},
		{
			ID: uuid.New(), UserID: suite.userID, VendorGSTIN: "29AAACN1234P1Z5",
			InvoiceNumber: "INV-777", InvoiceDate: &invoiceDate,
			TotalAmount: decimal.NewFromInt(400),
		},
	}

	suite.gstr2aRepo.On("CountInvoices", suite.ctx, suite.userID, period).Return(1, nil)
	suite.gstr2aRepo.On("ListSections", suite.ctx, suite.userID, period).Return(sections, nil)
	suite.purchaseRepo.On("ListByUserAndDateRange", suite.ctx, suite.userID, mock.Anything, mock.Anything).Return(books, nil)
	suite.reconRepo.On("SaveRun", suite.ctx, mock.Anything, mock.Anything).Return(nil)
	suite.archive.On("ArchiveRun", suite.ctx, mock.Anything, mock.Anything).Return("recon/object.json", nil)

	result, err := suite.service.ReconcilePeriod(suite.ctx, suite.userID, period, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.userID, result.UserID)
	assert.Equal(suite.T(), period, result.Period)
	assert.Equal(suite.T(), 1, result.TotalProcessed)

	// one exact match plus one book-only record folded in from the survey
	assert.Len(suite.T(), result.Matches, 2)
	assert.Equal(suite.T(), 1, result.StatusCounts[models.StatusMatched])
	assert.Equal(suite.T(), 1, result.StatusCounts[models.StatusMissingInGSTR2A])

	// every match got an action
	assert.Len(suite.T(), result.Actions, 2)
	assert.Equal(suite.T(), 1, result.ActionCounts[models.ActionAcceptMatch])
	assert.Equal(suite.T(), 1, result.ActionCounts[models.ActionVendorFollowUp])

	suite.reconRepo.AssertExpectations(suite.T())
	suite.archive.AssertExpectations(suite.T())
}

func (suite *ReconciliationServiceTestSuite) TestReconcilePeriod_NoStagedData() {
	suite.gstr2aRepo.On("CountInvoices", suite.ctx, suite.userID, "2025-01").Return(0, nil)

	result, err := suite.service.ReconcilePeriod(suite.ctx, suite.userID, "2025-01", nil)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), result)
	suite.reconRepo.AssertNotCalled(suite.T(), "SaveRun", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ReconciliationServiceTestSuite) TestReconcilePeriod_EnforcesBatchCap() {
	service := NewReconciliationService(
		suite.gstr2aRepo, suite.purchaseRepo, suite.reconRepo,
		nil, nil, nil, 100, 2)
	suite.gstr2aRepo.On("CountInvoices", suite.ctx, suite.userID, "2025-07").Return(101, nil)

	_, err := service.ReconcilePeriod(suite.ctx, suite.userID, "2025-07", nil)
	assert.ErrorIs(suite.T(), err, ErrBatchTooLarge)
}

func (suite *ReconciliationServiceTestSuite) TestReconcilePeriod_RejectsInvalidPolicy() {
	bad := models.DefaultMatchingPolicy()
	bad.FuzzyThreshold = 1.5

	_, err := suite.service.ReconcilePeriod(suite.ctx, suite.userID, "2025-07", &bad)
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "policy")
}

func (suite *ReconciliationServiceTestSuite) TestReconcilePeriod_PersistFailureAbortsRun() {
	period := "2025-07"
	sections := []models.GSTR2ASection{
		{
			SupplierGSTIN: "27AABCU9603R1ZN",
			FiscalPeriod:  period,
			Invoices: []models.GSTR2AInvoice{
				{InvoiceNumber: "INV-001", InvoiceDateText: "15-07-2025", DeclaredValue: decimal.NewFromInt(1000)},
			},
		},
	}

	suite.gstr2aRepo.On("CountInvoices", suite.ctx, suite.userID, period).Return(1, nil)
	suite.gstr2aRepo.On("ListSections", suite.ctx, suite.userID, period).Return(sections, nil)
	suite.purchaseRepo.On("ListByUserAndDateRange", suite.ctx, suite.userID, mock.Anything, mock.Anything).
		Return([]models.PurchaseInvoice{}, nil)
	suite.reconRepo.On("SaveRun", suite.ctx, mock.Anything, mock.Anything).Return(errors.New("constraint violation"))

	result, err := suite.service.ReconcilePeriod(suite.ctx, suite.userID, period, nil)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), result)
	suite.archive.AssertNotCalled(suite.T(), "ArchiveRun", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ReconciliationServiceTestSuite) TestReportURL_UsesLatestRun() {
	runID := uuid.New()
	suite.reconRepo.On("LatestRun", suite.ctx, suite.userID, "2025-07").
		Return(&repositories.ReconRun{ID: runID, UserID: suite.userID, Period: "2025-07"}, nil)
	suite.archive.On("GetReportURL", suite.userID, "2025-07", runID, reportURLExpiry).
		Return("https://minio.local/recon/report.json?sig=abc", nil)

	url, err := suite.service.ReportURL(suite.ctx, suite.userID, "2025-07")
	assert.NoError(suite.T(), err)
	assert.Contains(suite.T(), url, "report.json")
}

func (suite *ReconciliationServiceTestSuite) serviceWithCache(cache *mockCacheService) ReconciliationService {
	return NewReconciliationService(
		suite.gstr2aRepo, suite.purchaseRepo, suite.reconRepo,
		nil, suite.archive, cache, 0, 2)
}

func (suite *ReconciliationServiceTestSuite) TestReportURL_CachedLinkSkipsArchive() {
	cache := new(mockCacheService)
	key := reportURLCacheKey(suite.userID, "2025-07")
	cache.On("GetString", suite.ctx, key).Return("https://minio.local/recon/cached.json?sig=old", nil)

	url, err := suite.serviceWithCache(cache).ReportURL(suite.ctx, suite.userID, "2025-07")
	assert.NoError(suite.T(), err)
	assert.Contains(suite.T(), url, "cached.json")
	suite.reconRepo.AssertNotCalled(suite.T(), "LatestRun", mock.Anything, mock.Anything, mock.Anything)
	suite.archive.AssertNotCalled(suite.T(), "GetReportURL", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ReconciliationServiceTestSuite) TestReportURL_CachesGeneratedLink() {
	runID := uuid.New()
	key := reportURLCacheKey(suite.userID, "2025-07")

	cache := new(mockCacheService)
	cache.On("GetString", suite.ctx, key).Return("", caching.ErrCacheMiss)
	cache.On("SetString", suite.ctx, key, "https://minio.local/recon/fresh.json?sig=new", reportURLCacheTTL).Return(nil)
	suite.reconRepo.On("LatestRun", suite.ctx, suite.userID, "2025-07").
		Return(&repositories.ReconRun{ID: runID, UserID: suite.userID, Period: "2025-07"}, nil)
	suite.archive.On("GetReportURL", suite.userID, "2025-07", runID, reportURLExpiry).
		Return("https://minio.local/recon/fresh.json?sig=new", nil)

	url, err := suite.serviceWithCache(cache).ReportURL(suite.ctx, suite.userID, "2025-07")
	assert.NoError(suite.T(), err)
	assert.Contains(suite.T(), url, "fresh.json")
	cache.AssertExpectations(suite.T())
}

func (suite *ReconciliationServiceTestSuite) TestReconcilePeriod_DropsStaleCacheEntries() {
	period := "2025-07"
	sections := []models.GSTR2ASection{
		{
			SupplierGSTIN: "27AABCU9603R1ZN",
			FiscalPeriod:  period,
			Invoices: []models.GSTR2AInvoice{
				{InvoiceNumber: "INV-001", InvoiceDateText: "15-07-2025", DeclaredValue: decimal.NewFromInt(1000)},
			},
		},
	}

	suite.gstr2aRepo.On("CountInvoices", suite.ctx, suite.userID, period).Return(1, nil)
	suite.gstr2aRepo.On("ListSections", suite.ctx, suite.userID, period).Return(sections, nil)
	suite.purchaseRepo.On("ListByUserAndDateRange", suite.ctx, suite.userID, mock.Anything, mock.Anything).
		Return([]models.PurchaseInvoice{}, nil)
	suite.reconRepo.On("SaveRun", suite.ctx, mock.Anything, mock.Anything).Return(nil)
	suite.archive.On("ArchiveRun", suite.ctx, mock.Anything, mock.Anything).Return("recon/object.json", nil)

	cache := new(mockCacheService)
	cache.On("InvalidatePeriod", suite.ctx, suite.userID, period).Return(nil)
	cache.On("Delete", suite.ctx, reportURLCacheKey(suite.userID, period)).Return(nil)

	_, err := suite.serviceWithCache(cache).ReconcilePeriod(suite.ctx, suite.userID, period, nil)
	assert.NoError(suite.T(), err)
	cache.AssertExpectations(suite.T())
}
