package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/depositreport"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/reconciliation"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/scanner"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// AdminHandlers exposes operator reconciliation and monitoring endpoints
type AdminHandlers struct {
	reconciliationService *reconciliation.Service
	reportService         *depositreport.Service
	scannerService        *scanner.Service
	logger                *logger.Logger
}

// NewAdminHandlers creates admin handlers
func NewAdminHandlers(
	reconciliationService *reconciliation.Service,
	reportService *depositreport.Service,
	scannerService *scanner.Service,
	logger *logger.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		reconciliationService: reconciliationService,
		reportService:         reportService,
		scannerService:        scannerService,
		logger:                logger,
	}
}

// ListUnmatchedDeposits returns deposits awaiting assignment
// GET /api/v1/admin/deposits/unmatched
func (h *AdminHandlers) ListUnmatchedDeposits(c *gin.Context) {
	deposits, err := h.reconciliationService.ListUnmatchedDeposits(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list unmatched deposits", "error", err)
		respondInternalError(c, "failed to list unmatched deposits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deposits})
}

type matchDepositRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// MatchUnmatchedDeposit assigns an unmatched deposit to a user
// POST /api/v1/admin/deposits/unmatched/:id/match
func (h *AdminHandlers) MatchUnmatchedDeposit(c *gin.Context) {
	depositID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidID, "invalid deposit id")
		return
	}

	var req matchDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "user_id is required")
		return
	}

	txn, err := h.reconciliationService.MatchUnmatchedDeposit(c.Request.Context(), depositID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrUnmatchedDepositNotFound):
			respondNotFound(c, "unmatched deposit not found")
		case errors.Is(err, domainErrors.ErrAlreadyMatched):
			respondConflict(c, "deposit has already been matched")
		case errors.Is(err, domainErrors.ErrDuplicateTransaction):
			respondConflict(c, "deposit transaction already credited")
		default:
			h.logger.Error("failed to match deposit",
				"deposit_id", depositID,
				"user_id", req.UserID,
				"error", err)
			respondInternalError(c, "failed to match deposit")
		}
		return
	}

	c.JSON(http.StatusOK, txn)
}

// ListDepositReports returns user reports awaiting review
// GET /api/v1/admin/deposits/reports
func (h *AdminHandlers) ListDepositReports(c *gin.Context) {
	reports, err := h.reportService.ListOpenReports(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list deposit reports", "error", err)
		respondInternalError(c, "failed to list deposit reports")
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// ResolveDepositReport closes a reviewed report
// POST /api/v1/admin/deposits/reports/:id/resolve
func (h *AdminHandlers) ResolveDepositReport(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidID, "invalid report id")
		return
	}

	if err := h.reportService.ResolveReport(c.Request.Context(), reportID); err != nil {
		h.logger.Error("failed to resolve report", "report_id", reportID, "error", err)
		respondInternalError(c, "failed to resolve report")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// ScannerStatus reports the persisted scanner cursor
// GET /api/v1/admin/scanner/status
func (h *AdminHandlers) ScannerStatus(c *gin.Context) {
	cursor, err := h.scannerService.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read scanner status", "error", err)
		respondInternalError(c, "failed to read scanner status")
		return
	}
	if cursor == nil {
		c.JSON(http.StatusOK, gin.H{"initialized": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"initialized":             true,
		"last_scanned_block":      cursor.LastScannedBlock,
		"scan_in_progress":        cursor.ScanInProgress,
		"last_scan_timestamp":     cursor.LastScanTimestamp,
		"consecutive_error_count": cursor.ConsecutiveErrorCount,
		"last_error_message":      cursor.LastErrorMessage,
	})
}
