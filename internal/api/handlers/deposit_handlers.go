package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	domainErrors "github.com/xnrt-platform/xnrt_service/internal/domain/errors"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/depositaddress"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/depositreport"
	"github.com/xnrt-platform/xnrt_service/internal/domain/services/walletlink"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// DepositHandlers exposes the user-facing deposit flows
type DepositHandlers struct {
	addressService *depositaddress.Service
	walletService  *walletlink.Service
	reportService  *depositreport.Service
	logger         *logger.Logger
}

// NewDepositHandlers creates deposit handlers
func NewDepositHandlers(
	addressService *depositaddress.Service,
	walletService *walletlink.Service,
	reportService *depositreport.Service,
	logger *logger.Logger,
) *DepositHandlers {
	return &DepositHandlers{
		addressService: addressService,
		walletService:  walletService,
		reportService:  reportService,
		logger:         logger,
	}
}

// GetDepositAddress returns (issuing if needed) the caller's deposit address
// GET /api/v1/deposits/address
func (h *DepositHandlers) GetDepositAddress(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	addr, err := h.addressService.GetOrCreateAddress(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue deposit address", "user_id", userID, "error", err)
		respondInternalError(c, "failed to issue deposit address")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":         addr.Address,
		"coin_type":       addr.CoinType,
		"derivation_path": addr.DerivationPath,
		"version":         addr.Version,
	})
}

type linkWalletRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// LinkWallet registers a self-custodied wallet after signature verification
// POST /api/v1/deposits/wallets
func (h *DepositHandlers) LinkWallet(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req linkWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "address and signature are required")
		return
	}

	wallet, err := h.walletService.LinkWallet(c.Request.Context(), userID, req.Address, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrInvalidWalletProof):
			respondBadRequest(c, "signature does not prove ownership of this wallet")
		case errors.Is(err, domainErrors.ErrWalletAlreadyLinked):
			respondConflict(c, "wallet is already linked to an account")
		default:
			h.logger.Error("failed to link wallet", "user_id", userID, "error", err)
			respondInternalError(c, "failed to link wallet")
		}
		return
	}

	c.JSON(http.StatusCreated, wallet)
}

// ListWallets returns the caller's linked wallets
// GET /api/v1/deposits/wallets
func (h *DepositHandlers) ListWallets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	wallets, err := h.walletService.ListWallets(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list wallets", "user_id", userID, "error", err)
		respondInternalError(c, "failed to list wallets")
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

type reportDepositRequest struct {
	TransactionHash string          `json:"transaction_hash" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
}

// ReportDeposit verifies a user-reported deposit against the chain
// POST /api/v1/deposits/report
func (h *DepositHandlers) ReportDeposit(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req reportDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "transaction_hash and amount are required")
		return
	}

	result, err := h.reportService.ReportDeposit(c.Request.Context(), userID, req.TransactionHash, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrDuplicateTransaction):
			respondConflict(c, "this transaction has already been processed")
		case errors.Is(err, domainErrors.ErrDuplicateReport):
			respondConflict(c, "this transaction has already been reported")
		default:
			respondBadRequest(c, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
