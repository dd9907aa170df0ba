package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletService *services.WalletService
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, log: log}
}

// GetWallet возвращает баланс и pending.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	wallet, err := h.walletService.GetWallet(c.UserContext(), middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: wallet})
}

// POST /me/wallet/deposit
func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	var req dto.DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tx, err := h.walletService.Deposit(c.UserContext(), middleware.GetActor(c), req.Amount, req.Method)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: tx})
}

// POST /me/wallet/transfer
func (h *WalletHandler) Transfer(c *fiber.Ctx) error {
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	to, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		return badRequest(c, "invalid to_account_id")
	}

	out, in, err := h.walletService.Transfer(c.UserContext(), middleware.GetActor(c), to, req.Amount, req.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.TransferResponse{Outgoing: out, Incoming: in}})
}

// GET /me/wallet/transactions
func (h *WalletHandler) MyTransactions(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	limit, offset := page(c)
	txs, err := h.walletService.ListTransactions(c.UserContext(), actor, actor.AccountID, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}

// GET /admin/accounts/:id/transactions
func (h *WalletHandler) AccountTransactions(c *fiber.Ctx) error {
	accountID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid account id")
	}
	limit, offset := page(c)
	txs, err := h.walletService.ListTransactions(c.UserContext(), middleware.GetActor(c), accountID, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txs})
}

// POST /admin/accounts/:id/adjust
func (h *WalletHandler) Adjust(c *fiber.Ctx) error {
	accountID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid account id")
	}
	var req dto.AdjustWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tx, err := h.walletService.AdminAdjust(c.UserContext(), middleware.GetActor(c), accountID, req.Amount, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tx})
}
