package dto

import "github.com/ledger-market/backend/internal/models"

type AuthResponse struct {
	Token string       `json:"token"`
	Actor models.Actor `json:"actor"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type TransferResponse struct {
	Outgoing *models.WalletTransaction `json:"outgoing,omitempty"`
	Incoming *models.WalletTransaction `json:"incoming,omitempty"`
}

type OrderDetailsResponse struct {
	Order   *models.Order   `json:"order"`
	Escrow  *models.Escrow  `json:"escrow,omitempty"`
	Refunds []models.Refund `json:"refunds"`
}
