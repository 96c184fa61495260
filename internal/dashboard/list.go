package dashboard

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	"github.com/angelmondragon/tipjar-backend/pkg/money"
	pkgpagination "github.com/angelmondragon/tipjar-backend/pkg/pagination"
)

type DonationList struct {
	Items  []DonationItem `json:"items"`
	Cursor string         `json:"cursor"`
}

type DonationItem struct {
	ID           uuid.UUID            `json:"id"`
	Amount       int64                `json:"amount"`
	AmountBRL    string               `json:"amount_brl"`
	DonorName    string               `json:"donor_name"`
	DonorMessage string               `json:"donor_message"`
	Status       enums.DonationStatus `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	PaidAt       *time.Time           `json:"paid_at,omitempty"`
}

// Stats is the dashboard summary. Amounts are centavos.
type Stats struct {
	TotalDonations int64  `json:"total_donations"`
	TotalAmount    int64  `json:"total_amount"`
	TotalAmountBRL string `json:"total_amount_brl"`
	Balance        int64  `json:"balance"`
}

type listQuery struct {
	userID uuid.UUID
	status enums.DonationStatus
	limit  int
	cursor *pkgpagination.Cursor
}

func zeroStats() *Stats {
	return &Stats{TotalAmountBRL: money.FormatBRL(0)}
}

func toDonationItem(m models.Donation) DonationItem {
	return DonationItem{
		ID:           m.ID,
		Amount:       m.Amount,
		AmountBRL:    money.FormatBRL(m.Amount),
		DonorName:    m.DonorName,
		DonorMessage: m.DonorMessage,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
		PaidAt:       m.PaidAt,
	}
}

func toDonationItems(rows []models.Donation) []DonationItem {
	items := make([]DonationItem, len(rows))
	for i, row := range rows {
		items[i] = toDonationItem(row)
	}
	return items
}
