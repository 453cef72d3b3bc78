package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

const DefaultCurrency = "USD"

// Payment is the authoritative local record of one payment attempt. Rows are
// never deleted.
type Payment struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID           int64           `json:"user_id" gorm:"not null;index"`
	OrderRef         *string         `json:"order_ref" gorm:"column:order_ref;type:text"`
	ExternalRef      *string         `json:"external_ref" gorm:"column:external_ref;type:text;uniqueIndex"`
	SettlementID     *string         `json:"settlement_id" gorm:"column:settlement_id;type:text;index"`
	PaymentMethodRef *string         `json:"payment_method_ref" gorm:"column:payment_method_ref;type:text"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null"`
	Currency         string          `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Status           Status          `json:"status" gorm:"type:text;not null;index"`
	Description      string          `json:"description" gorm:"type:text"`
	ErrorDetail      *string         `json:"error_detail" gorm:"column:error_detail;type:text"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
	PaidAt           *time.Time      `json:"paid_at"`
	RefundedAt       *time.Time      `json:"refunded_at"`
}

func (Payment) TableName() string { return "payments" }

// LedgerEntry proves the side effects of one processor event were committed.
type LedgerEntry struct {
	EventID     string         `json:"event_id" gorm:"primaryKey;type:text"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	PaymentID   *snowflake.ID  `json:"payment_id"`
	Outcome     string         `json:"outcome" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ProcessedAt time.Time      `json:"processed_at" gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "payment_event_ledger" }

type CardBrand string

const (
	CardBrandVisa       CardBrand = "visa"
	CardBrandMastercard CardBrand = "mastercard"
	CardBrandAmex       CardBrand = "amex"
	CardBrandDiners     CardBrand = "diners"
	CardBrandDiscover   CardBrand = "discover"
	CardBrandJCB        CardBrand = "jcb"
	CardBrandUnionPay   CardBrand = "unionpay"
	CardBrandUnknown    CardBrand = "unknown"
)

func NormalizeCardBrand(raw string) CardBrand {
	switch CardBrand(lower(raw)) {
	case CardBrandVisa, CardBrandMastercard, CardBrandAmex, CardBrandDiners,
		CardBrandDiscover, CardBrandJCB, CardBrandUnionPay:
		return CardBrand(lower(raw))
	case "american_express":
		return CardBrandAmex
	default:
		return CardBrandUnknown
	}
}

// PaymentMethod mirrors a processor-tokenized card. Only the masked descriptor
// is stored; the legacy card_number/card_expiry/card_cvv columns are never
// selected or written.
type PaymentMethod struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID     int64        `json:"user_id" gorm:"not null;index"`
	ExternalID string       `json:"external_id" gorm:"column:external_id;type:text;not null;uniqueIndex"`
	CardBrand  CardBrand    `json:"card_brand" gorm:"type:text;not null"`
	LastFour   string       `json:"last_four" gorm:"type:text;not null;default:'0000'"`
	ExpMonth   int          `json:"exp_month"`
	ExpYear    int          `json:"exp_year"`
	IsDefault  bool         `json:"is_default" gorm:"not null;default:false"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// Order is owned by the auction domain; reconciliation only creates it as paid
// and flips it to refunded.
type Order struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderRef  string          `json:"order_ref" gorm:"column:order_ref;type:text;not null;uniqueIndex:ux_orders_ref_buyer,priority:1"`
	BuyerID   int64           `json:"buyer_id" gorm:"not null;uniqueIndex:ux_orders_ref_buyer,priority:2"`
	PaymentID snowflake.ID    `json:"payment_id" gorm:"not null;index"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null"`
	Status    OrderStatus     `json:"status" gorm:"type:text;not null"`
	SyncedAt  time.Time       `json:"synced_at" gorm:"not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }
