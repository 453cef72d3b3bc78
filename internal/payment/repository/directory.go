package repository

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"gorm.io/gorm"
)

// auctionRow is the read-only view of the auction table that pricing needs.
type auctionRow struct {
	ID            string
	Title         string
	SellerID      int64
	WinnerID      *int64
	StartingPrice decimal.Decimal
	CurrentPrice  decimal.NullDecimal
}

type auctionPricer struct {
	db       *gorm.DB
	currency string
}

// NewItemPricer prices an order reference from the auction it settles. Only
// the auction winner may pay for it.
func NewItemPricer(conn *gorm.DB) domain.ItemPricer {
	return &auctionPricer{db: conn, currency: domain.DefaultCurrency}
}

func (p *auctionPricer) PriceFor(ctx context.Context, userID int64, ref string) (domain.PricedItem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.PricedItem{}, domain.ErrItemNotFound
	}

	var row auctionRow
	err := p.db.WithContext(ctx).Raw(
		`SELECT id, title, seller_id, winner_id, starting_price, current_price
		 FROM auctions WHERE id = ? LIMIT 1`,
		ref,
	).Scan(&row).Error
	if err != nil {
		return domain.PricedItem{}, err
	}
	if row.ID == "" {
		return domain.PricedItem{}, domain.ErrItemNotFound
	}
	if row.WinnerID == nil || *row.WinnerID != userID {
		return domain.PricedItem{}, domain.ErrNotEntitled
	}

	amount := row.StartingPrice
	if row.CurrentPrice.Valid {
		amount = row.CurrentPrice.Decimal
	}
	return domain.PricedItem{
		Ref:      row.ID,
		Title:    row.Title,
		Amount:   amount,
		Currency: p.currency,
		SellerID: row.SellerID,
	}, nil
}

type userDirectory struct {
	db *gorm.DB
}

// NewUserDirectory resolves contact details from the users table.
func NewUserDirectory(conn *gorm.DB) domain.UserDirectory {
	return &userDirectory{db: conn}
}

func (d *userDirectory) Lookup(ctx context.Context, userID int64) (domain.User, error) {
	var user domain.User
	err := d.db.WithContext(ctx).Raw(
		`SELECT id, email, name FROM users WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&user).Error
	if err != nil {
		return domain.User{}, err
	}
	if user.ID == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}
