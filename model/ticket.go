package model

import (
	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/helper"
)

// TradeTicket tracks one checkout with the payment gateway. Id is the
// external trade number. Detail holds the gateway's checkout response and,
// once the callback is processed, a "callback" key; the presence of that key
// is the idempotency marker for crediting.
type TradeTicket struct {
	Id        string            `json:"id" gorm:"type:varchar(64);primaryKey"`
	UserId    string            `json:"user_id" gorm:"type:char(32);index"`
	Amount    decimal.Decimal   `json:"amount" gorm:"type:decimal(24,12)"`
	Detail    datatypes.JSONMap `json:"detail"`
	CreatedAt int64             `json:"created_at" gorm:"bigint;index"`
}

func InsertTicket(id string, userID string, amount decimal.Decimal, detail map[string]any) (*TradeTicket, error) {
	if id == "" {
		return nil, errors.New("trade no is empty")
	}
	ticket := &TradeTicket{
		Id:        id,
		UserId:    userID,
		Amount:    amount,
		Detail:    detail,
		CreatedAt: helper.GetTimestamp(),
	}
	if err := DB.Create(ticket).Error; err != nil {
		return nil, errors.Wrapf(err, "insert ticket %s", id)
	}
	return ticket, nil
}

func GetTicketById(id string) (*TradeTicket, error) {
	var ticket TradeTicket
	if err := DB.First(&ticket, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get ticket %s", id)
	}
	return &ticket, nil
}

// GetTicketsByTime streams tickets created in [start, end) oldest first.
func GetTicketsByTime(start int64, end int64) ([]*TradeTicket, error) {
	var tickets []*TradeTicket
	err := DB.Where("created_at >= ?", start).
		Where("created_at < ?", end).
		Order("created_at asc").
		Find(&tickets).Error
	if err != nil {
		return nil, errors.Wrap(err, "list tickets by time")
	}
	return tickets, nil
}

// Completed reports whether the ticket has already been sealed by a callback.
func (t *TradeTicket) Completed() bool {
	if t.Detail == nil {
		return false
	}
	_, ok := t.Detail["callback"]
	return ok
}

// Seal stores the verified callback into the ticket and credits the owner
// with amount × exchange ratio, all in one transaction. Replays are detected
// under a row lock and return without a second credit.
func (t *TradeTicket) Seal(callback map[string]any) (credited bool, err error) {
	if _, err = InitCredit(t.UserId); err != nil {
		return false, err
	}

	err = DB.Transaction(func(tx *gorm.DB) error {
		var ticket TradeTicket
		if err := tx.Set("gorm:query_option", "FOR UPDATE").
			First(&ticket, "id = ?", t.Id).Error; err != nil {
			return errors.Wrapf(err, "lock ticket %s", t.Id)
		}
		if ticket.Completed() {
			return nil
		}

		detail := ticket.Detail
		if detail == nil {
			detail = datatypes.JSONMap{}
		}
		detail["callback"] = callback
		if err := tx.Model(&TradeTicket{}).Where("id = ?", t.Id).
			Update("detail", detail).Error; err != nil {
			return errors.Wrapf(err, "seal ticket %s", t.Id)
		}

		amount := ticket.Amount.Mul(config.CreditExchangeRatio)
		if err := addCreditTx(tx, ticket.UserId, amount, &LogDetail{Desc: "payment success"}); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}
