package model

import (
	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/helper"
)

// RedemptionCode is a one-shot bearer top-up token. A code is terminal once
// ReceivedAt is set; ExpiredAt of zero means it never expires.
type RedemptionCode struct {
	Code       string          `json:"code" gorm:"type:char(64);primaryKey"`
	Purpose    string          `json:"purpose" gorm:"type:varchar(255);index"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(24,12)"`
	CreatedAt  int64           `json:"created_at" gorm:"bigint"`
	ExpiredAt  int64           `json:"expired_at,omitempty" gorm:"bigint;default:0"`
	UserId     string          `json:"user_id,omitempty" gorm:"type:char(32);index;default:''"`
	ReceivedAt int64           `json:"received_at,omitempty" gorm:"bigint;default:0"`

	// Username is joined in memory for admin listings, never persisted.
	Username string `json:"username,omitempty" gorm:"-:all"`
}

func (r *RedemptionCode) Received() bool {
	return r.ReceivedAt > 0
}

func (r *RedemptionCode) Expired(now int64) bool {
	return r.ExpiredAt > 0 && r.ExpiredAt < now
}

// InsertRedemptionCodes bulk-inserts a freshly issued batch.
func InsertRedemptionCodes(codes []*RedemptionCode) error {
	if len(codes) == 0 {
		return nil
	}
	if err := DB.CreateInBatches(codes, 100).Error; err != nil {
		return errors.Wrap(err, "insert redemption codes")
	}
	return nil
}

func GetRedemptionCode(code string) (*RedemptionCode, error) {
	if code == "" {
		return nil, errors.New("code is empty")
	}
	var redemption RedemptionCode
	if err := DB.First(&redemption, "code = ?", code).Error; err != nil {
		return nil, errors.Wrapf(err, "get redemption code")
	}
	return &redemption, nil
}

// SearchRedemptionCodes pages codes matching the keyword against code or
// purpose, newest first. Limit of zero returns the full match set (export).
func SearchRedemptionCodes(keyword string, offset int, limit int) (total int64, codes []*RedemptionCode, err error) {
	db := DB.Model(&RedemptionCode{})
	if keyword != "" {
		db = db.Where("code = ? or purpose LIKE ?", keyword, keyword+"%")
	}
	if err = db.Count(&total).Error; err != nil {
		return 0, nil, errors.Wrap(err, "count redemption codes")
	}
	db = db.Order("created_at desc")
	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err = db.Find(&codes).Error; err != nil {
		return 0, nil, errors.Wrap(err, "list redemption codes")
	}
	return total, codes, nil
}

// Update rewrites purpose, amount and expiry. Disallowed once received.
func (r *RedemptionCode) Update() error {
	if r.Received() {
		return errors.New("cannot update a received redemption code")
	}
	err := DB.Model(r).Select("purpose", "amount", "expired_at").Updates(r).Error
	if err != nil {
		return errors.Wrap(err, "update redemption code")
	}
	return nil
}

func DeleteRedemptionCode(code string) error {
	redemption, err := GetRedemptionCode(code)
	if err != nil {
		return err
	}
	if redemption.Received() {
		return errors.New("cannot delete a received redemption code")
	}
	if err := DB.Delete(redemption).Error; err != nil {
		return errors.Wrap(err, "delete redemption code")
	}
	return nil
}

// ReceiveRedemptionCode atomically claims a code for a user and credits
// amount × exchange ratio. The row lock makes a double receive impossible.
func ReceiveRedemptionCode(code string, userID string) (amount decimal.Decimal, err error) {
	if code == "" {
		return decimal.Zero, errors.New("no redemption code provided")
	}
	if userID == "" {
		return decimal.Zero, errors.New("invalid user id")
	}
	if _, err = InitCredit(userID); err != nil {
		return decimal.Zero, err
	}

	now := helper.GetTimestamp()
	err = DB.Transaction(func(tx *gorm.DB) error {
		var redemption RedemptionCode
		if err := tx.Set("gorm:query_option", "FOR UPDATE").
			First(&redemption, "code = ?", code).Error; err != nil {
			return errors.New("invalid redemption code")
		}
		if redemption.Received() {
			return errors.New("the redemption code has been used")
		}
		if redemption.Expired(now) {
			return errors.New("the redemption code has expired")
		}

		redemption.UserId = userID
		redemption.ReceivedAt = now
		if err := tx.Model(&redemption).Select("user_id", "received_at").
			Updates(&redemption).Error; err != nil {
			return errors.Wrap(err, "mark redemption code received")
		}

		amount = redemption.Amount.Mul(config.CreditExchangeRatio)
		return addCreditTx(tx, userID, amount, &LogDetail{Desc: "redemption code received"})
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "receive redemption code")
	}
	return amount, nil
}
