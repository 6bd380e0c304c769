package model

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/helper"
	"github.com/lumichat/credit/common/random"
)

// Credit holds one user's spendable balance. Exactly one row per user; the
// row is created lazily on first read or first delta.
type Credit struct {
	Id        string          `json:"id" gorm:"type:char(32);primaryKey"`
	UserId    string          `json:"user_id" gorm:"type:char(32);uniqueIndex"`
	Credit    decimal.Decimal `json:"credit" gorm:"type:decimal(24,12)"`
	UpdatedAt int64           `json:"updated_at" gorm:"bigint"`
	CreatedAt int64           `json:"created_at" gorm:"bigint"`
}

// CreditLog is the append-only ledger. Credit is the signed delta applied to
// the balance; entries are never mutated, only bulk-pruned by an operator.
type CreditLog struct {
	Id        string          `json:"id" gorm:"type:char(32);primaryKey"`
	UserId    string          `json:"user_id" gorm:"type:char(32);index"`
	Credit    decimal.Decimal `json:"credit" gorm:"type:decimal(24,12)"`
	Detail    datatypes.JSON  `json:"detail"`
	CreatedAt int64           `json:"created_at" gorm:"bigint;index"`

	// Username is joined in memory for admin listings, never persisted.
	Username string `json:"username,omitempty" gorm:"-:all"`
}

// LogAPIParams snapshots the request the entry was billed for.
type LogAPIParams struct {
	Model    map[string]any `json:"model,omitempty"`
	IsStream bool           `json:"is_stream,omitempty"`
}

// LogUsage carries the priced usage snapshot inside a ledger entry.
type LogUsage struct {
	TotalPrice          float64  `json:"total_price"`
	PromptUnitPrice     float64  `json:"prompt_unit_price"`
	CompletionUnitPrice float64  `json:"completion_unit_price"`
	RequestUnitPrice    float64  `json:"request_unit_price"`
	FeaturePrice        float64  `json:"feature_price"`
	Features            []string `json:"features,omitempty"`
	PromptTokens        int      `json:"prompt_tokens"`
	CompletionTokens    int      `json:"completion_tokens"`
	TotalTokens         int      `json:"total_tokens"`
}

// LogDetail is the structured payload stored with each ledger entry.
type LogDetail struct {
	APIPath   string       `json:"api_path,omitempty"`
	APIParams LogAPIParams `json:"api_params"`
	Usage     *LogUsage    `json:"usage,omitempty"`
	Desc      string       `json:"desc"`
}

// ParsedDetail decodes the stored detail payload. Unparseable blobs yield an
// empty detail rather than an error: old rows must never break listings.
func (l *CreditLog) ParsedDetail() LogDetail {
	var d LogDetail
	if len(l.Detail) > 0 {
		_ = json.Unmarshal(l.Detail, &d)
	}
	return d
}

func marshalDetail(detail *LogDetail) (datatypes.JSON, error) {
	if detail == nil {
		detail = &LogDetail{}
	}
	blob, err := json.Marshal(detail)
	if err != nil {
		return nil, errors.Wrap(err, "marshal ledger detail")
	}
	return blob, nil
}

// InitCredit is the idempotent ensure: return the balance row, creating it
// with the configured default credit when absent. Concurrent creators race on
// the unique index; the loser re-reads.
func InitCredit(userID string) (*Credit, error) {
	if userID == "" {
		return nil, errors.New("user id is empty")
	}
	credit, err := GetCreditByUserId(userID)
	if err == nil {
		return credit, nil
	}

	now := helper.GetTimestamp()
	fresh := &Credit{
		Id:        random.GetUUID(),
		UserId:    userID,
		Credit:    config.CreditDefaultCredit,
		UpdatedAt: now,
		CreatedAt: now,
	}
	if err = DB.Create(fresh).Error; err != nil {
		// lost the race: someone else inserted the row first
		if credit, rerr := GetCreditByUserId(userID); rerr == nil {
			return credit, nil
		}
		return nil, errors.Wrapf(err, "init credit for user %s", userID)
	}
	return fresh, nil
}

func GetCreditByUserId(userID string) (*Credit, error) {
	var credit Credit
	if err := DB.First(&credit, "user_id = ?", userID).Error; err != nil {
		return nil, errors.Wrapf(err, "get credit of user %s", userID)
	}
	return &credit, nil
}

// AddCredit applies a signed delta to a user's balance and appends the
// matching ledger entry in one transaction. The balance update is a relative
// SQL expression so concurrent debits never lose updates; balances may go
// negative.
func AddCredit(userID string, delta decimal.Decimal, detail *LogDetail) (*Credit, error) {
	if _, err := InitCredit(userID); err != nil {
		return nil, err
	}
	blob, err := marshalDetail(detail)
	if err != nil {
		return nil, err
	}

	now := helper.GetTimestamp()
	entry := &CreditLog{
		Id:        random.GetUUID(),
		UserId:    userID,
		Credit:    delta,
		Detail:    blob,
		CreatedAt: now,
	}
	err = DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return errors.Wrap(err, "append ledger entry")
		}
		res := tx.Model(&Credit{}).Where("user_id = ?", userID).Updates(map[string]any{
			"credit":     gorm.Expr("credit + ?", delta),
			"updated_at": now,
		})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "apply delta to user %s", userID)
		}
		if res.RowsAffected == 0 {
			return errors.Errorf("no balance row for user %s", userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetCreditByUserId(userID)
}

// addCreditTx is AddCredit running inside a caller-owned transaction. The
// balance row must already exist.
func addCreditTx(tx *gorm.DB, userID string, delta decimal.Decimal, detail *LogDetail) error {
	blob, err := marshalDetail(detail)
	if err != nil {
		return err
	}
	now := helper.GetTimestamp()
	entry := &CreditLog{
		Id:        random.GetUUID(),
		UserId:    userID,
		Credit:    delta,
		Detail:    blob,
		CreatedAt: now,
	}
	if err := tx.Create(entry).Error; err != nil {
		return errors.Wrap(err, "append ledger entry")
	}
	res := tx.Model(&Credit{}).Where("user_id = ?", userID).Updates(map[string]any{
		"credit":     gorm.Expr("credit + ?", delta),
		"updated_at": now,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "apply delta to user %s", userID)
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("no balance row for user %s", userID)
	}
	return nil
}

// SetCredit is the operator override: the ledger entry records the absolute
// value the balance was replaced with.
func SetCredit(userID string, credit decimal.Decimal, detail *LogDetail) (*Credit, error) {
	if _, err := InitCredit(userID); err != nil {
		return nil, err
	}
	blob, err := marshalDetail(detail)
	if err != nil {
		return nil, err
	}

	now := helper.GetTimestamp()
	entry := &CreditLog{
		Id:        random.GetUUID(),
		UserId:    userID,
		Credit:    credit,
		Detail:    blob,
		CreatedAt: now,
	}
	err = DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return errors.Wrap(err, "append ledger entry")
		}
		res := tx.Model(&Credit{}).Where("user_id = ?", userID).Updates(map[string]any{
			"credit":     credit,
			"updated_at": now,
		})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "set credit of user %s", userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetCreditByUserId(userID)
}

func CountCreditLogs(userIDs []string) (int64, error) {
	db := DB.Model(&CreditLog{})
	if len(userIDs) > 0 {
		db = db.Where("user_id IN ?", userIDs)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count ledger entries")
	}
	return count, nil
}

// GetCreditLogsByPage lists ledger entries newest first, optionally filtered
// to a set of users.
func GetCreditLogsByPage(userIDs []string, offset int, limit int) ([]*CreditLog, error) {
	db := DB.Model(&CreditLog{}).Order("created_at desc")
	if len(userIDs) > 0 {
		db = db.Where("user_id IN ?", userIDs)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	var logs []*CreditLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	return logs, nil
}

// GetCreditLogsByTime streams the window [start, end) oldest first for
// reporting.
func GetCreditLogsByTime(start int64, end int64) ([]*CreditLog, error) {
	var logs []*CreditLog
	err := DB.Where("created_at >= ?", start).
		Where("created_at < ?", end).
		Order("created_at asc").
		Find(&logs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list ledger entries by time")
	}
	return logs, nil
}

// DeleteCreditLogsBefore prunes ledger entries older than the timestamp and
// returns the number of rows removed.
func DeleteCreditLogsBefore(timestamp int64) (int64, error) {
	res := DB.Where("created_at < ?", timestamp).Delete(&CreditLog{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "prune ledger entries")
	}
	return res.RowsAffected, nil
}
