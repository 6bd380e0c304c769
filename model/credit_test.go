package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/random"
)

func TestInitCreditIsIdempotent(t *testing.T) {
	setupTestDatabase(t)
	withConfigDecimal(t, &config.CreditDefaultCredit, "10")

	userID := random.GetUUID()
	first, err := InitCredit(userID)
	require.NoError(t, err)
	assert.True(t, first.Credit.Equal(decimal.NewFromInt(10)))

	second, err := InitCredit(userID)
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)

	var count int64
	require.NoError(t, DB.Model(&Credit{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

// Balance must always equal the initial credit plus the sum of ledger deltas.
func TestLedgerConservation(t *testing.T) {
	setupTestDatabase(t)
	withConfigDecimal(t, &config.CreditDefaultCredit, "10")

	userID := random.GetUUID()
	deltas := []string{"5", "-0.005", "-3.2", "0.000000000001", "-10"}
	expected := decimal.NewFromInt(10)
	for _, raw := range deltas {
		delta, err := decimal.NewFromString(raw)
		require.NoError(t, err)
		expected = expected.Add(delta)
		_, err = AddCredit(userID, delta, &LogDetail{Desc: "test"})
		require.NoError(t, err)
	}

	credit, err := GetCreditByUserId(userID)
	require.NoError(t, err)
	assert.True(t, credit.Credit.Equal(expected), "got %s want %s", credit.Credit, expected)

	count, err := CountCreditLogs([]string{userID})
	require.NoError(t, err)
	assert.EqualValues(t, len(deltas), count)
}

func TestAddCreditAllowsNegativeBalance(t *testing.T) {
	setupTestDatabase(t)
	withConfigDecimal(t, &config.CreditDefaultCredit, "0")

	userID := random.GetUUID()
	credit, err := AddCredit(userID, decimal.RequireFromString("-2.5"), &LogDetail{Desc: "overshoot"})
	require.NoError(t, err)
	assert.True(t, credit.Credit.Equal(decimal.RequireFromString("-2.5")))
}

func TestSetCreditOverridesBalance(t *testing.T) {
	setupTestDatabase(t)

	userID := random.GetUUID()
	_, err := AddCredit(userID, decimal.NewFromInt(7), &LogDetail{Desc: "seed"})
	require.NoError(t, err)

	credit, err := SetCredit(userID, decimal.NewFromInt(100), &LogDetail{Desc: "operator override"})
	require.NoError(t, err)
	assert.True(t, credit.Credit.Equal(decimal.NewFromInt(100)))
}

func TestGetCreditLogsByPage(t *testing.T) {
	setupTestDatabase(t)

	userID := random.GetUUID()
	for i := 0; i < 5; i++ {
		_, err := AddCredit(userID, decimal.NewFromInt(int64(i+1)), &LogDetail{Desc: "entry"})
		require.NoError(t, err)
	}

	logs, err := GetCreditLogsByPage([]string{userID}, 0, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i := 1; i < len(logs); i++ {
		assert.GreaterOrEqual(t, logs[i-1].CreatedAt, logs[i].CreatedAt)
	}

	rest, err := GetCreditLogsByPage([]string{userID}, 3, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	all, err := GetCreditLogsByPage(nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDeleteCreditLogsBefore(t *testing.T) {
	setupTestDatabase(t)

	userID := random.GetUUID()
	_, err := AddCredit(userID, decimal.NewFromInt(1), &LogDetail{Desc: "old"})
	require.NoError(t, err)

	cutoff := time.Now().Unix() + 10
	affected, err := DeleteCreditLogsBefore(cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	count, err := CountCreditLogs(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestParsedDetailToleratesGarbage(t *testing.T) {
	entry := &CreditLog{Detail: []byte("not json")}
	detail := entry.ParsedDetail()
	assert.Empty(t, detail.Desc)
	assert.Nil(t, detail.Usage)
}
