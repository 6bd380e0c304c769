package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/datatypes"

	"github.com/lumichat/credit/common/helper"
)

// AIModel is the pricing-relevant slice of the model catalogue. Price holds
// the keys prompt_price, completion_price, request_price and minimum_credit
// (per-million units); a model with a BaseModelId inherits its base's price.
type AIModel struct {
	Id          string            `json:"id" gorm:"type:varchar(191);primaryKey"`
	Name        string            `json:"name" gorm:"type:varchar(191)"`
	BaseModelId string            `json:"base_model_id,omitempty" gorm:"type:varchar(191);index;default:''"`
	Price       datatypes.JSONMap `json:"price"`
	CreatedAt   int64             `json:"created_at" gorm:"bigint"`
	UpdatedAt   int64             `json:"updated_at" gorm:"bigint"`
}

// modelCache keeps catalogue lookups off the hot billing path. Pricing is
// read on every admission check and every scope close.
var modelCache = gocache.New(5*time.Minute, 10*time.Minute)

func GetModelById(id string) (*AIModel, error) {
	if id == "" {
		return nil, errors.New("model id is empty")
	}
	if cached, ok := modelCache.Get(id); ok {
		return cached.(*AIModel), nil
	}
	var m AIModel
	if err := DB.First(&m, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get model %s", id)
	}
	modelCache.SetDefault(id, &m)
	return &m, nil
}

func ListModels() ([]*AIModel, error) {
	var models []*AIModel
	if err := DB.Order("id asc").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list models")
	}
	return models, nil
}

// UpdateModelPrice replaces a model's price map and drops the cached entry.
func UpdateModelPrice(id string, price map[string]any) error {
	m, err := GetModelById(id)
	if err != nil {
		return err
	}
	err = DB.Model(m).Updates(map[string]any{
		"price":      datatypes.JSONMap(price),
		"updated_at": helper.GetTimestamp(),
	}).Error
	if err != nil {
		return errors.Wrapf(err, "update price of model %s", id)
	}
	modelCache.Delete(id)
	return nil
}
