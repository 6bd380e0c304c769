package billing

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/shopspring/decimal"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/logger"
	dbmodel "github.com/lumichat/credit/model"
	"github.com/lumichat/credit/relay/model"
	"github.com/lumichat/credit/relay/pricing"
)

// InsufficientCreditError refuses a paid request; handlers map it to 403.
type InsufficientCreditError struct {
	UserId string
}

func (e *InsufficientCreditError) Error() string {
	return config.CreditNoCreditMsg
}

// StatusCode returns the HTTP status the refusal maps to.
func (e *InsufficientCreditError) StatusCode() int {
	return http.StatusForbidden
}

// CheckCredit admits or refuses a request before the upstream call. Fully
// free models with no paid feature always pass. Paid requests require a
// positive balance that also covers the model's minimum credit. On refusal
// the originating chat message, when identified, is annotated with the
// no-credit notice so the UI can explain the empty response.
func CheckCredit(user *dbmodel.User, request *model.GeneralChatRequest, features []string, chatID string, messageID string) error {
	if user == nil {
		return errors.New("user is required")
	}

	price := pricing.Resolve(request.Model)
	featurePrice := pricing.FeaturePrice(features)
	free := price.Prompt.IsZero() && price.Completion.IsZero() &&
		price.Request.IsZero() && featurePrice.IsZero()
	if free {
		return nil
	}

	credit, err := dbmodel.InitCredit(user.Id)
	if err != nil {
		return errors.Wrapf(err, "ensure balance of user %s", user.Id)
	}
	if credit.Credit.IsPositive() && credit.Credit.GreaterThanOrEqual(decimal.Max(price.Minimum, decimal.Zero)) {
		return nil
	}

	if chatID != "" && messageID != "" {
		if err := dbmodel.UpsertMessageError(chatID, messageID, config.CreditNoCreditMsg); err != nil {
			logger.Logger.Warn("annotate refused chat message",
				zap.String("chat", chatID), zap.String("message", messageID), zap.Error(err))
		}
	}
	return &InsufficientCreditError{UserId: user.Id}
}
