package services

import (
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/mpesa"
)

// reasonForResultCode classifies a non-zero callback ResultCode.
func reasonForResultCode(code int) models.FailureReason {
	switch code {
	case mpesa.ResultInsufficientFunds:
		return models.ReasonInsufficientFunds
	case mpesa.ResultCancelledByUser:
		return models.ReasonCancelledByUser
	case mpesa.ResultWrongPIN:
		return models.ReasonDeclined
	}
	return models.ReasonGatewayError
}

func reasonForRequestError(code mpesa.ErrorCode) models.FailureReason {
	switch code {
	case mpesa.CodeInvalidPhone:
		return models.ReasonInvalidPhone
	case mpesa.CodeInsufficientFunds:
		return models.ReasonInsufficientFunds
	case mpesa.CodeCancelled:
		return models.ReasonCancelledByUser
	case mpesa.CodeDeclined:
		return models.ReasonDeclined
	}
	return models.ReasonGatewayError
}
