package api

import (
	"errors"
	"strings"

	domsvc "CoinCast/internal/domain/service"
	xhttp "CoinCast/pkg/http"
)

const (
	codeArtifactUnavailable = "ERR_ARTIFACT_UNAVAILABLE"
	codeHistoryDisabled     = "ERR_HISTORY_DISABLED"
)

// toAppError maps domain errors onto the HTTP contract. coin is the
// symbol exactly as the client sent it.
func toAppError(err error, coin string, lookBack int) *xhttp.AppError {
	switch {
	case errors.Is(err, domsvc.ErrInsufficientPrices):
		return xhttp.BadRequestErrorf("At least %d prices are required for the prediction.", lookBack).WithError(err)
	case errors.Is(err, domsvc.ErrUnsupportedCoin):
		return xhttp.BadRequestErrorf("Unsupported coin: %s", coin).WithError(err)
	case errors.Is(err, domsvc.ErrArtifactUnavailable):
		return xhttp.ServiceUnavailableErrorf(codeArtifactUnavailable, "Artifacts unavailable for coin: %s", strings.ToLower(coin)).WithError(err)
	case errors.Is(err, domsvc.ErrUnsupportedTimeframe):
		return xhttp.BadRequestError(capitalize(err.Error())).WithError(err)
	case errors.Is(err, domsvc.ErrHistoryDisabled):
		return xhttp.NotFoundError(codeHistoryDisabled, "Price history is not enabled").WithError(err)
	default:
		return xhttp.InternalError("Internal Server Error").WithError(err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
