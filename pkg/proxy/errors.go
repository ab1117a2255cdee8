package proxy

import (
	"errors"
	"net/http"

	"lumenroute/prism/pkg/driver"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy/types"
	"lumenroute/prism/pkg/routing"
)

// MapError translates a core error into the HTTP status and
// OpenAI-shaped body the client sees.
//
// Status mapping: 400 bad request, 401 auth, 404 unsupported model,
// 422 unsupported feature, 429 rate limited, 499 cancelled,
// 502 all providers failed or any other provider error,
// 503 no providers available or every candidate breaker-open,
// 504 timeout, 500 for unclassified errors.
func MapError(err error) (int, *types.ErrorResponse) {
	var validation *providers.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, types.NewInvalidRequestError(validation.Error(), validation.Field, "")
	}

	if errors.Is(err, routing.ErrNoProvidersAvailable) {
		return http.StatusServiceUnavailable, types.NewError("service_unavailable", "no providers available for this request")
	}

	var allFailed *driver.AllProvidersFailedError
	if errors.As(err, &allFailed) {
		if allFailed.AllBreakersOpen() {
			return http.StatusServiceUnavailable, types.NewError("service_unavailable", allFailed.Error())
		}
		return http.StatusBadGateway, types.NewError("upstream_error", allFailed.Error())
	}

	var open *driver.BreakerOpenError
	if errors.As(err, &open) {
		return http.StatusServiceUnavailable, types.NewError("service_unavailable", open.Error())
	}

	if pe, ok := providers.AsError(err); ok {
		msg := pe.Message
		if msg == "" {
			msg = pe.Error()
		}
		switch pe.Kind {
		case providers.KindBadRequest:
			return http.StatusBadRequest, types.NewInvalidRequestError(msg, "", "")
		case providers.KindAuthFailed:
			return http.StatusUnauthorized, types.NewError("authentication_error", msg)
		case providers.KindUnsupportedModel:
			return http.StatusNotFound, types.NewError("model_not_found", pe.Error())
		case providers.KindUnsupportedFeature:
			return http.StatusUnprocessableEntity, types.NewError("unsupported_feature", pe.Error())
		case providers.KindRateLimited:
			return http.StatusTooManyRequests, types.NewError("rate_limit_error", msg)
		case providers.KindTimeout:
			return http.StatusGatewayTimeout, types.NewError("timeout", pe.Error())
		case providers.KindCancelled:
			// 499 in nginx tradition; Go has no constant for it.
			return 499, types.NewError("cancelled", "request cancelled")
		default:
			return http.StatusBadGateway, types.NewError("upstream_error", pe.Error())
		}
	}

	return http.StatusInternalServerError, types.NewError("internal_error", err.Error())
}
