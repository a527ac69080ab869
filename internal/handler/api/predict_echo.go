package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	models "CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/service/cache"
	"CoinCast/internal/usecase"
	xhttp "CoinCast/pkg/http"
	xlogger "CoinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PredictEchoHandler serves the prediction endpoints.
type PredictEchoHandler struct {
	logger  *xlogger.Logger
	uc      *usecase.PredictUseCase
	cache   cache.BytesCache
	gens    *cache.Generations
	ttl     time.Duration
	metrics domrepo.Metrics
}

// NewPredictEchoHandler wires the handler. responses may be nil to
// disable response caching. gens is shared with the artifact events
// handler so a response computed before a purge is not stored after it.
func NewPredictEchoHandler(logger *xlogger.Logger, uc *usecase.PredictUseCase, responses cache.BytesCache, gens *cache.Generations, ttl time.Duration, m domrepo.Metrics) *PredictEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if responses == nil {
		responses = cache.Noop{}
	}
	return &PredictEchoHandler{logger: logger, uc: uc, cache: responses, gens: gens, ttl: ttl, metrics: m}
}

func (h *PredictEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/predict/:coin", h.Predict)
	e.GET("/predict/:coin/latest", h.PredictLatest)
	e.GET("/coins", h.Coins)
}

// Predict handles POST /predict/:coin with body {"prices": [...]}.
func (h *PredictEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.UnprocessableResponse(c, verr)
	}
	req.Coin = unescapeCoin(c, req.Coin)
	ctx := c.Request().Context()
	gen := h.gens.Snapshot(req.Coin)

	// only successful responses are stored, so a hit never skips validation
	key := cache.PredictionKey(req.Coin, req.Prices)
	if _, noop := h.cache.(cache.Noop); !noop {
		b, ok, err := h.cache.GetBytes(ctx, key)
		if err != nil {
			h.logger.Warn("prediction cache read failed", xlogger.String("coin", req.Coin), xlogger.Error(err))
		}
		h.recordLookup(ok)
		if ok {
			if h.metrics != nil {
				h.metrics.RecordPrediction(strings.ToLower(req.Coin), usecase.SourceCache)
			}
			return xhttp.RawJSONResponse(c, http.StatusOK, b)
		}
	}

	out, err := h.uc.Predict(ctx, req.Coin, req.Prices)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err, req.Coin))
	}
	body, err := json.Marshal(models.PredictResponse{Prediction: out})
	if err != nil {
		h.logger.Error("encode prediction", xlogger.String("coin", req.Coin), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if !h.gens.Current(req.Coin, gen) {
		h.logger.Debug("artifacts changed during request, not caching", xlogger.String("coin", req.Coin))
	} else if err := h.cache.SetBytes(ctx, key, body, h.ttl); err != nil {
		h.logger.Warn("prediction cache write failed", xlogger.String("coin", req.Coin), xlogger.Error(err))
	}
	return xhttp.RawJSONResponse(c, http.StatusOK, body)
}

// PredictLatest handles GET /predict/:coin/latest?n=&tf=.
func (h *PredictEchoHandler) PredictLatest(c echo.Context) error {
	req := &models.LatestPredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.UnprocessableResponse(c, verr)
	}
	req.Coin = unescapeCoin(c, req.Coin)
	res, err := h.uc.PredictLatest(c.Request().Context(), *req)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err, req.Coin))
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

// Coins handles GET /coins.
func (h *PredictEchoHandler) Coins(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string][]string{"coins": h.uc.Coins()})
}

func (h *PredictEchoHandler) appError(err error, coin string) *xhttp.AppError {
	ae := toAppError(err, coin, h.uc.LookBack())
	if ae.Status >= http.StatusInternalServerError {
		h.logger.Error("predict usecase error",
			xlogger.String("coin", coin),
			xlogger.String("code", ae.Code),
			xlogger.Int("status", ae.Status),
			xlogger.Error(err),
		)
	}
	return ae
}

// unescapeCoin decodes the coin path segment. echo routes on the raw
// path, and so hands over an undecoded param, only when URL.RawPath is set.
func unescapeCoin(c echo.Context, raw string) string {
	if c.Request().URL.RawPath == "" {
		return raw
	}
	if s, err := url.PathUnescape(raw); err == nil {
		return s
	}
	return raw
}

func (h *PredictEchoHandler) recordLookup(hit bool) {
	if h.metrics != nil {
		h.metrics.RecordCacheLookup("prediction", hit)
	}
}
