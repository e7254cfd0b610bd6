package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"CryptoPull/internal/domain/models"
	"CryptoPull/internal/service/alerting"
	"CryptoPull/internal/usecase"
	xhttp "CryptoPull/pkg/http"
	xlogger "CryptoPull/pkg/logger"
)

// CandlesHandler serves persisted and in-progress candles plus the recent
// alert feed.
type CandlesHandler struct {
	logger  *xlogger.Logger
	candles *usecase.CandlesUseCase
	alerts  *alerting.Ring
}

func NewCandlesHandler(logger *xlogger.Logger, candles *usecase.CandlesUseCase, alerts *alerting.Ring) *CandlesHandler {
	return &CandlesHandler{logger: logger, candles: candles, alerts: alerts}
}

func (h *CandlesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/candles", h.Candles)
	g.GET("/candles/live", h.LiveCandle)
	g.GET("/alerts/recent", h.RecentAlerts)
}

func (h *CandlesHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now()
	params := usecase.GetCandlesParams{
		Venue:  req.Venue,
		Symbol: models.Symbol(req.Symbol),
		From:   xhttp.ParseTimeDefault(req.From, now.Add(-30*24*time.Hour)),
		To:     xhttp.ParseTimeDefault(req.To, now),
		Limit:  req.Limit,
	}

	res, err := h.candles.GetCandles(c.Request().Context(), params)
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CandlesHandler) LiveCandle(c echo.Context) error {
	req := &models.LiveCandleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	candle, err := h.candles.LiveCandle(c.Request().Context(), models.Symbol(req.Symbol))
	if err != nil {
		h.logger.Error("live candle usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if candle == nil {
		return xhttp.NotFoundResponse(c, "no live candle for "+req.Symbol)
	}
	return xhttp.SuccessResponse(c, candle)
}

func (h *CandlesHandler) RecentAlerts(c echo.Context) error {
	req := &models.RecentAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.alerts.Recent(req.Limit))
}

var _ xhttp.Handler = (*CandlesHandler)(nil)
