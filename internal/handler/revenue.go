package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garage-parking/internal/parking"
)

// RevenueSource computes revenue for a day and optional sector.
type RevenueSource interface {
	ForDate(ctx context.Context, date, sectorCode string) (*parking.Revenue, error)
}

// RevenueHandler serves GET /revenue?date=&sector= and POST /revenue with
// the same fields in a JSON body.
type RevenueHandler struct {
	revenue RevenueSource
}

func NewRevenueHandler(revenue RevenueSource) *RevenueHandler {
	return &RevenueHandler{revenue: revenue}
}

type revenueReq struct {
	Date   string `json:"date"`
	Sector string `json:"sector"`
}

type revenueResp struct {
	Amount    Amount `json:"amount"`
	Currency  string `json:"currency"`
	Timestamp string `json:"timestamp"`
}

// Amount renders cents as a JSON number with exactly two decimals.
type Amount int64

func (a Amount) MarshalJSON() ([]byte, error) {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign, v = "-", -v
	}
	return []byte(fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)), nil
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (h *RevenueHandler) Query(c echo.Context) error {
	return h.respond(c, revenueReq{Date: c.QueryParam("date"), Sector: c.QueryParam("sector")})
}

func (h *RevenueHandler) Body(c echo.Context) error {
	var req revenueReq
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return h.respond(c, req)
}

func (h *RevenueHandler) respond(c echo.Context, req revenueReq) error {
	rev, err := h.revenue.ForDate(c.Request().Context(), req.Date, req.Sector)
	if errors.Is(err, parking.ErrInvalidDate) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revenueResp{
		Amount:    Amount(rev.AmountCents),
		Currency:  rev.Currency,
		Timestamp: rev.Timestamp.UTC().Format(timestampLayout),
	})
}

var _ RevenueSource = (*parking.RevenueService)(nil)
