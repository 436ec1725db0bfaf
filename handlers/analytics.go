package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cynix/middleware"
	"cynix/models"
)

type DataReader interface {
	GetRawData(ctx context.Context, wallet, dataType string, params map[string]any) (json.RawMessage, error)
	GetAnalyticsData(ctx context.Context, wallet, metric, timeframe string) (*models.AnalyticsResult, error)
}

type UsageReader interface {
	Usage(ctx context.Context, identity string, now time.Time) (*models.UsageStats, error)
}

type AccessReader interface {
	CheckAccess(ctx context.Context, wallet string) (*models.WalletAccessInfo, error)
}

// DataHandlers serves token-gated data, analytics and account usage.
type DataHandlers struct {
	data   DataReader
	usage  UsageReader
	access AccessReader
}

func NewDataHandlers(data DataReader, usage UsageReader, access AccessReader) *DataHandlers {
	return &DataHandlers{data: data, usage: usage, access: access}
}

// requestWallet prefers an explicit wallet_address over the credential's wallet.
func requestWallet(c echo.Context) string {
	if w := c.QueryParam("wallet_address"); w != "" {
		return w
	}
	return middleware.WalletFrom(c)
}

// GetRawData serves /data/:data_type. Query parameters other than
// wallet_address are passed to the fetcher.
func (dh *DataHandlers) GetRawData(c echo.Context) error {
	params := make(map[string]any)
	for name, values := range c.QueryParams() {
		if name == "wallet_address" || len(values) == 0 {
			continue
		}
		params[name] = values[0]
	}

	payload, err := dh.data.GetRawData(c.Request().Context(), requestWallet(c), c.Param("data_type"), params)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, payload)
}

func (dh *DataHandlers) GetAnalytics(c echo.Context) error {
	timeframe := c.QueryParam("timeframe")
	if timeframe == "" {
		timeframe = string(models.Timeframe24h)
	}

	result, err := dh.data.GetAnalyticsData(c.Request().Context(), requestWallet(c), c.Param("metric"), timeframe)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (dh *DataHandlers) GetUsage(c echo.Context) error {
	stats, err := dh.usage.Usage(c.Request().Context(), middleware.IdentityFrom(c), time.Now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (dh *DataHandlers) GetAccess(c echo.Context) error {
	info, err := dh.access.CheckAccess(c.Request().Context(), requestWallet(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}
