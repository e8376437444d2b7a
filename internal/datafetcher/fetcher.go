package datafetcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"llm-trading-bot-go/internal/models"
)

// Fetcher supplies the recent candles a trading cycle analyzes.
type Fetcher interface {
	FetchRecent(ctx context.Context, symbols []string, interval string, limit int) (models.MarketData, error)
}

// BinanceFetcher pulls klines from the Binance public market data endpoints.
// No API key is needed.
type BinanceFetcher struct {
	client *binance.Client
	logger *zap.SugaredLogger
}

func NewBinanceFetcher(logger *zap.SugaredLogger) *BinanceFetcher {
	return &BinanceFetcher{
		client: binance.NewClient("", ""),
		logger: logger,
	}
}

// FetchRecent downloads the latest candles per symbol. A symbol whose
// download fails is skipped with a warning so one bad feed does not starve
// the whole cycle; an error is returned only when every symbol fails.
func (f *BinanceFetcher) FetchRecent(ctx context.Context, symbols []string, interval string, limit int) (models.MarketData, error) {
	if interval == "" {
		interval = "5m"
	}
	if limit <= 0 {
		limit = 20
	}

	data := make(models.MarketData, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		klines, err := f.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		if err != nil {
			f.logger.Warnf("Failed to fetch klines for %s: %v", symbol, err)
			lastErr = err
			continue
		}
		data[symbol] = toBars(klines)
	}

	if len(data) == 0 && lastErr != nil {
		return nil, fmt.Errorf("fetching market data: %w", lastErr)
	}
	return data, nil
}

func toBars(klines []*binance.Kline) []models.Bar {
	bars := make([]models.Bar, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		bars = append(bars, models.Bar{
			Time:   time.UnixMilli(k.OpenTime),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return bars
}
