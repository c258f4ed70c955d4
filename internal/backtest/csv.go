package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var tradeHeader = []string{
	"entry_index",
	"exit_index",
	"t_in",
	"t_out",
	"side",
	"entry_price",
	"exit_price",
	"take_profit",
	"stop_loss",
	"ret",
	"reason",
}

func WriteTradesCSV(path string, trades []Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := EncodeTradesCSV(f, trades); err != nil {
		return err
	}
	return f.Close()
}

// EncodeTradesCSV writes the trade log with a header row. An empty trade list still
// produces the header so readers can tell "no trades" from "no file".
func EncodeTradesCSV(out io.Writer, trades []Trade) error {
	w := csv.NewWriter(out)
	if err := w.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			strconv.Itoa(t.EntryIndex),
			strconv.Itoa(t.ExitIndex),
			fmtTime(t.EntryTime),
			fmtTime(t.ExitTime),
			strconv.Itoa(int(t.Side)),
			fmtPrice(t.EntryPrice),
			fmtPrice(t.ExitPrice),
			fmtPrice(t.TakeProfit),
			fmtPrice(t.StopLoss),
			fmtReturn(t.Return),
			string(t.Reason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtPrice(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(6)
}

func fmtReturn(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(8)
}
