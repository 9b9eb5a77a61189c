package quote

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// WriteLong writes rows as a long-format table that ReadLong reads back.
// Absent values are written as empty fields.
func WriteLong(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LongColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		rec := []string{
			r.Expiry.Format("2006-01-02"),
			formatFloat(r.Strike),
			formatFloat(r.Bid),
			formatFloat(r.Ask),
			formatFloat(r.ImpliedVol),
			formatCount(r.Volume),
			formatCount(r.OpenInterest),
			r.Type.String(),
			formatFloat(r.IndexSpot),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return decimal.NewFromFloat(f).String()
}

func formatCount(n int64) string {
	if n == AbsentCount {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
