package quote

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical column names of the long format.
const (
	ColExpirationDate = "ExpirationDate"
	ColStrike         = "Strike"
	ColBid            = "Bid"
	ColAsk            = "Ask"
	ColImpliedVol     = "ImpliedVol"
	ColVolume         = "Volume"
	ColOpenInterest   = "OpenInterest"
	ColType           = "Type"
	ColIndexSpot      = "IndexSpot"
)

// LongColumns is the header written and required for the long format.
var LongColumns = []string{
	ColExpirationDate, ColStrike, ColBid, ColAsk, ColImpliedVol,
	ColVolume, ColOpenInterest, ColType, ColIndexSpot,
}

// columnAliases maps headers produced by the combined CBOE and yfinance exports.
var columnAliases = map[string]string{
	"Expiration Date":   ColExpirationDate,
	"expirationDate":    ColExpirationDate,
	"strike":            ColStrike,
	"bid":               ColBid,
	"ask":               ColAsk,
	"IV":                ColImpliedVol,
	"impliedVolatility": ColImpliedVol,
	"volume":            ColVolume,
	"Open Interest":     ColOpenInterest,
	"openInterest":      ColOpenInterest,
	"type":              ColType,
	"Index Spot":        ColIndexSpot,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"Mon Jan 02 2006",
	"01/02/2006",
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// ReadLong reads a long-format table, one quote per line.
func ReadLong(r io.Reader, name string) ([]Row, error) {
	records, err := newCSVReader(r).ReadAll()
	if err != nil {
		return nil, &ParseError{Block: name, Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &ParseError{Block: name, Reason: "empty block"}
	}

	idx := make(map[string]int)
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if canon, ok := columnAliases[h]; ok {
			h = canon
		}
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	for _, col := range LongColumns {
		if _, ok := idx[col]; !ok {
			return nil, &ParseError{Block: name, Line: 1, Reason: fmt.Sprintf("missing column %q", col)}
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		line := n + 2
		field := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		row, err := parseRow(field)
		if err != nil {
			return nil, &ParseError{Block: name, Line: line, Reason: err.Error()}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadCBOE reads one CBOE quote-table export: a preamble carrying the index
// level, then a header with the call block left of Strike and the put block right of it.
func ReadCBOE(r io.Reader, name string) ([]Row, error) {
	records, err := newCSVReader(r).ReadAll()
	if err != nil {
		return nil, &ParseError{Block: name, Reason: err.Error()}
	}

	header := -1
	spot := math.NaN()
	for i, rec := range records {
		if contains(rec, "Strike") && contains(rec, "Expiration Date") {
			header = i
			break
		}
		for _, f := range rec {
			if v, ok := parseLast(f); ok {
				spot = v
			}
		}
	}
	if header < 0 {
		return nil, &ParseError{Block: name, Reason: "no Expiration Date/Strike header"}
	}

	head := records[header]
	strikeAt := indexOf(head, "Strike")
	calls := blockIndex(head[:strikeAt], 0)
	puts := blockIndex(head[strikeAt+1:], strikeAt+1)
	if d := indexOf(head, "Expiration Date"); d >= 0 {
		calls["Expiration Date"] = d
		puts["Expiration Date"] = d
	}
	for _, block := range []map[string]int{calls, puts} {
		for _, col := range []string{"Expiration Date", "Bid", "Ask", "Volume", "IV", "Open Interest"} {
			if _, ok := block[col]; !ok {
				return nil, &ParseError{Block: name, Line: header + 1, Reason: fmt.Sprintf("missing column %q", col)}
			}
		}
	}

	rows := make([]Row, 0, 2*(len(records)-header-1))
	for n, rec := range records[header+1:] {
		line := header + n + 2
		for _, side := range []struct {
			cols map[string]int
			typ  string
		}{{calls, "Call"}, {puts, "Put"}} {
			field := func(col string) string {
				switch col {
				case ColType:
					return side.typ
				case ColStrike:
					return at(rec, strikeAt)
				case ColIndexSpot:
					if math.IsNaN(spot) {
						return ""
					}
					return decimal.NewFromFloat(spot).String()
				}
				return at(rec, side.cols[cboeColumn[col]])
			}
			row, err := parseRow(field)
			if err != nil {
				return nil, &ParseError{Block: name, Line: line, Reason: err.Error()}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

var cboeColumn = map[string]string{
	ColExpirationDate: "Expiration Date",
	ColBid:            "Bid",
	ColAsk:            "Ask",
	ColImpliedVol:     "IV",
	ColVolume:         "Volume",
	ColOpenInterest:   "Open Interest",
}

func parseRow(field func(col string) string) (Row, error) {
	var row Row
	var err error

	if row.Expiry, err = parseDate(field(ColExpirationDate)); err != nil {
		return row, err
	}
	if row.Type, err = ParseOptionType(field(ColType)); err != nil {
		return row, err
	}
	for _, f := range []struct {
		col string
		dst *float64
	}{
		{ColStrike, &row.Strike},
		{ColBid, &row.Bid},
		{ColAsk, &row.Ask},
		{ColImpliedVol, &row.ImpliedVol},
		{ColIndexSpot, &row.IndexSpot},
	} {
		if *f.dst, err = parseFloat(field(f.col)); err != nil {
			return row, fmt.Errorf("column %s: %w", f.col, err)
		}
	}
	for _, f := range []struct {
		col string
		dst *int64
	}{
		{ColVolume, &row.Volume},
		{ColOpenInterest, &row.OpenInterest},
	} {
		if *f.dst, err = parseCount(field(f.col)); err != nil {
			return row, fmt.Errorf("column %s: %w", f.col, err)
		}
	}
	return row, nil
}

func isAbsent(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-", "--", "n/a", "na", "nan", "null":
		return true
	}
	return false
}

// parseFloat returns NaN for an absent field and an error for a malformed one.
func parseFloat(s string) (float64, error) {
	if isAbsent(s) {
		return math.NaN(), nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return d.InexactFloat64(), nil
}

func parseCount(s string) (int64, error) {
	if isAbsent(s) {
		return AbsentCount, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative count %q", s)
	}
	return d.IntPart(), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing expiration date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ExpiryDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiration date %q", s)
}

// parseLast extracts the index level from a preamble field like "Last: 5,870.62".
func parseLast(f string) (float64, bool) {
	parts := strings.Fields(f)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "Last") {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(parts[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// blockIndex maps the first occurrence of each header name to its absolute column.
func blockIndex(cols []string, offset int) map[string]int {
	m := make(map[string]int)
	for i, c := range cols {
		c = strings.TrimSpace(c)
		if _, ok := m[c]; !ok {
			m[c] = i + offset
		}
	}
	return m
}

func indexOf(rec []string, name string) int {
	for i, f := range rec {
		if strings.TrimSpace(f) == name {
			return i
		}
	}
	return -1
}

func contains(rec []string, name string) bool {
	return indexOf(rec, name) >= 0
}

func at(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
