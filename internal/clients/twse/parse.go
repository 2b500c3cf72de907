package twse

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
)

var (
	// 民國 date, e.g. "115年01月02日"
	rocDateRe = regexp.MustCompile(`(\d{2,3})年(\d{1,2})月(\d{1,2})日`)
	// Western date with optional separators, e.g. "2026/01/02" or "20260102"
	westernDateRe = regexp.MustCompile(`(20\d{2})[/\-]?(\d{2})[/\-]?(\d{2})`)
)

// DecodeBig5 converts TWSE's Big5 payload to UTF-8. Content that is
// already valid UTF-8 passes through untouched, so re-encoded uploads
// keep working.
func DecodeBig5(raw []byte) ([]byte, error) {
	if utf8.Valid(raw) {
		return raw, nil
	}
	decoded, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Big5 content: %w", err)
	}
	return decoded, nil
}

// parseAmount strips thousands separators and quoting from a TWSE
// number cell.
func parseAmount(cell string) (int64, bool) {
	s := strings.TrimSpace(cell)
	s = strings.Trim(s, `"=`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "--" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ExtractDate scans report content for a trading date and returns it as
// YYYYMMDD. TWSE headers usually carry a 民國 (ROC calendar) date; saved
// copies sometimes carry a western one instead.
func ExtractDate(content []byte) (string, bool) {
	if m := rocDateRe.FindSubmatch(content); m != nil {
		year, _ := strconv.Atoi(string(m[1]))
		month, _ := strconv.Atoi(string(m[2]))
		day, _ := strconv.Atoi(string(m[3]))
		return fmt.Sprintf("%04d%02d%02d", year+1911, month, day), true
	}
	if m := westernDateRe.FindSubmatch(content); m != nil {
		return string(m[1]) + string(m[2]) + string(m[3]), true
	}
	return "", false
}

// ParseDailyCSV parses one BFI82U report. date is the YYYYMMDD trading
// day the caller believes the report covers; it is recorded on the
// result as-is.
//
// Categorization follows the report's row labels: rows starting with
// 外資 count as foreign (including 外資自營商), 投信 as investment
// trust, 自營商 as dealer (both the proprietary and hedge rows). A 合計
// row becomes the explicit total.
func ParseDailyCSV(raw []byte, date string) (*models.InstitutionalDailyNet, error) {
	decoded, err := DecodeBig5(raw)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(decoded))
	if text == "" {
		// Holiday or future date.
		return nil, interfaces.ErrNotFound
	}
	if strings.Contains(strings.ToLower(text), "<html") {
		return nil, interfaces.ErrNotFound
	}

	report := &models.InstitutionalDailyNet{Date: date}
	found := false

	// Parsed line by line: the header and the trailing remark lines are
	// not well-formed CSV and must not abort the data rows.
	for _, line := range strings.Split(text, "\n") {
		reader := csv.NewReader(strings.NewReader(line))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true

		record, err := reader.Read()
		if err != nil {
			continue
		}
		if len(record) < 4 {
			continue
		}
		label := strings.TrimSpace(record[0])
		if label == "" {
			continue
		}

		// 買賣差額 is the last of the three amount columns.
		net, ok := parseAmount(record[3])
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(label, "外資"):
			report.ForeignNet += net
			found = true
		case strings.HasPrefix(label, "投信"):
			report.TrustNet += net
			found = true
		case strings.HasPrefix(label, "自營商"):
			report.DealerNet += net
			found = true
		case strings.HasPrefix(label, "合計"):
			total := net
			report.ExplicitTotal = &total
			found = true
		}
	}

	if !found {
		return nil, fmt.Errorf("no institution rows in report for %s: %w", date, interfaces.ErrNotFound)
	}
	return report, nil
}
