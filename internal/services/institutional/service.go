// Package institutional aggregates the TWSE three-institution daily
// net buy/sell reports into a year-to-date cumulative view. Manually
// uploaded report CSVs take precedence over network fetches, which keeps
// the aggregate working across TWSE outages and rate bans.
package institutional

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/haolin-w/pulse/internal/cache"
	"github.com/haolin-w/pulse/internal/clients/twse"
	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
)

const ytdCacheKey = "institutional_ytd"

// uploadedFileRe matches stored report filenames: an optional BFI82U_
// prefix and a YYYYMMDD stamp.
var uploadedFileRe = regexp.MustCompile(`^(?:BFI82U_)?(\d{8})\.csv$`)

var dateFormRe = regexp.MustCompile(`(\d{8})`)

// Service implements interfaces.InstitutionalService.
type Service struct {
	provider interfaces.InstitutionalReportProvider
	store    *cache.Store
	logger   *common.Logger
	dataDir  string
	now      func() time.Time

	// Historical day reports are immutable once published; misses on
	// past days are holidays and equally final.
	mu      sync.Mutex
	reports map[string]*models.InstitutionalDailyNet
	misses  map[string]bool
}

// Option configures the service
type Option func(*Service)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the institutional service. dataDir holds uploaded
// report CSVs and is created on first save.
func NewService(provider interfaces.InstitutionalReportProvider, store *cache.Store, dataDir string, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		store:    store,
		logger:   logger,
		dataDir:  dataDir,
		now:      time.Now,
		reports:  make(map[string]*models.InstitutionalDailyNet),
		misses:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetYearToDate walks every weekday of the current year up to today and
// returns cumulative net totals. The payload is cached for the calendar
// day: yesterday's aggregate goes stale at midnight, not after a TTL.
func (s *Service) GetYearToDate(ctx context.Context, forceRefresh bool) (*models.InstitutionalYTD, error) {
	now := s.now()
	if !forceRefresh {
		if payload, fetchedAt, ok := s.store.Get(ytdCacheKey); ok && common.SameCalendarDay(fetchedAt, now) {
			if ytd, ok := payload.(*models.InstitutionalYTD); ok {
				return ytd, nil
			}
		}
	}

	year := now.Year()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	uploaded := s.uploadedFiles()

	ytd := &models.InstitutionalYTD{
		Year:      year,
		Timestamp: now.UTC(),
	}
	var cumForeign, cumTrust, cumDealer, cumTotal int64
	var fetchErr string

	for d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); !d.After(today); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dateStr := d.Format("20060102")
		report, err := s.dayReport(ctx, d, dateStr, uploaded[dateStr], today)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue // holiday or not yet published
			}
			s.logger.Warn().Err(err).Str("date", dateStr).Msg("daily report fetch failed")
			fetchErr = err.Error()
			continue
		}

		total := report.TotalNet()
		cumForeign += report.ForeignNet
		cumTrust += report.TrustNet
		cumDealer += report.DealerNet
		cumTotal += total

		ytd.Daily = append(ytd.Daily, models.InstitutionalNetDay{
			Date:              dateStr,
			DateDisplay:       d.Format("2006-01-02"),
			ForeignNet:        report.ForeignNet,
			TrustNet:          report.TrustNet,
			DealerNet:         report.DealerNet,
			TotalNet:          total,
			CumulativeForeign: cumForeign,
			CumulativeTrust:   cumTrust,
			CumulativeDealer:  cumDealer,
			CumulativeTotal:   cumTotal,
		})
		ytd.Labels = append(ytd.Labels, d.Format("2006-01-02"))
		ytd.CumulativeForeignMillions = append(ytd.CumulativeForeignMillions, toMillions(cumForeign))
		ytd.CumulativeTrustMillions = append(ytd.CumulativeTrustMillions, toMillions(cumTrust))
		ytd.CumulativeDealerMillions = append(ytd.CumulativeDealerMillions, toMillions(cumDealer))
		ytd.CumulativeTotalMillions = append(ytd.CumulativeTotalMillions, toMillions(cumTotal))
	}

	ytd.FetchError = fetchErr
	ytd.UploadedDates = s.UploadedDates()

	s.store.Put(ytdCacheKey, ytd)
	return ytd, nil
}

func toMillions(v int64) float64 {
	return math.Round(float64(v)/1e6*100) / 100
}

// dayReport resolves one trading day: uploaded file first, then the
// in-memory report cache, then the network.
func (s *Service) dayReport(ctx context.Context, d time.Time, dateStr, uploadedPath string, today time.Time) (*models.InstitutionalDailyNet, error) {
	if uploadedPath != "" {
		raw, err := os.ReadFile(uploadedPath)
		if err == nil {
			report, perr := twse.ParseDailyCSV(raw, dateStr)
			if perr == nil {
				return report, nil
			}
			s.logger.Warn().Err(perr).Str("file", uploadedPath).Msg("uploaded report unparseable, falling back to fetch")
		}
	}

	s.mu.Lock()
	if report, ok := s.reports[dateStr]; ok {
		s.mu.Unlock()
		return report, nil
	}
	if s.misses[dateStr] {
		s.mu.Unlock()
		return nil, interfaces.ErrNotFound
	}
	s.mu.Unlock()

	report, err := s.provider.DailyReport(ctx, d)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) && d.Before(today) {
			// A past weekday with no report is a holiday, permanently.
			s.mu.Lock()
			s.misses[dateStr] = true
			s.mu.Unlock()
		}
		return nil, err
	}

	s.mu.Lock()
	s.reports[dateStr] = report
	s.mu.Unlock()
	return report, nil
}

// uploadedFiles maps YYYYMMDD dates to stored file paths.
func (s *Service) uploadedFiles() map[string]string {
	out := make(map[string]string)
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if m := uploadedFileRe.FindStringSubmatch(entry.Name()); m != nil {
			out[m[1]] = filepath.Join(s.dataDir, entry.Name())
		}
	}
	return out
}

// UploadedDates lists dates with a manually uploaded CSV, ascending.
func (s *Service) UploadedDates() []string {
	files := s.uploadedFiles()
	dates := make([]string, 0, len(files))
	for date := range files {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// SaveUpload validates and stores an uploaded BFI82U CSV. The trading
// date is resolved from the explicit form value, then the filename, then
// the report content itself (which may carry an ROC calendar date).
func (s *Service) SaveUpload(formDate, filename string, content []byte) (string, error) {
	date, err := s.resolveDate(formDate, filename, content)
	if err != nil {
		return "", err
	}

	// Reject files that do not parse as a report before persisting.
	if _, err := twse.ParseDailyCSV(content, date); err != nil {
		return "", fmt.Errorf("uploaded file is not a BFI82U report: %w", err)
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	// Write-then-rename keeps a concurrent YTD walk from reading a
	// half-written file.
	final := filepath.Join(s.dataDir, fmt.Sprintf("BFI82U_%s.csv", date))
	tmp, err := os.CreateTemp(s.dataDir, ".upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	// The uploaded day may change the aggregate immediately.
	s.store.Invalidate(ytdCacheKey)
	s.mu.Lock()
	delete(s.misses, date)
	s.mu.Unlock()

	s.logger.Info().Str("date", date).Str("file", final).Msg("institutional report uploaded")
	return date, nil
}

func (s *Service) resolveDate(formDate, filename string, content []byte) (string, error) {
	if formDate != "" {
		if _, err := time.Parse("20060102", formDate); err != nil {
			return "", fmt.Errorf("invalid date %q, want YYYYMMDD", formDate)
		}
		return formDate, nil
	}
	if m := dateFormRe.FindStringSubmatch(filename); m != nil {
		if _, err := time.Parse("20060102", m[1]); err == nil {
			return m[1], nil
		}
	}
	decoded, err := twse.DecodeBig5(content)
	if err == nil {
		if date, ok := twse.ExtractDate(decoded); ok {
			if _, err := time.Parse("20060102", date); err == nil {
				return date, nil
			}
		}
	}
	return "", fmt.Errorf("could not determine report date from form, filename, or content")
}

// Ensure Service implements InstitutionalService
var _ interfaces.InstitutionalService = (*Service)(nil)
