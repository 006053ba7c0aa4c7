// Package calendar mirrors bookings into an external spreadsheet calendar.
package calendar

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Syncer pushes a booking's current state to the external calendar.
type Syncer interface {
	Push(ctx context.Context, b *models.Booking) error
}

// Noop is used when no external calendar is configured.
type Noop struct{}

func (Noop) Push(context.Context, *models.Booking) error { return nil }

var header = []interface{}{
	"Code", "Date", "Type", "Window", "Customer", "Status", "Lifecycle", "Payment", "Updated",
}

// SheetsSync keeps one row per booking, keyed by reservation code in column A.
type SheetsSync struct {
	srv           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	mu       sync.Mutex
	rowCache map[int64]int // booking id -> 1-based row
}

// NewSheetsSync authenticates with a service account key file.
func NewSheetsSync(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*SheetsSync, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newSheetsSync(srv, spreadsheetID, sheetName, logger), nil
}

func newSheetsSync(srv *sheets.Service, spreadsheetID, sheetName string, logger *zerolog.Logger) *SheetsSync {
	return &SheetsSync{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.With().Str("component", "sheets").Logger(),
		rowCache:      make(map[int64]int),
	}
}

// Push updates the booking's row, appending one if the code is not on the sheet yet.
func (s *SheetsSync) Push(ctx context.Context, b *models.Booking) error {
	values := bookingRowValues(b)

	row, ok := s.getCachedRow(b.ID)
	if !ok {
		found, err := s.findRow(ctx, b.Code)
		if err != nil {
			return err
		}
		row, ok = found, found > 0
	}

	if ok {
		rng := fmt.Sprintf("%s!A%d", s.sheetName, row)
		_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
			Values: [][]interface{}{values},
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			s.deleteCacheRow(b.ID)
			return fmt.Errorf("update row %d: %w", row, err)
		}
		s.setCachedRow(b.ID, row)
		return nil
	}

	resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil {
		if n := rowFromRange(resp.Updates.UpdatedRange); n > 0 {
			s.setCachedRow(b.ID, n)
		}
	}
	s.logger.Debug().Str("code", b.Code).Msg("Booking appended to sheet")
	return nil
}

// EnsureHeader writes the header row when the sheet is empty.
func (s *SheetsSync) EnsureHeader(ctx context.Context) error {
	rng := s.sheetName + "!A1:I1"
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *SheetsSync) findRow(ctx context.Context, code string) (int, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read codes: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == code {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (s *SheetsSync) getCachedRow(id int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsSync) setCachedRow(id int64, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsSync) deleteCacheRow(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache forgets every known row, e.g. after rows were sorted by hand.
func (s *SheetsSync) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[int64]int)
}

func bookingRowValues(b *models.Booking) []interface{} {
	window := "full day"
	if !b.IsDaily() {
		window = b.Window().String()
	}
	return []interface{}{
		b.Code,
		b.EventDate.String(),
		string(b.Type),
		window,
		b.CustomerName,
		string(b.Status),
		string(b.LifecycleStatus),
		string(b.PaymentStatus),
		b.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number from "Sheet!A5:I5".
func rowFromRange(rng string) int {
	m := rangeRowRe.FindStringSubmatch(rng)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
