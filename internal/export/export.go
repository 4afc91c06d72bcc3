// Package export writes bookings of a date range to an Excel workbook.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bookpoint/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	scheduleSheet = "Schedule"
)

// Source is what the exporter reads.
type Source interface {
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error)
}

type Exporter struct {
	source Source
	dir    string
	logger *zerolog.Logger
}

func NewExporter(source Source, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// Export creates bookings_<start>_to_<end>.xlsx and returns its path.
func (e *Exporter) Export(ctx context.Context, start, end time.Time) (string, error) {
	if end.Before(start) {
		return "", fmt.Errorf("range end %s is before start %s", end.Format(models.DateLayout), start.Format(models.DateLayout))
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	bookings, err := e.source.GetBookingsByDateRange(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %w", err)
	}
	services, err := e.source.ListServices(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting services: %w", err)
	}
	staff, err := e.source.ListStaff(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("error getting staff: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeBookings(f, bookings, serviceNames(services), staffNames(staff)); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(scheduleSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeSchedule(f, start, end, bookings, staff); err != nil {
		return "", err
	}
	f.SetActiveSheet(0)

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", start.Format(models.DateLayout), end.Format(models.DateLayout))
	path := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int("bookings", len(bookings)).Msg("Excel file created")
	return path, nil
}

var bookingHeader = []interface{}{
	"Code", "Date", "Start", "End", "Service", "Staff", "Party", "Status",
	"Customer", "Email", "Phone", "Total",
}

func writeBookings(f *excelize.File, bookings []models.Booking, services, staff map[int64]string) error {
	if err := f.SetSheetRow(bookingsSheet, "A1", &bookingHeader); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "L1", headerStyle)

	revenue := decimal.Zero
	for i, b := range bookings {
		total, _ := b.Total.Float64()
		row := []interface{}{
			b.BookingCode,
			b.Date.Format(models.DateLayout),
			b.StartTime,
			b.EndTime,
			nameOr(services, b.ServiceID),
			nameOr(staff, b.StaffID),
			b.PartySize,
			b.Status,
			strings.TrimSpace(b.Customer.FirstName + " " + b.Customer.LastName),
			b.Customer.Email,
			b.Customer.Phone,
			total,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing booking %s: %w", b.BookingCode, err)
		}
		if b.IsActive() {
			revenue = revenue.Add(b.Total)
		}
	}

	// итог только по активным заявкам
	sumRow := len(bookings) + 3
	labelCell, _ := excelize.CoordinatesToCellName(11, sumRow)
	valueCell, _ := excelize.CoordinatesToCellName(12, sumRow)
	_ = f.SetCellValue(bookingsSheet, labelCell, "Active total")
	sum, _ := revenue.Float64()
	_ = f.SetCellValue(bookingsSheet, valueCell, sum)

	_ = f.SetColWidth(bookingsSheet, "A", "A", 20)
	_ = f.SetColWidth(bookingsSheet, "E", "F", 20)
	_ = f.SetColWidth(bookingsSheet, "I", "J", 25)
	return nil
}

// writeSchedule lays out staff rows against date columns; each cell lists the
// active bookings of that staff member on that date.
func writeSchedule(f *excelize.File, start, end time.Time, bookings []models.Booking, staff []models.StaffMember) error {
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Period: %s - %s", start.Format("02.01.2006"), end.Format("02.01.2006")))

	dateCols := make(map[string]int)
	col := 2
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(scheduleSheet, cell, d.Format("02.01"))
		dateCols[d.Format(models.DateLayout)] = col
		col++
	}

	staffRows := make(map[int64]int, len(staff))
	for i, st := range staff {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(scheduleSheet, cell, st.Name)
		staffRows[st.ID] = i + 3
	}

	cells := make(map[string][]string)
	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		c, ok := dateCols[b.Date.Format(models.DateLayout)]
		r, ok2 := staffRows[b.StaffID]
		if !ok || !ok2 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c, r)
		cells[cell] = append(cells[cell], fmt.Sprintf("%s-%s (%d)", b.StartTime, b.EndTime, b.PartySize))
	}

	busy, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	for cell, lines := range cells {
		sort.Strings(lines)
		if err := f.SetCellValue(scheduleSheet, cell, strings.Join(lines, "\n")); err != nil {
			return fmt.Errorf("error writing schedule cell %s: %w", cell, err)
		}
		_ = f.SetCellStyle(scheduleSheet, cell, cell, busy)
	}

	lastCol, _ := excelize.ColumnNumberToName(max(col-1, 2))
	_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")
	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(scheduleSheet, "A1", "A1", title)
	_ = f.SetColWidth(scheduleSheet, "A", "A", 25)
	_ = f.SetColWidth(scheduleSheet, "B", lastCol, 18)
	return nil
}

func serviceNames(list []models.Service) map[int64]string {
	out := make(map[int64]string, len(list))
	for _, s := range list {
		out[s.ID] = s.Name
	}
	return out
}

func staffNames(list []models.StaffMember) map[int64]string {
	out := make(map[int64]string, len(list))
	for _, s := range list {
		out[s.ID] = s.Name
	}
	return out
}

func nameOr(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("#%d", id)
}
