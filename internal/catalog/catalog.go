// Package catalog loads the services, staff and availability file used to
// seed a booking store.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// File is the on-disk catalog. IDs are explicit so re-running the seed updates
// rows in place.
type File struct {
	BusinessHours *models.BusinessHours `yaml:"business_hours"`
	Services      []ServiceEntry        `yaml:"services"`
	Staff         []StaffEntry          `yaml:"staff"`
}

type ServiceEntry struct {
	ID           int64        `yaml:"id"`
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description"`
	Duration     int          `yaml:"duration"`
	BufferBefore int          `yaml:"buffer_before"`
	BufferAfter  int          `yaml:"buffer_after"`
	CapacityMin  int          `yaml:"capacity_min"`
	CapacityMax  int          `yaml:"capacity_max"`
	Price        string       `yaml:"price"`
	Active       *bool        `yaml:"active"`
	Extras       []ExtraEntry `yaml:"extras"`
}

type ExtraEntry struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Duration int    `yaml:"duration"`
	Active   *bool  `yaml:"active"`
}

type StaffEntry struct {
	ID                 int64               `yaml:"id"`
	Name               string              `yaml:"name"`
	Email              string              `yaml:"email"`
	Phone              string              `yaml:"phone"`
	Services           []int64             `yaml:"services"`
	UsesCustomSchedule bool                `yaml:"uses_custom_schedule"`
	Weekdays           []int               `yaml:"weekdays"` // 0=Sunday .. 6=Saturday
	DaysOff            []DayOffEntry       `yaml:"days_off"`
	Active             *bool               `yaml:"active"`
	Availability       []AvailabilityEntry `yaml:"availability"`
}

type DayOffEntry struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// AvailabilityEntry replaces every block of one date.
type AvailabilityEntry struct {
	Date   string       `yaml:"date"`
	Blocks []BlockEntry `yaml:"blocks"`
}

type BlockEntry struct {
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Available *bool  `yaml:"available"`
	Note      string `yaml:"note"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Services     int
	Extras       int
	Staff        int
	Availability int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("no services in catalog")
	}
	return &f, nil
}

// Apply upserts the whole file through w in dependency order.
func Apply(ctx context.Context, w domain.CatalogWriter, f *File, logger *zerolog.Logger) (Summary, error) {
	var sum Summary

	if f.BusinessHours != nil {
		raw, err := json.Marshal(f.BusinessHours)
		if err != nil {
			return sum, err
		}
		if err := w.SetSetting(ctx, models.SettingBusinessHours, string(raw)); err != nil {
			return sum, fmt.Errorf("business hours: %w", err)
		}
	}

	for _, entry := range f.Services {
		svc, err := entry.toModel()
		if err != nil {
			return sum, err
		}
		if err := w.UpsertService(ctx, svc); err != nil {
			return sum, fmt.Errorf("service %q: %w", entry.Name, err)
		}
		sum.Services++

		for _, ex := range entry.Extras {
			extra, err := ex.toModel(svc.ID)
			if err != nil {
				return sum, err
			}
			if err := w.UpsertExtra(ctx, extra); err != nil {
				return sum, fmt.Errorf("extra %q: %w", ex.Name, err)
			}
			sum.Extras++
		}
	}

	for _, entry := range f.Staff {
		member := entry.toModel()
		if err := w.UpsertStaff(ctx, member); err != nil {
			return sum, fmt.Errorf("staff %q: %w", entry.Name, err)
		}
		sum.Staff++

		for _, av := range entry.Availability {
			date, err := time.Parse(models.DateLayout, strings.TrimSpace(av.Date))
			if err != nil {
				return sum, fmt.Errorf("staff %q: invalid availability date %q", entry.Name, av.Date)
			}
			blocks := make([]models.AvailabilityBlock, 0, len(av.Blocks))
			for _, b := range av.Blocks {
				blocks = append(blocks, models.AvailabilityBlock{
					StaffID:     member.ID,
					Date:        date,
					StartTime:   b.Start,
					EndTime:     b.End,
					IsAvailable: boolOr(b.Available, true),
					Note:        b.Note,
				})
			}
			if err := w.ReplaceAvailability(ctx, member.ID, date, blocks); err != nil {
				return sum, fmt.Errorf("staff %q availability %s: %w", entry.Name, av.Date, err)
			}
			sum.Availability += len(blocks)
		}
	}

	if logger != nil {
		logger.Info().
			Int("services", sum.Services).
			Int("extras", sum.Extras).
			Int("staff", sum.Staff).
			Int("availability_blocks", sum.Availability).
			Msg("catalog applied")
	}
	return sum, nil
}

func (e ServiceEntry) toModel() (*models.Service, error) {
	price, err := parsePrice(e.Price)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", e.Name, err)
	}
	capMin := e.CapacityMin
	if capMin == 0 {
		capMin = 1
	}
	capMax := e.CapacityMax
	if capMax == 0 {
		capMax = capMin
	}
	return &models.Service{
		ID:           e.ID,
		Name:         e.Name,
		Description:  e.Description,
		Duration:     e.Duration,
		BufferBefore: e.BufferBefore,
		BufferAfter:  e.BufferAfter,
		CapacityMin:  capMin,
		CapacityMax:  capMax,
		Price:        price,
		Active:       boolOr(e.Active, true),
	}, nil
}

func (e ExtraEntry) toModel(serviceID int64) (*models.Extra, error) {
	price, err := parsePrice(e.Price)
	if err != nil {
		return nil, fmt.Errorf("extra %q: %w", e.Name, err)
	}
	return &models.Extra{
		ID:        e.ID,
		ServiceID: serviceID,
		Name:      e.Name,
		Price:     price,
		Duration:  e.Duration,
		Active:    boolOr(e.Active, true),
	}, nil
}

func (e StaffEntry) toModel() *models.StaffMember {
	weekly := make(map[int]models.WeekdayRule, len(e.Weekdays))
	for _, d := range e.Weekdays {
		weekly[d] = models.WeekdayRule{Enabled: true}
	}
	daysOff := make([]models.DayOffException, 0, len(e.DaysOff))
	for _, off := range e.DaysOff {
		daysOff = append(daysOff, models.DayOffException{From: off.From, To: off.To, Start: off.Start, End: off.End})
	}
	return &models.StaffMember{
		ID:                 e.ID,
		Name:               e.Name,
		Email:              e.Email,
		Phone:              e.Phone,
		UsesCustomSchedule: e.UsesCustomSchedule,
		Schedule:           models.StaffSchedule{Weekly: weekly, DaysOff: daysOff},
		ServiceIDs:         e.Services,
		Active:             boolOr(e.Active, true),
	}
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", raw)
	}
	return d, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
