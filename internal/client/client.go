package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 10 * time.Second
	cachePrefix    = "bookpoint:client:"
)

// Client calls the bookpoint HTTP API.
type Client struct {
	http *resty.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// Error is a non-2xx answer from the API. Kind is empty for transport
// failures such as auth or rate limiting.
type Error struct {
	StatusCode int
	Kind       domain.Kind `json:"kind"`
	Message    string      `json:"error"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ErrorKind returns the booking-core error kind carried by err, or "".
func ErrorKind(err error) domain.Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

type TimeSlots struct {
	ServiceID int64             `json:"service_id"`
	StaffID   int64             `json:"staff_id"`
	Date      string            `json:"date"`
	Slots     []models.TimeSlot `json:"slots"`
}

type BookingRequest struct {
	ServiceID int64           `json:"service_id"`
	StaffID   int64           `json:"staff_id"`
	Date      string          `json:"date"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
	PartySize int             `json:"party_size"`
	Extras    []int64         `json:"extras,omitempty"`
	Customer  models.Customer `json:"customer"`
}

type Booking struct {
	ID          int64           `json:"id"`
	BookingCode string          `json:"booking_code"`
	ServiceID   int64           `json:"service_id"`
	StaffID     int64           `json:"staff_id"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	PartySize   int             `json:"party_size"`
	Status      string          `json:"status"`
	Customer    models.Customer `json:"customer"`
	Extras      []int64         `json:"extras"`
	Total       string          `json:"total"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// New builds a client for baseURL. Empty apiKey or apiExtra headers are not sent.
func New(baseURL, apiKey, apiExtra string) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		rc.SetHeader("x-api-key", apiKey)
	}
	if apiExtra != "" {
		rc.SetHeader("x-api-extra", apiExtra)
	}
	return &Client{http: rc}
}

// UseRedisCache enables caching of catalog reads. Slots and bookings are never cached.
func (c *Client) UseRedisCache(rdb *redis.Client, ttl time.Duration) {
	c.redis = rdb
	c.cacheTTL = ttl
}

func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

func (c *Client) TimeSlots(ctx context.Context, serviceID, staffID int64, date string, extras []int64) (*TimeSlots, error) {
	params := map[string]string{
		"service_id": strconv.FormatInt(serviceID, 10),
		"staff_id":   strconv.FormatInt(staffID, 10),
		"date":       date,
	}
	if len(extras) > 0 {
		params["extras"] = joinIDs(extras)
	}

	var out TimeSlots
	if err := c.get(ctx, "/api/v1/timeslots", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Book(ctx context.Context, req BookingRequest) (*Booking, error) {
	var out Booking
	if err := c.send(ctx, http.MethodPost, "/api/v1/bookings", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Booking(ctx context.Context, code string) (*Booking, error) {
	var out Booking
	if err := c.get(ctx, "/api/v1/bookings/"+code, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetStatus(ctx context.Context, code, status string) (*Booking, error) {
	var out Booking
	body := map[string]string{"status": status}
	if err := c.send(ctx, http.MethodPost, "/api/v1/bookings/"+code+"/status", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Services(ctx context.Context) ([]models.Service, error) {
	var wrap struct {
		Services []models.Service `json:"services"`
	}
	if err := c.cachedGet(ctx, "services", "/api/v1/services", nil, &wrap); err != nil {
		return nil, err
	}
	return wrap.Services, nil
}

// Staff lists staff members; serviceID 0 lists everyone.
func (c *Client) Staff(ctx context.Context, serviceID int64) ([]models.StaffMember, error) {
	var params map[string]string
	if serviceID > 0 {
		params = map[string]string{"service_id": strconv.FormatInt(serviceID, 10)}
	}
	var wrap struct {
		Staff []models.StaffMember `json:"staff"`
	}
	key := fmt.Sprintf("staff:%d", serviceID)
	if err := c.cachedGet(ctx, key, "/api/v1/staff", params, &wrap); err != nil {
		return nil, err
	}
	return wrap.Staff, nil
}

func (c *Client) Extras(ctx context.Context, serviceID int64) ([]models.Extra, error) {
	params := map[string]string{"service_id": strconv.FormatInt(serviceID, 10)}
	var wrap struct {
		Extras []models.Extra `json:"extras"`
	}
	key := fmt.Sprintf("extras:%d", serviceID)
	if err := c.cachedGet(ctx, key, "/api/v1/extras", params, &wrap); err != nil {
		return nil, err
	}
	return wrap.Extras, nil
}

func (c *Client) cachedGet(ctx context.Context, key, path string, params map[string]string, out any) error {
	if c.readCache(ctx, key, out) {
		return nil
	}
	if err := c.get(ctx, path, params, out); err != nil {
		return err
	}
	c.writeCache(ctx, key, out)
	return nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	return c.do(req, http.MethodGet, path, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	return c.do(req, method, path, out)
}

func (c *Client) do(req *resty.Request, method, path string, out any) error {
	apiErr := &Error{}
	req.SetError(apiErr)
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, cachePrefix+key, data, c.cacheTTL).Err()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
