package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"bookpoint/internal/domain"

	"github.com/rs/zerolog"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleTimeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := slotQueryRequest{Date: q.Get("date")}

	var err error
	if req.ServiceID, err = parseID(q.Get("service_id"), "service_id"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.StaffID, err = parseID(q.Get("staff_id"), "staff_id"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	for _, raw := range splitCSV(q.Get("extras")) {
		id, err := parseID(raw, "extras")
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		req.Extras = append(req.Extras, id)
	}

	query, err := req.toQuery()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	list, err := s.svc.Slots.GetTimeSlots(r.Context(), query)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTimeSlotsResponse(query, list))
}

func (s *HTTPServer) handleCommitBooking(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.allowCommit(r.Context(), ClientKey(r, s.cfg.Auth.HeaderAPIKey))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("commit rate limiter unavailable")
	} else if !ok {
		writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
		return
	}

	var body commitBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeDomainError(w, r, domain.Errorf(domain.KindInvalidInput, "invalid JSON body"))
		return
	}

	booking, err := s.svc.Bookings.CommitBooking(r.Context(), body.toDomain())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingView(booking))
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBooking(r.Context(), r.PathValue("code"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(booking))
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDomainError(w, r, domain.Errorf(domain.KindInvalidInput, "invalid JSON body"))
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		writeDomainError(w, r, domain.Errorf(domain.KindInvalidInput, "status is required"))
		return
	}

	booking, err := s.svc.Bookings.UpdateBookingStatus(r.Context(), r.PathValue("code"), body.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(booking))
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Catalog.ListServices(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": list})
}

func (s *HTTPServer) handleStaff(w http.ResponseWriter, r *http.Request) {
	serviceID, err := optionalID(r.URL.Query().Get("service_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := s.svc.Catalog.ListStaff(r.Context(), serviceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": list})
}

func (s *HTTPServer) handleExtras(w http.ResponseWriter, r *http.Request) {
	serviceID, err := parseID(r.URL.Query().Get("service_id"), "service_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := s.svc.Catalog.ListExtras(r.Context(), serviceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"extras": list})
}

func parseID(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.Errorf(domain.KindInvalidInput, "%s is required", field)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.KindInvalidInput, "invalid %s: %q", field, raw)
	}
	return id, nil
}

func optionalID(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return parseID(raw, "service_id")
}
