package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tenantly/bookd/internal/calendar"
	"github.com/tenantly/bookd/internal/model"
	"github.com/tenantly/bookd/internal/storage"
)

// AdminHandler owns the business-facing configuration surface: businesses,
// services, employees, weekly working hours and date overrides.
type AdminHandler struct {
	schedule  *storage.ScheduleRepository
	directory *storage.DirectoryRepository
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewAdminHandler(schedule *storage.ScheduleRepository, directory *storage.DirectoryRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		schedule:  schedule,
		directory: directory,
		logger:    logger,
		validate:  validator.New(),
	}
}

type createBusinessRequest struct {
	Name            string `json:"name" validate:"required,max=256"`
	Timezone        string `json:"timezone" validate:"required"`
	SlotStepMinutes int    `json:"slot_step_minutes" validate:"omitempty,min=5,max=120"`
}

func (h *AdminHandler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}
	if _, err := calendar.Location(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	id, err := h.directory.CreateBusiness(r.Context(), req.Name, req.Timezone, req.SlotStepMinutes)
	if err != nil {
		h.logger.Error("business create failed", "err", err)
		http.Error(w, "failed to create business", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"business_id": id})
}

type createServiceRequest struct {
	BusinessID          string `json:"business_id" validate:"required"`
	Name                string `json:"name" validate:"required,max=256"`
	DurationMins        int    `json:"duration_minutes" validate:"required,min=1,max=1440"`
	BufferBeforeMinutes int    `json:"buffer_before_minutes" validate:"min=0,max=240"`
	BufferAfterMinutes  int    `json:"buffer_after_minutes" validate:"min=0,max=240"`
	Price               string `json:"price" validate:"omitempty,numeric"`
}

func (h *AdminHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Name = strings.TrimSpace(req.Name)
	req.Price = strings.TrimSpace(req.Price)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}
	if req.Price == "" {
		req.Price = "0"
	}

	id, err := h.directory.CreateService(r.Context(), model.Service{
		BusinessID:   req.BusinessID,
		Name:         req.Name,
		DurationMins: req.DurationMins,
		BufferBefore: req.BufferBeforeMinutes,
		BufferAfter:  req.BufferAfterMinutes,
		Price:        req.Price,
	})
	if err != nil {
		h.logger.Error("service create failed", "err", err)
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": id})
}

type createEmployeeRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=256"`
}

func (h *AdminHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}

	id, err := h.directory.CreateEmployee(r.Context(), req.BusinessID, req.Name)
	if err != nil {
		h.logger.Error("employee create failed", "err", err)
		http.Error(w, "failed to create employee", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"employee_id": id})
}

type assignServiceRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	EmployeeID string `json:"employee_id" validate:"required"`
	ServiceID  string `json:"service_id" validate:"required"`
}

func (h *AdminHandler) AssignService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}

	if err := h.directory.AssignService(r.Context(), req.BusinessID, req.EmployeeID, req.ServiceID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "employee or service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("assign failed", "err", err)
		http.Error(w, "failed to assign service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type workingHourItem struct {
	Weekday     int  `json:"weekday" validate:"min=0,max=6"`
	StartMinute int  `json:"start_minute" validate:"min=0,max=1440"`
	EndMinute   int  `json:"end_minute" validate:"min=0,max=1440"`
	IsOff       bool `json:"is_off"`
}

type upsertWorkingHoursRequest struct {
	EmployeeID string            `json:"employee_id" validate:"required"`
	Hours      []workingHourItem `json:"hours" validate:"required,min=1,max=7,dive"`
}

// WorkingHours serves GET (weekly template) and PUT (upsert) on
// /api/v1/admin/working-hours. Minutes are local wall-clock minutes after
// midnight; conversion to instants happens only at availability time.
func (h *AdminHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWorkingHours(w, r)
	case http.MethodPut, http.MethodPost:
		h.upsertWorkingHours(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) listWorkingHours(w http.ResponseWriter, r *http.Request) {
	employeeID := strings.TrimSpace(r.URL.Query().Get("employee_id"))
	if employeeID == "" {
		http.Error(w, "employee_id required", http.StatusBadRequest)
		return
	}
	hours, err := h.schedule.ListWorkingHours(r.Context(), employeeID)
	if err != nil {
		h.logger.Error("working hours list failed", "err", err)
		http.Error(w, "failed to list working hours", http.StatusInternalServerError)
		return
	}
	items := make([]workingHourItem, 0, len(hours))
	for _, wh := range hours {
		items = append(items, workingHourItem{
			Weekday:     wh.Weekday,
			StartMinute: wh.StartMinute,
			EndMinute:   wh.EndMinute,
			IsOff:       wh.IsOff,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) upsertWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req upsertWorkingHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}
	for _, item := range req.Hours {
		if !item.IsOff && item.EndMinute <= item.StartMinute {
			http.Error(w, "end_minute must be after start_minute", http.StatusBadRequest)
			return
		}
	}

	for _, item := range req.Hours {
		err := h.schedule.UpsertWorkingHours(r.Context(), model.WorkingHour{
			EmployeeID:  req.EmployeeID,
			Weekday:     item.Weekday,
			StartMinute: item.StartMinute,
			EndMinute:   item.EndMinute,
			IsOff:       item.IsOff,
		})
		if err != nil {
			h.logger.Error("working hours upsert failed", "err", err, "weekday", item.Weekday)
			http.Error(w, "failed to save working hours", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type createOverrideRequest struct {
	EmployeeID  string `json:"employee_id" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Unavailable bool   `json:"unavailable"`
	Reason      string `json:"reason" validate:"max=512"`
}

// Overrides serves GET/POST/DELETE on /api/v1/admin/overrides. Overrides are
// absolute UTC ranges; unavailable ranges always beat extra-available ones.
func (h *AdminHandler) Overrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listOverrides(w, r)
	case http.MethodPost:
		h.createOverride(w, r)
	case http.MethodDelete:
		h.deleteOverride(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) listOverrides(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	employeeID := strings.TrimSpace(params.Get("employee_id"))
	if employeeID == "" {
		http.Error(w, "employee_id required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(params.Get("from")))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(params.Get("to")))
	if err != nil || !to.After(from) {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}

	overrides, err := h.schedule.ListOverrides(r.Context(), employeeID, from, to)
	if err != nil {
		h.logger.Error("override list failed", "err", err)
		http.Error(w, "failed to list overrides", http.StatusInternalServerError)
		return
	}

	type item struct {
		ID          string `json:"id"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
		Unavailable bool   `json:"unavailable"`
		Reason      string `json:"reason,omitempty"`
	}
	items := make([]item, 0, len(overrides))
	for _, o := range overrides {
		items = append(items, item{
			ID:          o.ID,
			StartTime:   o.Start.UTC().Format(time.RFC3339),
			EndTime:     o.End.UTC().Format(time.RFC3339),
			Unavailable: o.Unavailable,
			Reason:      o.Reason,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) createOverride(w http.ResponseWriter, r *http.Request) {
	var req createOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil || !end.After(start) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	id, err := h.schedule.CreateOverride(r.Context(), model.Override{
		EmployeeID:  req.EmployeeID,
		Start:       start,
		End:         end,
		Unavailable: req.Unavailable,
		Reason:      req.Reason,
	})
	if err != nil {
		h.logger.Error("override create failed", "err", err)
		http.Error(w, "failed to create override", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"override_id": id})
}

func (h *AdminHandler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	employeeID := strings.TrimSpace(params.Get("employee_id"))
	overrideID := strings.TrimSpace(params.Get("id"))
	if employeeID == "" || overrideID == "" {
		http.Error(w, "employee_id and id required", http.StatusBadRequest)
		return
	}
	if err := h.schedule.DeleteOverride(r.Context(), employeeID, overrideID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "override not found", http.StatusNotFound)
			return
		}
		h.logger.Error("override delete failed", "err", err)
		http.Error(w, "failed to delete override", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
