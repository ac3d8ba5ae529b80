package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/auth"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/validate"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/pkg/httputil"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/pkg/pagination"
)

const (
	msgCheckFailed = "Failed to check availability"
	msgSlotsFailed = "Failed to get available time slots"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "scheduling").Logger()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Availability – any signed-in user
	availGroup := api.Group("", auth.RequireAuthenticated())
	availGroup.GET("/availability/check", h.CheckAvailability)
	availGroup.GET("/availability/slots", h.GetAvailableTimeSlots)

	// Read endpoints – every staff role
	readGroup := api.Group("", auth.RequireRole(auth.RoleScheduler, auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	readGroup.GET("/staff/:staffId/schedule", h.GetWeek)
	readGroup.GET("/staff/:staffId/schedule/:day", h.GetDaySchedule)
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)

	// Schedule maintenance – admin, scheduler
	scheduleGroup := api.Group("", auth.RequireRole(auth.RoleScheduler))
	scheduleGroup.PUT("/staff/:staffId/schedule", h.ReplaceWeek)
	scheduleGroup.PUT("/staff/:staffId/schedule/:day", h.SetDaySchedule)

	// Booking – every staff role
	bookGroup := api.Group("", auth.RequireRole(auth.RoleScheduler, auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	bookGroup.POST("/appointments", h.BookAppointment)
	bookGroup.PATCH("/appointments/:id/reschedule", h.Reschedule)
	bookGroup.PATCH("/appointments/:id/status", h.UpdateStatus)
	bookGroup.POST("/appointments/:id/cancel", h.CancelAppointment)

	// Admin only
	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.DELETE("/appointments/:id", h.DeleteAppointment)
}

// bind decodes and validates a request. Both failures are 400s.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request parameters")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validate.Message(err))
	}
	return nil
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// optionalUUID parses an optional identifier. Empty means absent; anything
// else must parse.
func optionalUUID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, field+" must be a valid identifier")
	}
	return &id, nil
}

// toHTTPError maps service errors to statuses. Anything unrecognised is
// logged and answered with the generic message.
func (h *Handler) toHTTPError(c echo.Context, err error, generic string) error {
	switch {
	case IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, ReasonBooked)
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg(generic)
	return echo.NewHTTPError(http.StatusInternalServerError, generic)
}

// -- Availability --

type checkAvailabilityQuery struct {
	DoctorID             string `query:"doctorId" validate:"required,uuid"`
	Date                 string `query:"date" validate:"required,datetime=2006-01-02"`
	Time                 string `query:"time" validate:"required,hhmm"`
	ExcludeAppointmentID string `query:"excludeAppointmentId" validate:"omitempty,uuid"`
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	var q checkAvailabilityQuery
	if err := bind(c, &q); err != nil {
		return err
	}
	doctorID := uuid.MustParse(q.DoctorID)

	excludeID, err := optionalUUID("excludeAppointmentId", q.ExcludeAppointmentID)
	if err != nil {
		return err
	}

	res, err := h.svc.Engine().CheckAvailability(c.Request().Context(), doctorID, q.Date, q.Time, excludeID)
	if err != nil {
		if IsValidation(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logLookupFailure(c, err, doctorID, q.Date, msgCheckFailed)
		return echo.NewHTTPError(http.StatusInternalServerError, msgCheckFailed)
	}
	return httputil.OK(c, "", res)
}

type slotsQuery struct {
	DoctorID string `query:"doctorId" validate:"required,uuid"`
	Date     string `query:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) GetAvailableTimeSlots(c echo.Context) error {
	var q slotsQuery
	if err := bind(c, &q); err != nil {
		return err
	}
	doctorID := uuid.MustParse(q.DoctorID)

	res, err := h.svc.Engine().GetAvailableTimeSlots(c.Request().Context(), doctorID, q.Date)
	if err != nil {
		if IsValidation(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logLookupFailure(c, err, doctorID, q.Date, msgSlotsFailed)
		return echo.NewHTTPError(http.StatusInternalServerError, msgSlotsFailed)
	}
	return httputil.OK(c, "", res)
}

func (h *Handler) logLookupFailure(c echo.Context, err error, doctorID uuid.UUID, date, msg string) {
	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("doctor_id", doctorID.String()).
		Str("date", date).
		Msg(msg)
}

// -- Weekly schedule --

type dayScheduleRequest struct {
	IsAvailable *bool   `json:"isAvailable" validate:"required"`
	StartTime   *string `json:"startTime" validate:"omitempty,hhmm"`
	EndTime     *string `json:"endTime" validate:"omitempty,hhmm"`
}

type weekDayRequest struct {
	Day         string  `json:"day" validate:"required"`
	IsAvailable *bool   `json:"isAvailable" validate:"required"`
	StartTime   *string `json:"startTime" validate:"omitempty,hhmm"`
	EndTime     *string `json:"endTime" validate:"omitempty,hhmm"`
}

type weekRequest struct {
	Days []weekDayRequest `json:"days" validate:"required,max=7,dive"`
}

func (h *Handler) SetDaySchedule(c echo.Context) error {
	staffID, err := parseUUIDParam(c, "staffId")
	if err != nil {
		return err
	}
	day, err := ParseDayOfWeek(c.Param("day"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req dayScheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sched := &WeeklySchedule{
		StaffID:     staffID,
		Day:         day,
		IsAvailable: *req.IsAvailable,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := h.svc.SetDaySchedule(c.Request().Context(), sched); err != nil {
		return h.toHTTPError(c, err, "Failed to save schedule")
	}
	return httputil.OK(c, "Schedule saved", sched)
}

func (h *Handler) ReplaceWeek(c echo.Context) error {
	staffID, err := parseUUIDParam(c, "staffId")
	if err != nil {
		return err
	}
	var req weekRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	days := make([]*WeeklySchedule, 0, len(req.Days))
	for _, d := range req.Days {
		day, err := ParseDayOfWeek(d.Day)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		days = append(days, &WeeklySchedule{
			StaffID:     staffID,
			Day:         day,
			IsAvailable: *d.IsAvailable,
			StartTime:   d.StartTime,
			EndTime:     d.EndTime,
		})
	}

	week, err := h.svc.ReplaceWeek(c.Request().Context(), staffID, days)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to save schedule")
	}
	return httputil.OK(c, "Schedule replaced", week)
}

func (h *Handler) GetWeek(c echo.Context) error {
	staffID, err := parseUUIDParam(c, "staffId")
	if err != nil {
		return err
	}
	week, err := h.svc.GetWeek(c.Request().Context(), staffID)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to get schedule")
	}
	return httputil.OK(c, "", week)
}

func (h *Handler) GetDaySchedule(c echo.Context) error {
	staffID, err := parseUUIDParam(c, "staffId")
	if err != nil {
		return err
	}
	day, err := ParseDayOfWeek(c.Param("day"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched, err := h.svc.GetDaySchedule(c.Request().Context(), staffID, day)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to get schedule")
	}
	return httputil.OK(c, "", sched)
}

// -- Appointments --

type bookAppointmentRequest struct {
	DoctorID   string `json:"doctorId" validate:"required,uuid"`
	PatientID  string `json:"patientId" validate:"omitempty,uuid"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string `json:"time" validate:"required,hhmm"`
	Status     string `json:"status" validate:"omitempty,oneof=PENDING SCHEDULED"`
	RoomID     string `json:"roomId" validate:"omitempty,uuid"`
	FacilityID string `json:"facilityId" validate:"omitempty,uuid"`
	Notes      string `json:"notes" validate:"max=2000"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookAppointmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	a := &Appointment{
		DoctorID: uuid.MustParse(req.DoctorID),
		Date:     req.Date,
		Time:     req.Time,
		Status:   AppointmentStatus(req.Status),
	}
	var err error
	if a.PatientID, err = optionalUUID("patientId", req.PatientID); err != nil {
		return err
	}
	if a.RoomID, err = optionalUUID("roomId", req.RoomID); err != nil {
		return err
	}
	if a.FacilityID, err = optionalUUID("facilityId", req.FacilityID); err != nil {
		return err
	}
	if req.Notes != "" {
		a.Notes = &req.Notes
	}

	if err := h.svc.BookAppointment(c.Request().Context(), a); err != nil {
		return h.toHTTPError(c, err, "Failed to book appointment")
	}
	c.Set("resource_id", a.ID.String())
	return httputil.Created(c, "Appointment booked", a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to get appointment")
	}
	return httputil.OK(c, "", a)
}

type listAppointmentsQuery struct {
	DoctorID  string `query:"doctorId" validate:"omitempty,uuid"`
	PatientID string `query:"patientId" validate:"omitempty,uuid"`
	Date      string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	Status    string `query:"status" validate:"omitempty,oneof=PENDING SCHEDULED CANCELLED COMPLETED"`
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var q listAppointmentsQuery
	if err := bind(c, &q); err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	doctorID, err := optionalUUID("doctorId", q.DoctorID)
	if err != nil {
		return err
	}
	patientID, err := optionalUUID("patientId", q.PatientID)
	if err != nil {
		return err
	}
	f := AppointmentFilter{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      q.Date,
		Status:    AppointmentStatus(q.Status),
	}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to list appointments")
	}
	return httputil.OK(c, "", pagination.NewPage(items, total, pg))
}

type rescheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,hhmm"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, req.Date, req.Time)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to reschedule appointment")
	}
	return httputil.OK(c, "Appointment rescheduled", a)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING SCHEDULED CANCELLED COMPLETED"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.TransitionStatus(c.Request().Context(), id, AppointmentStatus(req.Status))
	if err != nil {
		return h.toHTTPError(c, err, "Failed to update appointment status")
	}
	return httputil.OK(c, "Appointment status updated", a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return h.toHTTPError(c, err, "Failed to cancel appointment")
	}
	return httputil.OK(c, "Appointment cancelled", a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return h.toHTTPError(c, err, "Failed to delete appointment")
	}
	return c.NoContent(http.StatusNoContent)
}
