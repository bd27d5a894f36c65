package handlers

import (
	"errors"
	"net/http"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/middleware"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/services"
)

type AdminHandler struct {
	verificationService services.VerificationService
	channelService      services.ChannelService
}

func NewAdminHandler(
	verificationService services.VerificationService,
	channelService services.ChannelService,
) *AdminHandler {
	return &AdminHandler{
		verificationService: verificationService,
		channelService:      channelService,
	}
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.UserStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.verificationService.SetStatus(r.Context(), userID, actorID, input.Status); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUsers filters the participant roll by status (query param "status") or
// looks a single participant up by registration number ("reg_no").
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if regNo := r.URL.Query().Get("reg_no"); regNo != "" {
		user, err := h.verificationService.FindUserByRegNo(r.Context(), regNo)
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}
		if err := writeJSON(w, http.StatusOK, jsonResponse{"users": []*models.User{user}}, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
		return
	}

	status := models.UserStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusPending
	}
	switch status {
	case models.StatusUnpaid, models.StatusPending, models.StatusVerifying, models.StatusApproved:
	default:
		badRequestResponse(w, r, errors.New("invalid status filter"))
		return
	}

	users, err := h.verificationService.ListByStatus(r.Context(), status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"users": users}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Attended bool `json:"attended"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.verificationService.MarkAttendance(r.Context(), userID, actorID, input.Attended); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetActionLog(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	logs, err := h.verificationService.ListActionLog(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"logs": logs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var input services.CreateChannelInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Name == "" || input.UpiID == "" {
		badRequestResponse(w, r, errors.New("name and upi_id are required"))
		return
	}

	channel, err := h.channelService.CreateChannel(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"channel": channel}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channelService.ListChannels(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"channels": channels}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) DeactivateChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := getIDFromURL(r, "channelID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.channelService.DeactivateChannel(r.Context(), channelID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResetChannelUsage zeroes a channel's usage counter, typically at the start
// of a collection day.
func (h *AdminHandler) ResetChannelUsage(w http.ResponseWriter, r *http.Request) {
	channelID, err := getIDFromURL(r, "channelID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.channelService.ResetUsage(r.Context(), channelID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
