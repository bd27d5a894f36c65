package handlers

import (
	"errors"
	"net/http"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/middleware"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/services"
	"github.com/go-chi/chi/v5"
)

type JoinRequestHandler struct {
	joinService services.JoinRequestService
}

func NewJoinRequestHandler(joinService services.JoinRequestService) *JoinRequestHandler {
	return &JoinRequestHandler{joinService: joinService}
}

// RequestJoin creates a join request against a squad's join code. An
// authenticated participant joins by ID; an unregistered candidate supplies
// their details inline.
func (h *JoinRequestHandler) RequestJoin(w http.ResponseWriter, r *http.Request) {
	joinCode := chi.URLParam(r, "joinCode")
	if joinCode == "" {
		badRequestResponse(w, r, errors.New("join code is required"))
		return
	}

	var requester services.JoinRequester
	if userID, err := middleware.GetUserIDFromContext(r.Context()); err == nil {
		requester.UserID = &userID
	} else {
		var candidate services.CandidateInput
		if err := readJSON(w, r, &candidate); err != nil {
			badRequestResponse(w, r, err)
			return
		}
		if candidate.Email == "" || candidate.Name == "" {
			badRequestResponse(w, r, errors.New("name and email are required"))
			return
		}
		requester.Candidate = &candidate
	}

	request, err := h.joinService.RequestJoin(r.Context(), joinCode, requester)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"request": request}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *JoinRequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	requests, err := h.joinService.ListPendingByTeam(r.Context(), teamID, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"requests": requests}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *JoinRequestHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	requestID, err := getIDFromURL(r, "requestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Decision models.JoinRequestStatus `json:"decision"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.joinService.Respond(r.Context(), requestID, actorID, input.Decision); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
