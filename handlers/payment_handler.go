package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/middleware"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/services"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/storage"
)

type PaymentHandler struct {
	channelService      services.ChannelService
	verificationService services.VerificationService
	uploader            storage.FileUploader
}

func NewPaymentHandler(
	channelService services.ChannelService,
	verificationService services.VerificationService,
	uploader storage.FileUploader,
) *PaymentHandler {
	return &PaymentHandler{
		channelService:      channelService,
		verificationService: verificationService,
		uploader:            uploader,
	}
}

// AllocateChannel computes the caller's amount due and picks the payment
// channel to pay it through.
func (h *PaymentHandler) AllocateChannel(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	amount, err := h.channelService.AmountDue(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	channel, err := h.channelService.Allocate(r.Context(), amount)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"amount":  amount,
		"channel": channel,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadProof stores a payment screenshot and returns its public URL for the
// subsequent SubmitPayment call.
func (h *PaymentHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to get proof file from form: %w", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		badRequestResponse(w, r, errors.New("content-type header is required for proof"))
		return
	}

	key := fmt.Sprintf("proofs/%d-%d%s", userID, time.Now().Unix(), path.Ext(header.Filename))
	result, err := h.uploader.Upload(r.Context(), key, contentType, file)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"proof_url": result.Location}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *PaymentHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input struct {
		TransactionID string `json:"transaction_id"`
		ProofURL      string `json:"proof_url"`
		ChannelID     int    `json:"channel_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TransactionID == "" || input.ChannelID <= 0 {
		badRequestResponse(w, r, errors.New("transaction_id and channel_id are required"))
		return
	}

	err = h.verificationService.SubmitPayment(r.Context(), userID, input.TransactionID, input.ProofURL, input.ChannelID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Me returns the caller's own registration record.
func (h *PaymentHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	user, err := h.verificationService.GetUser(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
