package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/auth"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/providers"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/reconcile"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/status"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	Database db.Database
	Logger   *zap.SugaredLogger
	Engine   *reconcile.Engine
	Observer *status.Observer
	Gateway  *providers.GatewayAdapter
	Manual   *providers.ManualAdapter
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var credentials models.Credentials
	var userData models.User

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		h.Logger.Error("error reading decoded credentials", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(credentials.Password), 14)
	if err != nil {
		h.Logger.Info("password encryption error", zap.Error(err))
		http.Error(w, "internal error", http.StatusBadRequest)
		return
	}

	userData.Login = credentials.Login
	userData.Password = string(passwordBytes)
	userData.UUID = uuid.New().String()

	if err = h.Database.PutUniqueUserData(userData); err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			h.Logger.Debug("duplicate key value violates unique constraint", zap.Error(err))
			http.Error(w, "login already exists", http.StatusConflict)
			return
		}
		h.Logger.Error("error when trying to put credentials to database", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	token, err := auth.BuildJWT(userData.UUID)
	if err != nil {
		h.Logger.Error("error building JWT", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var credentials models.Credentials

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		h.Logger.Error("error reading decoded credentials", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	userData, err := h.Database.GetUserData(credentials.Login)
	if err != nil {
		if strings.Contains(err.Error(), "no rows in result set") {
			h.Logger.Error("login does not exist", zap.Error(err))
			http.Error(w, "login does not exist", http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(userData.Password), []byte(credentials.Password))
	if err != nil {
		h.Logger.Error("invalid login or password", zap.Error(err))
		http.Error(w, "invalid login or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.BuildJWT(userData.UUID)
	if err != nil {
		h.Logger.Error("error building JWT", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

// CreateOrder starts checkout: a pending order that only the reconciliation
// engine may move further.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	buyerUUID := r.Header.Get("UUID")

	var checkout models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&checkout); err != nil {
		h.Logger.Error("error decoding checkout request", zap.Error(err))
		http.Error(w, "error decoding checkout request", http.StatusBadRequest)
		return
	}

	var amount int64
	for _, item := range checkout.Items {
		amount += item.UnitPrice
	}

	order, err := h.Database.CreatePendingOrder(buyerUUID, checkout.Items, checkout.PaymentMethod, amount, checkout.Currency)
	if err != nil {
		if errors.Is(err, db.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.Error("error creating order", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// Webhook is the gateway ingress. A well-formed event is always answered 200,
// including unrecognized kinds and duplicates, so the provider never enters a
// retry storm. Only malformed bodies get 400; an infrastructure failure gets
// 500 so the provider redelivers.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	outcome, err := h.Gateway.Normalize(body)
	if err != nil {
		h.Logger.Warnw("malformed webhook payload", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if outcome == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	result, err := h.Engine.Apply(r.Context(), *outcome)
	if err != nil {
		h.Logger.Errorw("failed to apply webhook outcome", "reference", outcome.OrderReference, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.Logger.Infow("webhook outcome applied",
		"reference", outcome.OrderReference, "outcome", outcome.Outcome,
		"disposition", result.Disposition)
	w.WriteHeader(http.StatusOK)
}

// Confirm handles the buyer-submitted manual transaction id.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("error decoding confirmation request", zap.Error(err))
		http.Error(w, "error decoding confirmation request", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		http.Error(w, "orderId is required", http.StatusBadRequest)
		return
	}

	order, err := h.Database.FindOrder(req.OrderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeConfirmation(w, models.ConfirmationResponse{Success: false, Error: "order not found"})
			return
		}
		h.Logger.Errorw("failed to find order", "order", req.OrderID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	// подтверждение проваливает заказ терминально, чужой заказ неотличим от
	// несуществующего
	if order.BuyerUUID != r.Header.Get("UUID") {
		h.writeConfirmation(w, models.ConfirmationResponse{Success: false, Error: "order not found"})
		return
	}

	outcome, err := h.Manual.Normalize(req)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeConfirmation(w, models.ConfirmationResponse{Success: false, Error: "order not found"})
			return
		}
		h.Logger.Errorw("failed to normalize confirmation", "order", req.OrderID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	result, err := h.Engine.Apply(r.Context(), *outcome)
	if err != nil {
		h.Logger.Errorw("failed to apply confirmation", "order", req.OrderID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if result.Status == models.OrderCompleted {
		h.writeConfirmation(w, models.ConfirmationResponse{Success: true})
		return
	}

	h.writeConfirmation(w, models.ConfirmationResponse{
		Success: false,
		Error:   status.MessageFor(result.Reason),
	})
}

func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	order, ok := h.buyerOrder(w, r)
	if !ok {
		return
	}

	resp, err := h.Observer.GetOrderStatus(order.UUID)
	if err != nil {
		h.Logger.Errorw("failed to get order status", "order", order.UUID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, resp)
}

// OrderStatusWait long-polls until the order settles or the wait budget runs
// out.
func (h *Handler) OrderStatusWait(w http.ResponseWriter, r *http.Request) {
	order, ok := h.buyerOrder(w, r)
	if !ok {
		return
	}

	resp, err := h.Observer.WaitForTerminal(r.Context(), order.UUID)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		h.Logger.Errorw("failed to wait for order status", "order", order.UUID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, resp)
}

func (h *Handler) buyerOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID := chi.URLParam(r, "orderID")
	buyerUUID := r.Header.Get("UUID")

	order, err := h.Database.FindOrder(orderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return nil, false
		}
		h.Logger.Errorw("failed to find order", "order", orderID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}

	if order.BuyerUUID != buyerUUID {
		http.Error(w, "order not found", http.StatusNotFound)
		return nil, false
	}

	return order, true
}

func (h *Handler) writeConfirmation(w http.ResponseWriter, resp models.ConfirmationResponse) {
	h.writeJSON(w, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Errorw("failed to encode response", "error", err)
	}
}
