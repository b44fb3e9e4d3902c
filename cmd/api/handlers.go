package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/schedule"
	"github.com/delacruz/bakeshop-api/internal/store"
	"github.com/delacruz/bakeshop-api/pkg/logger"
)

type application struct {
	db        *sql.DB
	window    schedule.Window
	processor store.PaymentProcessor
	log       *logger.Logger
}

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"message": "API is working!"})
	})

	mux.HandleFunc("POST /users", app.handleCreateUser)
	mux.HandleFunc("GET /users", app.handleListUsers)
	mux.HandleFunc("GET /users/{id}", app.handleGetUser)

	mux.HandleFunc("GET /categories", app.handleListCategories)

	mux.HandleFunc("POST /products", app.handleCreateProduct)
	mux.HandleFunc("GET /products", app.handleListProducts)
	mux.HandleFunc("GET /products/{id}", app.handleGetProduct)
	mux.HandleFunc("PUT /products/{id}", app.handleUpdateProduct)
	mux.HandleFunc("DELETE /products/{id}", app.handleDeleteProduct)

	mux.HandleFunc("POST /orders", app.handlePlaceOrder)
	mux.HandleFunc("GET /orders/scheduled", app.handleScheduledPickups)
	mux.HandleFunc("GET /orders/{id}", app.handleGetOrder)
	mux.HandleFunc("GET /orders/{id}/status", app.handleGetOrderStatus)
	mux.HandleFunc("PATCH /orders/{id}/status", app.handleUpdateOrderStatus)
	mux.HandleFunc("GET /users/{user_id}/orders", app.handleUserOrders)

	mux.HandleFunc("POST /payments/{order_id}", app.handleProcessPayment)

	mux.HandleFunc("GET /notifications/{user_id}", app.handleListNotifications)
	mux.HandleFunc("PATCH /notifications/{id}/read", app.handleMarkNotificationRead)

	return mux
}

func (app *application) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.CreateUser(r.Context(), app.db, req.Email, req.Name)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (app *application) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paginationParams(r)

	result, err := store.ListUsers(r.Context(), app.db, page, pageSize)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	user, err := store.GetUser(r.Context(), app.db, id)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (app *application) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := store.ListCategories(r.Context(), app.db)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, categories)
}

type productRequest struct {
	CategoryID  int64   `json:"category_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BasePrice   float64 `json:"base_price"`
	IsAvailable bool    `json:"is_available"`
	ImageURL    string  `json:"image_url"`
}

func (req productRequest) input() store.ProductInput {
	return store.ProductInput{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   decimal.NewFromFloat(req.BasePrice),
		IsAvailable: req.IsAvailable,
		ImageURL:    req.ImageURL,
	}
}

func (app *application) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.CreateProduct(r.Context(), app.db, req.input())
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (app *application) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paginationParams(r)
	filter := store.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	}

	result, err := store.ListProducts(r.Context(), app.db, filter, page, pageSize)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := store.GetProduct(r.Context(), app.db, id)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (app *application) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.UpdateProduct(r.Context(), app.db, id, req.input())
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (app *application) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := store.DeleteProduct(r.Context(), app.db, id); err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

func (app *application) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID *int64 `json:"user_id"`
		Items  []struct {
			ProductID      int64           `json:"product_id"`
			Quantity       int             `json:"quantity"`
			Customizations json.RawMessage `json:"customizations"`
		} `json:"items"`
		Fulfillment   string     `json:"fulfillment"`
		PickupTime    *time.Time `json:"pickup_time"`
		PaymentMethod string     `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var items []store.OrderItemRequest
	for _, item := range req.Items {
		items = append(items, store.OrderItemRequest{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			Customizations: item.Customizations,
		})
	}

	order, err := store.PlaceOrder(r.Context(), app.db, time.Now(), app.window, store.PlaceOrderRequest{
		UserID:        req.UserID,
		Items:         items,
		Fulfillment:   req.Fulfillment,
		PickupTime:    req.PickupTime,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (app *application) handleScheduledPickups(w http.ResponseWriter, r *http.Request) {
	orders, err := store.ListScheduledPickups(r.Context(), app.db, time.Now())
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

func (app *application) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := store.GetOrder(r.Context(), app.db, id)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (app *application) handleGetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	status, err := store.GetOrderStatus(r.Context(), app.db, id)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (app *application) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := store.UpdateOrderStatus(r.Context(), app.db, id, req.Status)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (app *application) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	orders, err := store.ListOrdersForUser(r.Context(), app.db, userID)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

func (app *application) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := store.ProcessPayment(r.Context(), app.db, orderID, req.PaymentMethod, app.processor)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (app *application) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	if _, err := store.GetUser(r.Context(), app.db, userID); err != nil {
		app.respondStoreError(w, err)
		return
	}

	notifications, err := store.ListNotificationsForUser(r.Context(), app.db, userID)
	if err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, notifications)
}

func (app *application) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, database.ErrNotificationNotFound.Error())
		return
	}

	if err := store.MarkNotificationRead(r.Context(), app.db, id); err != nil {
		app.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func paginationParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func (app *application) respondStoreError(w http.ResponseWriter, err error) {
	var validationErr *store.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"field": validationErr.Field,
			"error": validationErr.Message,
		})
	case errors.Is(err, database.ErrOrderAlreadyPaid):
		respondError(w, http.StatusConflict, "Order already paid.")
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrNotificationNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		app.log.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
