package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowmint/txfabric/command"
	"github.com/flowmint/txfabric/dispatch"
	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/query"
	"github.com/flowmint/txfabric/store"
)

// Handlers binds the HTTP routes to the dispatcher and the read facade.
type Handlers struct {
	dispatcher *dispatch.Dispatcher
	queries    *query.Service
	log        *logger.Logger
}

// NewHandlers creates the route handlers.
func NewHandlers(d *dispatch.Dispatcher, q *query.Service, log *logger.Logger) *Handlers {
	return &Handlers{dispatcher: d, queries: q, log: log.WithComponent("handlers")}
}

// Register mounts all command and query routes under /v1.
func (h *Handlers) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/accounts", h.createAccount)
	v1.POST("/payments", h.createPayment)
	v1.POST("/payments/:id/status", h.updatePaymentStatus)
	v1.POST("/notifications", h.sendNotification)
	v1.POST("/notifications/bulk", h.bulkNotification)
	v1.POST("/settlements", h.recordSettlement)

	for path, table := range map[string]string{
		"accounts":      dispatch.TableAccounts,
		"payments":      dispatch.TablePayments,
		"notifications": dispatch.TableNotifications,
		"settlements":   dispatch.TableSettlements,
	} {
		v1.GET("/"+path, h.listRecords(table))
		v1.GET("/"+path+"/:id", h.getRecord(table))
	}
	v1.GET("/aggregates/:id/events", h.aggregateEvents)
}

// baseFor stamps a command identity carrying the request id as the
// correlation id, so events trace back to the originating HTTP request.
func baseFor(c *gin.Context) command.Base {
	if id := c.GetString("request_id"); id != "" {
		return command.NewBaseWithMeta(map[string]string{command.MetaCorrelationID: id})
	}
	return command.NewBase()
}

type createAccountRequest struct {
	AccountID string `json:"account_id"`
	Owner     string `json:"owner"`
	Currency  string `json:"currency"`
}

func (h *Handlers) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, badBody(err))
		return
	}
	cmd := command.CreateAccount{
		Base:      baseFor(c),
		AccountID: req.AccountID,
		Owner:     req.Owner,
		Currency:  req.Currency,
	}
	h.dispatchCommand(c, cmd, http.StatusCreated)
}

type createPaymentRequest struct {
	PaymentID   string `json:"payment_id"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

func (h *Handlers) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, badBody(err))
		return
	}
	cmd := command.CreatePayment{
		Base:        baseFor(c),
		PaymentID:   req.PaymentID,
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
	}
	h.dispatchCommand(c, cmd, http.StatusCreated)
}

type updatePaymentStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handlers) updatePaymentStatus(c *gin.Context) {
	var req updatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, badBody(err))
		return
	}
	cmd := command.UpdatePaymentStatus{
		Base:      baseFor(c),
		PaymentID: c.Param("id"),
		Status:    req.Status,
		Reason:    req.Reason,
	}
	h.dispatchCommand(c, cmd, http.StatusOK)
}

type sendNotificationRequest struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Channel        string `json:"channel"`
	TemplateID     string `json:"template_id"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

func (h *Handlers) sendNotification(c *gin.Context) {
	var req sendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, badBody(err))
		return
	}
	cmd := command.SendNotification{
		Base:           baseFor(c),
		NotificationID: req.NotificationID,
		UserID:         req.UserID,
		Channel:        req.Channel,
		TemplateID:     req.TemplateID,
		Subject:        req.Subject,
		Body:           req.Body,
	}
	h.dispatchCommand(c, cmd, http.StatusAccepted)
}

type bulkNotificationRequest struct {
	UserIDs    []string `json:"user_ids"`
	Channel    string   `json:"channel"`
	TemplateID string   `json:"template_id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func (h *Handlers) bulkNotification(c *gin.Context) {
	var req bulkNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, badBody(err))
		return
	}
	cmd := command.BulkNotification{
		Base:       baseFor(c),
		UserIDs:    req.UserIDs,
		Channel:    req.Channel,
		TemplateID: req.TemplateID,
		Subject:    req.Subject,
		Body:       req.Body,
	}
	res, err := h.dispatcher.DispatchBulk(c.Request.Context(), cmd)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

type recordSettlementRequest struct {
	SettlementID string     `json:"settlement_id"`
	PaymentIDs   []string   `json:"payment_ids"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

func (h *Handlers) recordSettlement(c *gin.Context) {
	var req recordSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, badBody(err))
		return
	}
	cmd := command.RecordSettlement{
		Base:         baseFor(c),
		SettlementID: req.SettlementID,
		PaymentIDs:   req.PaymentIDs,
		Scheduled:    req.ScheduledAt,
	}
	h.dispatchCommand(c, cmd, http.StatusCreated)
}

// dispatchCommand runs the command and writes the result with the given
// success status.
func (h *Handlers) dispatchCommand(c *gin.Context, cmd command.Command, status int) {
	res, err := h.dispatcher.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(status, res)
}

func (h *Handlers) getRecord(table string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.queries.Record(c.Request.Context(), table, c.Param("id"))
		if err != nil {
			RespondWithError(c, err)
			return
		}
		RespondOK(c, rec.Data)
	}
}

func (h *Handlers) listRecords(table string) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := query.Page{
			Offset: intQuery(c, "offset", 0),
			Limit:  intQuery(c, "limit", 0),
		}
		var filter store.Filter
		if status := c.Query("status"); status != "" {
			filter = store.Filter{Field: "status", Value: status}
		}

		result, err := h.queries.Records(c.Request.Context(), table, filter, page)
		if err != nil {
			RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handlers) aggregateEvents(c *gin.Context) {
	events, err := h.queries.EventsForAggregate(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, events)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// badBody wraps a JSON binding failure as a validation error.
func badBody(err error) *apperrors.AppError {
	return apperrors.Validation([]apperrors.FieldViolation{
		{Field: "body", Message: "must be valid JSON: " + err.Error()},
	})
}
