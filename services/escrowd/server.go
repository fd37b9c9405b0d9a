package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workledger/escrow"
	"workledger/ledger"
	"workledger/observability"
	"workledger/observability/logging"
)

// Server exposes the escrow coordinator over HTTP.
type Server struct {
	coordinator *escrow.Coordinator
	store       *Store
	auth        *Authenticator
	limiter     *keyLimiter
	log         *slog.Logger

	router http.Handler
}

// ServerConfig carries the dependencies needed to construct a Server.
type ServerConfig struct {
	Coordinator *escrow.Coordinator
	Store       *Store
	Auth        *Authenticator
	RatePerMin  int
	Log         *slog.Logger
}

// NewServer wires the HTTP routes with authentication, idempotency, rate
// limiting and observability middleware.
func NewServer(cfg ServerConfig) *Server {
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 120
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	srv := &Server{
		coordinator: cfg.Coordinator,
		store:       cfg.Store,
		auth:        cfg.Auth,
		limiter:     newKeyLimiter(cfg.RatePerMin),
		log:         cfg.Log,
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		srv.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(withRequestID)
		r.Use(srv.withAuth)
		r.Use(srv.withRateLimit)
		r.Use(srv.withObservability)
		r.Use(srv.withIdempotency)

		r.Post("/orders", srv.handleCreateOrder)
		r.Get("/orders/{id}", srv.handleGetOrder)
		r.Post("/orders/{id}/delivery", srv.handleSubmitDelivery)
		r.Get("/orders/{id}/delivery", srv.handleGetDelivery)
		r.Post("/orders/{id}/payment", srv.handleProcessPayment)

		r.Get("/escrows/{id}", srv.handleGetEscrow)
		r.Post("/escrows/{id}/deposit", srv.handleDeposit)
		r.Post("/escrows/{id}/cancel", srv.handleCancel)
		r.Post("/escrows/{id}/dispute", srv.handleDispute)
		r.Post("/escrows/{id}/evidence", srv.handleSubmitEvidence)
		r.Get("/escrows/{id}/evidence", srv.handleGetEvidence)
		r.Post("/escrows/{id}/resolve", srv.handleResolve)
		r.Post("/escrows/multiparty", srv.handleCreateMultiParty)
		r.Post("/escrows/{id}/conditions", srv.handleSetConditions)
		r.Post("/escrows/{id}/approve", srv.handleApproveRelease)
		r.Get("/escrows/{id}/release-check", srv.handleReleaseCheck)
		r.Get("/escrows/{id}/auto-release", srv.handleAutoReleaseCheck)

		r.Get("/users/{addr}/escrows", srv.handleUserEscrows)
	})

	srv.router = r
	return srv
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler { return s.router }

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps coordinator error kinds onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var gwErr *ledger.GatewayError
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, escrow.ErrInvalidDeadline),
		errors.Is(err, escrow.ErrInvalidCondition),
		errors.Is(err, escrow.ErrInvalidShareTotal),
		errors.Is(err, escrow.ErrInsufficientParties),
		errors.Is(err, escrow.ErrMissingSplitRatio),
		errors.Is(err, escrow.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.As(err, &gwErr):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path,
			logging.MaskField("api_key", apiKeyFrom(r.Context())), "error", err.Error())
	} else {
		s.log.Info("request rejected", "path", r.URL.Path, "status", strconv.Itoa(status),
			logging.MaskField("api_key", apiKeyFrom(r.Context())), "error", err.Error())
	}
	s.writeJSON(w, status, errorBody(err.Error()))
}

// observeOp records one coordinator operation on the escrow metrics registry.
func observeOp(operation string, start time.Time, err error) {
	observability.Coordinator().ObserveOperation(operation, err, time.Since(start))
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func accountParam(r *http.Request) (ledger.AccountID, error) {
	return ledger.ParseAccountID(chi.URLParam(r, "id"))
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

type createOrderRequest struct {
	OrderID       uint64   `json:"orderId"`
	Client        string   `json:"client"`
	Provider      string   `json:"provider"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Requirements  []string `json:"requirements"`
	PaymentAmount string   `json:"paymentAmount"`
	PaymentToken  string   `json:"paymentToken"`
	Deadline      int64    `json:"deadline"`
}

type createOrderResponse struct {
	WorkOrder    string `json:"workOrder"`
	Escrow       string `json:"escrow"`
	Confirmation string `json:"confirmation"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	client, err := ledger.ParseAddress(req.Client)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid client address"))
		return
	}
	provider, err := ledger.ParseAddress(req.Provider)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid provider address"))
		return
	}
	token, err := ledger.ParseAddress(req.PaymentToken)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid payment token"))
		return
	}
	amount, err := parseAmount(req.PaymentAmount)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	start := time.Now()
	result, err := s.coordinator.CreateWorkOrder(r.Context(), client, escrow.CreateWorkOrderParams{
		OrderID:       req.OrderID,
		Provider:      provider,
		Title:         req.Title,
		Description:   req.Description,
		Requirements:  req.Requirements,
		PaymentAmount: amount,
		PaymentToken:  token,
		Deadline:      req.Deadline,
	})
	observeOp("create_work_order", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createOrderResponse{
		WorkOrder:    result.WorkOrder.String(),
		Escrow:       result.Escrow.String(),
		Confirmation: string(result.Confirmation),
	})
}

type workOrderResponse struct {
	ID            string   `json:"id"`
	OrderID       uint64   `json:"orderId"`
	Client        string   `json:"client"`
	Provider      string   `json:"provider"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Requirements  []string `json:"requirements"`
	PaymentAmount string   `json:"paymentAmount"`
	PaymentToken  string   `json:"paymentToken"`
	Status        string   `json:"status"`
	Escrow        string   `json:"escrow"`
	Delivered     bool     `json:"delivered"`
	CreatedAt     int64    `json:"createdAt"`
	Deadline      int64    `json:"deadline"`
}

func workOrderView(order *escrow.WorkOrder) workOrderResponse {
	return workOrderResponse{
		ID:            order.Account.String(),
		OrderID:       order.ID,
		Client:        order.Client.String(),
		Provider:      order.Provider.String(),
		Title:         order.Title,
		Description:   order.Description,
		Requirements:  order.Requirements,
		PaymentAmount: order.PaymentAmount.String(),
		PaymentToken:  order.PaymentToken.String(),
		Status:        order.Status.String(),
		Escrow:        order.Escrow.String(),
		Delivered:     order.Delivered(),
		CreatedAt:     order.CreatedAt,
		Deadline:      order.Deadline,
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid work order id"))
		return
	}
	start := time.Now()
	order, err := s.coordinator.GetWorkOrder(r.Context(), id)
	observeOp("get_work_order", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if order == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody("work order not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, workOrderView(order))
}

type submitDeliveryRequest struct {
	Provider     string   `json:"provider"`
	Deliverables []string `json:"deliverables"`
	ContentHash  string   `json:"contentHash"`
	MetadataURI  string   `json:"metadataUri"`
}

func (s *Server) handleSubmitDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid work order id"))
		return
	}
	var req submitDeliveryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	provider, err := ledger.ParseAddress(req.Provider)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid provider address"))
		return
	}
	deliverables := make([]escrow.DeliverableKind, 0, len(req.Deliverables))
	for _, raw := range req.Deliverables {
		kind, err := escrow.ParseDeliverableKind(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		deliverables = append(deliverables, kind)
	}
	var contentHash [32]byte
	rawHash, err := hex.DecodeString(req.ContentHash)
	if err != nil || len(rawHash) != 32 {
		s.writeJSON(w, http.StatusBadRequest, errorBody("content hash must be 32 hex-encoded bytes"))
		return
	}
	copy(contentHash[:], rawHash)

	start := time.Now()
	result, err := s.coordinator.SubmitWorkDelivery(r.Context(), provider, id, escrow.DeliveryParams{
		Deliverables: deliverables,
		ContentHash:  contentHash,
		MetadataURI:  req.MetadataURI,
	})
	observeOp("submit_delivery", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"delivery":     result.Delivery.String(),
		"confirmation": string(result.Confirmation),
	})
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid work order id"))
		return
	}
	start := time.Now()
	delivery, err := s.coordinator.GetWorkDelivery(r.Context(), id)
	observeOp("get_delivery", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if delivery == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody("delivery not found"))
		return
	}
	kinds := make([]string, 0, len(delivery.Deliverables))
	for _, kind := range delivery.Deliverables {
		kinds = append(kinds, kind.String())
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workOrder":    delivery.WorkOrder.String(),
		"provider":     delivery.Provider.String(),
		"deliverables": kinds,
		"contentHash":  hex.EncodeToString(delivery.ContentHash[:]),
		"metadataUri":  delivery.MetadataURI,
		"submittedAt":  delivery.SubmittedAt,
	})
}

type processPaymentRequest struct {
	Authorizer      string `json:"authorizer"`
	Provider        string `json:"provider"`
	Amount          string `json:"amount"`
	PayerAccount    string `json:"payerAccount"`
	ProviderAccount string `json:"providerAccount"`
	Token           string `json:"token"`
	Confidential    bool   `json:"confidential"`
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid work order id"))
		return
	}
	var req processPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	authorizer, err := ledger.ParseAddress(req.Authorizer)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid authorizer address"))
		return
	}
	provider, err := ledger.ParseAddress(req.Provider)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid provider address"))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	payer, err := ledger.ParseAddress(req.PayerAccount)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid payer account"))
		return
	}
	providerAccount, err := ledger.ParseAddress(req.ProviderAccount)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid provider account"))
		return
	}
	token, err := ledger.ParseAddress(req.Token)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid token address"))
		return
	}

	start := time.Now()
	confirmation, err := s.coordinator.ProcessPayment(r.Context(), authorizer, id, escrow.PaymentParams{
		Provider:                provider,
		Amount:                  amount,
		PayerAccount:            payer,
		ProviderAccount:         providerAccount,
		Token:                   token,
		UseConfidentialTransfer: req.Confidential,
	})
	observeOp("process_payment", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"confirmation": string(confirmation)})
}

type escrowResponse struct {
	ID            string `json:"id"`
	Depositor     string `json:"depositor"`
	Beneficiary   string `json:"beneficiary"`
	Arbitrator    string `json:"arbitrator,omitempty"`
	Amount        string `json:"amount"`
	State         string `json:"state"`
	CreatedAt     int64  `json:"createdAt"`
	ReleaseAt     int64  `json:"releaseAt,omitempty"`
	WorkOrder     string `json:"workOrder,omitempty"`
	DisputeReason string `json:"disputeReason,omitempty"`
}

func escrowView(esc *escrow.Escrow) escrowResponse {
	resp := escrowResponse{
		ID:            esc.ID.String(),
		Depositor:     esc.Depositor.String(),
		Beneficiary:   esc.Beneficiary.String(),
		Amount:        esc.Amount.String(),
		State:         esc.State.String(),
		CreatedAt:     esc.CreatedAt,
		ReleaseAt:     esc.ReleaseAt,
		DisputeReason: esc.DisputeReason,
	}
	if !esc.Arbitrator.IsZero() {
		resp.Arbitrator = esc.Arbitrator.String()
	}
	if !esc.WorkOrder.IsZero() {
		resp.WorkOrder = esc.WorkOrder.String()
	}
	return resp
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	start := time.Now()
	esc, err := s.coordinator.GetEscrow(r.Context(), id)
	observeOp("get_escrow", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if esc == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody("escrow not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, escrowView(esc))
}

type depositRequest struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	depositor, err := ledger.ParseAddress(req.Depositor)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid depositor address"))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	start := time.Now()
	confirmation, err := s.coordinator.DepositFunds(r.Context(), depositor, id, amount)
	observeOp("deposit_funds", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"confirmation": string(confirmation)})
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	caller, err := ledger.ParseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid caller address"))
		return
	}
	start := time.Now()
	confirmation, err := s.coordinator.CancelEscrow(r.Context(), caller, id)
	observeOp("cancel_escrow", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"confirmation": string(confirmation)})
}

type disputeRequest struct {
	Caller string `json:"caller"`
	Reason string `json:"reason"`
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req disputeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	caller, err := ledger.ParseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid caller address"))
		return
	}
	start := time.Now()
	confirmation, err := s.coordinator.FileDispute(r.Context(), caller, id, req.Reason)
	observeOp("file_dispute", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"confirmation": string(confirmation)})
}

type evidenceRequest struct {
	Submitter string `json:"submitter"`
	Kind      string `json:"kind"`
	Data      string `json:"data"`
}

func (s *Server) handleSubmitEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req evidenceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	submitter, err := ledger.ParseAddress(req.Submitter)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid submitter address"))
		return
	}
	start := time.Now()
	confirmation, err := s.coordinator.SubmitDisputeEvidence(r.Context(), submitter, id, req.Kind, req.Data)
	observeOp("submit_evidence", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"confirmation": string(confirmation)})
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	start := time.Now()
	entries, err := s.coordinator.GetDisputeEvidence(r.Context(), id)
	observeOp("get_evidence", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		views = append(views, map[string]interface{}{
			"submitter":   e.Submitter.String(),
			"kind":        e.Kind,
			"data":        e.Data,
			"submittedAt": e.SubmittedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"evidence": views})
}

type resolveRequest struct {
	Arbiter        string `json:"arbiter"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason"`
	Amount         string `json:"amount,omitempty"`
	DepositorPct   uint8  `json:"depositorPct,omitempty"`
	BeneficiaryPct uint8  `json:"beneficiaryPct,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	arbiter, err := ledger.ParseAddress(req.Arbiter)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid arbiter address"))
		return
	}
	var amount *big.Int
	if req.Amount != "" {
		amount, err = parseAmount(req.Amount)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	var resolution escrow.Resolution
	switch req.Outcome {
	case "refund":
		resolution, err = escrow.NewRefund(req.Reason, amount)
	case "release":
		resolution, err = escrow.NewRelease(req.Reason, amount)
	case "split":
		resolution, err = escrow.NewSplit(req.Reason, escrow.SplitRatio{
			DepositorPct:   req.DepositorPct,
			BeneficiaryPct: req.BeneficiaryPct,
		})
	default:
		s.writeJSON(w, http.StatusBadRequest, errorBody("outcome must be refund, release or split"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.coordinator.ResolveDispute(r.Context(), arbiter, id, resolution)
	observeOp("resolve_dispute", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"confirmation": string(result.Confirmation),
		"outcome":      result.Kind.String(),
	})
}

type partyPayload struct {
	Address  string `json:"address"`
	SharePct uint8  `json:"sharePct"`
	Role     string `json:"role"`
}

type conditionPayload struct {
	Kind          string   `json:"kind"`
	Timestamp     int64    `json:"timestamp,omitempty"`
	Oracle        string   `json:"oracle,omitempty"`
	ExpectedValue string   `json:"expectedValue,omitempty"`
	Signers       []string `json:"signers,omitempty"`
	RequiredCount uint32   `json:"requiredCount,omitempty"`
}

func parseParty(p partyPayload) (escrow.Party, error) {
	addr, err := ledger.ParseAddress(p.Address)
	if err != nil {
		return escrow.Party{}, fmt.Errorf("invalid party address %q", p.Address)
	}
	var role escrow.PartyRole
	switch p.Role {
	case "depositor":
		role = escrow.RoleDepositor
	case "beneficiary":
		role = escrow.RoleBeneficiary
	case "arbitrator":
		role = escrow.RoleArbitrator
	default:
		return escrow.Party{}, fmt.Errorf("invalid party role %q", p.Role)
	}
	return escrow.Party{Address: addr, SharePct: p.SharePct, Role: role}, nil
}

func parseCondition(p conditionPayload) (escrow.ReleaseCondition, error) {
	switch p.Kind {
	case "timelock":
		return escrow.Timelock(p.Timestamp), nil
	case "oracle":
		oracle, err := ledger.ParseAccountID(p.Oracle)
		if err != nil {
			return escrow.ReleaseCondition{}, fmt.Errorf("invalid oracle account %q", p.Oracle)
		}
		expected, err := hex.DecodeString(p.ExpectedValue)
		if err != nil {
			return escrow.ReleaseCondition{}, fmt.Errorf("invalid expected value %q", p.ExpectedValue)
		}
		return escrow.OracleEquals(oracle, expected), nil
	case "multisig":
		signers := make([]ledger.Address, 0, len(p.Signers))
		for _, raw := range p.Signers {
			addr, err := ledger.ParseAddress(raw)
			if err != nil {
				return escrow.ReleaseCondition{}, fmt.Errorf("invalid signer address %q", raw)
			}
			signers = append(signers, addr)
		}
		return escrow.MultisigApproval(signers, p.RequiredCount), nil
	default:
		return escrow.ReleaseCondition{}, fmt.Errorf("invalid condition kind %q", p.Kind)
	}
}

type createMultiPartyRequest struct {
	Signer      string             `json:"signer"`
	Nonce       uint64             `json:"nonce"`
	TotalAmount string             `json:"totalAmount"`
	Arbitrator  string             `json:"arbitrator,omitempty"`
	Deadline    int64              `json:"deadline,omitempty"`
	Parties     []partyPayload     `json:"parties"`
	Conditions  []conditionPayload `json:"conditions,omitempty"`
}

func (s *Server) handleCreateMultiParty(w http.ResponseWriter, r *http.Request) {
	var req createMultiPartyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	signer, err := ledger.ParseAddress(req.Signer)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid signer address"))
		return
	}
	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var arbitrator ledger.Address
	if req.Arbitrator != "" {
		arbitrator, err = ledger.ParseAddress(req.Arbitrator)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody("invalid arbitrator address"))
			return
		}
	}
	parties := make([]escrow.Party, 0, len(req.Parties))
	for _, p := range req.Parties {
		party, err := parseParty(p)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		parties = append(parties, party)
	}
	conditions := make([]escrow.ReleaseCondition, 0, len(req.Conditions))
	for _, p := range req.Conditions {
		cond, err := parseCondition(p)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		conditions = append(conditions, cond)
	}

	start := time.Now()
	result, err := s.coordinator.CreateMultiPartyEscrow(r.Context(), signer, escrow.MultiPartyConfig{
		Nonce:             req.Nonce,
		Parties:           parties,
		TotalAmount:       total,
		Arbitrator:        arbitrator,
		ReleaseConditions: conditions,
		Deadline:          req.Deadline,
	})
	observeOp("create_multi_party", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"escrow":       result.Escrow.String(),
		"confirmation": string(result.Confirmation),
	})
}

type setConditionsRequest struct {
	Signer     string             `json:"signer"`
	Conditions []conditionPayload `json:"conditions"`
}

func (s *Server) handleSetConditions(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req setConditionsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	signer, err := ledger.ParseAddress(req.Signer)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid signer address"))
		return
	}
	conditions := make([]escrow.ReleaseCondition, 0, len(req.Conditions))
	for _, p := range req.Conditions {
		cond, err := parseCondition(p)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		conditions = append(conditions, cond)
	}
	start := time.Now()
	confirmation, err := s.coordinator.SetAutomatedReleaseConditions(r.Context(), signer, id, conditions)
	observeOp("set_conditions", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"confirmation": string(confirmation)})
}

type approveReleaseRequest struct {
	Signer string `json:"signer"`
}

func (s *Server) handleApproveRelease(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	var req approveReleaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	signer, err := ledger.ParseAddress(req.Signer)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid signer address"))
		return
	}
	start := time.Now()
	confirmation, err := s.coordinator.ApproveRelease(r.Context(), signer, id)
	observeOp("approve_release", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"confirmation": string(confirmation)})
}

func (s *Server) handleReleaseCheck(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	start := time.Now()
	check, err := s.coordinator.CanRelease(r.Context(), id)
	observeOp("release_check", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"canRelease": check.CanRelease,
		"reason":     check.Reason,
	})
}

func (s *Server) handleAutoReleaseCheck(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid escrow id"))
		return
	}
	start := time.Now()
	check, err := s.coordinator.CheckAutomatedRelease(r.Context(), id)
	observeOp("auto_release_check", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"canRelease":       check.CanRelease,
		"conditionsMet":    check.ConditionsMet,
		"conditionsNotMet": check.ConditionsNotMet,
	})
}

func (s *Server) handleUserEscrows(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody("invalid user address"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = val
	}
	start := time.Now()
	escrows, err := s.coordinator.GetUserEscrows(r.Context(), addr, limit)
	observeOp("user_escrows", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]escrowResponse, 0, len(escrows))
	for _, ue := range escrows {
		views = append(views, escrowView(ue.Escrow))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"escrows": views})
}
