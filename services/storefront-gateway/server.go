package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	gwauth "mintgate/gateway/auth"
	"mintgate/gateway/middleware"
	"mintgate/observability"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxRequestBody       = 1 << 20 // 1 MiB

	upstreamWriteTimeout = 15 * time.Second
	upstreamReadTimeout  = 10 * time.Second
)

// ServerConfig bundles the dependencies the HTTP surface is assembled from.
type ServerConfig struct {
	Tenants *gwauth.Authenticator
	Admin   *middleware.Authenticator
	Limiter *middleware.RateLimiter
	Obs     *middleware.Observability
	CORS    middleware.CORSConfig
	Logger  *slog.Logger
}

// Server is the REST front-end storefronts submit mints through.
type Server struct {
	tenants *gwauth.Authenticator
	admin   *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	cors    middleware.CORSConfig
	node    NodeClient
	store   *SQLiteStore
	log     *slog.Logger
	nowFn   func() time.Time
	newID   func() string
}

func NewServer(node NodeClient, store *SQLiteStore, cfg ServerConfig) *Server {
	if node == nil {
		panic("node client required")
	}
	if store == nil {
		panic("sqlite store required")
	}
	if cfg.Tenants == nil {
		panic("tenant authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tenants: cfg.Tenants,
		admin:   cfg.Admin,
		limiter: cfg.Limiter,
		obs:     cfg.Obs,
		cors:    cfg.CORS,
		node:    node,
		store:   store,
		log:     logger,
		nowFn:   time.Now,
		newID:   uuid.NewString,
	}
}

// Handler assembles the route tree with its middleware chains.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(s.cors))

	r.With(s.observe("healthz")).Get("/healthz", s.handleHealthz)

	r.Route("/v1/mints", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware("mints"))
		}
		sr.Use(s.observe("mints"))
		sr.Post("/public", s.handleMintPublic)
		sr.Post("/signed", s.handleMintSigned)
		sr.Get("/{requestID}", s.handleMintGet)
	})

	r.Route("/v1/collections", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware("reads"))
		}
		sr.Use(s.observe("collections"))
		sr.Get("/{collection}", s.handleCollectionGet)
		sr.Get("/{collection}/eligibility", s.handleEligibility)
	})

	r.Route("/v1/admin", func(sr chi.Router) {
		if s.limiter != nil {
			sr.Use(s.limiter.Middleware("admin"))
		}
		if s.admin != nil {
			sr.Use(s.admin.Middleware(middleware.ScopeDropAdmin))
		}
		sr.Use(s.observe("admin"))
		sr.Put("/collections/{collection}/drop-uri", s.handleAdminDropURI)
		sr.Put("/collections/{collection}/creator-payout", s.handleAdminCreatorPayout)
		sr.Put("/collections/{collection}/public-drop", s.handleAdminPublicDrop)
		sr.Put("/collections/{collection}/fee-recipients", s.handleAdminFeeRecipient)
		sr.Put("/collections/{collection}/payers", s.handleAdminPayer)
	})

	if s.obs != nil {
		r.Handle("/metrics", s.obs.MetricsHandler())
	}
	return r
}

func (s *Server) observe(route string) func(http.Handler) http.Handler {
	if s.obs == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.obs.Middleware(route)
}

type mintPublicBody struct {
	Payer        string `json:"payer"`
	Collection   string `json:"collection"`
	FeeRecipient string `json:"feeRecipient"`
	Minter       string `json:"minter"`
	Quantity     uint64 `json:"quantity"`
	Payment      string `json:"payment"`
}

type mintSignedBody struct {
	Payer        string      `json:"payer"`
	Collection   string      `json:"collection"`
	FeeRecipient string      `json:"feeRecipient"`
	Minter       string      `json:"minter"`
	Quantity     uint64      `json:"quantity"`
	MintParams   *MintParams `json:"mintParams"`
	Salt         string      `json:"salt"`
	Signature    string      `json:"signature"`
	Payment      string      `json:"payment"`
}

type submissionResponse struct {
	RequestID string       `json:"requestId"`
	Kind      string       `json:"kind"`
	Receipt   *MintReceipt `json:"receipt"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (s *Server) handleMintPublic(w http.ResponseWriter, r *http.Request) {
	s.handleMintSubmit(w, r, "public")
}

func (s *Server) handleMintSigned(w http.ResponseWriter, r *http.Request) {
	s.handleMintSubmit(w, r, "signed")
}

func (s *Server) handleMintSubmit(w http.ResponseWriter, r *http.Request, kind string) {
	body, err := s.readRequestBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	principal, err := s.tenants.Authenticate(r, body)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing Idempotency-Key header"))
		return
	}
	requestHash := hashRequest(r.Method, gwauth.CanonicalRequestPath(r), body)
	if cached, cacheErr := s.store.LookupIdempotency(r.Context(), principal.APIKey, key, requestHash); cacheErr == nil && cached != nil {
		observability.Gateway().RecordIdempotentReplay()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(cached.Status)
		_, _ = w.Write(cached.Body)
		return
	} else if cacheErr != nil {
		status := http.StatusInternalServerError
		if errors.Is(cacheErr, ErrIdempotencyMismatch) {
			status = http.StatusConflict
		}
		s.writeError(w, status, cacheErr)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamWriteTimeout)
	defer cancel()
	receipt, submitErr := s.submit(ctx, kind, body)
	observability.Gateway().ObserveSubmission(kind, submitErr)
	if submitErr != nil {
		status := statusFromNode(submitErr)
		var badReq *requestError
		if errors.As(submitErr, &badReq) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, submitErr)
		return
	}

	sub := MintSubmission{
		RequestID:  s.newID(),
		APIKey:     principal.APIKey,
		Kind:       kind,
		Collection: receipt.Collection,
		Minter:     receipt.Minter,
		Quantity:   receipt.Quantity,
		Payment:    receipt.payment,
		Digest:     receipt.Digest,
		Status:     http.StatusCreated,
		CreatedAt:  s.nowFn().UTC(),
	}
	payload, err := json.Marshal(submissionResponse{
		RequestID: sub.RequestID,
		Kind:      kind,
		Receipt:   &receipt.MintReceipt,
		CreatedAt: sub.CreatedAt,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	sub.Response = payload
	if err := s.store.SaveIdempotency(r.Context(), principal.APIKey, key, requestHash, http.StatusCreated, payload); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.InsertSubmission(r.Context(), sub); err != nil {
		s.log.Error("record submission", "requestId", sub.RequestID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(payload)
}

// requestError marks validation failures so they surface as 400 rather than 502.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// submittedReceipt pairs the node receipt with the payment the gateway settled on.
type submittedReceipt struct {
	MintReceipt
	payment string
}

func (s *Server) submit(ctx context.Context, kind string, body []byte) (*submittedReceipt, error) {
	switch kind {
	case "public":
		var req mintPublicBody
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, badRequest("invalid JSON payload: %v", err)
		}
		if err := validateMintCommon(req.Payer, req.Collection, req.FeeRecipient, req.Quantity); err != nil {
			return nil, err
		}
		payment := strings.TrimSpace(req.Payment)
		if payment == "" {
			view, err := s.node.PublicDrop(ctx, req.Collection)
			if err != nil {
				return nil, err
			}
			if !view.Configured || view.PublicDrop == nil {
				return nil, badRequest("payment required: public drop not configured for %s", req.Collection)
			}
			payment, err = quotePayment(view.PublicDrop.Price, req.Quantity)
			if err != nil {
				return nil, err
			}
		}
		receipt, err := s.node.MintPublic(ctx, MintPublicRequest{
			Payer:        req.Payer,
			Collection:   req.Collection,
			FeeRecipient: req.FeeRecipient,
			Minter:       strings.TrimSpace(req.Minter),
			Quantity:     req.Quantity,
			Payment:      payment,
		})
		if err != nil {
			return nil, err
		}
		return &submittedReceipt{MintReceipt: *receipt, payment: payment}, nil
	case "signed":
		var req mintSignedBody
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, badRequest("invalid JSON payload: %v", err)
		}
		if err := validateMintCommon(req.Payer, req.Collection, req.FeeRecipient, req.Quantity); err != nil {
			return nil, err
		}
		if req.MintParams == nil {
			return nil, badRequest("mintParams is required")
		}
		if strings.TrimSpace(req.Signature) == "" {
			return nil, badRequest("signature is required")
		}
		payment := strings.TrimSpace(req.Payment)
		if payment == "" {
			var err error
			payment, err = quotePayment(req.MintParams.Price, req.Quantity)
			if err != nil {
				return nil, err
			}
		}
		receipt, err := s.node.MintSigned(ctx, MintSignedRequest{
			Payer:        req.Payer,
			Collection:   req.Collection,
			FeeRecipient: req.FeeRecipient,
			Minter:       strings.TrimSpace(req.Minter),
			Quantity:     req.Quantity,
			MintParams:   req.MintParams,
			Salt:         strings.TrimSpace(req.Salt),
			Signature:    req.Signature,
			Payment:      payment,
		})
		if err != nil {
			return nil, err
		}
		return &submittedReceipt{MintReceipt: *receipt, payment: payment}, nil
	default:
		return nil, badRequest("unknown submission kind %q", kind)
	}
}

func validateMintCommon(payer, collection, feeRecipient string, quantity uint64) error {
	if strings.TrimSpace(payer) == "" {
		return badRequest("payer is required")
	}
	if strings.TrimSpace(collection) == "" {
		return badRequest("collection is required")
	}
	if strings.TrimSpace(feeRecipient) == "" {
		return badRequest("feeRecipient is required")
	}
	if quantity == 0 {
		return badRequest("quantity must be positive")
	}
	return nil
}

func quotePayment(price string, quantity uint64) (string, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(price), 10)
	if !ok || amount.Sign() < 0 {
		return "", badRequest("stage price %q is not a valid amount", price)
	}
	total := new(big.Int).Mul(amount, new(big.Int).SetUint64(quantity))
	return total.String(), nil
}

func (s *Server) handleMintGet(w http.ResponseWriter, r *http.Request) {
	body, err := s.readRequestBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	principal, err := s.tenants.Authenticate(r, body)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	requestID := chi.URLParam(r, "requestID")
	sub, err := s.store.GetSubmission(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Submissions are scoped to the key that created them.
	if sub.APIKey != principal.APIKey {
		s.writeError(w, http.StatusNotFound, ErrSubmissionNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(sub.Response)
}

type collectionView struct {
	Collection    string            `json:"collection"`
	Name          string            `json:"name"`
	Owner         string            `json:"owner"`
	Administrator string            `json:"administrator,omitempty"`
	Variant       string            `json:"variant"`
	MaxSupply     uint64            `json:"maxSupply"`
	TotalSupply   uint64            `json:"totalSupply"`
	DropURI       string            `json:"dropURI,omitempty"`
	CreatorPayout string            `json:"creatorPayoutAddress,omitempty"`
	PublicDrop    *PublicDropParams `json:"publicDrop,omitempty"`
}

func (s *Server) handleCollectionGet(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	ctx, cancel := context.WithTimeout(r.Context(), upstreamReadTimeout)
	defer cancel()

	info, err := s.node.CollectionInfo(ctx, collection)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}
	dropURI, err := s.node.DropURI(ctx, collection)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}
	payout, err := s.node.CreatorPayout(ctx, collection)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}
	drop, err := s.node.PublicDrop(ctx, collection)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}

	view := collectionView{
		Collection:    info.Collection,
		Name:          info.Name,
		Owner:         info.Owner,
		Administrator: info.Administrator,
		Variant:       info.Variant,
		MaxSupply:     info.MaxSupply,
		TotalSupply:   info.TotalSupply,
		DropURI:       dropURI,
		CreatorPayout: payout,
	}
	if drop.Configured {
		view.PublicDrop = drop.PublicDrop
	}
	s.writeJSON(w, http.StatusOK, view)
}

type eligibilityView struct {
	Collection      string `json:"collection"`
	Wallet          string `json:"wallet"`
	StageActive     bool   `json:"stageActive"`
	Price           string `json:"price,omitempty"`
	WalletMinted    uint64 `json:"walletMinted"`
	WalletRemaining uint64 `json:"walletRemaining"`
	SupplyRemaining uint64 `json:"supplyRemaining"`
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason,omitempty"`
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("wallet query parameter required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), upstreamReadTimeout)
	defer cancel()

	info, err := s.node.CollectionInfo(ctx, collection)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}
	stage, err := s.node.PublicDrop(ctx, collection)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}
	minted, err := s.node.WalletMinted(ctx, collection, wallet)
	if err != nil {
		s.writeError(w, statusFromNode(err), err)
		return
	}

	view := eligibilityView{
		Collection:   collection,
		Wallet:       wallet,
		WalletMinted: minted,
	}
	if info.MaxSupply > info.TotalSupply {
		view.SupplyRemaining = info.MaxSupply - info.TotalSupply
	}
	switch {
	case !stage.Configured || stage.PublicDrop == nil:
		view.Reason = "public drop not configured"
	default:
		params := stage.PublicDrop
		view.Price = params.Price
		now := uint64(s.nowFn().Unix())
		view.StageActive = now >= params.StartTime && now < params.EndTime
		if params.MaxTotalMintableByWallet > minted {
			view.WalletRemaining = params.MaxTotalMintableByWallet - minted
		}
		switch {
		case !view.StageActive:
			view.Reason = "public stage not active"
		case view.WalletRemaining == 0:
			view.Reason = "wallet limit reached"
		case view.SupplyRemaining == 0:
			view.Reason = "collection sold out"
		default:
			view.Eligible = true
		}
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAdminDropURI(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := s.readAdminBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller  string `json:"caller"`
		DropURI string `json:"dropURI"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	if strings.TrimSpace(req.DropURI) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("dropURI is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), upstreamWriteTimeout)
	defer cancel()
	s.completeAdmin(w, r, body, s.node.UpdateDropURI(ctx, req.Caller, collection, req.DropURI))
}

func (s *Server) handleAdminCreatorPayout(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := s.readAdminBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller        string `json:"caller"`
		PayoutAddress string `json:"payoutAddress"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	if strings.TrimSpace(req.PayoutAddress) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("payoutAddress is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), upstreamWriteTimeout)
	defer cancel()
	s.completeAdmin(w, r, body, s.node.UpdateCreatorPayout(ctx, req.Caller, collection, req.PayoutAddress))
}

func (s *Server) handleAdminPublicDrop(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := s.readAdminBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller     string            `json:"caller"`
		PublicDrop *PublicDropParams `json:"publicDrop"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	if req.PublicDrop == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("publicDrop is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), upstreamWriteTimeout)
	defer cancel()
	s.completeAdmin(w, r, body, s.node.UpdatePublicDrop(ctx, req.Caller, collection, *req.PublicDrop))
}

func (s *Server) handleAdminFeeRecipient(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := s.readAdminBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller       string `json:"caller"`
		FeeRecipient string `json:"feeRecipient"`
		Allowed      bool   `json:"allowed"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	if strings.TrimSpace(req.FeeRecipient) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("feeRecipient is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), upstreamWriteTimeout)
	defer cancel()
	s.completeAdmin(w, r, body, s.node.UpdateAllowedFeeRecipient(ctx, req.Caller, collection, req.FeeRecipient, req.Allowed))
}

func (s *Server) handleAdminPayer(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := s.readAdminBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller  string `json:"caller"`
		Payer   string `json:"payer"`
		Allowed bool   `json:"allowed"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if strings.TrimSpace(req.Caller) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("caller is required"))
		return
	}
	if strings.TrimSpace(req.Payer) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("payer is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), upstreamWriteTimeout)
	defer cancel()
	s.completeAdmin(w, r, body, s.node.UpdatePayer(ctx, req.Caller, collection, req.Payer, req.Allowed))
}

func (s *Server) readAdminBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := s.readRequestBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return body, true
}

func (s *Server) completeAdmin(w http.ResponseWriter, r *http.Request, body []byte, err error) {
	actor := middleware.Subject(r.Context())
	if err != nil {
		status := statusFromNode(err)
		s.writeError(w, status, err)
		s.auditAdmin(r, actor, body, status)
		return
	}
	s.auditAdmin(r, actor, body, http.StatusOK)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) auditAdmin(r *http.Request, actor string, body []byte, status int) {
	entry := AuditEntry{
		Actor:          actor,
		Method:         r.Method,
		Path:           gwauth.CanonicalRequestPath(r),
		RequestBody:    append([]byte(nil), body...),
		ResponseStatus: status,
		Timestamp:      s.nowFn().UTC(),
	}
	if err := s.store.InsertAuditLog(r.Context(), entry); err != nil {
		s.log.Error("audit admin action", "path", entry.Path, "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	info, err := s.node.ChainInfo(ctx)
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"chainId": info.ChainID,
		"network": info.NetworkName,
	})
}

// statusFromNode maps upstream verdicts to the status the tenant should see.
// Node-side 401s mean the caller lacks authority over the collection, which
// is a 403 here; the gateway's own credentials failing is a 502.
func statusFromNode(err error) int {
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		return http.StatusBadGateway
	}
	switch nodeErr.HTTPStatus {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict,
		http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return nodeErr.HTTPStatus
	case http.StatusUnauthorized:
		if nodeErr.Code == nodeCodeUnauthorized {
			return http.StatusForbidden
		}
		return http.StatusBadGateway
	}
	switch nodeErr.Code {
	case nodeCodeDuplicateMint:
		return http.StatusConflict
	case nodeCodeInvalidParams, nodeCodeInvalidRequest:
		return http.StatusBadRequest
	case nodeCodeRateLimited:
		return http.StatusTooManyRequests
	case nodeCodeModulePaused:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (s *Server) readRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, maxRequestBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	return data, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := strings.ReplaceAll(err.Error(), "\"", "'")
	payload := fmt.Sprintf(`{"error":"%s"}`, msg)
	_, _ = w.Write([]byte(payload))
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	payload := fmt.Sprintf(`{"error":"%s"}`, strings.ReplaceAll(err.Error(), "\"", "'"))
	_, _ = w.Write([]byte(payload))
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{strings.ToUpper(method), path, string(body)}, "\n")))
	return fmt.Sprintf("%x", sum[:])
}
