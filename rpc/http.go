package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mintgate/core"
	"mintgate/native/common"
	"mintgate/native/drop"
	"mintgate/native/droptoken"
	"mintgate/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rpcTokenEnv     = "MINTGATE_RPC_TOKEN"
	limiterIdleTTL  = 10 * time.Minute

	defaultMintsPerMinute = 50
	defaultMintBurst      = 25
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateMint  = -32010
	codeRateLimited    = -32020
	codeModulePaused   = -32030
)

// ServerConfig tunes the JSON-RPC surface. Zero values fall back to
// defaults; a blank AuthToken falls back to the MINTGATE_RPC_TOKEN
// environment variable.
type ServerConfig struct {
	AuthToken      string
	MintsPerMinute int
	MintBurst      int
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	node *core.Node

	mu        sync.Mutex
	limiters  map[string]*sourceLimiter
	authToken string
	mintRate  rate.Limit
	mintBurst int
}

func NewServer(node *core.Node, cfg ServerConfig) *Server {
	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(rpcTokenEnv))
	}
	perMinute := cfg.MintsPerMinute
	if perMinute <= 0 {
		perMinute = defaultMintsPerMinute
	}
	burst := cfg.MintBurst
	if burst <= 0 {
		burst = defaultMintBurst
	}
	return &Server{
		node:      node,
		limiters:  make(map[string]*sourceLimiter),
		authToken: token,
		mintRate:  rate.Limit(float64(perMinute) / 60.0),
		mintBurst: burst,
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint at the
// root path and the event stream at /ws/events.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func moduleForMethod(method string) string {
	if idx := strings.Index(method, "_"); idx > 0 {
		return method[:idx]
	}
	return "unknown"
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(recorder, r, req)
	observability.ModuleMetrics().Observe(moduleForMethod(req.Method), req.Method, recorder.status, time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "drop_mintSigned":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleMintSigned(w, r, req)
	case "drop_mintPublic":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleMintPublic(w, r, req)
	case "drop_getMintDigest":
		s.handleGetMintDigest(w, r, req)
	case "drop_isDigestUsed":
		s.handleIsDigestUsed(w, r, req)
	case "drop_getCreatorPayoutAddress":
		s.handleGetCreatorPayoutAddress(w, r, req)
	case "drop_getAllowedFeeRecipients":
		s.handleGetAllowedFeeRecipients(w, r, req)
	case "drop_isFeeRecipientAllowed":
		s.handleIsFeeRecipientAllowed(w, r, req)
	case "drop_getPayers":
		s.handleGetPayers(w, r, req)
	case "drop_isPayerAllowed":
		s.handleIsPayerAllowed(w, r, req)
	case "drop_getSigners":
		s.handleGetSigners(w, r, req)
	case "drop_getSignerValidationParams":
		s.handleGetSignerValidationParams(w, r, req)
	case "drop_getDropURI":
		s.handleGetDropURI(w, r, req)
	case "drop_getPublicDrop":
		s.handleGetPublicDrop(w, r, req)
	case "drop_getAllowList":
		s.handleGetAllowList(w, r, req)
	case "drop_getTokenGatedTokens":
		s.handleGetTokenGatedTokens(w, r, req)
	case "drop_getTokenGatedDrop":
		s.handleGetTokenGatedDrop(w, r, req)
	case "drop_isTokenGatedRedeemed":
		s.handleIsTokenGatedRedeemed(w, r, req)
	case "token_createCollection":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleCreateCollection(w, r, req)
	case "token_getInfo":
		s.handleTokenInfo(w, r, req)
	case "token_getWalletMinted":
		s.handleWalletMinted(w, r, req)
	case "token_updateDropURI":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateDropURI(w, r, req)
	case "token_updateCreatorPayoutAddress":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateCreatorPayoutAddress(w, r, req)
	case "token_updateAllowedFeeRecipient":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateAllowedFeeRecipient(w, r, req)
	case "token_updatePayer":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdatePayer(w, r, req)
	case "token_updateSignedMintValidationParams":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateSignedMintValidationParams(w, r, req)
	case "token_updatePublicDrop":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdatePublicDrop(w, r, req)
	case "token_updateAllowList":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateAllowList(w, r, req)
	case "token_updateTokenGatedDrop":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateTokenGatedDrop(w, r, req)
	case "token_updateAllowedRegistry":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateAllowedRegistry(w, r, req)
	case "mint_getBalance":
		s.handleGetBalance(w, r, req)
	case "mint_getChainInfo":
		s.handleGetChainInfo(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, key)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		entry = &sourceLimiter{limiter: rate.NewLimiter(s.mintRate, s.mintBurst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Module sentinel errors grouped by the JSON-RPC code they map onto.
var invalidRequestErrors = []error{
	drop.ErrInvalidRequest,
	drop.ErrStageNotActive,
	drop.ErrIncorrectPayment,
	drop.ErrPayerNotAllowed,
	drop.ErrQuantityCannotBeZero,
	drop.ErrExceedsMaxMintedPerWallet,
	drop.ErrExceedsMaxSupply,
	drop.ErrExceedsMaxTokenSupplyForStage,
	drop.ErrFeeRecipientNotAllowed,
	drop.ErrInsufficientPayerBalance,
	drop.ErrPaymentRejected,
	drop.ErrInvalidSignedMintPrice,
	drop.ErrInvalidSignedMaxTotalMintableByWallet,
	drop.ErrInvalidSignedStartTime,
	drop.ErrInvalidSignedEndTime,
	drop.ErrInvalidSignedMaxTokenSupplyForStage,
	drop.ErrInvalidSignedFeeBps,
	drop.ErrSignedMintsMustRestrictFeeRecipients,
	drop.ErrInvalidFeeBps,
	drop.ErrCreatorPayoutAddressCannotBeZeroAddress,
	drop.ErrDuplicateFeeRecipient,
	drop.ErrFeeRecipientNotPresent,
	drop.ErrFeeRecipientCannotBeZeroAddress,
	drop.ErrDuplicatePayer,
	drop.ErrPayerNotPresent,
	drop.ErrPayerCannotBeZeroAddress,
	drop.ErrDuplicateSigner,
	drop.ErrSignerNotPresent,
	drop.ErrSignerCannotBeZeroAddress,
	drop.ErrGatedTokenCannotBeZeroAddress,
	drop.ErrGatedTokenCannotBeDropToken,
	drop.ErrGatedTokenNotPresent,
	droptoken.ErrInvalidConfig,
	droptoken.ErrExceedsMaxSupply,
	droptoken.ErrDuplicateAllowedRegistry,
	droptoken.ErrAllowedRegistryNotPresent,
	droptoken.ErrRegistryCannotBeZeroAddress,
}

var unauthorizedErrors = []error{
	drop.ErrInvalidSignature,
	drop.ErrOnlyCapableCollection,
	droptoken.ErrOnlyOwner,
	droptoken.ErrOnlyAdministrator,
	droptoken.ErrOnlyOwnerOrAdministrator,
	droptoken.ErrOnlyAllowedRegistry,
}

var conflictErrors = []error{
	drop.ErrSignatureAlreadyUsed,
	drop.ErrGatedTokenIDAlreadyRedeemed,
	droptoken.ErrCollectionExists,
}

var notFoundErrors = []error{
	drop.ErrUnknownCollection,
	droptoken.ErrUnknownCollection,
}

func errorInSet(err error, set []error) bool {
	for _, candidate := range set {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

// writeDropError converts module sentinel errors to wire errors. Unknown
// errors surface as internal server errors so state corruption is never
// mistaken for a request problem.
func writeDropError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case err == nil:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
	case errors.Is(err, common.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeModulePaused, err.Error(), nil)
	case errorInSet(err, conflictErrors):
		writeError(w, http.StatusConflict, id, codeDuplicateMint, err.Error(), nil)
	case errorInSet(err, notFoundErrors):
		writeError(w, http.StatusNotFound, id, codeServerError, err.Error(), nil)
	case errorInSet(err, unauthorizedErrors):
		writeError(w, http.StatusUnauthorized, id, codeUnauthorized, err.Error(), nil)
	case errorInSet(err, invalidRequestErrors):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

type chainInfoResult struct {
	ChainID         uint64 `json:"chainId"`
	NetworkName     string `json:"networkName"`
	RegistryAddress string `json:"registryAddress"`
	DomainSeparator string `json:"domainSeparator"`
	EventSequence   uint64 `json:"eventSequence"`
}

func (s *Server) handleGetChainInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	result := chainInfoResult{
		ChainID:         s.node.ChainID(),
		NetworkName:     s.node.NetworkName(),
		RegistryAddress: formatAddress(s.node.RegistryModuleAddress()),
		DomainSeparator: formatHash(s.node.Hasher().DomainSeparator()),
		EventSequence:   s.node.Sequence(),
	}
	writeResult(w, req.ID, result)
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{Address: params.Address, Balance: bigString(balance)})
}
