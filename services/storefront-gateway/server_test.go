package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gwauth "mintgate/gateway/auth"
	"mintgate/gateway/middleware"
)

const (
	testTenantKey    = "storefront-key"
	testTenantSecret = "storefront-secret"
	otherTenantKey   = "partner-key"
	otherTenantSecret = "partner-secret"
	testAdminSecret  = "storefront-admin-secret"
)

var testDBSequence atomic.Int64

type mockNodeClient struct {
	mu sync.Mutex

	mintPublicResp  *MintReceipt
	mintPublicErr   error
	mintPublicCalls int
	lastMintPublic  MintPublicRequest

	mintSignedResp  *MintReceipt
	mintSignedErr   error
	mintSignedCalls int
	lastMintSigned  MintSignedRequest

	infoResp *CollectionInfo
	infoErr  error

	publicDropResp  *PublicDropView
	publicDropErr   error
	publicDropCalls int

	dropURIResp string
	payoutResp  string
	mintedResp  uint64

	chainInfoResp *ChainInfo
	chainInfoErr  error

	updateErr       error
	dropURICalls    int
	lastDropURIArgs struct {
		caller     string
		collection string
		dropURI    string
	}
	payoutUpdateCalls     int
	publicDropUpdateCalls int
	feeRecipientCalls     int
	payerCalls            int
}

func (m *mockNodeClient) MintPublic(ctx context.Context, req MintPublicRequest) (*MintReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mintPublicCalls++
	m.lastMintPublic = req
	if m.mintPublicErr != nil {
		return nil, m.mintPublicErr
	}
	if m.mintPublicResp != nil {
		resp := *m.mintPublicResp
		return &resp, nil
	}
	return nil, nil
}

func (m *mockNodeClient) MintSigned(ctx context.Context, req MintSignedRequest) (*MintReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mintSignedCalls++
	m.lastMintSigned = req
	if m.mintSignedErr != nil {
		return nil, m.mintSignedErr
	}
	if m.mintSignedResp != nil {
		resp := *m.mintSignedResp
		return &resp, nil
	}
	return nil, nil
}

func (m *mockNodeClient) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	if m.infoResp != nil {
		resp := *m.infoResp
		return &resp, nil
	}
	return nil, nil
}

func (m *mockNodeClient) PublicDrop(ctx context.Context, collection string) (*PublicDropView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicDropCalls++
	if m.publicDropErr != nil {
		return nil, m.publicDropErr
	}
	if m.publicDropResp != nil {
		resp := *m.publicDropResp
		if m.publicDropResp.PublicDrop != nil {
			params := *m.publicDropResp.PublicDrop
			resp.PublicDrop = &params
		}
		return &resp, nil
	}
	return &PublicDropView{Collection: collection}, nil
}

func (m *mockNodeClient) DropURI(ctx context.Context, collection string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropURIResp, nil
}

func (m *mockNodeClient) CreatorPayout(ctx context.Context, collection string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payoutResp, nil
}

func (m *mockNodeClient) WalletMinted(ctx context.Context, collection, wallet string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mintedResp, nil
}

func (m *mockNodeClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chainInfoErr != nil {
		return nil, m.chainInfoErr
	}
	if m.chainInfoResp != nil {
		resp := *m.chainInfoResp
		return &resp, nil
	}
	return nil, nil
}

func (m *mockNodeClient) UpdateDropURI(ctx context.Context, caller, collection, dropURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropURICalls++
	m.lastDropURIArgs = struct {
		caller     string
		collection string
		dropURI    string
	}{caller: caller, collection: collection, dropURI: dropURI}
	return m.updateErr
}

func (m *mockNodeClient) UpdateCreatorPayout(ctx context.Context, caller, collection, payout string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payoutUpdateCalls++
	return m.updateErr
}

func (m *mockNodeClient) UpdatePublicDrop(ctx context.Context, caller, collection string, stage PublicDropParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicDropUpdateCalls++
	return m.updateErr
}

func (m *mockNodeClient) UpdateAllowedFeeRecipient(ctx context.Context, caller, collection, feeRecipient string, allowed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeRecipientCalls++
	return m.updateErr
}

func (m *mockNodeClient) UpdatePayer(ctx context.Context, caller, collection, payer string, allowed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payerCalls++
	return m.updateErr
}

func newTestServer(t *testing.T, node NodeClient) (*Server, *SQLiteStore, http.Handler) {
	t.Helper()
	dsn := fmt.Sprintf("file:storefront%d?mode=memory&cache=shared", testDBSequence.Add(1))
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	epoch := time.Unix(1_700_000_000, 0).UTC()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tenants := gwauth.NewAuthenticator(gwauth.Options{
		Secrets: map[string]string{
			testTenantKey:  testTenantSecret,
			otherTenantKey: otherTenantSecret,
		},
		TimestampSkew: time.Minute,
		NonceTTL:      2 * time.Minute,
		NonceCapacity: 32,
		Now:           func() time.Time { return epoch },
	})
	admin := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:  true,
		Secret:   testAdminSecret,
		Issuer:   "mintgate-ops",
		Audience: "storefront",
	}, logger)

	server := NewServer(node, store, ServerConfig{
		Tenants: tenants,
		Admin:   admin,
		Logger:  logger,
	})
	server.nowFn = func() time.Time { return epoch }
	server.newID = func() string { return "req-1" }
	return server, store, server.Handler()
}

func signedRequest(t *testing.T, method, target, key, secret string, body []byte, ts time.Time, nonce string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	sig := gwauth.ComputeSignature(secret, timestamp, nonce, method, gwauth.CanonicalRequestPath(req), body)
	req.Header.Set(gwauth.HeaderAPIKey, key)
	req.Header.Set(gwauth.HeaderTimestamp, timestamp)
	req.Header.Set(gwauth.HeaderNonce, nonce)
	req.Header.Set(gwauth.HeaderSignature, hex.EncodeToString(sig))
	return req
}

func adminToken(t *testing.T, scope string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "ops@studio",
		"iss":   "mintgate-ops",
		"aud":   "storefront",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"scope": scope,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestMintPublicRequiresValidSignature(t *testing.T) {
	node := &mockNodeClient{}
	_, _, handler := newTestServer(t, node)

	body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":1,"payment":"1000"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/mints/public", bytes.NewReader(body))
	req.Header.Set(gwauth.HeaderAPIKey, testTenantKey)
	req.Header.Set(gwauth.HeaderTimestamp, "1700000000")
	req.Header.Set(gwauth.HeaderNonce, "nonce-bad")
	req.Header.Set(gwauth.HeaderSignature, "deadbeef")
	req.Header.Set(headerIdempotencyKey, "idem-auth")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 unauthorized got %d", rec.Code)
	}
	if node.mintPublicCalls != 0 {
		t.Fatalf("expected no mint calls, got %d", node.mintPublicCalls)
	}
}

func TestMintPublicSubmitsAndReplays(t *testing.T) {
	node := &mockNodeClient{
		mintPublicResp: &MintReceipt{
			Collection:  "mint1col",
			Stage:       "public",
			Minter:      "mint1payer",
			Quantity:    2,
			TotalSupply: 12,
		},
	}
	_, _, handler := newTestServer(t, node)
	epoch := time.Unix(1_700_000_000, 0).UTC()

	body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":2,"payment":"2000"}`)
	req1 := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, body, epoch, "nonce-submit-1")
	req1.Header.Set(headerIdempotencyKey, "idem-submit")

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("expected 201 created got %d body=%s", rec1.Code, rec1.Body.String())
	}
	if node.mintPublicCalls != 1 {
		t.Fatalf("expected one mint call, got %d", node.mintPublicCalls)
	}
	var created submissionResponse
	if err := json.Unmarshal(rec1.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.RequestID != "req-1" {
		t.Fatalf("expected request id req-1 got %s", created.RequestID)
	}
	if created.Receipt == nil || created.Receipt.TotalSupply != 12 {
		t.Fatalf("unexpected receipt: %+v", created.Receipt)
	}
	if node.lastMintPublic.Payment != "2000" {
		t.Fatalf("expected payment forwarded, got %s", node.lastMintPublic.Payment)
	}

	req2 := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, body, epoch.Add(time.Second), "nonce-submit-2")
	req2.Header.Set(headerIdempotencyKey, "idem-submit")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("expected cached 201 got %d", rec2.Code)
	}
	if node.mintPublicCalls != 1 {
		t.Fatalf("expected node not called again, got %d", node.mintPublicCalls)
	}
	if !bytes.Equal(rec1.Body.Bytes(), rec2.Body.Bytes()) {
		t.Fatalf("expected identical responses for idempotent requests")
	}

	req3 := signedRequest(t, http.MethodGet, "/v1/mints/req-1", testTenantKey, testTenantSecret, nil, epoch.Add(2*time.Second), "nonce-submit-3")
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored submission got %d", rec3.Code)
	}
	if !bytes.Equal(rec1.Body.Bytes(), rec3.Body.Bytes()) {
		t.Fatalf("expected stored submission to match original response")
	}
}

func TestMintGetScopedToTenant(t *testing.T) {
	node := &mockNodeClient{
		mintPublicResp: &MintReceipt{Collection: "mint1col", Stage: "public", Minter: "mint1payer", Quantity: 1, TotalSupply: 1},
	}
	_, _, handler := newTestServer(t, node)
	epoch := time.Unix(1_700_000_000, 0).UTC()

	body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":1,"payment":"1000"}`)
	req := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, body, epoch, "nonce-scope-1")
	req.Header.Set(headerIdempotencyKey, "idem-scope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}

	foreign := signedRequest(t, http.MethodGet, "/v1/mints/req-1", otherTenantKey, otherTenantSecret, nil, epoch.Add(time.Second), "nonce-scope-2")
	foreignRec := httptest.NewRecorder()
	handler.ServeHTTP(foreignRec, foreign)
	if foreignRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign tenant got %d", foreignRec.Code)
	}
}

func TestMintPublicQuotesPaymentFromStage(t *testing.T) {
	node := &mockNodeClient{
		mintPublicResp: &MintReceipt{Collection: "mint1col", Stage: "public", Minter: "mint1payer", Quantity: 3, TotalSupply: 3},
		publicDropResp: &PublicDropView{
			Collection: "mint1col",
			Configured: true,
			PublicDrop: &PublicDropParams{
				Price:                    "1500",
				StartTime:                1_699_999_000,
				EndTime:                  1_700_100_000,
				MaxTotalMintableByWallet: 5,
				FeeBps:                   250,
			},
		},
	}
	_, _, handler := newTestServer(t, node)
	epoch := time.Unix(1_700_000_000, 0).UTC()

	body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":3}`)
	req := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, body, epoch, "nonce-quote")
	req.Header.Set(headerIdempotencyKey, "idem-quote")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rec.Code, rec.Body.String())
	}
	if node.publicDropCalls != 1 {
		t.Fatalf("expected one stage lookup, got %d", node.publicDropCalls)
	}
	if node.lastMintPublic.Payment != "4500" {
		t.Fatalf("expected quoted payment 4500, got %s", node.lastMintPublic.Payment)
	}
}

func TestMintPublicIdempotencyMismatch(t *testing.T) {
	node := &mockNodeClient{
		mintPublicResp: &MintReceipt{Collection: "mint1col", Stage: "public", Minter: "mint1payer", Quantity: 1, TotalSupply: 1},
	}
	_, _, handler := newTestServer(t, node)
	epoch := time.Unix(1_700_000_000, 0).UTC()

	body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":1,"payment":"1000"}`)
	req1 := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, body, epoch, "nonce-mismatch-1")
	req1.Header.Set(headerIdempotencyKey, "idem-mismatch")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec1.Code)
	}

	altered := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":2,"payment":"2000"}`)
	req2 := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, altered, epoch.Add(time.Second), "nonce-mismatch-2")
	req2.Header.Set(headerIdempotencyKey, "idem-mismatch")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 conflict got %d", rec2.Code)
	}
	if node.mintPublicCalls != 1 {
		t.Fatalf("expected node untouched by mismatched retry, got %d calls", node.mintPublicCalls)
	}
}

func TestMintSignedValidatesEnvelope(t *testing.T) {
	node := &mockNodeClient{}
	_, _, handler := newTestServer(t, node)
	epoch := time.Unix(1_700_000_000, 0).UTC()

	missingParams := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":1,"signature":"0xabc","payment":"1000"}`)
	req1 := signedRequest(t, http.MethodPost, "/v1/mints/signed", testTenantKey, testTenantSecret, missingParams, epoch, "nonce-env-1")
	req1.Header.Set(headerIdempotencyKey, "idem-env-1")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing mintParams got %d", rec1.Code)
	}

	missingSig := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":1,"mintParams":{"price":"1000","maxTotalMintableByWallet":2,"startTime":1699999000,"endTime":1700100000,"dropStageIndex":1,"maxTokenSupplyForStage":100,"feeBps":250,"restrictFeeRecipients":true},"payment":"1000"}`)
	req2 := signedRequest(t, http.MethodPost, "/v1/mints/signed", testTenantKey, testTenantSecret, missingSig, epoch.Add(time.Second), "nonce-env-2")
	req2.Header.Set(headerIdempotencyKey, "idem-env-2")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature got %d", rec2.Code)
	}
	if node.mintSignedCalls != 0 {
		t.Fatalf("expected node not invoked on validation errors, got %d", node.mintSignedCalls)
	}
}

func TestMintSignedForwardsEnvelope(t *testing.T) {
	node := &mockNodeClient{
		mintSignedResp: &MintReceipt{
			Collection:  "mint1col",
			Stage:       "signed",
			Minter:      "mint1minter",
			Quantity:    2,
			TotalSupply: 7,
			Digest:      "0x1234",
		},
	}
	_, _, handler := newTestServer(t, node)
	epoch := time.Unix(1_700_000_000, 0).UTC()

	body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","minter":"mint1minter","quantity":2,"mintParams":{"price":"1000","maxTotalMintableByWallet":4,"startTime":1699999000,"endTime":1700100000,"dropStageIndex":2,"maxTokenSupplyForStage":50,"feeBps":500,"restrictFeeRecipients":true},"salt":"0x01","signature":"0xsig"}`)
	req := signedRequest(t, http.MethodPost, "/v1/mints/signed", testTenantKey, testTenantSecret, body, epoch, "nonce-fwd")
	req.Header.Set(headerIdempotencyKey, "idem-fwd")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rec.Code, rec.Body.String())
	}
	if node.mintSignedCalls != 1 {
		t.Fatalf("expected one signed mint call, got %d", node.mintSignedCalls)
	}
	got := node.lastMintSigned
	if got.MintParams == nil || got.MintParams.DropStageIndex != 2 || got.MintParams.Price != "1000" {
		t.Fatalf("unexpected mint params: %+v", got.MintParams)
	}
	if got.Salt != "0x01" || got.Signature != "0xsig" {
		t.Fatalf("unexpected envelope: salt=%s signature=%s", got.Salt, got.Signature)
	}
	// Payment omitted in the request, quoted from the stage price.
	if got.Payment != "2000" {
		t.Fatalf("expected quoted payment 2000, got %s", got.Payment)
	}
}

func TestMintErrorsMapNodeVerdicts(t *testing.T) {
	cases := []struct {
		name    string
		nodeErr *NodeError
		want    int
	}{
		{"duplicate", &NodeError{Code: nodeCodeDuplicateMint, Message: "signature already used", HTTPStatus: http.StatusConflict}, http.StatusConflict},
		{"paused", &NodeError{Code: nodeCodeModulePaused, Message: "module paused", HTTPStatus: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
		{"invalid", &NodeError{Code: nodeCodeInvalidParams, Message: "quantity must be positive", HTTPStatus: http.StatusBadRequest}, http.StatusBadRequest},
		{"missing", &NodeError{Code: -32000, Message: "unknown collection", HTTPStatus: http.StatusNotFound}, http.StatusNotFound},
		{"forbidden", &NodeError{Code: nodeCodeUnauthorized, Message: "only owner", HTTPStatus: http.StatusUnauthorized}, http.StatusForbidden},
	}
	for i, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			node := &mockNodeClient{mintPublicErr: tc.nodeErr}
			_, _, handler := newTestServer(t, node)
			epoch := time.Unix(1_700_000_000, 0).UTC()

			body := []byte(`{"payer":"mint1payer","collection":"mint1col","feeRecipient":"mint1fee","quantity":1,"payment":"1000"}`)
			req := signedRequest(t, http.MethodPost, "/v1/mints/public", testTenantKey, testTenantSecret, body, epoch, fmt.Sprintf("nonce-map-%d", i))
			req.Header.Set(headerIdempotencyKey, fmt.Sprintf("idem-map-%d", i))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d body=%s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCollectionViewAggregatesNodeReads(t *testing.T) {
	node := &mockNodeClient{
		infoResp: &CollectionInfo{
			Collection:        "mint1col",
			Name:              "Glass Orchard",
			Owner:             "mint1owner",
			Variant:           "owner_admin",
			MaxSupply:         1000,
			TotalSupply:       40,
			AllowedRegistries: []string{"mint1registry"},
		},
		publicDropResp: &PublicDropView{
			Collection: "mint1col",
			Configured: true,
			PublicDrop: &PublicDropParams{Price: "2500", StartTime: 1_699_999_000, EndTime: 1_700_100_000, MaxTotalMintableByWallet: 4, FeeBps: 300},
		},
		dropURIResp: "ipfs://orchard/drop.json",
		payoutResp:  "mint1payout",
	}
	_, _, handler := newTestServer(t, node)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/mint1col", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var view collectionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Name != "Glass Orchard" || view.DropURI != "ipfs://orchard/drop.json" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.CreatorPayout != "mint1payout" {
		t.Fatalf("expected creator payout, got %s", view.CreatorPayout)
	}
	if view.PublicDrop == nil || view.PublicDrop.Price != "2500" {
		t.Fatalf("expected public drop in view: %+v", view.PublicDrop)
	}
}

func TestEligibilityComputesRemaining(t *testing.T) {
	node := &mockNodeClient{
		infoResp: &CollectionInfo{Collection: "mint1col", Name: "Glass Orchard", Owner: "mint1owner", Variant: "owner", MaxSupply: 100, TotalSupply: 10},
		publicDropResp: &PublicDropView{
			Collection: "mint1col",
			Configured: true,
			PublicDrop: &PublicDropParams{Price: "2500", StartTime: 1_699_999_000, EndTime: 1_700_100_000, MaxTotalMintableByWallet: 5},
		},
		mintedResp: 2,
	}
	_, _, handler := newTestServer(t, node)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/mint1col/eligibility?wallet=mint1wallet", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var view eligibilityView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if !view.Eligible {
		t.Fatalf("expected wallet to be eligible: %+v", view)
	}
	if !view.StageActive {
		t.Fatalf("expected active stage")
	}
	if view.WalletRemaining != 3 {
		t.Fatalf("expected 3 remaining for wallet, got %d", view.WalletRemaining)
	}
	if view.SupplyRemaining != 90 {
		t.Fatalf("expected 90 remaining supply, got %d", view.SupplyRemaining)
	}
	if view.Price != "2500" {
		t.Fatalf("expected stage price, got %s", view.Price)
	}
}

func TestEligibilityReportsWalletLimit(t *testing.T) {
	node := &mockNodeClient{
		infoResp: &CollectionInfo{Collection: "mint1col", Name: "Glass Orchard", Owner: "mint1owner", Variant: "owner", MaxSupply: 100, TotalSupply: 10},
		publicDropResp: &PublicDropView{
			Collection: "mint1col",
			Configured: true,
			PublicDrop: &PublicDropParams{Price: "2500", StartTime: 1_699_999_000, EndTime: 1_700_100_000, MaxTotalMintableByWallet: 2},
		},
		mintedResp: 2,
	}
	_, _, handler := newTestServer(t, node)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/mint1col/eligibility?wallet=mint1wallet", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var view eligibilityView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Eligible {
		t.Fatalf("expected wallet to be blocked: %+v", view)
	}
	if view.Reason != "wallet limit reached" {
		t.Fatalf("unexpected reason %q", view.Reason)
	}
}

func TestEligibilityRequiresWallet(t *testing.T) {
	node := &mockNodeClient{}
	_, _, handler := newTestServer(t, node)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/mint1col/eligibility", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	node := &mockNodeClient{}
	_, _, handler := newTestServer(t, node)

	body := []byte(`{"caller":"mint1owner","dropURI":"ipfs://next.json"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/collections/mint1col/drop-uri", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if node.dropURICalls != 0 {
		t.Fatalf("expected node untouched, got %d calls", node.dropURICalls)
	}
}

func TestAdminRejectsInsufficientScope(t *testing.T) {
	node := &mockNodeClient{}
	_, _, handler := newTestServer(t, node)

	body := []byte(`{"caller":"mint1owner","dropURI":"ipfs://next.json"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/collections/mint1col/drop-uri", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, middleware.ScopeDropOperate))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestAdminUpdatesDropURI(t *testing.T) {
	node := &mockNodeClient{}
	_, store, handler := newTestServer(t, node)

	body := []byte(`{"caller":"mint1owner","dropURI":"ipfs://next.json"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/collections/mint1col/drop-uri", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, middleware.ScopeDropAdmin))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
	if node.dropURICalls != 1 {
		t.Fatalf("expected one update call, got %d", node.dropURICalls)
	}
	if node.lastDropURIArgs.caller != "mint1owner" || node.lastDropURIArgs.collection != "mint1col" || node.lastDropURIArgs.dropURI != "ipfs://next.json" {
		t.Fatalf("unexpected update args: %+v", node.lastDropURIArgs)
	}

	row := store.db.QueryRow(`SELECT COUNT(*) FROM admin_audit WHERE actor = ? AND response_status = ?`, "ops@studio", http.StatusOK)
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan audit count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one audit row, got %d", count)
	}
}

func TestAdminMapsAuthorityErrors(t *testing.T) {
	node := &mockNodeClient{
		updateErr: &NodeError{Code: nodeCodeUnauthorized, Message: "only owner", HTTPStatus: http.StatusUnauthorized},
	}
	_, _, handler := newTestServer(t, node)

	body := []byte(`{"caller":"mint1stranger","dropURI":"ipfs://next.json"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/collections/mint1col/drop-uri", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, middleware.ScopeDropAdmin))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for on-chain authority failure got %d", rec.Code)
	}
}

func TestHealthzReportsNodeState(t *testing.T) {
	node := &mockNodeClient{
		chainInfoResp: &ChainInfo{ChainID: 1881, NetworkName: "mintgate-dev"},
	}
	_, _, handler := newTestServer(t, node)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if payload["status"] != "ok" || payload["chainId"] != float64(1881) {
		t.Fatalf("unexpected health payload: %v", payload)
	}

	degraded := &mockNodeClient{chainInfoErr: fmt.Errorf("dial tcp: connection refused")}
	_, _, degradedHandler := newTestServer(t, degraded)
	rec2 := httptest.NewRecorder()
	degradedHandler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when node unreachable got %d", rec2.Code)
	}
}
