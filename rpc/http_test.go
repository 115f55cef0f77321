package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mintgate/core"
	"mintgate/core/events"
	"mintgate/crypto"
	"mintgate/native/drop"
	"mintgate/native/droptoken"
	"mintgate/storage"

	"nhooyr.io/websocket"
)

const (
	testAuthToken = "rpc-test-token"
	testNow       = int64(1_700_000_000)
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type rpcFixture struct {
	t      *testing.T
	node   *core.Node
	server *Server
	http   *httptest.Server

	owner      [20]byte
	minter     [20]byte
	feeWallet  [20]byte
	payout     [20]byte
	collection [20]byte
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		ChainID:     1881,
		NetworkName: "mintgate-test",
		Backlog:     64,
		NowFunc:     func() int64 { return testNow },
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fx := &rpcFixture{
		t:         t,
		node:      node,
		owner:     testAddr(0xA1),
		minter:    testAddr(0xB2),
		feeWallet: testAddr(0xC3),
		payout:    testAddr(0xD4),
	}
	if err := node.InitGenesis(map[[20]byte]*big.Int{fx.minter: big.NewInt(1_000_000)}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	collection, err := node.CreateCollection(fx.owner, droptoken.Config{Name: "rpc-test", MaxSupply: 100})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	fx.collection = collection

	fx.server = NewServer(node, ServerConfig{AuthToken: testAuthToken, MintsPerMinute: 60_000, MintBurst: 1_000})
	fx.http = httptest.NewServer(fx.server.Handler())
	t.Cleanup(fx.http.Close)
	return fx
}

func (fx *rpcFixture) configurePublicDrop(price int64) {
	fx.t.Helper()
	if err := fx.node.TokenUpdateCreatorPayoutAddress(fx.owner, fx.collection, fx.payout); err != nil {
		fx.t.Fatalf("set payout: %v", err)
	}
	if err := fx.node.TokenUpdateAllowedFeeRecipient(fx.owner, fx.collection, fx.feeWallet, true); err != nil {
		fx.t.Fatalf("allow fee recipient: %v", err)
	}
	publicDrop := &drop.PublicDrop{
		Price:                    big.NewInt(price),
		StartTime:                uint64(testNow - 100),
		EndTime:                  uint64(testNow + 100),
		MaxTotalMintableByWallet: 10,
		FeeBps:                   500,
		RestrictFeeRecipients:    true,
	}
	if err := fx.node.TokenUpdatePublicDrop(fx.owner, fx.collection, publicDrop); err != nil {
		fx.t.Fatalf("set public drop: %v", err)
	}
}

func (fx *rpcFixture) post(t *testing.T, body string, authed bool) *RPCResponse {
	t.Helper()
	httpReq, err := http.NewRequest(http.MethodPost, fx.http.URL, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if authed {
		httpReq.Header.Set("Authorization", "Bearer "+testAuthToken)
	}
	resp, err := fx.http.Client().Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func (fx *rpcFixture) call(t *testing.T, method string, params interface{}, authed bool) *RPCResponse {
	t.Helper()
	request := RPCRequest{JSONRPC: jsonRPCVersion, Method: method, ID: 1}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		request.Params = []json.RawMessage{encoded}
	}
	payload, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return fx.post(t, string(payload), authed)
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	encoded, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func expectRPCError(t *testing.T, resp *RPCResponse, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected rpc error with code %d, got result %v", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, resp.Error.Code, resp.Error.Message)
	}
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	fx := newRPCFixture(t)

	expectRPCError(t, fx.post(t, "", false), codeInvalidRequest)
	expectRPCError(t, fx.post(t, "{not json", false), codeParseError)
	expectRPCError(t, fx.post(t, `{"jsonrpc":"1.0","method":"mint_getChainInfo","id":1}`, false), codeInvalidRequest)
	expectRPCError(t, fx.post(t, `{"jsonrpc":"2.0","id":1}`, false), codeInvalidRequest)
	expectRPCError(t, fx.post(t, `{"jsonrpc":"2.0","method":"mint_unknown","id":1}`, false), codeMethodNotFound)
}

func TestWriteMethodsRequireAuth(t *testing.T) {
	fx := newRPCFixture(t)
	fx.configurePublicDrop(1000)

	params := mintPublicParams{
		Caller:       formatAddress(fx.minter),
		Collection:   formatAddress(fx.collection),
		FeeRecipient: formatAddress(fx.feeWallet),
		Quantity:     1,
		Payment:      "1000",
	}
	expectRPCError(t, fx.call(t, "drop_mintPublic", params, false), codeUnauthorized)

	// A wrong bearer token is also rejected.
	payload, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: "token_updateDropURI", ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, fx.http.URL, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer wrong-token")
	resp, err := fx.http.Client().Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	expectRPCError(t, decoded, codeUnauthorized)

	// Reads stay open.
	info := fx.call(t, "mint_getChainInfo", nil, false)
	if info.Error != nil {
		t.Fatalf("chain info should not require auth: %+v", info.Error)
	}
}

func TestMintPublicOverRPC(t *testing.T) {
	fx := newRPCFixture(t)
	fx.configurePublicDrop(1000)

	params := mintPublicParams{
		Caller:       formatAddress(fx.minter),
		Collection:   formatAddress(fx.collection),
		FeeRecipient: formatAddress(fx.feeWallet),
		Quantity:     2,
		Payment:      "2000",
	}
	var receipt mintReceipt
	decodeResult(t, fx.call(t, "drop_mintPublic", params, true), &receipt)
	if receipt.Stage != "public" {
		t.Fatalf("expected public stage, got %q", receipt.Stage)
	}
	if receipt.TotalSupply != 2 {
		t.Fatalf("expected total supply 2, got %d", receipt.TotalSupply)
	}
	if receipt.Minter != formatAddress(fx.minter) {
		t.Fatalf("unexpected minter %q", receipt.Minter)
	}

	var payoutBalance balanceResult
	decodeResult(t, fx.call(t, "mint_getBalance", map[string]string{"address": formatAddress(fx.payout)}, false), &payoutBalance)
	if payoutBalance.Balance != "1900" {
		t.Fatalf("expected creator payout 1900, got %s", payoutBalance.Balance)
	}
	var feeBalance balanceResult
	decodeResult(t, fx.call(t, "mint_getBalance", map[string]string{"address": formatAddress(fx.feeWallet)}, false), &feeBalance)
	if feeBalance.Balance != "100" {
		t.Fatalf("expected fee 100, got %s", feeBalance.Balance)
	}

	var minted walletMintedResult
	decodeResult(t, fx.call(t, "token_getWalletMinted", map[string]string{
		"collection": formatAddress(fx.collection),
		"wallet":     formatAddress(fx.minter),
	}, false), &minted)
	if minted.Minted != 2 {
		t.Fatalf("expected wallet minted 2, got %d", minted.Minted)
	}
}

func TestMintPublicRejectsWrongPayment(t *testing.T) {
	fx := newRPCFixture(t)
	fx.configurePublicDrop(1000)

	params := mintPublicParams{
		Caller:       formatAddress(fx.minter),
		Collection:   formatAddress(fx.collection),
		FeeRecipient: formatAddress(fx.feeWallet),
		Quantity:     1,
		Payment:      "999",
	}
	resp := fx.call(t, "drop_mintPublic", params, true)
	expectRPCError(t, resp, codeInvalidParams)
	if !strings.Contains(resp.Error.Message, "incorrect payment") {
		t.Fatalf("expected incorrect payment message, got %q", resp.Error.Message)
	}
}

func TestMintSignedOverRPC(t *testing.T) {
	fx := newRPCFixture(t)
	fx.configurePublicDrop(1000)

	signerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate signer key: %v", err)
	}
	signerBech := signerKey.PubKey().Address().String()

	register := map[string]interface{}{
		"caller":     formatAddress(fx.owner),
		"collection": formatAddress(fx.collection),
		"signer":     signerBech,
		"params": signerParamsPayload{
			MinMintPrice:                "1",
			MaxMaxTotalMintableByWallet: 10,
			MinStartTime:                0,
			MaxEndTime:                  uint64(testNow + 1_000),
			MaxMaxTokenSupplyForStage:   100,
			MinFeeBps:                   0,
			MaxFeeBps:                   1_000,
		},
	}
	if resp := fx.call(t, "token_updateSignedMintValidationParams", register, true); resp.Error != nil {
		t.Fatalf("register signer: %+v", resp.Error)
	}

	stage := &mintParamsPayload{
		Price:                    "500",
		MaxTotalMintableByWallet: 5,
		StartTime:                uint64(testNow - 50),
		EndTime:                  uint64(testNow + 50),
		DropStageIndex:           1,
		MaxTokenSupplyForStage:   50,
		FeeBps:                   250,
		RestrictFeeRecipients:    true,
	}
	digestReq := mintDigestParams{
		Collection:   formatAddress(fx.collection),
		Minter:       formatAddress(fx.minter),
		FeeRecipient: formatAddress(fx.feeWallet),
		MintParams:   stage,
		Salt:         "7",
	}
	var preview mintDigestResult
	decodeResult(t, fx.call(t, "drop_getMintDigest", digestReq, false), &preview)

	digest, err := parseHash32("digest", preview.Digest)
	if err != nil {
		t.Fatalf("parse digest: %v", err)
	}
	signature, err := signerKey.SignHash(digest)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}

	mint := mintSignedParams{
		Caller:       formatAddress(fx.minter),
		Collection:   formatAddress(fx.collection),
		FeeRecipient: formatAddress(fx.feeWallet),
		Quantity:     1,
		MintParams:   stage,
		Salt:         "7",
		Signature:    "0x" + hex.EncodeToString(signature),
		Payment:      "500",
	}
	var receipt mintReceipt
	decodeResult(t, fx.call(t, "drop_mintSigned", mint, true), &receipt)
	if receipt.Stage != "signed" {
		t.Fatalf("expected signed stage, got %q", receipt.Stage)
	}
	if receipt.Digest != preview.Digest {
		t.Fatalf("receipt digest %s does not match preview %s", receipt.Digest, preview.Digest)
	}

	var used digestUsedResult
	decodeResult(t, fx.call(t, "drop_isDigestUsed", digestUsedParams{Digest: preview.Digest}, false), &used)
	if !used.Used {
		t.Fatalf("digest should be marked used after mint")
	}

	// The same authorization cannot be replayed.
	replay := fx.call(t, "drop_mintSigned", mint, true)
	expectRPCError(t, replay, codeDuplicateMint)
}

func TestReadMethodsRoundTrip(t *testing.T) {
	fx := newRPCFixture(t)
	fx.configurePublicDrop(1000)

	if err := fx.node.TokenUpdateDropURI(fx.owner, fx.collection, "ipfs://drop-metadata"); err != nil {
		t.Fatalf("set drop uri: %v", err)
	}
	var root [32]byte
	root[0] = 0xAB
	if err := fx.node.TokenUpdateAllowList(fx.owner, fx.collection, &drop.AllowListData{
		MerkleRoot:   root,
		AllowListURI: "ipfs://allow-list",
	}); err != nil {
		t.Fatalf("set allow list: %v", err)
	}
	gatedToken := testAddr(0xE5)
	if err := fx.node.TokenUpdateTokenGatedDrop(fx.owner, fx.collection, gatedToken, &drop.TokenGatedDropStage{
		Price:                    big.NewInt(250),
		MaxTotalMintableByWallet: 3,
		StartTime:                uint64(testNow - 10),
		EndTime:                  uint64(testNow + 10),
		DropStageIndex:           2,
		MaxTokenSupplyForStage:   30,
		FeeBps:                   100,
		RestrictFeeRecipients:    true,
	}); err != nil {
		t.Fatalf("set token gated drop: %v", err)
	}

	collection := map[string]string{"collection": formatAddress(fx.collection)}

	var uri dropURIResult
	decodeResult(t, fx.call(t, "drop_getDropURI", collection, false), &uri)
	if uri.DropURI != "ipfs://drop-metadata" {
		t.Fatalf("unexpected drop uri %q", uri.DropURI)
	}

	var publicDrop publicDropResult
	decodeResult(t, fx.call(t, "drop_getPublicDrop", collection, false), &publicDrop)
	if !publicDrop.Configured || publicDrop.PublicDrop == nil {
		t.Fatalf("public drop should be configured")
	}
	if publicDrop.PublicDrop.Price != "1000" || publicDrop.PublicDrop.FeeBps != 500 {
		t.Fatalf("unexpected public drop payload %+v", publicDrop.PublicDrop)
	}

	var allowList allowListResult
	decodeResult(t, fx.call(t, "drop_getAllowList", collection, false), &allowList)
	if !allowList.Configured || allowList.AllowList == nil {
		t.Fatalf("allow list should be configured")
	}
	if !strings.HasPrefix(allowList.AllowList.MerkleRoot, "0xab") {
		t.Fatalf("unexpected merkle root %q", allowList.AllowList.MerkleRoot)
	}

	var gated tokenGatedDropResult
	decodeResult(t, fx.call(t, "drop_getTokenGatedDrop", map[string]string{
		"collection":   formatAddress(fx.collection),
		"allowedToken": formatAddress(gatedToken),
	}, false), &gated)
	if !gated.Configured || gated.Stage == nil || gated.Stage.Price != "250" {
		t.Fatalf("unexpected gated stage %+v", gated.Stage)
	}

	var gatedTokens addressListResult
	decodeResult(t, fx.call(t, "drop_getTokenGatedTokens", collection, false), &gatedTokens)
	if len(gatedTokens.Addresses) != 1 || gatedTokens.Addresses[0] != formatAddress(gatedToken) {
		t.Fatalf("unexpected gated tokens %v", gatedTokens.Addresses)
	}

	var recipients addressListResult
	decodeResult(t, fx.call(t, "drop_getAllowedFeeRecipients", collection, false), &recipients)
	if len(recipients.Addresses) != 1 || recipients.Addresses[0] != formatAddress(fx.feeWallet) {
		t.Fatalf("unexpected fee recipients %v", recipients.Addresses)
	}

	var membership membershipResult
	decodeResult(t, fx.call(t, "drop_isFeeRecipientAllowed", map[string]string{
		"collection": formatAddress(fx.collection),
		"address":    formatAddress(fx.feeWallet),
	}, false), &membership)
	if !membership.Allowed {
		t.Fatalf("fee recipient should be allowed")
	}

	var info collectionInfoResult
	decodeResult(t, fx.call(t, "token_getInfo", collection, false), &info)
	if info.Name != "rpc-test" || info.Owner != formatAddress(fx.owner) || info.MaxSupply != 100 {
		t.Fatalf("unexpected collection info %+v", info)
	}

	var chain chainInfoResult
	decodeResult(t, fx.call(t, "mint_getChainInfo", nil, false), &chain)
	if chain.ChainID != 1881 || chain.NetworkName != "mintgate-test" {
		t.Fatalf("unexpected chain info %+v", chain)
	}
}

func TestUnknownCollectionMapsToNotFound(t *testing.T) {
	fx := newRPCFixture(t)

	resp := fx.call(t, "token_getInfo", map[string]string{"collection": formatAddress(testAddr(0x99))}, false)
	expectRPCError(t, resp, codeServerError)
	if !strings.Contains(resp.Error.Message, "unknown collection") {
		t.Fatalf("expected unknown collection message, got %q", resp.Error.Message)
	}
}

func TestAllowSourceRateLimits(t *testing.T) {
	server := NewServer(nil, ServerConfig{MintsPerMinute: 60, MintBurst: 1})
	now := time.Now()

	if !server.allowSource("10.0.0.1", now) {
		t.Fatalf("first request should pass")
	}
	if server.allowSource("10.0.0.1", now) {
		t.Fatalf("second request in the same instant should be limited")
	}
	if !server.allowSource("10.0.0.2", now) {
		t.Fatalf("distinct source should have its own budget")
	}
	if !server.allowSource("10.0.0.1", now.Add(time.Second)) {
		t.Fatalf("budget should refill after a second")
	}
}

func TestClientSourcePrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 70.41.3.18")
	if source := clientSource(req); source != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", source)
	}

	req.Header.Del("X-Forwarded-For")
	if source := clientSource(req); source != "10.0.0.5" {
		t.Fatalf("expected remote host, got %q", source)
	}
}

func TestEventsStreamDeliversMints(t *testing.T) {
	fx := newRPCFixture(t)
	fx.configurePublicDrop(1000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(fx.http.URL, "http") + "/ws/events?since=0"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial events stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := fx.node.MintPublic(fx.minter, &drop.PublicMintRequest{
		Collection:   fx.collection,
		FeeRecipient: fx.feeWallet,
		Quantity:     1,
		Payment:      big.NewInt(1000),
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// The stream replays configuration events first; scan until the mint
	// record arrives.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read events stream: %v", err)
		}
		var envelope core.EventEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if envelope.Event == nil {
			t.Fatalf("envelope missing event payload")
		}
		if envelope.Event.Type != events.TypeDropMinted {
			continue
		}
		if got := envelope.Event.Attributes["quantity"]; got != "1" {
			t.Fatalf("expected quantity attribute 1, got %q", got)
		}
		if envelope.Sequence == 0 {
			t.Fatalf("sequence numbers start at 1")
		}
		return
	}
}
