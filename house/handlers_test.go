package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/core"
	"github.com/cloudx-io/auctionhouse/feed"
)

func newTestRouter(t *testing.T, h *testHouse) http.Handler {
	t.Helper()
	return NewHandler(h.house, nil).SetupRoutes(8)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_Health(t *testing.T) {
	router := newTestRouter(t, newTestHouse(t))

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	check.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_ItemLifecycle(t *testing.T) {
	h := newTestHouse(t)
	router := newTestRouter(t, h)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/items", liveItemRequest())
	assert.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[auctionapi.ItemResponse](t, rec)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/items/"+created.ID, nil)
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, core.StateUpcoming, decodeJSON[auctionapi.ItemResponse](t, rec).View.State)

	edit := liveItemRequest()
	edit.Name = "Racing bicycle"
	rec = doJSON(t, router, http.MethodPut, "/api/v1/items/"+created.ID, edit)
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, "Racing bicycle", decodeJSON[auctionapi.ItemResponse](t, rec).Name)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/items/"+created.ID, nil)
	check.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/items/"+created.ID+"?auctioneer_id=auctioneer_2", nil)
	check.Equal(t, http.StatusForbidden, rec.Code)

	h.clock.Set(testStart)
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/items/"+created.ID+"?auctioneer_id=auctioneer_1", nil)
	check.Equal(t, http.StatusConflict, rec.Code)

	h.clock.Set(testStart.Add(-time.Hour))
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/items/"+created.ID+"?auctioneer_id=auctioneer_1", nil)
	check.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/items/"+created.ID, nil)
	check.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateItemValidation(t *testing.T) {
	router := newTestRouter(t, newTestHouse(t))

	invalid := liveItemRequest()
	invalid.EndDate = invalid.StartDate
	rec := doJSON(t, router, http.MethodPost, "/api/v1/items", invalid)
	check.Equal(t, http.StatusBadRequest, rec.Code)
	check.True(t, strings.Contains(decodeJSON[map[string]string](t, rec)["error"], "end date"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"name":`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	check.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"surprise":true}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	check.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_PlaceBidStatusCodes(t *testing.T) {
	h := newTestHouse(t)
	router := newTestRouter(t, h)
	itemID := createItem(t, h, liveItemRequest())
	h.clock.Set(testStart)

	path := "/api/v1/items/" + itemID + "/bids"

	rec := doJSON(t, router, http.MethodPost, path, auctionapi.PlaceBidRequest{BidderID: "alice", Amount: amountPtr("110")})
	check.Equal(t, http.StatusCreated, rec.Code)
	check.True(t, decodeJSON[auctionapi.PlaceBidResponse](t, rec).Accepted)

	rec = doJSON(t, router, http.MethodPost, path, auctionapi.PlaceBidRequest{BidderID: "bob", Amount: amountPtr("115")})
	check.Equal(t, http.StatusOK, rec.Code)
	rejected := decodeJSON[auctionapi.PlaceBidResponse](t, rec)
	check.False(t, rejected.Accepted)
	check.Equal(t, core.ReasonBelowMinimumIncrement, rejected.Reason)
	check.Equal(t, "bid must be at least 120.00", rejected.Message)

	rec = doJSON(t, router, http.MethodPost, path, auctionapi.PlaceBidRequest{Amount: amountPtr("200")})
	check.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/items/missing/bids", auctionapi.PlaceBidRequest{BidderID: "bob", Amount: amountPtr("200")})
	check.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ResultsCertificateAnnounce(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newTestHouse(t, WithNotifier(notifier))
	router := newTestRouter(t, h)
	itemID := createItem(t, h, sealedItemRequest())
	placeSealedBids(t, h, itemID)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/items/"+itemID+"/results", nil)
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, core.ResultsPending, decodeJSON[auctionapi.ResultsResponse](t, rec).Status)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/items/"+itemID+"/certificate", nil)
	check.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/items/"+itemID+"/announce", nil)
	check.Equal(t, http.StatusConflict, rec.Code)

	h.clock.Set(testEnd)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/items/"+itemID+"/results", nil)
	check.Equal(t, http.StatusOK, rec.Code)
	results := decodeJSON[auctionapi.ResultsResponse](t, rec)
	check.Equal(t, core.ResultsFinal, results.Status)
	check.Equal(t, "bob", results.Winner.BidderID)
	check.NotEqual(t, "", results.Digest)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/items/"+itemID+"/certificate", nil)
	check.Equal(t, http.StatusOK, rec.Code)
	cert := decodeJSON[auctionapi.CertificateResponse](t, rec)
	check.Equal(t, results.Digest, cert.Certificate.ResultsDigest)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/items/"+itemID+"/announce", nil)
	check.Equal(t, http.StatusOK, rec.Code)
	check.True(t, decodeJSON[auctionapi.AnnounceResponse](t, rec).Announced)
}

func TestHandler_Keys(t *testing.T) {
	h := newTestHouse(t, WithAttester(CreateMockEnclave(t)))
	router := newTestRouter(t, h)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/keys", nil)
	check.Equal(t, http.StatusOK, rec.Code)
	keys := decodeJSON[auctionapi.KeysResponse](t, rec)
	check.True(t, strings.HasPrefix(keys.EnvelopePublicKey, "-----BEGIN PUBLIC KEY-----"))
	check.Equal(t, "ES256", keys.CertificateAlgorithm)
	check.NotEqual(t, auctionapi.AttestationCOSEBase64(""), keys.KeyAttestationCOSEBase64)
}

func TestWorkerSlotMiddleware_RejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	blocking := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	handler := workerSlotMiddleware(1)(blocking)

	var wg sync.WaitGroup
	wg.Add(1)
	first := httptest.NewRecorder()
	go func() {
		defer wg.Done()
		handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil))
	}()
	<-entered

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil))
	check.Equal(t, http.StatusServiceUnavailable, second.Code)

	close(release)
	wg.Wait()
	check.Equal(t, http.StatusOK, first.Code)

	// The slot is free again
	third := httptest.NewRecorder()
	go func() { <-entered }()
	handler.ServeHTTP(third, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil))
	check.Equal(t, http.StatusOK, third.Code)
}

func TestHandler_LiveFeedReceivesAcceptedBids(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := feed.NewManager()
	go manager.Run(ctx)

	h := newTestHouse(t, WithFeed(manager))
	itemID := createItem(t, h, liveItemRequest())
	h.clock.Set(testStart)

	server := httptest.NewServer(NewHandler(h.house, feed.NewHandler(manager)).SetupRoutes(8))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/items/"+itemID, nil)
	assert.NoError(t, err)
	defer conn.Close()

	var welcome feed.ConnectedMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	assert.NoError(t, conn.ReadJSON(&welcome))
	check.Equal(t, "connected", welcome.Type)

	resp, err := http.Post(server.URL+"/api/v1/items/"+itemID+"/bids", "application/json",
		strings.NewReader(`{"bidder_id":"alice","amount":"110"}`))
	assert.NoError(t, err)
	resp.Body.Close()
	check.Equal(t, http.StatusCreated, resp.StatusCode)

	var event auctionapi.BidEvent
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	assert.NoError(t, conn.ReadJSON(&event))
	check.Equal(t, "alice", event.BidderID)
	check.Equal(t, itemID, event.ItemID)
	check.Equal(t, "120", event.MinimumNext.String())
}
