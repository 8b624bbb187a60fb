package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"PerpTrade/internal/engine"
	"PerpTrade/internal/event"
	"PerpTrade/internal/market"
	fpmath "PerpTrade/internal/math"
	"PerpTrade/internal/observability"
	"PerpTrade/internal/position"
	"PerpTrade/internal/query"
	"PerpTrade/internal/vault"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the trading API, vault operations, market admin,
// health probes, and Prometheus metrics over JSON/HTTP.
type HTTPServer struct {
	query     *query.Service
	ledger    *vault.Ledger
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	newEngine func(p *market.Params) error
	log       zerolog.Logger
}

func NewHTTPServer(
	q *query.Service,
	ledger *vault.Ledger,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	newEngine func(p *market.Params) error,
	logger zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		query:     q,
		ledger:    ledger,
		health:    health,
		metrics:   metrics,
		newEngine: newEngine,
		log:       logger,
	}
}

// Router builds the full route table.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/markets", s.handleListMarkets).Methods(http.MethodGet)
	v1.HandleFunc("/markets", s.handleCreateMarket).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/price", s.handleMarkPrice).Methods(http.MethodGet)

	v1.HandleFunc("/vault/deposit", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/vault/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	v1.HandleFunc("/vault/balance/{owner}", s.handleBalance).Methods(http.MethodGet)

	v1.HandleFunc("/markets/{market}/positions", s.handleCreatePosition).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/positions", s.handleListPositions).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/positions/{id}", s.handleGetPosition).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/positions/{id}/resize", s.handleResize).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/positions/{id}/close", s.handleClose).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/positions/{id}/liquidate", s.handleLiquidate).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/positions/{id}/history", s.handleHistory).Methods(http.MethodGet)

	v1.HandleFunc("/markets/{market}/risk/longs", s.handleTopLongs).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/risk/shorts", s.handleTopShorts).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/risk/bucket", s.handleBucket).Methods(http.MethodGet)

	v1.HandleFunc("/markets/{market}/events", s.handleRecentEvents).Methods(http.MethodGet)

	return r
}

// ============================================================================
// Wire types
// ============================================================================

type positionView struct {
	PositionID       string `json:"position_id"`
	Owner            string `json:"owner"`
	Market           string `json:"market"`
	Side             string `json:"side"`
	Status           string `json:"status"`
	Collateral       int64  `json:"collateral"`
	Leverage         int64  `json:"leverage"`
	PositionSize     int64  `json:"position_size"`
	EntryPrice       int64  `json:"entry_price"`
	LiquidationPrice int64  `json:"liquidation_price"`
	Version          int64  `json:"version"`
}

func viewOf(p position.Position) positionView {
	return positionView{
		PositionID:       p.ID.String(),
		Owner:            p.Owner.String(),
		Market:           p.Market,
		Side:             p.Side.String(),
		Status:           p.Status.String(),
		Collateral:       p.Collateral,
		Leverage:         p.Leverage,
		PositionSize:     p.PositionSize,
		EntryPrice:       p.EntryPrice,
		LiquidationPrice: p.LiquidationPrice,
		Version:          p.Version,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ============================================================================
// Handlers
// ============================================================================

func (s *HTTPServer) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": s.query.Markets()})
}

func (s *HTTPServer) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var params market.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := params.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.newEngine(&params); err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"market": params.Market})
}

func (s *HTTPServer) handleMarkPrice(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	price, has := eng.MarkPrice()
	if !has {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "no mark price published"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"price": price})
}

func (s *HTTPServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner  string `json:"owner"`
		Asset  string `json:"asset"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid owner id"})
		return
	}
	if err := s.ledger.Deposit(owner, req.Asset, req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": s.ledger.Balance(owner, req.Asset)})
}

func (s *HTTPServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner  string `json:"owner"`
		Asset  string `json:"asset"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid owner id"})
		return
	}
	if err := s.ledger.Withdraw(owner, req.Asset, req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": s.ledger.Balance(owner, req.Asset)})
}

func (s *HTTPServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(mux.Vars(r)["owner"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid owner id"})
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		asset = "USDT"
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": s.ledger.Balance(owner, asset)})
}

func (s *HTTPServer) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Owner      string `json:"owner"`
		Side       string `json:"side"`
		Leverage   int64  `json:"leverage"`
		Collateral int64  `json:"collateral"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid owner id"})
		return
	}
	side, ok := event.ParseSide(req.Side)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "side must be Long or Short"})
		return
	}

	p, err := eng.CreatePosition(owner, side, req.Leverage, req.Collateral)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(p))
}

func (s *HTTPServer) handleListPositions(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	owner, err := uuid.Parse(r.URL.Query().Get("owner"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "owner query parameter required"})
		return
	}

	positions := eng.PositionsByOwner(owner)
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": views})
}

func (s *HTTPServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}

	p, err := eng.GetPosition(id)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *HTTPServer) handleResize(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Sender          string `json:"sender"`
		CollateralDelta int64  `json:"collateral_delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	sender, err := uuid.Parse(req.Sender)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid sender id"})
		return
	}

	p, err := eng.ResizePosition(sender, id, req.CollateralDelta)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *HTTPServer) handleClose(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Sender string `json:"sender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	sender, err := uuid.Parse(req.Sender)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid sender id"})
		return
	}

	res, err := eng.ClosePosition(sender, id)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position":     viewOf(res.Position),
		"exit_price":   res.ExitPrice,
		"realized_pnl": res.RealizedPnL,
		"payout":       res.Payout,
	})
}

func (s *HTTPServer) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	id, ok := s.positionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Liquidator string `json:"liquidator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	liquidator, err := uuid.Parse(req.Liquidator)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid liquidator id"})
		return
	}

	res, err := eng.LiquidatePosition(liquidator, id)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position":   viewOf(res.Position),
		"mark_price": res.MarkPrice,
		"reward":     res.Reward,
		"forfeited":  res.Forfeited,
	})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	marketName := mux.Vars(r)["market"]
	records, err := s.query.PositionHistory(r.Context(), marketName, mux.Vars(r)["id"], queryInt(r, "limit"))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

func (s *HTTPServer) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	marketName := mux.Vars(r)["market"]
	records, err := s.query.RecentEvents(r.Context(), marketName, queryInt(r, "limit"))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

func (s *HTTPServer) handleTopLongs(w http.ResponseWriter, r *http.Request) {
	s.handleTopK(w, r, func(eng *engine.Engine, k int) ([]position.ID, error) {
		return eng.TopLongs(k)
	})
}

func (s *HTTPServer) handleTopShorts(w http.ResponseWriter, r *http.Request) {
	s.handleTopK(w, r, func(eng *engine.Engine, k int) ([]position.ID, error) {
		return eng.TopShorts(k)
	})
}

func (s *HTTPServer) handleTopK(w http.ResponseWriter, r *http.Request, top func(*engine.Engine, int) ([]position.ID, error)) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	k := queryInt(r, "k")
	if k <= 0 {
		k = 10
	}

	ids, err := top(eng, k)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"position_ids": idStrings(ids)})
}

func (s *HTTPServer) handleBucket(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	price, err := strconv.ParseInt(r.URL.Query().Get("price"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "price query parameter required"})
		return
	}

	ids := eng.BucketAtPrice(price)
	writeJSON(w, http.StatusOK, map[string]interface{}{"position_ids": idStrings(ids)})
}

// ============================================================================
// Helpers
// ============================================================================

func (s *HTTPServer) engineFor(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	eng, err := s.query.Engine(mux.Vars(r)["market"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return nil, false
	}
	return eng, true
}

func (s *HTTPServer) positionID(w http.ResponseWriter, r *http.Request) (position.ID, bool) {
	id, err := position.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid position id"})
		return position.ID{}, false
	}
	return id, true
}

// writeOpError maps engine errors onto HTTP status codes.
func (s *HTTPServer) writeOpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotOwner), errors.Is(err, engine.ErrSelfLiquidation):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrNotLiquidatable):
		status = http.StatusConflict
	case errors.Is(err, fpmath.ErrInvalidLeverage), errors.Is(err, fpmath.ErrInvalidCollateral):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrSettlementFailed):
		status = http.StatusBadGateway
	case errors.Is(err, engine.ErrNoMarkPrice):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

func idStrings(ids []position.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
