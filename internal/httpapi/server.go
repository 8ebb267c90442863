// Package httpapi exposes the solver over HTTP: orchestrator and owner
// entry points, read-only views, receipts and a live event stream.
package httpapi

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/events"
	"github.com/R3E-Network/solver_layer/internal/logging"
	"github.com/R3E-Network/solver_layer/internal/metrics"
	"github.com/R3E-Network/solver_layer/internal/receipts"
	"github.com/R3E-Network/solver_layer/internal/solver"
)

// Options wires the server's dependencies.
type Options struct {
	Solver   *solver.Client
	Receipts receipts.Store
	Events   *events.RingBuffer
	Auth     *Authenticator
	Limiter  *RateLimiter
	Logger   *logging.Logger
}

// Server routes API requests to the solver client.
type Server struct {
	router   *mux.Router
	solver   *solver.Client
	receipts receipts.Store
	feed     *events.RingBuffer
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// PublicPaths are served without authentication.
var PublicPaths = []string{"/health", "/metrics"}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		solver:   opts.Solver,
		receipts: opts.Receipts,
		feed:     opts.Events,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// callers authenticate with a bearer token, not cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.router.Use(s.tracing, metrics.InstrumentHandler)
	if opts.Auth != nil {
		s.router.Use(opts.Auth.Handler)
	}
	if opts.Limiter != nil {
		s.router.Use(opts.Limiter.Handler)
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/solver", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/solver/trigger", s.handleTrigger).Methods(http.MethodPost)
	v1.HandleFunc("/solver/deposit", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/solver/delegate-target", s.handleSetDelegateTarget).Methods(http.MethodPut)
	v1.HandleFunc("/solver/withdrawals/native", s.handleWithdrawNative).Methods(http.MethodPost)
	v1.HandleFunc("/solver/withdrawals/token", s.handleWithdrawToken).Methods(http.MethodPost)
	v1.HandleFunc("/solver/ownership", s.handleTransferOwnership).Methods(http.MethodPut)
	v1.HandleFunc("/solver/ownership", s.handleRenounceOwnership).Methods(http.MethodDelete)
	v1.HandleFunc("/balances/{account}", s.handleBalance).Methods(http.MethodGet)
	v1.HandleFunc("/receipts", s.handleListReceipts).Methods(http.MethodGet)
	v1.HandleFunc("/receipts/{id}", s.handleGetReceipt).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/events/stream", s.handleStream).Methods(http.MethodGet)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = logging.NewTraceID()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))
		s.logger.LogRequest(ctx, r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

// TxResponse describes a halted transaction.
type TxResponse struct {
	TxID          string                 `json:"tx_id"`
	VMState       string                 `json:"vm_state"`
	Result        string                 `json:"result,omitempty"`
	Notifications receipts.Notifications `json:"notifications"`
}

type triggerRequest struct {
	From    string `json:"from"`
	Payload string `json:"payload"`
	Value   string `json:"value"`
}

type depositRequest struct {
	Value string `json:"value"`
}

type targetRequest struct {
	Target string `json:"target"`
}

type withdrawRequest struct {
	Token     string `json:"token,omitempty"`
	Recipient string `json:"recipient"`
}

type ownershipRequest struct {
	NewOwner string `json:"new_owner"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.solver.Status())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	from, err := chain.ParseAddress(req.From)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(req.Payload, "0x"))
	if err != nil {
		writeError(w, r, errors.InvalidArgument("payload", "expected hex string"))
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log, err := s.solver.Trigger(r.Context(), caller, from, payload, value)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log, err := s.solver.Deposit(r.Context(), caller, value)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleSetDelegateTarget(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target := util.Uint160{}
	if req.Target != "" {
		var err error
		if target, err = chain.ParseAddress(req.Target); err != nil {
			writeError(w, r, err)
			return
		}
	}
	log, err := s.solver.SetDelegateTarget(r.Context(), caller, target)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleWithdrawNative(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	recipient, err := chain.ParseAddress(req.Recipient)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log, err := s.solver.WithdrawNative(r.Context(), caller, recipient)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleWithdrawToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := chain.ParseAddress(req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recipient, err := chain.ParseAddress(req.Recipient)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log, err := s.solver.WithdrawToken(r.Context(), caller, token, recipient)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req ownershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	newOwner, err := chain.ParseAddress(req.NewOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log, err := s.solver.TransferOwnership(r.Context(), caller, newOwner)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleRenounceOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	log, err := s.solver.RenounceOwnership(r.Context(), caller)
	s.respondTx(w, r, log, err)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := chain.ParseAddress(mux.Vars(r)["account"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	asset := chain.NativeAsset
	assetName := "native"
	if q := r.URL.Query().Get("asset"); q != "" && q != "native" {
		if asset, err = chain.ParseAddress(q); err != nil {
			writeError(w, r, err)
			return
		}
		assetName = chain.FormatAddress(asset)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": chain.FormatAddress(account),
		"asset":   assetName,
		"amount":  s.solver.Host().BalanceOf(asset, account).String(),
	})
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.receipts.List(r.Context(), receipts.Filter{
		Sender:   q.Get("sender"),
		Contract: q.Get("contract"),
		Method:   q.Get("method"),
		VMState:  q.Get("vm_state"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": list})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.receipts.Get(r.Context(), id)
	if errors.CodeOf(err) == errors.ErrCodeNotFound {
		rec, err = s.receipts.GetByTx(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 100
	}
	var list []events.Event
	switch {
	case q.Get("type") != "":
		list = s.feed.RecentByType(events.EventType(q.Get("type")), limit)
	case q.Get("contract") != "":
		list = s.feed.RecentByContract(q.Get("contract"), limit)
	default:
		list = s.feed.Recent(limit)
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (util.Uint160, bool) {
	caller, err := Caller(r.Context())
	if err != nil {
		writeError(w, r, err)
		return util.Uint160{}, false
	}
	return caller, true
}

func (s *Server) respondTx(w http.ResponseWriter, r *http.Request, log *chain.ApplicationLog, err error) {
	if err != nil {
		if log != nil {
			if se := errors.GetServiceError(err); se != nil {
				err = se.WithDetails("tx_id", log.TxID)
			}
		}
		writeError(w, r, err)
		return
	}
	rec := receipts.FromApplicationLog(log)
	writeJSON(w, http.StatusOK, TxResponse{
		TxID:          rec.TxID,
		VMState:       rec.VMState,
		Result:        rec.Result,
		Notifications: rec.Notifications,
	})
}

func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return chain.ArgAmount([]any{s}, 0, field)
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.InvalidArgument("limit", "expected non-negative integer")
	}
	return n, nil
}
