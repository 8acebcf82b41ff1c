package api

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/fermi-network/fermi/pkg/types"
	"github.com/fermi-network/fermi/pkg/validator"
)

// Server exposes the catch-up read interface (spec.md §4.11/§6:
// get_latest_block_info/get_block_info/get_block) and transaction
// submission over HTTP, plus a WebSocket feed of sealed blocks. It binds
// to a validator.State/Bridge pair rather than any one controller, since
// none of those responsibilities are controller-specific.
type Server struct {
	bridge *validator.Bridge
	state  *validator.State
	store  validator.BlockStore
	router *mux.Router
	hub    *Hub     // WebSocket hub
	txLog  *os.File // Transaction log file
}

// NewServer creates a new API server over a validator's bridge, state,
// and the same critical_path_store the validator seals blocks into.
func NewServer(bridge *validator.Bridge, state *validator.State, store validator.BlockStore) *Server {
	txLogPath := os.Getenv("TX_LOG_FILE")
	if txLogPath == "" {
		txLogPath = "data/transactions.log"
	}
	os.MkdirAll("data", 0755)

	txLog, err := os.OpenFile(txLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[api] WARNING: failed to open tx log file %s: %v", txLogPath, err)
		txLog = nil
	} else {
		log.Printf("[api] transaction log: %s", txLogPath)
	}

	s := &Server{
		bridge: bridge,
		state:  state,
		store:  store,
		router: mux.NewRouter(),
		hub:    NewHub(),
		txLog:  txLog,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain status
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")

	// Catch-up read interface (spec.md §4.11/§6).
	api.HandleFunc("/catchup/latest_block_info", s.handleLatestBlockInfo).Methods("GET")
	api.HandleFunc("/catchup/block_info/{number}", s.handleBlockInfo).Methods("GET")
	api.HandleFunc("/catchup/block/{number}", s.handleBlock).Methods("GET")

	// Transaction submission
	api.HandleFunc("/transactions", s.handleSubmitTransaction).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	response := ChainStatus{
		SealedBlock: int64(s.state.BlockNumber()),
		MempoolSize: s.bridge.PendingCount(),
		Height:      int64(s.state.BlockNumber()),
	}
	respondJSON(w, response)
}

func (s *Server) handleLatestBlockInfo(w http.ResponseWriter, r *http.Request) {
	n := s.state.BlockNumber()
	info, ok, err := s.blockInfo(n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store error", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "no sealed block yet", "")
		return
	}
	respondJSON(w, info)
}

func (s *Server) handleBlockInfo(w http.ResponseWriter, r *http.Request) {
	n, err := parseBlockNumber(mux.Vars(r)["number"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block number", err.Error())
		return
	}
	info, ok, err := s.blockInfo(n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store error", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "block info not found", "")
		return
	}
	respondJSON(w, info)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	n, err := parseBlockNumber(mux.Vars(r)["number"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block number", err.Error())
		return
	}
	block, ok, err := s.block(n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store error", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "block not found", "")
		return
	}
	respondJSON(w, block)
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}

	stx, err := types.DeserializeSignedTransaction(bodyBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid signed transaction", err.Error())
		return
	}

	if err := s.bridge.Submit(stx); err != nil {
		respondError(w, http.StatusBadRequest, "transaction rejected", err.Error())
		return
	}

	digest := stx.Transaction.Digest()
	digestHex := hex.EncodeToString(digest.Bytes())

	s.logTransaction("TX_SUBMIT", map[string]interface{}{
		"digest": digestHex,
		"sender": stx.Transaction.Sender.Hex(),
	})

	respondJSON(w, SubmitTransactionResponse{Status: "accepted", Digest: digestHex})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from consensus)
// ==============================

// BroadcastSealedBlock broadcasts a newly sealed block to WebSocket
// subscribers of the "blocks" channel.
func (s *Server) BroadcastSealedBlock(block types.Block, height int64) {
	digest := block.Digest()
	update := BlockUpdate{
		Type:        "block",
		BlockNumber: int64(block.BlockNumber),
		BlockDigest: hex.EncodeToString(digest.Bytes()),
		Height:      height,
	}
	s.hub.BroadcastToChannel("blocks", update)
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) blockInfo(n types.BlockNumber) (types.BlockInfo, bool, error) {
	return s.store.BlockInfo(n)
}

func (s *Server) block(n types.BlockNumber) (types.Block, bool, error) {
	return s.store.Block(n)
}

func parseBlockNumber(raw string) (types.BlockNumber, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return types.BlockNumber(n), nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errMsg,
		Message: message,
	})
}

// logTransaction writes a transaction event to the log file
func (s *Server) logTransaction(eventType string, data map[string]interface{}) {
	if s.txLog == nil {
		return
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     eventType,
		"data":      data,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[api] failed to marshal tx log entry: %v", err)
		return
	}

	s.txLog.Write(jsonData)
	s.txLog.Write([]byte("\n"))
}
