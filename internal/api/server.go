package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nations/internal/auth"
	"nations/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const callerContextKey contextKey = "caller"

type Server struct {
	log  *slog.Logger
	auth *auth.TokenVerifier
	game *game.Service
	mux  *chi.Mux
}

func New(logger *slog.Logger, verifier *auth.TokenVerifier, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:  logger,
		auth: verifier,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/shop", s.handleShop)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Post("/countries", s.handleCreateCountry)
		r.Get("/countries", s.handleCountries)
		r.Get("/countries/{owner}", s.handleBalance)
		r.Patch("/countries/{owner}", s.handleSetField)
		r.Delete("/countries/{owner}", s.handleDeleteCountry)
		r.Post("/countries/{owner}/balance", s.handleAdjustBalance)

		r.Post("/purchases", s.handleBuy)
		r.Post("/transfers", s.handleTransfer)
	})
}

// authMiddleware accepts the gateway's service token and trusts the identity
// headers it forwards.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Verify(auth.BearerToken(r.Header.Get("Authorization"))); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		isAdmin, canCreate := auth.ParseCapabilities(r.Header.Get(auth.CapabilitiesHeader))
		caller := game.Caller{
			OwnerID:   strings.TrimSpace(r.Header.Get(auth.OwnerHeader)),
			IsAdmin:   isAdmin,
			CanCreate: canCreate,
		}
		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) game.Caller {
	caller, _ := ctx.Value(callerContextKey).(game.Caller)
	return caller
}

func (s *Server) handleShop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.game.Shop()})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = parsed
	}
	rows, err := s.game.Leaderboard(r.Context(), n)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleCreateCountry(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	country, err := s.game.CreateCountry(r.Context(), callerFromContext(r.Context()), in.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, country)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.game.Countries(r.Context(), callerFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	country, err := s.game.Balance(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, country)
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Field string `json:"field"`
		Value *int64 `json:"value"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	country, err := s.game.SetField(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "owner"), in.Field, *in.Value)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, country)
}

func (s *Server) handleDeleteCountry(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if err := s.game.DeleteCountry(r.Context(), callerFromContext(r.Context()), owner); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": owner})
}

func (s *Server) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Op     string `json:"op"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sign game.Sign
	switch strings.ToLower(strings.TrimSpace(in.Op)) {
	case "add":
		sign = game.Add
	case "remove":
		sign = game.Remove
	default:
		writeError(w, http.StatusBadRequest, `op must be "add" or "remove"`)
		return
	}
	country, err := s.game.AdjustBalance(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "owner"), in.Amount, sign)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, country)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Item string `json:"item"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	purchase, err := s.game.Buy(r.Context(), callerFromContext(r.Context()), in.Item)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.Transfer(r.Context(), callerFromContext(r.Context()), strings.TrimSpace(in.To), in.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, game.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(err.Error()), "kind": game.Kind(err)})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
