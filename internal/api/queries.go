package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	validator "github.com/go-playground/validator/v10"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/projection"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type addressResponse struct {
	User      string `json:"user"`
	Address   string `json:"address"`
	Bump      uint8  `json:"bump"`
	Seed      string `json:"seed"`
	ProgramID string `json:"program_id"`
}

type leaderboardQuery struct {
	Limit int `validate:"gte=0,lte=100"`
}

func pathKey(r *http.Request, name string) (solana.PublicKey, error) {
	raw := r.PathValue(name)
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, apperrors.NewInvalidArgumentError("invalid %s %q: %v", name, raw, err)
	}
	return key, nil
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	user, err := pathKey(r, "user")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deriver := s.ledger.Deriver()
	derived, err := deriver.Derive(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, addressResponse{
		User:      user.String(),
		Address:   derived.Address.String(),
		Bump:      derived.Bump,
		Seed:      string(deriver.Seed()),
		ProgramID: deriver.ProgramID().String(),
	})
}

func (s *Server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	user, err := pathKey(r, "user")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.ledger.FetchByUser(r.Context(), user)
	if errors.Is(err, apperrors.ErrStorage) && s.projected != nil {
		projected, projErr := s.projected.FindByOwner(r.Context(), user)
		if projErr == nil {
			s.log.WarnContext(r.Context(), "ledger storage unavailable, serving projected progress",
				slog.String("user", user.String()), slog.Any("error", err))
			w.Header().Set(headerProgressSource, "projection")
			writeJSON(w, http.StatusOK, projected)
			return
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(headerProgressSource, "ledger")
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address, err := pathKey(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.ledger.Fetch(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	var q leaderboardQuery
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, apperrors.NewInvalidArgumentError("invalid limit %q", raw))
			return
		}
		q.Limit = limit
	}
	if err := validate.Struct(q); err != nil {
		s.writeError(w, r, apperrors.NewInvalidArgumentError("limit must be between 0 and %d", projection.MaxLeaderboardLimit))
		return
	}

	entries, err := s.leaderboard.Leaderboard(r.Context(), q.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
