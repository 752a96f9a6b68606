package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/telemetry"
	"github.com/wolfeidau/name-registry/transaction"
)

// RecordResponse is the JSON view of a name record.
type RecordResponse struct {
	Address  string `json:"address"`
	Parent   string `json:"parent,omitempty"`
	Owner    string `json:"owner"`
	Class    string `json:"class,omitempty"`
	Lamports uint64 `json:"lamports"`
	Space    int    `json:"space"`
	Data     string `json:"data"` // hex
}

// AccountResponse is the JSON view of a raw ledger account.
type AccountResponse struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner,omitempty"`
	DataLen  int    `json:"data_len"`
}

// handleSubmit verifies and applies a signed transaction.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "transactions")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, transaction.MaxTransactionSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = transaction.ErrTooLarge
		}
		s.writeError(w, r, err)
		return
	}

	tx, err := transaction.Unmarshal(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ix, err := tx.Verify()
	if err != nil {
		telemetry.RecordSignatureFailure(r.Context())
		s.writeError(w, r, err)
		return
	}

	res, err := s.processor.Process(r.Context(), ix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRecord returns the record stored at {address}.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "records")

	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.processor.Record(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := RecordResponse{
		Address:  rec.Address.String(),
		Owner:    rec.Header.Owner.String(),
		Lamports: rec.Lamports,
		Space:    len(rec.Data),
		Data:     hex.EncodeToString(rec.Data),
	}
	if p, ok := rec.Header.ParentName.Get(); ok {
		resp.Parent = p.String()
	}
	if c, ok := rec.Header.Class.Get(); ok {
		resp.Class = c.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAccount returns the balance and storage size of {address}.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "accounts")

	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	acct, err := s.ledger.Account(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := AccountResponse{
		Address:  addr.String(),
		Lamports: acct.Lamports,
		DataLen:  len(acct.Data),
	}
	if !acct.Owner.IsZero() {
		resp.Owner = acct.Owner.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshot streams a zstd-compressed copy of the ledger.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "snapshot")

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.db.zst"`)

	n, err := s.ledger.Snapshot(r.Context(), w)
	if err != nil {
		// Headers are already sent; the client sees a truncated stream.
		s.logger.Error("snapshot failed", "bytes", n, "error", err)
	}
}

func pathAddress(r *http.Request) (nameregistry.Address, error) {
	addr, err := nameregistry.ParseAddress(r.PathValue("address"))
	if err != nil {
		return addr, fmt.Errorf("%w: %w", nameregistry.ErrInvalidArgument, err)
	}
	return addr, nil
}
