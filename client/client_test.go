package client_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/client"
	"github.com/wolfeidau/name-registry/instruction"
	"github.com/wolfeidau/name-registry/ledger"
	"github.com/wolfeidau/name-registry/registry"
	"github.com/wolfeidau/name-registry/server"
	"github.com/wolfeidau/name-registry/transaction"
)

var programID = nameregistry.Address{0xee, 0x02}

func newDaemon(t *testing.T, adminToken string) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := ledger.New(ledger.WithNoSync(true), ledger.WithLogger(logger))
	require.NoError(t, l.Open(filepath.Join(t.TempDir(), "ledger.db")))
	t.Cleanup(func() { _ = l.Close() })

	srv, err := server.New(server.Config{AdminToken: adminToken, Logger: logger},
		l, registry.NewProcessor(l, programID, registry.WithLogger(logger)))
	require.NoError(t, err)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return hs, l
}

func newKey(t *testing.T, seed byte) (ed25519.PrivateKey, nameregistry.Address) {
	t.Helper()
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	k := ed25519.NewKeyFromSeed(s)
	a, err := nameregistry.AddressFromBytes(k.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return k, a
}

func signed(t *testing.T, ix *instruction.Instruction, keys ...ed25519.PrivateKey) *transaction.Transaction {
	t.Helper()
	tx := transaction.New(ix)
	require.NoError(t, tx.Sign(keys...))
	return tx
}

func TestClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	hs, l := newDaemon(t, "")
	c := client.New(client.WithBaseURL(hs.URL + "/"))

	funderKey, funder := newKey(t, 1)
	ownerKey, owner := newKey(t, 2)
	_, newOwner := newKey(t, 3)
	require.NoError(t, l.Fund(ctx, funder, 5_000))

	hashed := nameregistry.HashName("bob")
	rec, _, err := nameregistry.NewDeriver(programID).Derive(hashed, nameregistry.None(), nameregistry.None())
	require.NoError(t, err)

	ix, err := instruction.NewCreate(programID,
		instruction.Create{HashedName: hashed, Lamports: 1_000, Space: 4},
		instruction.CreateAccounts{Funder: funder, Record: rec, Owner: owner})
	require.NoError(t, err)

	res, err := c.Submit(ctx, signed(t, ix, funderKey))
	require.NoError(t, err)
	assert.Equal(t, instruction.TagCreate, res.Operation)
	assert.Equal(t, rec, res.Record)

	got, err := c.Record(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, owner.String(), got.Owner)
	assert.EqualValues(t, 1_000, got.Lamports)
	assert.Equal(t, "00000000", got.Data)

	ix, err = instruction.NewUpdate(programID,
		instruction.Update{Offset: 1, Data: []byte{0xab}},
		instruction.UpdateByOwner{Record: rec, Owner: owner})
	require.NoError(t, err)
	res, err = c.Submit(ctx, signed(t, ix, ownerKey))
	require.NoError(t, err)
	assert.Equal(t, "owner", res.Authority)

	ix, err = instruction.NewTransfer(programID,
		instruction.Transfer{NewOwner: newOwner},
		instruction.TransferByOwner{Record: rec, Owner: owner})
	require.NoError(t, err)
	_, err = c.Submit(ctx, signed(t, ix, ownerKey))
	require.NoError(t, err)

	got, err = c.Record(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, newOwner.String(), got.Owner)
	assert.Equal(t, "00ab0000", got.Data)

	// The previous owner can no longer delete.
	ix, err = instruction.NewDelete(programID,
		instruction.DeleteAccounts{Record: rec, Owner: owner, RefundTarget: funder})
	require.NoError(t, err)
	_, err = c.Submit(ctx, signed(t, ix, ownerKey))
	require.ErrorIs(t, err, nameregistry.ErrUnauthorized)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Kind)

	acct, err := c.Account(ctx, funder)
	require.NoError(t, err)
	assert.EqualValues(t, 4_000, acct.Lamports)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	hs, _ := newDaemon(t, "")
	c := client.New(client.WithBaseURL(hs.URL))

	_, err := c.Record(ctx, nameregistry.Address{0x99})
	require.ErrorIs(t, err, nameregistry.ErrNotInitialized)

	_, err = c.Account(ctx, nameregistry.Address{0x99})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Kind)
	assert.NoError(t, apiErr.Unwrap())

	_, funder := newKey(t, 1)
	hashed := nameregistry.HashName("carol")
	rec, _, err := nameregistry.NewDeriver(programID).Derive(hashed, nameregistry.None(), nameregistry.None())
	require.NoError(t, err)
	ix, err := instruction.NewCreate(programID,
		instruction.Create{HashedName: hashed, Lamports: 1},
		instruction.CreateAccounts{Funder: funder, Record: rec, Owner: funder})
	require.NoError(t, err)

	// Unsigned funder.
	_, err = c.Submit(ctx, transaction.New(ix))
	require.ErrorIs(t, err, nameregistry.ErrUnauthorized)
}

func TestClient_Snapshot(t *testing.T) {
	ctx := context.Background()
	hs, l := newDaemon(t, "s3cret")
	_, funder := newKey(t, 1)
	require.NoError(t, l.Fund(ctx, funder, 42))

	t.Run("without token", func(t *testing.T) {
		c := client.New(client.WithBaseURL(hs.URL))
		_, err := c.Snapshot(ctx, io.Discard)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	})

	t.Run("with token", func(t *testing.T) {
		c := client.New(client.WithBaseURL(hs.URL), client.WithAdminToken("s3cret"))
		var buf bytes.Buffer
		n, err := c.Snapshot(ctx, &buf)
		require.NoError(t, err)
		require.EqualValues(t, buf.Len(), n)

		path := filepath.Join(t.TempDir(), "restored.db")
		_, err = ledger.Restore(&buf, path)
		require.NoError(t, err)

		restored := ledger.New(ledger.WithNoSync(true))
		require.NoError(t, restored.Open(path))
		defer restored.Close()

		acct, err := restored.Account(ctx, funder)
		require.NoError(t, err)
		assert.EqualValues(t, 42, acct.Lamports)
	})
}

func TestAPIError_UnknownBody(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer hs.Close()

	c := client.New(client.WithBaseURL(hs.URL))
	_, err := c.Record(context.Background(), nameregistry.Address{1})

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "unknown", apiErr.Kind)
	assert.Equal(t, "upstream broke", apiErr.Message)
}
