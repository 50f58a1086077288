package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTx implements only the lifecycle slice of pgx.Tx the manager touches.
type stubTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type stubBeginner struct {
	tx       *stubTx
	begins   int
	beginErr error
}

func (b *stubBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	b.begins++
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	tx := &stubTx{}
	tm := &postgresTransactionManager{db: &stubBeginner{tx: tx}}

	var sawTx pgx.Tx
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		sawTx = ExtractTx(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, pgx.Tx(tx), sawTx)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestRunInTx_CommitErrorSurfaces(t *testing.T) {
	commitErr := errors.New("connection lost during commit")
	tx := &stubTx{commitErr: commitErr}
	tm := &postgresTransactionManager{db: &stubBeginner{tx: tx}}

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, commitErr)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	tx := &stubTx{}
	tm := &postgresTransactionManager{db: &stubBeginner{tx: tx}}

	fnErr := errors.New("insert failed")
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return fnErr
	})
	assert.ErrorIs(t, err, fnErr)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestRunInTx_BeginError(t *testing.T) {
	beginErr := errors.New("pool exhausted")
	tm := &postgresTransactionManager{db: &stubBeginner{beginErr: beginErr}}

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})
	assert.ErrorIs(t, err, beginErr)
}

func TestRunInTx_JoinsAmbientTransaction(t *testing.T) {
	outer := &stubTx{}
	beginner := &stubBeginner{tx: &stubTx{}}
	tm := &postgresTransactionManager{db: beginner}

	ctx := InjectTx(context.Background(), outer)
	err := tm.RunInTx(ctx, func(ctx context.Context) error {
		assert.Same(t, pgx.Tx(outer), ExtractTx(ctx))
		return nil
	})
	require.NoError(t, err)

	// The outer caller owns the transaction: no new Begin, no commit here.
	assert.Equal(t, 0, beginner.begins)
	assert.False(t, outer.committed)
	assert.False(t, outer.rolledBack)
}
