package txrelayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/config"
	"github.com/Psychedelic/terabethia-relayer/db"
)

func newTestSender(env *testEnv) *Sender {
	s := NewSender(env.deps, config.SenderConfig{Concurrency: 1, BookkeepingAttempts: 2})
	s.retryDelay = time.Millisecond
	return s
}

func lastNonce(t *testing.T, env *testEnv) uint64 {
	t.Helper()
	n, found, err := env.deps.Store.GetLastNonce(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	return n
}

func TestSender_FirstSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, newTestSender(env).Handle(ctx, NewSubmit("k1", testHash)))

	require.Len(t, env.dest.submits, 1)
	call := env.dest.submits[0]
	high, _ := new(big.Int).SetString("276768161078691357748506014484008718823", 10)
	low, _ := new(big.Int).SetString("24127044263607486132772889641222586723", 10)
	require.Equal(t, high, call.a)
	require.Equal(t, low, call.b)
	require.Equal(t, uint64(0), call.nonce)

	require.Equal(t, uint64(1), lastNonce(t, env))

	keys, err := env.deps.Store.GetMessagesForTransaction(ctx, "0xtx1")
	require.NoError(t, err)
	require.Equal(t, []string{"k1"}, keys)
	txHash, found, err := env.deps.Store.GetTransactionForMessage(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0xtx1", txHash)

	e, d := receiveEnvelope(t, env.check)
	require.Equal(t, NewCheck("0xtx1", "k1", testHash, 0), e)
	require.Equal(t, "0xtx1", d.GroupID)
}

func TestSender_NonceIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	sender := newTestSender(env)

	for i := 1; i <= 3; i++ {
		require.NoError(t, sender.Handle(context.Background(), NewSubmit(fmt.Sprintf("k%d", i), hashOf(i))))
	}
	require.Equal(t, []uint64{0, 1, 2}, env.dest.nonces())
	require.Equal(t, uint64(3), lastNonce(t, env))
}

func TestSender_ResubmitReusesNonce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.deps.Store.SetLastNonce(ctx, 8))

	require.NoError(t, newTestSender(env).Handle(ctx, NewResubmit("k1", testHash, 5)))

	require.Equal(t, []uint64{5}, env.dest.nonces())
	require.Equal(t, uint64(8), lastNonce(t, env))

	e, _ := receiveEnvelope(t, env.check)
	require.Equal(t, Nonce(5), *e.Nonce)
}

func TestSender_InvalidHashIsTerminal(t *testing.T) {
	env := newTestEnv(t)

	err := newTestSender(env).Handle(context.Background(), NewSubmit("k1", "abcd"))
	require.Equal(t, Terminal, Classify(err))
	require.Empty(t, env.dest.submits)
}

func TestSender_WrongKindIsTerminal(t *testing.T) {
	env := newTestEnv(t)

	err := newTestSender(env).Handle(context.Background(), NewCheck("0xtx", "k1", testHash, 0))
	require.Equal(t, Terminal, Classify(err))
}

func TestSender_SubmitErrorIsRetriable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dest.submitErr = errors.New("connection refused")

	err := newTestSender(env).Handle(ctx, NewSubmit("k1", testHash))
	require.Error(t, err)
	require.Equal(t, Retriable, Classify(err))

	_, found, err := env.deps.Store.GetLastNonce(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 0, env.check.Len())
	require.Empty(t, env.alerts.kinds())
}

func TestSender_NonceErrorIsAlerted(t *testing.T) {
	env := newTestEnv(t)
	env.dest.submitErr = errors.New("Invalid transaction nonce")

	err := newTestSender(env).Handle(context.Background(), NewSubmit("k1", testHash))
	require.Equal(t, Retriable, Classify(err))
	require.Equal(t, []string{alert.KindNonceConflict}, env.alerts.kinds())
}

func TestSender_MissingTxHashIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dest.noTxHash = true

	err := newTestSender(env).Handle(ctx, NewSubmit("k1", testHash))
	require.ErrorIs(t, err, ErrMissingTxHash)
	require.Equal(t, Terminal, Classify(err))

	_, found, err := env.deps.Store.GetLastNonce(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 0, env.check.Len())
}

func TestSender_BookkeepingFailuresAreAbsorbed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.db.failPut["lastNonce"] = true
	env.db.failPut["0xtx1"] = true

	err := newTestSender(env).Handle(ctx, NewSubmit("k1", testHash))
	require.Error(t, err)
	require.Equal(t, Absorbed, Classify(err))
	require.Equal(t, []string{alert.KindBookkeepingFailed, alert.KindBookkeepingFailed}, env.alerts.kinds())

	// the remaining steps still ran
	require.Equal(t, 1, env.check.Len())
}

func TestSender_CheckEnqueueFailureIsAbsorbed(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Check = &flakyQueue{Queue: env.check, sendErr: errors.New("down")}

	err := newTestSender(env).Handle(context.Background(), NewSubmit("k1", testHash))
	require.Equal(t, Absorbed, Classify(err))
	require.ErrorContains(t, err, "enqueue_check")
	require.Equal(t, uint64(1), lastNonce(t, env))
}

func TestSender_NonceConflictIsAbsorbed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// another writer moves the counter while the transaction is in flight
	env.dest.onSubmit = func() {
		require.NoError(t, env.deps.Store.SetLastNonce(ctx, 5))
	}

	err := newTestSender(env).Handle(ctx, NewSubmit("k1", testHash))
	require.ErrorIs(t, err, db.ErrNonceConflict)
	require.Equal(t, Absorbed, Classify(err))
	require.Equal(t, []string{alert.KindNonceConflict}, env.alerts.kinds())
	require.Equal(t, uint64(5), lastNonce(t, env))
	require.Equal(t, 1, env.check.Len())
}

func TestSender_BookkeepingSurvivesCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	env.dest.onSubmit = cancel

	require.NoError(t, newTestSender(env).Handle(ctx, NewSubmit("k1", testHash)))
	require.Equal(t, uint64(1), lastNonce(t, env))
	require.Equal(t, 1, env.check.Len())
}
