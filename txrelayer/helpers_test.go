package txrelayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Psychedelic/terabethia-relayer/alert"
	"github.com/Psychedelic/terabethia-relayer/db"
	"github.com/Psychedelic/terabethia-relayer/ledger"
	"github.com/Psychedelic/terabethia-relayer/metrics"
	"github.com/Psychedelic/terabethia-relayer/queue"
)

const (
	testHash  = "d0379be15bb6f33737b756e512dad1e71226b31fa648da57811f930badf6c163"
	testGroup = "starknet"

	eventuallyWait = 2 * time.Second
	eventuallyTick = 10 * time.Millisecond
)

type fakeSource struct {
	mu        sync.Mutex
	msgs      []ledger.OutgoingMessage
	listErr   error
	removeErr error
	removed   [][]ledger.OutgoingMessage
}

func (s *fakeSource) ListOutgoing(context.Context) ([]ledger.OutgoingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]ledger.OutgoingMessage(nil), s.msgs...), nil
}

func (s *fakeSource) Remove(_ context.Context, msgs []ledger.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, msgs)

	removed := make(map[string]bool)
	for _, m := range msgs {
		removed[m.Key] = true
	}
	remaining := s.msgs[:0]
	for _, m := range s.msgs {
		if !removed[m.Key] {
			remaining = append(remaining, m)
		}
	}
	s.msgs = remaining
	return nil
}

type submitCall struct {
	a, b  *big.Int
	nonce uint64
}

type fakeDest struct {
	mu        sync.Mutex
	onSubmit  func()
	submits   []submitCall
	submitErr error
	noTxHash  bool
	statuses  map[string]ledger.TxStatus
	statusErr error
}

func newFakeDest() *fakeDest {
	return &fakeDest{statuses: make(map[string]ledger.TxStatus)}
}

func (d *fakeDest) Name() string    { return "fake" }
func (d *fakeDest) Account() string { return "0x1" }

func (d *fakeDest) GetNonce(context.Context, string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.submits)), nil
}

func (d *fakeDest) Submit(_ context.Context, a, b *big.Int, nonce uint64) (*ledger.SubmitResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	if d.onSubmit != nil {
		d.onSubmit()
	}
	d.submits = append(d.submits, submitCall{a: a, b: b, nonce: nonce})
	if d.noTxHash {
		return &ledger.SubmitResult{}, nil
	}
	txHash := fmt.Sprintf("0xtx%d", len(d.submits))
	if _, ok := d.statuses[txHash]; !ok {
		d.statuses[txHash] = ledger.StatusPending
	}
	return &ledger.SubmitResult{TxHash: txHash}, nil
}

func (d *fakeDest) GetStatus(_ context.Context, txHash string) (ledger.TxStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.statusErr != nil {
		return ledger.StatusUnknown, d.statusErr
	}
	status, ok := d.statuses[txHash]
	if !ok {
		return ledger.StatusUnknown, nil
	}
	return status, nil
}

func (d *fakeDest) setStatus(txHash string, status ledger.TxStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[txHash] = status
}

func (d *fakeDest) nonces() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var nonces []uint64
	for _, s := range d.submits {
		nonces = append(nonces, s.nonce)
	}
	return nonces
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a alert.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []string
	for _, a := range n.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

// flakyQueue fails sends whose dedup id is listed in failDedup.
type flakyQueue struct {
	queue.Queue
	failDedup map[string]bool
	sendErr   error
}

func (q *flakyQueue) Send(ctx context.Context, msg queue.Message) error {
	if q.sendErr != nil || q.failDedup[msg.DedupID] {
		return errors.New("queue unavailable")
	}
	return q.Queue.Send(ctx, msg)
}

// flakyDB fails writes to keys listed in failPut.
type flakyDB struct {
	db.IDB
	failPut map[string]bool
	failHas bool
}

func (f *flakyDB) Put(ctx context.Context, key []byte, value []byte) error {
	if f.failPut[string(key)] {
		return errors.New("store unavailable")
	}
	return f.IDB.Put(ctx, key, value)
}

func (f *flakyDB) Has(ctx context.Context, key []byte) (bool, error) {
	if f.failHas {
		return false, errors.New("store unavailable")
	}
	return f.IDB.Has(ctx, key)
}

func (f *flakyDB) CompareAndSwap(ctx context.Context, key []byte, old []byte, value []byte) (bool, error) {
	if f.failPut[string(key)] {
		return false, errors.New("store unavailable")
	}
	return f.IDB.CompareAndSwap(ctx, key, old, value)
}

type testEnv struct {
	deps     Deps
	db       *flakyDB
	source   *fakeSource
	dest     *fakeDest
	outbound *queue.MemoryQueue
	check    *queue.MemoryQueue
	alerts   *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem, err := db.NewMemLevelDB()
	require.NoError(t, err)
	fdb := &flakyDB{IDB: mem, failPut: map[string]bool{}}
	store, err := db.NewStore(fdb, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		db:       fdb,
		source:   &fakeSource{},
		dest:     newFakeDest(),
		outbound: queue.NewMemoryQueue("outbound", time.Minute, 5*time.Minute),
		check:    queue.NewMemoryQueue("check", time.Minute, 5*time.Minute),
		alerts:   &recordingNotifier{},
	}
	env.deps = Deps{
		Logger:   zap.NewNop().Sugar(),
		Store:    store,
		Outbound: env.outbound,
		Check:    env.check,
		Source:   env.source,
		Dest:     env.dest,
		Alerts:   env.alerts,
		Metrics:  metrics.NewNop(),
		GroupID:  testGroup,
	}
	return env
}

// receiveEnvelope takes the next visible entry of q, acks it and decodes it.
func receiveEnvelope(t *testing.T, q queue.Queue) (Envelope, *queue.Delivery) {
	t.Helper()
	d, err := q.Receive(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, q.Ack(context.Background(), d))

	e, err := DecodeEnvelope(d.Body)
	require.NoError(t, err)
	return e, d
}

func hashOf(i int) string {
	return fmt.Sprintf("%064x", i)
}
