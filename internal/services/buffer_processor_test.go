package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/internal/infrastructure/buffer"
	"github.com/fastygo/clientevip/repository"
	"github.com/fastygo/clientevip/repository/memory"
)

type switchHealth struct {
	online atomic.Bool
}

func (h *switchHealth) IsOnline() bool { return h.online.Load() }

// flakyMemberships fails status writes with err while it is set.
type flakyMemberships struct {
	repository.MembershipRepository
	mu  sync.Mutex
	err error
}

func (f *flakyMemberships) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *flakyMemberships) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MembershipRepository.UpdateStatus(ctx, id, status)
}

type processorEnv struct {
	store   *memory.Store
	repo    *flakyMemberships
	buffer  *buffer.Store
	health  *switchHealth
	proc    *BufferProcessor
	bridge  *BufferBridge
	logs    *observer.ObservedLogs
	created *domain.Membership
}

func newProcessorEnv(t *testing.T, maxRetries int) *processorEnv {
	t.Helper()
	buf, err := buffer.Open(filepath.Join(t.TempDir(), "buffer.db"), "status")
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })

	store := memory.NewStore()
	m := &domain.Membership{
		ClientName:     "Cliente",
		StoreID:        "store-a",
		DigitalCode:    "VIP-PROCESSOR",
		ActivationDate: time.Now(),
		ValidUntil:     time.Now().Add(time.Hour),
		Status:         domain.StatusActive,
	}
	require.NoError(t, store.Memberships().Create(context.Background(), m))

	core, logs := observer.New(zap.DebugLevel)
	health := &switchHealth{}
	health.online.Store(true)
	repo := &flakyMemberships{MembershipRepository: store.Memberships()}
	proc := NewBufferProcessor(buf, health, repo, zap.New(core), ProcessorConfig{
		Interval:   time.Hour,
		BatchSize:  10,
		MaxRetries: maxRetries,
	})
	return &processorEnv{
		store:   store,
		repo:    repo,
		buffer:  buf,
		health:  health,
		proc:    proc,
		bridge:  NewBufferBridge(proc),
		logs:    logs,
		created: m,
	}
}

func (e *processorEnv) storedStatus(t *testing.T) domain.Status {
	t.Helper()
	m, err := e.store.Memberships().GetByID(context.Background(), e.created.ID)
	require.NoError(t, err)
	return m.Status
}

func TestRecordStatusWritesThroughWhenOnline(t *testing.T) {
	e := newProcessorEnv(t, 3)

	require.NoError(t, e.bridge.RecordStatus(context.Background(), e.created.ID, domain.StatusExpiring))
	assert.Equal(t, domain.StatusExpiring, e.storedStatus(t))
	assert.Zero(t, e.proc.Size())
}

func TestRecordStatusBuffersWhileOffline(t *testing.T) {
	e := newProcessorEnv(t, 3)
	ctx := context.Background()
	e.health.online.Store(false)

	require.NoError(t, e.bridge.RecordStatus(ctx, e.created.ID, domain.StatusExpiring))
	require.NoError(t, e.bridge.RecordStatus(ctx, e.created.ID, domain.StatusExpired))
	assert.Equal(t, 1, e.proc.Size(), "later value supersedes the queued one")
	assert.Equal(t, domain.StatusActive, e.storedStatus(t))

	require.NoError(t, e.proc.Drain(ctx))
	assert.Equal(t, 1, e.proc.Size(), "drain waits for storage")

	e.health.online.Store(true)
	require.NoError(t, e.proc.Drain(ctx))
	assert.Zero(t, e.proc.Size())
	assert.Equal(t, domain.StatusExpired, e.storedStatus(t))
}

func TestRecordStatusBuffersOnUnavailableStorage(t *testing.T) {
	e := newProcessorEnv(t, 3)
	ctx := context.Background()
	e.repo.fail(domain.Unavailable("postgres down", errors.New("connection refused")))

	require.NoError(t, e.bridge.RecordStatus(ctx, e.created.ID, domain.StatusExpired))
	assert.Equal(t, 1, e.proc.Size())
	assert.Equal(t, 1, e.logs.FilterMessage("immediate processing failed, buffering").Len())

	e.repo.fail(nil)
	require.NoError(t, e.proc.Drain(ctx))
	assert.Equal(t, domain.StatusExpired, e.storedStatus(t))
}

func TestRecordStatusSurfacesOtherErrors(t *testing.T) {
	e := newProcessorEnv(t, 3)
	e.repo.fail(errors.New("constraint violated"))

	err := e.bridge.RecordStatus(context.Background(), e.created.ID, domain.StatusExpired)
	assert.EqualError(t, err, "constraint violated")
	assert.Zero(t, e.proc.Size())

	assert.ErrorIs(t, e.bridge.RecordStatus(context.Background(), e.created.ID, "lost"), domain.ErrValidation)
	assert.ErrorIs(t, e.bridge.RecordStatus(context.Background(), "", domain.StatusActive), domain.ErrValidation)
}

func TestDrainDropsAfterMaxRetries(t *testing.T) {
	e := newProcessorEnv(t, 2)
	ctx := context.Background()
	e.health.online.Store(false)
	require.NoError(t, e.bridge.RecordStatus(ctx, e.created.ID, domain.StatusExpired))

	e.health.online.Store(true)
	e.repo.fail(errors.New("still broken"))

	require.NoError(t, e.proc.Drain(ctx))
	assert.Equal(t, 1, e.proc.Size(), "first failure requeues")
	items, err := e.buffer.GetBatch(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)

	require.NoError(t, e.proc.Drain(ctx))
	assert.Zero(t, e.proc.Size())
	assert.Equal(t, 1, e.logs.FilterMessage("dropping buffer item (max retries reached)").Len())
	assert.Equal(t, domain.StatusActive, e.storedStatus(t))
}

func TestDrainDiscardsUnknownMembership(t *testing.T) {
	e := newProcessorEnv(t, 3)
	ctx := context.Background()
	e.health.online.Store(false)
	require.NoError(t, e.bridge.RecordStatus(ctx, "gone", domain.StatusExpired))

	e.health.online.Store(true)
	require.NoError(t, e.proc.Drain(ctx))
	assert.Zero(t, e.proc.Size())
	assert.Equal(t, 1, e.logs.FilterMessage("discarding status for unknown membership").Len())
}

func TestStartStop(t *testing.T) {
	e := newProcessorEnv(t, 3)
	e.proc.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e.proc.Stop(ctx)
	assert.Equal(t, 1, e.logs.FilterMessage("buffer processor stopped").Len())
}
