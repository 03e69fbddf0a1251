package services

import (
	"context"
	"encoding/json"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/internal/infrastructure/buffer"
	"github.com/fastygo/clientevip/usecase"
)

// BufferBridge routes status display-cache writes through the buffer processor.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) RecordStatus(ctx context.Context, membershipID string, status domain.Status) error {
	if b.processor == nil || membershipID == "" || !status.Valid() {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(buffer.StatusPayload{Status: string(status)})
	if err != nil {
		return err
	}
	item := buffer.Item{
		MembershipID: membershipID,
		Entity:       buffer.EntityMembershipStatus,
		Operation:    buffer.OperationRefresh,
		Data:         payload,
		Priority:     4,
	}
	return b.processor.BufferOperation(ctx, item)
}

var _ usecase.StatusCache = (*BufferBridge)(nil)
