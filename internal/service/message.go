package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wavehub/instance-server-go/internal/dispatch"
	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/model"
	"github.com/wavehub/instance-server-go/internal/repository"
)

// Dispatcher drives one enqueued row to a terminal state.
type Dispatcher interface {
	Process(ctx context.Context, messageID string) (*dispatch.Result, error)
}

// PendingNotifier announces newly-inserted pending rows to other consumers.
type PendingNotifier interface {
	NotifyPending(ctx context.Context, messageID string) error
}

type SendMessageParams struct {
	MessageID     string `json:"messageId"`
	InstanceID    string `json:"instanceId"`
	TargetAddress string `json:"targetAddress"`
	Content       string `json:"content"`
	MediaRef      string `json:"mediaRef"`
}

type MessageService struct {
	repo       repository.OutgoingMessageRepository
	dispatcher Dispatcher
	notifier   PendingNotifier
}

func NewMessageService(
	repo repository.OutgoingMessageRepository,
	dispatcher Dispatcher,
	notifier PendingNotifier,
) *MessageService {
	return &MessageService{
		repo:       repo,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

// Send enqueues an outgoing message durably, then attempts dispatch inline
// and reports the terminal outcome. The pending notification is still
// published so other replicas see the row; the conditional terminal write
// keeps the duplicate delivery a no-op.
func (s *MessageService) Send(ctx context.Context, params SendMessageParams) (*dispatch.Result, error) {
	if params.InstanceID == "" {
		return nil, apperrors.MissingRequired("instanceId")
	}
	if params.TargetAddress == "" {
		return nil, apperrors.MissingRequired("targetAddress")
	}
	if params.Content == "" && params.MediaRef == "" {
		return nil, apperrors.MissingRequired("content")
	}

	id := params.MessageID
	if id == "" {
		id = uuid.NewString()
	}

	var mediaRef *string
	if params.MediaRef != "" {
		mediaRef = &params.MediaRef
	}

	msg, err := s.repo.Create(ctx, model.CreateOutgoingMessageParams{
		ID:            id,
		InstanceID:    params.InstanceID,
		TargetAddress: params.TargetAddress,
		Content:       params.Content,
		MediaRef:      mediaRef,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if err := s.notifier.NotifyPending(ctx, msg.ID); err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("pending notification failed")
	}

	return s.dispatcher.Process(ctx, msg.ID)
}

func (s *MessageService) Get(ctx context.Context, id string) (*model.OutgoingMessage, error) {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if msg == nil {
		return nil, apperrors.NotFound("message")
	}
	return msg, nil
}
