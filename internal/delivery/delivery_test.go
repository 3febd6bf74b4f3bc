package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"peopleflow/internal/delivery"
	"peopleflow/internal/delivery/mock"
	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/platform/audit/publisher"
)

type recordedAttempt struct {
	invitationID id.InvitationID
	lastErr      string
}

type fakeRecorder struct {
	attempts []recordedAttempt
}

func (f *fakeRecorder) RecordDeliveryAttempt(_ context.Context, _ id.TenantID, invitationID id.InvitationID, lastErr string) error {
	f.attempts = append(f.attempts, recordedAttempt{invitationID: invitationID, lastErr: lastErr})
	return nil
}

func testMessage() delivery.Message {
	return delivery.Message{
		InvitationID:     id.NewInvitationID(),
		TenantID:         id.NewTenantID(),
		Recipient:        "ana@example.com",
		Token:            "signed.token.value",
		RenderedTemplate: "Welcome aboard",
	}
}

func TestDispatch_SucceedsFirstAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	recorder := &fakeRecorder{}
	msg := testMessage()

	sender.EXPECT().Send(gomock.Any(), msg).Return(nil).Times(1)

	d := delivery.NewDispatcher(sender,
		delivery.WithAttemptRecorder(recorder),
		delivery.WithBackoff(time.Millisecond),
	)
	require.NoError(t, d.Dispatch(context.Background(), msg))
	require.Len(t, recorder.attempts, 1)
	assert.Empty(t, recorder.attempts[0].lastErr)
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	recorder := &fakeRecorder{}
	msg := testMessage()

	gomock.InOrder(
		sender.EXPECT().Send(gomock.Any(), msg).Return(errors.New("smtp timeout")),
		sender.EXPECT().Send(gomock.Any(), msg).Return(nil),
	)

	d := delivery.NewDispatcher(sender,
		delivery.WithAttemptRecorder(recorder),
		delivery.WithBackoff(time.Millisecond),
	)
	require.NoError(t, d.Dispatch(context.Background(), msg))
	require.Len(t, recorder.attempts, 2)
	assert.Equal(t, "smtp timeout", recorder.attempts[0].lastErr)
	assert.Empty(t, recorder.attempts[1].lastErr)
}

// TestDispatch_ExhaustsRetryBudget pins the hard bound: exactly three
// attempts, then delivery_failed surfaces to the operator queue.
func TestDispatch_ExhaustsRetryBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	recorder := &fakeRecorder{}
	sink := publisher.NewMemory()
	msg := testMessage()

	sender.EXPECT().Send(gomock.Any(), msg).Return(errors.New("mailbox full")).Times(3)

	d := delivery.NewDispatcher(sender,
		delivery.WithAttemptRecorder(recorder),
		delivery.WithAuditPublisher(sink),
		delivery.WithBackoff(time.Millisecond),
	)
	err := d.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeliveryFailed))
	assert.Len(t, recorder.attempts, 3)

	events := sink.ByAction(audit.EventDeliveryFailed)
	require.Len(t, events, 1)
	assert.Equal(t, msg.InvitationID.String(), events[0].Subject)
	assert.Equal(t, "mailbox full", events[0].Reason)
}

func TestDispatch_ContextCancelledBetweenAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	msg := testMessage()

	ctx, cancel := context.WithCancel(context.Background())
	sender.EXPECT().Send(gomock.Any(), msg).DoAndReturn(func(context.Context, delivery.Message) error {
		cancel()
		return errors.New("smtp timeout")
	}).Times(1)

	d := delivery.NewDispatcher(sender, delivery.WithBackoff(time.Minute))
	err := d.Dispatch(ctx, msg)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDeliveryFailed))
}
