// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/constants"
)

// MockNATSConn implements INatsConn for testing
type MockNATSConn struct {
	mock.Mock
}

func (m *MockNATSConn) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockNATSConn) Publish(subj string, data []byte) error {
	args := m.Called(subj, data)
	return args.Error(0)
}

func TestMessageBuilder_publish(t *testing.T) {
	tests := []struct {
		name         string
		publishError error
		expectError  bool
	}{
		{name: "successful send"},
		{name: "publish error", publishError: errors.New("publish failed"), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConn := new(MockNATSConn)
			mockConn.On("Publish", "test.subject", []byte("test data")).Return(tt.publishError)

			builder := NewMessageBuilder(mockConn)
			err := builder.publish(context.Background(), "test.subject", []byte("test data"))

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			mockConn.AssertExpectations(t)
		})
	}
}

func TestMessageBuilder_PublisherReady(t *testing.T) {
	assert.False(t, NewMessageBuilder(nil).PublisherReady())

	mockConn := new(MockNATSConn)
	mockConn.On("IsConnected").Return(true).Once()
	assert.True(t, NewMessageBuilder(mockConn).PublisherReady())
}

func TestMessageBuilder_PublishStorageEvent(t *testing.T) {
	timestamp := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	booking := &models.MeetingBooking{
		ID:          "meetings_1",
		Name:        "Asha Rao",
		MeetingType: models.MeetingTypeVideo,
		Duration:    30,
		Date:        "2024-06-10",
		Time:        "14:30",
		Status:      models.StatusScheduled,
	}

	tests := []struct {
		name        string
		event       domain.StorageEvent
		ctx         context.Context
		wantSubject string
		check       func(t *testing.T, msg models.StorageEventMessage)
	}{
		{
			name: "created record flattened",
			event: domain.StorageEvent{
				Type: domain.EventCreated, Collection: "meetings", ID: "meetings_1",
				Data: booking, Timestamp: timestamp,
			},
			ctx:         context.Background(),
			wantSubject: "lfx.meeting_scheduler.meetings.created",
			check: func(t *testing.T, msg models.StorageEventMessage) {
				data, ok := msg.Data.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "Asha Rao", data["name"])
				assert.Equal(t, "video", data["meetingType"])
				assert.Equal(t, float64(30), data["duration"])
				assert.Equal(t, "2024-06-10T09:00:00Z", msg.Timestamp)
				assert.Empty(t, msg.RequestID)
			},
		},
		{
			name: "deleted carries no payload",
			event: domain.StorageEvent{
				Type: domain.EventDeleted, Collection: "blocked_slots", ID: "blocked_slots_9",
				Timestamp: timestamp,
			},
			ctx:         context.WithValue(context.Background(), constants.RequestIDContextID, "req-42"),
			wantSubject: "lfx.meeting_scheduler.blocked_slots.deleted",
			check: func(t *testing.T, msg models.StorageEventMessage) {
				assert.Nil(t, msg.Data)
				assert.Equal(t, "blocked_slots_9", msg.ID)
				assert.Equal(t, "req-42", msg.RequestID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConn := new(MockNATSConn)
			mockConn.On("IsConnected").Return(true)

			var published []byte
			mockConn.On("Publish", tt.wantSubject, mock.AnythingOfType("[]uint8")).
				Run(func(args mock.Arguments) { published = args.Get(1).([]byte) }).
				Return(nil)

			err := NewMessageBuilder(mockConn).PublishStorageEvent(tt.ctx, tt.event)
			require.NoError(t, err)
			mockConn.AssertExpectations(t)

			var msg models.StorageEventMessage
			require.NoError(t, json.Unmarshal(published, &msg))
			assert.Equal(t, string(tt.event.Type), msg.Type)
			assert.Equal(t, tt.event.Collection, msg.Collection)
			tt.check(t, msg)
		})
	}
}

func TestMessageBuilder_PublishStorageEvent_Disconnected(t *testing.T) {
	mockConn := new(MockNATSConn)
	mockConn.On("IsConnected").Return(false)

	err := NewMessageBuilder(mockConn).PublishStorageEvent(context.Background(), domain.StorageEvent{
		Type: domain.EventUpdated, Collection: "meetings", ID: "x",
	})
	assert.ErrorIs(t, err, ErrNotConnected)
	mockConn.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestEventPayload_Unencodable(t *testing.T) {
	_, err := eventPayload(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestMessageBuilder_Forward(t *testing.T) {
	listeners := map[string]domain.EventListener{}
	unsubscribed := map[string]bool{}
	subscribe := func(collection string, listener domain.EventListener) func() {
		listeners[collection] = listener
		return func() { unsubscribed[collection] = true }
	}

	mockConn := new(MockNATSConn)
	mockConn.On("IsConnected").Return(true)
	mockConn.On("Publish", "lfx.meeting_scheduler.meetings.updated", mock.Anything).Return(nil).Once()
	mockConn.On("Publish", "lfx.meeting_scheduler.config.updated", mock.Anything).Return(errors.New("boom")).Once()

	stop := NewMessageBuilder(mockConn).Forward(subscribe, "meetings", "config")
	require.Len(t, listeners, 2)

	assert.NotPanics(t, func() {
		listeners["meetings"](domain.StorageEvent{Type: domain.EventUpdated, Collection: "meetings", ID: "a"})
		listeners["config"](domain.StorageEvent{Type: domain.EventUpdated, Collection: "config", ID: "meeting_config"})
	})
	mockConn.AssertExpectations(t)

	stop()
	assert.True(t, unsubscribed["meetings"])
	assert.True(t, unsubscribed["config"])
}

func TestForward_Publisher(t *testing.T) {
	var listener domain.EventListener
	subscribe := func(_ string, l domain.EventListener) func() {
		listener = l
		return func() {}
	}
	event := domain.StorageEvent{Type: domain.EventDeleted, Collection: "blocked_slots", ID: "b1"}

	publisher := new(mocks.MockStorageEventPublisher)
	publisher.On("PublishStorageEvent", mock.Anything, event).Return(errors.New("bus down")).Once()
	publisher.On("PublishStorageEvent", mock.Anything, event).Return(nil).Once()

	stop := Forward(publisher, subscribe, "blocked_slots")
	defer stop()
	require.NotNil(t, listener)

	assert.NotPanics(t, func() { listener(event) })
	listener(event)
	publisher.AssertExpectations(t)
	publisher.AssertNotCalled(t, "PublisherReady")
}
