package auth_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allergysnatcher/auth"
)

type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func eventOfType(t auth.ActivityEventType) any {
	return mock.MatchedBy(func(e auth.ActivityEvent) bool {
		return e.EventType == t
	})
}
