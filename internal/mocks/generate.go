// Package mocks provides gomock implementations of the job queue ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	conn := mocks.NewMockQueueConnector(ctrl)
//	conn.EXPECT().Connect(gomock.Any()).Return(session, nil)
package mocks

// Generate mocks for QueueConnector and QueueSession from pkg/models.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=queue_mock.go github.com/kiranshivaraju/jobsync/pkg/models QueueConnector,QueueSession
