// Package mocks provides mock implementations for testing the account console.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	api := mocks.NewMockAccountAPI(ctrl)
//	api.EXPECT().CurrentUser(gomock.Any(), gomock.Any()).Return(identity, nil)
package mocks

// Generate mock for AccountAPI interface from internal/ports package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=account_api_mock.go github.com/acme/acct-console/internal/ports AccountAPI

// Generate mock for SessionStore interface from internal/ports package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/acme/acct-console/internal/ports SessionStore
