// Package mocks provides gomock implementations of the portal's ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// identity provider and session store interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	idp := mocks.NewMockIdentityProvider(ctrl)
//	idp.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).Return("https://idp/authorize", nil)
package mocks

// Generate mock for IdentityProvider interface from internal/ports package.
// This creates MockIdentityProvider with methods: AuthCodeURL, ExchangeCode, EndSessionURL
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/spie-ics/meraki-captive-portal/internal/ports IdentityProvider

// Generate mock for SessionStore interface from internal/ports package.
// This creates MockSessionStore with methods: Save, Get, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/spie-ics/meraki-captive-portal/internal/ports SessionStore
