// Package mocks provides gomock implementations of the ports used by the auth service.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserStore(ctrl)
//	users.EXPECT().GetByEmail(gomock.Any(), "a@example.com").Return(nil, domainauth.ErrUserNotFound)
package mocks

// UserStore: Create, GetByEmail, GetByID, RecordLogin, RecordFailedLogin, MarkLoggedOut, SetRole, SetActive, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_store_mock.go github.com/target/tokengate/internal/ports UserStore

// TokenCodec: Issue, Parse, Subject, IssuedAt, Expiry, IsValid
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_codec_mock.go github.com/target/tokengate/internal/ports TokenCodec
