package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/tokengate/internal/data"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	"github.com/target/tokengate/internal/mocks"
	"go.uber.org/mock/gomock"
)

func TestIssuedAfter(t *testing.T) {
	wm := NewRevocationWatermark(nil, nil, nil)
	logout := fixtureStart

	tests := []struct {
		name     string
		user     *model.User
		issuedAt time.Time
		want     bool
	}{
		{name: "nil user", user: nil, issuedAt: logout, want: false},
		{name: "never logged out", user: &model.User{}, issuedAt: logout.Add(-time.Hour), want: true},
		{name: "issued before logout", user: &model.User{LastLogout: &logout}, issuedAt: logout.Add(-time.Millisecond), want: false},
		{name: "issued at logout", user: &model.User{LastLogout: &logout}, issuedAt: logout, want: false},
		{name: "issued after logout", user: &model.User{LastLogout: &logout}, issuedAt: logout.Add(time.Millisecond), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wm.IssuedAfter(tt.user, tt.issuedAt))
		})
	}
}

func TestIsIssuedAfterLogout_LookupFailuresRevoke(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	wm := NewRevocationWatermark(users, data.NewFixedTimeProvider(fixtureStart), nil)

	users.EXPECT().GetByEmail(gomock.Any(), "gone@example.com").Return(nil, domainauth.ErrUserNotFound)
	users.EXPECT().GetByEmail(gomock.Any(), "flaky@example.com").Return(nil, errors.New("connection reset"))
	users.EXPECT().GetByEmail(gomock.Any(), "ok@example.com").Return(&model.User{Email: "ok@example.com"}, nil)

	assert.False(t, wm.IsIssuedAfterLogout(t.Context(), fixtureStart, "gone@example.com"))
	assert.False(t, wm.IsIssuedAfterLogout(t.Context(), fixtureStart, "flaky@example.com"))
	assert.True(t, wm.IsIssuedAfterLogout(t.Context(), fixtureStart, "ok@example.com"))
}

func TestMarkLoggedOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStore(ctrl)
	clock := data.NewFixedTimeProvider(fixtureStart)
	wm := NewRevocationWatermark(users, clock, nil)

	users.EXPECT().MarkLoggedOut(gomock.Any(), "a@example.com", fixtureStart).Return(nil)
	require.NoError(t, wm.MarkLoggedOut(t.Context(), "a@example.com"))

	users.EXPECT().MarkLoggedOut(gomock.Any(), "ghost@example.com", fixtureStart).Return(domainauth.ErrUserNotFound)
	require.ErrorIs(t, wm.MarkLoggedOut(t.Context(), "ghost@example.com"), domainauth.ErrUserNotFound)

	boom := errors.New("disk full")
	users.EXPECT().MarkLoggedOut(gomock.Any(), "a@example.com", fixtureStart).Return(boom)
	require.ErrorIs(t, wm.MarkLoggedOut(t.Context(), "a@example.com"), boom)

	require.ErrorIs(t, wm.MarkLoggedOut(t.Context(), ""), domainauth.ErrNotAuthenticated)
}

func TestWatermark_RevokesEarlierTokensOnly(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	first := f.register(t, "w@example.com")

	f.clock.AddTime(time.Second)
	require.NoError(t, f.svc.Logout(t.Context(), "w@example.com"))

	iat, err := f.codec.IssuedAt(first.AccessToken)
	require.NoError(t, err)
	assert.False(t, f.svc.watermark.IsIssuedAfterLogout(t.Context(), iat, "w@example.com"))
	assert.True(t, f.svc.watermark.IsIssuedAfterLogout(t.Context(), f.clock.Now().Add(time.Millisecond), "w@example.com"))
}
