package ports_test

import (
	"testing"

	"github.com/target/tokengate/internal/adapters/memstore"
	"github.com/target/tokengate/internal/adapters/passwords"
	"github.com/target/tokengate/internal/adapters/tokens"
	"github.com/target/tokengate/internal/data"
	"github.com/target/tokengate/internal/mocks"
	mockauth "github.com/target/tokengate/internal/mocks/auth"
	"github.com/target/tokengate/internal/ports"
)

// This test only verifies that adapters and mocks conform to the ports at compile time.
func TestAdaptersImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.UserStore = (*memstore.UserStore)(nil)
	var _ ports.UserStore = (*data.UserRepo)(nil)
	var _ ports.UserStore = (*mocks.MockUserStore)(nil)
	var _ ports.TokenCodec = (*tokens.HMACCodec)(nil)
	var _ ports.TokenCodec = (*mocks.MockTokenCodec)(nil)
	var _ ports.PasswordHasher = (*passwords.Bcrypt)(nil)
	var _ ports.PasswordHasher = (*mockauth.PlainHasher)(nil)
	var _ ports.TimeProvider = (*data.FixedTimeProvider)(nil)
	var _ ports.MetricsSink = (*mockauth.RecordingMetrics)(nil)
}
