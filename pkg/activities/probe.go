package activities

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
)

// injectTestConnectionFailureEnv lets integration tests force TestConnection
// to fail deterministically, without touching a real server — grounded on
// the same knob the original implementation exposed for rollback testing.
const injectTestConnectionFailureEnv = "TOYGRES_INJECT_TEST_CONNECTION_FAILURE"

// TestConnection connects to the instance and runs SELECT version(), used
// by CreateInstance to confirm the server is actually accepting
// connections before the orchestration reports success.
func TestConnection(ctx context.Context, input TestConnectionInput) (TestConnectionOutput, error) {
	if os.Getenv(injectTestConnectionFailureEnv) != "" {
		return TestConnectionOutput{}, fmt.Errorf("injected failure: connection test forced to fail")
	}

	conn, err := pgx.Connect(ctx, input.ConnectionString)
	if err != nil {
		return TestConnectionOutput{}, fmt.Errorf("connect to postgres: %w", err)
	}
	defer conn.Close(ctx)

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return TestConnectionOutput{}, fmt.Errorf("query version: %w", err)
	}

	return TestConnectionOutput{Version: version, Connected: true}, nil
}
