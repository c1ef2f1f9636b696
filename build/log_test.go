package build

import (
	"testing"

	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// TestParseAndSetDebugLevels exercises both the global-level and the
// per-subsystem forms of the debuglevel string.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	manager := NewSubLoggerManager(nil)
	chwa := manager.GenSubLogger("CHWA")
	disc := manager.GenSubLogger("DISC")

	// A bare level applies to every subsystem.
	require.NoError(t, ParseAndSetDebugLevels("debug", manager))
	require.Equal(t, btclog.LevelDebug, chwa.Level())
	require.Equal(t, btclog.LevelDebug, disc.Level())

	// Subsystem/level pairs apply individually.
	require.NoError(
		t, ParseAndSetDebugLevels("CHWA=trace,DISC=warn", manager),
	)
	require.Equal(t, btclog.LevelTrace, chwa.Level())
	require.Equal(t, btclog.LevelWarn, disc.Level())

	// Invalid levels and unknown subsystems are rejected.
	require.Error(t, ParseAndSetDebugLevels("chatty", manager))
	require.Error(t, ParseAndSetDebugLevels("NOPE=debug", manager))
	require.Error(t, ParseAndSetDebugLevels("CHWA=chatty", manager))
}

// TestGenSubLoggerReuse asserts the same logger instance is handed out for
// a repeated subsystem tag.
func TestGenSubLoggerReuse(t *testing.T) {
	t.Parallel()

	manager := NewSubLoggerManager(nil)
	first := manager.GenSubLogger("ZPAY")
	second := manager.GenSubLogger("ZPAY")
	require.Same(t, first, second)

	require.Equal(t, []string{"ZPAY"}, manager.SupportedSubsystems())
}
