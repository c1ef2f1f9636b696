package build

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	baselog "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
)

// defaultLogLevel is the level every subsystem logger starts out at before
// ParseAndSetDebugLevels has been called.
const defaultLogLevel = btclog.LevelInfo

// SubLoggerManager hands out per-subsystem loggers backed by a single shared
// handler, and keeps track of them so their levels can be adjusted at run
// time with the familiar "debuglevel" syntax.
type SubLoggerManager struct {
	mu sync.Mutex

	root    btclog.Logger
	loggers SubLoggers
}

// NewSubLoggerManager creates a manager whose subsystem loggers write through
// the given handler. With no handler, log lines go to stdout with the default
// options.
func NewSubLoggerManager(handler btclog.Handler) *SubLoggerManager {
	if handler == nil {
		handler = btclog.NewDefaultHandler(os.Stdout)
	}

	return &SubLoggerManager{
		root:    btclog.NewSLogger(handler),
		loggers: make(SubLoggers),
	}
}

// GenSubLogger returns the logger registered for the given subsystem tag,
// creating it on first use.
func (m *SubLoggerManager) GenSubLogger(subsystem string) btclog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[subsystem]; ok {
		return logger
	}

	logger := m.root.SubSystem(subsystem)
	logger.SetLevel(defaultLogLevel)
	m.loggers[subsystem] = logger

	return logger
}

// SubLoggers returns the map of all registered subsystem loggers.
func (m *SubLoggerManager) SubLoggers() SubLoggers {
	m.mu.Lock()
	defer m.mu.Unlock()

	loggers := make(SubLoggers, len(m.loggers))
	for tag, logger := range m.loggers {
		loggers[tag] = logger
	}

	return loggers
}

// SupportedSubsystems returns a sorted list of the registered subsystem tags.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	loggers := m.SubLoggers()

	subsystems := make([]string, 0, len(loggers))
	for tag := range loggers {
		subsystems = append(subsystems, tag)
	}
	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevel sets the level of the named subsystem logger, if registered.
func (m *SubLoggerManager) SetLogLevel(subsystem string, level baselog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[subsystem]; ok {
		logger.SetLevel(level)
	}
}

// SetLogLevels sets the level of every registered subsystem logger.
func (m *SubLoggerManager) SetLogLevels(level baselog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}

// SubLoggers is a map of subsystem loggers keyed by their subsystem tag.
type SubLoggers map[string]btclog.Logger

// NewSubLogger constructs a subsystem logger using the provided constructor,
// falling back to a disabled logger when none is given. Packages use this to
// initialize their package-level logger before the host application wires in
// a real one.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}

// ParseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly on the given manager. An appropriate error is
// returned if anything is invalid.
func ParseAndSetDebugLevels(level string, manager *SubLoggerManager) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(level, ",") && !strings.Contains(level, "=") {
		if !validLogLevel(level) {
			return fmt.Errorf("the specified debug level [%v] "+
				"is invalid", level)
		}

		logLevel, _ := btclog.LevelFromString(level)
		manager.SetLogLevels(logLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and updating the log levels accordingly.
	for _, logLevelPair := range strings.Split(level, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains "+
				"an invalid subsystem/level pair [%v]",
				logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level has an "+
				"invalid format [%v]", logLevelPair)
		}
		subsystem, logLevel := fields[0], fields[1]

		if _, ok := manager.SubLoggers()[subsystem]; !ok {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid; supported subsystems are %v",
				subsystem, manager.SupportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] "+
				"is invalid", logLevel)
		}

		level, _ := btclog.LevelFromString(logLevel)
		manager.SetLogLevel(subsystem, level)
	}

	return nil
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical", "off":
		return true
	}

	return false
}
