package audit

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SDID constants for structured data IDs (RFC5424).
// 32473 is the documentation enterprise number of RFC 5612.
const (
	PEN         = 32473
	AppName     = "medcattrainer"
	SDIDAuth    = "auth@32473"
	SDIDSubject = "subject@32473"
	SDIDAction  = "action@32473"
	SDIDClient  = "client@32473"
)

// Syslog facility constants
const (
	FacilityAuth     = 4  // LOG_AUTH - security/authorization messages
	FacilityAuthPriv = 10 // LOG_AUTHPRIV - security/authorization messages (private)
)

// Severity levels matching syslog (RFC5424)
type Severity int

const (
	SeverityEmergency Severity = iota // 0
	SeverityAlert                     // 1
	SeverityCritical                  // 2
	SeverityError                     // 3
	SeverityWarning                   // 4
	SeverityNotice                    // 5
	SeverityInfo                      // 6
	SeverityDebug                     // 7
)

// Event represents an audit event
type Event interface {
	MessageID() string
	Message() string
	Severity() Severity
	Facility() int
	StructuredData() map[string]map[string]string
}

// Logger handles audit logging in RFC5424 syslog format
type Logger struct {
	writer   io.Writer
	hostname string
	appName  string
	pid      int
}

// NewLogger creates a new audit logger
func NewLogger() *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		writer:   os.Stdout,
		hostname: hostname,
		appName:  AppName,
		pid:      os.Getpid(),
	}
}

// SetWriter sets the output writer for the logger
func (l *Logger) SetWriter(w io.Writer) {
	l.writer = w
}

// Log writes event as one RFC5424 line:
// <PRI>1 TIMESTAMP HOSTNAME APP-NAME PROCID MSGID SD MSG
func (l *Logger) Log(event Event) {
	_, _ = io.WriteString(l.writer, l.format(event, time.Now().UTC()))
}

func (l *Logger) format(event Event, at time.Time) string {
	sd := formatStructuredData(event.StructuredData())
	if sd == "" {
		sd = "-"
	}
	hostname := l.hostname
	if hostname == "" {
		hostname = "-"
	}
	return fmt.Sprintf("<%d>1 %s %s %s %d %s %s %s\n",
		event.Facility()*8+int(event.Severity()),
		at.Format("2006-01-02T15:04:05.000Z"),
		hostname,
		l.appName,
		l.pid,
		event.MessageID(),
		sd,
		event.Message(),
	)
}

// formatStructuredData formats the structured data according to RFC5424
// Format: [sdid param1="value1" param2="value2"][sdid2 ...]
func formatStructuredData(sd map[string]map[string]string) string {
	if len(sd) == 0 {
		return ""
	}

	var parts []string
	for _, sdid := range sortedKeys(sd) {
		params := sd[sdid]
		paramParts := []string{sdid}
		for _, key := range sortedKeys(params) {
			// Escape special characters per RFC5424 section 6.3.3
			paramParts = append(paramParts, fmt.Sprintf("%s=%s", key, escapeSDValue(params[key])))
		}
		parts = append(parts, "["+strings.Join(paramParts, " ")+"]")
	}
	return strings.Join(parts, "")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escapeSDValue escapes special characters in structured data values per RFC5424
func escapeSDValue(value string) string {
	// Escape backslash, double quote, and closing bracket
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "]", "\\]")
	return "\"" + value + "\""
}

// Default logger instance
var DefaultLogger = NewLogger()

// Default store for database persistence (nil if AUDIT_DATABASE_URL not set)
var DefaultStore *Store

// Audit enabled state, defaults to true.
// Disabled with TRAINER_AUDIT_ENABLED=false.
var (
	auditEnabled     = true
	auditEnabledOnce sync.Once
	storeInitOnce    sync.Once
	errLogger        = zap.NewNop()
)

// IsEnabled returns whether audit logging is enabled
func IsEnabled() bool {
	auditEnabledOnce.Do(func() {
		if env := os.Getenv("TRAINER_AUDIT_ENABLED"); env != "" {
			auditEnabled = env != "false" && env != "0" && env != "no"
		}
	})
	return auditEnabled
}

// SetEnabled allows programmatic control of audit logging
// Note: This should be called before any Log calls for consistent behavior
func SetEnabled(enabled bool) {
	auditEnabled = enabled
}

// SetErrorLogger routes audit persistence failures to logger
func SetErrorLogger(logger *zap.Logger) {
	if logger != nil {
		errLogger = logger.Named("audit")
	}
}

// Log writes an event to the default logger and, when AUDIT_DATABASE_URL
// is set, to the messages table.
func Log(event Event) {
	if !IsEnabled() {
		return
	}
	DefaultLogger.Log(event)

	storeInitOnce.Do(func() {
		var err error
		if DefaultStore, err = NewStore(); err != nil {
			errLogger.Warn("audit database unavailable", zap.Error(err))
		}
	})
	if DefaultStore == nil {
		return
	}
	if err := DefaultStore.Save(event); err != nil {
		errLogger.Error("failed to persist audit event",
			zap.String("msgid", event.MessageID()), zap.Error(err))
	}
}
