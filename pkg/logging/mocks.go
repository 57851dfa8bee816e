package logging

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockLogger records log calls so tests can assert on level, message and fields.
// Structured methods are called with (msg, keysAndValues); match fields with KV.
type MockLogger struct {
	mock.Mock
}

var (
	structuredMethods = []string{"Debug", "Info", "Warn", "Error", "Fatal"}
	templateMethods   = []string{"Debugf", "Infof", "Warnf", "Errorf", "Fatalf"}
)

// SetupDefaultExpectations accepts any call. Register specific expectations first so
// they take precedence.
func (m *MockLogger) SetupDefaultExpectations() {
	for _, method := range append(structuredMethods, templateMethods...) {
		m.On(method, mock.Anything, mock.Anything).Maybe().Return()
	}
	m.On("With", mock.Anything).Maybe().Return(m)
}

// KV matches a keysAndValues argument that carries key with value.
func KV(key string, value any) any {
	return mock.MatchedBy(func(kv []any) bool {
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok && k == key && assert.ObjectsAreEqual(value, kv[i+1]) {
				return true
			}
		}
		return false
	})
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.Called(msg, keysAndValues) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.Called(msg, keysAndValues) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Debugf(template string, args ...any) { m.Called(template, args) }
func (m *MockLogger) Infof(template string, args ...any)  { m.Called(template, args) }
func (m *MockLogger) Warnf(template string, args ...any)  { m.Called(template, args) }
func (m *MockLogger) Errorf(template string, args ...any) { m.Called(template, args) }
func (m *MockLogger) Fatalf(template string, args ...any) { m.Called(template, args) }

// With returns the mock itself unless an expectation supplies another logger, so
// fields added by the code under test do not hide later calls.
func (m *MockLogger) With(tags ...any) Logger {
	if next, ok := m.Called(tags).Get(0).(Logger); ok {
		return next
	}
	return m
}

// NewNoOpLogger creates a logger that does nothing (useful for tests that don't care about logging)
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// NoOpLogger is a logger implementation that does nothing
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Fatal(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Debugf(template string, args ...interface{})    {}
func (n *NoOpLogger) Infof(template string, args ...interface{})     {}
func (n *NoOpLogger) Warnf(template string, args ...interface{})     {}
func (n *NoOpLogger) Errorf(template string, args ...interface{})    {}
func (n *NoOpLogger) Fatalf(template string, args ...interface{})    {}
func (n *NoOpLogger) With(tags ...interface{}) Logger                { return n }
