package log

import "context"

// nopLogger drops everything.
type nopLogger struct{}

// NewNopLogger returns a Logger that discards all entries.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...Field)                 {}
func (nopLogger) Info(string, ...Field)                  {}
func (nopLogger) Warn(string, ...Field)                  {}
func (nopLogger) Error(string, ...Field)                 {}
func (nopLogger) Fatal(string, ...Field)                 {}
func (nopLogger) Debugf(string, ...interface{})          {}
func (nopLogger) Infof(string, ...interface{})           {}
func (nopLogger) Warnf(string, ...interface{})           {}
func (nopLogger) Errorf(string, ...interface{})          {}
func (nopLogger) Fatalf(string, ...interface{})          {}
func (n nopLogger) WithField(string, interface{}) Logger { return n }
func (n nopLogger) WithFields(Fields) Logger             { return n }
func (n nopLogger) WithError(error) Logger               { return n }
func (n nopLogger) With(...Field) Logger                 { return n }
func (n nopLogger) WithContext(context.Context) Logger   { return n }
func (n nopLogger) WithComponent(string) Logger          { return n }
func (nopLogger) SetLevel(Level)                         {}
func (nopLogger) GetLevel() Level                        { return FatalLevel }
