// Package logging provides categorized zap-backed logging for vendora.
// Each subsystem logs through its own named logger so operators can follow a
// single tier (engine, dispatch, specialist, validator, model, warehouse,
// cache, store) without wading through the rest.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryEngine     Category = "engine"     // Flow engine state machine
	CategoryDispatch   Category = "dispatch"   // Tier-1 classification and formatting
	CategorySpecialist Category = "specialist" // Tier-2 drafting
	CategoryValidator  Category = "validator"  // Tier-3 quality gate
	CategoryModel      Category = "model"      // Model client façade
	CategoryWarehouse  Category = "warehouse"  // Warehouse client façade
	CategoryCache      Category = "cache"      // Result cache
	CategoryStore      Category = "store"      // Task store
)

var (
	mu      sync.RWMutex
	root    *zap.SugaredLogger
	loggers = make(map[Category]*zap.SugaredLogger)
)

func init() {
	// Until Initialize runs, log to a no-op core so early callers are safe.
	root = zap.NewNop().Sugar()
}

// Initialize installs the process-wide logger at the given level
// ("debug", "info", "warn", "error"). Call once at startup.
func Initialize(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var lvl zapcore.Level
	if err := lvl.Set(strings.ToLower(strings.TrimSpace(level))); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}
	install(logger.Sugar())
	return nil
}

// InitializeNop silences all logging. Used by tests.
func InitializeNop() {
	install(zap.NewNop().Sugar())
}

func install(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Get returns the named logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Safe to call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Convenience helpers, one pair per subsystem.

func Engine(format string, args ...any)          { Get(CategoryEngine).Infof(format, args...) }
func EngineDebug(format string, args ...any)     { Get(CategoryEngine).Debugf(format, args...) }
func Dispatch(format string, args ...any)        { Get(CategoryDispatch).Infof(format, args...) }
func DispatchDebug(format string, args ...any)   { Get(CategoryDispatch).Debugf(format, args...) }
func Specialist(format string, args ...any)      { Get(CategorySpecialist).Infof(format, args...) }
func SpecialistDebug(format string, args ...any) { Get(CategorySpecialist).Debugf(format, args...) }
func Validator(format string, args ...any)       { Get(CategoryValidator).Infof(format, args...) }
func ValidatorDebug(format string, args ...any)  { Get(CategoryValidator).Debugf(format, args...) }
func Model(format string, args ...any)           { Get(CategoryModel).Infof(format, args...) }
func ModelDebug(format string, args ...any)      { Get(CategoryModel).Debugf(format, args...) }
func Warehouse(format string, args ...any)       { Get(CategoryWarehouse).Infof(format, args...) }
func WarehouseDebug(format string, args ...any)  { Get(CategoryWarehouse).Debugf(format, args...) }
func Cache(format string, args ...any)           { Get(CategoryCache).Infof(format, args...) }
func CacheDebug(format string, args ...any)      { Get(CategoryCache).Debugf(format, args...) }
func Store(format string, args ...any)           { Get(CategoryStore).Infof(format, args...) }
func StoreDebug(format string, args ...any)      { Get(CategoryStore).Debugf(format, args...) }
