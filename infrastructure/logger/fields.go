package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field is a zap field.
type Field = zap.Field

func String(key, val string) Field                 { return zap.String(key, val) }
func Strings(key string, val []string) Field       { return zap.Strings(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Int64(key string, val int64) Field            { return zap.Int64(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Any(key string, val any) Field                { return zap.Any(key, val) }

// Error logs err under "error".
func Error(err error) Field { return zap.Error(err) }

// Component tags entries from one part of the agent.
func Component(name string) Field { return zap.String("component", name) }

// ItemID tags entries about one content item.
func ItemID(id string) Field { return zap.String("item_id", id) }
