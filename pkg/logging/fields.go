package logging

import (
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Domain fields

func Component(name string) Field {
	return String("component", name)
}

func Database(name string) Field {
	return String("database", name)
}

func TxID(id uint64) Field {
	return Uint64("tx_id", id)
}

func Scope(id string) Field {
	return String("scope", id)
}

func Setting(key string) Field {
	return String("setting", key)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Path(p string) Field {
	return String("path", p)
}
