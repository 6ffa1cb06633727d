package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339Nano)}
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

// Domain helpers

func Component(name string) Field {
	return String("component", name)
}

func TaskID(id string) Field {
	return String("task_id", id)
}

func FulfillmentID(id string) Field {
	return String("fulfillment_id", id)
}

func Participant(name string) Field {
	return String("participant", name)
}

func Endpoint(name string) Field {
	return String("endpoint", name)
}

func Service(name string) Field {
	return String("service", name)
}

func Address(addr string) Field {
	return String("address", addr)
}

func Method(name string) Field {
	return String("method", name)
}

func Status(s string) Field {
	return String("status", s)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Attempt(n int) Field {
	return Int("attempt", n)
}
