package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to be converted into a slog.Attr.
//
// Returns:
//   - slog.Attr: An attribute with the key "error" and the error's message as the value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// Panic renders a recovered panic value together with its stack trace.
func Panic(recovered any, stack []byte) slog.Attr {
	return slog.Group("panic",
		slog.String("value", fmt.Sprint(recovered)),
		slog.String("stack", string(stack)),
	)
}

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyTopic is the key for the event topic attribute.
	KeyTopic = "topic"
	// KeySubscriber is the key for the subscriber identity attribute.
	KeySubscriber = "subscriber"
	// KeyStage is the key for the executor stage attribute.
	KeyStage = "stage"
	// KeyEventID is the key for the event id attribute.
	KeyEventID = "event_id"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Topic returns the attribute used to tag records with an event topic.
func Topic(name string) slog.Attr {
	return slog.String(KeyTopic, name)
}

// Subscriber returns the attribute used to tag records with a handler identity.
func Subscriber(id string) slog.Attr {
	return slog.String(KeySubscriber, id)
}

// Stage returns the attribute used to tag records with an executor stage name.
func Stage(name string) slog.Attr {
	return slog.String(KeyStage, name)
}

// EventID returns the attribute used to tag records with an event id.
func EventID(id fmt.Stringer) slog.Attr {
	return Stringer(KeyEventID, id)
}
