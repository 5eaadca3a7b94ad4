package emitter

import (
	"context"
	"fmt"
	"log/syslog"
)

// SyslogTag is the program tag attached to forwarded events.
const SyslogTag = "csvEvents"

type syslogWriter interface {
	Info(m string) error
	Close() error
}

// SyslogEmitter writes one JSON line per event to syslog facility LOCAL7.
type SyslogEmitter struct {
	w syslogWriter
}

// DialSyslog connects to the local syslog daemon when network is empty,
// otherwise to a remote collector over udp or tcp.
func DialSyslog(network, address string) (*SyslogEmitter, error) {
	w, err := syslog.Dial(network, address, syslog.LOG_LOCAL7|syslog.LOG_INFO, SyslogTag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog %s %s: %w", network, address, err)
	}
	return &SyslogEmitter{w: w}, nil
}

func (e *SyslogEmitter) Emit(ctx context.Context, _ string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(event)
	if err != nil {
		return err
	}
	if err := e.w.Info(string(b)); err != nil {
		return fmt.Errorf("syslog write: %w", err)
	}
	return nil
}

func (e *SyslogEmitter) Close() error {
	return e.w.Close()
}
