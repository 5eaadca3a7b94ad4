// Package emitter turns CSV rows into events and delivers them.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brensch/csvevents/internal/config"
	"github.com/brensch/csvevents/internal/mapping"
	"github.com/brensch/csvevents/internal/util"
)

// AppNameField carries the data type of the file an event came from.
const AppNameField = "app_name"

// Output formats for testing mode.
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// StampLayout is used in testing-mode output file names.
const StampLayout = "20060102T150405Z"

// ErrUnknownFormat is returned for an unsupported testing output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Event is one normalized output object.
type Event map[string]string

// Emitter delivers events. Emit errors are per event; callers log them and
// carry on with the next row.
type Emitter interface {
	Emit(ctx context.Context, dataType string, event Event) error
	Close() error
}

// MapEvent selects and renames the columns of row present in the data
// type's field map and tags the result with the data type.
func MapEvent(row util.Row, mappings mapping.FieldMappings, dataType string) Event {
	fm, _ := mappings.For(dataType)
	out := make(Event, len(fm)+1)
	for src, dest := range fm {
		if v, ok := row[src]; ok {
			out[dest] = v
		}
	}
	out[AppNameField] = dataType
	return out
}

// Encode serializes an event as a single line of JSON with sorted keys.
func Encode(event Event) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return b, nil
}

// Options picks and configures an Emitter.
type Options struct {
	// Testing writes events to local files under OutputDir instead of forwarding.
	Testing      bool
	OutputDir    string
	OutputFormat string

	Forwarder config.ForwarderConfig
	Mappings  mapping.FieldMappings

	Now    func() time.Time
	Logger *slog.Logger
}

// New builds the emitter selected by opts.
func New(opts Options) (Emitter, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	stamp := opts.Now().UTC().Format(StampLayout)

	if opts.Testing {
		switch opts.OutputFormat {
		case "", FormatJSON:
			fe, err := NewFileEmitter(opts.OutputDir, stamp)
			if err != nil {
				return nil, err
			}
			return fe, nil
		case FormatParquet:
			return NewParquetEmitter(opts.OutputDir, stamp, opts.Mappings, opts.Logger), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.OutputFormat)
		}
	}

	switch opts.Forwarder.Type {
	case config.ForwarderHTTP:
		return NewHTTPEmitter(util.DefaultHTTPClient(opts.Forwarder.Timeout), opts.Forwarder.URL, opts.Forwarder.Token), nil
	case config.ForwarderSyslog, "":
		se, err := DialSyslog(opts.Forwarder.Network, opts.Forwarder.Address)
		if err != nil {
			return nil, err
		}
		return se, nil
	default:
		return nil, fmt.Errorf("unknown forwarder type %q", opts.Forwarder.Type)
	}
}

// HTTPEmitter posts each event as JSON to a collector endpoint.
type HTTPEmitter struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPEmitter returns an emitter posting to url with an optional bearer token.
func NewHTTPEmitter(client *http.Client, url, token string) *HTTPEmitter {
	return &HTTPEmitter{client: client, url: url, token: token}
}

func (e *HTTPEmitter) Emit(ctx context.Context, _ string, event Event) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	return util.PostJSON(ctx, e.client, e.url, e.token, body)
}

func (e *HTTPEmitter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
