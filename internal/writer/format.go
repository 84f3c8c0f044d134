package writer

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenko/msgpack/v5"

	"github.com/yourorg/kb-extract/internal/models"
)

// Format selects the key-value store encoding.
type Format string

const (
	// JSONLines writes one JSON object per line.
	JSONLines Format = "JSONLines"
	// MessagePack writes consecutive self-delimiting msgpack maps.
	MessagePack Format = "MessagePack"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat accepts the canonical names and the file extensions, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jsonlines", "jsonl":
		return JSONLines, nil
	case "messagepack", "msgpack":
		return MessagePack, nil
	default:
		return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
	}
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	if f == JSONLines {
		return "jsonl"
	}
	return "msgpack"
}

type entryEncoder interface {
	Encode(v any) error
}

func newEncoder(f Format, w io.Writer) entryEncoder {
	if f == JSONLines {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc
	}
	return msgpack.NewEncoder(w)
}

// Decoder reads entries back from a key-value store stream.
type Decoder struct {
	json *json.Decoder
	mp   *msgpack.Decoder
}

func NewDecoder(f Format, r io.Reader) *Decoder {
	if f == JSONLines {
		return &Decoder{json: json.NewDecoder(r)}
	}
	return &Decoder{mp: msgpack.NewDecoder(r)}
}

// Next decodes the next entry; io.EOF marks the end of the stream.
func (d *Decoder) Next() (models.Entry, error) {
	var e models.Entry
	var err error
	if d.json != nil {
		err = d.json.Decode(&e)
	} else {
		err = d.mp.Decode(&e)
	}
	return e, err
}
