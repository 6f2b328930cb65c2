package tagreader

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/fbolanos/AutoHeadFixFB/internal/hardware"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
	"github.com/fbolanos/AutoHeadFixFB/internal/observability"
)

// DiagnosticKind classifies a framing anomaly. Diagnostics never block tag
// acquisition.
type DiagnosticKind int

const (
	DiagChecksumMismatch DiagnosticKind = iota + 1
	DiagDecodeError
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagChecksumMismatch:
		return "checksum_mismatch"
	case DiagDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

type Diagnostic struct {
	Kind   DiagnosticKind
	Record Record
	Err    error
}

type Options struct {
	// VerifyChecksum enables XOR checksum validation.
	VerifyChecksum bool
	Logger         zerolog.Logger
	Metrics        *observability.Metrics
	// OnDiagnostic, if set, receives every checksum or decode anomaly.
	OnDiagnostic func(Diagnostic)
}

type Decoder struct {
	src  hardware.ByteSource
	opts Options
	buf  [RecordLen]byte
}

func NewDecoder(src hardware.ByteSource, opts Options) *Decoder {
	return &Decoder{src: src, opts: opts}
}

// TryDecode returns (tag, true, nil) when a full record was available.
// With fewer than RecordLen bytes buffered it consumes nothing and returns
// ok=false. When several records are buffered (a tag lingering in range is
// re-transmitted) all are drained and the last decodable one wins.
//
// Checksum mismatches are reported but the decoded tag is still returned.
// If the data characters themselves are not hex that record yields no tag;
// it is consumed and reported, and ok is false unless an earlier record in
// the same drain decoded. Only errors from the byte source are returned.
func (d *Decoder) TryDecode() (types.TagID, bool, error) {
	var (
		tag types.TagID
		ok  bool
	)
	for {
		n, err := d.src.Available()
		if err != nil {
			return 0, false, fmt.Errorf("tagreader available: %w", err)
		}
		if n < RecordLen {
			return tag, ok, nil
		}

		if _, err := io.ReadFull(d.src, d.buf[:]); err != nil {
			return 0, false, fmt.Errorf("tagreader read: %w", err)
		}
		rec := splitRecord(d.buf[:])

		if d.opts.VerifyChecksum {
			d.check(rec)
		}

		t, err := rec.Tag()
		if err != nil {
			// Verify already reported malformed data when checksums are on.
			if !d.opts.VerifyChecksum {
				d.report(Diagnostic{Kind: DiagDecodeError, Record: rec, Err: err})
			}
			continue
		}
		d.opts.Metrics.TagDecoded()
		tag, ok = t, true
	}
}

func (d *Decoder) check(rec Record) {
	err := rec.Verify()
	switch {
	case err == nil:
	case errors.Is(err, ErrChecksumMismatch):
		d.report(Diagnostic{Kind: DiagChecksumMismatch, Record: rec, Err: err})
	default:
		d.report(Diagnostic{Kind: DiagDecodeError, Record: rec, Err: err})
	}
}

func (d *Decoder) report(diag Diagnostic) {
	switch diag.Kind {
	case DiagChecksumMismatch:
		d.opts.Metrics.ChecksumError()
		d.opts.Logger.Warn().
			Str("data", string(diag.Record.Data[:])).
			Str("checksum", string(diag.Record.Checksum[:])).
			Err(diag.Err).
			Msg("tag reader checksum error, tag was not read fully")
	default:
		d.opts.Metrics.DecodeError()
		d.opts.Logger.Warn().
			Str("data", string(diag.Record.Data[:])).
			Err(diag.Err).
			Msg("error reading the tag properly")
	}
	if d.opts.OnDiagnostic != nil {
		d.opts.OnDiagnostic(diag)
	}
}
