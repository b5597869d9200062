package printer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/logger"
)

// SpoolSink writes each job as a PDF file into a directory watched by the
// print server
type SpoolSink struct {
	dir string
	log zerolog.Logger
}

func NewSpoolSink(dir string) (*SpoolSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrapf(err, "create spool dir %s", dir)
	}
	return &SpoolSink{dir: dir, log: logger.Component("printer")}, nil
}

// Send writes to a temp file and renames, so watchers never see partial files
func (s *SpoolSink) Send(ctx context.Context, name string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	final := filepath.Join(s.dir, name+".pdf")
	tmp := final + ".part"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return errs.Wrapf(err, "spool %s", name)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return errs.Wrapf(err, "spool %s", name)
	}
	s.log.Debug().Str("file", final).Int("bytes", len(doc)).Msg("label spooled")
	return nil
}

// RawSink streams documents to a network printer (JetDirect, port 9100)
type RawSink struct {
	addr    string
	timeout time.Duration
	log     zerolog.Logger
}

func NewRawSink(addr string) *RawSink {
	return &RawSink{addr: addr, timeout: 10 * time.Second, log: logger.Component("printer")}
}

func (s *RawSink) Send(ctx context.Context, name string, doc []byte) error {
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return errs.Mark(errs.Wrapf(err, "dial printer %s", s.addr), errs.ErrExternal)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)

	if _, err := conn.Write(doc); err != nil {
		return errs.Mark(errs.Wrapf(err, "write to printer %s", s.addr), errs.ErrExternal)
	}
	s.log.Debug().Str("job_id", name).Str("printer", s.addr).Int("bytes", len(doc)).Msg("label sent")
	return nil
}

// Sink is satisfied by SpoolSink and RawSink
type Sink interface {
	Send(ctx context.Context, name string, doc []byte) error
}

// NewSink picks the sink configured by PRINTER_MODE
func NewSink(cfg config.PrinterConfig) (Sink, error) {
	switch cfg.Mode {
	case "raw":
		if cfg.Address == "" {
			return nil, errs.New("PRINTER_ADDRESS is required in raw mode")
		}
		if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
			return nil, errs.Wrapf(err, "invalid PRINTER_ADDRESS %q", cfg.Address)
		}
		return NewRawSink(cfg.Address), nil
	case "", "spool":
		return NewSpoolSink(cfg.SpoolDir)
	}
	return nil, errs.Newf("unknown PRINTER_MODE %q", cfg.Mode)
}
