package pipeline

import (
	"bytes"

	"git.home.luguber.info/inful/docpipe/internal/executor"
)

// lineWriter turns a byte stream into sink lines. Carriage returns end a line
// as well, since git progress output rewrites lines in place.
type lineWriter struct {
	sink executor.LineSink
	buf  bytes.Buffer
}

func newLineWriter(sink executor.LineSink) *lineWriter {
	return &lineWriter{sink: sink}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.flush()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.sink(w.buf.String())
	w.buf.Reset()
}
