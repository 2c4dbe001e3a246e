package chunked

import (
	"io"
	"net/http"
	"strconv"
)

// Writer frames everything written to it as chunks. Close or
// CloseWithTrailer must be called to end the body.
type Writer struct {
	w   io.Writer
	hdr []byte
}

func NewChunkedWriter(w io.Writer) *Writer {
	return &Writer{w: w, hdr: make([]byte, 0, 18)}
}

// Write emits p as a single chunk. An empty p writes nothing, a zero
// length chunk would end the body.
func (cw *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	cw.hdr = strconv.AppendInt(cw.hdr[:0], int64(len(p)), 16)
	cw.hdr = append(cw.hdr, '\r', '\n')
	if _, err := cw.w.Write(cw.hdr); err != nil {
		return 0, err
	}
	n, err := cw.w.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(cw.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

func (cw *Writer) Close() error { return cw.CloseWithTrailer(nil) }

// CloseWithTrailer writes the last chunk followed by trailer.
func (cw *Writer) CloseWithTrailer(trailer http.Header) error {
	if _, err := io.WriteString(cw.w, "0\r\n"); err != nil {
		return err
	}
	if len(trailer) > 0 {
		if err := trailer.Write(cw.w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(cw.w, "\r\n")
	return err
}
