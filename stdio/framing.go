package stdio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elnormous/contenttype"
)

// DefaultContentType is assumed when a message carries no Content-Type.
const DefaultContentType = "application/vscode-jsonrpc; charset=utf-8"

// DefaultMaxMessageSize bounds message bodies unless WithMaxMessageSize says
// otherwise.
const DefaultMaxMessageSize = 64 << 20

// maxHeaderLine bounds a single header line.
const maxHeaderLine = 8 << 10

var (
	// ErrInvalidHeader is returned for header lines that cannot be parsed.
	// The stream cannot be resynchronised after one.
	ErrInvalidHeader = errors.New("invalid message header")
	// ErrMissingContentLength is returned for a header block without
	// Content-Length.
	ErrMissingContentLength = errors.New("missing Content-Length header")
	// ErrMessageTooLarge is returned when Content-Length exceeds the limit.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrUnsupportedContentType is returned, after the body has been
	// consumed, for messages whose Content-Type is not JSON-RPC in UTF-8.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

var (
	jsonrpcMediaType = contenttype.NewMediaType("application/vscode-jsonrpc")
	jsonMediaType    = contenttype.NewMediaType("application/json")
)

type frameReader struct {
	br  *bufio.Reader
	max int
}

func newFrameReader(r io.Reader, max int) *frameReader {
	if max <= 0 {
		max = DefaultMaxMessageSize
	}
	return &frameReader{br: bufio.NewReaderSize(r, maxHeaderLine), max: max}
}

// read returns the next message body. io.EOF means the stream ended cleanly
// between messages.
func (fr *frameReader) read() ([]byte, error) {
	length := -1
	var ctypeErr error
	sawHeader := false

	for {
		raw, err := fr.br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("%w: header line exceeds %d bytes", ErrInvalidHeader, maxHeaderLine)
		}
		line := string(raw)
		if err != nil {
			if errors.Is(err, io.EOF) && !sawHeader && strings.TrimSpace(line) == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !sawHeader {
				// tolerate stray blank lines between messages
				continue
			}
			break
		}
		sawHeader = true

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: Content-Length %q", ErrInvalidHeader, value)
			}
			length = n
		case "content-type":
			ctypeErr = checkContentType(value)
		}
	}

	if length < 0 {
		return nil, ErrMissingContentLength
	}
	if length > fr.max {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(fr.br, body); err != nil {
		return nil, fmt.Errorf("read body: %w", io.ErrUnexpectedEOF)
	}
	if ctypeErr != nil {
		return nil, ctypeErr
	}
	return body, nil
}

func checkContentType(value string) error {
	mt := contenttype.NewMediaType(value)
	if mt.Type == "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, value)
	}
	if !sameMIME(mt, jsonrpcMediaType) && !sameMIME(mt, jsonMediaType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, value)
	}
	if charset, ok := mt.Parameters["charset"]; ok {
		switch strings.ToLower(charset) {
		case "utf-8", "utf8":
		default:
			return fmt.Errorf("%w: charset %q", ErrUnsupportedContentType, charset)
		}
	}
	return nil
}

func sameMIME(a, b contenttype.MediaType) bool {
	return strings.EqualFold(a.Type, b.Type) && strings.EqualFold(a.Subtype, b.Subtype)
}

// writeFrame writes body with its header and flushes.
func writeFrame(w *bufio.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Flush()
}
