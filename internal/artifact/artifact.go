// Package artifact defines the header that marks generated outputs as
// managed by kettle and the helpers that read and write it.
package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Header is the first line of every generated output. Discovery compares
// it byte-for-byte, so it must never change between writer and reader. The
// text matches outputs produced by the CoffeeScript symfony plugin, which
// lets `kettle clean` manage files that plugin generated.
const Header = "/* This JS is autocompiled by CoffeeScript parser. Don't edit it manually. */"

// maxHeaderScan bounds how much of a file is read when looking for the header.
const maxHeaderScan = 1024

// Wrap prepends the header and a blank separator line to body.
func Wrap(body []byte) []byte {
	out := make([]byte, 0, len(Header)+2+len(body))
	out = append(out, Header...)
	out = append(out, '\n', '\n')
	return append(out, body...)
}

// Body strips the header and separator written by Wrap. ok is false when
// content does not start with the header line.
func Body(content []byte) ([]byte, bool) {
	line, rest, found := bytes.Cut(content, []byte("\n"))
	if !bytes.Equal(line, []byte(Header)) {
		return nil, false
	}
	if !found {
		return nil, true
	}
	return bytes.TrimPrefix(rest, []byte("\n")), true
}

// IsManaged reports whether the file at path starts with Header.
func IsManaged(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	reader := bufio.NewReaderSize(io.LimitReader(file, maxHeaderScan), maxHeaderScan)
	line, err := reader.ReadSlice('\n')
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return false, fmt.Errorf("read header of %s: %w", path, err)
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.Equal(line, []byte(Header)), nil
}
