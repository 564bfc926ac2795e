package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptLine writes label to out and reads one line from in. Used for
// values not given as flags.
func promptLine(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
