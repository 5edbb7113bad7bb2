package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
)

// ReplayResult is the ordered event sequence plus a corruption count for
// interior (non-tail) malformed lines.
type ReplayResult struct {
	Records      []Record
	CorruptLines int
}

// Replay reads path line by line and parses each as a Record. A line that
// fails to parse AND has no trailing newline (i.e. it is the last partial
// write in the file) is treated as a torn tail from a crash mid-append and
// is silently dropped, per spec.md §4.3 "Replay" / §4.6 "Corrupt tail
// entries are skipped ... but do not abort startup". A malformed line that
// DOES have a trailing newline is interior corruption: it is skipped and
// counted, and replay continues past it.
func Replay(path string) (ReplayResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ReplayResult{}, nil
	}
	if err != nil {
		return ReplayResult{}, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var result ReplayResult

	for {
		line, readErr := r.ReadString('\n')
		hadNewline := strings.HasSuffix(line, "\n")
		trimmed := strings.TrimRight(line, "\n")

		if trimmed != "" {
			var rec Record
			if uerr := json.Unmarshal([]byte(trimmed), &rec); uerr != nil {
				if !hadNewline {
					// torn tail: stop quietly, do not count as corruption
					break
				}
				result.CorruptLines++
			} else {
				result.Records = append(result.Records, rec)
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return result, readErr
		}
	}
	return result, nil
}
