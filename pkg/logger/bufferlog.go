// Package logger implements a per-upload in-memory log buffer.
//
// Detailed parse lines accumulate while an upload is being processed.
// On failure the buffer is replayed followed by the final error, so the
// operator sees the whole story; on success the buffer is dropped and a
// single short line is written. Thread safety comes from a dedicated
// logger goroutine fed over a command channel; no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act      action
	uploadID string
	message  string    // for Append
	filename string    // for Success
	err      error     // for FlushError
	when     time.Time // arrival order marker
}

var ch = make(chan cmd, 128) // headroom for upload bursts

// Begin starts buffering for uploadID.
func Begin(uploadID string) { ch <- cmd{act: actBegin, uploadID: uploadID, when: time.Now()} }

// Append adds one detailed log line to the upload's buffer.
func Append(uploadID, msg string) {
	ch <- cmd{act: actAppend, uploadID: uploadID, message: msg, when: time.Now()}
}

// Success drops the buffer and writes one short confirmation line.
func Success(uploadID, filename string) {
	ch <- cmd{act: actSuccess, uploadID: uploadID, filename: filename, when: time.Now()}
}

// FlushError replays the buffered lines followed by the final error.
func FlushError(uploadID string, err error) {
	ch <- cmd{act: actFlushErr, uploadID: uploadID, err: err, when: time.Now()}
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.uploadID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.uploadID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer, write straight through
			}

		case actSuccess:
			log.Printf("[%-8s][upload] processed %q", c.uploadID, c.filename)
			delete(buffers, c.uploadID)

		case actFlushErr:
			if b := buffers[c.uploadID]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					log.Print(ln)
				}
				delete(buffers, c.uploadID)
			}
			log.Printf("[%-8s][error] %v", c.uploadID, c.err)
		}
	}
}
