// Package ipc defines the single-message side channel between the Builder
// and its build child: a line of JSON on an inherited pipe, either `{}`
// (success) or carrying a structured error (spec §4.3, §6).
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Result is the one terminal message a build child ever writes. A zero
// Result (both fields empty) means success; it is written as `{}`, and a
// `null` line also decodes to it.
type Result struct {
	Message   string `json:"message,omitempty"`
	MsgPublic string `json:"msgPublic,omitempty"`
}

// Success reports whether r represents a successful build.
func (r Result) Success() bool { return r.Message == "" && r.MsgPublic == "" }

// WriteResult writes r as a single JSON line to w. Called exactly once by
// the build child before it exits.
func WriteResult(w io.Writer, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal ipc result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadResult reads the single terminal JSON line the build child writes to
// r. It returns io.EOF if the child closed the pipe without ever writing —
// the caller (Builder) treats that as "no IPC message received" and
// synthesizes an error from the child's exit code instead.
func ReadResult(r io.Reader) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, io.EOF
	}
	var res Result
	if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
		return Result{}, fmt.Errorf("unmarshal ipc result: %w", err)
	}
	return res, nil
}
