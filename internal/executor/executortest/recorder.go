// Package executortest provides a scripted executor.Runner for tests.
package executortest

import (
	"context"
	"strings"
	"sync"

	"github.com/renderhost/chrome-installer/internal/executor"
)

// Response is the scripted outcome for commands matching a prefix.
type Response struct {
	Result *executor.Result
	Err    error
	// Do runs before the response is returned, e.g. to create files an
	// external tool would have produced.
	Do func(cmd executor.Command)
}

// Recorder records every command it is asked to run and answers from a
// prefix table. Unmatched commands succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	responses []prefixResponse
	calls     []executor.Command
}

type prefixResponse struct {
	prefix string
	resp   Response
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// On registers a response for commands whose argv string starts with prefix.
// Earlier registrations win.
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, prefixResponse{prefix: prefix, resp: resp})
	return r
}

// Run implements executor.Runner.
func (r *Recorder) Run(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	var matched *Response
	line := cmd.String()
	for i := range r.responses {
		if strings.HasPrefix(line, r.responses[i].prefix) {
			matched = &r.responses[i].resp
			break
		}
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &executor.Result{ExitCode: -1}, err
	}
	if matched == nil {
		return &executor.Result{}, nil
	}
	if matched.Do != nil {
		matched.Do(cmd)
	}
	result := matched.Result
	if result == nil {
		result = &executor.Result{}
		if matched.Err != nil {
			result.ExitCode = 1
		}
	}
	return result, matched.Err
}

// Calls returns the argv strings of every command run so far.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.String())
	}
	return out
}

// Commands returns the raw commands run so far.
func (r *Recorder) Commands() []executor.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]executor.Command(nil), r.calls...)
}
