// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package metaedit

import (
	"path/filepath"
	"runtime"
	"sync"
)

// Job is one file of a batch.
type Job struct {
	Path       string
	Operations []Operation
	// Output is the file to write; Path is overwritten when empty.
	Output string
}

func (j *Job) target() string {
	if j.Output != "" {
		return j.Output
	}
	return j.Path
}

// ApplyBatch applies each job to its own file, running up to workers jobs
// at once (GOMAXPROCS when workers < 1). Jobs share no state. A file may
// appear only once per batch, as input or output; repeated files fail with
// ErrDuplicateTarget. Options.Output is ignored. The returned slice holds
// one error per job.
func ApplyBatch(jobs []Job, workers int, opts *Options) []error {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	errs := make([]error, len(jobs))
	seen := make(map[string]bool)
	var pending []int
	for i := range jobs {
		files := []string{filepath.Clean(jobs[i].Path), filepath.Clean(jobs[i].target())}
		if seen[files[0]] || seen[files[1]] {
			errs[i] = &EditError{Kind: IOError, Op: "batch", Path: jobs[i].Path, Err: ErrDuplicateTarget}
			continue
		}
		seen[files[0]], seen[files[1]] = true, true
		pending = append(pending, i)
	}

	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(pending)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				job := &jobs[i]
				errs[i] = Apply(job.Path, job.Operations, &Options{Output: job.Output, Logger: opts.logger()})
				if opts != nil && opts.Progress != nil {
					opts.Progress(job.Path, errs[i])
				}
			}
		}()
	}
	for _, i := range pending {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return errs
}
