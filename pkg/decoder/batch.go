package decoder

import (
	"context"
	"os"

	"bitslicer/internal/models"
)

// FileResult is the outcome of decoding one file in a batch
type FileResult struct {
	Path   string
	Result *models.Result
	Err    error
}

// Observer is called from worker goroutines after each successful decode,
// while the slices are still valid. A returned error is recorded against the
// file.
type Observer func(index int, path string, res *models.Result, slices []models.Slice) error

// DecodeFiles decodes every file in paths using up to workers goroutines.
// Results are returned in input order. Failures are recorded per file rather
// than aborting the batch; files not started before ctx is cancelled get
// ctx.Err().
func (d *Decoder) DecodeFiles(ctx context.Context, paths []string, workers int, observe Observer) []FileResult {
	if workers < 1 {
		workers = 1
	}

	results := make([]FileResult, len(paths))
	for i, p := range paths {
		results[i].Path = p
	}

	type job struct {
		index int
		path  string
	}
	type outcome struct {
		index  int
		result *models.Result
		err    error
	}

	jobs := make(chan job)
	resultChan := make(chan outcome)

	for w := 0; w < workers; w++ {
		go func() {
			for j := range jobs {
				res, err := d.decodeFile(j.index, j.path, observe)
				resultChan <- outcome{index: j.index, result: res, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, p := range paths {
			select {
			case jobs <- job{index: i, path: p}:
			case <-ctx.Done():
				for k := i; k < len(paths); k++ {
					resultChan <- outcome{index: k, err: ctx.Err()}
				}
				return
			}
		}
	}()

	// Collect results
	for completed := 0; completed < len(paths); completed++ {
		res := <-resultChan
		results[res.index].Result = res.result
		results[res.index].Err = res.err
	}

	return results
}

func (d *Decoder) decodeFile(index int, path string, observe Observer) (*models.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := decodeImage(f)
	if err != nil {
		return nil, err
	}

	res, slices, err := d.Inspect(img)
	if err != nil {
		return nil, err
	}

	if observe != nil {
		if err := observe(index, path, res, slices); err != nil {
			return res, err
		}
	}
	return res, nil
}
