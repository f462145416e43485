package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/nids"
)

// decoded is the outcome of decoding one file.
type decoded struct {
	file    domain.RawFile
	radar   string
	suffix  string
	product *nids.Product
	err     error
	elapsed time.Duration
}

// decodeBatch decodes files on up to Workers goroutines. Results keep the
// order of files.
func (p *Pipeline) decodeBatch(files []domain.RawFile) []decoded {
	out := make([]decoded, len(files))
	sem := make(chan struct{}, p.opts.Workers)
	var wg sync.WaitGroup
	for i, f := range files {
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			out[i] = p.decodeFile(f)
		})
	}
	wg.Wait()
	return out
}

func (p *Pipeline) decodeFile(f domain.RawFile) decoded {
	d := decoded{file: f}
	d.radar, d.suffix = domain.ParseFileName(f.Name)

	start := time.Now()
	product, err := nids.Decode(f.Data, p.opts.Decode)
	d.elapsed = time.Since(start)
	if err != nil {
		d.err = fmt.Errorf("decode %s: %w", f.Path, err)
		return d
	}
	d.product = product
	if d.radar == "" {
		d.radar = fmt.Sprintf("SRC%d", product.Header.Source)
	}
	return d
}
