// Command genmock writes synthetic Level-III product files for local runs
// and demos: a sequence of storm-relative velocity volumes and one hail
// index product per volume, named the way the service expects.
//
// Usage:
//
//	go run ./cmd/genmock -out data/nids -volumes 3
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-data-nids/internal/nids/nidstest"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

var baseTime = time.Date(2024, time.May, 20, 22, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write product files to")
	volumes := flag.Int("volumes", 2, "number of consecutive volumes")
	interval := flag.Duration("interval", 5*time.Minute, "time between volume scans")
	flag.Parse()

	if *out == "" || *volumes < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	family, _ := volume.DefaultFamilies().Lookup("N0S")
	written := 0
	for n := range *volumes {
		scan := baseTime.Add(time.Duration(n) * *interval)
		number := uint16(n + 1)

		files, err := nidstest.SRMVolume(nidstest.KTLX, number, scan, family.Suffixes...)
		if err != nil {
			return err
		}
		hail, err := nidstest.HailIndex(nidstest.KTLX, number, scan,
			nidstest.Hail(int16(40+8*n), -80, 70, 30, 2),
			nidstest.StormID(int16(40+8*n), -80, fmt.Sprintf("A%d", n)),
		)
		if err != nil {
			return err
		}
		for _, f := range append(files, hail) {
			if err := os.WriteFile(filepath.Join(*out, f.Name), f.Data, 0o644); err != nil {
				return err
			}
			written++
		}
	}

	fmt.Printf("wrote %d product files to %s\n", written, *out)
	return nil
}
