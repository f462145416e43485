// Command nidsdump decodes Level-III product files and prints a report for
// each. Volume files written by the service (.json.zst) are summarized
// instead.
//
// Usage:
//
//	go run ./cmd/nidsdump [-leading-header auto] [-features] FILE...
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/storm-data-nids/internal/adapter/filesystem"
	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/nids"
)

func main() {
	leading := flag.String("leading-header", "auto", "30-byte distribution header: auto, always or never")
	features := flag.Bool("features", false, "print point features as JSON lines")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	mode, err := nids.ParseLeadingHeaderMode(*leading)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	failed := 0
	for i, path := range flag.Args() {
		if i > 0 {
			fmt.Println()
		}
		if err := dump(os.Stdout, path, nids.Options{LeadingHeader: mode}, *features); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func dump(w io.Writer, path string, opts nids.Options, features bool) error {
	if strings.HasSuffix(path, ".json.zst") {
		return dumpVolume(w, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := nids.Decode(data, opts)
	if err != nil {
		return err
	}
	if err := filesystem.FormatReport(w, path, p); err != nil {
		return err
	}
	if !features {
		return nil
	}

	radar, _ := domain.ParseFileName(path)
	enc := json.NewEncoder(w)
	for _, e := range domain.FeatureEvents(radar, path, p) {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func dumpVolume(w io.Writer, path string) error {
	doc, err := filesystem.ReadVolume(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "volume:\t%s %s #%d at %s (complete=%t)\n",
		doc.Radar, doc.Family, doc.Number, doc.ScanTime.Format("2006-01-02T15:04:05Z"), doc.Complete)
	fmt.Fprintf(w, "radar:\t%.3f %.3f %.1f m\n", doc.Latitude, doc.Longitude, doc.AltitudeM)
	for _, l := range doc.Layers {
		shape := "no grid"
		switch {
		case l.Grid != nil:
			shape = fmt.Sprintf("%dx%d cells at %.3f km", l.Grid.Size, l.Grid.Size, l.Grid.SpacingKm)
		case l.Polar != nil:
			shape = fmt.Sprintf("%d radials x %d gates", l.Polar.Radials, l.Polar.Gates)
		}
		fmt.Fprintf(w, "layer:\t%s %s tilt %d %.1f deg, %s\n", l.Suffix, l.Product, l.TiltIndex, l.Elevation, shape)
	}
	return nil
}
