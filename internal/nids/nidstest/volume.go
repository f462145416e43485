package nidstest

import (
	"fmt"
	"math"
	"time"
)

// Site is the radar synthetic products are placed at.
type Site struct {
	ID        string
	Latitude  float64
	Longitude float64
	HeightFt  int16
}

// KTLX is Oklahoma City / Twin Lakes.
var KTLX = Site{ID: "KTLX", Latitude: 35.333, Longitude: -97.278, HeightFt: 1200}

// File is one encoded product with the name it is written under.
type File struct {
	Name string
	Data []byte
}

// FileName returns <radar>_<suffix>_<YYYYMMDD>_<HHMMSS>.
func FileName(radar, suffix string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s", radar, suffix, t.UTC().Format("20060102_150405"))
}

// SRMTilt encodes a storm-relative velocity tilt: 36 radials of 16 one-km
// gates whose levels rotate with azimuth and elevation.
func SRMTilt(site Site, suffix string, volume uint16, scan time.Time, tilt int16, elevation float64) (File, error) {
	const nRadials, nBins = 36, 16
	packet := RadialPacket{RunLength: true, NumBins: nBins}
	for r := range nRadials {
		level := uint8(1 + (r+int(tilt))%14)
		packet.Radials = append(packet.Radials, Radial{
			StartAngle: float64(r) * 10,
			DeltaAngle: 10,
			Data:       Runs([2]uint8{8, level}, [2]uint8{8, 15 - level}),
		})
	}
	p := Product{
		Code:            56,
		Source:          1,
		Latitude:        site.Latitude,
		Longitude:       site.Longitude,
		HeightFt:        site.HeightFt,
		VCP:             212,
		VolumeNumber:    volume,
		VolumeTime:      scan,
		ElevationNumber: tilt,
		Halfwords:       map[int]uint16{30: uint16(int16(math.Round(elevation * 10)))},
		Layers:          [][]byte{packet.Bytes()},
	}
	data, err := p.Bytes()
	if err != nil {
		return File{}, err
	}
	return File{Name: FileName(site.ID, suffix, scan), Data: data}, nil
}

// SRMVolume encodes one tilt per suffix, lowest first. Elevations step from
// 0.5 degrees by 0.4 degrees.
func SRMVolume(site Site, volume uint16, scan time.Time, suffixes ...string) ([]File, error) {
	files := make([]File, 0, len(suffixes))
	for i, s := range suffixes {
		f, err := SRMTilt(site, s, volume, scan, int16(i+1), 0.5+0.4*float64(i))
		if err != nil {
			return nil, fmt.Errorf("tilt %s: %w", s, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// HailIndex encodes a hail index product (suffix NHI) holding cells.
func HailIndex(site Site, volume uint16, scan time.Time, cells ...SymbolPacket) (File, error) {
	p := Product{
		Code:         59,
		Source:       1,
		Latitude:     site.Latitude,
		Longitude:    site.Longitude,
		HeightFt:     site.HeightFt,
		VolumeNumber: volume,
		VolumeTime:   scan,
		Layers:       [][]byte{Symbols(cells...)},
	}
	data, err := p.Bytes()
	if err != nil {
		return File{}, err
	}
	return File{Name: FileName(site.ID, "NHI", scan), Data: data}, nil
}
