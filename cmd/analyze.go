// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/calyptra/azimuth/pkg/capture"
	"github.com/calyptra/azimuth/pkg/ld19"
)

var analyzeBucketDeg float64

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture-file>",
	Short: "Statistical report over a capture",
	Long: `Decode a capture and report stream integrity, distance and intensity
statistics, and angular coverage.

Rates are computed against the sensor's own millisecond clock, so they
hold regardless of how fast the capture was recorded or replayed.

Exit codes:
  0 - Report printed
  1 - Capture unreadable or no decodable packets`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().Float64Var(&analyzeBucketDeg, "bucket-deg", 10, "Angular bucket width in degrees for the coverage table")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	if analyzeBucketDeg < 1 || analyzeBucketDeg > 120 {
		return fmt.Errorf("--bucket-deg must be between 1 and 120")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	cr, err := capture.OpenReader(f)
	if err != nil {
		return err
	}

	fmt.Printf("Capture: %s\n", path)
	fmt.Printf("Header:  %s\n", cr.Header())
	fmt.Println()

	report, err := analyzeStream(cr)
	if err != nil {
		return err
	}
	if report.packets == 0 {
		return fmt.Errorf("no decodable packets in %s", path)
	}

	report.print()
	return nil
}

// analyzeReport accumulates everything the report prints.
type analyzeReport struct {
	bytesRead     int
	packets       int
	crcErrors     int
	syncLosses    int
	syncLossBytes int
	rotations     int

	// Sensor-clock span in milliseconds, from wrap-corrected timestamp
	// deltas between consecutive packets.
	sensorMS float64

	distances   []float64 // meters, returns only
	intensities []float64 // returns only
	noReturns   int

	buckets []int
}

func analyzeStream(r io.Reader) (*analyzeReport, error) {
	bucketCount := int(math.Round(360 / analyzeBucketDeg))
	rep := &analyzeReport{buckets: make([]int, bucketCount)}

	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	buf := make([]byte, 4096)

	lastTS := -1
	lastStart := 0.0

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			rep.bytesRead += n
			stream.Write(buf[:n])
			for {
				before := stream.Len()
				packet, derr := decoder.Decode(stream)
				if derr != nil {
					rep.crcErrors++
					continue
				}
				if packet == nil {
					if dropped := before - stream.Len(); dropped > 0 {
						rep.syncLosses++
						rep.syncLossBytes += dropped
					}
					break
				}
				rep.packets++

				if lastTS >= 0 {
					d := int(packet.Timestamp) - lastTS
					if d < 0 {
						d += 65536
					}
					rep.sensorMS += float64(d)
				}
				lastTS = int(packet.Timestamp)

				start := packet.StartAngleDeg()
				if start < lastStart {
					rep.rotations++
				}
				lastStart = start

				for angle, pt := range packet.Angles() {
					if pt.Distance == 0 {
						rep.noReturns++
						continue
					}
					rep.distances = append(rep.distances, pt.DistanceMeters())
					rep.intensities = append(rep.intensities, float64(pt.Intensity))
					idx := int(angle/analyzeBucketDeg) % bucketCount
					rep.buckets[idx]++
				}
			}
		}
		if rerr == io.EOF {
			return rep, nil
		}
		if rerr != nil {
			return nil, fmt.Errorf("read failed: %w", rerr)
		}
	}
}

func (rep *analyzeReport) print() {
	fmt.Println("=== Stream ===")
	fmt.Printf("Bytes:           %10d\n", rep.bytesRead)
	fmt.Printf("Packets:         %10d\n", rep.packets)
	if rep.crcErrors > 0 {
		pct := float64(rep.crcErrors) * 100 / float64(rep.packets+rep.crcErrors)
		fmt.Printf("CRC Errors:      %10d (%.1f%%)\n", rep.crcErrors, pct)
	}
	if rep.syncLosses > 0 {
		fmt.Printf("Sync Losses:     %10d (%d bytes)\n", rep.syncLosses, rep.syncLossBytes)
	}
	if rep.sensorMS > 0 {
		sec := rep.sensorMS / 1000
		fmt.Printf("Sensor Time:     %10.2f s\n", sec)
		fmt.Printf("Packet Rate:     %10.1f pkts/s\n", float64(rep.packets)/sec)
		fmt.Printf("Sample Rate:     %10.0f pts/s\n", float64(rep.packets)*ld19.PointsPerPacket/sec)
		if rep.rotations > 0 {
			fmt.Printf("Rotations:       %10d\n", rep.rotations)
			fmt.Printf("Rotation Rate:   %10.2f Hz\n", float64(rep.rotations)/sec)
		}
	}
	fmt.Println()

	samples := len(rep.distances) + rep.noReturns
	fmt.Println("=== Distance (m) ===")
	if len(rep.distances) == 0 {
		fmt.Println("No returns in capture")
		fmt.Println()
		return
	}
	retPct := float64(len(rep.distances)) * 100 / float64(samples)
	fmt.Printf("Returns:         %10d (%.1f%% of samples)\n", len(rep.distances), retPct)
	if rep.noReturns > 0 {
		fmt.Printf("No Return:       %10d\n", rep.noReturns)
	}

	sorted := make([]float64, len(rep.distances))
	copy(sorted, rep.distances)
	sort.Float64s(sorted)

	fmt.Printf("Mean:            %10.3f\n", stat.Mean(rep.distances, nil))
	fmt.Printf("Std Dev:         %10.3f\n", stat.StdDev(rep.distances, nil))
	fmt.Printf("Min / Max:       %10.3f / %.3f\n", sorted[0], sorted[len(sorted)-1])
	fmt.Printf("p5 / p50 / p95:  %10.3f / %.3f / %.3f\n",
		stat.Quantile(0.05, stat.Empirical, sorted, nil),
		stat.Quantile(0.50, stat.Empirical, sorted, nil),
		stat.Quantile(0.95, stat.Empirical, sorted, nil))
	fmt.Println()

	fmt.Println("=== Intensity ===")
	fmt.Printf("Mean:            %10.1f\n", stat.Mean(rep.intensities, nil))
	fmt.Printf("Std Dev:         %10.1f\n", stat.StdDev(rep.intensities, nil))
	fmt.Println()

	fmt.Printf("=== Angular Coverage (%g° buckets) ===\n", analyzeBucketDeg)
	covered := 0
	maxCount := 0
	for _, c := range rep.buckets {
		if c > 0 {
			covered++
		}
		if c > maxCount {
			maxCount = c
		}
	}
	fmt.Printf("Covered:         %7d/%d sectors\n", covered, len(rep.buckets))

	var blind []string
	for i, c := range rep.buckets {
		lo := float64(i) * analyzeBucketDeg
		hi := lo + analyzeBucketDeg
		if c == 0 {
			blind = append(blind, fmt.Sprintf("%g-%g°", lo, hi))
			continue
		}
		bar := ""
		if maxCount > 0 {
			bar = strings.Repeat("#", int(math.Round(float64(c)/float64(maxCount)*40)))
		}
		fmt.Printf("  %5.0f-%3.0f°  %7d  %s\n", lo, hi, c, bar)
	}
	if len(blind) > 0 {
		fmt.Printf("Blind sectors:   %s\n", strings.Join(blind, ", "))
	}
}
