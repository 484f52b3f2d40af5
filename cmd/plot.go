// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/capture"
	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	plotOutput    string
	plotAll       bool
	plotMaxPoints int
)

var plotCmd = &cobra.Command{
	Use:   "plot <capture-file>",
	Short: "Render a capture as an HTML scatter plot",
	Long: `Decode a capture and render the scan as a cartesian scatter plot in
a standalone HTML file, colored by return intensity.

By default the first complete rotation is plotted; --all overlays every
point in the capture, downsampled to --max-points.

Exit codes:
  0 - Plot written
  1 - Capture unreadable or no decodable packets`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.Flags().StringVarP(&plotOutput, "output", "o", "", "HTML file to write (default: capture path + .html)")
	plotCmd.Flags().BoolVar(&plotAll, "all", false, "Plot every rotation in the capture")
	plotCmd.Flags().IntVar(&plotMaxPoints, "max-points", 8000, "Downsample to at most this many points")
}

// plotSample is one plottable return in sensor-frame meters.
type plotSample struct {
	x, y      float64
	intensity uint8
}

func runPlot(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := plotOutput
	if out == "" {
		out = strings.TrimSuffix(path, ".azc") + ".html"
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

	rotations, packets, crcErrors, err := collectRotations(cr)
	if err != nil {
		return err
	}
	if packets == 0 {
		return fmt.Errorf("no decodable packets in %s", path)
	}

	samples := selectPlotSamples(rotations)
	if len(samples) == 0 {
		return fmt.Errorf("no returns to plot in %s", path)
	}

	// Downsample by stride to keep the page responsive
	stride := 1
	if len(samples) > plotMaxPoints {
		stride = int(math.Ceil(float64(len(samples)) / float64(plotMaxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(samples)/stride+1)
	maxAbs := 0.0
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		if math.Abs(s.x) > maxAbs {
			maxAbs = math.Abs(s.x)
		}
		if math.Abs(s.y) > maxAbs {
			maxAbs = math.Abs(s.y)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{s.x, s.y, s.intensity}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scope := "first rotation"
	if plotAll {
		scope = fmt.Sprintf("%d rotations", len(rotations))
	}
	subtitle := fmt.Sprintf("%s | %d packets | %s | %d points", path, packets, scope, len(data))
	if crcErrors > 0 {
		subtitle += fmt.Sprintf(" | %d CRC errors", crcErrors)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LD19 Scan", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "LD19 Scan", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("returns", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	of, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer of.Close()
	if err := scatter.Render(of); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}

	fmt.Printf("Wrote %d points (%s) to %s\n", len(data), scope, out)
	return nil
}

// collectRotations decodes the whole capture and splits returns into
// rotations at azimuth wraps. Zero-distance samples carry no return and
// are skipped.
func collectRotations(r io.Reader) (rotations [][]plotSample, packets, crcErrors int, err error) {
	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	buf := make([]byte, 4096)

	var current []plotSample
	lastStart := 0.0

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			stream.Write(buf[:n])
			for {
				packet, derr := decoder.Decode(stream)
				if derr != nil {
					crcErrors++
					continue
				}
				if packet == nil {
					break
				}
				packets++

				start := packet.StartAngleDeg()
				if start < lastStart && len(current) > 0 {
					rotations = append(rotations, current)
					current = nil
				}
				lastStart = start

				for angle, pt := range packet.Angles() {
					if pt.Distance == 0 {
						continue
					}
					x, y := ld19.PointXY(angle, pt)
					current = append(current, plotSample{x: x, y: y, intensity: pt.Intensity})
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, 0, 0, fmt.Errorf("read failed: %w", rerr)
		}
	}
	if len(current) > 0 {
		rotations = append(rotations, current)
	}
	return rotations, packets, crcErrors, nil
}

// selectPlotSamples picks the plotted subset: everything with --all,
// otherwise the first rotation bounded by wraps on both sides. The
// leading partial sweep is only used when nothing better exists.
func selectPlotSamples(rotations [][]plotSample) []plotSample {
	if len(rotations) == 0 {
		return nil
	}
	if plotAll {
		total := 0
		for _, rot := range rotations {
			total += len(rot)
		}
		all := make([]plotSample, 0, total)
		for _, rot := range rotations {
			all = append(all, rot...)
		}
		return all
	}
	if len(rotations) > 1 {
		return rotations[1]
	}
	return rotations[0]
}
