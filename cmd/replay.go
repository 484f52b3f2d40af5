// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/capture"
	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	replaySynthetic bool
	replaySpeed     float64
	replayServe     string
)

// Synthetic source shape: 10 Hz spin against a wall 1.5 m away.
const (
	syntheticSpeed  = 3600
	syntheticBaseMM = 1500
)

var replayCmd = &cobra.Command{
	Use:   "replay [capture-file]",
	Short: "Replay a capture as a live stream",
	Long: `Replay a capture file through the decoder at the sensor's wire rate,
or generate a synthetic stream with --synthetic.

The pace follows the nominal LD19 byte rate scaled by --speed; a factor
of 0 replays as fast as the decoder accepts. With --serve the stream is
not decoded locally but exposed as a WebSocket bridge speaking the same
binary-frame protocol as a live sensor, so every other command can
connect to it with --url.

Exit codes:
  0 - Replay completed
  1 - Capture unreadable or bad arguments
  2 - Serve address unusable`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replaySynthetic, "synthetic", false, "Generate a synthetic stream instead of reading a capture")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Replay speed factor, 0 for unpaced")
	replayCmd.Flags().StringVar(&replayServe, "serve", "", "Serve the stream as a WebSocket bridge on this address instead of decoding locally")
}

// openReplayStream opens a fresh stream for one replay pass. Serving
// hands every client its own pass, so this can be called repeatedly.
func openReplayStream(path string) (io.ReadCloser, string, error) {
	if replaySynthetic {
		return io.NopCloser(&syntheticReader{src: ld19.NewScanSource(syntheticSpeed, syntheticBaseMM)}),
			fmt.Sprintf("synthetic stream (%d deg/s)", syntheticSpeed), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open capture: %w", err)
	}
	cr, err := capture.OpenReader(f)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	return &captureStream{Reader: cr, f: f}, fmt.Sprintf("%s [%s]", path, cr.Header()), nil
}

// captureStream pairs a capture reader with the file it draws from.
type captureStream struct {
	*capture.Reader
	f *os.File
}

func (cs *captureStream) Close() error { return cs.f.Close() }

// syntheticReader adapts a ScanSource to io.Reader, emitting an endless
// valid wire stream.
type syntheticReader struct {
	src *ld19.ScanSource
	buf []byte
}

func (r *syntheticReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		r.buf = r.src.NextWire(r.buf[:0])
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" && !replaySynthetic {
		return fmt.Errorf("a capture file or --synthetic is required")
	}
	if path != "" && replaySynthetic {
		return fmt.Errorf("--synthetic does not take a capture file")
	}

	if replayServe != "" {
		return serveReplay(path)
	}
	return replayLocal(path)
}

// replayBytesPerSec returns the paced byte rate, or 0 for unpaced.
func replayBytesPerSec() float64 {
	if replaySpeed <= 0 {
		return 0
	}
	nominal := float64(ld19.SamplesPerSecond) / ld19.PointsPerPacket * ld19.PacketSize
	return nominal * replaySpeed
}

// replayLocal decodes the stream at pace and prints statistics, the
// same duty cycle as watching a live sensor.
func replayLocal(path string) error {
	reader, info, err := openReplayStream(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	if replaySpeed > 0 {
		fmt.Printf("Replaying %s at %.2gx\n", info, replaySpeed)
	} else {
		fmt.Printf("Replaying %s unpaced\n", info)
	}
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	stats := ld19.NewStatistics()
	buf := make([]byte, 4096)

	bytesPerSec := replayBytesPerSec()
	bytesPerTick := bytesPerSec * replayTick.Seconds()
	carry := 0.0

	ticker := time.NewTicker(replayTick)
	defer ticker.Stop()
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	consume := func(data []byte) {
		stats.RecordBytes(len(data))
		stream.Write(data)
		for {
			before := stream.Len()
			packet, decodeErr := decoder.Decode(stream)
			if decodeErr != nil {
				stats.RecordCRCError()
				continue
			}
			if packet == nil {
				if dropped := before - stream.Len(); dropped > 0 {
					stats.RecordSyncLoss(dropped)
				}
				break
			}
			stats.Update(packet)
		}
	}

	for {
		// How much to pull this tick
		want := len(buf)
		if bytesPerSec > 0 {
			select {
			case <-sigChan:
				fmt.Println("Interrupted")
				fmt.Println()
				fmt.Print(stats.String())
				return nil
			case <-heartbeat.C:
				stats.CalculateRates()
				fmt.Printf("  %6.1fs  %8d packets  %7.1f pkts/s",
					time.Since(stats.StartTime).Seconds(), stats.TotalPackets, stats.PacketRate)
				if stats.CRCErrors > 0 {
					fmt.Printf("  %d CRC errors", stats.CRCErrors)
				}
				fmt.Println()
				continue
			case <-ticker.C:
				carry += bytesPerTick
				want = int(carry)
				carry -= float64(want)
				if want == 0 {
					continue
				}
				if want > len(buf) {
					want = len(buf)
				}
			}
		} else {
			select {
			case <-sigChan:
				fmt.Println("Interrupted")
				fmt.Println()
				fmt.Print(stats.String())
				return nil
			default:
			}
		}

		n, err := io.ReadFull(reader, buf[:want])
		if n > 0 {
			consume(buf[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			fmt.Println("End of capture")
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

const replayTick = 20 * time.Millisecond

// serveReplay exposes the stream as a WebSocket bridge. Each client
// gets its own replay pass from the start of the capture.
func serveReplay(path string) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		fmt.Printf("Client connected: %s\n", r.RemoteAddr)
		defer fmt.Printf("Client disconnected: %s\n", r.RemoteAddr)

		reader, _, err := openReplayStream(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Replay error for %s: %v\n", r.RemoteAddr, err)
			return
		}
		defer reader.Close()

		// Drain the client side so close frames are processed
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := c.NextReader(); err != nil {
					return
				}
			}
		}()

		buf := make([]byte, 4096)
		bytesPerSec := replayBytesPerSec()
		bytesPerTick := bytesPerSec * replayTick.Seconds()
		carry := 0.0

		ticker := time.NewTicker(replayTick)
		defer ticker.Stop()

		for {
			want := len(buf)
			if bytesPerSec > 0 {
				select {
				case <-clientGone:
					return
				case <-ticker.C:
					carry += bytesPerTick
					want = int(carry)
					carry -= float64(want)
					if want == 0 {
						continue
					}
					if want > len(buf) {
						want = len(buf)
					}
				}
			} else {
				select {
				case <-clientGone:
					return
				default:
				}
			}

			n, err := io.ReadFull(reader, buf[:want])
			if n > 0 {
				c.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if werr := c.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of capture"),
					time.Now().Add(time.Second))
				return
			}
			if err != nil {
				return
			}
		}
	})

	// Fail fast on an unusable capture before binding the listener
	if !replaySynthetic {
		probe, _, err := openReplayStream(path)
		if err != nil {
			return err
		}
		probe.Close()
	}

	srv := &http.Server{Addr: replayServe, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	fmt.Printf("Serving replay on ws://%s/ (Ctrl-C to stop)\n", replayServe)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Serve error: %v\n", err)
		os.Exit(2)
	case <-sigChan:
		fmt.Println("Shutting down")
		srv.Close()
	}
	return nil
}
