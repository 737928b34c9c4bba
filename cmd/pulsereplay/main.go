// Command pulsereplay is an end-to-end test harness, not a CLI product
// (spec.md's Non-goals exclude the CLI/config surface; this wires the
// in-scope pipeline together for demonstration and local captures, in the
// spirit of the teacher's own main.go entry point).
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/merbanan/rtl-433-sub009/decoders/bresser7in1"
	"github.com/merbanan/rtl-433-sub009/decoders/ecowittwh40"
	"github.com/merbanan/rtl-433-sub009/decoders/infactory"
	"github.com/merbanan/rtl-433-sub009/decoders/netatmothw"
	"github.com/merbanan/rtl-433-sub009/decoders/secplusv2"
	"github.com/merbanan/rtl-433-sub009/detector"
	"github.com/merbanan/rtl-433-sub009/dispatch"
	"github.com/merbanan/rtl-433-sub009/internal/config"
	"github.com/merbanan/rtl-433-sub009/internal/fixture"
	"github.com/merbanan/rtl-433-sub009/internal/metrics"
	"github.com/merbanan/rtl-433-sub009/internal/rlog"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

func main() {
	inputPath := flag.String("in", "", "path to a raw real-f32le sample fixture")
	configPath := flag.String("config", "", "path to a YAML pipeline config (optional)")
	metricsListen := flag.String("metrics-listen", "", "address to serve /metrics on, e.g. :9433 (empty disables)")
	verbosity := flag.Int("v", 1, "log verbosity 0-3 (silent, warn, info, debug)")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("pulsereplay: -in is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("pulsereplay: %v", err)
		}
		cfg = loaded
	}

	logger := rlog.New("pulsereplay", rlog.Level(*verbosity))

	reg := registry.NewDecoderRegistry()
	mustRegister(reg, bresser7in1.Spec())
	mustRegister(reg, ecowittwh40.Spec())
	mustRegister(reg, infactory.Spec())
	mustRegister(reg, netatmothw.Spec())
	mustRegister(reg, secplusv2.Spec())
	if err := cfg.Apply(reg); err != nil {
		log.Fatalf("pulsereplay: %v", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	sink := newQueuedJSONSink(os.Stdout, 256)
	group.Go(func() error {
		return sink.run(groupCtx)
	})

	if *metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *metricsListen, Handler: mux}
		group.Go(func() error {
			<-groupCtx.Done()
			return server.Close()
		})
		group.Go(func() error {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	disp := dispatch.New(reg, sink, logger, m, dispatch.Config{
		DedupWindow:    time.Duration(cfg.Dispatch.DedupWindowMs) * time.Millisecond,
		DedupCapacity:  cfg.Dispatch.DedupCapacity,
		ReportBestOnly: cfg.Dispatch.ReportBestOnly,
		EmitPulseData:  false,
	})

	det := detector.New(detector.Params{
		SampleRateHz:  cfg.SampleRateHz,
		ShortWidthUs:  100,
		RowGapLimitUs: reg.MinGapLimitUs(),
		ResetLimitUs:  reg.MaxResetLimitUs(),
	}, func(pkg *pulse.Package) {
		pkg.CenterFreqHz = cfg.CenterFreqHz
		disp.Dispatch(pkg, time.Now())
	})

	src, err := newFileSource(*inputPath, cfg.SampleRateHz, cfg.CenterFreqHz)
	if err != nil {
		log.Fatalf("pulsereplay: %v", err)
	}
	if err := replay(src, det); err != nil {
		log.Fatalf("pulsereplay: %v", err)
	}
	src.Close()
	det.Flush()

	sink.close()
	if err := group.Wait(); err != nil {
		log.Fatalf("pulsereplay: %v", err)
	}
}

func mustRegister(reg *registry.DecoderRegistry, spec registry.DecoderSpec) {
	if err := reg.Register(spec); err != nil {
		log.Fatalf("pulsereplay: %v", err)
	}
}

// fileSource implements pulse.Source (spec.md §6) over a real-f32 little-
// endian sample fixture, transparently decompressing ".zst" captures via
// internal/fixture.
type fileSource struct {
	rc           io.ReadCloser
	r            *bufio.Reader
	sampleRateHz int
	centerFreqHz uint32
}

func newFileSource(path string, sampleRateHz int, centerFreqHz uint32) (*fileSource, error) {
	rc, err := fixture.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &fileSource{
		rc:           rc,
		r:            bufio.NewReaderSize(rc, 64*1024),
		sampleRateHz: sampleRateHz,
		centerFreqHz: centerFreqHz,
	}, nil
}

func (s *fileSource) SampleRateHz() int              { return s.sampleRateHz }
func (s *fileSource) CenterFreqHz() uint32           { return s.centerFreqHz }
func (s *fileSource) SampleFormat() pulse.SampleFormat { return pulse.FormatRealF32 }

// Read fills buf with decoded samples, returning io.EOF once the fixture is
// exhausted and a *pulse.SourceError on any other read failure.
func (s *fileSource) Read(buf []float64) (int, error) {
	var raw [4]byte
	n := 0
	for n < len(buf) {
		if _, err := io.ReadFull(s.r, raw[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
			return n, &pulse.SourceError{Err: err}
		}
		bits := binary.LittleEndian.Uint32(raw[:])
		buf[n] = float64(math.Float32frombits(bits))
		n++
	}
	return n, nil
}

func (s *fileSource) Close() error {
	return s.rc.Close()
}

// replay pulls samples from src and feeds them to det one at a time, per
// the single-threaded, source-blocks pipeline model of spec.md §5.
func replay(src pulse.Source, det *detector.PulseDetector) error {
	buf := make([]float64, 4096)
	for {
		n, err := src.Read(buf)
		for i := 0; i < n; i++ {
			det.ProcessReal(buf[i])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// queuedJSONSink implements dispatch.Sink: records are pushed onto a
// bounded channel and serialized to line-JSON by a dedicated writer
// goroutine, per spec.md §5 ("sinks that need I/O run on a separate
// writer thread with a bounded queue"). A full queue drops the oldest
// record and counts it as lost.
type queuedJSONSink struct {
	out     io.Writer
	queue   chan *pulse.Record
	lost    int
	closeCh chan struct{}
}

func newQueuedJSONSink(out io.Writer, capacity int) *queuedJSONSink {
	return &queuedJSONSink{
		out:     out,
		queue:   make(chan *pulse.Record, capacity),
		closeCh: make(chan struct{}),
	}
}

func (s *queuedJSONSink) Emit(rec *pulse.Record) {
	select {
	case s.queue <- rec:
	default:
		// Queue full: drop the oldest by draining one slot, then push,
		// matching the sink-configurable "drop oldest" backpressure
		// policy from spec.md §5.
		select {
		case <-s.queue:
			s.lost++
		default:
		}
		select {
		case s.queue <- rec:
		default:
			s.lost++
		}
	}
}

func (s *queuedJSONSink) Flush() error { return nil }

func (s *queuedJSONSink) close() {
	close(s.closeCh)
}

func (s *queuedJSONSink) run(ctx context.Context) error {
	w := bufio.NewWriter(s.out)
	defer w.Flush()
	enc := json.NewEncoder(w)
	for {
		select {
		case rec := <-s.queue:
			if err := enc.Encode(recordToMap(rec)); err != nil {
				return err
			}
		case <-s.closeCh:
			for {
				select {
				case rec := <-s.queue:
					if err := enc.Encode(recordToMap(rec)); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func recordToMap(rec *pulse.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(rec.Fields()))
	for _, f := range rec.Fields() {
		out[f.Name] = f.Value
	}
	return out
}
