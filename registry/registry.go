// Package registry holds the decoder contract (DecoderSpec), the decode
// result taxonomy, and the DecoderRegistry that keeps the ordered,
// runtime-toggleable table of registered protocol decoders.
package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/internal/rlog"
	"github.com/merbanan/rtl-433-sub009/pulse"
)

// CoreVersion is this package's decoder-contract version, checked against a
// DecoderSpec's MinCoreVersion at Register time.
const CoreVersion = "1.0.0"

// Modulation is the closed set of pulse-to-bit conventions a DecoderSpec
// can select (spec.md §4.3).
type Modulation int

const (
	OOKPPM Modulation = iota
	OOKPWM
	OOKPCM
	FSKPCM
	OOKManchesterZeroBit
	FSKManchesterZeroBit
	DiffManchester
	OOKPWMSPE
)

func (m Modulation) String() string {
	switch m {
	case OOKPPM:
		return "OOK-PPM"
	case OOKPWM:
		return "OOK-PWM"
	case OOKPCM:
		return "OOK-PCM"
	case FSKPCM:
		return "FSK-PCM"
	case OOKManchesterZeroBit:
		return "OOK-Manchester-ZeroBit"
	case FSKManchesterZeroBit:
		return "FSK-Manchester-ZeroBit"
	case DiffManchester:
		return "Differential-Manchester"
	case OOKPWMSPE:
		return "OOK-PWM-SPE"
	default:
		return "unknown"
	}
}

// IsFSK reports whether the modulation belongs to the FM/FSK demodulation
// path rather than the AM/OOK one.
func (m Modulation) IsFSK() bool {
	return m == FSKPCM || m == FSKManchesterZeroBit
}

// DecodeResult is the tagged return code a decode callback reports, per
// spec.md §4.6 and §7.
type DecodeResult int

const (
	ResultOk DecodeResult = iota
	ResultAbortEarly
	ResultAbortLength
	ResultFailSanity
	ResultFailMic
	ResultDisabled
)

func (r DecodeResult) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultAbortEarly:
		return "abort_early"
	case ResultAbortLength:
		return "abort_length"
	case ResultFailSanity:
		return "fail_sanity"
	case ResultFailMic:
		return "fail_mic"
	case ResultDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// DecoderContext is what a decode callback sees: the triggering package's
// metadata, a leveled logger, and this decoder instance's configuration.
type DecoderContext struct {
	Package *pulse.Package
	Logger  *rlog.Logger
	Config  map[string]string
}

// DecodeFunc is the per-decoder callback: given the sliced bits for a
// package, it returns a tagged result and, for ResultOk, one or more
// records.
type DecodeFunc func(bm *bitmatrix.Matrix, ctx *DecoderContext) (DecodeResult, []*pulse.Record)

// DecoderSpec is the immutable-after-registration description of one
// hardware protocol (spec.md §3).
type DecoderSpec struct {
	Name string

	Modulation Modulation

	ShortWidthUs  float64
	LongWidthUs   float64
	ResetLimitUs  float64
	GapLimitUs    float64
	SyncWidthUs   float64
	ToleranceUs   float64

	Decode DecodeFunc
	Fields []string

	// ConfigParams optionally names the allowed keys for Configure's
	// "key=val,..." parameter string (spec.md §6, the Netatmo THW
	// `a=<int>,b=<int>,c=<int>,d=<int>` example). A nil/empty
	// ConfigParams accepts any key; a non-empty one rejects anything not
	// listed, per spec.md §6's "unknown keys are rejected."
	ConfigParams []string

	DisabledByDefault bool

	// MinCoreVersion optionally gates registration to a minimum core
	// contract version (semver, e.g. "1.2.0"), so a decoder table built
	// for a newer registry contract fails loudly at registration instead
	// of silently misbehaving against an older one.
	MinCoreVersion string
}

// Tolerance returns the effective tolerance in microseconds: ToleranceUs if
// set, otherwise 20% of ShortWidthUs (spec.md §4.3).
func (s *DecoderSpec) Tolerance() float64 {
	if s.ToleranceUs > 0 {
		return s.ToleranceUs
	}
	return 0.2 * s.ShortWidthUs
}

// registered is the internal, mutable wrapper the registry keeps per spec.
type registered struct {
	spec     DecoderSpec
	enabled  bool
	config   map[string]string
}

// DecoderRegistry is the ordered, runtime-toggleable table of decoders.
// It is immutable for the duration of dispatching one package (spec.md §5).
type DecoderRegistry struct {
	order   []string
	entries map[string]*registered
}

// NewDecoderRegistry creates an empty registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{entries: make(map[string]*registered)}
}

// Register appends spec to the ordered list. It is an error to register the
// same name twice.
func (r *DecoderRegistry) Register(spec DecoderSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("registry: decoder spec must have a name")
	}
	if _, exists := r.entries[spec.Name]; exists {
		return fmt.Errorf("registry: decoder %q already registered", spec.Name)
	}
	if spec.MinCoreVersion != "" {
		min, err := version.NewVersion(spec.MinCoreVersion)
		if err != nil {
			return fmt.Errorf("registry: decoder %q has invalid MinCoreVersion %q: %w", spec.Name, spec.MinCoreVersion, err)
		}
		core, err := version.NewVersion(CoreVersion)
		if err != nil {
			return fmt.Errorf("registry: invalid core version %q: %w", CoreVersion, err)
		}
		if core.LessThan(min) {
			return fmt.Errorf("registry: decoder %q requires core >= %s, have %s", spec.Name, spec.MinCoreVersion, CoreVersion)
		}
	}
	if spec.Decode == nil {
		return fmt.Errorf("registry: decoder %q has no decode function", spec.Name)
	}
	r.order = append(r.order, spec.Name)
	r.entries[spec.Name] = &registered{
		spec:    spec,
		enabled: !spec.DisabledByDefault,
	}
	return nil
}

// Enable turns on runtime participation for a decoder. It is a no-op error
// if the decoder is unknown.
func (r *DecoderRegistry) Enable(name string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("registry: unknown decoder %q", name)
	}
	e.enabled = true
	return nil
}

// Disable turns off runtime participation for a decoder.
func (r *DecoderRegistry) Disable(name string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("registry: unknown decoder %q", name)
	}
	e.enabled = false
	return nil
}

// Configure parses "key1=val1,key2=val2,..." and applies it to the named
// decoder's per-instance configuration map, ahead of the next package
// boundary (spec.md §6). Non-numeric values are accepted as-is (numeric
// decoders validate their own keys at decode time via ParseIntParam);
// unknown keys are rejected whenever the decoder spec declares a non-empty
// ConfigParams allow list, per spec.md §6's Netatmo THW example
// ("unknown keys are rejected"). A decoder with no ConfigParams accepts
// any key and simply passes it through.
func (r *DecoderRegistry) Configure(name, params string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("registry: unknown decoder %q", name)
	}
	allowed := allowListOf(e.spec.ConfigParams)
	cfg := make(map[string]string)
	if params != "" {
		for _, kv := range strings.Split(params, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 || parts[0] == "" {
				return fmt.Errorf("registry: malformed parameter %q for decoder %q", kv, name)
			}
			if allowed != nil && !allowed[parts[0]] {
				return fmt.Errorf("registry: unknown parameter %q for decoder %q", parts[0], name)
			}
			cfg[parts[0]] = parts[1]
		}
	}
	e.config = cfg
	return nil
}

func allowListOf(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// ParseIntParam is a helper for decoder create_fn/configure validation: it
// parses cfg[key] as a base-10 int, returning def if the key is absent, or
// an error if the value is non-numeric (spec.md §6 Netatmo THW example).
func ParseIntParam(cfg map[string]string, key string, def int) (int, error) {
	v, ok := cfg[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("registry: parameter %q must be an integer, got %q", key, v)
	}
	return n, nil
}

// Enabled reports whether a decoder currently participates in dispatch.
func (r *DecoderRegistry) Enabled(name string) bool {
	e, ok := r.entries[name]
	return ok && e.enabled
}

// Spec returns a copy of the named decoder's immutable spec and its
// current configuration map.
func (r *DecoderRegistry) Spec(name string) (DecoderSpec, map[string]string, bool) {
	e, ok := r.entries[name]
	if !ok {
		return DecoderSpec{}, nil, false
	}
	return e.spec, e.config, true
}

// EachEnabled calls fn, in registration order, for every currently enabled
// decoder, passing its spec and configuration map.
func (r *DecoderRegistry) EachEnabled(fn func(spec DecoderSpec, config map[string]string)) {
	for _, name := range r.order {
		e := r.entries[name]
		if e.enabled {
			fn(e.spec, e.config)
		}
	}
}

// MaxResetLimitUs returns the largest ResetLimitUs across all enabled
// decoders, used by the PulseDetector to program its package-termination
// gap threshold (spec.md §4.4).
func (r *DecoderRegistry) MaxResetLimitUs() float64 {
	var max float64
	r.EachEnabled(func(spec DecoderSpec, _ map[string]string) {
		if spec.ResetLimitUs > max {
			max = spec.ResetLimitUs
		}
	})
	return max
}

// MinGapLimitUs returns the smallest nonzero GapLimitUs across all enabled
// decoders, used to program the detector's row-boundary gap threshold.
func (r *DecoderRegistry) MinGapLimitUs() float64 {
	min := 0.0
	r.EachEnabled(func(spec DecoderSpec, _ map[string]string) {
		if spec.GapLimitUs <= 0 {
			return
		}
		if min == 0 || spec.GapLimitUs < min {
			min = spec.GapLimitUs
		}
	})
	return min
}
