package imagine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
)

// ParseEffect builds a master bus effect from a description of the form
// "type p1,p2,...", optionally wrapped in braces. Missing parameters take their
// defaults. Supported types and parameter order:
//
//	delay  time ms, feedback, cross, wet, tone Hz
//	reverb room size, decay s, wet, damping
//	comp   threshold dB, ratio, attack ms, release ms, makeup dB
func ParseEffect(desc string, sampleRate float64) (effects.Effector, error) {
	raw := strings.TrimSpace(desc)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("effect %q: empty description", desc)
	}
	parts := strings.SplitN(raw, " ", 2)
	effectType := strings.ToLower(strings.TrimSpace(parts[0]))
	var params []float64
	if len(parts) > 1 {
		for _, s := range strings.Split(parts[1], ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("effect %q: %w", desc, err)
			}
			params = append(params, v)
		}
	}
	getParam := func(idx int, def float64) float64 {
		if idx < len(params) {
			return params[idx]
		}
		return def
	}

	switch effectType {
	case "delay":
		d := effects.DefaultDelayParams()
		return effects.NewDelay(sampleRate, effects.DelayParams{
			TimeMs:   getParam(0, d.TimeMs),
			Feedback: float32(getParam(1, float64(d.Feedback))),
			Cross:    float32(getParam(2, float64(d.Cross))),
			Wet:      float32(getParam(3, float64(d.Wet))),
			ToneHz:   getParam(4, d.ToneHz),
		}), nil
	case "reverb":
		d := effects.DefaultReverbParams()
		return effects.NewReverb(sampleRate, effects.ReverbParams{
			RoomSize: float32(getParam(0, float64(d.RoomSize))),
			DecaySec: getParam(1, d.DecaySec),
			Wet:      float32(getParam(2, float64(d.Wet))),
			Damping:  float32(getParam(3, float64(d.Damping))),
		}), nil
	case "comp", "compressor":
		d := effects.DefaultCompressorParams()
		return effects.NewCompressor(sampleRate, effects.CompressorParams{
			ThresholdDB: getParam(0, d.ThresholdDB),
			Ratio:       getParam(1, d.Ratio),
			AttackMs:    getParam(2, d.AttackMs),
			ReleaseMs:   getParam(3, d.ReleaseMs),
			MakeupDB:    getParam(4, d.MakeupDB),
		}), nil
	default:
		return nil, fmt.Errorf("effect %q: unknown type %q", desc, effectType)
	}
}
