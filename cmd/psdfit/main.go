// Command psdfit fits the oscillator PSD model to a recorded voltage trace
// and prints the calibrated particle parameters.
//
// Usage:
//
//	psdfit -data trace.raw -rate 10e6 -freq 70e3 -pressure 0.377
//	psdfit -data trace.raw -meta trace.meta.yaml -freq 70e3
//
// Settings can also come from a psdfit.yaml config file in the working
// directory or from PSDFIT_* environment variables; command-line flags take
// precedence.
package main

import (
	"errors"
	"flag"
	"math"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/ZhenghaoDing/optoanalysis"
	"github.com/ZhenghaoDing/optoanalysis/fit"
	"github.com/ZhenghaoDing/optoanalysis/window"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	flag.String("data", "", "path to the raw sample stream")
	flag.String("meta", "", "path to the YAML metadata sidecar")
	flag.Float64("rate", 0, "sample rate in Hz (overrides metadata)")
	flag.Float64("freq", 0, "approximate resonance frequency in Hz")
	flag.Float64("pressure", 0, "ambient pressure in mbar (overrides metadata)")
	flag.Float64("perr", 0.15, "fractional pressure uncertainty")
	flag.Int("segment", 0, "Welch segment length (power of two, 0 = auto)")
	flag.String("window", "hann", "segment window: hann, hamming, blackman, flat-top, rectangular")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	v := loadSettings()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if v.GetString("data") == "" {
		log.Fatal().Msg("missing -data")
	}
	if v.GetFloat64("freq") <= 0 {
		log.Fatal().Msg("missing -freq")
	}

	winType, err := window.FromName(v.GetString("window"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid window")
	}
	opts := []optoanalysis.Option{
		optoanalysis.WithWindow(winType),
	}
	if seg := v.GetInt("segment"); seg > 0 {
		opts = append(opts, optoanalysis.WithSegmentLength(seg))
	}

	ds, pressureMbar := loadDataset(v, opts)

	if p := v.GetFloat64("pressure"); p > 0 {
		pressureMbar = p
	}
	if pressureMbar <= 0 {
		log.Fatal().Msg("missing -pressure (and no metadata pressure)")
	}

	tr := ds.Trace()
	log.Debug().
		Int("samples", tr.Len()).
		Float64("rate_hz", tr.SampleRate()).
		Float64("duration_s", tr.Duration()).
		Int("psd_bins", ds.PSD().Len()).
		Int("segments", ds.PSD().Segments()).
		Msg("dataset loaded")

	res, params, err := ds.AnalyzeAuto(v.GetFloat64("freq"), pressureMbar, v.GetFloat64("perr"))
	if err != nil {
		log.Fatal().Err(err).Msg("analysis failed")
	}

	logResult(res)
	log.Info().
		Str("radius_m", params.Radius.String()).
		Str("mass_kg", params.Mass.String()).
		Str("conv_factor_v_per_m", params.ConvFactor.String()).
		Float64("pressure_mbar", pressureMbar).
		Msg("physical parameters")
}

// loadSettings layers config file, environment and flags, flags winning.
func loadSettings() *viper.Viper {
	v := viper.New()
	v.SetConfigName("psdfit")
	v.AddConfigPath(".")
	v.SetEnvPrefix("psdfit")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flag.VisitAll(func(f *flag.Flag) {
		v.SetDefault(f.Name, f.Value.String())
	})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal().Err(err).Msg("reading config file")
		}
	}

	flag.Visit(func(f *flag.Flag) {
		v.Set(f.Name, f.Value.String())
	})

	return v
}

func loadDataset(v *viper.Viper, opts []optoanalysis.Option) (*optoanalysis.Dataset, float64) {
	dataPath := v.GetString("data")

	if meta := v.GetString("meta"); meta != "" {
		ds, pressureMbar, err := optoanalysis.LoadWithMetadata(dataPath, meta, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("loading dataset")
		}
		return ds, pressureMbar
	}

	rate := v.GetFloat64("rate")
	if rate <= 0 {
		log.Fatal().Msg("missing -rate (and no -meta)")
	}
	ds, err := optoanalysis.Load(dataPath, rate, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("loading dataset")
	}
	return ds, 0
}

func logResult(res *fit.Result) {
	log.Info().
		Str("amplitude", res.A.String()).
		Str("omega0_rad_s", res.Omega0.String()).
		Str("gamma_1_s", res.Gamma.String()).
		Float64("corner_freq_hz", res.Omega0.N/(2*math.Pi)).
		Float64("chi2", res.ChiSq).
		Int("dof", res.DoF).
		Msg("fit converged")
}
