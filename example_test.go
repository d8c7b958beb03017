package optoanalysis_test

import (
	"fmt"
	"math"

	"github.com/ZhenghaoDing/optoanalysis"
)

func Example() {
	// 256 samples of a 16 Hz tone at 256 samples/s.
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 16 * float64(i) / 256)
	}

	ds, err := optoanalysis.New(samples, 256)
	if err != nil {
		panic(err)
	}

	sp := ds.PSD()
	fmt.Printf("bins: %d\n", sp.Len())
	fmt.Printf("resolution: %.0f Hz\n", sp.Resolution())
	fmt.Printf("nyquist: %.0f Hz\n", sp.Freqs()[sp.Len()-1])
	// Output:
	// bins: 129
	// resolution: 1 Hz
	// nyquist: 128 Hz
}
