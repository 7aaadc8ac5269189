// Command trfdemo simulates a multi-trial FIR system, fits a TRF model to it
// and writes fit charts plus a serialized model to disk.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aouyang1/go-trf"
	"github.com/aouyang1/go-trf/models"
	"github.com/aouyang1/go-trf/trialset"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/goccy/go-json"
	"github.com/pkg/profile"
	"gonum.org/v1/gonum/mat"
)

func main() {
	var (
		nTrials    = flag.Int("trials", 3, "number of simulated trials")
		trialLen   = flag.Int("len", 5000, "samples per trial")
		nChannels  = flag.Int("channels", 4, "number of output channels")
		noiseScale = flag.Float64("noise", 0.5, "target noise scale")
		seed       = flag.Uint64("seed", 1, "simulation random state")
		outDir     = flag.String("out", ".", "output directory for charts and model")
		profiling  = flag.Bool("profile", false, "write a CPU profile alongside the output")
	)
	flag.Parse()

	if *profiling {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*outDir)).Stop()
	}

	if err := run(*nTrials, *trialLen, *nChannels, *noiseScale, *seed, *outDir); err != nil {
		slog.Error("demo failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(nTrials, trialLen, nChannels int, noiseScale float64, seed uint64, outDir string) error {
	// true system: y = x convolved with a short decaying filter
	h := mat.NewDense(1, 3, []float64{1.0, -0.5, 0.25})
	hDelays := []int{0, 1, 2}

	ts := trialset.NewTrialSet()
	xTrials := make([]*trialset.Tensor, 0, nTrials)
	yTrials := make([]*trialset.Tensor, 0, nTrials)
	for i := 0; i < nTrials; i++ {
		opt := &trialset.SimulateOptions{
			NumFeatures: 1,
			NoiseScale:  noiseScale,
			RandomState: seed + uint64(i),
		}
		x, y := trialset.SimulateTrial(trialLen, nChannels, h, hDelays, opt)
		xTrials = append(xTrials, trialset.FromMatrix(x))
		yTrials = append(yTrials, y)
	}
	if err := ts.AddField("stim", xTrials); err != nil {
		return err
	}
	if err := ts.AddField("resp", yTrials); err != nil {
		return err
	}

	opt := &trf.Options{
		TMin:    0.0,
		TMax:    0.05,
		SFreq:   100.0,
		RegType: models.RegTypeRidge,
		Alphas:  trf.DefaultAlphas(),
	}
	model, err := trf.New(opt)
	if err != nil {
		return err
	}

	if err := model.FitFields(ts, "stim", "resp"); err != nil {
		return err
	}

	channelScores, err := model.ScoreFields(ts, "stim", "resp", true)
	if err != nil {
		return err
	}
	for c, score := range channelScores {
		fmt.Printf("channel %d: score=%.4f\n", c, score)
	}

	if err := writeCharts(model, ts, channelScores, outDir); err != nil {
		return err
	}
	return writeModel(model, outDir)
}

func writeCharts(model *trf.TRF, ts *trialset.TrialSet, channelScores []float64, outDir string) error {
	preds, err := model.PredictFields(ts, "stim")
	if err != nil {
		return err
	}
	resp, err := ts.Resolve("resp")
	if err != nil {
		return err
	}
	delays, err := model.Delays()
	if err != nil {
		return err
	}
	m, err := model.Model()
	if err != nil {
		return err
	}
	sfreq := m.Options.SFreq

	page := components.NewPage()

	n, _, _ := preds[0].Dims()
	for c := range channelScores {
		actual := make([]float64, n)
		predicted := make([]float64, n)
		for i := 0; i < n; i++ {
			actual[i] = resp[0].At(i, c, 0)
			predicted[i] = preds[0].At(i, c, 0)
		}
		title := fmt.Sprintf("Channel %d (score %.3f)", c, channelScores[c])
		page.AddCharts(trf.LineTSeries(title, []string{"Actual", "Predicted"}, [][]float64{actual, predicted}))

		coef, err := model.Coef(c, 0)
		if err != nil {
			return err
		}
		page.AddCharts(trf.LineFilter(fmt.Sprintf("Channel %d filter", c), delays, sfreq, coef))
	}

	f, err := os.Create(filepath.Join(outDir, "trf_fit.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func writeModel(model *trf.TRF, outDir string) error {
	m, err := model.Model()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "trf_model.json"), out, 0o644)
}
