package nn

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// History holds per-epoch metrics, keyed the way Keras reports them.
type History struct {
	Loss        []float64 `json:"loss"`
	Accuracy    []float64 `json:"accuracy"`
	ValLoss     []float64 `json:"val_loss,omitempty"`
	ValAccuracy []float64 `json:"val_accuracy,omitempty"`
	LR          []float64 `json:"lr"`
}

// Epochs returns the number of completed epochs.
func (h History) Epochs() int {
	return len(h.Loss)
}

// EpochStats is passed to FitConfig.OnEpoch after every epoch.
type EpochStats struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
	LR          float64
}

// EarlyStopping stops training when the monitored loss has not improved for
// Patience epochs.
type EarlyStopping struct {
	Patience           int
	MinDelta           float64
	RestoreBestWeights bool
}

// ReduceLROnPlateau multiplies the learning rate by Factor when the
// monitored loss has not improved for Patience epochs.
type ReduceLROnPlateau struct {
	Factor   float64
	Patience int
	MinDelta float64
	MinLR    float64
}

// FitConfig controls Fit.
type FitConfig struct {
	Epochs        int
	BatchSize     int
	LearningRate  float64
	EarlyStopping *EarlyStopping
	ReduceLR      *ReduceLROnPlateau
	OnEpoch       func(EpochStats)
}

// DefaultFitConfig mirrors the training recipe: 100 epochs of 32, Adam at
// 1e-3, early stopping after 10 flat epochs and LR halving after 5.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:       100,
		BatchSize:    32,
		LearningRate: 1e-3,
		EarlyStopping: &EarlyStopping{
			Patience:           10,
			RestoreBestWeights: true,
		},
		ReduceLR: &ReduceLROnPlateau{
			Factor:   0.5,
			Patience: 5,
			MinLR:    1e-7,
		},
	}
}

// Fit trains the network on x (rows are samples) with integer labels y.
// When valX is nil the callbacks monitor the training loss instead.
func (n *Network) Fit(ctx context.Context, x *mat.Dense, y []int, valX *mat.Dense, valY []int, cfg FitConfig) (History, error) {
	var hist History

	rows, cols := x.Dims()
	if rows == 0 {
		return hist, fmt.Errorf("no training samples")
	}
	if rows != len(y) {
		return hist, fmt.Errorf("%d samples but %d labels", rows, len(y))
	}
	if cols != n.inputs {
		return hist, fmt.Errorf("expected %d features, got %d", n.inputs, cols)
	}
	if valX != nil {
		if vr, _ := valX.Dims(); vr != len(valY) {
			return hist, fmt.Errorf("%d validation samples but %d labels", vr, len(valY))
		}
	}
	classes := n.Classes()
	for _, label := range append(append([]int(nil), y...), valY...) {
		if label < 0 || label >= classes {
			return hist, fmt.Errorf("label %d out of range [0,%d)", label, classes)
		}
	}

	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}

	opt := newAdam(cfg.LearningRate)
	ps := n.params()

	bestStop := math.Inf(1)
	stopWait := 0
	var bestWeights [][]float64

	bestPlateau := math.Inf(1)
	plateauWait := 0

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}

		perm := n.rng.Perm(rows)
		var lossSum float64
		var correct int
		for start := 0; start < rows; start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, rows)
			bx, by := gatherRows(x, y, perm[start:end])

			probs := n.Forward(bx, true)
			loss, grad := crossEntropy(probs, by)
			n.backward(grad)
			opt.step(ps)

			batch := float64(end - start)
			lossSum += loss * batch
			for i, p := range argmax(probs) {
				if p == by[i] {
					correct++
				}
			}
		}

		stats := EpochStats{
			Epoch:    epoch + 1,
			Loss:     lossSum / float64(rows),
			Accuracy: float64(correct) / float64(rows),
			LR:       opt.lr,
		}
		hist.Loss = append(hist.Loss, stats.Loss)
		hist.Accuracy = append(hist.Accuracy, stats.Accuracy)
		hist.LR = append(hist.LR, opt.lr)

		monitored := stats.Loss
		if valX != nil {
			stats.ValLoss, stats.ValAccuracy = n.Evaluate(valX, valY)
			hist.ValLoss = append(hist.ValLoss, stats.ValLoss)
			hist.ValAccuracy = append(hist.ValAccuracy, stats.ValAccuracy)
			monitored = stats.ValLoss
		}

		if cfg.OnEpoch != nil {
			cfg.OnEpoch(stats)
		}

		if rl := cfg.ReduceLR; rl != nil {
			if monitored < bestPlateau-rl.MinDelta {
				bestPlateau = monitored
				plateauWait = 0
			} else {
				plateauWait++
				if plateauWait >= rl.Patience && opt.lr > rl.MinLR {
					opt.lr = math.Max(opt.lr*rl.Factor, rl.MinLR)
					plateauWait = 0
				}
			}
		}

		if es := cfg.EarlyStopping; es != nil {
			if monitored < bestStop-es.MinDelta {
				bestStop = monitored
				stopWait = 0
				if es.RestoreBestWeights {
					bestWeights = n.snapshot()
				}
			} else {
				stopWait++
				if stopWait >= es.Patience {
					break
				}
			}
		}
	}

	if cfg.EarlyStopping != nil && cfg.EarlyStopping.RestoreBestWeights && bestWeights != nil {
		n.restore(bestWeights)
	}

	return hist, nil
}

// Evaluate returns the mean cross-entropy loss and the accuracy on x, y.
func (n *Network) Evaluate(x *mat.Dense, y []int) (loss, accuracy float64) {
	rows, _ := x.Dims()
	if rows == 0 {
		return 0, 0
	}
	probs := n.Forward(x, false)
	loss, _ = crossEntropy(probs, y)

	var correct int
	for i, p := range argmax(probs) {
		if p == y[i] {
			correct++
		}
	}
	return loss, float64(correct) / float64(rows)
}

// crossEntropy returns the mean sparse categorical cross-entropy and its
// gradient with respect to the softmax inputs.
func crossEntropy(probs *mat.Dense, y []int) (float64, *mat.Dense) {
	const eps = 1e-7

	rows, cols := probs.Dims()
	grad := mat.NewDense(rows, cols, nil)
	grad.Copy(probs)

	var loss float64
	n := float64(rows)
	for i := 0; i < rows; i++ {
		p := math.Min(math.Max(probs.At(i, y[i]), eps), 1-eps)
		loss -= math.Log(p)
		grad.Set(i, y[i], grad.At(i, y[i])-1)
	}
	grad.Scale(1/n, grad)

	return loss / n, grad
}

func gatherRows(x *mat.Dense, y []int, idx []int) (*mat.Dense, []int) {
	_, cols := x.Dims()
	data := make([]float64, 0, len(idx)*cols)
	labels := make([]int, len(idx))
	for i, r := range idx {
		data = append(data, x.RawRowView(r)...)
		labels[i] = y[r]
	}
	return mat.NewDense(len(idx), cols, data), labels
}

// adam is the Adam optimizer with Keras defaults.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
}

func (a *adam) step(ps []*param) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for _, p := range ps {
		for i, g := range p.grad {
			p.m[i] = a.beta1*p.m[i] + (1-a.beta1)*g
			p.v[i] = a.beta2*p.v[i] + (1-a.beta2)*g*g
			mHat := p.m[i] / c1
			vHat := p.v[i] / c2
			p.data[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
