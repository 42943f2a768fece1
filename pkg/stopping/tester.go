// Copyright (c) 2017 Intel Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stopping

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tester computes p-value of the null hypothesis that two samples come from the same population.
// Samples of different lengths are truncated to the shorter one.
// Fewer than two values in either sample yield NaN.
type Tester interface {
	Name() string
	PValue(a, b []float64) float64
}

// Names of built in testers.
const (
	TTest       = "t"
	KSTest      = "ks"
	MannWhitney = "mannwhitney"
)

// TesterByName returns built in tester registered under name.
func TesterByName(name string) (Tester, error) {
	switch name {
	case TTest:
		return tTester{}, nil
	case KSTest:
		return ksTester{}, nil
	case MannWhitney:
		return mannWhitneyTester{}, nil
	}
	return nil, errors.Errorf("unknown tester %q, available: %s, %s, %s", name, TTest, KSTest, MannWhitney)
}

func truncate(a, b []float64) ([]float64, []float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return nil, nil, false
	}
	return a[:n], b[:n], true
}

// tTester is Student's two sample t-test with pooled variance.
type tTester struct{}

func (tTester) Name() string {
	return TTest
}

func (tTester) PValue(a, b []float64) float64 {
	a, b, ok := truncate(a, b)
	if !ok {
		return math.NaN()
	}
	n := float64(len(a))

	meanA, errA := stats.Mean(a)
	meanB, errB := stats.Mean(b)
	varA, errVarA := stats.SampleVariance(a)
	varB, errVarB := stats.SampleVariance(b)
	if errA != nil || errB != nil || errVarA != nil || errVarB != nil {
		return math.NaN()
	}

	degrees := 2*n - 2
	pooled := ((n-1)*varA + (n-1)*varB) / degrees
	standardError := math.Sqrt(pooled * 2 / n)
	if standardError == 0 {
		if meanA == meanB {
			return 1
		}
		return 0
	}

	t := math.Abs(meanA-meanB) / standardError
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: degrees}
	return clampProbability(2 * dist.Survival(t))
}

// ksTester is the two sample Kolmogorov-Smirnov test with asymptotic p-value.
type ksTester struct{}

func (ksTester) Name() string {
	return KSTest
}

func (ksTester) PValue(a, b []float64) float64 {
	a, b, ok := truncate(a, b)
	if !ok {
		return math.NaN()
	}
	x := sortedCopy(a)
	y := sortedCopy(b)
	distance := stat.KolmogorovSmirnov(x, nil, y, nil)

	n := float64(len(x))
	effective := math.Sqrt(n * n / (n + n))
	lambda := (effective + 0.12 + 0.11/effective) * distance
	return clampProbability(kolmogorovSurvival(lambda))
}

// kolmogorovSurvival evaluates Q_KS(lambda) = 2 * sum_{j>=1} (-1)^(j-1) exp(-2 j^2 lambda^2).
func kolmogorovSurvival(lambda float64) float64 {
	a2 := -2 * lambda * lambda
	sign := 2.0
	sum := 0.0
	previous := 0.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= 0.001*previous || math.Abs(term) <= 1e-8*sum {
			return sum
		}
		sign = -sign
		previous = math.Abs(term)
	}
	// Series does not converge for tiny lambda where samples are indistinguishable.
	return 1
}

// mannWhitneyTester is the Mann-Whitney U test with tie corrected normal approximation.
type mannWhitneyTester struct{}

func (mannWhitneyTester) Name() string {
	return MannWhitney
}

func (mannWhitneyTester) PValue(a, b []float64) float64 {
	a, b, ok := truncate(a, b)
	if !ok {
		return math.NaN()
	}

	type observation struct {
		value float64
		first bool
	}
	combined := make([]observation, 0, len(a)+len(b))
	for _, v := range a {
		combined = append(combined, observation{v, true})
	}
	for _, v := range b {
		combined = append(combined, observation{v, false})
	}
	sort.Slice(combined, func(i, j int) bool { return combined[i].value < combined[j].value })

	total := float64(len(combined))
	rankSum := 0.0
	tieCorrection := 0.0
	for i := 0; i < len(combined); {
		j := i
		for j+1 < len(combined) && combined[j+1].value == combined[i].value {
			j++
		}
		// Tied values share the average of their ranks.
		rank := float64(i+j)/2 + 1
		ties := float64(j - i + 1)
		tieCorrection += ties*ties*ties - ties
		for k := i; k <= j; k++ {
			if combined[k].first {
				rankSum += rank
			}
		}
		i = j + 1
	}

	n1 := float64(len(a))
	n2 := float64(len(b))
	u := rankSum - n1*(n1+1)/2
	mean := n1 * n2 / 2
	sigma := math.Sqrt(n1 * n2 / 12 * ((total + 1) - tieCorrection/(total*(total-1))))
	if sigma == 0 {
		return 1
	}

	z := math.Max(math.Abs(u-mean)-0.5, 0) / sigma
	return clampProbability(2 * distuv.UnitNormal.Survival(z))
}

func sortedCopy(values []float64) []float64 {
	result := append([]float64{}, values...)
	sort.Float64s(result)
	return result
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return math.Min(math.Max(p, 0), 1)
}
