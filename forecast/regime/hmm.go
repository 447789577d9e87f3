// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package regime

import (
	"math"

	"github.com/jeremycod/bcco/errs"
)

// NumStates is the fixed regime count: Bull, Bear, HighVol, Normal.
const NumStates = 4

// Model is a discrete-emission HMM with learned parameters. Trained is
// false when the Baum-Welch pass was skipped or did not run to a usable
// fit; an untrained model is persisted with the flag so no consumer ever
// mistakes seed parameters for learned ones.
type Model struct {
	StateNames []string    `json:"state_names"`
	Initial    []float64   `json:"initial"`
	Transition [][]float64 `json:"transition"`
	Emission   [][]float64 `json:"emission"`
	Accuracy   float64     `json:"accuracy"`
	Trained    bool        `json:"trained"`
}

// probFloor keeps every probability strictly positive so the forward/
// backward recursions never hit log(0); rows are re-normalised after the
// floor is applied.
const probFloor = 1e-10

// seedModel builds the initial parameter guess for Baum-Welch: a sticky
// diagonal transition matrix and emissions spread over the alphabet with
// a mild state-dependent tilt to break symmetry.
func seedModel(numStates, numSymbols int) *Model {
	m := &Model{
		StateNames: make([]string, numStates),
		Initial:    make([]float64, numStates),
		Transition: make([][]float64, numStates),
		Emission:   make([][]float64, numStates),
	}
	for i := 0; i < numStates; i++ {
		m.Initial[i] = 1.0 / float64(numStates)
		m.Transition[i] = make([]float64, numStates)
		for j := 0; j < numStates; j++ {
			if i == j {
				m.Transition[i][j] = 0.85
			} else {
				m.Transition[i][j] = 0.15 / float64(numStates-1)
			}
		}
		m.Emission[i] = make([]float64, numSymbols)
		for k := 0; k < numSymbols; k++ {
			// Tilt each state toward a different part of the alphabet.
			m.Emission[i][k] = 1.0 + 0.5*math.Cos(float64(i+1)*float64(k+1))
		}
		normalize(m.Emission[i])
	}
	return m
}

// BaumWelch estimates HMM parameters from an observation sequence,
// iterating expectation-maximisation until the log-likelihood improves
// by less than tol or maxIterations is reached. The returned model's
// Accuracy is the normalised exponential of the per-observation
// log-likelihood, clamped to [0,1].
func BaumWelch(observations []int, numStates, numSymbols, maxIterations int, tol float64) (*Model, error) {
	T := len(observations)
	if T < 2 {
		return nil, errs.New(errs.Validation, "observation sequence too short for training").
			WithField("observations", T)
	}
	for _, o := range observations {
		if o < 0 || o >= numSymbols {
			return nil, errs.New(errs.Validation, "observation symbol out of range").WithField("symbol", o)
		}
	}

	m := seedModel(numStates, numSymbols)
	prevLL := math.Inf(-1)

	for iter := 0; iter < maxIterations; iter++ {
		alpha, scale := forward(m, observations)
		beta := backward(m, observations, scale)

		ll := 0.0
		for _, c := range scale {
			ll -= math.Log(c)
		}

		// gamma[t][i]: P(state i at t | observations)
		gamma := make([][]float64, T)
		for t := 0; t < T; t++ {
			gamma[t] = make([]float64, numStates)
			for i := 0; i < numStates; i++ {
				gamma[t][i] = alpha[t][i] * beta[t][i]
			}
			normalize(gamma[t])
		}

		// xi sums: expected transitions i -> j over the whole sequence.
		xiSum := make([][]float64, numStates)
		for i := range xiSum {
			xiSum[i] = make([]float64, numStates)
		}
		for t := 0; t < T-1; t++ {
			denom := 0.0
			for i := 0; i < numStates; i++ {
				for j := 0; j < numStates; j++ {
					denom += alpha[t][i] * m.Transition[i][j] * m.Emission[j][observations[t+1]] * beta[t+1][j]
				}
			}
			if denom <= 0 {
				continue
			}
			for i := 0; i < numStates; i++ {
				for j := 0; j < numStates; j++ {
					xiSum[i][j] += alpha[t][i] * m.Transition[i][j] * m.Emission[j][observations[t+1]] * beta[t+1][j] / denom
				}
			}
		}

		// M-step.
		for i := 0; i < numStates; i++ {
			m.Initial[i] = gamma[0][i]

			gammaSum := 0.0
			for t := 0; t < T-1; t++ {
				gammaSum += gamma[t][i]
			}
			for j := 0; j < numStates; j++ {
				if gammaSum > 0 {
					m.Transition[i][j] = xiSum[i][j] / gammaSum
				}
				if m.Transition[i][j] < probFloor {
					m.Transition[i][j] = probFloor
				}
			}
			normalize(m.Transition[i])

			emitDenom := 0.0
			emitNum := make([]float64, numSymbols)
			for t := 0; t < T; t++ {
				emitDenom += gamma[t][i]
				emitNum[observations[t]] += gamma[t][i]
			}
			for k := 0; k < numSymbols; k++ {
				if emitDenom > 0 {
					m.Emission[i][k] = emitNum[k] / emitDenom
				}
				if m.Emission[i][k] < probFloor {
					m.Emission[i][k] = probFloor
				}
			}
			normalize(m.Emission[i])
		}

		if ll-prevLL < tol && iter > 0 {
			prevLL = ll
			break
		}
		prevLL = ll
	}

	m.Accuracy = accuracyProxy(prevLL, T)
	m.Trained = true
	return m, nil
}

// accuracyProxy maps the mean per-observation log-likelihood into [0,1].
func accuracyProxy(totalLL float64, observations int) float64 {
	if observations == 0 || math.IsInf(totalLL, -1) {
		return 0
	}
	acc := math.Exp(totalLL / float64(observations))
	if acc < 0 {
		return 0
	}
	if acc > 1 {
		return 1
	}
	return acc
}

// forward runs the scaled forward recursion, returning alpha and the
// per-step scaling factors (reciprocals of the step likelihoods).
func forward(m *Model, observations []int) (alpha [][]float64, scale []float64) {
	T := len(observations)
	n := len(m.Initial)
	alpha = make([][]float64, T)
	scale = make([]float64, T)

	alpha[0] = make([]float64, n)
	for i := 0; i < n; i++ {
		alpha[0][i] = m.Initial[i] * m.Emission[i][observations[0]]
	}
	scale[0] = scaleRow(alpha[0])

	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, n)
		for j := 0; j < n; j++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += alpha[t-1][i] * m.Transition[i][j]
			}
			alpha[t][j] = sum * m.Emission[j][observations[t]]
		}
		scale[t] = scaleRow(alpha[t])
	}
	return alpha, scale
}

func backward(m *Model, observations []int, scale []float64) [][]float64 {
	T := len(observations)
	n := len(m.Initial)
	beta := make([][]float64, T)

	beta[T-1] = make([]float64, n)
	for i := 0; i < n; i++ {
		beta[T-1][i] = scale[T-1]
	}

	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, n)
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += m.Transition[i][j] * m.Emission[j][observations[t+1]] * beta[t+1][j]
			}
			beta[t][i] = sum * scale[t]
		}
	}
	return beta
}

// scaleRow normalises row to sum 1 and returns the scaling factor
// 1/sum applied.
func scaleRow(row []float64) float64 {
	sum := 0.0
	for _, v := range row {
		sum += v
	}
	if sum <= 0 {
		// Degenerate step; fall back to uniform to keep the recursion
		// alive. The likelihood contribution is floored accordingly.
		for i := range row {
			row[i] = 1.0 / float64(len(row))
		}
		return 1 / probFloor
	}
	for i := range row {
		row[i] /= sum
	}
	return 1 / sum
}

func normalize(row []float64) {
	sum := 0.0
	for _, v := range row {
		sum += v
	}
	if sum <= 0 {
		for i := range row {
			row[i] = 1.0 / float64(len(row))
		}
		return
	}
	for i := range row {
		row[i] /= sum
	}
}
