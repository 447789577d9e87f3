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
	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/store"
)

// Regime is the scored current market state.
type Regime struct {
	State      string  `json:"state"`
	Confidence float64 `json:"confidence"`
}

// Score filters the recent observation symbols through the trained model
// and returns the most probable current state with its posterior
// probability. Refuses to score an untrained model.
func Score(model store.HMMModel, recentSymbols []int) (Regime, error) {
	if !model.Trained {
		return Regime{}, errs.New(errs.Validation, "regime model is untrained").
			WithField("model_name", model.ModelName)
	}
	if len(recentSymbols) == 0 {
		return Regime{}, errs.New(errs.Validation, "no observations to score")
	}

	n := model.NumStates
	m := &Model{
		StateNames: model.StateNames,
		Initial:    make([]float64, n),
		Transition: model.TransitionMatrix,
		Emission:   model.EmissionMatrix,
	}
	for i := 0; i < n; i++ {
		m.Initial[i] = 1.0 / float64(n)
	}

	alpha, _ := forward(m, recentSymbols)
	posterior := alpha[len(alpha)-1]

	best := 0
	for i := 1; i < n; i++ {
		if posterior[i] > posterior[best] {
			best = i
		}
	}
	return Regime{State: model.StateNames[best], Confidence: posterior[best]}, nil
}
