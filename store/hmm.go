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

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/jeremycod/bcco/errs"
)

// HMMModel is the persisted form of a trained market-regime model:
// transition/emission matrices flattened to row-major JSON so the table
// schema doesn't need a dedicated matrix type.
type HMMModel struct {
	ModelName        string
	Market           string
	NumStates        int
	StateNames       []string
	TransitionMatrix [][]float64
	EmissionMatrix   [][]float64
	TrainingStart    time.Time
	TrainingEnd      time.Time
	Accuracy         float64
	// Trained is false when training was skipped for lack of data; the
	// placeholder row is persisted so operators can see the gap, but no
	// consumer may score against it.
	Trained bool
}

// SaveHMMModel upserts the trained model keyed by model_name.
func (s *Store) SaveHMMModel(ctx context.Context, m HMMModel) error {
	transition, err := json.Marshal(m.TransitionMatrix)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal transition matrix")
	}
	emission, err := json.Marshal(m.EmissionMatrix)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal emission matrix")
	}
	states, err := json.Marshal(m.StateNames)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal state names")
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO hmm_models (model_name, market, num_states, state_names,
			transition_matrix, emission_matrix, training_start, training_end, accuracy, trained, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (model_name) DO UPDATE SET
			market = EXCLUDED.market,
			num_states = EXCLUDED.num_states,
			state_names = EXCLUDED.state_names,
			transition_matrix = EXCLUDED.transition_matrix,
			emission_matrix = EXCLUDED.emission_matrix,
			training_start = EXCLUDED.training_start,
			training_end = EXCLUDED.training_end,
			accuracy = EXCLUDED.accuracy,
			trained = EXCLUDED.trained,
			updated_at = now()`,
		m.ModelName, m.Market, m.NumStates, states, transition, emission,
		m.TrainingStart, m.TrainingEnd, m.Accuracy, m.Trained)
	if err != nil {
		return errs.Wrap(errs.DbFailure, err, "save hmm model").WithField("model_name", m.ModelName)
	}
	return nil
}

// LoadHMMModel returns the persisted model for modelName. found is false
// if the model has never been trained -- the caller (forecast/regime)
// must fall back to an untrained state rather than treat this as an
// error.
func (s *Store) LoadHMMModel(ctx context.Context, modelName string) (m HMMModel, found bool, err error) {
	var states, transition, emission []byte
	row := s.conn.QueryRow(ctx, `
		SELECT model_name, market, num_states, state_names, transition_matrix,
		       emission_matrix, training_start, training_end, accuracy, trained
		FROM hmm_models WHERE model_name = $1`, modelName)
	scanErr := row.Scan(&m.ModelName, &m.Market, &m.NumStates, &states, &transition,
		&emission, &m.TrainingStart, &m.TrainingEnd, &m.Accuracy, &m.Trained)
	if scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return HMMModel{}, false, nil
		}
		return HMMModel{}, false, errs.Wrap(errs.DbFailure, scanErr, "load hmm model").WithField("model_name", modelName)
	}
	if err := json.Unmarshal(states, &m.StateNames); err != nil {
		return HMMModel{}, false, errs.Wrap(errs.DbFailure, err, "unmarshal state names")
	}
	if err := json.Unmarshal(transition, &m.TransitionMatrix); err != nil {
		return HMMModel{}, false, errs.Wrap(errs.DbFailure, err, "unmarshal transition matrix")
	}
	if err := json.Unmarshal(emission, &m.EmissionMatrix); err != nil {
		return HMMModel{}, false, errs.Wrap(errs.DbFailure, err, "unmarshal emission matrix")
	}
	return m, true, nil
}

// SaveMarketRegime upserts the scored current regime for a market, one
// row per (market, observation_date).
func (s *Store) SaveMarketRegime(ctx context.Context, market, regimeState string, confidence float64, observationDate time.Time) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO market_regimes (market, observation_date, regime, confidence, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (market, observation_date) DO UPDATE SET
			regime = EXCLUDED.regime,
			confidence = EXCLUDED.confidence,
			updated_at = now()`,
		market, observationDate, regimeState, confidence)
	if err != nil {
		return errs.Wrap(errs.DbFailure, err, "save market regime").WithField("market", market)
	}
	return nil
}
