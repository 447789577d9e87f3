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

// Package store is the persistence layer for the compute core: price
// history, portfolio holding/cash-flow snapshots, job run tracking, and
// every four-state cache table. It depends only on a minimal Conn
// interface so tests can swap in pgxmock without touching a real
// Postgres instance.
package store

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
)

// Conn is the subset of pgx's connection/pool surface the store package
// needs. pgxmock.PgxConnIface satisfies it, so tests can substitute a mock
// connection the same way tradecron_test.go calls database.SetPool.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store wraps a Conn with every table-specific accessor. It holds no other
// state: callers are expected to construct one per process and share it
// (it is safe for concurrent use, same as a *pgxpool.Pool).
type Store struct {
	conn Conn
}

// New wraps an existing connection/pool. Used directly in tests with a
// pgxmock connection.
func New(conn Conn) *Store {
	return &Store{conn: conn}
}

// Connect opens a pgxpool.Pool against the given DSN and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		log.Error().Err(err).Msg("could not connect to database")
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("database ping failed")
		return nil, err
	}
	return &Store{conn: pool}, nil
}
