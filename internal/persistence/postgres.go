// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"placidsketch"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS stable_flows (
//   flow_id TEXT NOT NULL,
//   start_window BIGINT NOT NULL,
//   end_window BIGINT NOT NULL,
//   subflows INT NOT NULL,
//   mean REAL NOT NULL,
//   variance REAL NOT NULL,
//   ts TIMESTAMPTZ NOT NULL DEFAULT now(),
//   PRIMARY KEY (flow_id, start_window)
// );
//
// The (flow_id, start_window) primary key makes delivery idempotent:
//   INSERT ... ON CONFLICT DO NOTHING
// so a replayed trace never duplicates rows.

// PostgresReportWriter persists stable-flow reports through database/sql.
// It does not import a driver; callers open the *sql.DB with whichever
// Postgres driver they deploy.
type PostgresReportWriter struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

func NewPostgresReportWriter(db *sql.DB) *PostgresReportWriter {
	return &PostgresReportWriter{db: db, defaultTimeout: 10 * time.Second}
}

const insertReportSQL = `
INSERT INTO stable_flows (flow_id, start_window, end_window, subflows, mean, variance)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`

// PublishReport inserts one report. Duplicate (flow, start) pairs are no-ops.
func (p *PostgresReportWriter) PublishReport(ctx context.Context, r placidsketch.StableFlowReport) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}
	_, err := p.db.ExecContext(ctx, insertReportSQL,
		hex.EncodeToString(r.FlowID[:]),
		int64(r.StartWindow),
		int64(r.EndWindow),
		int32(r.Subflows),
		r.Mean,
		r.Variance,
	)
	if err != nil {
		return fmt.Errorf("insert stable flow: %w", err)
	}
	return nil
}
