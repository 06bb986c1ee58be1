/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"fmt"
	"hash/fnv"
)

// lockNamespace separates this application's advisory lock keyspace
// from other users of the same database.
const lockNamespace = 0x6373 // "cs"

// caseLockKey derives a stable 64-bit advisory lock key for a case.
func caseLockKey(caseID int64) int64 {
	h := fnv.New32a()
	fmt.Fprintf(h, "case-%d", caseID)

	return int64(lockNamespace)<<32 | int64(h.Sum32())
}

// AcquireCaseLock takes the case-scoped advisory lock guarding bulk
// clear-and-rewrite operations. The lock is session-bound: it is held on
// a dedicated connection and vanishes if the worker dies, so a crash can
// never strand a case in a locked state. Returns ErrCaseLocked when
// another operation holds it.
func (s *Store) AcquireCaseLock(ctx context.Context, caseID int64) (UnlockFunc, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for case lock: %w", err)
	}

	key := caseLockKey(caseID)

	var locked bool

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take case lock: %w", err)
	}

	if !locked {
		conn.Release()
		return nil, ErrCaseLocked
	}

	unlock := func(ctx context.Context) error {
		defer conn.Release()

		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			return fmt.Errorf("failed to release case lock: %w", err)
		}

		return nil
	}

	return unlock, nil
}
