// Package test provides integration tests that simulate a crash mid-session
// using real scout CLI commands against a temporary SQLite database.
package test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// crashRID generates a deterministic request ID for the crash recovery test.
func crashRID(phase string, step int) string {
	return fmt.Sprintf("crash_%s_%d", phase, step)
}

// TestCrashRecovery_OOM simulates an OOM crash mid-session and verifies the
// run ledger's durability. The "crash" is simulated by simply not calling
// cleanup hooks between phases — each scout invocation commits before
// returning, so all durably-written state survives across what would be a
// SIGKILL, and a fresh process pointed at the same database file picks up
// exactly where the last one left off.
//
// Phases:
//  1. Build up state (pre-crash): several queued runs, one claimed
//  2. Simulate OOM crash (no cleanup)
//  3. Recovery (new scout processes, same db file)
//  4. Continue working after recovery: complete the claimed run
//  5. Stress test — rapid claim/complete crash cycles
//  6. WAL recovery / final integrity check
func TestCrashRecovery_OOM(t *testing.T) {
	h := newHarness(t)
	h.worker = "crash-worker"

	var (
		runA string
		runB string
		runC string
	)

	t.Run("Phase1_BuildUpState", func(t *testing.T) {
		t.Run("step1_doctor", func(t *testing.T) {
			out := h.scout("doctor")
			requireSuccess(t, out)
		})

		t.Run("step2_submit_three_runs", func(t *testing.T) {
			out := h.scout("run", "submit", "--domain", demoDomain, "--page", "/checkout", "--total-steps", "3")
			runA = getStr(requireSuccess(t, out), "data", "run_id")
			require.NotEmpty(t, runA)

			out = h.scout("run", "submit", "--domain", demoDomain, "--page", "/cart", "--total-steps", "2")
			runB = getStr(requireSuccess(t, out), "data", "run_id")
			require.NotEmpty(t, runB)

			out = h.scout("run", "submit", "--domain", demoDomain, "--page", "/login", "--total-steps", "1")
			runC = getStr(requireSuccess(t, out), "data", "run_id")
			require.NotEmpty(t, runC)

			require.NotEqual(t, runA, runB)
			require.NotEqual(t, runB, runC)
		})

		t.Run("step3_claim_run_a", func(t *testing.T) {
			out := h.scout("run", "claim", "--id", runA)
			m := requireSuccess(t, out)
			require.Equal(t, h.worker, getStr(m, "data", "worker"))
		})

		t.Run("step4_idempotent_resubmit_is_noop", func(t *testing.T) {
			rid := crashRID("build", 4)
			out1 := h.scout("--request-id", rid, "run", "submit", "--domain", demoDomain, "--page", "/tmp1", "--total-steps", "1")
			id1 := getStr(requireSuccess(t, out1), "data", "run_id")

			out2 := h.scout("--request-id", rid, "run", "submit", "--domain", demoDomain, "--page", "/tmp2", "--total-steps", "9")
			id2 := getStr(requireSuccess(t, out2), "data", "run_id")
			require.Equal(t, id1, id2, "a retried submit with the same request id must not queue a second run")
		})
	})

	// -------------------------------------------------------------------
	// Phase 2: Simulate OOM crash. Nothing to do here — no in-process
	// state is held between scout invocations; each one opens the db,
	// commits, and exits. The next phase proves that holds: each scout call
	// in it is a new process that sees only what the database file holds.
	// -------------------------------------------------------------------

	t.Run("Phase3_Recovery", func(t *testing.T) {
		t.Run("step5_queued_runs_survive", func(t *testing.T) {
			out := h.scout("run", "list", "--domain", demoDomain, "--limit", "20")
			m := requireSuccess(t, out)
			runs, ok := m["data"].(map[string]any)["runs"].([]any)
			require.True(t, ok)
			ids := map[string]bool{}
			for _, raw := range runs {
				ids[raw.(map[string]any)["ID"].(string)] = true
			}
			require.True(t, ids[runA])
			require.True(t, ids[runB])
			require.True(t, ids[runC])
		})

		t.Run("step6_claimed_run_still_running", func(t *testing.T) {
			out := h.scout("run", "get", "--id", runA)
			m := requireSuccess(t, out)
			require.Equal(t, "running", getStr(m, "data", "Status"))
		})

		t.Run("step7_status_check", func(t *testing.T) {
			out := h.scout("status", "--check", "--limit", "5")
			m := requireSuccess(t, out)
			require.Equal(t, true, m["data"].(map[string]any)["query_ok"])
		})
	})

	t.Run("Phase4_ContinueAfterRecovery", func(t *testing.T) {
		t.Run("step8_complete_run_a", func(t *testing.T) {
			out := h.scoutWithStdin(minimalPassingResult("checkout-recovered", 3), "run", "complete", "--id", runA)
			requireSuccess(t, out)
		})

		t.Run("step9_completed_state_persists", func(t *testing.T) {
			out := h.scout("run", "get", "--id", runA)
			m := requireSuccess(t, out)
			require.Equal(t, "passed", getStr(m, "data", "Status"))
		})

		t.Run("step10_other_runs_unaffected", func(t *testing.T) {
			out := h.scout("run", "get", "--id", runB)
			m := requireSuccess(t, out)
			require.Equal(t, "queued", getStr(m, "data", "Status"))
		})
	})

	t.Run("Phase5_RapidCrashCycles", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			i := i
			t.Run(fmt.Sprintf("cycle_%d", i), func(t *testing.T) {
				if i == 0 {
					requireSuccess(t, h.scout("run", "claim", "--id", runB))
				} else {
					// Already claimed by the first cycle, so a second worker is rejected.
					m := mustJSON(t, h.scoutAsWorker("rival-worker", "run", "claim", "--id", runB))
					require.NotEqual(t, true, m["success"])
				}

				out := h.scout("run", "get", "--id", runB)
				m := requireSuccess(t, out)
				require.Equal(t, "running", getStr(m, "data", "Status"))
			})
		}

		t.Run("complete_run_b_after_cycles", func(t *testing.T) {
			out := h.scoutWithStdin(minimalPassingResult("cart-after-cycles", 2), "run", "complete", "--id", runB)
			requireSuccess(t, out)
		})
	})

	t.Run("Phase6_WALRecoveryAndIntegrity", func(t *testing.T) {
		t.Run("step_final_status_check", func(t *testing.T) {
			out := h.scout("status", "--check", "--limit", "10")
			m := requireSuccess(t, out)
			require.Equal(t, true, m["data"].(map[string]any)["query_ok"])
		})

		t.Run("step_final_run_states", func(t *testing.T) {
			out := h.scout("run", "get", "--id", runA)
			require.Equal(t, "passed", getStr(requireSuccess(t, out), "data", "Status"))

			out = h.scout("run", "get", "--id", runB)
			require.Equal(t, "passed", getStr(requireSuccess(t, out), "data", "Status"))

			out = h.scout("run", "get", "--id", runC)
			require.Equal(t, "queued", getStr(requireSuccess(t, out), "data", "Status"))
		})

		t.Run("step_doctor_still_healthy", func(t *testing.T) {
			out := h.scout("doctor")
			requireSuccess(t, out)
		})
	})
}
