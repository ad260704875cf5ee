package demo

import (
	"fmt"
)

const demoDomain = "shop.example.com"
const demoPage = "/checkout"

func stepDoctor(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("doctor")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("db_path=%s", getStr(m, "data", "db_path"))
	return nil
}

func stepDBPath(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("db", "path")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("path=%s source=%s", getStr(m, "data", "path"), getStr(m, "data", "source"))
	return nil
}

func stepSubmitRun(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("run", "submit", "--domain", demoDomain, "--page", demoPage, "--total-steps", "3")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	ctx.RunID = getStr(m, "data", "run_id")
	if ctx.RunID == "" {
		return fmt.Errorf("no run_id in response: %s", raw)
	}
	r.printDetail("run_id=%s domain=%s page=%s", ctx.RunID, demoDomain, demoPage)
	return nil
}

func stepGetQueuedRun(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("run", "get", "--id", ctx.RunID)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("status=%s", getStr(m, "data", "Status"))
	return nil
}

func stepClaimRun(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("run", "claim", "--id", ctx.RunID)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("worker=%s", getStr(m, "data", "worker"))
	return nil
}

func stepRejectForeignClaim(r *Runner, ctx *DemoContext) error {
	minimal := `{"test_id": "x", "status": "passed", "total_steps": 0, "passed": 0, "failed": 0, "per_step": [], "metrics": {}}`
	m, raw, err := r.scoutAsWorkerWithStdin("impostor-worker", minimal, "run", "complete", "--id", ctx.RunID)
	if err == nil && m != nil && m["success"] == true {
		return fmt.Errorf("expected claim rejection for a worker that never claimed the run, got success: %s", raw)
	}
	r.printDetail("rejected: %s", getStr(m, "error"))
	return nil
}

func stepCompleteRun(r *Runner, ctx *DemoContext) error {
	result := `{
		"test_id": "checkout-happy-path",
		"status": "passed",
		"total_steps": 3,
		"passed": 3,
		"failed": 0,
		"recovered": 1,
		"duration_ms": 4200,
		"per_step": [
			{"number": 1, "action": "navigate", "target": "/checkout", "status": "passed", "duration_ms": 800},
			{"number": 2, "action": "click", "target": "#place-order", "status": "recovered", "selector_used": "text=Place Order", "tier": "heuristic", "duration_ms": 2100},
			{"number": 3, "action": "assert_text", "target": "#confirmation", "status": "passed", "duration_ms": 1300}
		],
		"metrics": {"ai_calls": 0, "kb_hits": 2, "ai_dependency_pct": 0, "recovery_rate": 0.3333},
		"started_at": "2026-01-01T00:00:00Z"
	}`

	m, raw, err := r.scoutWithStdin(result, "run", "complete", "--id", ctx.RunID)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("recorded result for run_id=%s", ctx.RunID)
	return nil
}

func stepGetCompletedRun(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("run", "get", "--id", ctx.RunID)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("status=%s passed=%v failed=%v", getStr(m, "data", "Status"), mGet(m, "data", "Passed"), mGet(m, "data", "Failed"))
	return nil
}

func stepListRecentRuns(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("run", "list", "--domain", demoDomain, "--limit", "5")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("count=%v", mGet(m, "data", "count"))
	return nil
}

func stepStatusSummary(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.scout("status", "--limit", "5")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("db_ok=%v", mGet(m, "data", "db", "ok"))
	return nil
}

func mGet(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[k]
	}
	return cur
}
