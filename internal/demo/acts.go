package demo

// DemoContext holds shared state passed between steps.
type DemoContext struct {
	RunID       string
	SecondRunID string
}

// StepFunc is a function that runs a single demo step.
type StepFunc func(r *Runner, ctx *DemoContext) error

// Step represents a single named step within an act.
type Step struct {
	Name    string
	Fn      StepFunc
	Insight string
}

// Act represents a named act with narration and steps.
type Act struct {
	Number    int
	Name      string
	Narration []string
	Steps     []Step
}

// BuildActs returns all acts with their steps.
func BuildActs() []Act {
	return []Act{
		{
			Number: 1,
			Name:   "Standing Up The Ledger",
			Narration: []string{
				"Before a single step runs, the database needs a home and its schema applied.",
				"doctor checks connectivity, upgrade applies pending migrations.",
			},
			Steps: []Step{
				{Name: "doctor", Fn: stepDoctor, Insight: "The first command an operator runs in a new environment. Confirms the configured database is reachable and applies any pending schema migrations before anything else happens."},
				{Name: "db_path", Fn: stepDBPath, Insight: "Useful when SCOUT_DB_PATH or a config file is in play and it's not obvious which file scout actually opened."},
			},
		},
		{
			Number: 2,
			Name:   "Queuing A Test Case",
			Narration: []string{
				"A test case targets one (domain, page) pair and declares how many steps it has.",
				"Submitting queues it; nothing runs until a worker claims it.",
			},
			Steps: []Step{
				{Name: "submit_run", Fn: stepSubmitRun, Insight: "The run sits in the queue with status=queued until a worker claims it — multiple workers can poll the same queue safely."},
				{Name: "get_queued_run", Fn: stepGetQueuedRun, Insight: "Anyone can inspect a queued run's state before it's claimed."},
			},
		},
		{
			Number: 3,
			Name:   "Claiming And Executing",
			Narration: []string{
				"A worker claims the run, then the step orchestrator resolves selectors and",
				"executes each step. When it finishes, the worker reports the full RunResult back.",
			},
			Steps: []Step{
				{Name: "claim_run", Fn: stepClaimRun, Insight: "Claim is atomic: a second worker claiming the same run gets a claim-contention error, not a race."},
				{Name: "reject_foreign_claim", Fn: stepRejectForeignClaim, Insight: "Only the worker holding the claim can complete the run — this is what stops two workers from double-reporting results."},
				{Name: "complete_run", Fn: stepCompleteRun, Insight: "The orchestrator's RunResult — pass/fail counts, per-step outcomes, resolution-tier metrics — lands in one transaction."},
			},
		},
		{
			Number: 4,
			Name:   "Auditing The Run",
			Narration: []string{
				"Completed runs and their execution events are queryable after the fact —",
				"useful for a dashboard, or for feeding the pattern-learning pipeline.",
			},
			Steps: []Step{
				{Name: "get_completed_run", Fn: stepGetCompletedRun, Insight: "The metrics rollup (kb_hits, ai_calls, recovery_rate) tells you how much of this run needed AI assistance versus cached knowledge."},
				{Name: "list_recent_runs", Fn: stepListRecentRuns, Insight: "Recent-runs listing is how an operator spots a page that started failing after a site redesign."},
				{Name: "status_summary", Fn: stepStatusSummary, Insight: "One command for \"is the database healthy and what ran recently\" — the first thing to check when something looks wrong."},
			},
		},
	}
}
