package domain

type RunState string

const (
	RunNotStarted RunState = "not-started"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunAborted    RunState = "aborted"
)

// BatchReport is the durable artifact of one pipeline run: the final state
// of every record plus how the run itself ended.
type BatchReport struct {
	State        RunState
	AbortedStage Stage
	AbortReason  string
	StageOrder   []Stage
	Records      []*PhotoRecord
}

type StageCounts struct {
	Success int
	Failed  int
	Skipped int
	Pending int
}

func (r BatchReport) Counts(stage Stage) StageCounts {
	var c StageCounts
	for _, rec := range r.Records {
		switch rec.Result(stage).Status {
		case StatusSuccess:
			c.Success++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		default:
			c.Pending++
		}
	}
	return c
}

func (r BatchReport) FailedRecords() []*PhotoRecord {
	var failed []*PhotoRecord
	for _, rec := range r.Records {
		if !rec.Healthy() {
			failed = append(failed, rec)
		}
	}
	return failed
}

func (r BatchReport) HasFailures() bool {
	return r.State == RunAborted || len(r.FailedRecords()) > 0
}
