package model

import "time"

// GCPlan lists stored records whose tasks are no longer declared. It is
// written to .taskstate/gc/<plan-id>.json and executed separately.
type GCPlan struct {
	PlanID     string        `json:"plan_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Declared   []TaskID      `json:"declared"`
	ToDelete   []TaskID      `json:"to_delete"`
	KeepMinAge time.Duration `json:"keep_min_age"`
}
