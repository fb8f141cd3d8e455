package scaling

// Action is a roster recommendation.
type Action string

const (
	// ActionScaleUp recommends adding workers.
	ActionScaleUp Action = "scale_up"

	// ActionScaleDown recommends removing workers.
	ActionScaleDown Action = "scale_down"

	// ActionNone recommends no change.
	ActionNone Action = "none"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Decision is the result of evaluating the policy against the task counts
// and live worker count.
type Decision struct {
	Action Action `json:"action"`

	// Delta is the number of workers to add (positive) or remove (negative).
	// Zero when Action is ActionNone.
	Delta int `json:"delta"`

	Reason string `json:"reason"`
}
