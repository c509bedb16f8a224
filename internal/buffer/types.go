package buffer

// Step is the wire form of one recorded timestep.
type Step struct {
	Obs     []float64 `json:"obs"`
	Action  int       `json:"action"`
	Reward  float64   `json:"reward"`
	Done    bool      `json:"done"`
	LogProb float64   `json:"log_prob"`
	Value   float64   `json:"value"`
}

type Trajectory struct {
	WorkerID      string  `json:"worker_id"`
	EpisodeID     int     `json:"episode_id"`
	Steps         []Step  `json:"steps"`
	EpisodeReward float64 `json:"episode_reward"`
	CreatedAtMs   int64   `json:"created_at_ms"`
}

type EnqueueRequest struct {
	BatchSentAtMs int64        `json:"batch_sent_at_ms"`
	Trajectories  []Trajectory `json:"trajectories"`
}

type EnqueueResponse struct {
	Absorbed  int `json:"absorbed"`
	Occupancy int `json:"occupancy"`
}

// BatchResponse is the current window of the trajectory buffer, oldest step
// first.
type BatchResponse struct {
	Size  int    `json:"size"`
	Steps []Step `json:"steps"`
}
