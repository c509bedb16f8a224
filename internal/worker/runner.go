package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"trajectory-rl/internal/buffer"
	"trajectory-rl/internal/cartpole"
)

// episodeBufferLength is the initial allocation of an episode buffer; most
// cart-pole episodes end long before the step limit.
const episodeBufferLength = 64

type Runner struct {
	WorkerID      string
	BufferURL     string
	TrainerURL    string
	BatchEpisodes int
	PolicyRefresh time.Duration
	Seed          int64
	Backoff       time.Duration
	Env           cartpole.Config
	Client        *http.Client
	Logger        *zap.Logger
}

func (r *Runner) Run(ctx context.Context) error {
	if r.BatchEpisodes <= 0 {
		return errors.New("batch episodes must be > 0")
	}
	if r.Backoff <= 0 {
		r.Backoff = 500 * time.Millisecond
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("worker_id", r.WorkerID))

	rng := rand.New(rand.NewSource(r.Seed))
	env := cartpole.NewEnv(rng, r.Env)
	policy := NewPolicy(DefaultWeights())
	lastPolicyPull := time.Time{}
	var episodeID int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if r.TrainerURL != "" && (r.PolicyRefresh == 0 || time.Since(lastPolicyPull) >= r.PolicyRefresh) {
			if weights, err := fetchPolicy(ctx, client, r.TrainerURL); err == nil {
				policy = NewPolicy(weights)
				lastPolicyPull = time.Now()
			} else {
				logger.Warn("policy fetch failed", zap.Error(err))
			}
		}

		trajectories := make([]buffer.Trajectory, 0, r.BatchEpisodes)
		for i := 0; i < r.BatchEpisodes; i++ {
			episodeID++
			traj, err := rollout(env, policy, rng)
			if err != nil {
				return fmt.Errorf("episode %d: %w", episodeID, err)
			}
			traj.WorkerID = r.WorkerID
			traj.EpisodeID = episodeID
			trajectories = append(trajectories, traj)
		}

		req := buffer.EnqueueRequest{
			BatchSentAtMs: time.Now().UnixMilli(),
			Trajectories:  trajectories,
		}

		status, err := postJSON(ctx, client, r.BufferURL+"/enqueue", req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("enqueue failed", zap.Error(err))
			sleep(ctx, r.Backoff)
			continue
		}
		logger.Debug("batch enqueued",
			zap.Int("episodes", len(trajectories)),
			zap.Int("status", status),
		)
		if status >= http.StatusInternalServerError {
			sleep(ctx, r.Backoff)
		}
	}
}

// rollout plays one episode, recording every step into a ring buffer sized
// to the episode limit.
func rollout(env *cartpole.Env, policy *Policy, rng *rand.Rand) (buffer.Trajectory, error) {
	rb, err := buffer.New(env.MaxSteps(), buffer.WithDefaultBufferLength(episodeBufferLength))
	if err != nil {
		return buffer.Trajectory{}, err
	}

	state := env.Reset()
	var episodeReward float64
	for {
		obs := state.Observation()
		action, logProb, value := policy.Action(obs, rng)
		nextState, reward, done := env.Step(action)

		if err := buffer.RecordStep(rb, buffer.Step{
			Obs:     obs,
			Action:  action,
			Reward:  reward,
			Done:    done,
			LogProb: logProb,
			Value:   value,
		}); err != nil {
			return buffer.Trajectory{}, err
		}

		episodeReward += reward
		state = nextState
		if done {
			break
		}
	}

	return buffer.Trajectory{
		Steps:         buffer.StepsFromBuffer(rb),
		EpisodeReward: episodeReward,
		CreatedAtMs:   time.Now().UnixMilli(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type policyResponse struct {
	Weights PolicyWeights `json:"weights"`
}

func fetchPolicy(ctx context.Context, client *http.Client, trainerURL string) (PolicyWeights, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trainerURL+"/policy", nil)
	if err != nil {
		return PolicyWeights{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return PolicyWeights{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return PolicyWeights{}, fmt.Errorf("trainer returned %d", resp.StatusCode)
	}
	var payload policyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PolicyWeights{}, err
	}
	if err := payload.Weights.Validate(cartpole.ObservationSize); err != nil {
		return PolicyWeights{}, err
	}
	return payload.Weights, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
