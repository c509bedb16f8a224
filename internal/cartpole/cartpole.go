package cartpole

import (
	"math"
	"math/rand"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	defaultXThreshold     = 2.4
	defaultThetaThreshold = 12.0 * math.Pi / 180.0
	defaultMaxSteps       = 500
)

// ObservationSize is the length of State.Observation.
const ObservationSize = 4

type State struct {
	X        float64 `json:"x"`
	XDot     float64 `json:"x_dot"`
	Theta    float64 `json:"theta"`
	ThetaDot float64 `json:"theta_dot"`
}

// Observation is the state as the flat vector a policy consumes.
func (s State) Observation() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

// Config bounds an episode. Zero fields take the classic control defaults.
type Config struct {
	MaxSteps       int     `mapstructure:"maxSteps"`
	XThreshold     float64 `mapstructure:"xThreshold"`
	ThetaThreshold float64 `mapstructure:"thetaThreshold"`
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaultMaxSteps
	}
	if c.XThreshold <= 0 {
		c.XThreshold = defaultXThreshold
	}
	if c.ThetaThreshold <= 0 {
		c.ThetaThreshold = defaultThetaThreshold
	}
	return c
}

type Env struct {
	State  State
	Steps  int
	Rand   *rand.Rand
	Config Config
}

func NewEnv(rng *rand.Rand, cfg Config) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	env := &Env{Rand: rng, Config: cfg.withDefaults()}
	env.Reset()
	return env
}

// MaxSteps is the episode length at which Step reports done.
func (e *Env) MaxSteps() int {
	return e.Config.MaxSteps
}

func (e *Env) Reset() State {
	e.State = State{
		X:        e.uniform(),
		XDot:     e.uniform(),
		Theta:    e.uniform(),
		ThetaDot: e.uniform(),
	}
	e.Steps = 0
	return e.State
}

func (e *Env) uniform() float64 {
	return e.Rand.Float64()*0.1 - 0.05
}

// Step pushes the cart left for action 0 and right otherwise. The reward is
// 1 for every step the pole stays up and 0 for the step that drops it.
func (e *Env) Step(action int) (State, float64, bool) {
	force := forceMax
	if action == 0 {
		force = -forceMax
	}

	s := e.State
	cosTheta := math.Cos(s.Theta)
	sinTheta := math.Sin(s.Theta)

	temp := (force + poleMassLength*s.ThetaDot*s.ThetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	e.State = State{
		X:        s.X + tau*s.XDot,
		XDot:     s.XDot + tau*xAcc,
		Theta:    s.Theta + tau*s.ThetaDot,
		ThetaDot: s.ThetaDot + tau*thetaAcc,
	}
	e.Steps++

	fell := math.Abs(e.State.X) > e.Config.XThreshold || math.Abs(e.State.Theta) > e.Config.ThetaThreshold
	done := fell || e.Steps >= e.Config.MaxSteps
	reward := 1.0
	if fell && e.Steps < e.Config.MaxSteps {
		reward = 0.0
	}
	return e.State, reward, done
}
