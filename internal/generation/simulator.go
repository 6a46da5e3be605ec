package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/phrazzld/genqueue/internal/jobstate"
)

// SimulatorConfig configures a Simulator
type SimulatorConfig struct {
	// StepDelay is how long each sampling step takes
	StepDelay time.Duration

	// MaxSteps caps Request.Steps
	MaxSteps int

	// Width and Height are the size of generated images in pixels
	Width  int
	Height int
}

// DefaultSimulatorConfig returns a SimulatorConfig with reasonable defaults
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		StepDelay: 50 * time.Millisecond,
		MaxSteps:  150,
		Width:     64,
		Height:    64,
	}
}

// pausePoll is how often a paused job checks whether it may continue
const pausePoll = 10 * time.Millisecond

// Simulator implements Generator without an accelerator. It walks through the
// sampling steps of every image with a fixed delay and renders a small
// deterministic PNG from the seed.
type Simulator struct {
	config SimulatorConfig
	logger *slog.Logger
	loaded atomic.Bool
	seeds  func() int64
}

// NewSimulator creates a new Simulator.
func NewSimulator(config SimulatorConfig, logger *slog.Logger) (*Simulator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.StepDelay < 0 {
		return nil, fmt.Errorf("%w: step delay cannot be negative", ErrInvalidConfig)
	}
	if config.MaxSteps < 1 {
		return nil, fmt.Errorf("%w: max steps must be at least 1", ErrInvalidConfig)
	}
	if config.Width < 1 || config.Height < 1 {
		return nil, fmt.Errorf("%w: image size must be positive, got %dx%d",
			ErrInvalidConfig, config.Width, config.Height)
	}

	return &Simulator{
		config: config,
		logger: logger.With("component", "simulator"),
		seeds:  func() int64 { return rand.Int64N(1 << 32) },
	}, nil
}

// Load implements Generator.
func (s *Simulator) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	s.loaded.Store(true)
	s.logger.InfoContext(ctx, "model loaded",
		"width", s.config.Width,
		"height", s.config.Height,
		"max_steps", s.config.MaxSteps)
	return nil
}

// Loaded reports whether Load has completed.
func (s *Simulator) Loaded() bool {
	return s.loaded.Load()
}

// Generate implements Generator.
func (s *Simulator) Generate(
	ctx context.Context,
	req Request,
	state *jobstate.JobContext,
	emit func(Image) error,
) error {
	if !s.Loaded() {
		return ErrNotLoaded
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Steps > s.config.MaxSteps {
		return fmt.Errorf("%w: steps %d exceeds the maximum of %d",
			ErrInvalidRequest, req.Steps, s.config.MaxSteps)
	}

	seed := req.Seed
	if seed == RandomSeed {
		seed = s.seeds()
	}

	state.SetJobCount(req.BatchCount)
	state.SetSamplingSteps(req.Steps)

	for i := range req.BatchCount {
		completed, err := s.sample(ctx, state, req.Steps)
		if err != nil {
			return fmt.Errorf("image %d of %d: %w", i+1, req.BatchCount, err)
		}

		if completed {
			img, err := s.render(req, i, seed+int64(i))
			if err != nil {
				return err
			}
			if err := emit(img); err != nil {
				return err
			}
		} else {
			s.logger.DebugContext(ctx, "image skipped", "index", i)
		}
		state.NextJob()
	}

	return nil
}

// sample runs the sampling steps of one image. It reports false when the image
// was skipped.
func (s *Simulator) sample(ctx context.Context, state *jobstate.JobContext, steps int) (bool, error) {
	for step := range steps {
		if err := s.waitWhilePaused(ctx, state); err != nil {
			return false, err
		}
		if state.Interrupted() {
			return false, context.Canceled
		}
		if state.Skipped() {
			state.ClearSkip()
			return false, nil
		}

		if err := sleep(ctx, s.config.StepDelay); err != nil {
			return false, err
		}
		state.SetSamplingStep(step + 1)
	}
	return true, nil
}

func (s *Simulator) waitWhilePaused(ctx context.Context, state *jobstate.JobContext) error {
	for state.Paused() && !state.Interrupted() {
		if err := sleep(ctx, pausePoll); err != nil {
			return err
		}
	}
	return nil
}

// render draws a seeded noise pattern over a gradient.
func (s *Simulator) render(req Request, index int, seed int64) (Image, error) {
	w, h := s.config.Width, s.config.Height
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(req.Steps)))
	base := color.RGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			noise := uint8(rng.IntN(32))
			img.SetRGBA(x, y, color.RGBA{
				R: base.R + uint8(x*255/w)/4 + noise,
				G: base.G + uint8(y*255/h)/4 + noise,
				B: base.B + noise,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, fmt.Errorf("encoding image %d: %w", index, err)
	}

	return Image{
		Index:          index,
		Seed:           seed,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          w,
		Height:         h,
		Steps:          req.Steps,
		Data:           buf.Bytes(),
	}, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
