package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/genqueue/internal/jobstate"
)

// RandomSeed asks the generator to pick a seed
const RandomSeed int64 = -1

var validate = validator.New()

// Request describes one batch of images to generate.
type Request struct {
	Prompt         string `json:"prompt"                    validate:"required,max=2000"`
	NegativePrompt string `json:"negative_prompt,omitempty" validate:"max=2000"`
	Steps          int    `json:"steps"                     validate:"required,gte=1"`
	BatchCount     int    `json:"batch_count"               validate:"required,gte=1,lte=16"`
	Seed           int64  `json:"seed"                      validate:"gte=-1"`
}

// Validate checks the request's field constraints.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Image is one generated image. Data holds PNG-encoded bytes.
type Image struct {
	Index          int    `json:"index"`
	Seed           int64  `json:"seed"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Data           []byte `json:"data"`
}

// Infotext renders the image's generation parameters the way they are shown
// next to the image and embedded in saved files.
func (img Image) Infotext() string {
	var b strings.Builder
	b.WriteString(img.Prompt)
	if img.NegativePrompt != "" {
		b.WriteString("\nNegative prompt: ")
		b.WriteString(img.NegativePrompt)
	}
	fmt.Fprintf(&b, "\nSteps: %d, Seed: %d, Size: %dx%d", img.Steps, img.Seed, img.Width, img.Height)
	return b.String()
}

// Generator is implemented by image generation pipelines. Implementations are
// not safe for concurrent use; callers serialize access through the job queue.
type Generator interface {
	// Load prepares the model. It is called once, before the first Generate.
	Load(ctx context.Context) error

	// Generate produces req.BatchCount images and passes each one to emit as
	// soon as it is ready. It returns emit's error unchanged if emit fails.
	// When ctx is cancelled or state is interrupted it stops and returns an
	// error wrapping context.Canceled.
	Generate(ctx context.Context, req Request, state *jobstate.JobContext, emit func(Image) error) error
}
