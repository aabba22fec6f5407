package moderation

import (
	"context"
	"strings"

	"github.com/whisper/moderation/internal/entity"
)

// Payload is the content assembled for one submission.
type Payload struct {
	Texts       []string
	ImageHandle string
}

// Assembler builds submission payloads from live entities.
type Assembler struct {
	gate *ImageGate
}

// NewAssembler creates an Assembler that gates images through gate.
func NewAssembler(gate *ImageGate) *Assembler {
	return &Assembler{gate: gate}
}

// Assemble reads the target and returns its non-blank text fragments, in
// order, and at most one eligible image. It returns ErrTargetGone when the
// target is deleted or already banned and ErrEmptyPayload when there is
// nothing to submit. Both are expected races, not faults.
func (a *Assembler) Assemble(ctx context.Context, t Target) (*Payload, error) {
	ok, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || t.status() == entity.StatusBanned {
		return nil, ErrTargetGone
	}

	texts, image := t.payload()
	p := &Payload{}
	for _, s := range texts {
		if strings.TrimSpace(s) != "" {
			p.Texts = append(p.Texts, s)
		}
	}
	if image != "" {
		p.ImageHandle, err = a.gate.Eligible(ctx, image)
		if err != nil {
			return nil, err
		}
	}

	if len(p.Texts) == 0 && p.ImageHandle == "" {
		return nil, ErrEmptyPayload
	}
	return p, nil
}
