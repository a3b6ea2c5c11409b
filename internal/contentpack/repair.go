package contentpack

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
)

const (
	DefaultMaxPasses = 12
	DefaultBatchSize = 6
	maxStalledPasses = 2
	continueTurn     = "Continuing with the remaining content packs."
)

// RepairInstruction asks for exactly the target ids while restating the
// whole contract.
func RepairInstruction(controller Controller, target, completed []string) string {
	var b strings.Builder
	b.WriteString("Your previous answer did not cover every required content pack.\n")
	fmt.Fprintf(&b, "All expected IDs (%d): %s\n", len(controller.ExpectedIDs), strings.Join(controller.ExpectedIDs, ", "))
	fmt.Fprintf(&b, "Write the packs for exactly these IDs now: %s\n", strings.Join(target, ", "))
	if len(completed) > 0 {
		fmt.Fprintf(&b, "Already completed, do not repeat: %s\n", strings.Join(completed, ", "))
	} else {
		b.WriteString("Already completed, do not repeat: none\n")
	}
	if controller.IDSource == SourceResultRowIndex {
		b.WriteString("Row mapping (ID = source row):\n")
		for _, id := range target {
			fmt.Fprintf(&b, "- %s = %s\n", id, controller.RowLabels[id])
		}
	}
	b.WriteString("Rules:\n")
	b.WriteString("- Start every pack with its own line `ID: <id>` using the exact ID above.\n")
	fmt.Fprintf(&b, "- Keep the section order: %s.\n", strings.Join(Sections, ", "))
	b.WriteString("- Keep placeholder tokens such as [LINK] or {name} exactly as written.\n")
	fmt.Fprintf(&b, "- If you run out of space, stop after a complete pack and write `%s<next id>`.\n", ContinueToken)
	b.WriteString("- Do not ask questions and do not add commentary outside the packs.")
	return b.String()
}

// Invoker sends one conversation to the model and returns its text.
type Invoker func(ctx context.Context, turns []conversation.Turn) (string, error)

type Engine struct {
	MaxPasses int
	BatchSize int
	Logger    zerolog.Logger
}

type Outcome struct {
	Reply    string
	Coverage Coverage
	Passes   int
	Stalled  int
}

// Complete checks the first reply against the controller and, when ids are
// missing, re-prompts in batches until coverage is reached, the pass budget
// runs out or two passes in a row add nothing. Errors from a repair call
// count as a stalled pass.
func (e Engine) Complete(ctx context.Context, controller Controller, turns []conversation.Turn, firstReply string, invoke Invoker) Outcome {
	if !controller.Enabled {
		return Outcome{Reply: firstReply}
	}
	blocks := ParseBlocks(firstReply, controller.ExpectedIDs)
	coverage := ComputeCoverage(controller.ExpectedIDs, blocks)
	if coverage.Complete() {
		return Outcome{Reply: firstReply, Coverage: coverage}
	}

	maxPasses := e.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	passes, stalled := 0, 0
	for !coverage.Complete() && passes < maxPasses && stalled < maxStalledPasses {
		if ctx.Err() != nil {
			break
		}
		target := coverage.MissingIDs
		if len(target) > batchSize {
			target = target[:batchSize]
		}
		passes++
		before := blocks.Count()
		reply, err := invoke(ctx, repairTurns(turns, RepairInstruction(controller, target, coverage.OutputIDs)))
		if err != nil {
			stalled++
			e.Logger.Warn().Err(err).Int("pass", passes).Strs("target", target).Msg("repair pass failed")
			continue
		}
		blocks.Merge(ParseBlocks(reply, controller.ExpectedIDs))
		coverage = ComputeCoverage(controller.ExpectedIDs, blocks)
		if blocks.Count() > before {
			stalled = 0
		} else {
			stalled++
		}
		e.Logger.Debug().
			Int("pass", passes).
			Int("covered", len(coverage.OutputIDs)).
			Int("missing", len(coverage.MissingIDs)).
			Msg("repair pass finished")
	}

	// Prose outside blocks is dropped even when nothing parsed.
	return Outcome{
		Reply:    Render(controller.ExpectedIDs, blocks),
		Coverage: coverage,
		Passes:   passes,
		Stalled:  stalled,
	}
}

func repairTurns(turns []conversation.Turn, instruction string) []conversation.Turn {
	extended := make([]conversation.Turn, 0, len(turns)+2)
	extended = append(extended, turns...)
	extended = append(extended,
		conversation.Turn{Role: conversation.RoleAssistant, Content: continueTurn},
		conversation.Turn{Role: conversation.RoleUser, Content: instruction},
	)
	return conversation.MergeConsecutive(extended)
}
