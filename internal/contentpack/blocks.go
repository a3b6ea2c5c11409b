package contentpack

import (
	"strings"
)

// Block is the text a reply produced for one id. Header is the id line as
// the model wrote it.
type Block struct {
	Header string
	Body   string
}

func (b Block) empty() bool {
	return strings.TrimSpace(b.Body) == ""
}

// Blocks maps canonical ids to their collected block.
type Blocks map[string]Block

// Count returns the number of ids with a non-empty block.
func (b Blocks) Count() int {
	n := 0
	for _, block := range b {
		if !block.empty() {
			n++
		}
	}
	return n
}

// Merge folds other into b, keeping the longer body when an id repeats.
func (b Blocks) Merge(other Blocks) {
	for id, block := range other {
		if existing, ok := b[id]; ok && len(strings.TrimSpace(existing.Body)) >= len(strings.TrimSpace(block.Body)) {
			continue
		}
		b[id] = block
	}
}

type parserMode int

const (
	outside parserMode = iota
	inside
	stopped
)

// parserState is threaded through the line fold. Lines seen while outside
// are dropped; once stopped nothing else is read.
type parserState struct {
	mode   parserMode
	id     string
	header string
	body   []string
	blocks Blocks
}

func (s parserState) flush() parserState {
	if s.mode == inside {
		s.blocks.Merge(Blocks{s.id: {Header: s.header, Body: strings.TrimSpace(strings.Join(s.body, "\n"))}})
	}
	s.id, s.header, s.body = "", "", nil
	return s
}

func (s parserState) step(line string, expected map[string]string) parserState {
	if s.mode == stopped {
		return s
	}
	if isCoverageMarker(line) {
		s = s.flush()
		s.mode = stopped
		return s
	}
	if token, ok := lineID(line); ok {
		s = s.flush()
		canonical, known := expected[strings.ToLower(token)]
		if !known {
			s.mode = outside
			return s
		}
		s.mode = inside
		s.id = canonical
		s.header = strings.TrimSpace(line)
		return s
	}
	if s.mode == inside {
		s.body = append(s.body, line)
	}
	return s
}

// ParseBlocks splits a reply into per-id blocks. Ids outside expected open
// no block, and everything after a coverage marker line is ignored.
func ParseBlocks(reply string, expected []string) Blocks {
	lookup := make(map[string]string, len(expected))
	for _, id := range expected {
		lookup[strings.ToLower(id)] = id
	}
	state := parserState{mode: outside, blocks: Blocks{}}
	for _, line := range strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n") {
		state = state.step(line, lookup)
	}
	return state.flush().blocks
}

func isCoverageMarker(line string) bool {
	normalized := strings.TrimLeft(normalize(strings.TrimSpace(line)), "#*_>- \t")
	return strings.HasPrefix(normalized, "coverage check") || strings.HasPrefix(normalized, "[server coverage check]")
}

type Coverage struct {
	ExpectedIDs []string `json:"expected_ids"`
	OutputIDs   []string `json:"output_ids"`
	MissingIDs  []string `json:"missing_ids"`
}

func (c Coverage) Complete() bool {
	return len(c.MissingIDs) == 0
}

func ComputeCoverage(expected []string, blocks Blocks) Coverage {
	coverage := Coverage{
		ExpectedIDs: append([]string{}, expected...),
		OutputIDs:   []string{},
		MissingIDs:  []string{},
	}
	for _, id := range expected {
		if block, ok := blocks[id]; ok && !block.empty() {
			coverage.OutputIDs = append(coverage.OutputIDs, id)
			continue
		}
		coverage.MissingIDs = append(coverage.MissingIDs, id)
	}
	return coverage
}

// Render joins the collected blocks in expected order and appends a server
// coverage block when ids are still missing.
func Render(expected []string, blocks Blocks) string {
	parts := []string{}
	for _, id := range expected {
		block, ok := blocks[id]
		if !ok || block.empty() {
			continue
		}
		parts = append(parts, block.Header+"\n"+block.Body)
	}
	coverage := ComputeCoverage(expected, blocks)
	if !coverage.Complete() {
		parts = append(parts, ServerCoverageCheck(coverage))
	}
	return strings.Join(parts, "\n\n")
}

func ServerCoverageCheck(coverage Coverage) string {
	lines := []string{
		"[SERVER COVERAGE CHECK]",
		"Input IDs: " + strings.Join(coverage.ExpectedIDs, ", "),
		"Output IDs: " + strings.Join(coverage.OutputIDs, ", "),
		"Missing IDs: " + strings.Join(coverage.MissingIDs, ", "),
	}
	return strings.Join(lines, "\n")
}
