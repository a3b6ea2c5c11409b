package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/companyurl"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

// Snippet is the prompt-ready view of one sibling row.
type Snippet struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
}

type Resolution struct {
	Parent   store.Record
	Company  string
	Results  []store.Record
	Contexts []store.Record
}

func (r Resolution) ResultSnippets() []Snippet {
	return Snippets(r.Results)
}

func (r Resolution) ContextSnippets() []Snippet {
	return Snippets(r.Contexts)
}

type Resolver struct {
	store  store.Store
	logger zerolog.Logger
}

func New(s store.Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: s, logger: logger.With().Str("component", "resolver").Logger()}
}

// Resolve loads the parent row and every sibling sharing its company. Rows
// without a company fall back to exact title matching. A missing parent
// returns store.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, conversationID string) (Resolution, error) {
	parent, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return Resolution{}, err
	}
	resolution := Resolution{Parent: parent, Results: []store.Record{}, Contexts: []store.Record{}}

	resultsQuery := store.Query{Type: store.TypeResults, ExcludeID: parent.ID}
	contextQuery := store.Query{Type: store.TypeContext}
	if company, ok := companyurl.Resolve(parent.Company, parent.SocialEntry); ok {
		resolution.Company = company
		variants := companyurl.Variants(company)
		resultsQuery.CompanyVariants = variants
		contextQuery.CompanyVariants = variants
	} else if title := strings.TrimSpace(parent.Title); title != "" {
		resultsQuery.Title = parent.Title
		contextQuery.Title = parent.Title
	} else {
		r.logger.Debug().Str("conversation_id", conversationID).Msg("no company or title to match siblings")
		return resolution, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		rows, err := r.store.List(groupCtx, resultsQuery)
		if err != nil {
			return fmt.Errorf("load results: %w", err)
		}
		resolution.Results = rows
		return nil
	})
	group.Go(func() error {
		rows, err := r.store.List(groupCtx, contextQuery)
		if err != nil {
			return fmt.Errorf("load context: %w", err)
		}
		resolution.Contexts = rows
		return nil
	})
	if err := group.Wait(); err != nil {
		return Resolution{}, err
	}

	r.logger.Debug().
		Str("conversation_id", conversationID).
		Str("company", resolution.Company).
		Int("results", len(resolution.Results)).
		Int("contexts", len(resolution.Contexts)).
		Msg("resolved conversation")
	return resolution, nil
}

// Snippets derives prompt snippets, preferring the context column over the
// social entry and skipping rows that end up empty.
func Snippets(records []store.Record) []Snippet {
	snippets := make([]Snippet, 0, len(records))
	for _, record := range records {
		content := strings.TrimSpace(record.Context)
		if content == "" {
			content = strings.TrimSpace(record.SocialEntry)
		}
		if content == "" {
			continue
		}
		snippets = append(snippets, Snippet{
			ID:        record.ID,
			Title:     strings.TrimSpace(record.Title),
			Content:   content,
			CreatedAt: record.CreatedAt,
		})
	}
	return snippets
}
