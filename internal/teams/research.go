package teams

import (
	"context"
	"fmt"
	"strings"

	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/tools"
)

// Research team worker names.
const (
	WorkerSearch     = "search"
	WorkerWebScraper = "web_scraper"
)

// ResearchWorkers builds the research team's workers over the search tools.
// The search worker gathers sources and the scraper reads the most
// promising one in depth.
func ResearchWorkers(o oracle.Oracle, searcher *tools.Searcher) []*Worker {
	search := &Worker{
		Name: WorkerSearch,
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			if st.CurrentTask == "" {
				return st, "", fmt.Errorf("no current task to research")
			}
			results, err := searcher.Search(ctx, st.CurrentTask)
			if err != nil {
				return st, "", err
			}
			if len(results) == 0 {
				return st, "no results found for the task", nil
			}

			var sb strings.Builder
			for i, r := range results {
				if i >= 5 {
					break
				}
				fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
			}

			summary, err := o.Complete(ctx, fmt.Sprintf(
				"You are a research agent. Summarize what these search results tell us about the task.\n\nTASK:\n%s\n\nRESULTS:\n%s",
				st.CurrentTask, sb.String()))
			if err != nil {
				// The raw result list is still useful research output
				return st, sb.String(), nil
			}
			return st, summary + "\n\nsources:\n" + sb.String(), nil
		},
	}

	scraper := &Worker{
		Name: WorkerWebScraper,
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			target := firstURL(st.TeamResults[state.TeamResearch])
			if target == "" {
				return st, "", fmt.Errorf("no source URL available to scrape")
			}
			text, err := searcher.Scrape(ctx, target)
			if err != nil {
				return st, "", err
			}
			if len(text) > 4000 {
				text = text[:4000]
			}

			extract, err := o.Complete(ctx, fmt.Sprintf(
				"You are a research agent. Extract the key points relevant to the task from this page text.\n\nTASK:\n%s\n\nPAGE (%s):\n%s",
				st.CurrentTask, target, text))
			if err != nil {
				return st, fmt.Sprintf("raw content from %s:\n%s", target, text), nil
			}
			return st, fmt.Sprintf("key points from %s:\n%s", target, extract), nil
		},
	}

	return []*Worker{search, scraper}
}

// firstURL scans accumulated research output for the first http(s) link.
func firstURL(text string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if idx := strings.Index(text, scheme); idx >= 0 {
			end := idx
			for end < len(text) && !strings.ContainsRune(" \t\n)>\"',", rune(text[end])) {
				end++
			}
			return text[idx:end]
		}
	}
	return ""
}
