package teams

import (
	"context"
	"fmt"

	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/tools"
)

// Writing team worker names and document names.
const (
	WorkerNoteTaker = "note_taker"
	WorkerDocWriter = "doc_writer"

	notesDocument = "notes.md"
	draftDocument = "draft.md"
)

// WritingWorkers builds the writing team's workers over the document
// workspace. The note taker distills the research into notes.md; the doc
// writer turns the notes into draft.md.
func WritingWorkers(o oracle.Oracle, ws *tools.Workspace) []*Worker {
	noteTaker := &Worker{
		Name: WorkerNoteTaker,
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			research := st.TeamResults[state.TeamResearch]
			if research == "" {
				research = "(no research output available)"
			}

			notes, err := o.Complete(ctx, fmt.Sprintf(
				"You are a note-taking agent. Produce structured working notes for the task from the research below.\n\nTASK:\n%s\n\nRESEARCH:\n%s",
				st.CurrentTask, research))
			if err != nil {
				return st, "", err
			}
			if err := ws.Write(notesDocument, notes); err != nil {
				return st, "", fmt.Errorf("saving notes: %w", err)
			}
			return st, "notes saved to " + notesDocument + ":\n" + notes, nil
		},
	}

	docWriter := &Worker{
		Name: WorkerDocWriter,
		Run: func(ctx context.Context, st *state.RunState) (*state.RunState, string, error) {
			notes, err := ws.Read(notesDocument)
			if err != nil {
				// Fall back to whatever the team has produced so far
				notes = st.TeamResults[state.TeamWriting]
			}
			if notes == "" {
				return st, "", fmt.Errorf("no notes available to write from")
			}

			doc, err := o.Complete(ctx, fmt.Sprintf(
				"You are a document-writing agent. Write the final deliverable for the task from these notes.\n\nTASK:\n%s\n\nNOTES:\n%s",
				st.CurrentTask, notes))
			if err != nil {
				return st, "", err
			}
			if err := ws.Write(draftDocument, doc); err != nil {
				return st, "", fmt.Errorf("saving draft: %w", err)
			}
			return st, doc, nil
		},
	}

	return []*Worker{noteTaker, docWriter}
}
