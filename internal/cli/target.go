package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/starford/cfgswap/internal"
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/models"
)

type statusView struct {
	engine.Status `yaml:",inline"`
	Profiles      int `json:"profiles" yaml:"profiles"`
}

func (r *runner) status(ctx context.Context, _ *cli.Command, app *internal.App, p *printer) error {
	st, err := app.Service.Status(ctx)
	if err != nil {
		return err
	}
	total, err := app.Store.Count(ctx)
	if err != nil {
		return err
	}
	return p.emit(statusView{Status: *st, Profiles: total}, func(w io.Writer) error {
		fmt.Fprintf(w, "Target:   %s\n", st.Target)
		fmt.Fprintf(w, "Exists:   %s\n", yesNo(st.Exists))
		if st.Exists {
			fmt.Fprintf(w, "Valid:    %s\n", yesNo(st.Valid))
			if st.ModTime != nil {
				fmt.Fprintf(w, "Modified: %s\n", stamp(*st.ModTime))
			}
			fmt.Fprintf(w, "Size:     %d bytes\n", st.Size)
		}
		if st.Active != nil {
			fmt.Fprintf(w, "Active:   %s (%s)\n", st.Active.Name, st.Active.ID)
		} else {
			fmt.Fprintln(w, "Active:   none")
		}
		fmt.Fprintf(w, "Backups:  %d in %s (retention %d)\n", st.BackupCount, st.BackupDir, st.Retention)
		_, err := fmt.Fprintf(w, "Profiles: %d\n", total)
		return err
	})
}

type reconcileView struct {
	Active *models.Profile `json:"active" yaml:"active"`
}

func (r *runner) reconcile(ctx context.Context, _ *cli.Command, app *internal.App, p *printer) error {
	active, err := app.Service.Reconcile(ctx)
	if err != nil {
		return err
	}
	return p.emit(reconcileView{Active: active}, func(w io.Writer) error {
		if active == nil {
			_, err := fmt.Fprintln(w, "No profile matches the settings file")
			return err
		}
		_, err := fmt.Fprintf(w, "Active profile: %s (%s)\n", active.Name, active.ID)
		return err
	})
}

type historyView struct {
	Entries []models.AuditEntry `json:"entries" yaml:"entries"`
}

func (r *runner) history(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	entries, err := app.Service.History(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return p.emit(historyView{Entries: entries}, func(w io.Writer) error {
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, "No history")
			return err
		}
		return table(w, "WHEN\tOUTCOME\tPROFILE\tSTEP\tMESSAGE", func(tw io.Writer) {
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					stamp(e.CreatedAt), e.Outcome, orDash(e.ProfileID), orDash(e.Step), orDash(e.Message))
			}
		})
	})
}
