package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/cfgswap/internal"
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/store"
)

func contentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "file", Usage: "Read the settings document from a file (- for stdin)"},
		&cli.StringFlag{Name: "json", Usage: "Settings document as a string"},
	}
}

func (r *runner) profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage stored profiles",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List profiles",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "active-only", Usage: "Show only the active profile"},
				},
				Action: r.withApp(r.profileList),
			},
			{
				Name:      "search",
				Usage:     "Find profiles whose name or content contains a substring",
				ArgsUsage: "<query>",
				Action:    r.withApp(r.profileSearch),
			},
			{
				Name:      "show",
				Usage:     "Show one profile",
				ArgsUsage: "<id-or-name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "show-secrets", Usage: "Print tokens unmasked"},
				},
				Action: r.withApp(r.profileShow),
			},
			{
				Name:      "create",
				Usage:     "Create a profile",
				ArgsUsage: "<name>",
				Flags:     contentFlags(),
				Action:    r.withApp(r.profileCreate),
			},
			{
				Name:      "update",
				Usage:     "Rename a profile and/or replace its content",
				ArgsUsage: "<id-or-name>",
				Flags: append(contentFlags(),
					&cli.StringFlag{Name: "name", Usage: "New profile name"},
				),
				Action: r.withApp(r.profileUpdate),
			},
			{
				Name:      "delete",
				Usage:     "Delete a profile that is not installed",
				ArgsUsage: "<id-or-name>",
				Action:    r.withApp(r.profileDelete),
			},
			{
				Name:      "duplicate",
				Usage:     "Copy a profile under a new name",
				ArgsUsage: "<id-or-name> <new-name>",
				Action:    r.withApp(r.profileDuplicate),
			},
			{
				Name:      "apply",
				Usage:     "Install a profile into the settings file",
				ArgsUsage: "<id-or-name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Only report whether the file would change"},
				},
				Action: r.withApp(r.profileApply),
			},
		},
	}
}

// readContent returns the document from --file or --json; ok is false when
// neither was given.
func (r *runner) readContent(cmd *cli.Command) (content string, ok bool, err error) {
	file, inline := cmd.String("file"), cmd.String("json")
	switch {
	case file != "" && inline != "":
		return "", false, fmt.Errorf("%w: use either --file or --json", errUsage)
	case inline != "":
		return inline, true, nil
	case file == "-":
		data, err := io.ReadAll(r.In)
		if err != nil {
			return "", false, fmt.Errorf("cli: read stdin: %w", err)
		}
		return string(data), true, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", false, fmt.Errorf("cli: read %s: %w", file, err)
		}
		return string(data), true, nil
	default:
		return "", false, nil
	}
}

func reconcileQuietly(ctx context.Context, app *internal.App) {
	if _, err := app.Service.Reconcile(ctx); err != nil {
		app.Logger.Warn("reconcile failed", slog.String("error", err.Error()))
	}
}

type profileList struct {
	Profiles []models.Profile `json:"profiles" yaml:"profiles"`
	Total    int              `json:"total" yaml:"total"`
}

func (r *runner) printProfiles(p *printer, items []models.Profile) error {
	if items == nil {
		items = []models.Profile{}
	}
	return p.emit(profileList{Profiles: items, Total: len(items)}, func(w io.Writer) error {
		if len(items) == 0 {
			_, err := fmt.Fprintln(w, "No profiles")
			return err
		}
		return table(w, "ACTIVE\tNAME\tMODEL\tBASE URL\tID\tUPDATED", func(tw io.Writer) {
			for _, it := range items {
				mark := ""
				if it.IsActive {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					mark, it.Name, orDash(it.Fields.Model), orDash(it.Fields.DisplayURL), it.ID, stamp(it.UpdatedAt))
			}
		})
	})
}

func (r *runner) profileList(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	reconcileQuietly(ctx, app)
	items, err := app.Service.List(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("active-only") {
		active := items[:0]
		for _, it := range items {
			if it.IsActive {
				active = append(active, it)
			}
		}
		items = active
	}
	return r.printProfiles(p, items)
}

func (r *runner) profileSearch(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	q, err := arg(cmd, 0, "query")
	if err != nil {
		return err
	}
	items, err := app.Service.Search(ctx, q)
	if err != nil {
		return err
	}
	return r.printProfiles(p, items)
}

func (r *runner) profileShow(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	ref, err := arg(cmd, 0, "id-or-name")
	if err != nil {
		return err
	}
	reconcileQuietly(ctx, app)
	prof, err := app.Service.Get(ctx, ref)
	if err != nil {
		return err
	}
	if !cmd.Bool("show-secrets") {
		prof.Content = models.MaskContent(prof.Content)
	}
	return p.emit(prof, func(w io.Writer) error {
		fmt.Fprintf(w, "ID:       %s\n", prof.ID)
		fmt.Fprintf(w, "Name:     %s\n", prof.Name)
		fmt.Fprintf(w, "Active:   %s\n", yesNo(prof.IsActive))
		fmt.Fprintf(w, "Model:    %s\n", orDash(prof.Fields.Model))
		fmt.Fprintf(w, "Base URL: %s\n", orDash(prof.Fields.DisplayURL))
		fmt.Fprintf(w, "Secret:   %s\n", orDash(prof.Fields.MaskedSecret))
		fmt.Fprintf(w, "Hash:     %s\n", prof.ContentHash)
		fmt.Fprintf(w, "Created:  %s\n", stamp(prof.CreatedAt))
		fmt.Fprintf(w, "Updated:  %s\n", stamp(prof.UpdatedAt))
		_, err := fmt.Fprintf(w, "Content:\n%s\n", strings.TrimRight(prof.Content, "\n"))
		return err
	})
}

func (r *runner) profileCreate(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	name, err := arg(cmd, 0, "name")
	if err != nil {
		return err
	}
	content, ok, err := r.readContent(cmd)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: provide --file or --json", errUsage)
	}
	prof, err := app.Service.Create(ctx, name, content)
	if err != nil {
		return err
	}
	prof.Content = ""
	return p.emit(prof, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Created profile %q (%s)\n", prof.Name, prof.ID)
		return err
	})
}

func (r *runner) profileUpdate(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	ref, err := arg(cmd, 0, "id-or-name")
	if err != nil {
		return err
	}
	var params store.UpdateParams
	if cmd.IsSet("name") {
		name := cmd.String("name")
		params.Name = &name
	}
	content, ok, err := r.readContent(cmd)
	if err != nil {
		return err
	}
	if ok {
		params.Content = &content
	}
	prof, err := app.Service.Update(ctx, ref, params)
	if err != nil {
		return err
	}
	prof.Content = ""
	return p.emit(prof, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Updated profile %q\n", prof.Name)
		return err
	})
}

func (r *runner) profileDelete(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	ref, err := arg(cmd, 0, "id-or-name")
	if err != nil {
		return err
	}
	prof, err := app.Service.Delete(ctx, ref)
	if err != nil {
		return err
	}
	prof.Content = ""
	return p.emit(prof, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Deleted profile %q\n", prof.Name)
		return err
	})
}

func (r *runner) profileDuplicate(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	ref, err := arg(cmd, 0, "id-or-name")
	if err != nil {
		return err
	}
	newName, err := arg(cmd, 1, "new-name")
	if err != nil {
		return err
	}
	prof, err := app.Service.Duplicate(ctx, ref, newName)
	if err != nil {
		return err
	}
	prof.Content = ""
	return p.emit(prof, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Created profile %q (%s)\n", prof.Name, prof.ID)
		return err
	})
}

func (r *runner) profileApply(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	ref, err := arg(cmd, 0, "id-or-name")
	if err != nil {
		return err
	}
	res, err := app.Service.Apply(ctx, ref, engine.ApplyOptions{DryRun: cmd.Bool("dry-run")})
	if err != nil {
		return err
	}
	return p.emit(res, func(w io.Writer) error {
		return printResult(w, res)
	})
}

func printResult(w io.Writer, res *engine.Result) error {
	subject := fmt.Sprintf("profile %q", res.ProfileName)
	if res.RestoredFrom != "" {
		subject = "backup " + res.RestoredFrom
	}
	switch {
	case res.DryRun && res.Changed:
		fmt.Fprintf(w, "Dry run: applying %s would change %s\n", subject, res.Target)
	case res.DryRun:
		fmt.Fprintf(w, "Dry run: %s already matches %s\n", res.Target, subject)
	case res.RestoredFrom != "":
		fmt.Fprintf(w, "Restored %s to %s\n", subject, res.Target)
	default:
		fmt.Fprintf(w, "Applied %s to %s\n", subject, res.Target)
	}
	if res.Backup != nil {
		fmt.Fprintf(w, "Backup: %s\n", res.Backup.Path)
	}
	if res.Pruned > 0 {
		fmt.Fprintf(w, "Pruned %d old backup(s)\n", res.Pruned)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
