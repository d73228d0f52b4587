package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/starford/cfgswap/internal"
	"github.com/starford/cfgswap/internal/models"
)

func (r *runner) backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage backups of the settings file",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List backups, newest first",
				Action: r.withApp(r.backupList),
			},
			{
				Name:   "create",
				Usage:  "Back up the settings file now",
				Action: r.withApp(r.backupCreate),
			},
			{
				Name:      "restore",
				Usage:     "Install a backup into the settings file",
				ArgsUsage: "<backup-path-or-name>",
				Action:    r.withApp(r.backupRestore),
			},
			{
				Name:  "cleanup",
				Usage: "Keep only the newest backups",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "keep", Value: -1, Usage: "Backups to keep (default: configured retention)"},
				},
				Action: r.withApp(r.backupCleanup),
			},
		},
	}
}

type backupList struct {
	Backups []models.BackupRecord `json:"backups" yaml:"backups"`
}

func (r *runner) backupList(ctx context.Context, _ *cli.Command, app *internal.App, p *printer) error {
	list, err := app.Service.Backups(ctx)
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.BackupRecord{}
	}
	return p.emit(backupList{Backups: list}, func(w io.Writer) error {
		if len(list) == 0 {
			_, err := fmt.Fprintln(w, "No backups")
			return err
		}
		return table(w, "#\tNAME\tCREATED\tSIZE\tPROFILE", func(tw io.Writer) {
			for i, b := range list {
				prof := ""
				if b.AppliedProfileID != nil {
					prof = *b.AppliedProfileID
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
					i+1, filepath.Base(b.Path), stamp(b.CreatedAt), b.Size, orDash(prof))
			}
		})
	})
}

func (r *runner) backupCreate(ctx context.Context, _ *cli.Command, app *internal.App, p *printer) error {
	rec, err := app.Service.CreateBackup(ctx)
	if err != nil {
		return err
	}
	return p.emit(rec, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Backup created: %s\n", rec.Path)
		return err
	})
}

func (r *runner) backupRestore(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	ref, err := arg(cmd, 0, "backup-path-or-name")
	if err != nil {
		return err
	}
	// A bare file name refers to the configured backup directory.
	if filepath.Base(ref) == ref {
		ref = filepath.Join(app.Config.Target.Backups(), ref)
	}
	res, err := app.Service.Restore(ctx, ref)
	if err != nil {
		return err
	}
	return p.emit(res, func(w io.Writer) error {
		return printResult(w, res)
	})
}

func (r *runner) backupCleanup(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error {
	res, err := app.Service.Cleanup(ctx, int(cmd.Int("keep")))
	if err != nil {
		return err
	}
	return p.emit(res, func(w io.Writer) error {
		fmt.Fprintf(w, "Removed %d backup(s), keeping the newest %d\n", len(res.Removed), res.Keep)
		for _, f := range res.Failures {
			fmt.Fprintf(w, "warning: %s\n", f)
		}
		return nil
	})
}
