package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/edvin/hostbackup/internal/app"
	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
)

type commands struct {
	svc *app.Services
	out io.Writer
}

func defaultOperator() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "backupctl"
}

func (c *commands) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	projectID := fs.String("project", "", "Project to back up")
	all := fs.Bool("all", false, "Back up every configured project")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*projectID == "") == !*all {
		return errors.New("exactly one of -project or -all is required")
	}

	var projects []model.Project
	if *all {
		projects = c.svc.Projects.All()
	} else {
		p, ok := c.svc.Projects.Get(*projectID)
		if !ok {
			return &backup.ConfigurationError{ProjectID: *projectID, Reason: "unknown project"}
		}
		projects = []model.Project{p}
	}

	failed := 0
	for _, p := range projects {
		rec, err := c.svc.Orchestrator.Run(ctx, p)
		if err != nil {
			fmt.Fprintf(c.out, "%s\terror\t%v\n", p.ID, err)
			failed++
			continue
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%d bytes", p.ID, rec.Status, rec.Name, rec.SizeBytes)
		if rec.ErrorMessage != nil {
			line += "\t" + *rec.ErrorMessage
		}
		fmt.Fprintln(c.out, line)
		if rec.Status == model.BackupStatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d backups failed", failed, len(projects))
	}
	return nil
}

func (c *commands) restore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	req := backup.RestoreRequest{}
	fs.StringVar(&req.ProjectID, "project", "", "Project ID (required)")
	fs.StringVar(&req.BackupName, "backup", "", "Backup name (required)")
	fs.StringVar(&req.RestoreType, "type", "", "production, test or archive (required)")
	fs.StringVar(&req.Operator, "operator", defaultOperator(), "Operator performing the restore")
	fs.StringVar(&req.Reason, "reason", "", "Reason, required for production restores")
	fs.StringVar(&req.Target, "target", "", "Restore destination, required for archive restores")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := c.svc.Coordinator.Restore(ctx, req)
	if rec != nil {
		fmt.Fprintf(c.out, "%s\t%s\t%s\tfrom %s in %s\n", rec.ID, rec.BackupName, rec.Status, orDash(rec.Source), rec.Duration.Round(time.Millisecond))
	}
	return err
}

func (c *commands) test(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	projectID := fs.String("project", "", "Project ID (required)")
	operator := fs.String("operator", defaultOperator(), "Operator running the test")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" {
		return errors.New("-project is required")
	}

	rec, err := c.svc.Scheduler.RunRestoreTest(ctx, *projectID, *operator)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s: %s\n%s\n", rec.ProjectID, rec.Quarter, rec.Result, rec.Report)
	if rec.Result != model.TestResultPass {
		return fmt.Errorf("restore test for %s failed", rec.ProjectID)
	}
	return nil
}

func (c *commands) compliance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compliance", flag.ContinueOnError)
	quarter := fs.String("quarter", "", "Quarter label, e.g. 2025-Q4 (default: current)")
	notify := fs.Bool("notify", false, "Send an alert for every uncovered project")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *quarter == "" {
		*quarter = c.svc.Scheduler.CurrentQuarter()
	}

	var ids []string
	var err error
	if *notify {
		ids, err = c.svc.Scheduler.NotifyUncovered(ctx, *quarter)
	} else {
		ids, err = c.svc.Scheduler.FindProjectsNeedingTest(ctx, *quarter)
	}
	if len(ids) == 0 && err == nil {
		fmt.Fprintf(c.out, "all projects covered for %s\n", *quarter)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintf(c.out, "%s\t%s\tneeds restore test\n", *quarter, id)
	}
	return err
}

func (c *commands) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	filter := model.BackupFilter{}
	fs.StringVar(&filter.ProjectID, "project", "", "Only this project")
	fs.StringVar(&filter.Status, "status", "", "Only records with this status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records, err := c.svc.Store.ListBackups(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tNAME\tSTATUS\tSIZE\tLOCAL\tOFFSITE\tCREATED\tDELETED")
	for _, r := range records {
		deleted := "-"
		if r.DeletedAt != nil {
			deleted = r.DeletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%t\t%s\t%s\n",
			r.ProjectID, r.Name, r.Status, r.SizeBytes, r.DiskLocal, r.DiskOffsite,
			r.CreatedAt.Format(time.RFC3339), deleted)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
